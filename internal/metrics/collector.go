// Package metrics provides a small Prometheus-compatible collector for the
// relay counters. It renders text/plain exposition format directly instead
// of pulling in prometheus/client_golang.
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default is the process-wide collector.
var Default = NewCollector()

// Collector aggregates counters and gauges.
type Collector struct {
	counters  sync.Map // key -> *Counter
	gauges    sync.Map // key -> *Gauge
	startTime time.Time
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Counter returns or creates a counter. labels is a raw Prometheus label
// string like `path="webhook"`, or empty.
func (c *Collector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	actual, _ := c.counters.LoadOrStore(key, &Counter{name: name, help: help, labels: labels})
	return actual.(*Counter)
}

// Gauge returns or creates a gauge.
func (c *Collector) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	actual, _ := c.gauges.LoadOrStore(key, &Gauge{name: name, help: help, labels: labels})
	return actual.(*Gauge)
}

// Handler renders metrics in Prometheus text exposition format.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		fmt.Fprintf(&sb, "# HELP mirrorbot_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE mirrorbot_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "mirrorbot_uptime_seconds %d\n\n", int64(c.Uptime().Seconds()))

		writeFamily := func(m *sync.Map, kind string, value func(any) int64, meta func(any) (string, string, string)) {
			helpWritten := make(map[string]bool)
			m.Range(func(_, v any) bool {
				name, help, labels := meta(v)
				if !helpWritten[name] {
					fmt.Fprintf(&sb, "# HELP %s %s\n", name, help)
					fmt.Fprintf(&sb, "# TYPE %s %s\n", name, kind)
					helpWritten[name] = true
				}
				if labels != "" {
					fmt.Fprintf(&sb, "%s{%s} %d\n", name, labels, value(v))
				} else {
					fmt.Fprintf(&sb, "%s %d\n", name, value(v))
				}
				return true
			})
		}

		writeFamily(&c.counters, "counter",
			func(v any) int64 { return v.(*Counter).Value() },
			func(v any) (string, string, string) { ctr := v.(*Counter); return ctr.name, ctr.help, ctr.labels })
		writeFamily(&c.gauges, "gauge",
			func(v any) int64 { return v.(*Gauge).Value() },
			func(v any) (string, string, string) { g := v.(*Gauge); return g.name, g.help, g.labels })

		w.Write([]byte(sb.String()))
	}
}
