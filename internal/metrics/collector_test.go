package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterIdentity(t *testing.T) {
	c := NewCollector()
	a := c.Counter("relay_total", "total relays", "")
	b := c.Counter("relay_total", "total relays", "")
	if a != b {
		t.Fatal("same name should return the same counter")
	}
	a.Inc()
	a.Add(2)
	if b.Value() != 3 {
		t.Errorf("expected 3, got %d", b.Value())
	}
}

func TestLabeledCountersAreDistinct(t *testing.T) {
	c := NewCollector()
	webhook := c.Counter("relay_total", "total relays", `path="webhook"`)
	fallback := c.Counter("relay_total", "total relays", `path="fallback"`)
	if webhook == fallback {
		t.Fatal("different labels must give different counters")
	}
	webhook.Inc()
	if fallback.Value() != 0 {
		t.Error("fallback counter should be untouched")
	}
}

func TestGauge(t *testing.T) {
	c := NewCollector()
	g := c.Gauge("queue_depth", "bus depth", "")
	g.Set(5)
	g.Inc()
	g.Dec()
	if g.Value() != 5 {
		t.Errorf("expected 5, got %d", g.Value())
	}
}

func TestHandlerExposition(t *testing.T) {
	c := NewCollector()
	c.Counter("relay_total", "total relays", `path="webhook"`).Add(7)
	c.Gauge("queue_depth", "bus depth", "").Set(2)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"mirrorbot_uptime_seconds",
		`relay_total{path="webhook"} 7`,
		"queue_depth 2",
		"# TYPE relay_total counter",
		"# TYPE queue_depth gauge",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q:\n%s", want, body)
		}
	}
}
