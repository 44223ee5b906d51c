package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"mirrorbot/internal/domain"
	"mirrorbot/internal/metrics"
)

// maxAttachmentsPerMessage is Discord's per-message file cap; descriptors
// past the first 10 are dropped without error.
const maxAttachmentsPerMessage = 10

// Fetcher retrieves attachment bytes over HTTP and buffers them in memory.
// Failures are independent per attachment; one bad file never aborts the
// batch.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
	skipped  *metrics.Counter
}

func NewFetcher(timeout time.Duration, maxBytes int64, logger *slog.Logger, collector *metrics.Collector) *Fetcher {
	if collector == nil {
		collector = metrics.Default
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		logger:   logger,
		skipped:  collector.Counter("mirrorbot_attachments_skipped_total", "Attachments skipped or failed during fetch", ""),
	}
}

// Fetch downloads up to the first 10 attachments. Files whose declared size
// exceeds the ceiling are skipped without a network call; non-2xx responses
// and oversized bodies are skipped too. The result may be empty.
func (f *Fetcher) Fetch(ctx context.Context, attachments []domain.Attachment) []domain.FilePayload {
	if len(attachments) > maxAttachmentsPerMessage {
		attachments = attachments[:maxAttachmentsPerMessage]
	}

	var files []domain.FilePayload
	for _, att := range attachments {
		if int64(att.Size) > f.maxBytes {
			f.logger.Warn("attachment too large, skipping",
				"filename", att.Filename,
				"size", att.Size,
				"limit", f.maxBytes,
			)
			f.skipped.Inc()
			continue
		}
		payload, ok := f.fetchOne(ctx, att)
		if !ok {
			f.skipped.Inc()
			continue
		}
		files = append(files, payload)
	}
	return files
}

func (f *Fetcher) fetchOne(ctx context.Context, att domain.Attachment) (domain.FilePayload, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		f.logger.Warn("bad attachment URL", "filename", att.Filename, "err", err)
		return domain.FilePayload{}, false
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("attachment fetch failed", "filename", att.Filename, "err", err)
		return domain.FilePayload{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.FilePayload{}, false
	}

	// Declared size is advisory only; enforce the ceiling on actual bytes.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		f.logger.Warn("attachment read failed", "filename", att.Filename, "err", err)
		return domain.FilePayload{}, false
	}
	if int64(len(data)) > f.maxBytes {
		f.logger.Warn("attachment body exceeds limit, skipping",
			"filename", att.Filename,
			"limit", f.maxBytes,
		)
		return domain.FilePayload{}, false
	}

	name := att.Filename
	if name == "" {
		name = "unknown"
	}
	return domain.FilePayload{
		Name:        name,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, true
}
