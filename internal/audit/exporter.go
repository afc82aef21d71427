package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/logger"
	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/metrics"
)

// Sink receives exported entries
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
}

// Exporter periodically moves pending entries from a store to a sink
type Exporter struct {
	store    Store
	sink     Sink
	interval time.Duration
	batch    int
	metrics  *metrics.Metrics
}

// NewExporter creates an exporter flushing every interval in batches of up to 500
func NewExporter(store Store, sink Sink, interval time.Duration, m *metrics.Metrics) *Exporter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Exporter{store: store, sink: sink, interval: interval, batch: 500, metrics: m}
}

// Flush exports everything pending and returns how many entries were written
func (x *Exporter) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		pending, err := x.store.Pending(ctx, x.batch)
		if err != nil {
			return total, fmt.Errorf("failed to read pending entries: %w", err)
		}
		if len(pending) == 0 {
			x.metrics.SetAuditPending(0)
			return total, nil
		}
		if err := x.sink.Write(ctx, pending); err != nil {
			x.metrics.SetAuditPending(len(pending))
			return total, err
		}
		ids := make([]uuid.UUID, len(pending))
		for i, e := range pending {
			ids[i] = e.ID
		}
		if err := x.store.MarkExported(ctx, ids); err != nil {
			return total, err
		}
		total += len(pending)
		if len(pending) < x.batch {
			x.metrics.SetAuditPending(0)
			return total, nil
		}
	}
}

// Run flushes on every tick until ctx is done, and once more on the way out
func (x *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(x.interval)
	defer ticker.Stop()

	logger.Info("Audit exporter started", "interval", x.interval)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := x.Flush(flushCtx); err != nil {
				logger.Warn("Final audit export failed", "error", err)
			}
			cancel()
			logger.Info("Audit exporter stopped")
			return
		case <-ticker.C:
			n, err := x.Flush(ctx)
			if err != nil {
				logger.Error("Audit export failed", "error", err, "exported", n)
				continue
			}
			if n > 0 {
				logger.Debug("Audit entries exported", "count", n)
			}
		}
	}
}
