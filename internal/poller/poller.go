// Package poller refreshes the site snapshot on a fixed period and records
// status-table history.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llamawrapper/sitepanel/internal/metrics"
	"github.com/llamawrapper/sitepanel/internal/site"
	"github.com/llamawrapper/sitepanel/internal/status"
)

const defaultInterval = 30 * time.Second

type Poller struct {
	site     *site.Site
	metrics  *metrics.Metrics
	logger   *zap.Logger
	interval time.Duration

	mu   sync.Mutex
	last map[string]string // resource -> status from the previous cycle
}

// New returns a poller. m may be nil; transitions are then only logged.
func New(s *site.Site, m *metrics.Metrics, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		site:     s,
		metrics:  m,
		logger:   logger.Named("poller"),
		interval: interval,
		last:     make(map[string]string),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one refresh cycle. The snapshot replaces the cached one.
func (p *Poller) Poll(ctx context.Context) *site.Snapshot {
	start := time.Now()
	snap := p.site.Refresh(ctx)
	latMs := float64(time.Since(start).Milliseconds())

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, row := range snap.System {
		ok := row.Status == status.RowOK
		if p.metrics != nil {
			p.metrics.AddHealthCheck(row.Resource, row.Endpoint, ok, latMs)
		}

		prev, seen := p.last[row.Resource]
		p.last[row.Resource] = row.Status
		if !seen || prev == row.Status {
			continue
		}

		level := "info"
		if !ok {
			level = "warn"
		}
		msg := fmt.Sprintf("%s -> %s", prev, row.Status)
		if level == "warn" {
			p.logger.Warn("status changed", zap.String("resource", row.Resource), zap.String("change", msg))
		} else {
			p.logger.Info("status changed", zap.String("resource", row.Resource), zap.String("change", msg))
		}
		if p.metrics != nil {
			p.metrics.AddEvent(level, row.Resource, msg)
		}
	}
	return snap
}

// Statuses returns the statuses seen in the last cycle.
func (p *Poller) Statuses() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.last))
	for k, v := range p.last {
		out[k] = v
	}
	return out
}
