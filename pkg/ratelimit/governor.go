// Package ratelimit gates the dispatch of enrichment batches against the
// upstream Commerce API. The upstream publishes no rate limit headers, so
// the Governor enforces two local invariants instead: a hard cap on
// in-flight requests and a minimum spacing between consecutive dispatches.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
)

// Prometheus metrics for dispatch gating.
var (
	dispatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "commerce_export_dispatch_in_flight",
		Help: "Number of enrichment requests currently in flight",
	})

	dispatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commerce_export_dispatches_total",
		Help: "Total number of enrichment dispatches granted",
	})

	dispatchWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "commerce_export_dispatch_wait_seconds",
		Help:    "Time spent waiting for a dispatch slot and pace token",
		Buckets: []float64{0.001, 0.01, 0.05, 0.075, 0.1, 0.25, 0.5, 1, 2.5},
	})
)

// Governor bounds concurrent enrichment requests and paces their launch.
//
// Acquire blocks until both a concurrency slot and a pace token are
// available, so bursts never exceed the cap and consecutive dispatches are
// spaced at least one pacing interval apart even when slots are free.
type Governor struct {
	slots   chan struct{}
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewGovernor creates a dispatch governor from the enrichment settings.
func NewGovernor(cfg config.EnrichConfig, logger zerolog.Logger) *Governor {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.DispatchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.DispatchDelay), 1)
	}

	return &Governor{
		slots:   make(chan struct{}, cfg.MaxConcurrency),
		limiter: limiter,
		logger:  logger,
	}
}

// Acquire blocks until the caller may dispatch a request. Every successful
// Acquire must be paired with exactly one Release. Returns the context's
// error if it is cancelled while waiting; no slot is held in that case.
func (g *Governor) Acquire(ctx context.Context) error {
	start := time.Now()

	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("acquire dispatch slot: %w", ctx.Err())
	}

	// Slot held; now wait for the pace token so launches stay spaced.
	if err := g.limiter.Wait(ctx); err != nil {
		<-g.slots
		return fmt.Errorf("wait for dispatch pacing: %w", err)
	}

	dispatchInFlight.Inc()
	dispatchesTotal.Inc()
	dispatchWaitSeconds.Observe(time.Since(start).Seconds())

	return nil
}

// Release returns a dispatch slot. Calling Release without a matching
// Acquire panics, which surfaces pairing bugs immediately.
func (g *Governor) Release() {
	select {
	case <-g.slots:
		dispatchInFlight.Dec()
	default:
		panic("ratelimit: Release without matching Acquire")
	}
}

// InFlight reports how many dispatch slots are currently held.
func (g *Governor) InFlight() int {
	return len(g.slots)
}

// Cap reports the maximum number of concurrent dispatches.
func (g *Governor) Cap() int {
	return cap(g.slots)
}
