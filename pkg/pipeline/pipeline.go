// Package pipeline drives export runs end to end: authenticate, fetch the
// catalog, enrich, flatten, encode and store. Each run walks an explicit
// state machine and keeps a timestamped step log that ends up in the
// response envelope.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/skukla/kukla-integration-service-sub006/pkg/cache"
	"github.com/skukla/kukla-integration-service-sub006/pkg/commerce"
	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
	"github.com/skukla/kukla-integration-service-sub006/pkg/enrich"
	"github.com/skukla/kukla-integration-service-sub006/pkg/export"
	"github.com/skukla/kukla-integration-service-sub006/pkg/ratelimit"
	"github.com/skukla/kukla-integration-service-sub006/pkg/storage"
	"github.com/skukla/kukla-integration-service-sub006/pkg/transform"
)

// Prometheus metrics for export runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_export_runs_total",
		Help: "Total number of export runs by terminal state",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "commerce_export_run_duration_seconds",
		Help:    "End-to-end duration of export runs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commerce_export_stage_duration_seconds",
		Help:    "Duration of individual run stages",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"stage"})
)

// Result is the success envelope returned by an export action.
type Result struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	Steps       []string     `json:"steps"`
	File        *File        `json:"file,omitempty"`
	Performance *Performance `json:"performance"`
}

// File describes the stored artifact. It is omitted on dev runs, which skip
// the storing stage.
type File struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	DownloadURL string `json:"downloadUrl"`
}

// Performance carries the run's headline numbers.
type Performance struct {
	ExecutionTimeMs int64       `json:"executionTimeMs"`
	ProductCount    int         `json:"productCount"`
	CategoryCount   int         `json:"categoryCount"`
	Compression     Compression `json:"compression"`
	MemoryMB        float64     `json:"memoryMb"`
	Warnings        int         `json:"warnings"`
}

// Compression reports what gzip would save on the artifact. The stored
// object stays plain CSV; these numbers only feed telemetry.
type Compression struct {
	RawBytes        int     `json:"rawBytes"`
	CompressedBytes int     `json:"compressedBytes"`
	SavedPct        float64 `json:"savedPct"`
}

// RunError is returned when a run fails. It carries the step log so the
// error envelope can still show how far the run got before the failure.
type RunError struct {
	RunID string
	State State
	Steps []string
	Err   error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed during %s: %v", e.RunID, e.State, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RunError) Unwrap() error {
	return e.Err
}

// Orchestrator wires the export stages together and drives runs. It is safe
// for concurrent use; every Execute call owns its own Run.
type Orchestrator struct {
	cfg         *config.Config
	tokens      commerce.TokenProvider
	paginator   *commerce.Paginator
	enricher    *enrich.Enricher
	transformer *transform.Transformer
	gateway     storage.Gateway
	logger      zerolog.Logger
}

// New builds the full pipeline from configuration. Dev mode skips gateway
// construction entirely; storing is not part of dev runs.
func New(cfg *config.Config, logger zerolog.Logger) (*Orchestrator, error) {
	tokens, err := commerce.NewTokenProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	client := commerce.NewClient(cfg, tokens, logger)

	store := cache.NewFromConfig(cfg.Cache)
	catCache := enrich.NewCategoryCache(store, cfg.Fingerprint(), cfg.Enrich.CategoryCacheTTL, logger)
	governor := ratelimit.NewGovernor(cfg.Enrich, logger)

	o := &Orchestrator{
		cfg:         cfg,
		tokens:      tokens,
		paginator:   commerce.NewPaginator(client, cfg.Products, logger),
		enricher:    enrich.New(client, governor, catCache, cfg.Enrich, logger),
		transformer: transform.New(cfg.Commerce.MediaURL),
		logger:      logger,
	}

	if !cfg.IsDev() {
		gw, err := storage.New(cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		o.gateway = gw
	}
	return o, nil
}

// Gateway exposes the storage backend for the file browser. It is nil in
// dev mode.
func (o *Orchestrator) Gateway() storage.Gateway {
	return o.gateway
}

// Execute runs one export end to end. On success it returns the response
// envelope; on failure it returns a *RunError carrying the step log and the
// cause, which the caller maps onto the error envelope.
func (o *Orchestrator) Execute(ctx context.Context, opts config.ExportOptions) (*Result, error) {
	resolved := opts.Resolve(o.cfg)
	run := newRun(o.cfg.Env, o.logger)
	start := time.Now()

	run.logger.Info().
		Str("filename", resolved.Filename).
		Strs("fields", resolved.Fields).
		Msg("export run started")

	run.enter(StateAuthenticating)
	if _, err := o.tokens.Token(ctx); err != nil {
		return nil, o.fail(run, start, err)
	}
	run.complete(fmt.Sprintf("authenticated against %s (%s mode)",
		o.cfg.Commerce.BaseURL, o.cfg.Commerce.Auth.Mode))

	run.enter(StateFetching)
	set, err := o.paginator.FetchAll(ctx)
	if err != nil {
		return nil, o.fail(run, start, err)
	}
	fetchDetail := fmt.Sprintf("fetched %d products across %d pages", len(set.Products), set.Pages)
	if set.Truncated {
		fetchDetail += fmt.Sprintf(" (stopped at page ceiling, %d reported upstream)", set.TotalCount)
	}
	run.complete(fetchDetail)

	run.enter(StateEnriching)
	products, stats, err := o.enricher.Enrich(ctx, set.Products, resolved)
	if err != nil {
		return nil, o.fail(run, start, err)
	}
	run.complete(enrichDetail(resolved, stats))

	run.enter(StateTransforming)
	records := o.transformer.Transform(products)
	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = rec.Cells(resolved.Fields)
	}
	run.complete(fmt.Sprintf("flattened %d products into %d rows of %d columns",
		len(products), len(rows), len(resolved.Fields)))

	run.enter(StateExporting)
	artifact, err := export.Export(transform.Header(resolved.Fields), rows)
	if err != nil {
		return nil, o.fail(run, start, err)
	}
	run.complete(fmt.Sprintf("encoded %s of CSV, %s gzipped (%.1f%% saved)",
		byteSize(artifact.Stats.RawBytes), byteSize(artifact.Stats.CompressedBytes),
		artifact.Stats.SavedPct))

	var file *File
	run.enter(StateStoring)
	if o.gateway == nil {
		run.complete("skipped storage (dev mode)")
	} else {
		info, err := o.gateway.Write(ctx, resolved.Filename, artifact.CSV, export.ContentType)
		if err != nil {
			return nil, o.fail(run, start, err)
		}
		file = &File{
			Name:        info.Name,
			Location:    info.Location,
			DownloadURL: "/files/download?name=" + url.QueryEscape(info.Name),
		}
		run.complete(fmt.Sprintf("stored %s at %s", info.Name, info.Location))
	}

	run.done()
	elapsed := time.Since(start)
	runsTotal.WithLabelValues("success").Inc()
	runDuration.Observe(elapsed.Seconds())

	message := fmt.Sprintf("exported %d products to %s", len(products), resolved.Filename)
	if file == nil {
		message = fmt.Sprintf("exported %d products (dev mode, artifact not stored)", len(products))
	}

	run.logger.Info().
		Int("products", len(products)).
		Int("warnings", stats.Warnings).
		Dur("elapsed", elapsed).
		Msg("export run finished")

	return &Result{
		Success: true,
		Message: message,
		Steps:   run.StepLog(),
		File:    file,
		Performance: &Performance{
			ExecutionTimeMs: elapsed.Milliseconds(),
			ProductCount:    len(products),
			CategoryCount:   categoryCount(products),
			Compression: Compression{
				RawBytes:        artifact.Stats.RawBytes,
				CompressedBytes: artifact.Stats.CompressedBytes,
				SavedPct:        artifact.Stats.SavedPct,
			},
			MemoryMB: run.PeakHeapMB(),
			Warnings: stats.Warnings,
		},
	}, nil
}

// fail finalizes a failed run and wraps the cause with the step log.
func (o *Orchestrator) fail(run *Run, start time.Time, err error) *RunError {
	state := run.State
	run.fail(err)
	runsTotal.WithLabelValues("failed").Inc()
	runDuration.Observe(time.Since(start).Seconds())

	run.logger.Error().
		Str("state", string(state)).
		Err(err).
		Msg("export run failed")

	return &RunError{RunID: run.ID, State: state, Steps: run.StepLog(), Err: err}
}

func enrichDetail(opts config.ResolvedOptions, stats enrich.Stats) string {
	if !opts.IncludeInventory && !opts.IncludeCategories {
		return "skipped enrichment (no passes selected)"
	}

	detail := fmt.Sprintf("enriched %d products", stats.ProductsEnriched)
	if opts.IncludeInventory {
		detail += fmt.Sprintf(", %d quantities resolved (%d missing)",
			stats.ProductsEnriched-stats.QuantityMissing, stats.QuantityMissing)
	}
	if opts.IncludeCategories {
		detail += fmt.Sprintf(", %d category links resolved (%d unresolved)",
			stats.CategoriesResolved, stats.Unresolved)
		if stats.CacheHit {
			detail += ", category cache hit"
		}
	}
	return detail
}

// categoryCount reports the number of distinct categories referenced across
// the run's products.
func categoryCount(products []enrich.Product) int {
	seen := make(map[int64]struct{})
	for i := range products {
		for _, c := range products[i].Categories {
			seen[c.ID] = struct{}{}
		}
	}
	return len(seen)
}

// byteSize renders a byte count for the step log.
func byteSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
