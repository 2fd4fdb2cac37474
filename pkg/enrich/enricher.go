// Package enrich runs the batched enrichment passes that attach inventory
// quantities and category breadcrumbs to fetched products.
//
// Both passes partition their key sets into fixed-size batches and dispatch
// them through the shared ratelimit.Governor, so the upstream sees a bounded,
// paced request stream. Enrichment failures degrade the affected rows and
// increment the warning count; only context cancellation aborts a pass.
package enrich

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/skukla/kukla-integration-service-sub006/pkg/commerce"
	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
	"github.com/skukla/kukla-integration-service-sub006/pkg/ratelimit"
)

// Prometheus metrics for enrichment.
var (
	enrichBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_export_enrich_batches_total",
		Help: "Total number of enrichment batches dispatched by pass and outcome",
	}, []string{"pass", "status"})

	enrichWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commerce_export_enrich_warnings_total",
		Help: "Total number of degraded rows (missing quantity or unresolved category)",
	})
)

// commerceAPI is the slice of the Commerce client the enricher needs.
type commerceAPI interface {
	ListSourceItems(ctx context.Context, skus []string) ([]commerce.SourceItem, error)
	ListCategories(ctx context.Context, ids []int64) ([]commerce.Category, error)
}

// Product is a fetched product plus its enrichment results. Quantity is nil
// when no successful inventory batch covered the SKU.
type Product struct {
	commerce.RawProduct

	Quantity   *float64
	Categories []CategoryPath
}

// CategoryPath is one resolved category membership.
type CategoryPath struct {
	ID         int64
	Name       string
	Breadcrumb string
}

// Stats summarizes an enrichment run for the step log.
type Stats struct {
	ProductsEnriched   int
	QuantityMissing    int
	CategoriesResolved int
	Unresolved         int
	Warnings           int
	InventoryBatches   int
	CategoryBatches    int
	CacheHit           bool
}

// Enricher coordinates the inventory and category passes.
type Enricher struct {
	api      commerceAPI
	governor *ratelimit.Governor
	cache    *CategoryCache
	cfg      config.EnrichConfig
	logger   zerolog.Logger
}

// New creates an enricher. The cache may be shared across runs; the governor
// is shared with any other component dispatching against the same upstream.
func New(api commerceAPI, governor *ratelimit.Governor, cache *CategoryCache, cfg config.EnrichConfig, logger zerolog.Logger) *Enricher {
	return &Enricher{
		api:      api,
		governor: governor,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
	}
}

// Enrich wraps the fetched products and runs the passes selected by opts.
// Row order is preserved. The returned error is non-nil only when the
// context was cancelled; batch failures degrade rows instead.
func (e *Enricher) Enrich(ctx context.Context, products []commerce.RawProduct, opts config.ResolvedOptions) ([]Product, Stats, error) {
	out := make([]Product, len(products))
	for i := range products {
		out[i] = Product{RawProduct: products[i]}
	}

	stats := Stats{ProductsEnriched: len(out)}
	if len(out) == 0 {
		return out, stats, nil
	}

	if opts.IncludeInventory {
		if err := e.inventoryPass(ctx, out, &stats); err != nil {
			return nil, stats, err
		}
	}
	if opts.IncludeCategories {
		if err := e.categoryPass(ctx, out, &stats); err != nil {
			return nil, stats, err
		}
	}

	e.logger.Info().
		Int("products", stats.ProductsEnriched).
		Int("quantity_missing", stats.QuantityMissing).
		Int("categories_resolved", stats.CategoriesResolved).
		Int("unresolved", stats.Unresolved).
		Int("warnings", stats.Warnings).
		Bool("cache_hit", stats.CacheHit).
		Msg("Enrichment complete")

	return out, stats, nil
}

// inventoryPass fetches source items for every SKU and sums quantities per
// SKU across source codes. SKUs without a quantity after the pass stay nil
// and count as warnings.
func (e *Enricher) inventoryPass(ctx context.Context, products []Product, stats *Stats) error {
	skus := make([]string, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for i := range products {
		if _, ok := seen[products[i].SKU]; ok {
			continue
		}
		seen[products[i].SKU] = struct{}{}
		skus = append(skus, products[i].SKU)
	}

	batches := chunk(skus, e.cfg.InventoryBatchSize)
	stats.InventoryBatches = len(batches)

	var mu sync.Mutex
	quantities := make(map[string]float64, len(skus))

	err := e.dispatch(ctx, len(batches), func(i int) {
		items, err := e.api.ListSourceItems(ctx, batches[i])
		if err != nil {
			enrichBatchesTotal.WithLabelValues("inventory", "failed").Inc()
			e.logger.Warn().
				Int("batch", i).
				Int("skus", len(batches[i])).
				Err(err).
				Msg("Inventory batch failed, quantities will be absent")
			return
		}
		enrichBatchesTotal.WithLabelValues("inventory", "ok").Inc()

		mu.Lock()
		for _, item := range items {
			quantities[item.SKU] += item.Quantity
		}
		mu.Unlock()
	})
	if err != nil {
		return err
	}

	for i := range products {
		if q, ok := quantities[products[i].SKU]; ok {
			v := q
			products[i].Quantity = &v
		} else {
			stats.QuantityMissing++
		}
	}
	if stats.QuantityMissing > 0 {
		stats.Warnings += stats.QuantityMissing
		enrichWarningsTotal.Add(float64(stats.QuantityMissing))
	}

	return nil
}

// categoryPass resolves every category id referenced by the products to a
// name and breadcrumb. The id -> category map is served from the category
// cache when a cached build covers the run's ids, otherwise rebuilt and
// stored.
func (e *Enricher) categoryPass(ctx context.Context, products []Product, stats *Stats) error {
	ids := make([]int64, 0, 64)
	seen := make(map[int64]struct{}, 64)
	for i := range products {
		for _, id := range products[i].CategoryIDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	catMap, ok := e.cache.Load(ctx)
	if ok && catMap.Covers(ids) {
		stats.CacheHit = true
	} else {
		var err error
		catMap, err = e.buildCategoryMap(ctx, ids, stats)
		if err != nil {
			return err
		}
		e.cache.Store(ctx, catMap)
	}

	for i := range products {
		for _, id := range products[i].CategoryIDs() {
			path, resolved := catMap.Resolve(id)
			if !resolved {
				stats.Unresolved++
				continue
			}
			products[i].Categories = append(products[i].Categories, path)
			stats.CategoriesResolved++
		}
	}
	if stats.Unresolved > 0 {
		stats.Warnings += stats.Unresolved
		enrichWarningsTotal.Add(float64(stats.Unresolved))
		e.logger.Warn().
			Int("unresolved", stats.Unresolved).
			Msg("Some category references did not resolve")
	}

	return nil
}

// buildCategoryMap fetches the requested ids, then runs one backfill round
// for ancestor ids referenced by Path strings but missing from the map, so
// breadcrumbs resolve without walking the whole tree.
func (e *Enricher) buildCategoryMap(ctx context.Context, ids []int64, stats *Stats) (CategoryMap, error) {
	catMap := make(CategoryMap, len(ids))
	requested := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		requested[id] = struct{}{}
	}

	if err := e.fetchCategories(ctx, ids, catMap, stats); err != nil {
		return nil, err
	}

	backfill := catMap.missingAncestors(requested)
	if len(backfill) > 0 {
		e.logger.Debug().
			Int("ancestors", len(backfill)).
			Msg("Backfilling breadcrumb ancestors")
		for _, id := range backfill {
			requested[id] = struct{}{}
		}
		if err := e.fetchCategories(ctx, backfill, catMap, stats); err != nil {
			return nil, err
		}
	}

	return catMap, nil
}

func (e *Enricher) fetchCategories(ctx context.Context, ids []int64, catMap CategoryMap, stats *Stats) error {
	batches := chunk(ids, e.cfg.CategoryBatchSize)
	stats.CategoryBatches += len(batches)

	var mu sync.Mutex
	return e.dispatch(ctx, len(batches), func(i int) {
		cats, err := e.api.ListCategories(ctx, batches[i])
		if err != nil {
			enrichBatchesTotal.WithLabelValues("category", "failed").Inc()
			e.logger.Warn().
				Int("batch", i).
				Int("ids", len(batches[i])).
				Err(err).
				Msg("Category batch failed, references will stay unresolved")
			return
		}
		enrichBatchesTotal.WithLabelValues("category", "ok").Inc()

		mu.Lock()
		for _, cat := range cats {
			catMap[cat.ID] = cat
		}
		mu.Unlock()
	})
}

// dispatch fans out n batch workers through the governor. The loop blocks on
// Acquire, so launches respect the concurrency cap and pacing interval. A
// cancelled context stops dispatching and waits for in-flight workers.
func (e *Enricher) dispatch(ctx context.Context, n int, run func(i int)) error {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := e.governor.Acquire(ctx); err != nil {
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer e.governor.Release()
			run(i)
		}(i)
	}
	wg.Wait()
	return nil
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
