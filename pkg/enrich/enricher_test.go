package enrich

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/skukla/kukla-integration-service-sub006/pkg/cache"
	"github.com/skukla/kukla-integration-service-sub006/pkg/commerce"
	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
	"github.com/skukla/kukla-integration-service-sub006/pkg/logging"
	"github.com/skukla/kukla-integration-service-sub006/pkg/ratelimit"
)

// fakeAPI serves canned inventory and category data. Batches containing a
// failSKU or failCategoryID return an error, simulating retry exhaustion.
type fakeAPI struct {
	mu             sync.Mutex
	items          map[string][]commerce.SourceItem
	cats           map[int64]commerce.Category
	failSKUs       map[string]bool
	failCatIDs     map[int64]bool
	inventoryCalls int
	categoryCalls  int
}

func (f *fakeAPI) ListSourceItems(_ context.Context, skus []string) ([]commerce.SourceItem, error) {
	f.mu.Lock()
	f.inventoryCalls++
	f.mu.Unlock()

	var out []commerce.SourceItem
	for _, sku := range skus {
		if f.failSKUs[sku] {
			return nil, errors.New("inventory backend unavailable")
		}
		out = append(out, f.items[sku]...)
	}
	return out, nil
}

func (f *fakeAPI) ListCategories(_ context.Context, ids []int64) ([]commerce.Category, error) {
	f.mu.Lock()
	f.categoryCalls++
	f.mu.Unlock()

	var out []commerce.Category
	for _, id := range ids {
		if f.failCatIDs[id] {
			return nil, errors.New("category backend unavailable")
		}
		if cat, ok := f.cats[id]; ok {
			out = append(out, cat)
		}
	}
	return out, nil
}

func testEnrichConfig() config.EnrichConfig {
	return config.EnrichConfig{
		InventoryBatchSize: 2,
		CategoryBatchSize:  2,
		MaxConcurrency:     4,
		DispatchDelay:      0,
		CategoryCacheTTL:   time.Minute,
	}
}

func newTestEnricher(api commerceAPI, store cache.Store) *Enricher {
	cfg := testEnrichConfig()
	logger := logging.NewLogger("enrich-test")
	gov := ratelimit.NewGovernor(cfg, logger)
	cc := NewCategoryCache(store, "fp-test", cfg.CategoryCacheTTL, logger)
	return New(api, gov, cc, cfg, logger)
}

func testProduct(sku string, catIDs ...int64) commerce.RawProduct {
	p := commerce.RawProduct{SKU: sku, Name: "Product " + sku, Price: 10}
	if len(catIDs) > 0 {
		parts := make([]any, len(catIDs))
		for i, id := range catIDs {
			parts[i] = strconv.FormatInt(id, 10)
		}
		p.CustomAttributes = []commerce.CustomAttribute{
			{AttributeCode: "category_ids", Value: parts},
		}
	}
	return p
}

func allPasses() config.ResolvedOptions {
	return config.ResolvedOptions{
		Fields:            config.DefaultFields,
		Filename:          "products.csv",
		IncludeInventory:  true,
		IncludeCategories: true,
	}
}

func TestEnrich_QuantitiesSummedAcrossSources(t *testing.T) {
	api := &fakeAPI{
		items: map[string][]commerce.SourceItem{
			"SKU-1": {
				{SKU: "SKU-1", SourceCode: "default", Quantity: 10},
				{SKU: "SKU-1", SourceCode: "warehouse", Quantity: 5.5},
			},
			"SKU-2": {
				{SKU: "SKU-2", SourceCode: "default", Quantity: 0},
			},
		},
	}
	e := newTestEnricher(api, cache.NewMemory())

	products, stats, err := e.Enrich(context.Background(), []commerce.RawProduct{
		testProduct("SKU-1"),
		testProduct("SKU-2"),
		testProduct("SKU-3"),
	}, allPasses())
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	if products[0].Quantity == nil || *products[0].Quantity != 15.5 {
		t.Errorf("SKU-1 quantity = %v, want 15.5 (summed across sources)", products[0].Quantity)
	}
	if products[1].Quantity == nil || *products[1].Quantity != 0 {
		t.Errorf("SKU-2 quantity = %v, want 0", products[1].Quantity)
	}
	if products[2].Quantity != nil {
		t.Errorf("SKU-3 quantity = %v, want nil (no source items)", *products[2].Quantity)
	}
	if stats.QuantityMissing != 1 {
		t.Errorf("QuantityMissing = %d, want 1", stats.QuantityMissing)
	}
	if stats.Warnings != 1 {
		t.Errorf("Warnings = %d, want 1", stats.Warnings)
	}
}

func TestEnrich_FailedInventoryBatchDegrades(t *testing.T) {
	api := &fakeAPI{
		items:    map[string][]commerce.SourceItem{},
		failSKUs: map[string]bool{},
	}
	// Batch size 2: SKU-0..3 form two batches. Poison the second batch.
	var products []commerce.RawProduct
	for i := 0; i < 4; i++ {
		sku := fmt.Sprintf("SKU-%d", i)
		products = append(products, testProduct(sku))
		api.items[sku] = []commerce.SourceItem{{SKU: sku, SourceCode: "default", Quantity: 1}}
	}
	api.failSKUs["SKU-2"] = true

	e := newTestEnricher(api, cache.NewMemory())

	enriched, stats, err := e.Enrich(context.Background(), products, allPasses())
	if err != nil {
		t.Fatalf("Enrich() error = %v, want degraded success", err)
	}

	if len(enriched) != 4 {
		t.Fatalf("len(enriched) = %d, want 4 (no rows dropped)", len(enriched))
	}
	for _, i := range []int{0, 1} {
		if enriched[i].Quantity == nil {
			t.Errorf("%s quantity = nil, want 1 (batch succeeded)", enriched[i].SKU)
		}
	}
	for _, i := range []int{2, 3} {
		if enriched[i].Quantity != nil {
			t.Errorf("%s quantity = %v, want nil (batch failed)", enriched[i].SKU, *enriched[i].Quantity)
		}
	}
	if stats.QuantityMissing != 2 {
		t.Errorf("QuantityMissing = %d, want 2", stats.QuantityMissing)
	}
	if stats.Warnings != 2 {
		t.Errorf("Warnings = %d, want 2", stats.Warnings)
	}
	if stats.InventoryBatches != 2 {
		t.Errorf("InventoryBatches = %d, want 2", stats.InventoryBatches)
	}
}

func TestEnrich_CategoryBreadcrumbs(t *testing.T) {
	api := &fakeAPI{
		cats: map[int64]commerce.Category{
			3:  {ID: 3, ParentID: 2, Name: "Gear", Path: "1/2/3", Level: 2},
			14: {ID: 14, ParentID: 3, Name: "Bags", Path: "1/2/3/14", Level: 3},
		},
	}
	e := newTestEnricher(api, cache.NewMemory())

	// Both ids referenced directly, so the first round covers every
	// ancestor and no backfill is needed.
	products, stats, err := e.Enrich(context.Background(), []commerce.RawProduct{
		testProduct("SKU-1", 3, 14),
	}, allPasses())
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	if len(products[0].Categories) != 2 {
		t.Fatalf("len(Categories) = %d, want 2", len(products[0].Categories))
	}
	if got := products[0].Categories[0].Breadcrumb; got != "Gear" {
		t.Errorf("Breadcrumb[0] = %q, want %q", got, "Gear")
	}
	leaf := products[0].Categories[1]
	if leaf.Name != "Bags" {
		t.Errorf("Name = %q, want %q", leaf.Name, "Bags")
	}
	if leaf.Breadcrumb != "Gear/Bags" {
		t.Errorf("Breadcrumb = %q, want %q (roots excluded, ancestors resolved)", leaf.Breadcrumb, "Gear/Bags")
	}
	if stats.CategoriesResolved != 2 {
		t.Errorf("CategoriesResolved = %d, want 2", stats.CategoriesResolved)
	}
	if api.categoryCalls != 1 {
		t.Errorf("category API calls = %d, want 1 (no backfill needed)", api.categoryCalls)
	}
}

func TestEnrich_AncestorBackfill(t *testing.T) {
	// Product references only the leaf; its Path names an ancestor (3) the
	// first round never requests. The backfill round must fetch it.
	api := &fakeAPI{
		cats: map[int64]commerce.Category{
			3:  {ID: 3, ParentID: 2, Name: "Gear", Path: "1/2/3", Level: 2},
			14: {ID: 14, ParentID: 3, Name: "Bags", Path: "1/2/3/14", Level: 3},
		},
	}
	e := newTestEnricher(api, cache.NewMemory())

	products, stats, err := e.Enrich(context.Background(), []commerce.RawProduct{
		testProduct("SKU-1", 14),
	}, allPasses())
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	if got := products[0].Categories[0].Breadcrumb; got != "Gear/Bags" {
		t.Errorf("Breadcrumb = %q, want %q (ancestor backfilled)", got, "Gear/Bags")
	}
	if api.categoryCalls != 2 {
		t.Errorf("category API calls = %d, want 2 (direct round + backfill round)", api.categoryCalls)
	}
	if stats.CategoryBatches != 2 {
		t.Errorf("CategoryBatches = %d, want 2", stats.CategoryBatches)
	}
}

func TestEnrich_UnresolvedCategoryCounted(t *testing.T) {
	api := &fakeAPI{
		items: map[string][]commerce.SourceItem{
			"SKU-1": {{SKU: "SKU-1", SourceCode: "default", Quantity: 3}},
		},
		cats: map[int64]commerce.Category{
			3: {ID: 3, ParentID: 2, Name: "Gear", Path: "1/2/3", Level: 2},
		},
	}
	e := newTestEnricher(api, cache.NewMemory())

	products, stats, err := e.Enrich(context.Background(), []commerce.RawProduct{
		testProduct("SKU-1", 3, 999),
	}, allPasses())
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	if len(products[0].Categories) != 1 {
		t.Errorf("len(Categories) = %d, want 1 (999 unresolved)", len(products[0].Categories))
	}
	if stats.Unresolved != 1 {
		t.Errorf("Unresolved = %d, want 1", stats.Unresolved)
	}
	if stats.CategoriesResolved != 1 {
		t.Errorf("CategoriesResolved = %d, want 1", stats.CategoriesResolved)
	}
	if stats.Warnings != 1 {
		t.Errorf("Warnings = %d, want 1", stats.Warnings)
	}
}

func TestEnrich_CategoryCacheServesSecondRun(t *testing.T) {
	api := &fakeAPI{
		cats: map[int64]commerce.Category{
			3: {ID: 3, ParentID: 2, Name: "Gear", Path: "1/2/3", Level: 2},
		},
	}
	store := cache.NewMemory()
	e := newTestEnricher(api, store)
	input := []commerce.RawProduct{testProduct("SKU-1", 3)}

	_, first, err := e.Enrich(context.Background(), input, allPasses())
	if err != nil {
		t.Fatalf("first Enrich() error = %v", err)
	}
	if first.CacheHit {
		t.Error("first run CacheHit = true, want false")
	}
	callsAfterFirst := api.categoryCalls

	products, second, err := e.Enrich(context.Background(), input, allPasses())
	if err != nil {
		t.Fatalf("second Enrich() error = %v", err)
	}
	if !second.CacheHit {
		t.Error("second run CacheHit = false, want true")
	}
	if api.categoryCalls != callsAfterFirst {
		t.Errorf("category API calls = %d, want %d (cache must serve the second run)", api.categoryCalls, callsAfterFirst)
	}
	if got := products[0].Categories[0].Name; got != "Gear" {
		t.Errorf("cached resolution Name = %q, want %q", got, "Gear")
	}
}

func TestEnrich_CacheMissingIDsTriggersRebuild(t *testing.T) {
	api := &fakeAPI{
		cats: map[int64]commerce.Category{
			3: {ID: 3, ParentID: 2, Name: "Gear", Path: "1/2/3", Level: 2},
			5: {ID: 5, ParentID: 2, Name: "Training", Path: "1/2/5", Level: 2},
		},
	}
	store := cache.NewMemory()
	e := newTestEnricher(api, store)

	if _, _, err := e.Enrich(context.Background(), []commerce.RawProduct{testProduct("SKU-1", 3)}, allPasses()); err != nil {
		t.Fatalf("first Enrich() error = %v", err)
	}

	// Second run needs id 5 which the cached map does not cover.
	_, stats, err := e.Enrich(context.Background(), []commerce.RawProduct{testProduct("SKU-2", 5)}, allPasses())
	if err != nil {
		t.Fatalf("second Enrich() error = %v", err)
	}
	if stats.CacheHit {
		t.Error("CacheHit = true, want false (cached map does not cover run's ids)")
	}
	if stats.CategoriesResolved != 1 {
		t.Errorf("CategoriesResolved = %d, want 1", stats.CategoriesResolved)
	}
}

func TestEnrich_CorruptCacheRebuilt(t *testing.T) {
	api := &fakeAPI{
		cats: map[int64]commerce.Category{
			3: {ID: 3, ParentID: 2, Name: "Gear", Path: "1/2/3", Level: 2},
		},
	}
	store := cache.NewMemory()
	key := cache.Key("categories", map[string]string{"fingerprint": "fp-test"})
	if err := store.Set(context.Background(), key, []byte("{not json"), time.Minute); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	e := newTestEnricher(api, store)
	products, stats, err := e.Enrich(context.Background(), []commerce.RawProduct{testProduct("SKU-1", 3)}, allPasses())
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if stats.CacheHit {
		t.Error("CacheHit = true, want false (corrupt entry is a miss)")
	}
	if got := products[0].Categories[0].Name; got != "Gear" {
		t.Errorf("Name = %q, want %q", got, "Gear")
	}
}

func TestEnrich_SkipsPassesPerOptions(t *testing.T) {
	api := &fakeAPI{
		items: map[string][]commerce.SourceItem{
			"SKU-1": {{SKU: "SKU-1", SourceCode: "default", Quantity: 7}},
		},
		cats: map[int64]commerce.Category{
			3: {ID: 3, ParentID: 2, Name: "Gear", Path: "1/2/3", Level: 2},
		},
	}
	e := newTestEnricher(api, cache.NewMemory())

	opts := allPasses()
	opts.IncludeInventory = false
	opts.IncludeCategories = false

	products, stats, err := e.Enrich(context.Background(), []commerce.RawProduct{testProduct("SKU-1", 3)}, opts)
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}

	if api.inventoryCalls != 0 || api.categoryCalls != 0 {
		t.Errorf("API calls = %d/%d, want 0/0 (both passes skipped)", api.inventoryCalls, api.categoryCalls)
	}
	if products[0].Quantity != nil || products[0].Categories != nil {
		t.Error("skipped passes must leave enrichment fields empty")
	}
	if stats.QuantityMissing != 0 || stats.Warnings != 0 {
		t.Errorf("skipped passes must not count warnings, got QuantityMissing=%d Warnings=%d", stats.QuantityMissing, stats.Warnings)
	}
}

func TestEnrich_CancelledContextAborts(t *testing.T) {
	api := &fakeAPI{items: map[string][]commerce.SourceItem{}}
	e := newTestEnricher(api, cache.NewMemory())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var products []commerce.RawProduct
	for i := 0; i < 10; i++ {
		products = append(products, testProduct(fmt.Sprintf("SKU-%d", i)))
	}

	if _, _, err := e.Enrich(ctx, products, allPasses()); !errors.Is(err, context.Canceled) {
		t.Errorf("Enrich() error = %v, want context.Canceled", err)
	}
}

func TestEnrich_EmptyInput(t *testing.T) {
	api := &fakeAPI{}
	e := newTestEnricher(api, cache.NewMemory())

	products, stats, err := e.Enrich(context.Background(), nil, allPasses())
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if len(products) != 0 {
		t.Errorf("len(products) = %d, want 0", len(products))
	}
	if stats.ProductsEnriched != 0 {
		t.Errorf("ProductsEnriched = %d, want 0", stats.ProductsEnriched)
	}
	if api.inventoryCalls != 0 {
		t.Errorf("inventoryCalls = %d, want 0", api.inventoryCalls)
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		size  int
		want  [][]string
	}{
		{
			name:  "even split",
			items: []string{"a", "b", "c", "d"},
			size:  2,
			want:  [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name:  "remainder batch",
			items: []string{"a", "b", "c"},
			size:  2,
			want:  [][]string{{"a", "b"}, {"c"}},
		},
		{
			name:  "single oversized batch",
			items: []string{"a", "b"},
			size:  50,
			want:  [][]string{{"a", "b"}},
		},
		{
			name:  "empty input",
			items: nil,
			size:  2,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunk(tt.items, tt.size)
			if len(got) != len(tt.want) {
				t.Fatalf("chunk() produced %d batches, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if len(got[i]) != len(tt.want[i]) {
					t.Errorf("batch[%d] len = %d, want %d", i, len(got[i]), len(tt.want[i]))
					continue
				}
				for j := range got[i] {
					if got[i][j] != tt.want[i][j] {
						t.Errorf("batch[%d][%d] = %q, want %q", i, j, got[i][j], tt.want[i][j])
					}
				}
			}
		})
	}
}
