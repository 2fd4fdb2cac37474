// Package testutil provides in-memory fakes for the upstream systems the
// integration service talks to: the Commerce REST API and both object
// storage backends.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Commerce REST paths the fixtures serve.
const (
	TokenPath       = "/rest/all/V1/integration/admin/token"
	ProductsPath    = "/rest/all/V1/products"
	SourceItemsPath = "/rest/all/V1/inventory/source-items"
	CategoriesPath  = "/rest/all/V1/categories/list"
)

// MockCommerce is a configurable fake Commerce instance for testing.
type MockCommerce struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	pathCounts        map[string]int
}

// NewMockCommerce creates a fake Commerce server with no routes configured.
// Unrouted paths return the Commerce-style 404 payload.
func NewMockCommerce() *MockCommerce {
	mock := &MockCommerce{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.pathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Request does not match any route."}`))
	}))

	return mock
}

// URL returns the fake server URL.
func (m *MockCommerce) URL() string {
	return m.server.URL
}

// Close shuts down the fake server.
func (m *MockCommerce) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCommerce) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.pathCounts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCommerce) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCommerce) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// PathCount returns the number of requests made to one path.
func (m *MockCommerce) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// ServeCatalog wires the token, products, inventory and categories routes
// for a synthetic catalog of total products. The zero CatalogOptions serves
// a fully healthy upstream.
func (m *MockCommerce) ServeCatalog(total int, opts CatalogOptions) {
	if opts.Token == "" {
		opts.Token = "test-admin-token"
	}
	if opts.Quantity == 0 {
		opts.Quantity = 100
	}
	m.SetHandler(TokenPath, TokenHandler(opts.Token))
	m.SetHandler(ProductsPath, ProductsHandler(total, opts.FailProductsPage))
	m.SetHandler(SourceItemsPath, SourceItemsHandler(opts.Quantity, opts.FailInventorySKU))
	m.SetHandler(CategoriesPath, CategoriesHandler(opts.FailCategories))
}

// CatalogOptions tunes the synthetic catalog fixtures.
type CatalogOptions struct {
	// Token is the admin token the token route issues.
	Token string

	// Quantity is the source quantity every SKU reports.
	Quantity float64

	// FailProductsPage makes that products page return 500. Zero disables.
	FailProductsPage int

	// FailInventorySKU makes any inventory batch containing the SKU return
	// 500. Empty disables.
	FailInventorySKU string

	// FailCategories makes every categories request return 500.
	FailCategories bool
}

// TokenHandler issues the admin token as a bare JSON string, the shape the
// Commerce integration token endpoint uses.
func TokenHandler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(strconv.Quote(token)))
	}
}

// ProductsHandler serves a synthetic catalog of total products partitioned
// by the request's searchCriteria. Requests for failPage return 500. SKUs
// run SKU-0001..SKU-NNNN; every product belongs to category 14 and carries
// one base image.
func ProductsHandler(total, failPage int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pageSize, _ := strconv.Atoi(q.Get("searchCriteria[pageSize]"))
		page, _ := strconv.Atoi(q.Get("searchCriteria[currentPage]"))
		if pageSize < 1 || page < 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message": "invalid searchCriteria"}`))
			return
		}
		if page == failPage {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message": "Internal Server Error"}`))
			return
		}

		start := (page - 1) * pageSize
		end := start + pageSize
		if start > total {
			start = total
		}
		if end > total {
			end = total
		}

		items := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			items = append(items, syntheticProduct(i+1))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":       items,
			"total_count": total,
		})
	}
}

func syntheticProduct(n int) map[string]any {
	sku := fmt.Sprintf("SKU-%04d", n)
	return map[string]any{
		"id":     n,
		"sku":    sku,
		"name":   fmt.Sprintf("Test Product %d", n),
		"price":  float64(n) + 0.99,
		"status": 1,
		"custom_attributes": []map[string]any{
			{"attribute_code": "category_ids", "value": []string{"14"}},
		},
		"media_gallery_entries": []map[string]any{
			{
				"id":       n,
				"file":     fmt.Sprintf("/t/p/%s.jpg", strings.ToLower(sku)),
				"types":    []string{"image"},
				"position": 1,
			},
		},
	}
}

// SourceItemsHandler answers inventory batches with one source item per
// requested SKU at the given quantity. Batches containing failSKU return
// 500, simulating a poisoned batch that exhausts its retries.
func SourceItemsHandler(quantity float64, failSKU string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skus := filterValues(r)
		if failSKU != "" {
			for _, sku := range skus {
				if sku == failSKU {
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"message": "Internal Server Error"}`))
					return
				}
			}
		}

		items := make([]map[string]any, 0, len(skus))
		for _, sku := range skus {
			items = append(items, map[string]any{
				"sku":         sku,
				"source_code": "default",
				"quantity":    quantity,
				"status":      1,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":       items,
			"total_count": len(items),
		})
	}
}

// DefaultCategoryTree is the category fixture the synthetic catalog links
// to: Gear (3) containing Bags (14), under the standard roots.
var DefaultCategoryTree = []map[string]any{
	{"id": 3, "parent_id": 2, "name": "Gear", "path": "1/2/3", "level": 2, "is_active": true},
	{"id": 14, "parent_id": 3, "name": "Bags", "path": "1/2/3/14", "level": 3, "is_active": true},
}

// CategoriesHandler answers category batches from DefaultCategoryTree.
func CategoriesHandler(fail bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message": "Internal Server Error"}`))
			return
		}

		requested := make(map[string]bool)
		for _, id := range filterValues(r) {
			requested[id] = true
		}

		items := make([]map[string]any, 0, len(DefaultCategoryTree))
		for _, cat := range DefaultCategoryTree {
			id := fmt.Sprintf("%d", cat["id"])
			if requested[id] {
				items = append(items, cat)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":       items,
			"total_count": len(items),
		})
	}
}

// filterValues extracts the comma-joined values of the first searchCriteria
// filter, the form both batch endpoints use.
func filterValues(r *http.Request) []string {
	value := r.URL.Query().Get("searchCriteria[filter_groups][0][filters][0][value]")
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
