// Package commerce provides a resilient client for the Adobe Commerce REST
// API: token acquisition, retrying HTTP transport with per-source connection
// pools, and paged catalog access.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
)

// REST paths used by the client.
const (
	productsPath    = "/rest/all/V1/products"
	sourceItemsPath = "/rest/all/V1/inventory/source-items"
	categoriesPath  = "/rest/all/V1/categories/list"
)

// productFields trims catalog responses to the attributes the export needs.
const productFields = "items[id,sku,name,price,status,type_id,attribute_set_id," +
	"created_at,updated_at,custom_attributes,media_gallery_entries],total_count"

// maxErrorBody bounds how much of an error response body is kept on HTTPError.
const maxErrorBody = 512

// Prometheus metrics for Commerce client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_export_requests_total",
		Help: "Total Commerce API requests by source and status",
	}, []string{"source", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commerce_export_request_duration_seconds",
		Help:    "Commerce API request duration in seconds by source",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_export_upstream_errors_total",
		Help: "Total Commerce API errors by class",
	}, []string{"class"})
)

// Client is the Commerce REST API client. All requests run under one shared
// retry policy; each logical source gets its own bounded connection pool.
type Client struct {
	baseURL string
	tokens  TokenProvider
	retry   RetryPolicy
	pools   map[Source]*http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewClient creates a Commerce client from validated configuration.
func NewClient(cfg *config.Config, tokens TokenProvider, logger zerolog.Logger) *Client {
	pools := make(map[Source]*http.Client, 3)
	for _, source := range []Source{SourceProducts, SourceInventory, SourceCategories} {
		pools[source] = newPooledClient(cfg.HTTP)
	}

	return &Client{
		baseURL: cfg.Commerce.BaseURL,
		tokens:  tokens,
		retry:   RetryPolicyFromConfig(cfg.HTTP),
		pools:   pools,
		timeout: cfg.HTTP.Timeout,
		logger:  logger,
	}
}

func newPooledClient(cfg config.HTTPConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxConnsPerHost:     cfg.MaxConnsPerSource,
			MaxIdleConnsPerHost: cfg.MaxConnsPerSource,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// ListProducts fetches one catalog page.
func (c *Client) ListProducts(ctx context.Context, page, pageSize int) (*ProductPage, error) {
	query := searchCriteria{pageSize: pageSize, currentPage: page}.values()
	query.Set("fields", productFields)

	var out ProductPage
	if err := c.getJSON(ctx, SourceProducts, productsPath, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSourceItems fetches the inventory records for a batch of SKUs. The
// result may hold multiple records per SKU, one per inventory source.
func (c *Client) ListSourceItems(ctx context.Context, skus []string) ([]SourceItem, error) {
	if len(skus) == 0 {
		return nil, nil
	}

	sc := searchCriteria{
		filters: []searchFilter{{
			field:     "sku",
			value:     strings.Join(skus, ","),
			condition: "in",
		}},
	}

	var out sourceItemsPage
	if err := c.getJSON(ctx, SourceInventory, sourceItemsPath, sc.values(), &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ListCategories fetches category metadata for a batch of category ids.
func (c *Client) ListCategories(ctx context.Context, ids []int64) ([]Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}

	sc := searchCriteria{
		filters: []searchFilter{{
			field:     "entity_id",
			value:     strings.Join(parts, ","),
			condition: "in",
		}},
	}

	var out categoriesPage
	if err := c.getJSON(ctx, SourceCategories, categoriesPath, sc.values(), &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// getJSON performs an authenticated GET under the retry policy and decodes
// the 2xx response body into out.
func (c *Client) getJSON(ctx context.Context, source Source, path string, query url.Values, out any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	}()

	var body []byte
	err := c.retry.Do(ctx, c.logger, func() error {
		var exchErr error
		body, exchErr = c.exchange(ctx, source, requestURL)
		return exchErr
	})
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", source, err)
	}
	return nil
}

// exchange performs a single authenticated request with at most one re-auth
// replay on 401. Returning an error hands the retry decision to the policy.
func (c *Client) exchange(ctx context.Context, source Source, requestURL string) ([]byte, error) {
	reauthed := false
	for {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.pools[source].Do(req)
		if err != nil {
			requestsTotal.WithLabelValues(string(source), "network_error").Inc()
			upstreamErrorsTotal.WithLabelValues(string(Classify(err))).Inc()
			if Classify(err) == ErrorClassTimeout {
				return nil, &TimeoutError{URL: requestURL, Timeout: c.timeout, Err: err}
			}
			return nil, fmt.Errorf("commerce request: %w", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized && !reauthed {
			// The cached token may have expired server side. Renew once and
			// replay; a second 401 is terminal.
			c.logger.Info().
				Str("source", string(source)).
				Msg("Token rejected, re-authenticating once")
			c.tokens.Invalidate()
			reauthed = true
			continue
		}

		requestsTotal.WithLabelValues(string(source), strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusUnauthorized {
			upstreamErrorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
			return nil, &AuthError{Mode: "bearer", Reason: "token rejected after re-authentication"}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			httpErr := &HTTPError{
				StatusCode: resp.StatusCode,
				URL:        requestURL,
				Body:       truncateBody(body),
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				httpErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			}
			upstreamErrorsTotal.WithLabelValues(string(httpErr.Class())).Inc()

			c.logger.Warn().
				Str("source", string(source)).
				Int("status", resp.StatusCode).
				Str("error_class", string(httpErr.Class())).
				Msg("Commerce request error")

			return nil, httpErr
		}

		if readErr != nil {
			return nil, fmt.Errorf("read response body: %w", readErr)
		}
		return body, nil
	}
}

// searchCriteria builds the nested query parameters the Commerce list
// endpoints expect. Each filter lands in its own group (groups combine with
// AND).
type searchCriteria struct {
	pageSize    int
	currentPage int
	filters     []searchFilter
}

type searchFilter struct {
	field     string
	value     string
	condition string
}

func (s searchCriteria) values() url.Values {
	v := url.Values{}
	if s.pageSize > 0 {
		v.Set("searchCriteria[pageSize]", strconv.Itoa(s.pageSize))
	}
	if s.currentPage > 0 {
		v.Set("searchCriteria[currentPage]", strconv.Itoa(s.currentPage))
	}
	for i, f := range s.filters {
		prefix := fmt.Sprintf("searchCriteria[filter_groups][%d][filters][0]", i)
		v.Set(prefix+"[field]", f.field)
		v.Set(prefix+"[value]", f.value)
		v.Set(prefix+"[condition_type]", f.condition)
	}
	return v
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
