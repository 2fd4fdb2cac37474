package commerce

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
)

// Paginator walks the product catalog page by page. Pages are fetched
// sequentially so the accumulated order is stable; any page failing after
// retries aborts the whole fetch (a partial catalog never continues
// downstream).
type Paginator struct {
	client   *Client
	pageSize int
	maxPages int
	logger   zerolog.Logger
}

// NewPaginator creates a paginator from validated configuration.
func NewPaginator(client *Client, cfg config.ProductsConfig, logger zerolog.Logger) *Paginator {
	return &Paginator{
		client:   client,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		logger:   logger,
	}
}

// FetchAll accumulates the full catalog. The fetch stops when the reported
// total is reached, a page comes back empty, or the page ceiling is hit; the
// ceiling stop marks the result Truncated and logs a warning rather than
// failing.
func (p *Paginator) FetchAll(ctx context.Context) (*ProductSet, error) {
	set := &ProductSet{}

	for page := 1; ; page++ {
		pg, err := p.client.ListProducts(ctx, page, p.pageSize)
		if err != nil {
			return nil, &FetchError{Page: page, Fetched: len(set.Products), Err: err}
		}

		set.Products = append(set.Products, pg.Items...)
		set.TotalCount = pg.TotalCount
		set.Pages = page

		p.logger.Debug().
			Int("page", page).
			Int("page_items", len(pg.Items)).
			Int("accumulated", len(set.Products)).
			Int("total_count", pg.TotalCount).
			Msg("Fetched catalog page")

		// Defensive stop: an empty page means the upstream has nothing more
		// regardless of what total_count claims.
		if len(pg.Items) == 0 {
			break
		}
		if len(set.Products) >= pg.TotalCount {
			break
		}
		if page >= p.maxPages {
			set.Truncated = true
			p.logger.Warn().
				Int("max_pages", p.maxPages).
				Int("accumulated", len(set.Products)).
				Int("total_count", pg.TotalCount).
				Msg("Page ceiling reached, catalog truncated")
			break
		}
	}

	p.logger.Info().
		Int("products", len(set.Products)).
		Int("pages", set.Pages).
		Bool("truncated", set.Truncated).
		Msg("Catalog fetch complete")

	return set, nil
}
