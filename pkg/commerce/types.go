package commerce

import (
	"strconv"
	"strings"
)

// Source identifies the upstream surface a request belongs to. Each source
// gets its own connection pool and metric labels.
type Source string

const (
	// SourceProducts covers catalog page requests.
	SourceProducts Source = "products"

	// SourceInventory covers source-item (stock) lookups.
	SourceInventory Source = "inventory"

	// SourceCategories covers category metadata lookups.
	SourceCategories Source = "categories"
)

// RawProduct is a catalog item as returned by the Commerce products endpoint.
type RawProduct struct {
	ID                  int64               `json:"id"`
	SKU                 string              `json:"sku"`
	Name                string              `json:"name"`
	Price               float64             `json:"price"`
	Status              int                 `json:"status"`
	TypeID              string              `json:"type_id"`
	AttributeSetID      int                 `json:"attribute_set_id"`
	CreatedAt           string              `json:"created_at"`
	UpdatedAt           string              `json:"updated_at"`
	CustomAttributes    []CustomAttribute   `json:"custom_attributes"`
	MediaGalleryEntries []MediaGalleryEntry `json:"media_gallery_entries"`
}

// CustomAttribute is a loosely typed product attribute. Value shapes vary by
// attribute code (string, list of strings, number).
type CustomAttribute struct {
	AttributeCode string `json:"attribute_code"`
	Value         any    `json:"value"`
}

// MediaGalleryEntry describes one product image.
type MediaGalleryEntry struct {
	ID        int64    `json:"id"`
	MediaType string   `json:"media_type"`
	Label     string   `json:"label"`
	Position  int      `json:"position"`
	Disabled  bool     `json:"disabled"`
	Types     []string `json:"types"`
	File      string   `json:"file"`
}

// Attribute returns the raw value of the custom attribute with the given
// code, or nil when absent.
func (p *RawProduct) Attribute(code string) any {
	for _, attr := range p.CustomAttributes {
		if attr.AttributeCode == code {
			return attr.Value
		}
	}
	return nil
}

// CategoryIDs extracts the product's category id list from the category_ids
// custom attribute. Commerce serializes it as a list of strings, but single
// string and comma-joined forms appear on older instances, so all three are
// accepted. Unparseable entries are dropped.
func (p *RawProduct) CategoryIDs() []int64 {
	raw := p.Attribute("category_ids")
	if raw == nil {
		return nil
	}

	var parts []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	case []string:
		parts = v
	case string:
		parts = strings.Split(v, ",")
	}

	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// SourceItem is one inventory record: the quantity of a SKU at one source.
type SourceItem struct {
	SKU        string  `json:"sku"`
	SourceCode string  `json:"source_code"`
	Quantity   float64 `json:"quantity"`
	Status     int     `json:"status"`
}

// Category is category metadata as returned by the categories list endpoint.
// Path is the slash-separated ancestor id chain, e.g. "1/2/5/14".
type Category struct {
	ID       int64  `json:"id"`
	ParentID int64  `json:"parent_id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Level    int    `json:"level"`
	Position int    `json:"position"`
	IsActive bool   `json:"is_active"`
}

// PathIDs parses Path into the ordered ancestor id chain, including the
// category's own id as the last element.
func (c *Category) PathIDs() []int64 {
	if c.Path == "" {
		return nil
	}
	parts := strings.Split(c.Path, "/")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// ProductPage is one page of the catalog listing.
type ProductPage struct {
	Items      []RawProduct `json:"items"`
	TotalCount int          `json:"total_count"`
}

// ProductSet is the accumulated result of a full catalog fetch.
type ProductSet struct {
	Products   []RawProduct
	TotalCount int
	Pages      int

	// Truncated is set when the page ceiling stopped the fetch before the
	// full catalog was read.
	Truncated bool
}

type sourceItemsPage struct {
	Items      []SourceItem `json:"items"`
	TotalCount int          `json:"total_count"`
}

type categoriesPage struct {
	Items      []Category `json:"items"`
	TotalCount int        `json:"total_count"`
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
