// Package transform flattens enriched products into export rows. The mapping
// is pure and total: malformed or missing inputs degrade to empty cells, so a
// transform never fails a run.
package transform

import (
	"sort"
	"strconv"
	"strings"

	"github.com/skukla/kukla-integration-service-sub006/pkg/commerce"
	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
	"github.com/skukla/kukla-integration-service-sub006/pkg/enrich"
)

// listSeparator joins multiple values inside one cell. The CSV layer quotes
// the cell, so the separator survives round-trips.
const listSeparator = ","

// Record is one flat export row. Every value is already formatted for CSV
// output; Qty is the empty string when the quantity was unresolved.
type Record struct {
	SKU        string
	Name       string
	Price      string
	Qty        string
	Categories string
	Images     string
}

// Cell returns the formatted value for a column name. Unknown columns map to
// an empty cell.
func (r Record) Cell(field string) string {
	switch field {
	case config.FieldSKU:
		return r.SKU
	case config.FieldName:
		return r.Name
	case config.FieldPrice:
		return r.Price
	case config.FieldQty:
		return r.Qty
	case config.FieldCategories:
		return r.Categories
	case config.FieldImages:
		return r.Images
	default:
		return ""
	}
}

// Cells projects the record onto the selected columns, in selection order.
func (r Record) Cells(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = r.Cell(f)
	}
	return out
}

// Header returns the CSV header row for a field selection.
func Header(fields []string) []string {
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// Transformer flattens enriched products. It carries the media base URL used
// to absolutize gallery file paths.
type Transformer struct {
	mediaURL string
}

// New creates a transformer. mediaURL is the Commerce media base, e.g.
// https://shop.example.com/media/catalog/product.
func New(mediaURL string) *Transformer {
	return &Transformer{mediaURL: strings.TrimRight(mediaURL, "/")}
}

// Transform maps products to records, preserving input order. One record per
// product, always.
func (t *Transformer) Transform(products []enrich.Product) []Record {
	out := make([]Record, len(products))
	for i := range products {
		out[i] = t.record(&products[i])
	}
	return out
}

func (t *Transformer) record(p *enrich.Product) Record {
	return Record{
		SKU:        p.SKU,
		Name:       p.Name,
		Price:      strconv.FormatFloat(p.Price, 'f', 2, 64),
		Qty:        formatQty(p.Quantity),
		Categories: joinCategories(p.Categories),
		Images:     t.joinImages(p.MediaGalleryEntries),
	}
}

func formatQty(q *float64) string {
	if q == nil {
		return ""
	}
	return strconv.FormatFloat(*q, 'f', -1, 64)
}

func joinCategories(paths []enrich.CategoryPath) string {
	if len(paths) == 0 {
		return ""
	}
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		value := p.Breadcrumb
		if value == "" {
			value = p.Name
		}
		if value == "" {
			continue
		}
		parts = append(parts, value)
	}
	return strings.Join(parts, listSeparator)
}

// joinImages absolutizes gallery file paths and orders them primary-first.
// An entry is primary when its types include "image" (the base image role).
// Disabled entries and entries without a file are skipped.
func (t *Transformer) joinImages(gallery []commerce.MediaGalleryEntry) string {
	type candidate struct {
		url      string
		primary  bool
		position int
	}

	cands := make([]candidate, 0, len(gallery))
	for _, entry := range gallery {
		if entry.Disabled || entry.File == "" {
			continue
		}
		cands = append(cands, candidate{
			url:      t.imageURL(entry.File),
			primary:  hasImageRole(entry.Types),
			position: entry.Position,
		})
	}
	if len(cands) == 0 {
		return ""
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].primary != cands[j].primary {
			return cands[i].primary
		}
		return cands[i].position < cands[j].position
	})

	urls := make([]string, len(cands))
	for i, c := range cands {
		urls[i] = c.url
	}
	return strings.Join(urls, listSeparator)
}

// imageURL joins a gallery file path onto the media base. Entries that
// already carry an absolute URL are passed through.
func (t *Transformer) imageURL(file string) string {
	if strings.HasPrefix(file, "http://") || strings.HasPrefix(file, "https://") {
		return file
	}
	return t.mediaURL + "/" + strings.TrimLeft(file, "/")
}

func hasImageRole(types []string) bool {
	for _, role := range types {
		if role == "image" {
			return true
		}
	}
	return false
}
