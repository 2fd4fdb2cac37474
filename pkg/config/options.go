package config

import (
	"fmt"
	"strings"
)

// Export field names accepted in a field selection.
const (
	FieldSKU        = "sku"
	FieldName       = "name"
	FieldPrice      = "price"
	FieldQty        = "qty"
	FieldCategories = "categories"
	FieldImages     = "images"
)

// DefaultFields is the full export column set, in output order.
var DefaultFields = []string{
	FieldSKU, FieldName, FieldPrice, FieldQty, FieldCategories, FieldImages,
}

var knownFields = map[string]bool{
	FieldSKU:        true,
	FieldName:       true,
	FieldPrice:      true,
	FieldQty:        true,
	FieldCategories: true,
	FieldImages:     true,
}

// ExportOptions carries per-run overrides supplied by the caller of an
// export action. Zero values mean "use configured defaults".
type ExportOptions struct {
	// Fields selects and orders the export columns. Empty means the
	// configured default set.
	Fields []string `json:"fields,omitempty"`

	// Filename overrides the artifact name for this run.
	Filename string `json:"filename,omitempty"`

	// IncludeInventory and IncludeCategories skip an enrichment pass when
	// set to false. Nil means true.
	IncludeInventory  *bool `json:"includeInventory,omitempty"`
	IncludeCategories *bool `json:"includeCategories,omitempty"`
}

// Validate rejects unknown fields and unsafe filenames.
func (o *ExportOptions) Validate() error {
	if err := ValidateFields(o.Fields); err != nil {
		return err
	}
	if o.Filename != "" {
		if err := ValidateFilename(o.Filename); err != nil {
			return err
		}
	}
	return nil
}

// Resolve merges the options with configured defaults into the effective
// per-run values.
func (o *ExportOptions) Resolve(cfg *Config) ResolvedOptions {
	r := ResolvedOptions{
		Fields:            cfg.Export.Fields,
		Filename:          cfg.Export.Filename,
		IncludeInventory:  true,
		IncludeCategories: true,
	}
	if len(o.Fields) > 0 {
		r.Fields = o.Fields
	}
	if o.Filename != "" {
		r.Filename = o.Filename
	}
	if o.IncludeInventory != nil {
		r.IncludeInventory = *o.IncludeInventory
	}
	if o.IncludeCategories != nil {
		r.IncludeCategories = *o.IncludeCategories
	}

	// An enrichment pass whose columns are not exported is skipped outright.
	if !fieldSelected(r.Fields, FieldQty) {
		r.IncludeInventory = false
	}
	if !fieldSelected(r.Fields, FieldCategories) {
		r.IncludeCategories = false
	}
	return r
}

// ResolvedOptions are the effective per-run settings after merging
// ExportOptions with the configured defaults.
type ResolvedOptions struct {
	Fields            []string
	Filename          string
	IncludeInventory  bool
	IncludeCategories bool
}

// ValidateFields checks a field selection against the known column set.
// An empty selection is valid and means the default set.
func ValidateFields(fields []string) error {
	for _, f := range fields {
		if !knownFields[f] {
			return fmt.Errorf("unknown export field %q (known: %s)", f, strings.Join(DefaultFields, ", "))
		}
	}
	return nil
}

// ValidateFilename rejects names that would escape the storage prefix.
func ValidateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename must not be empty")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("filename %q must be a flat name without path separators", name)
	}
	return nil
}

func fieldSelected(fields []string, want string) bool {
	for _, f := range fields {
		if f == want {
			return true
		}
	}
	return false
}
