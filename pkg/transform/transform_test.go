package transform

import (
	"reflect"
	"testing"

	"github.com/skukla/kukla-integration-service-sub006/pkg/commerce"
	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
	"github.com/skukla/kukla-integration-service-sub006/pkg/enrich"
)

const testMediaURL = "https://shop.example.com/media/catalog/product"

func qty(v float64) *float64 { return &v }

func TestTransform_Record(t *testing.T) {
	tr := New(testMediaURL)

	products := []enrich.Product{
		{
			RawProduct: commerce.RawProduct{
				SKU:   "24-MB01",
				Name:  "Joust Duffle Bag",
				Price: 34,
				MediaGalleryEntries: []commerce.MediaGalleryEntry{
					{File: "/m/b/mb01.jpg", Types: []string{"image", "small_image"}, Position: 2},
				},
			},
			Quantity: qty(100),
			Categories: []enrich.CategoryPath{
				{ID: 14, Name: "Bags", Breadcrumb: "Gear/Bags"},
			},
		},
	}

	got := tr.Transform(products)
	if len(got) != 1 {
		t.Fatalf("Transform() produced %d records, want 1", len(got))
	}

	want := Record{
		SKU:        "24-MB01",
		Name:       "Joust Duffle Bag",
		Price:      "34.00",
		Qty:        "100",
		Categories: "Gear/Bags",
		Images:     testMediaURL + "/m/b/mb01.jpg",
	}
	if got[0] != want {
		t.Errorf("Transform()[0] = %+v, want %+v", got[0], want)
	}
}

func TestTransform_PriceFormatting(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		want  string
	}{
		{name: "whole number", price: 34, want: "34.00"},
		{name: "one decimal", price: 12.5, want: "12.50"},
		{name: "two decimals", price: 9.99, want: "9.99"},
		{name: "zero", price: 0, want: "0.00"},
	}

	tr := New(testMediaURL)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.Transform([]enrich.Product{{RawProduct: commerce.RawProduct{Price: tt.price}}})
			if got[0].Price != tt.want {
				t.Errorf("Price = %q, want %q", got[0].Price, tt.want)
			}
		})
	}
}

func TestTransform_QtyFormatting(t *testing.T) {
	tests := []struct {
		name string
		qty  *float64
		want string
	}{
		{name: "absent quantity is empty cell", qty: nil, want: ""},
		{name: "whole quantity", qty: qty(100), want: "100"},
		{name: "fractional quantity", qty: qty(5.5), want: "5.5"},
		{name: "zero quantity", qty: qty(0), want: "0"},
	}

	tr := New(testMediaURL)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.Transform([]enrich.Product{{Quantity: tt.qty}})
			if got[0].Qty != tt.want {
				t.Errorf("Qty = %q, want %q", got[0].Qty, tt.want)
			}
		})
	}
}

func TestTransform_ImageOrdering(t *testing.T) {
	tr := New(testMediaURL)

	products := []enrich.Product{{
		RawProduct: commerce.RawProduct{
			MediaGalleryEntries: []commerce.MediaGalleryEntry{
				{File: "/g/a/gallery2.jpg", Position: 3},
				{File: "/d/i/disabled.jpg", Position: 0, Disabled: true},
				{File: "/b/a/base.jpg", Position: 5, Types: []string{"image"}},
				{File: "/g/a/gallery1.jpg", Position: 1},
				{File: "", Position: 0},
			},
		},
	}}

	got := tr.Transform(products)[0].Images
	want := testMediaURL + "/b/a/base.jpg," +
		testMediaURL + "/g/a/gallery1.jpg," +
		testMediaURL + "/g/a/gallery2.jpg"
	if got != want {
		t.Errorf("Images = %q, want %q (primary first, then by position, disabled and empty skipped)", got, want)
	}
}

func TestTransform_AbsoluteImageURLPassthrough(t *testing.T) {
	tr := New(testMediaURL)

	products := []enrich.Product{{
		RawProduct: commerce.RawProduct{
			MediaGalleryEntries: []commerce.MediaGalleryEntry{
				{File: "https://cdn.example.com/img/full.jpg", Position: 1},
			},
		},
	}}

	got := tr.Transform(products)[0].Images
	if got != "https://cdn.example.com/img/full.jpg" {
		t.Errorf("Images = %q, want absolute URL passed through", got)
	}
}

func TestTransform_MultipleCategories(t *testing.T) {
	tr := New(testMediaURL)

	products := []enrich.Product{{
		Categories: []enrich.CategoryPath{
			{ID: 14, Name: "Bags", Breadcrumb: "Gear/Bags"},
			{ID: 5, Name: "Training", Breadcrumb: ""},
		},
	}}

	got := tr.Transform(products)[0].Categories
	if got != "Gear/Bags,Training" {
		t.Errorf("Categories = %q, want %q (empty breadcrumb falls back to name)", got, "Gear/Bags,Training")
	}
}

func TestTransform_EmptyProductDegrades(t *testing.T) {
	tr := New(testMediaURL)

	got := tr.Transform([]enrich.Product{{}})[0]
	want := Record{Price: "0.00"}
	if got != want {
		t.Errorf("Transform(zero product) = %+v, want %+v", got, want)
	}
}

func TestTransform_PreservesOrder(t *testing.T) {
	tr := New(testMediaURL)

	products := make([]enrich.Product, 5)
	for i := range products {
		products[i] = enrich.Product{RawProduct: commerce.RawProduct{SKU: string(rune('A' + i))}}
	}

	got := tr.Transform(products)
	for i := range got {
		if got[i].SKU != string(rune('A'+i)) {
			t.Errorf("record[%d].SKU = %q, want %q", i, got[i].SKU, string(rune('A'+i)))
		}
	}
}

func TestRecord_Cells(t *testing.T) {
	r := Record{
		SKU:        "24-MB01",
		Name:       "Joust Duffle Bag",
		Price:      "34.00",
		Qty:        "100",
		Categories: "Gear/Bags",
		Images:     "https://cdn.example.com/a.jpg",
	}

	tests := []struct {
		name   string
		fields []string
		want   []string
	}{
		{
			name:   "default selection",
			fields: config.DefaultFields,
			want:   []string{"24-MB01", "Joust Duffle Bag", "34.00", "100", "Gear/Bags", "https://cdn.example.com/a.jpg"},
		},
		{
			name:   "subset reordered",
			fields: []string{"name", "sku"},
			want:   []string{"Joust Duffle Bag", "24-MB01"},
		},
		{
			name:   "unknown column is empty",
			fields: []string{"sku", "bogus"},
			want:   []string{"24-MB01", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Cells(tt.fields); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Cells(%v) = %v, want %v", tt.fields, got, tt.want)
			}
		})
	}
}

func TestHeader(t *testing.T) {
	fields := []string{"sku", "price"}
	got := Header(fields)

	if !reflect.DeepEqual(got, fields) {
		t.Fatalf("Header() = %v, want %v", got, fields)
	}

	// Header must return a copy, not the caller's slice.
	got[0] = "mutated"
	if fields[0] != "sku" {
		t.Error("Header() shares the caller's backing array")
	}
}
