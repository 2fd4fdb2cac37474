package export

import (
	"bytes"
	"encoding/csv"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestExport_RoundTrip(t *testing.T) {
	header := []string{"sku", "name", "categories"}
	rows := [][]string{
		{"24-MB01", "Joust Duffle Bag", "Gear/Bags,Collections"},
		{"24-MB02", `Bag with "quotes"`, ""},
		{"24-MB03", "Multi\nline name", "Gear/Bags"},
	}

	artifact, err := Export(header, rows)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	r := csv.NewReader(bytes.NewReader(artifact.CSV))
	parsed, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parse emitted CSV: %v", err)
	}

	if !reflect.DeepEqual(parsed[0], header) {
		t.Errorf("parsed header = %v, want %v", parsed[0], header)
	}
	if len(parsed)-1 != len(rows) {
		t.Fatalf("parsed %d rows, want %d", len(parsed)-1, len(rows))
	}
	for i, row := range rows {
		if !reflect.DeepEqual(parsed[i+1], row) {
			t.Errorf("parsed row %d = %v, want %v (cells must survive quoting)", i, parsed[i+1], row)
		}
	}
}

func TestExport_HeaderOnlyWhenEmpty(t *testing.T) {
	artifact, err := Export([]string{"sku", "name"}, nil)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	got := strings.TrimRight(string(artifact.CSV), "\n")
	if got != "sku,name" {
		t.Errorf("empty export = %q, want header row only", got)
	}
	if artifact.Stats.Records != 0 {
		t.Errorf("Stats.Records = %d, want 0", artifact.Stats.Records)
	}
}

func TestExport_Stats(t *testing.T) {
	rows := make([][]string, 100)
	for i := range rows {
		rows[i] = []string{"24-MB01", "Joust Duffle Bag", "34.00"}
	}

	artifact, err := Export([]string{"sku", "name", "price"}, rows)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	stats := artifact.Stats
	if stats.Records != 100 {
		t.Errorf("Records = %d, want 100", stats.Records)
	}
	if stats.RawBytes != len(artifact.CSV) {
		t.Errorf("RawBytes = %d, want %d", stats.RawBytes, len(artifact.CSV))
	}
	if stats.CompressedBytes != len(artifact.Gzipped) {
		t.Errorf("CompressedBytes = %d, want %d", stats.CompressedBytes, len(artifact.Gzipped))
	}
	// Highly repetitive rows compress well.
	if stats.CompressedBytes >= stats.RawBytes {
		t.Errorf("CompressedBytes = %d, want < RawBytes %d", stats.CompressedBytes, stats.RawBytes)
	}
	if stats.SavedPct <= 0 || stats.SavedPct >= 100 {
		t.Errorf("SavedPct = %v, want in (0, 100)", stats.SavedPct)
	}
}

func TestExport_GzippedDecompressesToCSV(t *testing.T) {
	artifact, err := Export([]string{"sku"}, [][]string{{"24-MB01"}})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(artifact.Gzipped))
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	defer zr.Close()

	decompressed, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress artifact: %v", err)
	}
	if !bytes.Equal(decompressed, artifact.CSV) {
		t.Error("gzipped artifact does not decompress to the CSV bytes")
	}
}
