package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/skukla/kukla-integration-service-sub006/internal/testutil"
	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
	"github.com/skukla/kukla-integration-service-sub006/pkg/logging"
)

func newS3TestGateway(t *testing.T) Gateway {
	t.Helper()
	fake := testutil.NewFakeS3()
	t.Cleanup(fake.Close)

	g, err := New(config.StorageConfig{
		Provider: config.ProviderS3,
		Prefix:   "exports",
		S3: config.S3Config{
			Bucket:          "test-bucket",
			Region:          "us-east-1",
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			Endpoint:        fake.URL(),
			UsePathStyle:    true,
		},
	}, logging.NewLogger("storage-test"))
	if err != nil {
		t.Fatalf("New(s3) error = %v", err)
	}
	return g
}

func newSupabaseTestGateway(t *testing.T) Gateway {
	t.Helper()
	fake := testutil.NewFakeSupabase()
	t.Cleanup(fake.Close)

	g, err := New(config.StorageConfig{
		Provider: config.ProviderSupabase,
		Prefix:   "exports",
		Supabase: config.SupabaseConfig{
			URL:    fake.URL(),
			Key:    "test-service-key",
			Bucket: "test-bucket",
		},
	}, logging.NewLogger("storage-test"))
	if err != nil {
		t.Fatalf("New(supabase) error = %v", err)
	}
	return g
}

// TestGatewayContract runs the same behavioral suite against both backends;
// the pipeline must not care which one is configured.
func TestGatewayContract(t *testing.T) {
	providers := []struct {
		name  string
		setup func(t *testing.T) Gateway
	}{
		{name: "s3", setup: newS3TestGateway},
		{name: "supabase", setup: newSupabaseTestGateway},
	}

	for _, p := range providers {
		t.Run(p.name, func(t *testing.T) {
			t.Run("write then read returns identical bytes", func(t *testing.T) {
				g := p.setup(t)
				ctx := context.Background()
				content := []byte("sku,name\n24-MB01,\"Joust, Duffle\"\n")

				info, err := g.Write(ctx, "products.csv", content, "text/csv")
				if err != nil {
					t.Fatalf("Write() error = %v", err)
				}
				if info.Name != "products.csv" {
					t.Errorf("info.Name = %q, want %q", info.Name, "products.csv")
				}
				if info.Key != "exports/products.csv" {
					t.Errorf("info.Key = %q, want %q", info.Key, "exports/products.csv")
				}
				if info.Size != int64(len(content)) {
					t.Errorf("info.Size = %d, want %d", info.Size, len(content))
				}
				if info.Location == "" {
					t.Error("info.Location is empty")
				}

				got, err := g.Read(ctx, "products.csv")
				if err != nil {
					t.Fatalf("Read() error = %v", err)
				}
				if !bytes.Equal(got, content) {
					t.Errorf("Read() = %q, want %q", got, content)
				}
			})

			t.Run("same name overwrites", func(t *testing.T) {
				g := p.setup(t)
				ctx := context.Background()

				if _, err := g.Write(ctx, "products.csv", []byte("first"), "text/csv"); err != nil {
					t.Fatalf("first Write() error = %v", err)
				}
				if _, err := g.Write(ctx, "products.csv", []byte("second"), "text/csv"); err != nil {
					t.Fatalf("second Write() error = %v", err)
				}

				got, err := g.Read(ctx, "products.csv")
				if err != nil {
					t.Fatalf("Read() error = %v", err)
				}
				if string(got) != "second" {
					t.Errorf("Read() = %q, want %q (last write wins)", got, "second")
				}

				infos, err := g.List(ctx, "")
				if err != nil {
					t.Fatalf("List() error = %v", err)
				}
				if len(infos) != 1 {
					t.Errorf("List() returned %d objects, want 1", len(infos))
				}
			})

			t.Run("read missing wraps ErrNotFound", func(t *testing.T) {
				g := p.setup(t)

				_, err := g.Read(context.Background(), "absent.csv")
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("Read() error = %v, want ErrNotFound", err)
				}
				var sErr *Error
				if !errors.As(err, &sErr) {
					t.Fatalf("Read() error = %v, want *storage.Error", err)
				}
				if sErr.Op != "read" {
					t.Errorf("Error.Op = %q, want %q", sErr.Op, "read")
				}
			})

			t.Run("list returns stored artifacts", func(t *testing.T) {
				g := p.setup(t)
				ctx := context.Background()

				if _, err := g.Write(ctx, "products.csv", []byte("abc"), "text/csv"); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
				if _, err := g.Write(ctx, "inventory.csv", []byte("defgh"), "text/csv"); err != nil {
					t.Fatalf("Write() error = %v", err)
				}

				infos, err := g.List(ctx, "")
				if err != nil {
					t.Fatalf("List() error = %v", err)
				}
				if len(infos) != 2 {
					t.Fatalf("List() returned %d objects, want 2", len(infos))
				}

				byName := make(map[string]ObjectInfo, len(infos))
				for _, info := range infos {
					byName[info.Name] = info
				}
				if info, ok := byName["products.csv"]; !ok {
					t.Error("List() missing products.csv")
				} else if info.Size != 3 {
					t.Errorf("products.csv Size = %d, want 3", info.Size)
				}
				if info, ok := byName["inventory.csv"]; !ok {
					t.Error("List() missing inventory.csv")
				} else if info.Size != 5 {
					t.Errorf("inventory.csv Size = %d, want 5", info.Size)
				}
			})

			t.Run("list filters by name prefix", func(t *testing.T) {
				g := p.setup(t)
				ctx := context.Background()

				if _, err := g.Write(ctx, "products.csv", []byte("a"), "text/csv"); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
				if _, err := g.Write(ctx, "other.csv", []byte("b"), "text/csv"); err != nil {
					t.Fatalf("Write() error = %v", err)
				}

				infos, err := g.List(ctx, "prod")
				if err != nil {
					t.Fatalf("List() error = %v", err)
				}
				if len(infos) != 1 || infos[0].Name != "products.csv" {
					t.Errorf("List(prod) = %+v, want only products.csv", infos)
				}
			})

			t.Run("delete removes the artifact", func(t *testing.T) {
				g := p.setup(t)
				ctx := context.Background()

				if _, err := g.Write(ctx, "products.csv", []byte("abc"), "text/csv"); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
				if err := g.Delete(ctx, "products.csv"); err != nil {
					t.Fatalf("Delete() error = %v", err)
				}

				if _, err := g.Read(ctx, "products.csv"); !errors.Is(err, ErrNotFound) {
					t.Errorf("Read() after Delete error = %v, want ErrNotFound", err)
				}
			})

			t.Run("delete missing wraps ErrNotFound", func(t *testing.T) {
				g := p.setup(t)

				err := g.Delete(context.Background(), "absent.csv")
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("Delete() error = %v, want ErrNotFound", err)
				}
			})
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.StorageConfig{Provider: "ftp"}, logging.NewLogger("storage-test"))
	if err == nil {
		t.Fatal("New() with unknown provider: expected error, got nil")
	}
}

func TestError_Format(t *testing.T) {
	inner := errors.New("connection refused")
	err := &Error{Op: "write", Provider: "s3", Key: "exports/products.csv", Err: inner}

	want := `storage s3: write "exports/products.csv": connection refused`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is() does not reach the wrapped error")
	}
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		file   string
		want   string
	}{
		{name: "plain prefix", prefix: "exports", file: "products.csv", want: "exports/products.csv"},
		{name: "slashed prefix", prefix: "/exports/", file: "products.csv", want: "exports/products.csv"},
		{name: "empty prefix", prefix: "", file: "products.csv", want: "products.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinKey(tt.prefix, tt.file); got != tt.want {
				t.Errorf("joinKey(%q, %q) = %q, want %q", tt.prefix, tt.file, got, tt.want)
			}
		})
	}
}
