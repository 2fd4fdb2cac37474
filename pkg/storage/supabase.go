package storage

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	storage_go "github.com/supabase-community/storage-go"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
)

// supabaseGateway stores artifacts in a Supabase storage bucket. The
// storage API does not distinguish missing objects reliably on download or
// remove, so both probe the listing first.
type supabaseGateway struct {
	client *storage_go.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

func newSupabaseGateway(cfg config.StorageConfig, logger zerolog.Logger) *supabaseGateway {
	return &supabaseGateway{
		client: storage_go.NewClient(cfg.Supabase.URL, cfg.Supabase.Key, nil),
		bucket: cfg.Supabase.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}
}

func (g *supabaseGateway) Provider() string {
	return config.ProviderSupabase
}

func (g *supabaseGateway) Write(ctx context.Context, name string, content []byte, contentType string) (*ObjectInfo, error) {
	start := time.Now()
	key := joinKey(g.prefix, name)

	upsert := true
	ct := contentType
	_, err := g.client.UploadFile(g.bucket, key, bytes.NewReader(content), storage_go.FileOptions{
		ContentType: &ct,
		Upsert:      &upsert,
	})
	observe(config.ProviderSupabase, "write", start, err)
	if err != nil {
		return nil, &Error{Op: "write", Provider: config.ProviderSupabase, Key: key, Err: err}
	}

	info := &ObjectInfo{
		Name:         name,
		Key:          key,
		Size:         int64(len(content)),
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
		Location:     g.location(key),
	}
	g.logger.Debug().
		Str("provider", config.ProviderSupabase).
		Str("key", key).
		Int64("size", info.Size).
		Msg("Artifact stored")
	return info, nil
}

func (g *supabaseGateway) Read(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	key := joinKey(g.prefix, name)

	if _, found, err := g.stat(name); err != nil {
		observe(config.ProviderSupabase, "read", start, err)
		return nil, &Error{Op: "read", Provider: config.ProviderSupabase, Key: key, Err: err}
	} else if !found {
		observe(config.ProviderSupabase, "read", start, ErrNotFound)
		return nil, &Error{Op: "read", Provider: config.ProviderSupabase, Key: key, Err: ErrNotFound}
	}

	data, err := g.client.DownloadFile(g.bucket, key)
	observe(config.ProviderSupabase, "read", start, err)
	if err != nil {
		return nil, &Error{Op: "read", Provider: config.ProviderSupabase, Key: key, Err: err}
	}
	return data, nil
}

func (g *supabaseGateway) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	start := time.Now()

	objects, err := g.listFolder()
	observe(config.ProviderSupabase, "list", start, err)
	if err != nil {
		return nil, &Error{Op: "list", Provider: config.ProviderSupabase, Key: g.folderPath(), Err: err}
	}

	var infos []ObjectInfo
	for _, obj := range objects {
		if prefix != "" && !strings.HasPrefix(obj.Name, prefix) {
			continue
		}
		key := joinKey(g.prefix, obj.Name)
		size, contentType := objectMeta(obj.Metadata)
		infos = append(infos, ObjectInfo{
			Name:         obj.Name,
			Key:          key,
			Size:         size,
			ContentType:  contentType,
			LastModified: parseObjectTime(obj.UpdatedAt, obj.CreatedAt),
			Location:     g.location(key),
		})
	}
	return infos, nil
}

func (g *supabaseGateway) Delete(ctx context.Context, name string) error {
	start := time.Now()
	key := joinKey(g.prefix, name)

	if _, found, err := g.stat(name); err != nil {
		observe(config.ProviderSupabase, "delete", start, err)
		return &Error{Op: "delete", Provider: config.ProviderSupabase, Key: key, Err: err}
	} else if !found {
		observe(config.ProviderSupabase, "delete", start, ErrNotFound)
		return &Error{Op: "delete", Provider: config.ProviderSupabase, Key: key, Err: ErrNotFound}
	}

	_, err := g.client.RemoveFile(g.bucket, []string{key})
	observe(config.ProviderSupabase, "delete", start, err)
	if err != nil {
		return &Error{Op: "delete", Provider: config.ProviderSupabase, Key: key, Err: err}
	}

	g.logger.Debug().
		Str("provider", config.ProviderSupabase).
		Str("key", key).
		Msg("Artifact deleted")
	return nil
}

// stat looks an artifact up in the folder listing. The listing is the only
// reliable existence check the storage API offers.
func (g *supabaseGateway) stat(name string) (storage_go.FileObject, bool, error) {
	objects, err := g.listFolder()
	if err != nil {
		return storage_go.FileObject{}, false, err
	}
	for _, obj := range objects {
		if obj.Name == name {
			return obj, true, nil
		}
	}
	return storage_go.FileObject{}, false, nil
}

func (g *supabaseGateway) listFolder() ([]storage_go.FileObject, error) {
	return g.client.ListFiles(g.bucket, g.folderPath(), storage_go.FileSearchOptions{
		Limit: 1000,
		SortByOptions: storage_go.SortBy{
			Column: "name",
			Order:  "asc",
		},
	})
}

// folderPath is the configured prefix as a Supabase folder path (no slashes
// at either end).
func (g *supabaseGateway) folderPath() string {
	return strings.Trim(g.prefix, "/")
}

func (g *supabaseGateway) location(key string) string {
	return "supabase://" + g.bucket + "/" + key
}

// objectMeta extracts size and mimetype from the loosely typed object
// metadata the storage API returns.
func objectMeta(md any) (int64, string) {
	m, ok := md.(map[string]any)
	if !ok {
		return 0, ""
	}

	var size int64
	switch v := m["size"].(type) {
	case float64:
		size = int64(v)
	case int64:
		size = v
	}

	contentType, _ := m["mimetype"].(string)
	return size, contentType
}

func parseObjectTime(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
