// Package storage persists export artifacts to object storage. The backend
// is chosen once at construction from configuration; callers only see the
// Gateway interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
)

// Prometheus metrics for storage operations.
var (
	storageOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_export_storage_operations_total",
		Help: "Total number of storage operations by provider, operation and outcome",
	}, []string{"provider", "operation", "status"})

	storageOpSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commerce_export_storage_operation_duration_seconds",
		Help:    "Storage operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
)

// ErrNotFound marks reads and deletes of objects that do not exist.
var ErrNotFound = errors.New("object not found")

// Error wraps a failed storage operation with enough context to debug it
// without provider-specific knowledge.
type Error struct {
	Op       string
	Provider string
	Key      string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s: %s %q: %v", e.Provider, e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ObjectInfo describes one stored artifact.
type ObjectInfo struct {
	// Name is the flat artifact name, e.g. products.csv.
	Name string `json:"name"`

	// Key is the full object key including the configured prefix.
	Key string `json:"key"`

	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`

	// Location is the provider-qualified locator, e.g. s3://bucket/key.
	Location string `json:"location"`
}

// Gateway is the storage surface the pipeline and the file browser use.
// Write overwrites an existing object of the same name.
type Gateway interface {
	Provider() string
	Write(ctx context.Context, name string, content []byte, contentType string) (*ObjectInfo, error)
	Read(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, name string) error
}

// New selects and constructs the configured backend.
func New(cfg config.StorageConfig, logger zerolog.Logger) (Gateway, error) {
	switch cfg.Provider {
	case config.ProviderS3:
		return newS3Gateway(cfg, logger)
	case config.ProviderSupabase:
		return newSupabaseGateway(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// joinKey builds the object key for an artifact name under the configured
// prefix. The prefix is stored without leading slash, with one trailing
// slash, so keys never double up separators.
func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// observe records the outcome of one storage operation.
func observe(provider, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storageOpsTotal.WithLabelValues(provider, operation, status).Inc()
	storageOpSeconds.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}
