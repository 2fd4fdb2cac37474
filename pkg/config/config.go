// Package config loads and validates service configuration from defaults,
// an optional .env file, and environment variables.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Auth modes supported by the Commerce token provider.
const (
	AuthModeIntegration = "integration"
	AuthModeOAuth       = "oauth"
)

// Storage providers supported by the storage gateway.
const (
	ProviderS3       = "s3"
	ProviderSupabase = "supabase"
)

// Environments recognized by the service. Dev runs skip the storage stage.
const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config is the validated service configuration. It is built once at startup
// and treated as immutable afterwards.
type Config struct {
	Env      string         `mapstructure:"env"`
	Commerce CommerceConfig `mapstructure:"commerce"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Products ProductsConfig `mapstructure:"products"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Export   ExportConfig   `mapstructure:"export"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// CommerceConfig describes the upstream Commerce instance.
type CommerceConfig struct {
	// BaseURL is the Commerce instance root, e.g. https://shop.example.com.
	// REST paths are appended to it.
	BaseURL string `mapstructure:"base_url"`

	// MediaURL is the base for product image links. Defaults to
	// BaseURL + "/media/catalog/product" when empty.
	MediaURL string `mapstructure:"media_url"`

	Auth AuthConfig `mapstructure:"auth"`
}

// AuthConfig selects and parameterizes the token provider.
type AuthConfig struct {
	// Mode is "integration" (admin token endpoint) or "oauth"
	// (client-credentials grant).
	Mode string `mapstructure:"mode"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// TokenTTL bounds how long an acquired admin token is reused. The token
	// endpoint declares no lifetime, so this stays conservative.
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	OAuth OAuthConfig `mapstructure:"oauth"`
}

// OAuthConfig holds client-credentials grant settings.
type OAuthConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	TokenURL     string   `mapstructure:"token_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// HTTPConfig tunes the resilient Commerce HTTP client.
type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	Retries           int           `mapstructure:"retries"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	RetryMultiplier   float64       `mapstructure:"retry_multiplier"`

	// MaxConnsPerSource bounds the connection pool each logical source
	// (products, inventory, categories) gets.
	MaxConnsPerSource int `mapstructure:"max_conns_per_source"`
}

// ProductsConfig tunes catalog pagination.
type ProductsConfig struct {
	PageSize int `mapstructure:"page_size"`
	MaxPages int `mapstructure:"max_pages"`
}

// EnrichConfig tunes the batched enrichment passes.
type EnrichConfig struct {
	InventoryBatchSize int           `mapstructure:"inventory_batch_size"`
	CategoryBatchSize  int           `mapstructure:"category_batch_size"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	DispatchDelay      time.Duration `mapstructure:"dispatch_delay"`
	CategoryCacheTTL   time.Duration `mapstructure:"category_cache_ttl"`
}

// ExportConfig sets artifact defaults.
type ExportConfig struct {
	Filename string   `mapstructure:"filename"`
	Fields   []string `mapstructure:"fields"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Provider string         `mapstructure:"provider"`
	Prefix   string         `mapstructure:"prefix"`
	S3       S3Config       `mapstructure:"s3"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
}

// S3Config holds settings for the S3 backend. Endpoint and path style are
// for S3-compatible stores and tests.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// SupabaseConfig holds settings for the Supabase storage backend.
type SupabaseConfig struct {
	// URL is the storage API root, e.g. https://xyz.supabase.co/storage/v1.
	URL    string `mapstructure:"url"`
	Key    string `mapstructure:"key"`
	Bucket string `mapstructure:"bucket"`
}

// CacheConfig selects the cache backend. An empty RedisAddr selects the
// in-process store.
type CacheConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// ServerConfig tunes the HTTP action server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load builds a Config from defaults and environment variables and
// validates it.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDev)

	v.SetDefault("commerce.auth.mode", AuthModeIntegration)
	v.SetDefault("commerce.auth.token_ttl", "1h")

	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.retries", 3)
	v.SetDefault("http.retry_initial_delay", "1s")
	v.SetDefault("http.retry_max_delay", "30s")
	v.SetDefault("http.retry_multiplier", 2.0)
	v.SetDefault("http.max_conns_per_source", 20)

	v.SetDefault("products.page_size", 100)
	v.SetDefault("products.max_pages", 25)

	v.SetDefault("enrich.inventory_batch_size", 50)
	v.SetDefault("enrich.category_batch_size", 20)
	v.SetDefault("enrich.max_concurrency", 15)
	v.SetDefault("enrich.dispatch_delay", "75ms")
	v.SetDefault("enrich.category_cache_ttl", "30m")

	v.SetDefault("export.filename", "products.csv")
	v.SetDefault("export.fields", DefaultFields)

	v.SetDefault("storage.provider", ProviderS3)
	v.SetDefault("storage.prefix", "exports/")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func bindEnv(v *viper.Viper) {
	binds := map[string]string{
		"env": "ENVIRONMENT",

		"commerce.base_url":                 "COMMERCE_BASE_URL",
		"commerce.media_url":                "COMMERCE_MEDIA_URL",
		"commerce.auth.mode":                "COMMERCE_AUTH_MODE",
		"commerce.auth.username":            "COMMERCE_ADMIN_USERNAME",
		"commerce.auth.password":            "COMMERCE_ADMIN_PASSWORD",
		"commerce.auth.token_ttl":           "COMMERCE_TOKEN_TTL",
		"commerce.auth.oauth.client_id":     "OAUTH_CLIENT_ID",
		"commerce.auth.oauth.client_secret": "OAUTH_CLIENT_SECRET",
		"commerce.auth.oauth.token_url":     "OAUTH_TOKEN_URL",
		"commerce.auth.oauth.scopes":        "OAUTH_SCOPES",

		"http.timeout":              "HTTP_TIMEOUT",
		"http.retries":              "HTTP_RETRIES",
		"http.retry_initial_delay":  "HTTP_RETRY_INITIAL_DELAY",
		"http.retry_max_delay":      "HTTP_RETRY_MAX_DELAY",
		"http.retry_multiplier":     "HTTP_RETRY_MULTIPLIER",
		"http.max_conns_per_source": "HTTP_MAX_CONNS_PER_SOURCE",

		"products.page_size": "PRODUCTS_PAGE_SIZE",
		"products.max_pages": "PRODUCTS_MAX_PAGES",

		"enrich.inventory_batch_size": "ENRICH_INVENTORY_BATCH_SIZE",
		"enrich.category_batch_size":  "ENRICH_CATEGORY_BATCH_SIZE",
		"enrich.max_concurrency":      "ENRICH_MAX_CONCURRENCY",
		"enrich.dispatch_delay":       "ENRICH_DISPATCH_DELAY",
		"enrich.category_cache_ttl":   "ENRICH_CATEGORY_CACHE_TTL",

		"export.filename": "EXPORT_FILENAME",
		"export.fields":   "EXPORT_FIELDS",

		"storage.provider":             "STORAGE_PROVIDER",
		"storage.prefix":               "STORAGE_PREFIX",
		"storage.s3.bucket":            "S3_BUCKET",
		"storage.s3.region":            "S3_REGION",
		"storage.s3.access_key_id":     "S3_ACCESS_KEY_ID",
		"storage.s3.secret_access_key": "S3_SECRET_ACCESS_KEY",
		"storage.s3.endpoint":          "S3_ENDPOINT",
		"storage.s3.use_path_style":    "S3_USE_PATH_STYLE",
		"storage.supabase.url":         "SUPABASE_URL",
		"storage.supabase.key":         "SUPABASE_KEY",
		"storage.supabase.bucket":      "SUPABASE_BUCKET",

		"cache.redis_addr":     "REDIS_ADDR",
		"cache.redis_password": "REDIS_PASSWORD",
		"cache.redis_db":       "REDIS_DB",

		"server.addr":             "SERVER_ADDR",
		"server.read_timeout":     "SERVER_READ_TIMEOUT",
		"server.write_timeout":    "SERVER_WRITE_TIMEOUT",
		"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
		"server.cors_origins":     "CORS_ORIGINS",

		"log.level":  "LOG_LEVEL",
		"log.pretty": "LOG_PRETTY",
	}

	for key, env := range binds {
		// BindEnv only errors on empty arguments.
		_ = v.BindEnv(key, env)
	}
}

// applyDerived normalizes values that depend on other fields.
func (c *Config) applyDerived() {
	c.Commerce.BaseURL = strings.TrimRight(c.Commerce.BaseURL, "/")
	if c.Commerce.MediaURL == "" && c.Commerce.BaseURL != "" {
		c.Commerce.MediaURL = c.Commerce.BaseURL + "/media/catalog/product"
	}
	c.Commerce.MediaURL = strings.TrimRight(c.Commerce.MediaURL, "/")
	if c.Storage.Prefix != "" && !strings.HasSuffix(c.Storage.Prefix, "/") {
		c.Storage.Prefix += "/"
	}
}

// Validate checks the configuration for use. It returns the first problem
// found.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDev, EnvStage, EnvProd:
	default:
		return fmt.Errorf("config: unknown env %q", c.Env)
	}

	if c.Commerce.BaseURL == "" {
		return fmt.Errorf("config: commerce.base_url is required")
	}
	if u, err := url.Parse(c.Commerce.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: commerce.base_url %q is not an absolute URL", c.Commerce.BaseURL)
	}

	switch c.Commerce.Auth.Mode {
	case AuthModeIntegration:
		if c.Commerce.Auth.Username == "" || c.Commerce.Auth.Password == "" {
			return fmt.Errorf("config: integration auth requires username and password")
		}
	case AuthModeOAuth:
		o := c.Commerce.Auth.OAuth
		if o.ClientID == "" || o.ClientSecret == "" || o.TokenURL == "" {
			return fmt.Errorf("config: oauth auth requires client_id, client_secret and token_url")
		}
	default:
		return fmt.Errorf("config: unknown auth mode %q", c.Commerce.Auth.Mode)
	}

	if c.Commerce.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config: commerce.auth.token_ttl must be positive")
	}

	if c.Products.PageSize < 1 || c.Products.PageSize > 200 {
		return fmt.Errorf("config: products.page_size must be in [1,200], got %d", c.Products.PageSize)
	}
	if c.Products.MaxPages < 1 {
		return fmt.Errorf("config: products.max_pages must be at least 1, got %d", c.Products.MaxPages)
	}

	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("config: http.timeout must be positive")
	}
	if c.HTTP.Retries < 1 {
		return fmt.Errorf("config: http.retries must be at least 1, got %d", c.HTTP.Retries)
	}
	if c.HTTP.RetryMultiplier < 1 {
		return fmt.Errorf("config: http.retry_multiplier must be >= 1, got %v", c.HTTP.RetryMultiplier)
	}

	if c.Enrich.InventoryBatchSize < 1 {
		return fmt.Errorf("config: enrich.inventory_batch_size must be at least 1")
	}
	if c.Enrich.CategoryBatchSize < 1 {
		return fmt.Errorf("config: enrich.category_batch_size must be at least 1")
	}
	if c.Enrich.MaxConcurrency < 1 {
		return fmt.Errorf("config: enrich.max_concurrency must be at least 1")
	}
	if c.Enrich.DispatchDelay < 0 {
		return fmt.Errorf("config: enrich.dispatch_delay must not be negative")
	}

	if err := ValidateFilename(c.Export.Filename); err != nil {
		return fmt.Errorf("config: export.filename: %w", err)
	}
	if err := ValidateFields(c.Export.Fields); err != nil {
		return fmt.Errorf("config: export.fields: %w", err)
	}

	// Dev runs never reach the storage stage, so backend settings are only
	// enforced for staging and production.
	if !c.IsDev() {
		switch c.Storage.Provider {
		case ProviderS3:
			if c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "" {
				return fmt.Errorf("config: s3 storage requires bucket and region")
			}
		case ProviderSupabase:
			s := c.Storage.Supabase
			if s.URL == "" || s.Key == "" || s.Bucket == "" {
				return fmt.Errorf("config: supabase storage requires url, key and bucket")
			}
		default:
			return fmt.Errorf("config: unknown storage provider %q", c.Storage.Provider)
		}
	}

	return nil
}

// IsDev reports whether the service runs in development mode. Dev runs skip
// the storage stage.
func (c *Config) IsDev() bool {
	return c.Env == EnvDev
}

// IsProd reports whether the service runs in production mode. Error
// responses omit wrapped error chains in production.
func (c *Config) IsProd() bool {
	return c.Env == EnvProd
}

// Fingerprint identifies the upstream configuration a cached category map
// belongs to. Maps cached under a different fingerprint are never reused.
func (c *Config) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", c.Commerce.BaseURL, c.Env, c.Commerce.Auth.Mode)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
