package testutil

import (
	"time"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
)

// StageConfig builds a stage-mode configuration pointed at fake Commerce
// and S3 servers. Retry delays are collapsed so failure paths stay fast.
func StageConfig(commerceURL, s3URL string) *config.Config {
	return &config.Config{
		Env: config.EnvStage,
		Commerce: config.CommerceConfig{
			BaseURL:  commerceURL,
			MediaURL: commerceURL + "/media/catalog/product",
			Auth: config.AuthConfig{
				Mode:     config.AuthModeIntegration,
				Username: "exporter",
				Password: "secret",
				TokenTTL: time.Hour,
			},
		},
		HTTP: config.HTTPConfig{
			Timeout:           5 * time.Second,
			Retries:           3,
			RetryInitialDelay: time.Millisecond,
			RetryMaxDelay:     5 * time.Millisecond,
			RetryMultiplier:   2,
			MaxConnsPerSource: 4,
		},
		Products: config.ProductsConfig{PageSize: 100, MaxPages: 25},
		Enrich: config.EnrichConfig{
			InventoryBatchSize: 50,
			CategoryBatchSize:  20,
			MaxConcurrency:     4,
			CategoryCacheTTL:   time.Minute,
		},
		Export: config.ExportConfig{Filename: "products.csv", Fields: config.DefaultFields},
		Storage: config.StorageConfig{
			Provider: config.ProviderS3,
			Prefix:   "exports/",
			S3: config.S3Config{
				Bucket:          "test-bucket",
				Region:          "us-east-1",
				AccessKeyID:     "test",
				SecretAccessKey: "test",
				Endpoint:        s3URL,
				UsePathStyle:    true,
			},
		},
		Server: config.ServerConfig{
			Addr:         "127.0.0.1:0",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}
