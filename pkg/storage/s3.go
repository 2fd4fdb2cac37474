package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/skukla/kukla-integration-service-sub006/pkg/config"
)

// s3Gateway stores artifacts in an S3 bucket under a key prefix. A custom
// endpoint with path-style addressing supports S3-compatible stores and the
// test fake.
type s3Gateway struct {
	client *s3.Client
	bucket string
	prefix string
	logger zerolog.Logger
}

func newS3Gateway(cfg config.StorageConfig, logger zerolog.Logger) (*s3Gateway, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3.Region),
	}
	// Explicit credentials win; otherwise the default chain (env, shared
	// config, instance role) applies.
	if cfg.S3.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	return &s3Gateway{
		client: client,
		bucket: cfg.S3.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

func (g *s3Gateway) Provider() string {
	return config.ProviderS3
}

func (g *s3Gateway) Write(ctx context.Context, name string, content []byte, contentType string) (*ObjectInfo, error) {
	start := time.Now()
	key := joinKey(g.prefix, name)

	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	observe(config.ProviderS3, "write", start, err)
	if err != nil {
		return nil, &Error{Op: "write", Provider: config.ProviderS3, Key: key, Err: err}
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
		Str("provider", config.ProviderS3).
		Str("key", key).
		Int64("size", info.Size).
		Msg("Artifact stored")
	return info, nil
}

func (g *s3Gateway) Read(ctx context.Context, name string) ([]byte, error) {
	start := time.Now()
	key := joinKey(g.prefix, name)

	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	observe(config.ProviderS3, "read", start, err)
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, &Error{Op: "read", Provider: config.ProviderS3, Key: key, Err: ErrNotFound}
		}
		return nil, &Error{Op: "read", Provider: config.ProviderS3, Key: key, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &Error{Op: "read", Provider: config.ProviderS3, Key: key, Err: err}
	}
	return data, nil
}

func (g *s3Gateway) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	start := time.Now()
	keyPrefix := g.keyPrefix() + prefix

	paginator := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
		Prefix: aws.String(keyPrefix),
	})

	var infos []ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			observe(config.ProviderS3, "list", start, err)
			return nil, &Error{Op: "list", Provider: config.ProviderS3, Key: keyPrefix, Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			infos = append(infos, ObjectInfo{
				Name:         strings.TrimPrefix(key, g.keyPrefix()),
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				Location:     g.location(key),
			})
		}
	}
	observe(config.ProviderS3, "list", start, nil)
	return infos, nil
}

func (g *s3Gateway) Delete(ctx context.Context, name string) error {
	start := time.Now()
	key := joinKey(g.prefix, name)

	// S3 deletes are silent on missing keys; probe first so callers can
	// distinguish "gone" from "never existed".
	_, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		observe(config.ProviderS3, "delete", start, err)
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return &Error{Op: "delete", Provider: config.ProviderS3, Key: key, Err: ErrNotFound}
		}
		return &Error{Op: "delete", Provider: config.ProviderS3, Key: key, Err: err}
	}

	_, err = g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	observe(config.ProviderS3, "delete", start, err)
	if err != nil {
		return &Error{Op: "delete", Provider: config.ProviderS3, Key: key, Err: err}
	}

	g.logger.Debug().
		Str("provider", config.ProviderS3).
		Str("key", key).
		Msg("Artifact deleted")
	return nil
}

// keyPrefix is the configured prefix normalized to "dir/" form, or empty.
func (g *s3Gateway) keyPrefix() string {
	p := strings.Trim(g.prefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (g *s3Gateway) location(key string) string {
	return "s3://" + g.bucket + "/" + key
}
