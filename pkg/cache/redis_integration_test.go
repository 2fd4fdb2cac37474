//go:build integration

package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_RedisRoundTrip(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()

	store := NewRedis(client)
	ctx := context.Background()

	key := Key("categories", map[string]string{"fingerprint": "ab12cd34"})
	value := []byte(`{"14":{"id":14,"name":"Bags"}}`)

	if err := store.Set(ctx, key, value, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Get = %s, want %s", got, value)
	}

	// The TTL must be enforced server side so entries survive restarts
	// without outliving their deadline.
	ttl, err := client.TTL(ctx, key).Result()
	if err != nil {
		t.Fatalf("TTL lookup failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within (0, 1m]", ttl)
	}
}

func TestIntegration_RedisMiss(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()

	store := NewRedis(client)
	ctx := context.Background()

	_, err := store.Get(ctx, Key("categories", map[string]string{"fingerprint": "absent"}))
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get on absent key = %v, want ErrCacheMiss", err)
	}
}

func TestIntegration_RedisExpiration(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()

	store := NewRedis(client)
	ctx := context.Background()

	key := Key("categories", map[string]string{"fingerprint": "shortlived"})
	if err := store.Set(ctx, key, []byte(`{}`), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Entry should be live immediately after the write.
	if _, err := store.Get(ctx, key); err != nil {
		t.Fatalf("Get before expiry failed: %v", err)
	}

	// Wait for expiration
	time.Sleep(2 * time.Second)

	_, err := store.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after expiry = %v, want ErrCacheMiss", err)
	}
}

func TestIntegration_RedisDelete(t *testing.T) {
	client, cleanup := setupRedisContainer(t)
	defer cleanup()

	store := NewRedis(client)
	ctx := context.Background()

	key := Key("categories", map[string]string{"fingerprint": "deleteme"})
	if err := store.Set(ctx, key, []byte(`{}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after delete = %v, want ErrCacheMiss", err)
	}

	// Deleting an absent key is not an error.
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Delete on absent key = %v, want nil", err)
	}
}
