package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips when none is running.
// The integration suite covers the same paths against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, time.Minute)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.TTL() != time.Minute {
		t.Errorf("TTL() = %v, want 1m", manager.TTL())
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Minute)
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	key := Key{
		Endpoint: "/candidates/",
		Params:   url.Values{"election_year": []string{"2024"}},
		Page:     2,
	}
	body := []byte(`{"results":[{"candidate_id":"P00003392"}],"pagination":{"pages":3}}`)

	if err := manager.Set(ctx, key, body); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("Get() = %s, want %s", got, body)
	}

	ttl, err := client.TTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("redis TTL = %v, want (0, 1m]", ttl)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)

	_, err := manager.Get(context.Background(), Key{Endpoint: "/candidates/", Page: 1})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Set_DisabledTTL(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()
	key := Key{Endpoint: "/candidates/", Page: 1}

	if err := manager.Set(ctx, key, []byte(`{}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss when TTL disabled", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()
	key := Key{Endpoint: "/candidates/", Page: 1}

	if err := manager.Set(ctx, key, []byte(`{}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after Delete error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()
	key := Key{Endpoint: "/candidates/", Page: 1}

	if err := client.Set(ctx, key.String(), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Get() error = %v, want ErrInvalidEntry", err)
	}
}
