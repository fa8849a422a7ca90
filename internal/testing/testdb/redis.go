//go:build integration

package testdb

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const redisImage = "redis:7-alpine"

var (
	redisOnce sync.Once
	redisURL  string
	redisErr  error
)

// NewRedis returns a client for a shared Redis container. Callers isolate
// themselves with a unique key prefix rather than flushing.
func NewRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := tcredis.Run(ctx, redisImage)
		if err != nil {
			redisErr = err
			return
		}
		redisURL, redisErr = container.ConnectionString(ctx)
	})
	if redisErr != nil {
		t.Fatalf("testdb: redis container: %v", redisErr)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("testdb: parse redis URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("testdb: ping redis: %v", err)
	}
	return client
}

// UniquePrefix returns a Redis key prefix no other test uses.
func UniquePrefix() string {
	return "test:" + uniqueNamespace()
}
