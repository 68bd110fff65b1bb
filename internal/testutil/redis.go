package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisContainer is a throwaway Redis with a connected client.
type RedisContainer struct {
	Client *redis.Client
	Addr   string
}

// NewRedisContainer starts Redis 7 and returns a pinged client.
//
// Postcondition: the client is closed and the container removed at test cleanup.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	c := startContainer(t, "redis", testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	})
	addr := endpoint(t, c, "6379/tcp")
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("pinging redis: %v", err)
	}
	return &RedisContainer{Client: client, Addr: addr}
}

// Reset flushes the container's database.
func (rc *RedisContainer) Reset(t *testing.T) {
	t.Helper()
	if err := rc.Client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing redis: %v", err)
	}
}
