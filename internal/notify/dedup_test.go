package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uberfix/fixhooks/internal/notify"
)

func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	cleanup := func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	}
	return client, cleanup
}

func TestRedisDedup_ClaimOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	guard := notify.NewRedisDedup(client, time.Minute)

	first, err := guard.Claim(ctx, "status_updated:abc")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := guard.Claim(ctx, "status_updated:abc")
	require.NoError(t, err)
	assert.False(t, again)

	ttl, err := client.TTL(ctx, "fixhooks:notify:status_updated:abc").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, guard.Release(ctx, "status_updated:abc"))
	reclaimed, err := guard.Claim(ctx, "status_updated:abc")
	require.NoError(t, err)
	assert.True(t, reclaimed)
}

func TestRedisDedup_UnreachableReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	_, err := notify.NewRedisDedup(client, 0).Claim(context.Background(), "k")
	assert.Error(t, err)
}
