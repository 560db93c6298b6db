package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	limiterredis "ms-waitlist/internal/waitlist/redis"
)

// TestLimiterIntegration exercises the fixed-window limiter against a real
// Redis container.
func TestLimiterIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{
		Addr: host + ":" + port.Port(),
	})
	defer client.Close()

	limiter := limiterredis.NewLimiter(client, 3, 30*time.Minute)

	// Three joins pass, the fourth is denied with a retry hint.
	for i := 0; i < 3; i++ {
		ok, _, err := limiter.Allow(ctx, "user1")
		require.NoError(t, err)
		assert.True(t, ok, "join %d should be allowed", i+1)
	}

	ok, retryAfter, err := limiter.Allow(ctx, "user1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, 30*time.Minute)

	// Other users are unaffected.
	ok, _, err = limiter.Allow(ctx, "user2")
	require.NoError(t, err)
	assert.True(t, ok)

	// Reset opens a fresh window.
	require.NoError(t, limiter.Reset(ctx, "user1"))
	ok, _, err = limiter.Allow(ctx, "user1")
	require.NoError(t, err)
	assert.True(t, ok)
}
