//go:build integration

package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupRedisContainer starts a Redis container and returns its URL.
func setupRedisContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	if !strings.HasPrefix(endpoint, "redis://") {
		endpoint = "redis://" + endpoint
	}
	return endpoint
}

func TestRedisProvider(t *testing.T) {
	url := setupRedisContainer(t)

	r := NewRedisProvider(url, time.Hour)
	require.NoError(t, r.Validate())
	require.NoError(t, r.Init(context.Background()))
	defer r.Close()

	testDatabase(t, r, "")

	t.Run("Expired", func(t *testing.T) {
		ctx := context.Background()
		short := NewRedisProvider(url, time.Second)
		require.NoError(t, short.Init(ctx))
		defer short.Close()

		run := newTestRun("expiring", time.Now().Add(24*time.Hour))
		require.NoError(t, short.CreateRun(ctx, run))
		time.Sleep(1500 * time.Millisecond)

		_, err := short.GetRun(ctx, run.ID)
		assert.ErrorIs(t, err, ErrRunNotFound)

		runs, err := short.ListRuns(ctx, 1)
		require.NoError(t, err)
		for _, got := range runs {
			assert.NotEqual(t, run.ID, got.ID)
		}
	})

	t.Run("CloseTwice", func(t *testing.T) {
		c := NewRedisProvider(url, 0)
		require.NoError(t, c.Init(context.Background()))
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
	})
}

func TestRedisProviderValidate(t *testing.T) {
	assert.Error(t, NewRedisProvider("", time.Hour).Validate())
	assert.Error(t, NewRedisProvider("http://nope", time.Hour).Validate())
	assert.Error(t, NewRedisProvider("redis://localhost:6379/0", -time.Second).Validate())
	assert.NoError(t, NewRedisProvider("redis://localhost:6379/0", 0).Validate())
}
