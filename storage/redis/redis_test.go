package redis_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-role-sessions/storage/redis"
	"github.com/stretchr/testify/require"
)

func openTestProvider(t *testing.T) *redis.Provider {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	p, err := redis.Open(context.Background(), redis.Config{Addr: addr, Prefix: "test-" + uuid.NewString()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestOpen_RequiresAddr(t *testing.T) {
	_, err := redis.Open(context.Background(), redis.Config{})
	require.Error(t, err)
}

func TestBackend(t *testing.T) {
	ctx := context.Background()
	p := openTestProvider(t)
	b := p.Backend("browser-1")

	_, ok, err := b.Get(ctx, "token_user")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Set(ctx, "token_user", "A"))
	v, ok, err := b.Get(ctx, "token_user")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A", v)

	_, ok, err = p.Backend("browser-2").Get(ctx, "token_user")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Delete(ctx, "token_user"))
	_, ok, err = b.Get(ctx, "token_user")
	require.NoError(t, err)
	require.False(t, ok)
}
