package staging

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to TEST_REDIS_URL or skips.
func newTestRedis(t *testing.T, opts Options) *RedisStore {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	client, err := NewRedisClient(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, opts)
}

func TestRedisStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t, Options{})
	tenant := "test-" + time.Now().Format("150405.000000")

	first, err := r.Stage(ctx, tenant, core.KindOrders, "a.csv", sampleRows())
	require.NoError(t, err)
	second, err := r.Stage(ctx, tenant, core.KindOrders, "b.csv", sampleRows())
	require.NoError(t, err)

	_, err = r.Fetch(ctx, tenant, first.Token)
	assert.ErrorIs(t, err, core.ErrSessionNotFound, "superseded")

	_, err = r.Fetch(ctx, "someone-else", second.Token)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	got, err := r.Claim(ctx, tenant, second.Token)
	require.NoError(t, err)
	assert.Len(t, got.Records(), 1)

	_, err = r.Claim(ctx, tenant, second.Token)
	assert.ErrorIs(t, err, core.ErrSessionNotFound, "already claimed")

	require.NoError(t, r.Complete(ctx, second.Token))
	require.NoError(t, r.Release(ctx, second.Token))
	_, err = r.Claim(ctx, tenant, second.Token)
	assert.ErrorIs(t, err, core.ErrSessionNotFound, "completed")
}

func TestRedisStore_Expired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := newTestRedis(t, Options{TTL: time.Minute, Now: clock.Now})

	s, err := r.Stage(ctx, "expiry-tenant", core.KindPurchases, "p.csv", nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Complete(ctx, s.Token) })

	clock.Advance(time.Minute)
	_, err = r.Fetch(ctx, "expiry-tenant", s.Token)
	assert.ErrorIs(t, err, core.ErrSessionExpired)
}
