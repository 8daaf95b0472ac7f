package staging

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sampleRows() []core.RowOutcome {
	return []core.RowOutcome{
		{Row: 2, Record: core.Order{
			ID: "O-1", SKU: "A1", Quantity: 2,
			Price:    decimal.NewFromInt(50),
			SaleDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		}},
		{Row: 3, Errors: []core.RowError{{Row: 3, Field: "sku", Reason: "is required"}}},
	}
}

func TestMemoryStore_StageAndFetch(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemoryStore(Options{Now: clock.Now})

	s, err := m.Stage(ctx, "t1", core.KindOrders, "o.csv", sampleRows())
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, clock.Now().Add(DefaultTTL), s.ExpiresAt)

	got, err := m.Fetch(ctx, "t1", s.Token)
	require.NoError(t, err)
	total, valid, invalid := got.Counts()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, valid)
	assert.Equal(t, 1, invalid)
	assert.Len(t, got.Records(), 1)
}

func TestMemoryStore_TenantRequired(t *testing.T) {
	m := NewMemoryStore(Options{})
	_, err := m.Stage(context.Background(), "", core.KindOrders, "o.csv", nil)
	assert.ErrorIs(t, err, core.ErrTenantRequired)
}

func TestMemoryStore_OtherTenantSeesNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(Options{})

	s, err := m.Stage(ctx, "t1", core.KindOrders, "o.csv", sampleRows())
	require.NoError(t, err)

	_, err = m.Fetch(ctx, "t2", s.Token)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	_, err = m.Claim(ctx, "t2", s.Token)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestMemoryStore_NewUploadSupersedesPrevious(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(Options{})

	first, err := m.Stage(ctx, "t1", core.KindOrders, "a.csv", sampleRows())
	require.NoError(t, err)
	other, err := m.Stage(ctx, "t1", core.KindPurchases, "p.csv", nil)
	require.NoError(t, err)
	second, err := m.Stage(ctx, "t1", core.KindOrders, "b.csv", sampleRows())
	require.NoError(t, err)

	_, err = m.Claim(ctx, "t1", first.Token)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = m.Fetch(ctx, "t1", second.Token)
	assert.NoError(t, err)
	_, err = m.Fetch(ctx, "t1", other.Token)
	assert.NoError(t, err, "a different kind is not superseded")
}

func TestMemoryStore_ExpiredVersusNotFound(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemoryStore(Options{TTL: 15 * time.Minute, Grace: 10 * time.Minute, Now: clock.Now})

	s, err := m.Stage(ctx, "t1", core.KindOrders, "o.csv", sampleRows())
	require.NoError(t, err)

	clock.Advance(15*time.Minute - time.Second)
	_, err = m.Fetch(ctx, "t1", s.Token)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = m.Claim(ctx, "t1", s.Token)
	assert.ErrorIs(t, err, core.ErrSessionExpired)

	removed, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "still inside the grace period")

	clock.Advance(10*time.Minute + time.Second)
	removed, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Zero(t, m.Len())

	_, err = m.Fetch(ctx, "t1", s.Token)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestMemoryStore_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(Options{})

	s, err := m.Stage(ctx, "t1", core.KindOrders, "o.csv", sampleRows())
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Claim(ctx, "t1", s.Token); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	require.NoError(t, m.Release(ctx, s.Token))
	_, err = m.Claim(ctx, "t1", s.Token)
	require.NoError(t, err, "released session can be claimed again")

	require.NoError(t, m.Complete(ctx, s.Token))
	_, err = m.Claim(ctx, "t1", s.Token)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestMemoryStore_Discard(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(Options{})

	s, err := m.Stage(ctx, "t1", core.KindOrders, "o.csv", sampleRows())
	require.NoError(t, err)

	assert.ErrorIs(t, m.Discard(ctx, "t2", s.Token), core.ErrSessionNotFound)
	require.NoError(t, m.Discard(ctx, "t1", s.Token))
	assert.Zero(t, m.Len())
}

func TestCodec_PreservesRecordsAndErrors(t *testing.T) {
	clock := newFakeClock()
	in := &Session{
		Token:    "tok",
		TenantID: "t1",
		Kind:     core.KindLogistics,
		FileName: "l.csv",
		Rows: []core.RowOutcome{
			{Row: 2, Record: core.LogisticsRecord{ID: "T-1", OrderID: "O-1", Cost: decimal.RequireFromString("10.50")}},
			{Row: 3, Errors: []core.RowError{{Row: 3, Field: "cost", Reason: "is required"}}},
		},
		CreatedAt: clock.Now(),
		ExpiresAt: clock.Now().Add(DefaultTTL),
	}

	data, err := encodeSession(in)
	require.NoError(t, err)
	out, err := decodeSession(data)
	require.NoError(t, err)

	assert.Equal(t, in.Token, out.Token)
	assert.Equal(t, in.Kind, out.Kind)
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))
	require.Len(t, out.Rows, 2)

	rec, ok := out.Rows[0].Record.(core.LogisticsRecord)
	require.True(t, ok)
	assert.Equal(t, "O-1", rec.OrderID)
	assert.True(t, rec.Cost.Equal(decimal.RequireFromString("10.5")))
	assert.Nil(t, out.Rows[1].Record)
	assert.Equal(t, in.Rows[1].Errors, out.Rows[1].Errors)
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	clock := newFakeClock()
	m := NewMemoryStore(Options{TTL: time.Minute, Grace: time.Nanosecond, Now: clock.Now})
	_, err := m.Stage(context.Background(), "t1", core.KindOrders, "o.csv", nil)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	swept := make(chan int, 8)
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, m, 5*time.Millisecond, func(n int) { swept <- n })
		close(done)
	}()

	select {
	case n := <-swept:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
