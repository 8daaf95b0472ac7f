package store

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	n := 0
	testStore(t, NewMemory(), func() string {
		n++
		return fmt.Sprintf("tenant-%d", n)
	})
}

func TestMemory_RejectsMixedBatch(t *testing.T) {
	m := NewMemory()
	_, err := m.Insert(context.Background(), Batch{
		TenantID: "t1",
		Kind:     core.KindOrders,
		Records:  []core.Record{core.Purchase{ID: "P-1"}},
	})
	require.Error(t, err)

	c, err := m.Counts(context.Background(), "t1")
	require.NoError(t, err)
	assert.Zero(t, c.Purchases)
}

func TestMemory_TenantRequired(t *testing.T) {
	_, err := NewMemory().Insert(context.Background(), Batch{Kind: core.KindOrders})
	assert.ErrorIs(t, err, core.ErrTenantRequired)
}

func TestPageBounds(t *testing.T) {
	tests := []struct {
		page, perPage int
		total         int
		start, end    int
	}{
		{0, 0, 7, 0, 7},
		{1, 3, 7, 0, 3},
		{3, 3, 7, 6, 7},
		{9, 3, 7, 7, 7},
		{0, 3, 7, 0, 3},
		{1, 3, 0, 0, 0},
		{1, math.MaxInt, 7, 0, 7},
		{math.MaxInt64/50 + 2, 50, 120, 120, 120},
		{math.MaxInt, 1, 5, 5, 5},
	}
	for _, tt := range tests {
		start, end := pageBounds(tt.page, tt.perPage, tt.total)
		assert.Equal(t, tt.start, start, "page %d per %d of %d", tt.page, tt.perPage, tt.total)
		assert.Equal(t, tt.end, end, "page %d per %d of %d", tt.page, tt.perPage, tt.total)
	}
}

func TestMemory_ProfitRecordsPastLastPage(t *testing.T) {
	m := NewMemory()
	_, err := m.Insert(context.Background(), Batch{
		TenantID: "t1",
		Kind:     core.KindOrders,
		Records:  []core.Record{core.Order{ID: "O-1", SKU: "A1", Quantity: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, m.PutProfit(context.Background(), core.ProfitRecord{TenantID: "t1", OrderID: "O-1"}))

	var recs []core.ProfitRecord
	var total int
	require.NotPanics(t, func() {
		recs, total, err = m.ProfitRecords(context.Background(), "t1", ProfitFilter{Page: math.MaxInt64/50 + 2, PerPage: 50})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Empty(t, recs)
}

func TestMemory_ConcurrentListAndInsert(t *testing.T) {
	m := NewMemory()
	var records []core.Record
	for i := 0; i < 2000; i++ {
		records = append(records, core.Order{ID: fmt.Sprintf("O-%04d", i), SKU: "A1", Quantity: 1})
	}
	_, err := m.Insert(context.Background(), Batch{TenantID: "t1", Kind: core.KindOrders, Records: records})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_, _, _ = m.ListOrders(context.Background(), "t1", ListFilter{Search: "o-1", PerPage: 10})
		}
	}()
	for i := 0; i < 20; i++ {
		_, err := m.Insert(context.Background(), Batch{
			TenantID: "t1",
			Kind:     core.KindOrders,
			Records:  []core.Record{core.Order{ID: fmt.Sprintf("N-%02d", i), SKU: "A1", Quantity: 1}},
		})
		require.NoError(t, err)
	}
	<-done

	c, err := m.Counts(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2020), c.Orders)
}
