package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func insert(t *testing.T, s Store, tenant string, kind core.Kind, recs ...core.Record) InsertResult {
	t.Helper()
	res, err := s.Insert(context.Background(), Batch{
		TenantID: tenant,
		Kind:     kind,
		ImportID: uuid.NewString(),
		FileName: string(kind) + ".csv",
		Records:  recs,
	})
	require.NoError(t, err)
	return res
}

// testStore runs the behaviour every backend must share. newTenant returns
// a tenant id that no other test uses.
func testStore(t *testing.T, s Store, newTenant func() string) {
	t.Run("InsertSkipsDurableDuplicates", func(t *testing.T) {
		tenant := newTenant()
		res := insert(t, s, tenant, core.KindOrders,
			core.Order{ID: "O-1", SKU: "A1", Quantity: 1, Price: dec("10"), SaleDate: day(1)},
			core.Order{ID: "O-2", SKU: "A1", Quantity: 1, Price: dec("10"), SaleDate: day(2)},
		)
		assert.Len(t, res.Inserted, 2)

		res = insert(t, s, tenant, core.KindOrders,
			core.Order{ID: "O-2", SKU: "ZZ", Quantity: 9, Price: dec("99"), SaleDate: day(9)},
			core.Order{ID: "O-3", SKU: "A1", Quantity: 1, Price: dec("10"), SaleDate: day(3)},
		)
		assert.Equal(t, []string{"O-2"}, res.Duplicates)
		require.Len(t, res.Inserted, 1)
		assert.Equal(t, "O-3", res.Inserted[0].Key())

		orders, err := s.Orders(context.Background(), tenant, core.DateRange{})
		require.NoError(t, err)
		require.Len(t, orders, 3)
		assert.Equal(t, "A1", orders[1].SKU, "re-import never overwrites")

		logs, err := s.Imports(context.Background(), tenant, 10)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, 1, logs[0].Duplicates)
	})

	t.Run("TenantsAreIsolated", func(t *testing.T) {
		a, b := newTenant(), newTenant()
		insert(t, s, a, core.KindOrders, core.Order{ID: "O-1", SKU: "A1", Quantity: 1, Price: dec("1"), SaleDate: day(1)})
		res := insert(t, s, b, core.KindOrders, core.Order{ID: "O-1", SKU: "A1", Quantity: 1, Price: dec("1"), SaleDate: day(1)})
		assert.Len(t, res.Inserted, 1, "same id in another tenant is not a duplicate")

		ids, err := s.OrderIDs(context.Background(), b)
		require.NoError(t, err)
		assert.Equal(t, []string{"O-1"}, ids)

		_, err = s.Inputs(context.Background(), newTenant(), "O-1")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("InputsPickLatestPurchaseOnOrBeforeSale", func(t *testing.T) {
		tenant := newTenant()
		insert(t, s, tenant, core.KindOrders,
			core.Order{ID: "O-1", SKU: "A1", Quantity: 2, Price: dec("50"), SaleDate: day(10)})
		insert(t, s, tenant, core.KindPurchases,
			core.Purchase{ID: "P-1", SKU: "A1", Quantity: 5, UnitCost: dec("18"), PurchaseDate: day(1)},
			core.Purchase{ID: "P-2", SKU: "A1", Quantity: 5, UnitCost: dec("20"), PurchaseDate: day(5)},
			core.Purchase{ID: "P-3", SKU: "A1", Quantity: 5, UnitCost: dec("21"), PurchaseDate: day(5)},
			core.Purchase{ID: "P-4", SKU: "A1", Quantity: 5, UnitCost: dec("30"), PurchaseDate: day(11)},
			core.Purchase{ID: "P-5", SKU: "B2", Quantity: 5, UnitCost: dec("1"), PurchaseDate: day(9)},
		)
		insert(t, s, tenant, core.KindLogistics,
			core.LogisticsRecord{ID: "T-2", OrderID: "O-1", Cost: dec("3"), ShipDate: day(11)},
			core.LogisticsRecord{ID: "T-1", OrderID: "O-1", Cost: dec("2"), ShipDate: day(11)},
			core.LogisticsRecord{ID: "T-3", OrderID: "O-9", Cost: dec("7"), ShipDate: day(11)},
		)

		in, err := s.Inputs(context.Background(), tenant, "O-1")
		require.NoError(t, err)
		require.NotNil(t, in.Purchase)
		assert.Equal(t, "P-3", in.Purchase.ID, "same date resolves to the greater id")
		assert.True(t, in.Purchase.UnitCost.Equal(dec("21")))
		require.Len(t, in.Logistics, 2)
		assert.Equal(t, "T-1", in.Logistics[0].ID)

		ids, err := s.OrderIDsBySKU(context.Background(), tenant, []string{"A1", "B2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"O-1"}, ids)

		ids, err = s.ExistingOrderIDs(context.Background(), tenant, []string{"O-9", "O-1", "O-1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"O-1"}, ids)
	})

	t.Run("PutProfitKeepsNewest", func(t *testing.T) {
		tenant := newTenant()
		insert(t, s, tenant, core.KindOrders,
			core.Order{ID: "O-1", SKU: "A1", Quantity: 1, Price: dec("10"), SaleDate: day(1)})

		base := core.ProfitRecord{
			TenantID: tenant, OrderID: "O-1", SKU: "A1", SaleDate: day(1), Quantity: 1,
			Revenue: dec("10"), Profit: dec("10"), ProfitRate: dec("1"),
		}
		newer := base
		newer.Profit, newer.RecalculatedAt = dec("4.5"), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
		older := base
		older.Profit, older.RecalculatedAt = dec("1"), newer.RecalculatedAt.Add(-time.Minute)

		require.NoError(t, s.PutProfit(context.Background(), newer))
		require.NoError(t, s.PutProfit(context.Background(), older))

		recs, total, err := s.ProfitRecords(context.Background(), tenant, ProfitFilter{})
		require.NoError(t, err)
		require.Equal(t, 1, total)
		assert.True(t, recs[0].Profit.Equal(dec("4.5")))

		missing := base
		missing.OrderID = "nope"
		assert.ErrorIs(t, s.PutProfit(context.Background(), missing), ErrOrderNotFound)
	})

	t.Run("ProfitRecordsPaginateAndFilter", func(t *testing.T) {
		tenant := newTenant()
		for i := 1; i <= 5; i++ {
			id := fmt.Sprintf("O-%d", i)
			insert(t, s, tenant, core.KindOrders,
				core.Order{ID: id, SKU: "A1", Quantity: 1, Price: dec("1"), SaleDate: day(i)})
			require.NoError(t, s.PutProfit(context.Background(), core.ProfitRecord{
				TenantID: tenant, OrderID: id, SKU: "A1", SaleDate: day(i), Quantity: 1,
				Complete: i%2 == 0, RecalculatedAt: time.Now().UTC(),
			}))
		}

		page, total, err := s.ProfitRecords(context.Background(), tenant, ProfitFilter{Page: 2, PerPage: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, "O-3", page[0].OrderID, "newest sale date first")

		inc, total, err := s.ProfitRecords(context.Background(), tenant, ProfitFilter{
			IncompleteOnly: true,
			Range:          core.DateRange{From: day(2), To: day(5)},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, "O-5", inc[0].OrderID)

		c, err := s.Counts(context.Background(), tenant)
		require.NoError(t, err)
		assert.Equal(t, Counts{Orders: 5, Profit: 5}, c)
	})

	t.Run("ListingsPaginateSearchAndFilter", func(t *testing.T) {
		tenant := newTenant()
		insert(t, s, tenant, core.KindOrders,
			core.Order{ID: "O-1", SKU: "A1", ProductName: "Red Mug", Quantity: 1, Price: dec("1"), SaleDate: day(1), Status: "shipped"},
			core.Order{ID: "O-2", SKU: "B2", ProductName: "Blue Cup", Quantity: 1, Price: dec("1"), SaleDate: day(2), Status: "pending"},
			core.Order{ID: "O-3", SKU: "A1", ProductName: "Red Mug", Quantity: 1, Price: dec("1"), SaleDate: day(3), Status: "Shipped"},
			core.Order{ID: "O-4", SKU: "C3_X", ProductName: "100% Cotton", Quantity: 1, Price: dec("1"), SaleDate: day(4), Status: "cancelled"},
		)
		insert(t, s, tenant, core.KindPurchases,
			core.Purchase{ID: "P-1", SKU: "A1", Supplier: "Acme Trading", Quantity: 1, UnitCost: dec("1"), PurchaseDate: day(1)},
			core.Purchase{ID: "P-2", SKU: "B2", Supplier: "Globex", Quantity: 1, UnitCost: dec("1"), PurchaseDate: day(2)},
		)
		insert(t, s, tenant, core.KindLogistics,
			core.LogisticsRecord{ID: "T-1", OrderID: "O-1", Carrier: "DHL", Cost: dec("1"), ShipDate: day(2)},
			core.LogisticsRecord{ID: "T-2", OrderID: "O-3", Carrier: "UPS", Cost: dec("1"), ShipDate: day(4)},
			core.LogisticsRecord{ID: "T-3", Carrier: "dhl express", Cost: dec("1"), ShipDate: day(5)},
		)
		ctx := context.Background()

		orders, total, err := s.ListOrders(ctx, tenant, ListFilter{Page: 2, PerPage: 3})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, orders, 1)
		assert.Equal(t, "O-1", orders[0].ID, "newest sale date first")

		orders, total, err = s.ListOrders(ctx, tenant, ListFilter{Search: "red mug"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, orders, 2)
		assert.Equal(t, "O-3", orders[0].ID)

		orders, total, err = s.ListOrders(ctx, tenant, ListFilter{Statuses: []string{"shipped", "pending"}})
		require.NoError(t, err)
		assert.Equal(t, 3, total, "status match ignores case")
		assert.Equal(t, []string{"O-3", "O-2", "O-1"}, []string{orders[0].ID, orders[1].ID, orders[2].ID})

		orders, total, err = s.ListOrders(ctx, tenant, ListFilter{Range: core.DateRange{From: day(2), To: day(3)}})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, "O-3", orders[0].ID)

		_, total, err = s.ListOrders(ctx, tenant, ListFilter{Search: "%"})
		require.NoError(t, err)
		assert.Equal(t, 1, total, "wildcards in the term match literally")
		_, total, err = s.ListOrders(ctx, tenant, ListFilter{Search: "3_x"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		purchases, total, err := s.ListPurchases(ctx, tenant, ListFilter{Search: "acme"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, purchases, 1)
		assert.Equal(t, "P-1", purchases[0].ID)

		recs, total, err := s.ListLogistics(ctx, tenant, ListFilter{Search: "DHL", PerPage: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, recs, 1)
		assert.Equal(t, "T-3", recs[0].ID)

		recs, total, err = s.ListLogistics(ctx, tenant, ListFilter{Search: "o-3"})
		require.NoError(t, err)
		assert.Equal(t, 1, total, "matches the linked order id")
		assert.Equal(t, "T-2", recs[0].ID)

		recs, total, err = s.ListLogistics(ctx, tenant, ListFilter{Page: 1 << 40, PerPage: 50})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Empty(t, recs)

		_, total, err = s.ListOrders(ctx, newTenant(), ListFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("ConcurrentCommitsOfSameIDsInsertOnce", func(t *testing.T) {
		tenant := newTenant()
		var wg sync.WaitGroup
		results := make([]InsertResult, 4)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := s.Insert(context.Background(), Batch{
					TenantID: tenant, Kind: core.KindPurchases, ImportID: uuid.NewString(),
					Records: []core.Record{
						core.Purchase{ID: "P-1", SKU: "A1", Quantity: 1, UnitCost: dec("1"), PurchaseDate: day(1)},
					},
				})
				assert.NoError(t, err)
				results[i] = res
			}(i)
		}
		wg.Wait()

		inserted := 0
		for _, r := range results {
			inserted += len(r.Inserted)
		}
		assert.Equal(t, 1, inserted)
	})
}
