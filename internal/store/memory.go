package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
)

type tenantData struct {
	orders           map[string]core.Order
	purchases        map[string]core.Purchase
	purchasesBySKU   map[string][]string
	logistics        map[string]core.LogisticsRecord
	logisticsByOrder map[string][]string
	profits          map[string]core.ProfitRecord
	imports          []ImportLog
}

func newTenantData() *tenantData {
	return &tenantData{
		orders:           make(map[string]core.Order),
		purchases:        make(map[string]core.Purchase),
		purchasesBySKU:   make(map[string][]string),
		logistics:        make(map[string]core.LogisticsRecord),
		logisticsByOrder: make(map[string][]string),
		profits:          make(map[string]core.ProfitRecord),
	}
}

// Memory is an in-process Store. Records are held by value, so a reader
// always gets a whole copy.
type Memory struct {
	mu      sync.RWMutex
	tenants map[string]*tenantData
	now     func() time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{tenants: make(map[string]*tenantData), now: time.Now}
}

// tenant must be called with mu held. It returns nil for unknown tenants
// unless create is set.
func (m *Memory) tenant(id string, create bool) *tenantData {
	td, ok := m.tenants[id]
	if !ok && create {
		td = newTenantData()
		m.tenants[id] = td
	}
	return td
}

func (m *Memory) Insert(ctx context.Context, b Batch) (InsertResult, error) {
	if b.TenantID == "" {
		return InsertResult{}, core.ErrTenantRequired
	}
	if err := ctx.Err(); err != nil {
		return InsertResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	td := m.tenant(b.TenantID, true)
	now := m.now().UTC()

	var res InsertResult
	for _, rec := range b.Records {
		if rec.Kind() != b.Kind {
			return InsertResult{}, fmt.Errorf("insert %s batch: got %s record", b.Kind, rec.Kind())
		}
	}

	for _, rec := range b.Records {
		switch r := rec.(type) {
		case core.Order:
			if _, dup := td.orders[r.ID]; dup {
				res.Duplicates = append(res.Duplicates, r.ID)
				continue
			}
			r.TenantID, r.ImportID, r.CreatedAt = b.TenantID, b.ImportID, now
			td.orders[r.ID] = r
			res.Inserted = append(res.Inserted, r)
		case core.Purchase:
			if _, dup := td.purchases[r.ID]; dup {
				res.Duplicates = append(res.Duplicates, r.ID)
				continue
			}
			r.TenantID, r.ImportID, r.CreatedAt = b.TenantID, b.ImportID, now
			td.purchases[r.ID] = r
			td.purchasesBySKU[r.SKU] = append(td.purchasesBySKU[r.SKU], r.ID)
			res.Inserted = append(res.Inserted, r)
		case core.LogisticsRecord:
			if _, dup := td.logistics[r.ID]; dup {
				res.Duplicates = append(res.Duplicates, r.ID)
				continue
			}
			r.TenantID, r.ImportID, r.CreatedAt = b.TenantID, b.ImportID, now
			td.logistics[r.ID] = r
			if r.OrderID != "" {
				td.logisticsByOrder[r.OrderID] = append(td.logisticsByOrder[r.OrderID], r.ID)
			}
			res.Inserted = append(res.Inserted, r)
		}
	}

	td.imports = append(td.imports, ImportLog{
		ID:         b.ImportID,
		Kind:       b.Kind,
		FileName:   b.FileName,
		Principal:  b.Principal,
		Inserted:   len(res.Inserted),
		Skipped:    b.Skipped,
		Duplicates: len(res.Duplicates),
		CreatedAt:  now,
	})
	return res, nil
}

func (m *Memory) Inputs(ctx context.Context, tenant, orderID string) (*Inputs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td := m.tenant(tenant, false)
	if td == nil {
		return nil, ErrOrderNotFound
	}
	o, ok := td.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}

	in := &Inputs{Order: o}
	for _, id := range td.purchasesBySKU[o.SKU] {
		p := td.purchases[id]
		if p.PurchaseDate.After(o.SaleDate) {
			continue
		}
		if in.Purchase == nil || laterPurchase(p, *in.Purchase) {
			p := p
			in.Purchase = &p
		}
	}
	for _, id := range td.logisticsByOrder[orderID] {
		in.Logistics = append(in.Logistics, td.logistics[id])
	}
	sort.Slice(in.Logistics, func(i, j int) bool { return in.Logistics[i].ID < in.Logistics[j].ID })
	return in, nil
}

// laterPurchase orders purchases by date, then by identifier.
func laterPurchase(a, b core.Purchase) bool {
	if !a.PurchaseDate.Equal(b.PurchaseDate) {
		return a.PurchaseDate.After(b.PurchaseDate)
	}
	return a.ID > b.ID
}

func (m *Memory) PutProfit(ctx context.Context, rec core.ProfitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	td := m.tenant(rec.TenantID, false)
	if td == nil {
		return ErrOrderNotFound
	}
	if _, ok := td.orders[rec.OrderID]; !ok {
		return ErrOrderNotFound
	}
	if cur, ok := td.profits[rec.OrderID]; ok && cur.RecalculatedAt.After(rec.RecalculatedAt) {
		return nil
	}
	td.profits[rec.OrderID] = rec
	return nil
}

func (m *Memory) OrderIDs(ctx context.Context, tenant string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td := m.tenant(tenant, false)
	if td == nil {
		return nil, nil
	}
	ids := make([]string, 0, len(td.orders))
	for id := range td.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) OrderIDsBySKU(ctx context.Context, tenant string, skus []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td := m.tenant(tenant, false)
	if td == nil || len(skus) == 0 {
		return nil, nil
	}
	want := make(map[string]struct{}, len(skus))
	for _, s := range skus {
		want[s] = struct{}{}
	}
	var ids []string
	for id, o := range td.orders {
		if _, ok := want[o.SKU]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) ExistingOrderIDs(ctx context.Context, tenant string, ids []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td := m.tenant(tenant, false)
	if td == nil {
		return nil, nil
	}
	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := td.orders[id]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// snapshot copies one of a tenant's record maps under the read lock so that
// filtering and sorting run without holding it.
func snapshot[T any](m *Memory, tenant string, pick func(*tenantData) map[string]T) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td := m.tenant(tenant, false)
	if td == nil {
		return nil
	}
	src := pick(td)
	out := make([]T, 0, len(src))
	for _, v := range src {
		out = append(out, v)
	}
	return out
}

// filterSort keeps the values matching keep and sorts them with less.
func filterSort[T any](all []T, keep func(T) bool, less func(a, b T) bool) []T {
	out := all[:0]
	for _, v := range all {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// newestFirst orders by date descending, then by identifier.
func newestFirst(ta, tb time.Time, ida, idb string) bool {
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return ida < idb
}

// oldestFirst orders by date ascending, then by identifier.
func oldestFirst(ta, tb time.Time, ida, idb string) bool {
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return ida < idb
}

func paginate[T any](all []T, p, perPage int) ([]T, int, error) {
	start, end := pageBounds(p, perPage, len(all))
	return all[start:end], len(all), nil
}

func ordersOf(td *tenantData) map[string]core.Order              { return td.orders }
func purchasesOf(td *tenantData) map[string]core.Purchase        { return td.purchases }
func logisticsOf(td *tenantData) map[string]core.LogisticsRecord { return td.logistics }
func profitsOf(td *tenantData) map[string]core.ProfitRecord      { return td.profits }

func (m *Memory) Orders(ctx context.Context, tenant string, r core.DateRange) ([]core.Order, error) {
	out := filterSort(snapshot(m, tenant, ordersOf),
		func(o core.Order) bool { return r.Contains(o.SaleDate) },
		func(a, b core.Order) bool { return oldestFirst(a.SaleDate, b.SaleDate, a.ID, b.ID) })
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (m *Memory) Purchases(ctx context.Context, tenant string, r core.DateRange) ([]core.Purchase, error) {
	out := filterSort(snapshot(m, tenant, purchasesOf),
		func(p core.Purchase) bool { return r.Contains(p.PurchaseDate) },
		func(a, b core.Purchase) bool { return oldestFirst(a.PurchaseDate, b.PurchaseDate, a.ID, b.ID) })
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (m *Memory) Logistics(ctx context.Context, tenant string, r core.DateRange) ([]core.LogisticsRecord, error) {
	out := filterSort(snapshot(m, tenant, logisticsOf),
		func(l core.LogisticsRecord) bool { return r.Contains(l.ShipDate) },
		func(a, b core.LogisticsRecord) bool { return oldestFirst(a.ShipDate, b.ShipDate, a.ID, b.ID) })
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (m *Memory) ListOrders(ctx context.Context, tenant string, f ListFilter) ([]core.Order, int, error) {
	all := filterSort(snapshot(m, tenant, ordersOf),
		func(o core.Order) bool {
			return f.Range.Contains(o.SaleDate) && hasStatus(o.Status, f.Statuses) &&
				matchesSearch(f.Search, o.ID, o.SKU, o.ProductName)
		},
		func(a, b core.Order) bool { return newestFirst(a.SaleDate, b.SaleDate, a.ID, b.ID) })
	return paginate(all, f.Page, f.PerPage)
}

func (m *Memory) ListPurchases(ctx context.Context, tenant string, f ListFilter) ([]core.Purchase, int, error) {
	all := filterSort(snapshot(m, tenant, purchasesOf),
		func(p core.Purchase) bool {
			return f.Range.Contains(p.PurchaseDate) &&
				matchesSearch(f.Search, p.ID, p.SKU, p.ProductName, p.Supplier)
		},
		func(a, b core.Purchase) bool { return newestFirst(a.PurchaseDate, b.PurchaseDate, a.ID, b.ID) })
	return paginate(all, f.Page, f.PerPage)
}

func (m *Memory) ListLogistics(ctx context.Context, tenant string, f ListFilter) ([]core.LogisticsRecord, int, error) {
	all := filterSort(snapshot(m, tenant, logisticsOf),
		func(l core.LogisticsRecord) bool {
			return f.Range.Contains(l.ShipDate) &&
				matchesSearch(f.Search, l.ID, l.OrderID, l.Carrier, l.Destination)
		},
		func(a, b core.LogisticsRecord) bool { return newestFirst(a.ShipDate, b.ShipDate, a.ID, b.ID) })
	return paginate(all, f.Page, f.PerPage)
}

func (m *Memory) ProfitRecords(ctx context.Context, tenant string, f ProfitFilter) ([]core.ProfitRecord, int, error) {
	all := filterSort(snapshot(m, tenant, profitsOf),
		func(p core.ProfitRecord) bool {
			return f.Range.Contains(p.SaleDate) && !(f.IncompleteOnly && p.Complete)
		},
		func(a, b core.ProfitRecord) bool { return newestFirst(a.SaleDate, b.SaleDate, a.OrderID, b.OrderID) })
	return paginate(all, f.Page, f.PerPage)
}

func (m *Memory) Counts(ctx context.Context, tenant string) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td := m.tenant(tenant, false)
	if td == nil {
		return Counts{}, nil
	}
	return Counts{
		Orders:    int64(len(td.orders)),
		Purchases: int64(len(td.purchases)),
		Logistics: int64(len(td.logistics)),
		Profit:    int64(len(td.profits)),
	}, nil
}

func (m *Memory) Imports(ctx context.Context, tenant string, limit int) ([]ImportLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td := m.tenant(tenant, false)
	if td == nil {
		return nil, nil
	}
	out := make([]ImportLog, 0, len(td.imports))
	for i := len(td.imports) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, td.imports[i])
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}

var _ Store = (*Memory)(nil)
