// Package stats computes read-only aggregates over a tenant's records.
// Nothing here triggers a recalculation: profit figures are whatever the
// reconciliation engine last wrote, incomplete records included.
package stats

import (
	"context"
	"sort"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/JonMunkholm/profitrecon/internal/reconcile"
	"github.com/JonMunkholm/profitrecon/internal/store"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Reader is the read side of the record store.
type Reader interface {
	Orders(ctx context.Context, tenant string, r core.DateRange) ([]core.Order, error)
	Purchases(ctx context.Context, tenant string, r core.DateRange) ([]core.Purchase, error)
	Logistics(ctx context.Context, tenant string, r core.DateRange) ([]core.LogisticsRecord, error)
	ListOrders(ctx context.Context, tenant string, f store.ListFilter) ([]core.Order, int, error)
	ListPurchases(ctx context.Context, tenant string, f store.ListFilter) ([]core.Purchase, int, error)
	ListLogistics(ctx context.Context, tenant string, f store.ListFilter) ([]core.LogisticsRecord, int, error)
	ProfitRecords(ctx context.Context, tenant string, f store.ProfitFilter) ([]core.ProfitRecord, int, error)
	Counts(ctx context.Context, tenant string) (store.Counts, error)
}

// Aggregator answers dashboard and statistics queries.
type Aggregator struct {
	store Reader
	now   func() time.Time
}

func New(r Reader) *Aggregator {
	return &Aggregator{store: r, now: time.Now}
}

// Dashboard summarises profit records whose sale date falls in a range.
type Dashboard struct {
	Revenue       decimal.Decimal `json:"revenue"`
	Cost          decimal.Decimal `json:"cost"`
	LogisticsCost decimal.Decimal `json:"logisticsCost"`
	Fees          decimal.Decimal `json:"fees"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitMargin  decimal.Decimal `json:"profitMargin"`

	Records    int `json:"records"`
	Complete   int `json:"complete"`
	Incomplete int `json:"incomplete"`
	// Pending counts orders in range that have no profit record yet.
	Pending int `json:"pending"`

	Counts store.Counts `json:"counts"`

	OldestCalculation *time.Time `json:"oldestCalculation,omitempty"`
	NewestCalculation *time.Time `json:"newestCalculation,omitempty"`
}

func (a *Aggregator) Dashboard(ctx context.Context, tenant string, r core.DateRange) (*Dashboard, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}

	var (
		orders  []core.Order
		records []core.ProfitRecord
		counts  store.Counts
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		orders, err = a.store.Orders(gctx, tenant, r)
		return err
	})
	g.Go(func() (err error) {
		records, _, err = a.store.ProfitRecords(gctx, tenant, store.ProfitFilter{Range: r})
		return err
	})
	g.Go(func() (err error) {
		counts, err = a.store.Counts(gctx, tenant)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := &Dashboard{Counts: counts}
	var t totals
	priced := make(map[string]struct{}, len(records))
	for _, rec := range records {
		t.add(rec)
		priced[rec.OrderID] = struct{}{}
		if rec.Complete {
			d.Complete++
		} else {
			d.Incomplete++
		}
		at := rec.RecalculatedAt
		if d.OldestCalculation == nil || at.Before(*d.OldestCalculation) {
			d.OldestCalculation = &at
		}
		if d.NewestCalculation == nil || at.After(*d.NewestCalculation) {
			d.NewestCalculation = &at
		}
	}
	for _, o := range orders {
		if _, ok := priced[o.ID]; !ok {
			d.Pending++
		}
	}

	d.Records = len(records)
	d.Revenue, d.Cost, d.LogisticsCost, d.Fees, d.Profit = t.revenue, t.cost, t.logistics, t.fees, t.profit
	d.ProfitMargin = rate(t.profit, t.revenue)
	return d, nil
}

// Series is a bucketed statistic plus its total over the whole range.
type Series[T any] struct {
	Period  Period `json:"period"`
	Items   []T    `json:"items"`
	Summary T      `json:"summary"`
}

// ProfitBucket aggregates profit records of one period.
type ProfitBucket struct {
	Label         string          `json:"date,omitempty"`
	Revenue       decimal.Decimal `json:"revenue"`
	Cost          decimal.Decimal `json:"cost"`
	LogisticsCost decimal.Decimal `json:"logisticsCost"`
	Fees          decimal.Decimal `json:"fees"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitRate    decimal.Decimal `json:"profitRate"`
	Orders        int             `json:"orderCount"`
	Incomplete    int             `json:"incompleteCount"`
}

type totals struct {
	revenue, cost, logistics, fees, profit decimal.Decimal
}

func (t *totals) add(rec core.ProfitRecord) {
	t.revenue = t.revenue.Add(rec.Revenue)
	t.cost = t.cost.Add(rec.Cost)
	t.logistics = t.logistics.Add(rec.LogisticsCost)
	t.fees = t.fees.Add(rec.Fees)
	t.profit = t.profit.Add(rec.Profit)
}

func (b *ProfitBucket) add(rec core.ProfitRecord) {
	b.Revenue = b.Revenue.Add(rec.Revenue)
	b.Cost = b.Cost.Add(rec.Cost)
	b.LogisticsCost = b.LogisticsCost.Add(rec.LogisticsCost)
	b.Fees = b.Fees.Add(rec.Fees)
	b.Profit = b.Profit.Add(rec.Profit)
	b.Orders++
	if !rec.Complete {
		b.Incomplete++
	}
}

func (b *ProfitBucket) finish() {
	b.ProfitRate = rate(b.Profit, b.Revenue)
}

// ProfitStats buckets profit records by sale date.
func (a *Aggregator) ProfitStats(ctx context.Context, tenant string, r core.DateRange, p Period) (*Series[ProfitBucket], error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	records, _, err := a.store.ProfitRecords(ctx, tenant, store.ProfitFilter{Range: r})
	if err != nil {
		return nil, err
	}
	return bucket(p, records,
		func(rec core.ProfitRecord) time.Time { return rec.SaleDate },
		(*ProfitBucket).add,
		(*ProfitBucket).finish,
		func(b *ProfitBucket, label string) { b.Label = label },
	), nil
}

// OrderBucket aggregates raw orders of one period.
type OrderBucket struct {
	Label     string          `json:"date,omitempty"`
	Amount    decimal.Decimal `json:"orderAmount"`
	Quantity  int64           `json:"quantity"`
	Count     int             `json:"orderCount"`
	AvgAmount decimal.Decimal `json:"avgOrderAmount"`
}

func (a *Aggregator) OrderStats(ctx context.Context, tenant string, r core.DateRange, p Period) (*Series[OrderBucket], error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	orders, err := a.store.Orders(ctx, tenant, r)
	if err != nil {
		return nil, err
	}
	return bucket(p, orders,
		func(o core.Order) time.Time { return o.SaleDate },
		func(b *OrderBucket, o core.Order) {
			b.Amount = b.Amount.Add(o.Revenue())
			b.Quantity += o.Quantity
			b.Count++
		},
		func(b *OrderBucket) { b.AvgAmount = average(b.Amount, int64(b.Count)) },
		func(b *OrderBucket, label string) { b.Label = label },
	), nil
}

// PurchaseBucket aggregates raw purchases of one period.
type PurchaseBucket struct {
	Label       string          `json:"date,omitempty"`
	Amount      decimal.Decimal `json:"purchaseAmount"`
	Quantity    int64           `json:"quantity"`
	Count       int             `json:"purchaseCount"`
	AvgUnitCost decimal.Decimal `json:"avgPrice"`
}

func (a *Aggregator) PurchaseStats(ctx context.Context, tenant string, r core.DateRange, p Period) (*Series[PurchaseBucket], error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	purchases, err := a.store.Purchases(ctx, tenant, r)
	if err != nil {
		return nil, err
	}
	return bucket(p, purchases,
		func(pu core.Purchase) time.Time { return pu.PurchaseDate },
		func(b *PurchaseBucket, pu core.Purchase) {
			b.Amount = b.Amount.Add(pu.UnitCost.Mul(decimal.NewFromInt(pu.Quantity)))
			b.Quantity += pu.Quantity
			b.Count++
		},
		func(b *PurchaseBucket) { b.AvgUnitCost = average(b.Amount, b.Quantity) },
		func(b *PurchaseBucket, label string) { b.Label = label },
	), nil
}

// LogisticsBucket aggregates shipment charges of one period.
type LogisticsBucket struct {
	Label   string          `json:"date,omitempty"`
	Cost    decimal.Decimal `json:"shippingFee"`
	Count   int             `json:"shipmentCount"`
	Linked  int             `json:"linkedCount"`
	AvgCost decimal.Decimal `json:"avgShippingFee"`
}

func (a *Aggregator) LogisticsStats(ctx context.Context, tenant string, r core.DateRange, p Period) (*Series[LogisticsBucket], error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	recs, err := a.store.Logistics(ctx, tenant, r)
	if err != nil {
		return nil, err
	}
	return bucket(p, recs,
		func(l core.LogisticsRecord) time.Time { return l.ShipDate },
		func(b *LogisticsBucket, l core.LogisticsRecord) {
			b.Cost = b.Cost.Add(l.Cost)
			b.Count++
			if l.OrderID != "" {
				b.Linked++
			}
		},
		func(b *LogisticsBucket) { b.AvgCost = average(b.Cost, int64(b.Count)) },
		func(b *LogisticsBucket, label string) { b.Label = label },
	), nil
}

// bucket groups items by period label, in chronological order, and folds
// every item into the summary as well.
func bucket[I, B any](p Period, items []I, at func(I) time.Time, add func(*B, I), finish func(*B), label func(*B, string)) *Series[B] {
	byLabel := make(map[string]*B)
	var summary B
	for _, it := range items {
		l := p.Label(at(it))
		b, ok := byLabel[l]
		if !ok {
			b = new(B)
			label(b, l)
			byLabel[l] = b
		}
		add(b, it)
		add(&summary, it)
	}

	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	out := &Series[B]{Period: p, Items: make([]B, 0, len(labels))}
	for _, l := range labels {
		b := byLabel[l]
		finish(b)
		out.Items = append(out.Items, *b)
	}
	finish(&summary)
	out.Summary = summary
	return out
}

// KPI is the at-a-glance figure set for the current day.
type KPI struct {
	Date        string          `json:"date"`
	TodayOrders int             `json:"todayOrders"`
	TodaySales  decimal.Decimal `json:"todaySales"`
	TodayProfit decimal.Decimal `json:"todayProfit"`
	TotalOrders int64           `json:"totalOrders"`
	Incomplete  int             `json:"incompleteCount"`
}

func (a *Aggregator) KPI(ctx context.Context, tenant string) (*KPI, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	now := a.now()
	today := core.DateRange{From: StartOfDay(now), To: EndOfDay(now)}

	k := &KPI{Date: today.From.Format(dateLayout)}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orders, err := a.store.Orders(gctx, tenant, today)
		if err != nil {
			return err
		}
		k.TodayOrders = len(orders)
		for _, o := range orders {
			k.TodaySales = k.TodaySales.Add(o.Revenue())
		}
		return nil
	})
	g.Go(func() error {
		recs, _, err := a.store.ProfitRecords(gctx, tenant, store.ProfitFilter{Range: today})
		if err != nil {
			return err
		}
		for _, rec := range recs {
			k.TodayProfit = k.TodayProfit.Add(rec.Profit)
		}
		return nil
	})
	g.Go(func() error {
		_, n, err := a.store.ProfitRecords(gctx, tenant, store.ProfitFilter{IncompleteOnly: true, PerPage: 1})
		k.Incomplete = n
		return err
	})
	g.Go(func() error {
		c, err := a.store.Counts(gctx, tenant)
		k.TotalOrders = c.Orders
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return k, nil
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalPages int `json:"totalPages"`
}

// ProfitPage is one page of profit records.
type ProfitPage = Page[core.ProfitRecord]

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// clampPage fills in the default page and page size and caps the size.
func clampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case perPage <= 0:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return page, perPage
}

func newPage[T any](items []T, total, page, perPage int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}
}

func (a *Aggregator) ProfitRecords(ctx context.Context, tenant string, f store.ProfitFilter) (*ProfitPage, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	f.Page, f.PerPage = clampPage(f.Page, f.PerPage)
	items, total, err := a.store.ProfitRecords(ctx, tenant, f)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, f.Page, f.PerPage), nil
}

// listPage runs one of the record listings with the page clamped.
func listPage[T any](ctx context.Context, tenant string, f store.ListFilter,
	list func(context.Context, string, store.ListFilter) ([]T, int, error)) (*Page[T], error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	f.Page, f.PerPage = clampPage(f.Page, f.PerPage)
	items, total, err := list(ctx, tenant, f)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, f.Page, f.PerPage), nil
}

// Orders lists orders newest first.
func (a *Aggregator) Orders(ctx context.Context, tenant string, f store.ListFilter) (*Page[core.Order], error) {
	return listPage(ctx, tenant, f, a.store.ListOrders)
}

func (a *Aggregator) Purchases(ctx context.Context, tenant string, f store.ListFilter) (*Page[core.Purchase], error) {
	return listPage(ctx, tenant, f, a.store.ListPurchases)
}

func (a *Aggregator) Logistics(ctx context.Context, tenant string, f store.ListFilter) (*Page[core.LogisticsRecord], error) {
	return listPage(ctx, tenant, f, a.store.ListLogistics)
}

func rate(profit, revenue decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return profit.DivRound(revenue, reconcile.Scale)
}

func average(sum decimal.Decimal, n int64) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.DivRound(decimal.NewFromInt(n), reconcile.Scale)
}
