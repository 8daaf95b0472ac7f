package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Postgres is the durable Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPool connects and pings.
func OpenPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify(fmt.Errorf("ping database: %w", err))
	}
	return pool, nil
}

// NewPostgres wraps an open pool. The store owns the pool from here on.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// table, columns and row values per kind, in COPY order.
var kindTables = map[core.Kind]struct {
	table   string
	columns []string
}{
	core.KindOrders: {"orders", []string{
		"tenant_id", "id", "sku", "product_name", "quantity", "price", "fees",
		"currency", "sale_date", "status", "import_id", "created_at",
	}},
	core.KindPurchases: {"purchases", []string{
		"tenant_id", "id", "sku", "product_name", "supplier", "quantity",
		"unit_cost", "purchase_date", "import_id", "created_at",
	}},
	core.KindLogistics: {"logistics_records", []string{
		"tenant_id", "id", "order_id", "carrier", "cost", "weight", "volume",
		"destination", "ship_date", "import_id", "created_at",
	}},
}

func copyRow(tenant, importID string, now time.Time, rec core.Record) []any {
	switch r := rec.(type) {
	case core.Order:
		return []any{tenant, r.ID, r.SKU, r.ProductName, r.Quantity, numeric(r.Price), numeric(r.Fees),
			r.Currency, r.SaleDate, r.Status, importID, now}
	case core.Purchase:
		return []any{tenant, r.ID, r.SKU, r.ProductName, r.Supplier, r.Quantity,
			numeric(r.UnitCost), r.PurchaseDate, importID, now}
	case core.LogisticsRecord:
		return []any{tenant, r.ID, r.OrderID, r.Carrier, numeric(r.Cost), numeric(r.Weight), numeric(r.Volume),
			r.Destination, r.ShipDate, importID, now}
	}
	return nil
}

func stamp(rec core.Record, tenant, importID string, now time.Time) core.Record {
	switch r := rec.(type) {
	case core.Order:
		r.TenantID, r.ImportID, r.CreatedAt = tenant, importID, now
		return r
	case core.Purchase:
		r.TenantID, r.ImportID, r.CreatedAt = tenant, importID, now
		return r
	case core.LogisticsRecord:
		r.TenantID, r.ImportID, r.CreatedAt = tenant, importID, now
		return r
	}
	return rec
}

// Insert runs the whole batch in one transaction. Commits of the same
// (tenant, kind) are serialized across instances by an advisory lock so the
// duplicate check and the COPY see a stable set of identifiers.
func (p *Postgres) Insert(ctx context.Context, b Batch) (InsertResult, error) {
	if b.TenantID == "" {
		return InsertResult{}, core.ErrTenantRequired
	}
	spec, ok := kindTables[b.Kind]
	if !ok {
		return InsertResult{}, fmt.Errorf("%w: %q", core.ErrUnknownKind, b.Kind)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return InsertResult{}, classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", b.TenantID+":"+string(b.Kind)); err != nil {
		return InsertResult{}, classify(fmt.Errorf("lock %s import: %w", b.Kind, err))
	}

	ids := make([]string, 0, len(b.Records))
	for _, rec := range b.Records {
		if rec.Kind() != b.Kind {
			return InsertResult{}, fmt.Errorf("insert %s batch: got %s record", b.Kind, rec.Kind())
		}
		ids = append(ids, rec.Key())
	}

	rows, err := tx.Query(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE tenant_id = $1 AND id = ANY($2)", spec.table),
		b.TenantID, ids)
	if err != nil {
		return InsertResult{}, classify(fmt.Errorf("check existing %s: %w", b.Kind, err))
	}
	existingIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return InsertResult{}, classify(fmt.Errorf("check existing %s: %w", b.Kind, err))
	}
	existing := make(map[string]struct{}, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = struct{}{}
	}

	now := time.Now().UTC()
	var res InsertResult
	for _, rec := range b.Records {
		if _, dup := existing[rec.Key()]; dup {
			res.Duplicates = append(res.Duplicates, rec.Key())
			continue
		}
		existing[rec.Key()] = struct{}{}
		res.Inserted = append(res.Inserted, stamp(rec, b.TenantID, b.ImportID, now))
	}

	if len(res.Inserted) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{spec.table}, spec.columns,
			pgx.CopyFromSlice(len(res.Inserted), func(i int) ([]any, error) {
				return copyRow(b.TenantID, b.ImportID, now, res.Inserted[i]), nil
			}))
		if err != nil {
			return InsertResult{}, classify(fmt.Errorf("copy %s: %w", b.Kind, err))
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO imports (id, tenant_id, kind, file_name, principal, inserted, skipped, duplicates, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ImportID, b.TenantID, string(b.Kind), b.FileName, b.Principal,
		len(res.Inserted), b.Skipped, len(res.Duplicates), now)
	if err != nil {
		return InsertResult{}, classify(fmt.Errorf("record import: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return InsertResult{}, classify(fmt.Errorf("commit transaction: %w", err))
	}
	return res, nil
}

const (
	orderColumns     = "id, sku, product_name, quantity, price, fees, currency, sale_date, status, import_id, created_at"
	purchaseColumns  = "id, sku, product_name, supplier, quantity, unit_cost, purchase_date, import_id, created_at"
	logisticsColumns = "id, order_id, carrier, cost, weight, volume, destination, ship_date, import_id, created_at"
	profitColumns    = "order_id, sku, sale_date, quantity, revenue, unit_cost, cost, cost_matched, purchase_id, " +
		"logistics_cost, logistics_matched, logistics_count, fees, profit, profit_rate, complete, recalculated_at"
)

// Inputs reads the order, its matching purchase and its logistics records
// inside one REPEATABLE READ transaction so all three come from the same
// snapshot.
func (p *Postgres) Inputs(ctx context.Context, tenant, orderID string) (*Inputs, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classify(fmt.Errorf("begin snapshot: %w", err))
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE tenant_id = $1 AND id = $2", tenant, orderID), tenant)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("load order: %w", err))
	}
	in := &Inputs{Order: o}

	pur, err := scanPurchase(tx.QueryRow(ctx, `
		SELECT `+purchaseColumns+` FROM purchases
		WHERE tenant_id = $1 AND sku = $2 AND purchase_date <= $3
		ORDER BY purchase_date DESC, id DESC
		LIMIT 1`, tenant, o.SKU, o.SaleDate), tenant)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, classify(fmt.Errorf("load purchase: %w", err))
	default:
		in.Purchase = &pur
	}

	rows, err := tx.Query(ctx,
		"SELECT "+logisticsColumns+" FROM logistics_records WHERE tenant_id = $1 AND order_id = $2 ORDER BY id",
		tenant, orderID)
	if err != nil {
		return nil, classify(fmt.Errorf("load logistics: %w", err))
	}
	in.Logistics, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (core.LogisticsRecord, error) {
		return scanLogistics(r, tenant)
	})
	if err != nil {
		return nil, classify(fmt.Errorf("load logistics: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}
	return in, nil
}

// PutProfit upserts the record. The WHERE guard keeps an older computation
// from replacing a newer one.
func (p *Postgres) PutProfit(ctx context.Context, r core.ProfitRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO profit_records (tenant_id, `+profitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (tenant_id, order_id) DO UPDATE SET
			sku = EXCLUDED.sku,
			sale_date = EXCLUDED.sale_date,
			quantity = EXCLUDED.quantity,
			revenue = EXCLUDED.revenue,
			unit_cost = EXCLUDED.unit_cost,
			cost = EXCLUDED.cost,
			cost_matched = EXCLUDED.cost_matched,
			purchase_id = EXCLUDED.purchase_id,
			logistics_cost = EXCLUDED.logistics_cost,
			logistics_matched = EXCLUDED.logistics_matched,
			logistics_count = EXCLUDED.logistics_count,
			fees = EXCLUDED.fees,
			profit = EXCLUDED.profit,
			profit_rate = EXCLUDED.profit_rate,
			complete = EXCLUDED.complete,
			recalculated_at = EXCLUDED.recalculated_at
		WHERE profit_records.recalculated_at <= EXCLUDED.recalculated_at`,
		r.TenantID, r.OrderID, r.SKU, r.SaleDate, r.Quantity, numeric(r.Revenue), numeric(r.UnitCost),
		numeric(r.Cost), r.CostMatched, r.PurchaseID, numeric(r.LogisticsCost), r.LogisticsMatched,
		r.LogisticsCount, numeric(r.Fees), numeric(r.Profit), numeric(r.ProfitRate), r.Complete, r.RecalculatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrOrderNotFound
	}
	if err != nil {
		return classify(fmt.Errorf("upsert profit record: %w", err))
	}
	return nil
}

func (p *Postgres) OrderIDs(ctx context.Context, tenant string) ([]string, error) {
	return p.collectIDs(ctx, "SELECT id FROM orders WHERE tenant_id = $1 ORDER BY id", tenant)
}

func (p *Postgres) OrderIDsBySKU(ctx context.Context, tenant string, skus []string) ([]string, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	return p.collectIDs(ctx, "SELECT id FROM orders WHERE tenant_id = $1 AND sku = ANY($2) ORDER BY id", tenant, skus)
}

func (p *Postgres) ExistingOrderIDs(ctx context.Context, tenant string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return p.collectIDs(ctx, "SELECT id FROM orders WHERE tenant_id = $1 AND id = ANY($2) ORDER BY id", tenant, ids)
}

func (p *Postgres) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("query ids: %w", err))
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(fmt.Errorf("collect ids: %w", err))
	}
	return ids, nil
}

// rangeClause appends inclusive date bounds on col to where and args.
func rangeClause(col string, r core.DateRange, where []string, args []any) ([]string, []any) {
	if !r.From.IsZero() {
		args = append(args, r.From)
		where = append(where, fmt.Sprintf("%s >= $%d", col, len(args)))
	}
	if !r.To.IsZero() {
		args = append(args, r.To)
		where = append(where, fmt.Sprintf("%s <= $%d", col, len(args)))
	}
	return where, args
}

func (p *Postgres) Orders(ctx context.Context, tenant string, r core.DateRange) ([]core.Order, error) {
	where, args := rangeClause("sale_date", r, []string{"tenant_id = $1"}, []any{tenant})
	rows, err := p.pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE "+strings.Join(where, " AND ")+" ORDER BY sale_date, id", args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list orders: %w", err))
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Order, error) {
		return scanOrder(row, tenant)
	})
}

func (p *Postgres) Purchases(ctx context.Context, tenant string, r core.DateRange) ([]core.Purchase, error) {
	where, args := rangeClause("purchase_date", r, []string{"tenant_id = $1"}, []any{tenant})
	rows, err := p.pool.Query(ctx,
		"SELECT "+purchaseColumns+" FROM purchases WHERE "+strings.Join(where, " AND ")+" ORDER BY purchase_date, id", args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list purchases: %w", err))
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Purchase, error) {
		return scanPurchase(row, tenant)
	})
}

func (p *Postgres) Logistics(ctx context.Context, tenant string, r core.DateRange) ([]core.LogisticsRecord, error) {
	where, args := rangeClause("ship_date", r, []string{"tenant_id = $1"}, []any{tenant})
	rows, err := p.pool.Query(ctx,
		"SELECT "+logisticsColumns+" FROM logistics_records WHERE "+strings.Join(where, " AND ")+" ORDER BY ship_date, id", args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list logistics: %w", err))
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.LogisticsRecord, error) {
		return scanLogistics(row, tenant)
	})
}

// likeEscaper quotes LIKE wildcards so a search term matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchClause appends a case-insensitive substring match of term against
// any of cols.
func searchClause(term string, cols []string, where []string, args []any) ([]string, []any) {
	if term == "" {
		return where, args
	}
	args = append(args, "%"+likeEscaper.Replace(term)+"%")
	ors := make([]string, len(cols))
	for i, c := range cols {
		ors[i] = fmt.Sprintf("%s ILIKE $%d", c, len(args))
	}
	return append(where, "("+strings.Join(ors, " OR ")+")"), args
}

// queryPage counts the rows of table matching where, then loads the
// requested page of them in order.
func queryPage[T any](ctx context.Context, p *Postgres, table, columns, order string, where []string, args []any,
	page, perPage int, scan func(pgx.CollectableRow) (T, error)) ([]T, int, error) {
	cond := strings.Join(where, " AND ")

	var total int
	if err := p.pool.QueryRow(ctx, "SELECT count(*) FROM "+table+" WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, classify(fmt.Errorf("count %s: %w", table, err))
	}

	query := "SELECT " + columns + " FROM " + table + " WHERE " + cond + " ORDER BY " + order
	if perPage > 0 {
		start, end := pageBounds(page, perPage, total)
		if start == end {
			return nil, total, nil
		}
		args = append(args, end-start, start)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, classify(fmt.Errorf("list %s: %w", table, err))
	}
	items, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, 0, classify(fmt.Errorf("list %s: %w", table, err))
	}
	return items, total, nil
}

func (p *Postgres) ListOrders(ctx context.Context, tenant string, f ListFilter) ([]core.Order, int, error) {
	where, args := rangeClause("sale_date", f.Range, []string{"tenant_id = $1"}, []any{tenant})
	where, args = searchClause(f.Search, []string{"id", "sku", "product_name"}, where, args)
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = strings.ToLower(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("lower(status) = ANY($%d)", len(args)))
	}
	return queryPage(ctx, p, "orders", orderColumns, "sale_date DESC, id", where, args, f.Page, f.PerPage,
		func(row pgx.CollectableRow) (core.Order, error) { return scanOrder(row, tenant) })
}

func (p *Postgres) ListPurchases(ctx context.Context, tenant string, f ListFilter) ([]core.Purchase, int, error) {
	where, args := rangeClause("purchase_date", f.Range, []string{"tenant_id = $1"}, []any{tenant})
	where, args = searchClause(f.Search, []string{"id", "sku", "product_name", "supplier"}, where, args)
	return queryPage(ctx, p, "purchases", purchaseColumns, "purchase_date DESC, id", where, args, f.Page, f.PerPage,
		func(row pgx.CollectableRow) (core.Purchase, error) { return scanPurchase(row, tenant) })
}

func (p *Postgres) ListLogistics(ctx context.Context, tenant string, f ListFilter) ([]core.LogisticsRecord, int, error) {
	where, args := rangeClause("ship_date", f.Range, []string{"tenant_id = $1"}, []any{tenant})
	where, args = searchClause(f.Search, []string{"id", "order_id", "carrier", "destination"}, where, args)
	return queryPage(ctx, p, "logistics_records", logisticsColumns, "ship_date DESC, id", where, args, f.Page, f.PerPage,
		func(row pgx.CollectableRow) (core.LogisticsRecord, error) { return scanLogistics(row, tenant) })
}

func (p *Postgres) ProfitRecords(ctx context.Context, tenant string, f ProfitFilter) ([]core.ProfitRecord, int, error) {
	where, args := rangeClause("sale_date", f.Range, []string{"tenant_id = $1"}, []any{tenant})
	if f.IncompleteOnly {
		where = append(where, "NOT complete")
	}
	return queryPage(ctx, p, "profit_records", profitColumns, "sale_date DESC, order_id", where, args, f.Page, f.PerPage,
		func(row pgx.CollectableRow) (core.ProfitRecord, error) { return scanProfit(row, tenant) })
}

func (p *Postgres) Counts(ctx context.Context, tenant string) (Counts, error) {
	var c Counts
	err := p.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM orders WHERE tenant_id = $1),
			(SELECT count(*) FROM purchases WHERE tenant_id = $1),
			(SELECT count(*) FROM logistics_records WHERE tenant_id = $1),
			(SELECT count(*) FROM profit_records WHERE tenant_id = $1)`, tenant,
	).Scan(&c.Orders, &c.Purchases, &c.Logistics, &c.Profit)
	if err != nil {
		return Counts{}, classify(fmt.Errorf("count records: %w", err))
	}
	return c, nil
}

func (p *Postgres) Imports(ctx context.Context, tenant string, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, kind, file_name, principal, inserted, skipped, duplicates, created_at
		FROM imports WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, tenant, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("list imports: %w", err))
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ImportLog, error) {
		var l ImportLog
		var kind string
		err := row.Scan(&l.ID, &kind, &l.FileName, &l.Principal, &l.Inserted, &l.Skipped, &l.Duplicates, &l.CreatedAt)
		l.Kind = core.Kind(kind)
		return l, err
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	return classify(p.pool.Ping(ctx))
}

func (p *Postgres) Close() { p.pool.Close() }

var _ Store = (*Postgres)(nil)

func scanOrder(row pgx.Row, tenant string) (core.Order, error) {
	var o core.Order
	var price, fees pgtype.Numeric
	err := row.Scan(&o.ID, &o.SKU, &o.ProductName, &o.Quantity, &price, &fees, &o.Currency,
		&o.SaleDate, &o.Status, &o.ImportID, &o.CreatedAt)
	o.TenantID, o.Price, o.Fees = tenant, fromNumeric(price), fromNumeric(fees)
	return o, err
}

func scanPurchase(row pgx.Row, tenant string) (core.Purchase, error) {
	var p core.Purchase
	var unitCost pgtype.Numeric
	err := row.Scan(&p.ID, &p.SKU, &p.ProductName, &p.Supplier, &p.Quantity, &unitCost,
		&p.PurchaseDate, &p.ImportID, &p.CreatedAt)
	p.TenantID, p.UnitCost = tenant, fromNumeric(unitCost)
	return p, err
}

func scanLogistics(row pgx.Row, tenant string) (core.LogisticsRecord, error) {
	var l core.LogisticsRecord
	var cost, weight, volume pgtype.Numeric
	err := row.Scan(&l.ID, &l.OrderID, &l.Carrier, &cost, &weight, &volume, &l.Destination,
		&l.ShipDate, &l.ImportID, &l.CreatedAt)
	l.TenantID, l.Cost, l.Weight, l.Volume = tenant, fromNumeric(cost), fromNumeric(weight), fromNumeric(volume)
	return l, err
}

func scanProfit(row pgx.Row, tenant string) (core.ProfitRecord, error) {
	var r core.ProfitRecord
	var revenue, unitCost, cost, logistics, fees, profit, rate pgtype.Numeric
	err := row.Scan(&r.OrderID, &r.SKU, &r.SaleDate, &r.Quantity, &revenue, &unitCost, &cost,
		&r.CostMatched, &r.PurchaseID, &logistics, &r.LogisticsMatched, &r.LogisticsCount,
		&fees, &profit, &rate, &r.Complete, &r.RecalculatedAt)
	r.TenantID = tenant
	r.Revenue, r.UnitCost, r.Cost = fromNumeric(revenue), fromNumeric(unitCost), fromNumeric(cost)
	r.LogisticsCost, r.Fees = fromNumeric(logistics), fromNumeric(fees)
	r.Profit, r.ProfitRate = fromNumeric(profit), fromNumeric(rate)
	return r, err
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// classify marks connection-level failures as ErrStoreUnavailable so the
// caller can tell them apart from query errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return err
}
