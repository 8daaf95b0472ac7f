// Package store is the durable, tenant-partitioned record store.
//
// Orders, purchases and logistics records are append-only: a batch either
// lands completely or not at all, and identifiers that already exist for the
// tenant are reported back as duplicates instead of being overwritten.
// Profit records are owned by the reconciliation engine and are replaced
// whole, so readers never see a half-written record.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
)

// ErrOrderNotFound is returned by Inputs when the order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// Batch is one commit's worth of records of a single kind.
type Batch struct {
	TenantID  string
	Kind      core.Kind
	ImportID  string
	FileName  string
	Principal string
	Records   []core.Record
	// Skipped is the number of invalid rows left out of Records. It is only
	// recorded in the import log.
	Skipped int
}

// InsertResult reports which records of a batch were written.
type InsertResult struct {
	Inserted   []core.Record
	Duplicates []string
}

// ImportLog is the durable history entry written with every batch.
type ImportLog struct {
	ID         string    `json:"id"`
	Kind       core.Kind `json:"kind"`
	FileName   string    `json:"fileName"`
	Principal  string    `json:"principal,omitempty"`
	Inserted   int       `json:"insertedCount"`
	Skipped    int       `json:"skippedCount"`
	Duplicates int       `json:"duplicateCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Inputs is a consistent snapshot of everything needed to price one order.
type Inputs struct {
	Order     core.Order
	Purchase  *core.Purchase
	Logistics []core.LogisticsRecord
}

// ProfitFilter selects profit records. PerPage <= 0 returns every match.
type ProfitFilter struct {
	Range          core.DateRange
	IncompleteOnly bool
	Page           int
	PerPage        int
}

// ListFilter selects one page of orders, purchases or logistics records.
// Search is a case-insensitive substring match on the identifying text
// fields of the kind. Statuses only applies to orders. PerPage <= 0 returns
// every match.
type ListFilter struct {
	Range    core.DateRange
	Search   string
	Statuses []string
	Page     int
	PerPage  int
}

// Counts are raw entity totals for a tenant.
type Counts struct {
	Orders    int64 `json:"orders"`
	Purchases int64 `json:"purchases"`
	Logistics int64 `json:"logistics"`
	Profit    int64 `json:"profitRecords"`
}

// Store is implemented by the in-memory and Postgres backends.
type Store interface {
	// Insert writes a batch atomically, skipping identifiers that already
	// exist for the tenant.
	Insert(ctx context.Context, b Batch) (InsertResult, error)

	// Inputs loads an order together with its latest purchase at or before
	// the sale date and all linked logistics records, as one snapshot.
	Inputs(ctx context.Context, tenant, orderID string) (*Inputs, error)

	// PutProfit replaces the profit record of one order. A record older than
	// the stored one is ignored.
	PutProfit(ctx context.Context, rec core.ProfitRecord) error

	OrderIDs(ctx context.Context, tenant string) ([]string, error)
	OrderIDsBySKU(ctx context.Context, tenant string, skus []string) ([]string, error)
	// ExistingOrderIDs returns the subset of ids that name stored orders.
	ExistingOrderIDs(ctx context.Context, tenant string, ids []string) ([]string, error)

	Orders(ctx context.Context, tenant string, r core.DateRange) ([]core.Order, error)
	Purchases(ctx context.Context, tenant string, r core.DateRange) ([]core.Purchase, error)
	Logistics(ctx context.Context, tenant string, r core.DateRange) ([]core.LogisticsRecord, error)
	// ListOrders, ListPurchases and ListLogistics return one page of matches
	// ordered by date descending, and the total number of matches.
	ListOrders(ctx context.Context, tenant string, f ListFilter) ([]core.Order, int, error)
	ListPurchases(ctx context.Context, tenant string, f ListFilter) ([]core.Purchase, int, error)
	ListLogistics(ctx context.Context, tenant string, f ListFilter) ([]core.LogisticsRecord, int, error)
	// ProfitRecords returns one page of matches ordered by sale date
	// descending, and the total number of matches.
	ProfitRecords(ctx context.Context, tenant string, f ProfitFilter) ([]core.ProfitRecord, int, error)
	Counts(ctx context.Context, tenant string) (Counts, error)
	Imports(ctx context.Context, tenant string, limit int) ([]ImportLog, error)

	Ping(ctx context.Context) error
	Close()
}

// pageBounds returns the slice bounds of the requested page. Pages past the
// end, however large, yield an empty range.
func pageBounds(page, perPage, total int) (start, end int) {
	if perPage <= 0 {
		return 0, total
	}
	if page < 1 {
		page = 1
	}
	pages := total / perPage
	if total%perPage != 0 {
		pages++
	}
	if page-1 >= pages {
		return total, total
	}
	start = (page - 1) * perPage
	end = start + perPage
	if end > total {
		end = total
	}
	return start, end
}

// matchesSearch reports whether any field contains term, ignoring case.
func matchesSearch(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// hasStatus reports whether status is one of want. An empty want matches all.
func hasStatus(status string, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if strings.EqualFold(status, w) {
			return true
		}
	}
	return false
}
