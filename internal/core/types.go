// Package core holds the domain model shared by the import pipeline, the
// reconciliation engine and the statistics layer. It has no transport or
// storage dependencies and can be used by any frontend.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies which entity stream a file or session carries.
type Kind string

const (
	KindOrders    Kind = "orders"
	KindPurchases Kind = "purchases"
	KindLogistics Kind = "logistics"
)

// Kinds lists every importable kind in display order.
var Kinds = []Kind{KindOrders, KindPurchases, KindLogistics}

// ParseKind converts a path segment into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindOrders, KindPurchases, KindLogistics:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Record is the closed set of candidate rows a file can produce.
// Only Order, Purchase and LogisticsRecord implement it.
type Record interface {
	Kind() Kind
	Key() string
	record()
}

// Order is a sale line imported from a storefront export.
type Order struct {
	TenantID    string          `json:"-"`
	ID          string          `json:"id" validate:"required,max=128"`
	SKU         string          `json:"sku" validate:"required,max=128"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int64           `json:"quantity" validate:"gt=0"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Fees        decimal.Decimal `json:"fees" validate:"gte=0"`
	Currency    string          `json:"currency,omitempty"`
	SaleDate    time.Time       `json:"saleDate" validate:"required"`
	Status      string          `json:"status,omitempty"`
	ImportID    string          `json:"importId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (Order) Kind() Kind    { return KindOrders }
func (o Order) Key() string { return o.ID }
func (Order) record()       {}

// Revenue is unit price times quantity.
func (o Order) Revenue() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// Purchase is a procurement line carrying the unit cost of a SKU.
type Purchase struct {
	TenantID     string          `json:"-"`
	ID           string          `json:"id" validate:"required,max=128"`
	SKU          string          `json:"sku" validate:"required,max=128"`
	ProductName  string          `json:"productName,omitempty"`
	Supplier     string          `json:"supplier,omitempty"`
	Quantity     int64           `json:"quantity" validate:"gt=0"`
	UnitCost     decimal.Decimal `json:"unitCost" validate:"gte=0"`
	PurchaseDate time.Time       `json:"purchaseDate" validate:"required"`
	ImportID     string          `json:"importId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (Purchase) Kind() Kind    { return KindPurchases }
func (p Purchase) Key() string { return p.ID }
func (Purchase) record()       {}

// LogisticsRecord is a shipment charge. OrderID links it to an Order and
// need not resolve when the record is imported.
type LogisticsRecord struct {
	TenantID    string          `json:"-"`
	ID          string          `json:"id" validate:"required,max=128"`
	OrderID     string          `json:"orderId,omitempty" validate:"max=128"`
	Carrier     string          `json:"carrier,omitempty"`
	Cost        decimal.Decimal `json:"cost" validate:"gte=0"`
	Weight      decimal.Decimal `json:"weight" validate:"gte=0"`
	Volume      decimal.Decimal `json:"volume" validate:"gte=0"`
	Destination string          `json:"destination,omitempty"`
	ShipDate    time.Time       `json:"shipDate" validate:"required"`
	ImportID    string          `json:"importId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (LogisticsRecord) Kind() Kind    { return KindLogistics }
func (l LogisticsRecord) Key() string { return l.ID }
func (LogisticsRecord) record()       {}

// ProfitRecord is the derived profit/loss of one order. It is written only
// by the reconciliation engine and replaced as a whole on each run.
type ProfitRecord struct {
	TenantID         string          `json:"-"`
	OrderID          string          `json:"orderId"`
	SKU              string          `json:"sku"`
	SaleDate         time.Time       `json:"saleDate"`
	Quantity         int64           `json:"quantity"`
	Revenue          decimal.Decimal `json:"revenue"`
	UnitCost         decimal.Decimal `json:"unitCost"`
	Cost             decimal.Decimal `json:"cost"`
	CostMatched      bool            `json:"costMatched"`
	PurchaseID       string          `json:"purchaseId,omitempty"`
	LogisticsCost    decimal.Decimal `json:"logisticsCost"`
	LogisticsMatched bool            `json:"logisticsMatched"`
	LogisticsCount   int             `json:"logisticsCount"`
	Fees             decimal.Decimal `json:"fees"`
	Profit           decimal.Decimal `json:"profit"`
	ProfitRate       decimal.Decimal `json:"profitRate"`
	Complete         bool            `json:"complete"`
	RecalculatedAt   time.Time       `json:"recalculatedAt"`
}

// SameFigures reports whether two records carry identical computed values,
// ignoring the recalculation timestamp.
func (p ProfitRecord) SameFigures(o ProfitRecord) bool {
	return p.OrderID == o.OrderID &&
		p.SKU == o.SKU &&
		p.SaleDate.Equal(o.SaleDate) &&
		p.Quantity == o.Quantity &&
		p.Revenue.Equal(o.Revenue) &&
		p.UnitCost.Equal(o.UnitCost) &&
		p.Cost.Equal(o.Cost) &&
		p.CostMatched == o.CostMatched &&
		p.PurchaseID == o.PurchaseID &&
		p.LogisticsCost.Equal(o.LogisticsCost) &&
		p.LogisticsMatched == o.LogisticsMatched &&
		p.LogisticsCount == o.LogisticsCount &&
		p.Fees.Equal(o.Fees) &&
		p.Profit.Equal(o.Profit) &&
		p.ProfitRate.Equal(o.ProfitRate) &&
		p.Complete == o.Complete
}

// RowError is a recoverable, per-row validation problem.
type RowError struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
}

// RowOutcome is the parse result for one data row. Record is nil when
// Errors is non-empty.
type RowOutcome struct {
	Row    int        `json:"row"`
	Record Record     `json:"-"`
	Errors []RowError `json:"errors,omitempty"`
}

// Valid reports whether the row produced a candidate record.
func (o RowOutcome) Valid() bool {
	return o.Record != nil && len(o.Errors) == 0
}

// DateRange is an optional, inclusive [From, To] filter on business dates.
// Zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}
