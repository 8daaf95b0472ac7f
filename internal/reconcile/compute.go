// Package reconcile matches orders to purchases and logistics records and
// keeps each order's ProfitRecord up to date.
package reconcile

import (
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/JonMunkholm/profitrecon/internal/store"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places stored for amounts and rates.
const Scale = 4

// Compute prices one order from a snapshot of its inputs. It is pure: the
// same inputs always give the same figures, and only RecalculatedAt
// depends on now.
//
// Cost comes from the matched purchase's unit cost; logistics is the sum of
// every linked record. A missing side contributes zero to the profit but
// leaves the record incomplete, so the figure is never mistaken for final.
func Compute(in *store.Inputs, now time.Time) core.ProfitRecord {
	o := in.Order
	qty := decimal.NewFromInt(o.Quantity)
	revenue := o.Revenue().Round(Scale)

	rec := core.ProfitRecord{
		TenantID:       o.TenantID,
		OrderID:        o.ID,
		SKU:            o.SKU,
		SaleDate:       o.SaleDate,
		Quantity:       o.Quantity,
		Revenue:        revenue,
		UnitCost:       decimal.Zero,
		Cost:           decimal.Zero,
		LogisticsCost:  decimal.Zero,
		Fees:           o.Fees.Round(Scale),
		RecalculatedAt: now.UTC(),
	}

	if p := in.Purchase; p != nil {
		rec.CostMatched = true
		rec.PurchaseID = p.ID
		rec.UnitCost = p.UnitCost.Round(Scale)
		rec.Cost = p.UnitCost.Mul(qty).Round(Scale)
	}

	logistics := decimal.Zero
	for _, l := range in.Logistics {
		logistics = logistics.Add(l.Cost)
	}
	rec.LogisticsCost = logistics.Round(Scale)
	rec.LogisticsCount = len(in.Logistics)
	rec.LogisticsMatched = len(in.Logistics) > 0

	rec.Profit = revenue.Sub(rec.Cost).Sub(rec.LogisticsCost).Sub(rec.Fees)
	rec.ProfitRate = decimal.Zero
	if !revenue.IsZero() {
		rec.ProfitRate = rec.Profit.DivRound(revenue, Scale)
	}
	rec.Complete = rec.CostMatched && rec.LogisticsMatched
	return rec
}
