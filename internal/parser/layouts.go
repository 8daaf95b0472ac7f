package parser

import (
	"strings"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/shopspring/decimal"
)

// Field names double as the json names on the core record types so that
// validator errors and conversion errors report the same field.

func init() {
	registerOrders()
	registerPurchases()
	registerLogistics()
}

func registerOrders() {
	Register(Layout{
		Kind:  core.KindOrders,
		Label: "Orders",
		Fields: []FieldSpec{
			{Name: "id", Aliases: []string{"order id", "order number", "order no", "订单编号", "订单号"}, Type: FieldText, Required: true},
			{Name: "sku", Aliases: []string{"sku specification", "sku规格", "seller sku"}, Type: FieldText, Required: true},
			{Name: "productName", Aliases: []string{"product name", "product", "商品名称"}, Type: FieldText},
			{Name: "quantity", Aliases: []string{"qty", "数量"}, Type: FieldQuantity, Required: true},
			{Name: "price", Aliases: []string{"unit price", "sale price", "单价"}, Type: FieldDecimal, Required: true},
			{Name: "fees", Aliases: []string{"fee", "tax fee", "platform fee", "税费", "税费,仅美国卖家适用"}, Type: FieldDecimal},
			{Name: "currency", Aliases: []string{"order currency", "订单币种"}, Type: FieldText},
			{Name: "saleDate", Aliases: []string{"sale date", "order date", "order create time", "订单创建时间"}, Type: FieldDate, Required: true},
			{Name: "status", Aliases: []string{"order status", "状态"}, Type: FieldText},
		},
		Build: func(r *Row) core.Record {
			return core.Order{
				ID:          r.Text("id"),
				SKU:         r.Text("sku"),
				ProductName: r.Text("productName"),
				Quantity:    r.Quantity("quantity"),
				Price:       r.Decimal("price"),
				Fees:        r.Decimal("fees"),
				Currency:    strings.ToUpper(r.Text("currency")),
				SaleDate:    r.Date("saleDate"),
				Status:      r.Text("status"),
			}
		},
	})
}

func registerPurchases() {
	Register(Layout{
		Kind:  core.KindPurchases,
		Label: "Purchases",
		Fields: []FieldSpec{
			{Name: "id", Aliases: []string{"purchase id", "purchase number", "po number", "订单编号", "采购单号"}, Type: FieldText, Required: true},
			{Name: "sku", Aliases: []string{"sku id", "单品货号"}, Type: FieldText, Required: true},
			{Name: "productName", Aliases: []string{"product name", "货品标题"}, Type: FieldText},
			{Name: "supplier", Aliases: []string{"vendor", "卖家公司名"}, Type: FieldText},
			{Name: "quantity", Aliases: []string{"qty", "数量"}, Type: FieldQuantity, Required: true},
			{Name: "unitCost", Aliases: []string{"unit cost", "unit price", "cost", "单价(元)", "单价"}, Type: FieldDecimal, Required: true},
			{Name: "purchaseDate", Aliases: []string{"purchase date", "order date", "订单创建时间"}, Type: FieldDate, Required: true},
		},
		Build: func(r *Row) core.Record {
			return core.Purchase{
				ID:           r.Text("id"),
				SKU:          r.Text("sku"),
				ProductName:  r.Text("productName"),
				Supplier:     r.Text("supplier"),
				Quantity:     r.Quantity("quantity"),
				UnitCost:     r.Decimal("unitCost"),
				PurchaseDate: r.Date("purchaseDate"),
			}
		},
	})
}

func registerLogistics() {
	Register(Layout{
		Kind:  core.KindLogistics,
		Label: "Logistics",
		Fields: []FieldSpec{
			{Name: "id", Aliases: []string{"tracking number", "tracking no", "国际物流单号", "物流订单号"}, Type: FieldText, Required: true},
			{Name: "orderId", Aliases: []string{"order id", "order number", "ref no", "客户订单号", "信保订单号"}, Type: FieldText},
			{Name: "carrier", Aliases: []string{"channel", "service line", "服务线路"}, Type: FieldText},
			{Name: "actualCost", Aliases: []string{"actual cost", "actual fee", "实付金额"}, Type: FieldDecimal},
			{Name: "cost", Aliases: []string{"shipping fee", "freight", "物流运费"}, Type: FieldDecimal},
			{Name: "weight", Aliases: []string{"weight kg", "实际计费重(kg)", "实际计费重"}, Type: FieldDecimal},
			{Name: "volume", Aliases: []string{"volume m3"}, Type: FieldDecimal},
			{Name: "destination", Aliases: []string{"country", "目的国家"}, Type: FieldText},
			{Name: "shipDate", Aliases: []string{"ship date", "sent date", "出库时间"}, Type: FieldDate, Required: true},
		},
		Build: func(r *Row) core.Record {
			return core.LogisticsRecord{
				ID:          r.Text("id"),
				OrderID:     r.Text("orderId"),
				Carrier:     r.Text("carrier"),
				Cost:        logisticsCost(r),
				Weight:      r.Decimal("weight"),
				Volume:      r.Decimal("volume"),
				Destination: r.Text("destination"),
				ShipDate:    r.Date("shipDate"),
			}
		},
	})
}

// logisticsCost prefers the amount actually paid and falls back to the
// quoted shipping fee. One of the two must be present.
func logisticsCost(r *Row) decimal.Decimal {
	if r.Cell("actualCost") != "" {
		return r.Decimal("actualCost")
	}
	if r.Cell("cost") == "" {
		r.fail("cost", "is required")
	}
	return r.Decimal("cost")
}
