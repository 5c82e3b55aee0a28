package sales

import (
	"sort"

	"github.com/shopspring/decimal"
)

const (
	// TopProductsLimit caps the top-selling products ranking.
	TopProductsLimit = 5
	// RecentOrdersLimit caps the recent-orders window.
	RecentOrdersLimit = 10
)

// PaymentSummary aggregates the orders paid with a single method.
type PaymentSummary struct {
	Method           PaymentMethod
	TotalAmount      decimal.Decimal
	TransactionCount int
	// Percentage is TotalAmount's share of total sales, in [0, 100].
	// Zero when total sales is zero.
	Percentage float64
}

// ProductSales is one entry of the top-selling ranking.
type ProductSales struct {
	ProductID    string
	ProductName  string
	QuantitySold int
}

// Summary is the computed reconciliation of a set of orders and refunds.
// It is a pure value: nothing here is ever persisted.
type Summary struct {
	TotalSales   decimal.Decimal
	TotalRefunds decimal.Decimal
	NetSales     decimal.Decimal
	TotalOrders  int

	PaymentSummaries []PaymentSummary
	TopProducts      []ProductSales
	RecentOrders     []OrderFact
	Refunds          []RefundFact
}

// EmptySummary returns an all-zero summary with empty, non-nil slices so
// callers can render a "no activity" state without nil checks.
func EmptySummary() Summary {
	return Summary{
		TotalSales:       decimal.Zero,
		TotalRefunds:     decimal.Zero,
		NetSales:         decimal.Zero,
		PaymentSummaries: []PaymentSummary{},
		TopProducts:      []ProductSales{},
		RecentOrders:     []OrderFact{},
		Refunds:          []RefundFact{},
	}
}

// Summarize reconciles orders and refunds into a Summary. It is deterministic
// for a given input except for the order of PaymentSummaries, which callers
// must not rely on. Net sales may be negative; it is not clamped.
func Summarize(orders []OrderFact, refunds []RefundFact) Summary {
	s := EmptySummary()
	s.TotalOrders = len(orders)

	for _, o := range orders {
		s.TotalSales = s.TotalSales.Add(o.Amount)
	}
	for _, r := range refunds {
		s.TotalRefunds = s.TotalRefunds.Add(r.Amount)
	}
	s.NetSales = s.TotalSales.Sub(s.TotalRefunds)

	s.PaymentSummaries = paymentSummaries(orders, s.TotalSales)
	s.TopProducts = topProducts(orders)
	s.RecentOrders = recentOrders(orders)
	if refunds != nil {
		s.Refunds = refunds
	}

	return s
}

// paymentSummaries groups orders by normalized payment method. Percentage is
// computed against totalSales, guarding the zero-sales case so the result is
// never NaN or Inf.
func paymentSummaries(orders []OrderFact, totalSales decimal.Decimal) []PaymentSummary {
	byMethod := make(map[PaymentMethod]*PaymentSummary)
	for _, o := range orders {
		method := o.Method.Normalize()
		ps, ok := byMethod[method]
		if !ok {
			ps = &PaymentSummary{Method: method, TotalAmount: decimal.Zero}
			byMethod[method] = ps
		}
		ps.TotalAmount = ps.TotalAmount.Add(o.Amount)
		ps.TransactionCount++
	}

	out := make([]PaymentSummary, 0, len(byMethod))
	for _, ps := range byMethod {
		if totalSales.IsPositive() {
			ps.Percentage, _ = ps.TotalAmount.Div(totalSales).Mul(decimal.NewFromInt(100)).Float64()
		}
		out = append(out, *ps)
	}
	return out
}

// topProducts accumulates quantity sold per distinct product across all line
// items and returns the top entries by quantity. Ties keep first-encountered
// order (stable sort over input iteration). Items without a product id are
// skipped rather than failing the whole summary.
func topProducts(orders []OrderFact) []ProductSales {
	index := make(map[string]int)
	ranked := make([]ProductSales, 0)

	for _, o := range orders {
		for _, item := range o.Items {
			if item.ProductID == "" {
				continue
			}
			i, ok := index[item.ProductID]
			if !ok {
				i = len(ranked)
				index[item.ProductID] = i
				ranked = append(ranked, ProductSales{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
				})
			}
			ranked[i].QuantitySold += item.Quantity
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].QuantitySold > ranked[j].QuantitySold
	})

	if len(ranked) > TopProductsLimit {
		ranked = ranked[:TopProductsLimit]
	}
	return ranked
}

// recentOrders returns up to RecentOrdersLimit orders, newest first. Orders
// with a zero creation time sort as oldest.
func recentOrders(orders []OrderFact) []OrderFact {
	recent := make([]OrderFact, len(orders))
	copy(recent, orders)

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})

	if len(recent) > RecentOrdersLimit {
		recent = recent[:RecentOrdersLimit]
	}
	return recent
}
