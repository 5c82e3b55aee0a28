package sales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates the payment tags a POS terminal can record.
type PaymentMethod string

const (
	// PaymentCash is the default method when an order carries no tag.
	PaymentCash PaymentMethod = "CASH"
	// PaymentCard covers debit and credit card payments.
	PaymentCard PaymentMethod = "CARD"
	// PaymentUPI covers UPI transfers.
	PaymentUPI PaymentMethod = "UPI"
	// PaymentDigitalWallet covers wallet providers (Paytm, GPay balance, ...).
	PaymentDigitalWallet PaymentMethod = "DIGITAL_WALLET"
)

// Normalize maps an unknown or empty payment tag to PaymentCash.
func (m PaymentMethod) Normalize() PaymentMethod {
	switch m {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentDigitalWallet:
		return m
	default:
		return PaymentCash
	}
}

// LineItem is one order line, referencing the sold product by id.
type LineItem struct {
	ProductID   string
	ProductName string
	Quantity    int
}

// OrderFact is the read-only projection of an order used for shift
// aggregation. Facts are flat values referenced by id; the aggregator never
// walks a live entity graph.
type OrderFact struct {
	ID        string
	Amount    decimal.Decimal
	Method    PaymentMethod
	CreatedAt time.Time
	Items     []LineItem
}

// RefundFact is the read-only projection of a refund.
type RefundFact struct {
	ID        string
	OrderID   string
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reason    string
	CreatedAt time.Time
}

// Source provides order and refund facts attributed to a cashier within a
// half-open window [start, end).
type Source interface {
	OrdersForCashier(ctx context.Context, cashierID string, start, end time.Time) ([]OrderFact, error)
	RefundsForCashier(ctx context.Context, cashierID string, start, end time.Time) ([]RefundFact, error)
}
