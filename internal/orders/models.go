package orders

import (
	"sort"
	"time"

	"github.com/ariefcatur/go-pcparts-orders/internal/compat"
	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID              string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Items           []LineItem      `json:"items"`
	ShippingAddress string          `json:"shipping_address"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`

	// Set when the order was placed under an idempotency key. Both are
	// journaled with the order so the key survives a restart.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Fingerprint    uint64 `json:"fingerprint,omitempty"`
}

func (o Order) clone() Order {
	o.Items = append([]LineItem(nil), o.Items...)
	return o
}

func (o Order) Confirmation() Confirmation {
	return Confirmation{OrderID: o.ID, TotalAmount: o.TotalAmount, Status: o.Status}
}

type Confirmation struct {
	OrderID     string          `json:"order_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      Status          `json:"status"`
}

// ItemInput is a line item before its price is resolved from the catalog.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	UserID          string
	Items           []LineItem
	ShippingAddress string
	Parts           []compat.PartDescriptor
	IdempotencyKey  string
}

type CheckoutRequest struct {
	UserID          string      `json:"user_id"`
	Items           []ItemInput `json:"items"`
	ShippingAddress string      `json:"shipping_address"`
	IdempotencyKey  string      `json:"idempotency_key,omitempty"`
}

// Total sums quantity x unit price, rounded to cents.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}

// Demand is the quantity needed from one product.
type Demand struct {
	ProductID string
	Quantity  int
}

// Demands merges line items per product, ordered by product id.
func Demands(items []LineItem) []Demand {
	qty := make(map[string]int, len(items))
	for _, it := range items {
		qty[it.ProductID] += it.Quantity
	}
	out := make([]Demand, 0, len(qty))
	for id, q := range qty {
		out = append(out, Demand{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
