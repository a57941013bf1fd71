package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderCancelled = "OrderCancelled"
)

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderPlacedPayload struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Items           []ItemPrice     `json:"items"`
	ShippingAddress string          `json:"shipping_address"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          Status          `json:"status"`
}

type OrderCancelledPayload struct {
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	Items   []ItemPrice `json:"items"`
}

func itemPrices(items []LineItem) []ItemPrice {
	out := make([]ItemPrice, 0, len(items))
	for _, it := range items {
		out = append(out, ItemPrice{ProductID: it.ProductID, Qty: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}

// NewEnvelope wraps the event payload for o.
func NewEnvelope(eventType, producer string, o Order, at time.Time) (Envelope, error) {
	var payload any
	switch eventType {
	case EventOrderPlaced:
		payload = OrderPlacedPayload{
			OrderID:         o.ID,
			UserID:          o.UserID,
			Items:           itemPrices(o.Items),
			ShippingAddress: o.ShippingAddress,
			TotalAmount:     o.TotalAmount,
			Status:          o.Status,
		}
	case EventOrderCancelled:
		payload = OrderCancelledPayload{OrderID: o.ID, UserID: o.UserID, Items: itemPrices(o.Items)}
	default:
		return Envelope{}, fmt.Errorf("unknown event type %q", eventType)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: o.ID,
		Payload:       b,
	}, nil
}
