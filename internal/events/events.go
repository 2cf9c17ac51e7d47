package events

import (
	"encoding/json"
	"time"
)

const (
	EventCheckoutCompleted  = "CheckoutCompleted"
	EventCheckoutIncomplete = "CheckoutIncomplete"
	EventStockRestocked     = "StockRestocked"
)

const (
	TopicCheckoutCompleted  = "checkout.completed"
	TopicCheckoutIncomplete = "checkout.incomplete"
	TopicStockRestocked     = "stock.restocked"
)

// Envelope wraps every published event. Version 1 throughout.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type LineQty struct {
	SweetID string `json:"sweet_id"`
	Qty     int    `json:"qty"`
}

type CheckoutCompletedPayload struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Lines      []LineQty `json:"lines"`
	TotalCents int64     `json:"total_cents"`
}

// CheckoutIncompletePayload records an order whose reservations committed but
// whose order append failed. The reconciler persists these for manual recovery.
type CheckoutIncompletePayload struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Lines      []LineQty `json:"lines"`
	TotalCents int64     `json:"total_cents"`
	Reason     string    `json:"reason"`
}

type StockRestockedPayload struct {
	SweetID  string `json:"sweet_id"`
	Amount   int    `json:"amount"`
	NewLevel int    `json:"new_level"`
}

// PartitionKey keeps all events of one order in a single partition so their
// relative order is preserved.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
