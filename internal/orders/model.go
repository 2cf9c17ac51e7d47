package orders

import "time"

type Status string

// Orders are terminal history: there is no cancellation or refund flow, so the
// only at-rest status is completed.
const StatusCompleted Status = "completed"

// LineItem freezes name and price at commit time; later catalog edits never
// touch stored orders. JSON names follow the public order shape.
type LineItem struct {
	SweetID        string `json:"productId"`
	SweetName      string `json:"productName"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPrice"`
}

type Order struct {
	ID         string     `json:"id"`
	ExternalID string     `json:"-"`
	UserID     string     `json:"userId"`
	UserName   string     `json:"userName"`
	Items      []LineItem `json:"items"`
	TotalCents int64      `json:"totalPrice"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
}
