package redisx

import "time"

const (
	// Checkout idempotency fast-path: idem:checkout:{external_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
