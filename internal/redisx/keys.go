package redisx

import "time"

const (
	// Idempotency of order placement: idem:order:create:{key} -> {order_id, total, status, fingerprint}
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Shopping cart: hash cart:{user_id} product_id -> quantity
	KeyCart = "cart:%s"

	// Customer notifications: capped list notify:{user_id}, newest first
	KeyNotifications = "notify:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
	TTLCart        = 7 * 24 * time.Hour
)

// MaxNotifications caps notify:{user_id}.
const MaxNotifications = 50
