package domain

import "time"

// OrderStatusChangedEvent is published to Kafka whenever an order's status
// actually changes. No-op event applications do not publish.
type OrderStatusChangedEvent struct {
	OrderID        string      `json:"order_id"`
	TenantID       string      `json:"tenant_id"`
	Email          string      `json:"email"`
	PreviousStatus OrderStatus `json:"previous_status"`
	Status         OrderStatus `json:"status"`
	Event          OrderEvent  `json:"event"`
	OccurredAt     time.Time   `json:"occurred_at"`
}
