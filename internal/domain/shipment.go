package domain

import (
	"fmt"
	"time"
)

type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "pending"
	ShipmentStatusShipped   ShipmentStatus = "shipped"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
	ShipmentStatusCancelled ShipmentStatus = "cancelled"
)

var shipmentRank = map[ShipmentStatus]int{
	ShipmentStatusPending:   1,
	ShipmentStatusShipped:   2,
	ShipmentStatusDelivered: 3,
}

// NextShipmentStatus validates a shipment status change. Shipments only move
// forward through pending, shipped and delivered, with cancellation allowed
// while the shipment is still pending. Repeating the current status is a
// no-op.
func NextShipmentStatus(current, next ShipmentStatus) (bool, error) {
	if current == next {
		return false, nil
	}
	if next == ShipmentStatusCancelled {
		if current == ShipmentStatusPending {
			return true, nil
		}
		return false, fmt.Errorf("%w: cancelled on %s", ErrInvalidTransition, current)
	}
	cur, ok := shipmentRank[current]
	if !ok {
		return false, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, next, current)
	}
	nxt, ok := shipmentRank[next]
	if !ok || nxt < cur {
		return false, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, next, current)
	}
	return true, nil
}

// ParseShipmentStatus validates an inbound shipment status name.
func ParseShipmentStatus(s string) (ShipmentStatus, error) {
	switch st := ShipmentStatus(s); st {
	case ShipmentStatusPending, ShipmentStatusShipped,
		ShipmentStatusDelivered, ShipmentStatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown shipment status %q", s)
	}
}

// OrderEventForShipment maps a shipment status to the order lifecycle event
// it implies, if any. Cancelling a shipment does not cancel the order.
func OrderEventForShipment(status ShipmentStatus) (OrderEvent, bool) {
	switch status {
	case ShipmentStatusShipped:
		return OrderEventShipped, true
	case ShipmentStatusDelivered:
		return OrderEventDelivered, true
	default:
		return "", false
	}
}

type Shipment struct {
	ID             string         `db:"id" json:"id"`
	OrderID        string         `db:"order_id" json:"order_id"`
	TenantID       string         `db:"tenant_id" json:"tenant_id"`
	Status         ShipmentStatus `db:"status" json:"status"`
	ShippingMethod string         `db:"shipping_method" json:"shipping_method,omitempty"`
	TrackingNumber string         `db:"tracking_number" json:"tracking_number,omitempty"`
	TrackingURL    string         `db:"tracking_url" json:"tracking_url,omitempty"`
	ShippedAt      *time.Time     `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`

	Items []ShipmentItem `db:"-" json:"items,omitempty"`
}

// ShipmentItem assigns part of an order line to a shipment. An order line
// may be split across shipments when it is fulfilled in parts.
type ShipmentItem struct {
	ID          string `db:"id" json:"id"`
	ShipmentID  string `db:"shipment_id" json:"shipment_id"`
	OrderItemID string `db:"order_item_id" json:"order_item_id"`
	ProductID   string `db:"product_id" json:"product_id"`
	Quantity    int    `db:"quantity" json:"quantity"`
}
