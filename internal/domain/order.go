package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
)

// OrderEvent is a business occurrence that may move an order through its
// lifecycle. Status never changes except through ApplyOrderEvent.
type OrderEvent string

const (
	OrderEventPaymentConfirmed   OrderEvent = "payment_confirmed"
	OrderEventFulfillmentStarted OrderEvent = "fulfillment_started"
	OrderEventShipped            OrderEvent = "shipped"
	OrderEventDelivered          OrderEvent = "delivered"
	OrderEventCancelled          OrderEvent = "cancelled"
	OrderEventReturned           OrderEvent = "returned"
)

// ErrInvalidTransition reports an event that is neither a legal transition
// from the order's current status nor a redundant repeat of one.
var ErrInvalidTransition = errors.New("invalid order status transition")

// orderTransitions is the single source of truth for order lifecycle moves:
// (current status, event) resolves to the next status.
var orderTransitions = map[OrderStatus]map[OrderEvent]OrderStatus{
	OrderStatusPending: {
		OrderEventPaymentConfirmed: OrderStatusPaid,
		OrderEventCancelled:        OrderStatusCancelled,
	},
	OrderStatusPaid: {
		OrderEventFulfillmentStarted: OrderStatusProcessing,
		OrderEventShipped:            OrderStatusShipped,
		OrderEventDelivered:          OrderStatusDelivered,
		OrderEventCancelled:          OrderStatusCancelled,
	},
	OrderStatusProcessing: {
		OrderEventShipped:   OrderStatusShipped,
		OrderEventDelivered: OrderStatusDelivered,
		OrderEventCancelled: OrderStatusCancelled,
	},
	OrderStatusShipped: {
		OrderEventDelivered: OrderStatusDelivered,
		OrderEventReturned:  OrderStatusReturned,
	},
	OrderStatusDelivered: {
		OrderEventReturned: OrderStatusReturned,
	},
}

// stageRank orders the forward fulfillment stages. Cancelled and returned
// are terminal and unranked.
var stageRank = map[OrderStatus]int{
	OrderStatusPending:    1,
	OrderStatusPaid:       2,
	OrderStatusProcessing: 3,
	OrderStatusShipped:    4,
	OrderStatusDelivered:  5,
}

// eventStage is the stage a forward event drives toward, used to recognize
// redundant repeats: a second shipment going out, a payment webhook
// delivered twice.
var eventStage = map[OrderEvent]OrderStatus{
	OrderEventPaymentConfirmed:   OrderStatusPaid,
	OrderEventFulfillmentStarted: OrderStatusProcessing,
	OrderEventShipped:            OrderStatusShipped,
	OrderEventDelivered:          OrderStatusDelivered,
}

// ApplyOrderEvent resolves event against the transition table. It returns
// the status the order should hold afterwards and whether that is a change.
// A forward event whose stage the order already reached is a no-op rather
// than an error; replayed payment confirmations and later shipments of the
// same order land here. Anything else is ErrInvalidTransition.
func ApplyOrderEvent(current OrderStatus, event OrderEvent) (OrderStatus, bool, error) {
	if next, ok := orderTransitions[current][event]; ok {
		return next, true, nil
	}
	if stage, ok := eventStage[event]; ok {
		if rank, ranked := stageRank[current]; ranked && rank >= stageRank[stage] {
			return current, false, nil
		}
	}
	return current, false, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, current)
}

// ParseOrderEvent validates an inbound event name.
func ParseOrderEvent(s string) (OrderEvent, error) {
	switch ev := OrderEvent(s); ev {
	case OrderEventPaymentConfirmed, OrderEventFulfillmentStarted,
		OrderEventShipped, OrderEventDelivered,
		OrderEventCancelled, OrderEventReturned:
		return ev, nil
	default:
		return "", fmt.Errorf("unknown order event %q", s)
	}
}

type Order struct {
	ID              string          `db:"id" json:"id"`
	TenantID        string          `db:"tenant_id" json:"tenant_id"`
	UserID          *string         `db:"user_id" json:"user_id,omitempty"`
	Email           string          `db:"email" json:"email"`
	Status          OrderStatus     `db:"status" json:"status"`
	Total           decimal.Decimal `db:"total" json:"total"`
	ShippingAddress Address         `db:"shipping_address" json:"shipping_address,omitzero"`
	BillingAddress  Address         `db:"billing_address" json:"billing_address,omitzero"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method,omitempty"`
	ShippingMethod  string          `db:"shipping_method" json:"shipping_method,omitempty"`
	Notes           string          `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`

	Items     []OrderItem `db:"-" json:"items,omitempty"`
	Shipments []Shipment  `db:"-" json:"shipments,omitempty"`
}

// OrderItem is a line of an order. Price and name are captured at purchase
// time so later catalog edits do not rewrite history.
type OrderItem struct {
	ID          string          `db:"id" json:"id"`
	OrderID     string          `db:"order_id" json:"order_id"`
	TenantID    string          `db:"tenant_id" json:"tenant_id"`
	ProductID   string          `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	SKU         string          `db:"sku" json:"sku,omitempty"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// LineTotal is the item's contribution to the order total.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
