package shipments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/commercecore/fulfillment/internal/domain"
	"github.com/commercecore/fulfillment/internal/telemetry"
)

var (
	ErrOrderRequired = errors.New("shipment requires an order id")
	ErrInvalidItem   = errors.New("invalid shipment item")
)

type repository interface {
	Create(ctx context.Context, shipment *domain.Shipment, promote *StatusPromotion) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Shipment, error)
	ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.Shipment, error)
	UpdateStatus(ctx context.Context, tenantID, id string, in StatusUpdate, promote *StatusPromotion) (*domain.Shipment, error)
	AddItem(ctx context.Context, tenantID string, item *domain.ShipmentItem) (*domain.Shipment, error)
}

type orderStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Order, error)
}

type publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Manager owns shipments and is the component that drives order status
// forward as fulfillment progresses. It never moves an order backwards and
// never cancels one; cancelling a shipment only cancels the shipment.
type Manager struct {
	repo     repository
	orders   orderStore
	producer publisher
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewManager(repo repository, orders orderStore, producer publisher, metrics *telemetry.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		repo:     repo,
		orders:   orders,
		producer: producer,
		metrics:  metrics,
		logger:   logger,
	}
}

type CreateInput struct {
	OrderID        string
	ShippingMethod string
	TrackingNumber string
	TrackingURL    string
}

// Create opens a pending shipment against an order and marks fulfillment as
// started. Orders that never reached paid, or that are cancelled or
// returned, reject the fulfillment_started event and no shipment is created.
func (m *Manager) Create(ctx context.Context, tenantID string, in CreateInput) (*domain.Shipment, error) {
	if in.OrderID == "" {
		return nil, ErrOrderRequired
	}

	order, err := m.orders.GetByID(ctx, tenantID, in.OrderID)
	if err != nil {
		return nil, err
	}

	next, changed, err := domain.ApplyOrderEvent(order.Status, domain.OrderEventFulfillmentStarted)
	if err != nil {
		m.metrics.RecordOrderTransition(ctx, string(domain.OrderEventFulfillmentStarted), "rejected")
		return nil, err
	}

	shipment := &domain.Shipment{
		OrderID:        in.OrderID,
		TenantID:       tenantID,
		Status:         domain.ShipmentStatusPending,
		ShippingMethod: in.ShippingMethod,
		TrackingNumber: in.TrackingNumber,
		TrackingURL:    in.TrackingURL,
	}

	var promote *StatusPromotion
	if changed {
		promote = &StatusPromotion{OrderID: order.ID, From: order.Status, To: next}
	}
	if err := m.repo.Create(ctx, shipment, promote); err != nil {
		return nil, err
	}
	shipment.Items = []domain.ShipmentItem{}

	m.logger.Info("shipment created",
		"shipment_id", shipment.ID, "order_id", order.ID, "tenant_id", tenantID,
	)
	if changed {
		m.recordPromotion(ctx, order, next, domain.OrderEventFulfillmentStarted)
	}
	return shipment, nil
}

func (m *Manager) Get(ctx context.Context, tenantID, shipmentID string) (*domain.Shipment, error) {
	return m.repo.GetByID(ctx, tenantID, shipmentID)
}

func (m *Manager) ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.Shipment, error) {
	return m.repo.ListByOrder(ctx, tenantID, orderID)
}

type UpdateInput struct {
	Status         domain.ShipmentStatus
	TrackingNumber *string
	TrackingURL    *string
}

// UpdateStatus moves the shipment forward and drags the order along:
// shipped and delivered shipments apply the matching order event. Repeating
// the shipment's current status only refreshes tracking fields; the order
// promotion is resolved through the transition table, so a second shipment
// reaching shipped after the order already shipped is a clean no-op.
func (m *Manager) UpdateStatus(ctx context.Context, tenantID, shipmentID string, in UpdateInput) (*domain.Shipment, error) {
	shipment, err := m.repo.GetByID(ctx, tenantID, shipmentID)
	if err != nil {
		return nil, err
	}

	changed, err := domain.NextShipmentStatus(shipment.Status, in.Status)
	if err != nil {
		return nil, err
	}

	var promote *StatusPromotion
	var order *domain.Order
	var orderEvent domain.OrderEvent
	if changed {
		if event, ok := domain.OrderEventForShipment(in.Status); ok {
			order, err = m.orders.GetByID(ctx, tenantID, shipment.OrderID)
			if err != nil {
				return nil, err
			}
			next, orderChanged, err := domain.ApplyOrderEvent(order.Status, event)
			if err != nil {
				m.metrics.RecordOrderTransition(ctx, string(event), "rejected")
				return nil, err
			}
			if orderChanged {
				promote = &StatusPromotion{OrderID: order.ID, From: order.Status, To: next}
				orderEvent = event
			}
		}
	}

	updated, err := m.repo.UpdateStatus(ctx, tenantID, shipmentID, StatusUpdate{
		Status:         in.Status,
		TrackingNumber: in.TrackingNumber,
		TrackingURL:    in.TrackingURL,
	}, promote)
	if err != nil {
		return nil, err
	}

	m.logger.Info("shipment status updated",
		"shipment_id", shipmentID, "order_id", shipment.OrderID,
		"tenant_id", tenantID, "status", in.Status,
	)
	if promote != nil {
		m.recordPromotion(ctx, order, promote.To, orderEvent)
	}
	return updated, nil
}

type ItemInput struct {
	OrderItemID string
	ProductID   string
	Quantity    int
}

// AddItem records partial or full shipment of an order line. Stock already
// left the available pool at reservation time, so no inventory is touched.
func (m *Manager) AddItem(ctx context.Context, tenantID, shipmentID string, in ItemInput) (*domain.Shipment, error) {
	if in.OrderItemID == "" {
		return nil, fmt.Errorf("%w: missing order_item_id", ErrInvalidItem)
	}
	if in.ProductID == "" {
		return nil, fmt.Errorf("%w: missing product_id", ErrInvalidItem)
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidItem)
	}

	return m.repo.AddItem(ctx, tenantID, &domain.ShipmentItem{
		ShipmentID:  shipmentID,
		OrderItemID: in.OrderItemID,
		ProductID:   in.ProductID,
		Quantity:    in.Quantity,
	})
}

func (m *Manager) recordPromotion(ctx context.Context, order *domain.Order, to domain.OrderStatus, event domain.OrderEvent) {
	previous := order.Status
	m.metrics.RecordOrderTransition(ctx, string(event), "applied")
	m.logger.Info("order status changed",
		"order_id", order.ID, "tenant_id", order.TenantID,
		"event", event, "from", previous, "to", to,
	)
	if m.producer == nil {
		return
	}
	evt := domain.OrderStatusChangedEvent{
		OrderID:        order.ID,
		TenantID:       order.TenantID,
		Email:          order.Email,
		PreviousStatus: previous,
		Status:         to,
		Event:          event,
		OccurredAt:     time.Now().UTC(),
	}
	if err := m.producer.Publish(ctx, order.ID, evt); err != nil {
		m.logger.Error("failed to publish order status change", "error", err, "order_id", order.ID)
	}
}
