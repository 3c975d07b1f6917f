package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/commercecore/fulfillment/internal/domain"
	"github.com/commercecore/fulfillment/internal/telemetry"
)

var (
	ErrEmailRequired = errors.New("order email is required")
	ErrInvalidItem   = errors.New("invalid order item")
)

type repository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Order, error)
	List(ctx context.Context, tenantID string) ([]domain.Order, error)
	AddItem(ctx context.Context, tenantID string, item *domain.OrderItem) (*domain.Order, error)
	Update(ctx context.Context, tenantID, id string, in UpdateInput) (*domain.Order, error)
	TransitionStatus(ctx context.Context, tenantID, id string, from, to domain.OrderStatus) error
}

type publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type shipmentSource interface {
	ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.Shipment, error)
}

// Manager owns the order lifecycle. Status only ever moves through
// ApplyEvent; everything else mutates orders without touching status.
type Manager struct {
	repo      repository
	shipments shipmentSource
	producer  publisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// NewManager wires the order manager. shipments and producer may be nil:
// without a shipment source order reads skip shipment hydration, without a
// producer status changes stay observable in the database only.
func NewManager(repo repository, shipments shipmentSource, producer publisher, metrics *telemetry.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		repo:      repo,
		shipments: shipments,
		producer:  producer,
		metrics:   metrics,
		logger:    logger,
	}
}

// CreateInput is the intake shape for Create. UserID is nil for guest
// checkout.
type CreateInput struct {
	Email           string
	UserID          *string
	ShippingAddress domain.Address
	BillingAddress  domain.Address
	PaymentMethod   string
	ShippingMethod  string
	Notes           string
}

// Create opens an order in pending with an empty line set. Checkout
// orchestration (stock reservation, payment) happens elsewhere and feeds
// back through AddItem and ApplyEvent.
func (m *Manager) Create(ctx context.Context, tenantID string, in CreateInput) (*domain.Order, error) {
	if in.Email == "" {
		return nil, ErrEmailRequired
	}

	order := &domain.Order{
		TenantID:        tenantID,
		UserID:          in.UserID,
		Email:           in.Email,
		Status:          domain.OrderStatusPending,
		Total:           decimal.Zero,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		PaymentMethod:   in.PaymentMethod,
		ShippingMethod:  in.ShippingMethod,
		Notes:           in.Notes,
	}
	if err := m.repo.Create(ctx, order); err != nil {
		return nil, err
	}
	order.Items = []domain.OrderItem{}

	m.logger.Info("order created", "order_id", order.ID, "tenant_id", tenantID, "email", order.Email)
	return order, nil
}

// Get loads an order with its items and, when a shipment source is wired,
// its shipments.
func (m *Manager) Get(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	order, err := m.repo.GetByID(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if m.shipments != nil {
		shipments, err := m.shipments.ListByOrder(ctx, tenantID, orderID)
		if err != nil {
			return nil, fmt.Errorf("load order shipments: %w", err)
		}
		order.Shipments = shipments
	}
	return order, nil
}

func (m *Manager) List(ctx context.Context, tenantID string) ([]domain.Order, error) {
	return m.repo.List(ctx, tenantID)
}

// ItemInput snapshots the product at purchase time; name, SKU and price are
// stored as given, never re-read from the catalog.
type ItemInput struct {
	ProductID   string
	ProductName string
	SKU         string
	Quantity    int
	Price       decimal.Decimal
}

// AddItem appends a line item and grows the order total by price x quantity.
// It knows nothing about stock; reservations belong to the inventory
// manager and meet orders only through reference_id.
func (m *Manager) AddItem(ctx context.Context, tenantID, orderID string, in ItemInput) (*domain.Order, error) {
	if in.ProductID == "" {
		return nil, fmt.Errorf("%w: missing product_id", ErrInvalidItem)
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidItem)
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidItem)
	}

	item := &domain.OrderItem{
		OrderID:     orderID,
		ProductID:   in.ProductID,
		ProductName: in.ProductName,
		SKU:         in.SKU,
		Quantity:    in.Quantity,
		Price:       in.Price,
	}
	order, err := m.repo.AddItem(ctx, tenantID, item)
	if err != nil {
		return nil, err
	}

	m.logger.Info("order item added",
		"order_id", orderID, "tenant_id", tenantID,
		"product_id", in.ProductID, "quantity", in.Quantity,
	)
	return order, nil
}

// Update mutates the order's non-status fields.
func (m *Manager) Update(ctx context.Context, tenantID, orderID string, in UpdateInput) (*domain.Order, error) {
	if in.Email != nil && *in.Email == "" {
		return nil, ErrEmailRequired
	}
	return m.repo.Update(ctx, tenantID, orderID, in)
}

// ApplyEvent runs event through the transition table and persists the
// outcome. A redundant forward event returns the order unchanged without
// publishing. A real change is guarded against concurrent transitions and
// announced on the order events topic.
func (m *Manager) ApplyEvent(ctx context.Context, tenantID, orderID string, event domain.OrderEvent) (*domain.Order, error) {
	order, err := m.repo.GetByID(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}

	next, changed, err := domain.ApplyOrderEvent(order.Status, event)
	if err != nil {
		m.metrics.RecordOrderTransition(ctx, string(event), "rejected")
		return nil, err
	}
	if !changed {
		m.metrics.RecordOrderTransition(ctx, string(event), "noop")
		m.logger.Info("order event was a no-op",
			"order_id", orderID, "tenant_id", tenantID,
			"event", event, "status", order.Status,
		)
		return order, nil
	}

	if err := m.repo.TransitionStatus(ctx, tenantID, orderID, order.Status, next); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			m.metrics.RecordOrderTransition(ctx, string(event), "conflict")
		}
		return nil, err
	}

	previous := order.Status
	order.Status = next
	m.metrics.RecordOrderTransition(ctx, string(event), "applied")
	m.logger.Info("order status changed",
		"order_id", orderID, "tenant_id", tenantID,
		"event", event, "from", previous, "to", next,
	)
	m.publishStatusChange(ctx, order, previous, event)

	return order, nil
}

func (m *Manager) publishStatusChange(ctx context.Context, order *domain.Order, previous domain.OrderStatus, event domain.OrderEvent) {
	if m.producer == nil {
		return
	}
	evt := domain.OrderStatusChangedEvent{
		OrderID:        order.ID,
		TenantID:       order.TenantID,
		Email:          order.Email,
		PreviousStatus: previous,
		Status:         order.Status,
		Event:          event,
		OccurredAt:     time.Now().UTC(),
	}
	if err := m.producer.Publish(ctx, order.ID, evt); err != nil {
		m.logger.Error("failed to publish order status change", "error", err, "order_id", order.ID)
	}
}
