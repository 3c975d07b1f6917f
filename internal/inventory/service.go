package inventory

import (
	"context"
	"errors"
	"log/slog"

	"github.com/commercecore/fulfillment/internal/domain"
	"github.com/commercecore/fulfillment/internal/telemetry"
)

var ErrInvalidQuantity = errors.New("quantity must be positive")

const defaultTransactionLimit = 50

// repository is the storage surface the manager drives.
type repository interface {
	GetByProduct(ctx context.Context, tenantID, productID string) (*domain.InventoryRecord, error)
	List(ctx context.Context, tenantID string) ([]domain.InventoryRecord, error)
	Upsert(ctx context.Context, tenantID string, in UpsertInput) (*domain.InventoryRecord, error)
	Reserve(ctx context.Context, tenantID, productID string, quantity int, refID, refType string) (bool, error)
	Release(ctx context.Context, tenantID, productID string, quantity int, refID, refType string) (bool, error)
	CompleteSale(ctx context.Context, tenantID, productID string, quantity int, refID, refType string) (*domain.InventoryRecord, error)
	ProcessReturn(ctx context.Context, tenantID, productID string, quantity int, refID, refType, notes string) (*domain.InventoryRecord, error)
	LowStock(ctx context.Context, tenantID string) ([]domain.LowStockItem, error)
	Transactions(ctx context.Context, tenantID, productID string, f TransactionFilter) ([]domain.InventoryTransaction, error)
}

// Manager owns stock levels and their audit trail. Refusals for business
// reasons (not enough stock, nothing reserved) come back as false rather
// than errors; errors mean something actually broke.
type Manager struct {
	repo    repository
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewManager(repo repository, metrics *telemetry.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
	}
}

func (m *Manager) Record(ctx context.Context, tenantID, productID string) (*domain.InventoryRecord, error) {
	return m.repo.GetByProduct(ctx, tenantID, productID)
}

func (m *Manager) List(ctx context.Context, tenantID string) ([]domain.InventoryRecord, error) {
	return m.repo.List(ctx, tenantID)
}

// UpsertStock sets the absolute stock count for a product, creating the
// record on first intake.
func (m *Manager) UpsertStock(ctx context.Context, tenantID string, in UpsertInput) (*domain.InventoryRecord, error) {
	if in.Quantity < 0 || in.ReorderPoint < 0 || in.ReorderQuantity < 0 {
		return nil, ErrInvalidQuantity
	}

	rec, err := m.repo.Upsert(ctx, tenantID, in)
	if err != nil {
		return nil, err
	}

	m.logger.Info("stock upserted",
		"tenant_id", tenantID,
		"product_id", in.ProductID,
		"quantity", rec.Quantity,
		"available", rec.AvailableQuantity,
	)
	return rec, nil
}

// Reserve holds quantity units against a reference, usually an order. It
// reports false when the available pool is too small or the product has no
// inventory record.
func (m *Manager) Reserve(ctx context.Context, tenantID, productID string, quantity int, refID, refType string) (bool, error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}
	if refType == "" {
		refType = "order"
	}

	ok, err := m.repo.Reserve(ctx, tenantID, productID, quantity, refID, refType)
	if err != nil {
		return false, err
	}

	if ok {
		m.metrics.RecordReservation(ctx, "reserved")
		m.logger.Info("stock reserved",
			"tenant_id", tenantID, "product_id", productID,
			"quantity", quantity, "reference_id", refID,
		)
	} else {
		m.metrics.RecordReservation(ctx, "insufficient")
		m.logger.Info("reservation refused",
			"tenant_id", tenantID, "product_id", productID,
			"quantity", quantity, "reference_id", refID,
		)
	}
	return ok, nil
}

// Release returns reserved units to the available pool, for example when an
// order is cancelled before shipping.
func (m *Manager) Release(ctx context.Context, tenantID, productID string, quantity int, refID string) (bool, error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}

	ok, err := m.repo.Release(ctx, tenantID, productID, quantity, refID, "order")
	if err != nil {
		return false, err
	}
	if ok {
		m.logger.Info("reservation released",
			"tenant_id", tenantID, "product_id", productID,
			"quantity", quantity, "reference_id", refID,
		)
	}
	return ok, nil
}

// CompleteSale finalizes a reservation when its order ships. Completing more
// units than are reserved just clears the reservation.
func (m *Manager) CompleteSale(ctx context.Context, tenantID, productID string, quantity int, refID string) (*domain.InventoryRecord, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	rec, err := m.repo.CompleteSale(ctx, tenantID, productID, quantity, refID, "order")
	if err != nil {
		return nil, err
	}

	m.logger.Info("sale completed",
		"tenant_id", tenantID, "product_id", productID,
		"quantity", quantity, "reference_id", refID,
	)
	return rec, nil
}

// ProcessReturn restocks returned units. Unlike the reservation family this
// requires the record to exist and fails with ErrRecordNotFound otherwise.
func (m *Manager) ProcessReturn(ctx context.Context, tenantID, productID string, quantity int, refID, notes string) (*domain.InventoryRecord, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	rec, err := m.repo.ProcessReturn(ctx, tenantID, productID, quantity, refID, "order", notes)
	if err != nil {
		return nil, err
	}

	m.logger.Info("return processed",
		"tenant_id", tenantID, "product_id", productID,
		"quantity", quantity, "reference_id", refID,
	)
	return rec, nil
}

func (m *Manager) LowStock(ctx context.Context, tenantID string) ([]domain.LowStockItem, error) {
	return m.repo.LowStock(ctx, tenantID)
}

func (m *Manager) Transactions(ctx context.Context, tenantID, productID string, f TransactionFilter) ([]domain.InventoryTransaction, error) {
	if f.Limit <= 0 {
		f.Limit = defaultTransactionLimit
	}
	return m.repo.Transactions(ctx, tenantID, productID, f)
}
