package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/commercecore/fulfillment/internal/domain"
	"github.com/commercecore/fulfillment/internal/storage"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrStatusConflict reports that the order's status moved between the
	// read and the guarded write. Callers retry by re-reading; the
	// repository never retries on its own.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

const orderColumns = `id, tenant_id, user_id, email, status, total,
	shipping_address, billing_address, payment_method, shipping_method,
	notes, created_at, updated_at`

const itemColumns = `id, order_id, tenant_id, product_id, product_name, sku,
	quantity, price, created_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new order header. Items arrive later through AddItem, so
// a fresh order always starts with an empty line set and a zero total.
func (r *Repository) Create(ctx context.Context, order *domain.Order) error {
	order.ID = uuid.New().String()
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`, order.ID, order.TenantID, order.UserID, order.Email, order.Status,
		order.Total, order.ShippingAddress, order.BillingAddress,
		order.PaymentMethod, order.ShippingMethod, order.Notes, now)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.GetContext(ctx, &order, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	order.Items = []domain.OrderItem{}
	err = r.db.SelectContext(ctx, &order.Items, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	return &order, nil
}

func (r *Repository) List(ctx context.Context, tenantID string) ([]domain.Order, error) {
	orders := []domain.Order{}
	err := r.db.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, len(orders))
	for i := range orders {
		orders[i].Items = []domain.OrderItem{}
		byID[orders[i].ID] = &orders[i]
		ids[i] = orders[i].ID
	}

	// Single batch load instead of one item query per order.
	items := []domain.OrderItem{}
	err = r.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+`
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY created_at ASC
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	for _, item := range items {
		order := byID[item.OrderID]
		order.Items = append(order.Items, item)
	}

	return orders, nil
}

// AddItem appends a line item and rolls its line total into the order total.
// Both writes share one transaction and the increment is relative, never
// read-modify-write.
func (r *Repository) AddItem(ctx context.Context, tenantID string, item *domain.OrderItem) (*domain.Order, error) {
	item.ID = uuid.New().String()
	item.TenantID = tenantID
	item.CreatedAt = time.Now().UTC()

	err := storage.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders SET total = total + $3, updated_at = NOW()
			WHERE tenant_id = $1 AND id = $2
		`, tenantID, item.OrderID, item.LineTotal())
		if err != nil {
			return fmt.Errorf("increment order total: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("increment order total: %w", err)
		}
		if affected == 0 {
			return ErrOrderNotFound
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (`+itemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, item.ID, item.OrderID, item.TenantID, item.ProductID,
			item.ProductName, item.SKU, item.Quantity, item.Price,
			item.CreatedAt); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, tenantID, item.OrderID)
}

// UpdateInput carries a partial order update. Nil fields keep their stored
// value. Status has no field here; it only moves through TransitionStatus.
type UpdateInput struct {
	Email           *string
	ShippingAddress *domain.Address
	BillingAddress  *domain.Address
	PaymentMethod   *string
	ShippingMethod  *string
	Notes           *string
}

func (r *Repository) Update(ctx context.Context, tenantID, id string, in UpdateInput) (*domain.Order, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET
			email = COALESCE($3, email),
			shipping_address = COALESCE($4, shipping_address),
			billing_address = COALESCE($5, billing_address),
			payment_method = COALESCE($6, payment_method),
			shipping_method = COALESCE($7, shipping_method),
			notes = COALESCE($8, notes),
			updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, in.Email, in.ShippingAddress, in.BillingAddress,
		in.PaymentMethod, in.ShippingMethod, in.Notes)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if affected == 0 {
		return nil, ErrOrderNotFound
	}

	return r.GetByID(ctx, tenantID, id)
}

// TransitionStatus persists a status move with an optimistic guard on the
// status the caller read. A concurrent transition leaves the guard matching
// zero rows and surfaces as ErrStatusConflict.
func (r *Repository) TransitionStatus(ctx context.Context, tenantID, id string, from, to domain.OrderStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $3
	`, tenantID, id, from, to)
	if err != nil {
		return fmt.Errorf("transition order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition order status: %w", err)
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}
