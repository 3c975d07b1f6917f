package shipments

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
	"github.com/commercecore/fulfillment/internal/orders"
	"github.com/commercecore/fulfillment/internal/storage"
)

var ErrShipmentNotFound = errors.New("shipment not found")

const shipmentColumns = `id, order_id, tenant_id, status, shipping_method,
	tracking_number, tracking_url, shipped_at, delivered_at, created_at,
	updated_at`

const itemColumns = `id, shipment_id, order_item_id, product_id, quantity`

// StatusPromotion moves an order's status alongside a shipment write. The
// guard on the expected current status keeps concurrent shipment updates
// from double-promoting an order.
type StatusPromotion struct {
	OrderID string
	From    domain.OrderStatus
	To      domain.OrderStatus
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts the shipment and, when promote is set, the order status
// move in one transaction. A lost promotion guard rolls the shipment back
// too; a shipment must never exist whose order promotion silently failed.
func (r *Repository) Create(ctx context.Context, shipment *domain.Shipment, promote *StatusPromotion) error {
	shipment.ID = uuid.New().String()
	now := time.Now().UTC()
	shipment.CreatedAt = now
	shipment.UpdatedAt = now

	return storage.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shipments (`+shipmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		`, shipment.ID, shipment.OrderID, shipment.TenantID, shipment.Status,
			shipment.ShippingMethod, shipment.TrackingNumber, shipment.TrackingURL,
			shipment.ShippedAt, shipment.DeliveredAt, now); err != nil {
			return fmt.Errorf("insert shipment: %w", err)
		}

		return promoteOrder(ctx, tx, shipment.TenantID, promote)
	})
}

func (r *Repository) GetByID(ctx context.Context, tenantID, id string) (*domain.Shipment, error) {
	var shipment domain.Shipment
	err := r.db.GetContext(ctx, &shipment, `
		SELECT `+shipmentColumns+`
		FROM shipments
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShipmentNotFound
		}
		return nil, fmt.Errorf("get shipment: %w", err)
	}

	shipment.Items = []domain.ShipmentItem{}
	err = r.db.SelectContext(ctx, &shipment.Items, `
		SELECT `+itemColumns+`
		FROM shipment_items
		WHERE shipment_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load shipment items: %w", err)
	}

	return &shipment, nil
}

func (r *Repository) ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.Shipment, error) {
	shipments := []domain.Shipment{}
	err := r.db.SelectContext(ctx, &shipments, `
		SELECT `+shipmentColumns+`
		FROM shipments
		WHERE tenant_id = $1 AND order_id = $2
		ORDER BY created_at ASC
	`, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	if len(shipments) == 0 {
		return shipments, nil
	}

	byID := make(map[string]*domain.Shipment, len(shipments))
	ids := make([]string, len(shipments))
	for i := range shipments {
		shipments[i].Items = []domain.ShipmentItem{}
		byID[shipments[i].ID] = &shipments[i]
		ids[i] = shipments[i].ID
	}

	items := []domain.ShipmentItem{}
	err = r.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+`
		FROM shipment_items
		WHERE shipment_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load shipment items: %w", err)
	}
	for _, item := range items {
		shipment := byID[item.ShipmentID]
		shipment.Items = append(shipment.Items, item)
	}

	return shipments, nil
}

// StatusUpdate carries a shipment status write. Nil tracking fields keep
// their stored values.
type StatusUpdate struct {
	Status         domain.ShipmentStatus
	TrackingNumber *string
	TrackingURL    *string
}

// UpdateStatus writes the shipment status and stamps shipped_at/delivered_at
// the first time the matching status is reached; replays leave the
// timestamps alone. The order promotion, when present, shares the
// transaction.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id string, in StatusUpdate, promote *StatusPromotion) (*domain.Shipment, error) {
	err := storage.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE shipments SET
				status = $3,
				tracking_number = COALESCE($4, tracking_number),
				tracking_url = COALESCE($5, tracking_url),
				shipped_at = CASE WHEN $3 = 'shipped' AND shipped_at IS NULL THEN NOW() ELSE shipped_at END,
				delivered_at = CASE WHEN $3 = 'delivered' AND delivered_at IS NULL THEN NOW() ELSE delivered_at END,
				updated_at = NOW()
			WHERE tenant_id = $1 AND id = $2
		`, tenantID, id, in.Status, in.TrackingNumber, in.TrackingURL)
		if err != nil {
			return fmt.Errorf("update shipment status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update shipment status: %w", err)
		}
		if affected == 0 {
			return ErrShipmentNotFound
		}

		return promoteOrder(ctx, tx, tenantID, promote)
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, tenantID, id)
}

// AddItem records that part of an order line travels in this shipment.
func (r *Repository) AddItem(ctx context.Context, tenantID string, item *domain.ShipmentItem) (*domain.Shipment, error) {
	item.ID = uuid.New().String()

	err := storage.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var shipmentID string
		err := tx.GetContext(ctx, &shipmentID, `
			SELECT id FROM shipments WHERE tenant_id = $1 AND id = $2
		`, tenantID, item.ShipmentID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrShipmentNotFound
		}
		if err != nil {
			return fmt.Errorf("check shipment: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shipment_items (`+itemColumns+`)
			VALUES ($1, $2, $3, $4, $5)
		`, item.ID, item.ShipmentID, item.OrderItemID, item.ProductID,
			item.Quantity); err != nil {
			return fmt.Errorf("insert shipment item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, tenantID, item.ShipmentID)
}

func promoteOrder(ctx context.Context, tx *sqlx.Tx, tenantID string, promote *StatusPromotion) error {
	if promote == nil {
		return nil
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $3
	`, tenantID, promote.OrderID, promote.From, promote.To)
	if err != nil {
		return fmt.Errorf("promote order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("promote order status: %w", err)
	}
	if affected == 0 {
		return orders.ErrStatusConflict
	}
	return nil
}
