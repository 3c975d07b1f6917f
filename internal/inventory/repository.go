package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/commercecore/fulfillment/internal/domain"
	"github.com/commercecore/fulfillment/internal/storage"
)

var (
	ErrRecordNotFound        = errors.New("inventory record not found")
	ErrQuantityBelowReserved = errors.New("quantity cannot drop below reserved quantity")
)

const recordColumns = `id, tenant_id, product_id, sku, location, quantity,
	reserved_quantity, available_quantity, reorder_point, reorder_quantity,
	created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByProduct(ctx context.Context, tenantID, productID string) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT `+recordColumns+`
		FROM inventory_records
		WHERE tenant_id = $1 AND product_id = $2
	`, tenantID, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get inventory record: %w", err)
	}
	return &rec, nil
}

func (r *Repository) List(ctx context.Context, tenantID string) ([]domain.InventoryRecord, error) {
	records := []domain.InventoryRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT `+recordColumns+`
		FROM inventory_records
		WHERE tenant_id = $1
		ORDER BY updated_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list inventory records: %w", err)
	}
	return records, nil
}

// UpsertInput is the intake shape for Upsert. Quantity is the new absolute
// stock count, not a delta.
type UpsertInput struct {
	ProductID       string
	SKU             string
	Location        string
	Quantity        int
	ReorderPoint    int
	ReorderQuantity int
}

// Upsert creates or replaces the stock count for a product. The record
// update, the ledger entry and the product stock mirror commit together or
// not at all. The row is locked for the read-modify-write so two concurrent
// intakes cannot both compute their delta from the same snapshot.
func (r *Repository) Upsert(ctx context.Context, tenantID string, in UpsertInput) (*domain.InventoryRecord, error) {
	var out domain.InventoryRecord

	err := storage.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var existing domain.InventoryRecord
		err := tx.GetContext(ctx, &existing, `
			SELECT `+recordColumns+`
			FROM inventory_records
			WHERE tenant_id = $1 AND product_id = $2
			FOR UPDATE
		`, tenantID, in.ProductID)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			now := time.Now().UTC()
			out = domain.InventoryRecord{
				ID:                uuid.New().String(),
				TenantID:          tenantID,
				ProductID:         in.ProductID,
				SKU:               in.SKU,
				Location:          in.Location,
				Quantity:          in.Quantity,
				ReservedQuantity:  0,
				AvailableQuantity: in.Quantity,
				ReorderPoint:      in.ReorderPoint,
				ReorderQuantity:   in.ReorderQuantity,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO inventory_records (`+recordColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
			`, out.ID, out.TenantID, out.ProductID, out.SKU, out.Location,
				out.Quantity, out.ReservedQuantity, out.AvailableQuantity,
				out.ReorderPoint, out.ReorderQuantity, now); err != nil {
				return fmt.Errorf("insert inventory record: %w", err)
			}
			if err := insertTransaction(ctx, tx, &domain.InventoryTransaction{
				InventoryRecordID: out.ID,
				TenantID:          tenantID,
				ProductID:         in.ProductID,
				Type:              domain.TransactionInitial,
				Quantity:          in.Quantity,
				Notes:             "initial stock",
			}); err != nil {
				return err
			}

		case err != nil:
			return fmt.Errorf("lock inventory record: %w", err)

		default:
			if in.Quantity < existing.ReservedQuantity {
				return ErrQuantityBelowReserved
			}
			delta := in.Quantity - existing.Quantity
			out = existing
			out.SKU = in.SKU
			out.Location = in.Location
			out.Quantity = in.Quantity
			out.AvailableQuantity = in.Quantity - existing.ReservedQuantity
			out.ReorderPoint = in.ReorderPoint
			out.ReorderQuantity = in.ReorderQuantity
			out.UpdatedAt = time.Now().UTC()
			if _, err := tx.ExecContext(ctx, `
				UPDATE inventory_records
				SET sku = $3, location = $4, quantity = $5, available_quantity = $6,
				    reorder_point = $7, reorder_quantity = $8, updated_at = $9
				WHERE tenant_id = $1 AND product_id = $2
			`, tenantID, in.ProductID, out.SKU, out.Location, out.Quantity,
				out.AvailableQuantity, out.ReorderPoint, out.ReorderQuantity, out.UpdatedAt); err != nil {
				return fmt.Errorf("update inventory record: %w", err)
			}
			if delta != 0 {
				if err := insertTransaction(ctx, tx, &domain.InventoryTransaction{
					InventoryRecordID: out.ID,
					TenantID:          tenantID,
					ProductID:         in.ProductID,
					Type:              domain.TransactionAdjustment,
					Quantity:          delta,
					Notes:             "stock adjusted",
				}); err != nil {
					return err
				}
			}
		}

		return syncProductStock(ctx, tx, tenantID, in.ProductID, out.Quantity)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Reserve moves quantity from available to reserved, refusing when not
// enough is available. The guard lives in the WHERE clause so two competing
// reservations can never both win the same units; the loser simply matches
// zero rows. A refusal is reported as (false, nil), not an error.
func (r *Repository) Reserve(ctx context.Context, tenantID, productID string, quantity int, refID, refType string) (bool, error) {
	reserved := false
	err := storage.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var recordID string
		err := tx.GetContext(ctx, &recordID, `
			UPDATE inventory_records
			SET reserved_quantity = reserved_quantity + $3,
			    available_quantity = available_quantity - $3,
			    updated_at = NOW()
			WHERE tenant_id = $1 AND product_id = $2 AND available_quantity >= $3
			RETURNING id
		`, tenantID, productID, quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reserve stock: %w", err)
		}

		reserved = true
		return insertTransaction(ctx, tx, &domain.InventoryTransaction{
			InventoryRecordID: recordID,
			TenantID:          tenantID,
			ProductID:         productID,
			Type:              domain.TransactionSale,
			Quantity:          -quantity,
			ReferenceID:       refID,
			ReferenceType:     refType,
			Notes:             "stock reserved",
		})
	})
	return reserved, err
}

// Release hands a reservation back, refusing when fewer units are reserved
// than asked. The ledger entry is a positive sale delta that nets the
// reservation's negative one to zero.
func (r *Repository) Release(ctx context.Context, tenantID, productID string, quantity int, refID, refType string) (bool, error) {
	released := false
	err := storage.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var recordID string
		err := tx.GetContext(ctx, &recordID, `
			UPDATE inventory_records
			SET reserved_quantity = reserved_quantity - $3,
			    available_quantity = available_quantity + $3,
			    updated_at = NOW()
			WHERE tenant_id = $1 AND product_id = $2 AND reserved_quantity >= $3
			RETURNING id
		`, tenantID, productID, quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("release stock: %w", err)
		}

		released = true
		return insertTransaction(ctx, tx, &domain.InventoryTransaction{
			InventoryRecordID: recordID,
			TenantID:          tenantID,
			ProductID:         productID,
			Type:              domain.TransactionSale,
			Quantity:          quantity,
			ReferenceID:       refID,
			ReferenceType:     refType,
			Notes:             "reservation released",
		})
	})
	return released, err
}

// CompleteSale burns a reservation down once its order ships. Only
// reserved_quantity moves, floored at zero; the stock count was already
// committed when the reservation was taken, so the ledger entry carries a
// zero delta purely for the audit trail. The product stock mirror is
// refreshed in the same transaction.
func (r *Repository) CompleteSale(ctx context.Context, tenantID, productID string, quantity int, refID, refType string) (*domain.InventoryRecord, error) {
	var out domain.InventoryRecord
	err := storage.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &out, `
			UPDATE inventory_records
			SET reserved_quantity = GREATEST(0, reserved_quantity - $3),
			    updated_at = NOW()
			WHERE tenant_id = $1 AND product_id = $2
			RETURNING `+recordColumns+`
		`, tenantID, productID, quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("complete sale: %w", err)
		}

		if err := insertTransaction(ctx, tx, &domain.InventoryTransaction{
			InventoryRecordID: out.ID,
			TenantID:          tenantID,
			ProductID:         productID,
			Type:              domain.TransactionSale,
			Quantity:          0,
			ReferenceID:       refID,
			ReferenceType:     refType,
			Notes:             fmt.Sprintf("sale completed: %d units", quantity),
		}); err != nil {
			return err
		}

		return syncProductStock(ctx, tx, tenantID, productID, out.Quantity)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessReturn adds returned units back to both the stock count and the
// available pool and appends a positive return entry to the ledger.
func (r *Repository) ProcessReturn(ctx context.Context, tenantID, productID string, quantity int, refID, refType, notes string) (*domain.InventoryRecord, error) {
	var out domain.InventoryRecord
	err := storage.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &out, `
			UPDATE inventory_records
			SET quantity = quantity + $3,
			    available_quantity = available_quantity + $3,
			    updated_at = NOW()
			WHERE tenant_id = $1 AND product_id = $2
			RETURNING `+recordColumns+`
		`, tenantID, productID, quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("process return: %w", err)
		}

		if notes == "" {
			notes = fmt.Sprintf("return: %d units", quantity)
		}
		return insertTransaction(ctx, tx, &domain.InventoryTransaction{
			InventoryRecordID: out.ID,
			TenantID:          tenantID,
			ProductID:         productID,
			Type:              domain.TransactionReturn,
			Quantity:          quantity,
			ReferenceID:       refID,
			ReferenceType:     refType,
			Notes:             notes,
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository) LowStock(ctx context.Context, tenantID string) ([]domain.LowStockItem, error) {
	items := []domain.LowStockItem{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT i.product_id, p.name AS product_name, i.sku, i.quantity,
		       i.available_quantity, i.reorder_point, i.reorder_quantity
		FROM inventory_records i
		JOIN products p ON p.id = i.product_id AND p.tenant_id = i.tenant_id
		WHERE i.tenant_id = $1 AND i.reorder_point > 0 AND i.available_quantity <= i.reorder_point
		ORDER BY i.available_quantity ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return items, nil
}

// TransactionFilter narrows a ledger read. Zero values for Type, From and
// To mean no filter; Limit caps the page and must be positive.
type TransactionFilter struct {
	Type  domain.TransactionType
	From  time.Time
	To    time.Time
	Limit int
}

func (r *Repository) Transactions(ctx context.Context, tenantID, productID string, f TransactionFilter) ([]domain.InventoryTransaction, error) {
	query := `
		SELECT id, inventory_record_id, tenant_id, product_id, transaction_type,
		       quantity, reference_id, reference_type, notes, created_at
		FROM inventory_transactions
		WHERE tenant_id = $1 AND product_id = $2`
	args := []any{tenantID, productID}

	if f.Type != "" {
		args = append(args, f.Type)
		query += fmt.Sprintf(" AND transaction_type = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	txns := []domain.InventoryTransaction{}
	if err := r.db.SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, fmt.Errorf("list inventory transactions: %w", err)
	}
	return txns, nil
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, txn *domain.InventoryTransaction) error {
	txn.ID = uuid.New().String()
	txn.CreatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (id, inventory_record_id, tenant_id,
			product_id, transaction_type, quantity, reference_id, reference_type,
			notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, txn.ID, txn.InventoryRecordID, txn.TenantID, txn.ProductID, txn.Type,
		txn.Quantity, txn.ReferenceID, txn.ReferenceType, txn.Notes, txn.CreatedAt); err != nil {
		return fmt.Errorf("insert inventory transaction: %w", err)
	}
	return nil
}

// syncProductStock mirrors the stock count onto the product row for catalog
// listings. The inventory record stays the source of truth.
func syncProductStock(ctx context.Context, tx *sqlx.Tx, tenantID, productID string, quantity int) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, productID, quantity); err != nil {
		return fmt.Errorf("sync product stock: %w", err)
	}
	return nil
}
