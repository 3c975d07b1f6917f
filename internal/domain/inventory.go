package domain

import "time"

// TransactionType classifies an inventory ledger entry.
type TransactionType string

const (
	TransactionInitial    TransactionType = "initial"
	TransactionAdjustment TransactionType = "adjustment"
	TransactionSale       TransactionType = "sale"
	TransactionReturn     TransactionType = "return"
)

// InventoryRecord tracks stock for one (tenant, product) pair. There is at
// most one record per pair. Quantity is the stock on the books,
// reserved_quantity the share held for open orders and available_quantity
// what a new reservation may still take. Each counter moves only through
// the repository's guarded writes; a completed sale keeps its units in
// quantity, so available is not derivable from the other two.
type InventoryRecord struct {
	ID                string    `db:"id" json:"id"`
	TenantID          string    `db:"tenant_id" json:"tenant_id"`
	ProductID         string    `db:"product_id" json:"product_id"`
	SKU               string    `db:"sku" json:"sku,omitempty"`
	Location          string    `db:"location" json:"location,omitempty"`
	Quantity          int       `db:"quantity" json:"quantity"`
	ReservedQuantity  int       `db:"reserved_quantity" json:"reserved_quantity"`
	AvailableQuantity int       `db:"available_quantity" json:"available_quantity"`
	ReorderPoint      int       `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity   int       `db:"reorder_quantity" json:"reorder_quantity"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// InventoryTransaction is one append-only ledger entry. Quantity is a signed
// delta: negative for reservations, positive for returns and additions, zero
// for sale completions. Entries are never updated or deleted.
type InventoryTransaction struct {
	ID                string          `db:"id" json:"id"`
	InventoryRecordID string          `db:"inventory_record_id" json:"inventory_record_id"`
	TenantID          string          `db:"tenant_id" json:"tenant_id"`
	ProductID         string          `db:"product_id" json:"product_id"`
	Type              TransactionType `db:"transaction_type" json:"transaction_type"`
	Quantity          int             `db:"quantity" json:"quantity"`
	ReferenceID       string          `db:"reference_id" json:"reference_id,omitempty"`
	ReferenceType     string          `db:"reference_type" json:"reference_type,omitempty"`
	Notes             string          `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// LowStockItem is a row of the low-stock report: an inventory record whose
// available quantity is at or below its reorder point, joined with the
// product for display. Reserved units count against the threshold.
type LowStockItem struct {
	ProductID         string `db:"product_id" json:"product_id"`
	ProductName       string `db:"product_name" json:"product_name"`
	SKU               string `db:"sku" json:"sku"`
	Quantity          int    `db:"quantity" json:"quantity"`
	AvailableQuantity int    `db:"available_quantity" json:"available_quantity"`
	ReorderPoint      int    `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity   int    `db:"reorder_quantity" json:"reorder_quantity"`
}

// Product is the catalog projection this core consumes. Product management
// is owned elsewhere; stock is a display mirror of InventoryRecord.Quantity,
// refreshed on stock intake and sale completion.
type Product struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Stock     int       `db:"stock" json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
