package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/commercecore/fulfillment/internal/domain"
)

type fakeRepo struct {
	records  map[string]*domain.InventoryRecord
	txns     []domain.InventoryTransaction
	failWith error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]*domain.InventoryRecord)}
}

func recordKey(tenantID, productID string) string {
	return tenantID + "/" + productID
}

func (f *fakeRepo) seed(tenantID, productID string, quantity, reserved int) {
	f.records[recordKey(tenantID, productID)] = &domain.InventoryRecord{
		ID:                uuid.New().String(),
		TenantID:          tenantID,
		ProductID:         productID,
		Quantity:          quantity,
		ReservedQuantity:  reserved,
		AvailableQuantity: quantity - reserved,
	}
}

func (f *fakeRepo) appendTxn(rec *domain.InventoryRecord, typ domain.TransactionType, qty int, refID, refType, notes string) {
	f.txns = append(f.txns, domain.InventoryTransaction{
		ID:                uuid.New().String(),
		InventoryRecordID: rec.ID,
		TenantID:          rec.TenantID,
		ProductID:         rec.ProductID,
		Type:              typ,
		Quantity:          qty,
		ReferenceID:       refID,
		ReferenceType:     refType,
		Notes:             notes,
		CreatedAt:         time.Now().UTC(),
	})
}

func (f *fakeRepo) GetByProduct(_ context.Context, tenantID, productID string) (*domain.InventoryRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	rec, ok := f.records[recordKey(tenantID, productID)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context, tenantID string) ([]domain.InventoryRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := []domain.InventoryRecord{}
	for _, rec := range f.records {
		if rec.TenantID == tenantID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeRepo) Upsert(_ context.Context, tenantID string, in UpsertInput) (*domain.InventoryRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	k := recordKey(tenantID, in.ProductID)
	rec, ok := f.records[k]
	if !ok {
		rec = &domain.InventoryRecord{
			ID:                uuid.New().String(),
			TenantID:          tenantID,
			ProductID:         in.ProductID,
			SKU:               in.SKU,
			Location:          in.Location,
			Quantity:          in.Quantity,
			AvailableQuantity: in.Quantity,
			ReorderPoint:      in.ReorderPoint,
			ReorderQuantity:   in.ReorderQuantity,
		}
		f.records[k] = rec
		f.appendTxn(rec, domain.TransactionInitial, in.Quantity, "", "", "initial stock")
		cp := *rec
		return &cp, nil
	}
	if in.Quantity < rec.ReservedQuantity {
		return nil, ErrQuantityBelowReserved
	}
	delta := in.Quantity - rec.Quantity
	rec.SKU = in.SKU
	rec.Location = in.Location
	rec.Quantity = in.Quantity
	rec.AvailableQuantity = in.Quantity - rec.ReservedQuantity
	rec.ReorderPoint = in.ReorderPoint
	rec.ReorderQuantity = in.ReorderQuantity
	if delta != 0 {
		f.appendTxn(rec, domain.TransactionAdjustment, delta, "", "", "stock adjusted")
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) Reserve(_ context.Context, tenantID, productID string, quantity int, refID, refType string) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	rec, ok := f.records[recordKey(tenantID, productID)]
	if !ok || rec.AvailableQuantity < quantity {
		return false, nil
	}
	rec.ReservedQuantity += quantity
	rec.AvailableQuantity -= quantity
	f.appendTxn(rec, domain.TransactionSale, -quantity, refID, refType, "stock reserved")
	return true, nil
}

func (f *fakeRepo) Release(_ context.Context, tenantID, productID string, quantity int, refID, refType string) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	rec, ok := f.records[recordKey(tenantID, productID)]
	if !ok || rec.ReservedQuantity < quantity {
		return false, nil
	}
	rec.ReservedQuantity -= quantity
	rec.AvailableQuantity += quantity
	f.appendTxn(rec, domain.TransactionSale, quantity, refID, refType, "reservation released")
	return true, nil
}

func (f *fakeRepo) CompleteSale(_ context.Context, tenantID, productID string, quantity int, refID, refType string) (*domain.InventoryRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	rec, ok := f.records[recordKey(tenantID, productID)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	rec.ReservedQuantity = max(0, rec.ReservedQuantity-quantity)
	f.appendTxn(rec, domain.TransactionSale, 0, refID, refType, "sale completed")
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) ProcessReturn(_ context.Context, tenantID, productID string, quantity int, refID, refType, notes string) (*domain.InventoryRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	rec, ok := f.records[recordKey(tenantID, productID)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	rec.Quantity += quantity
	rec.AvailableQuantity += quantity
	if notes == "" {
		notes = "return processed"
	}
	f.appendTxn(rec, domain.TransactionReturn, quantity, refID, refType, notes)
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) LowStock(_ context.Context, tenantID string) ([]domain.LowStockItem, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	items := []domain.LowStockItem{}
	for _, rec := range f.records {
		if rec.TenantID == tenantID && rec.ReorderPoint > 0 && rec.AvailableQuantity <= rec.ReorderPoint {
			items = append(items, domain.LowStockItem{
				ProductID:         rec.ProductID,
				SKU:               rec.SKU,
				Quantity:          rec.Quantity,
				AvailableQuantity: rec.AvailableQuantity,
				ReorderPoint:      rec.ReorderPoint,
				ReorderQuantity:   rec.ReorderQuantity,
			})
		}
	}
	return items, nil
}

func (f *fakeRepo) Transactions(_ context.Context, tenantID, productID string, filter TransactionFilter) ([]domain.InventoryTransaction, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := []domain.InventoryTransaction{}
	for i := len(f.txns) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		txn := f.txns[i]
		if txn.TenantID != tenantID || txn.ProductID != productID {
			continue
		}
		if filter.Type != "" && txn.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && txn.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && txn.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

func newTestManager(repo *fakeRepo) *Manager {
	return NewManager(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestManagerReserve(t *testing.T) {
	t.Run("reserves available stock and writes a negative ledger entry", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 0)
		m := newTestManager(repo)

		ok, err := m.Reserve(context.Background(), "t1", "p1", 4, "order-1", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatal("expected reservation to succeed")
		}

		rec, err := m.Record(context.Background(), "t1", "p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.ReservedQuantity != 4 || rec.AvailableQuantity != 6 || rec.Quantity != 10 {
			t.Errorf("expected 10/4/6, got quantity=%d reserved=%d available=%d",
				rec.Quantity, rec.ReservedQuantity, rec.AvailableQuantity)
		}

		txns, _ := m.Transactions(context.Background(), "t1", "p1", TransactionFilter{Limit: 10})
		if len(txns) != 1 {
			t.Fatalf("expected 1 ledger entry, got %d", len(txns))
		}
		if txns[0].Type != domain.TransactionSale || txns[0].Quantity != -4 {
			t.Errorf("expected sale -4, got %s %d", txns[0].Type, txns[0].Quantity)
		}
		if txns[0].ReferenceID != "order-1" || txns[0].ReferenceType != "order" {
			t.Errorf("expected order-1/order reference, got %s/%s", txns[0].ReferenceID, txns[0].ReferenceType)
		}
	})

	t.Run("refuses without enough available stock", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 3, 0)
		m := newTestManager(repo)

		ok, err := m.Reserve(context.Background(), "t1", "p1", 4, "order-1", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected refusal")
		}
		if len(repo.txns) != 0 {
			t.Errorf("refused reservation must not write ledger entries, got %d", len(repo.txns))
		}
	})

	t.Run("refuses for an unknown product", func(t *testing.T) {
		m := newTestManager(newFakeRepo())

		ok, err := m.Reserve(context.Background(), "t1", "missing", 1, "order-1", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected refusal for unknown product")
		}
	})

	t.Run("rejects non-positive quantities", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 0)
		m := newTestManager(repo)

		for _, qty := range []int{0, -2} {
			if _, err := m.Reserve(context.Background(), "t1", "p1", qty, "order-1", ""); !errors.Is(err, ErrInvalidQuantity) {
				t.Errorf("quantity %d: expected ErrInvalidQuantity, got %v", qty, err)
			}
		}
	})

	t.Run("propagates storage failures", func(t *testing.T) {
		repo := newFakeRepo()
		repo.failWith = errors.New("connection reset")
		m := newTestManager(repo)

		if _, err := m.Reserve(context.Background(), "t1", "p1", 1, "order-1", ""); err == nil {
			t.Error("expected storage error to surface")
		}
	})
}

func TestManagerUpsertStock(t *testing.T) {
	t.Run("rejects negative values", func(t *testing.T) {
		m := newTestManager(newFakeRepo())

		_, err := m.UpsertStock(context.Background(), "t1", UpsertInput{ProductID: "p1", Quantity: -1})
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("refuses to drop below reserved", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 6)
		m := newTestManager(repo)

		_, err := m.UpsertStock(context.Background(), "t1", UpsertInput{ProductID: "p1", Quantity: 5})
		if !errors.Is(err, ErrQuantityBelowReserved) {
			t.Errorf("expected ErrQuantityBelowReserved, got %v", err)
		}
	})
}

func TestStockLifecycle(t *testing.T) {
	// Intake 10, reserve 4, complete the sale, then take back a return of 2.
	// Completing a sale burns the reservation without touching the stock
	// count, so the count ends at 12 with 8 sellable.
	repo := newFakeRepo()
	m := newTestManager(repo)
	ctx := context.Background()

	if _, err := m.UpsertStock(ctx, "t1", UpsertInput{ProductID: "p1", Quantity: 10, ReorderPoint: 9, ReorderQuantity: 20}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if low, err := m.LowStock(ctx, "t1"); err != nil || len(low) != 0 {
		t.Fatalf("fresh intake should not be low stock, got %d items err=%v", len(low), err)
	}

	if ok, err := m.Reserve(ctx, "t1", "p1", 4, "order-9", ""); err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}

	rec, err := m.CompleteSale(ctx, "t1", "p1", 4, "order-9")
	if err != nil {
		t.Fatalf("complete sale: %v", err)
	}
	if rec.Quantity != 10 || rec.ReservedQuantity != 0 || rec.AvailableQuantity != 6 {
		t.Fatalf("after completion expected 10/0/6, got %d/%d/%d",
			rec.Quantity, rec.ReservedQuantity, rec.AvailableQuantity)
	}

	rec, err = m.ProcessReturn(ctx, "t1", "p1", 2, "order-9", "damaged box, restocked")
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if rec.Quantity != 12 || rec.ReservedQuantity != 0 || rec.AvailableQuantity != 8 {
		t.Fatalf("after return expected 12/0/8, got %d/%d/%d",
			rec.Quantity, rec.ReservedQuantity, rec.AvailableQuantity)
	}

	// 8 sellable against a reorder point of 9: the report picks it up now.
	low, err := m.LowStock(ctx, "t1")
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].ProductID != "p1" {
		t.Fatalf("expected p1 in the low-stock report, got %+v", low)
	}
	if low[0].AvailableQuantity != 8 || low[0].Quantity != 12 || low[0].ReorderQuantity != 20 {
		t.Fatalf("low-stock row mismatch: %+v", low[0])
	}

	txns, err := m.Transactions(ctx, "t1", "p1", TransactionFilter{Limit: 10})
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txns) != 4 {
		t.Fatalf("expected 4 ledger entries, got %d", len(txns))
	}
	// Newest first.
	wantTypes := []domain.TransactionType{
		domain.TransactionReturn,
		domain.TransactionSale,
		domain.TransactionSale,
		domain.TransactionInitial,
	}
	wantDeltas := []int{2, 0, -4, 10}
	for i := range txns {
		if txns[i].Type != wantTypes[i] || txns[i].Quantity != wantDeltas[i] {
			t.Errorf("entry %d: expected %s %d, got %s %d",
				i, wantTypes[i], wantDeltas[i], txns[i].Type, txns[i].Quantity)
		}
	}

	sales, err := m.Transactions(ctx, "t1", "p1", TransactionFilter{Type: domain.TransactionSale, Limit: 10})
	if err != nil {
		t.Fatalf("filtered transactions: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sale entries, got %d", len(sales))
	}
	for _, txn := range sales {
		if txn.Type != domain.TransactionSale {
			t.Errorf("type filter leaked a %s entry", txn.Type)
		}
	}
}

func TestManagerRelease(t *testing.T) {
	t.Run("returns reserved units to the available pool", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 4)
		m := newTestManager(repo)

		ok, err := m.Release(context.Background(), "t1", "p1", 4, "order-2")
		if err != nil || !ok {
			t.Fatalf("release: ok=%v err=%v", ok, err)
		}

		rec, _ := m.Record(context.Background(), "t1", "p1")
		if rec.ReservedQuantity != 0 || rec.AvailableQuantity != 10 {
			t.Errorf("expected 0 reserved / 10 available, got %d/%d",
				rec.ReservedQuantity, rec.AvailableQuantity)
		}
	})

	t.Run("refuses to release more than reserved", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 2)
		m := newTestManager(repo)

		ok, err := m.Release(context.Background(), "t1", "p1", 3, "order-2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected refusal")
		}
	})
}

func TestManagerCompleteSale(t *testing.T) {
	t.Run("floors the reservation at zero", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 3)
		m := newTestManager(repo)

		rec, err := m.CompleteSale(context.Background(), "t1", "p1", 5, "order-4")
		if err != nil {
			t.Fatalf("complete sale: %v", err)
		}
		if rec.ReservedQuantity != 0 {
			t.Errorf("expected reserved floored at 0, got %d", rec.ReservedQuantity)
		}
		if rec.Quantity != 10 || rec.AvailableQuantity != 7 {
			t.Errorf("quantity and available must not move, got %d/%d", rec.Quantity, rec.AvailableQuantity)
		}
	})

	t.Run("fails for a product with no record", func(t *testing.T) {
		m := newTestManager(newFakeRepo())

		_, err := m.CompleteSale(context.Background(), "t1", "missing", 1, "order-4")
		if !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})
}

func TestManagerProcessReturn(t *testing.T) {
	t.Run("fails for a product with no record", func(t *testing.T) {
		m := newTestManager(newFakeRepo())

		_, err := m.ProcessReturn(context.Background(), "t1", "missing", 1, "order-3", "")
		if !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("a following reservation absorbs exactly what the return freed", func(t *testing.T) {
		repo := newFakeRepo()
		m := newTestManager(repo)
		ctx := context.Background()

		if _, err := m.UpsertStock(ctx, "t1", UpsertInput{ProductID: "p1", Quantity: 10}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if ok, err := m.Reserve(ctx, "t1", "p1", 4, "order-1", ""); err != nil || !ok {
			t.Fatalf("reserve: ok=%v err=%v", ok, err)
		}

		if _, err := m.ProcessReturn(ctx, "t1", "p1", 2, "order-0", ""); err != nil {
			t.Fatalf("return: %v", err)
		}
		if ok, err := m.Reserve(ctx, "t1", "p1", 2, "order-2", ""); err != nil || !ok {
			t.Fatalf("reserve after return: ok=%v err=%v", ok, err)
		}

		rec, err := m.Record(ctx, "t1", "p1")
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if rec.AvailableQuantity != 6 {
			t.Errorf("available should be back at 6, got %d", rec.AvailableQuantity)
		}
		if rec.Quantity != 12 || rec.ReservedQuantity != 6 {
			t.Errorf("expected 12/6/6, got %d/%d/%d", rec.Quantity, rec.ReservedQuantity, rec.AvailableQuantity)
		}
	})
}
