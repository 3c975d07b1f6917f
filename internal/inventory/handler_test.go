package inventory

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/commercecore/fulfillment/internal/domain"
	"github.com/commercecore/fulfillment/internal/tenant"
)

func newTestServer(repo *fakeRepo) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(NewManager(repo, nil, logger), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /inventory", handler.HandleUpsert)
	mux.HandleFunc("GET /inventory", handler.HandleList)
	mux.HandleFunc("GET /inventory/low-stock", handler.HandleLowStock)
	mux.HandleFunc("GET /inventory/{productId}", handler.HandleGet)
	mux.HandleFunc("POST /inventory/{productId}/reserve", handler.HandleReserve)
	mux.HandleFunc("POST /inventory/{productId}/release", handler.HandleRelease)
	mux.HandleFunc("POST /inventory/{productId}/complete-sale", handler.HandleCompleteSale)
	mux.HandleFunc("POST /inventory/{productId}/return", handler.HandleReturn)
	mux.HandleFunc("GET /inventory/{productId}/transactions", handler.HandleTransactions)

	return tenant.Middleware(logger, mux)
}

func doRequest(t *testing.T, h http.Handler, method, path, tenantID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if tenantID != "" {
		req.Header.Set(tenant.Header, tenantID)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerUpsert(t *testing.T) {
	t.Run("creates a record on first intake", func(t *testing.T) {
		srv := newTestServer(newFakeRepo())

		rec := doRequest(t, srv, http.MethodPost, "/inventory", "t1",
			`{"product_id": "p1", "quantity": 25, "sku": "SKU-1", "reorder_point": 5, "reorder_quantity": 20}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var got domain.InventoryRecord
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.Quantity != 25 || got.AvailableQuantity != 25 || got.ReservedQuantity != 0 {
			t.Errorf("expected 25/0/25, got %d/%d/%d", got.Quantity, got.ReservedQuantity, got.AvailableQuantity)
		}
		if got.SKU != "SKU-1" {
			t.Errorf("expected SKU-1, got %s", got.SKU)
		}
	})

	t.Run("rejects a missing product id", func(t *testing.T) {
		srv := newTestServer(newFakeRepo())

		rec := doRequest(t, srv, http.MethodPost, "/inventory", "t1", `{"quantity": 25}`)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("rejects negative quantity", func(t *testing.T) {
		srv := newTestServer(newFakeRepo())

		rec := doRequest(t, srv, http.MethodPost, "/inventory", "t1", `{"product_id": "p1", "quantity": -1}`)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("conflicts when dropping below reserved", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 6)
		srv := newTestServer(repo)

		rec := doRequest(t, srv, http.MethodPost, "/inventory", "t1", `{"product_id": "p1", "quantity": 5}`)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})
}

func TestHandlerReserve(t *testing.T) {
	t.Run("returns the updated record", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 0)
		srv := newTestServer(repo)

		rec := doRequest(t, srv, http.MethodPost, "/inventory/p1/reserve", "t1",
			`{"quantity": 4, "reference_id": "order-1"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var got domain.InventoryRecord
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.ReservedQuantity != 4 || got.AvailableQuantity != 6 {
			t.Errorf("expected reserved 4 / available 6, got %d/%d", got.ReservedQuantity, got.AvailableQuantity)
		}
	})

	t.Run("conflicts on insufficient stock", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 3, 0)
		srv := newTestServer(repo)

		rec := doRequest(t, srv, http.MethodPost, "/inventory/p1/reserve", "t1",
			`{"quantity": 4, "reference_id": "order-1"}`)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "insufficient stock" {
			t.Errorf("expected 'insufficient stock', got %q", resp["error"])
		}
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 3, 0)
		srv := newTestServer(repo)

		rec := doRequest(t, srv, http.MethodPost, "/inventory/p1/reserve", "t1",
			`{"quantity": 0, "reference_id": "order-1"}`)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("rejects requests without a tenant", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 0)
		srv := newTestServer(repo)

		rec := doRequest(t, srv, http.MethodPost, "/inventory/p1/reserve", "",
			`{"quantity": 4, "reference_id": "order-1"}`)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandlerCompleteSale(t *testing.T) {
	t.Run("retires the reservation", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 4)
		srv := newTestServer(repo)

		rec := doRequest(t, srv, http.MethodPost, "/inventory/p1/complete-sale", "t1",
			`{"quantity": 4, "reference_id": "order-1"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var got domain.InventoryRecord
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.Quantity != 10 || got.ReservedQuantity != 0 || got.AvailableQuantity != 6 {
			t.Errorf("expected 10/0/6, got %d/%d/%d", got.Quantity, got.ReservedQuantity, got.AvailableQuantity)
		}
	})

	t.Run("404s when no record exists", func(t *testing.T) {
		srv := newTestServer(newFakeRepo())

		rec := doRequest(t, srv, http.MethodPost, "/inventory/p1/complete-sale", "t1",
			`{"quantity": 4, "reference_id": "order-1"}`)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestHandlerGet(t *testing.T) {
	t.Run("404s for an unknown product", func(t *testing.T) {
		srv := newTestServer(newFakeRepo())

		rec := doRequest(t, srv, http.MethodGet, "/inventory/nope", "t1", "")

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("tenants cannot see each other's stock", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 0)
		srv := newTestServer(repo)

		rec := doRequest(t, srv, http.MethodGet, "/inventory/p1", "t2", "")

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404 for the wrong tenant, got %d", rec.Code)
		}
	})
}

func TestHandlerReturn(t *testing.T) {
	t.Run("404s when no record exists", func(t *testing.T) {
		srv := newTestServer(newFakeRepo())

		rec := doRequest(t, srv, http.MethodPost, "/inventory/p1/return", "t1",
			`{"quantity": 2, "reference_id": "order-1"}`)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("restocks returned units", func(t *testing.T) {
		repo := newFakeRepo()
		repo.seed("t1", "p1", 10, 0)
		srv := newTestServer(repo)

		rec := doRequest(t, srv, http.MethodPost, "/inventory/p1/return", "t1",
			`{"quantity": 2, "reference_id": "order-1", "notes": "customer return"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var got domain.InventoryRecord
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got.Quantity != 12 || got.AvailableQuantity != 12 {
			t.Errorf("expected quantity 12 / available 12, got %d/%d", got.Quantity, got.AvailableQuantity)
		}
	})
}

func TestHandlerTransactions(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	doRequest(t, srv, http.MethodPost, "/inventory", "t1", `{"product_id": "p1", "quantity": 10}`)
	doRequest(t, srv, http.MethodPost, "/inventory/p1/reserve", "t1", `{"quantity": 3, "reference_id": "o1"}`)

	rec := doRequest(t, srv, http.MethodGet, "/inventory/p1/transactions", "t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var txns []domain.InventoryTransaction
	if err := json.NewDecoder(rec.Body).Decode(&txns); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(txns))
	}
	if txns[0].Type != domain.TransactionSale || txns[0].Quantity != -3 {
		t.Errorf("expected newest entry sale -3, got %s %d", txns[0].Type, txns[0].Quantity)
	}

	t.Run("filters by type", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/inventory/p1/transactions?type=sale", "t1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var txns []domain.InventoryTransaction
		if err := json.NewDecoder(rec.Body).Decode(&txns); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(txns) != 1 || txns[0].Type != domain.TransactionSale {
			t.Errorf("expected a single sale entry, got %v", txns)
		}
	})

	t.Run("rejects a bad limit", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/inventory/p1/transactions?limit=abc", "t1", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("rejects an unknown type", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/inventory/p1/transactions?type=refund", "t1", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("rejects a malformed from timestamp", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/inventory/p1/transactions?from=yesterday", "t1", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandlerLowStock(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	doRequest(t, srv, http.MethodPost, "/inventory", "t1", `{"product_id": "low", "quantity": 2, "reorder_point": 5, "reorder_quantity": 10}`)
	doRequest(t, srv, http.MethodPost, "/inventory", "t1", `{"product_id": "fine", "quantity": 50, "reorder_point": 5, "reorder_quantity": 10}`)
	doRequest(t, srv, http.MethodPost, "/inventory", "t1", `{"product_id": "untracked", "quantity": 0}`)

	rec := doRequest(t, srv, http.MethodGet, "/inventory/low-stock", "t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var items []domain.LowStockItem
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 low-stock item, got %d", len(items))
	}
	if items[0].ProductID != "low" {
		t.Errorf("expected product 'low', got %s", items[0].ProductID)
	}
}
