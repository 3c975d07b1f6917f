package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/commercecore/fulfillment/internal/domain"
	"github.com/commercecore/fulfillment/internal/tenant"
)

type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		logger:  logger,
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	records, err := h.manager.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to list inventory", "error", err, "tenant_id", tenantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	rec, err := h.manager.Record(r.Context(), tenantID, productID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			h.writeError(w, http.StatusNotFound, "inventory record not found")
			return
		}
		h.logger.Error("failed to get inventory record", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

type upsertStockRequest struct {
	ProductID       string `json:"product_id"`
	SKU             string `json:"sku"`
	Location        string `json:"location"`
	Quantity        int    `json:"quantity"`
	ReorderPoint    int    `json:"reorder_point"`
	ReorderQuantity int    `json:"reorder_quantity"`
}

func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	var req upsertStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product_id")
		return
	}

	rec, err := h.manager.UpsertStock(r.Context(), tenantID, UpsertInput{
		ProductID:       req.ProductID,
		SKU:             req.SKU,
		Location:        req.Location,
		Quantity:        req.Quantity,
		ReorderPoint:    req.ReorderPoint,
		ReorderQuantity: req.ReorderQuantity,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidQuantity):
			h.writeError(w, http.StatusBadRequest, "quantity must not be negative")
		case errors.Is(err, ErrQuantityBelowReserved):
			h.writeError(w, http.StatusConflict, "quantity cannot drop below reserved quantity")
		default:
			h.logger.Error("failed to upsert stock", "error", err, "product_id", req.ProductID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

type stockOpRequest struct {
	Quantity      int    `json:"quantity"`
	ReferenceID   string `json:"reference_id"`
	ReferenceType string `json:"reference_type"`
	Notes         string `json:"notes"`
}

type stockOp func(ctx context.Context, tenantID, productID string, req stockOpRequest) (bool, error)

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleStockOp(w, r, func(ctx context.Context, tenantID, productID string, req stockOpRequest) (bool, error) {
		return h.manager.Reserve(ctx, tenantID, productID, req.Quantity, req.ReferenceID, req.ReferenceType)
	}, "insufficient stock")
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleStockOp(w, r, func(ctx context.Context, tenantID, productID string, req stockOpRequest) (bool, error) {
		return h.manager.Release(ctx, tenantID, productID, req.Quantity, req.ReferenceID)
	}, "insufficient reserved stock")
}

func (h *Handler) HandleCompleteSale(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req stockOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.manager.CompleteSale(r.Context(), tenantID, productID, req.Quantity, req.ReferenceID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidQuantity):
			h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		case errors.Is(err, ErrRecordNotFound):
			h.writeError(w, http.StatusNotFound, "inventory record not found")
		default:
			h.logger.Error("failed to complete sale", "error", err, "product_id", productID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleStockOp(w http.ResponseWriter, r *http.Request, op stockOp, refusal string) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req stockOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	done, err := op(r.Context(), tenantID, productID, req)
	if err != nil {
		if errors.Is(err, ErrInvalidQuantity) {
			h.writeError(w, http.StatusBadRequest, "quantity must be positive")
			return
		}
		h.logger.Error("stock operation failed", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !done {
		h.writeError(w, http.StatusConflict, refusal)
		return
	}

	rec, err := h.manager.Record(r.Context(), tenantID, productID)
	if err != nil {
		h.logger.Error("failed to reload inventory record", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req stockOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.manager.ProcessReturn(r.Context(), tenantID, productID, req.Quantity, req.ReferenceID, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidQuantity):
			h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		case errors.Is(err, ErrRecordNotFound):
			h.writeError(w, http.StatusNotFound, "inventory record not found")
		default:
			h.logger.Error("failed to process return", "error", err, "product_id", productID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleLowStock(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	items, err := h.manager.LowStock(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to list low stock", "error", err, "tenant_id", tenantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	filter, err := parseTransactionFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txns, err := h.manager.Transactions(r.Context(), tenantID, productID, filter)
	if err != nil {
		h.logger.Error("failed to list transactions", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, txns)
}

func parseTransactionFilter(q map[string][]string) (TransactionFilter, error) {
	var f TransactionFilter

	get := func(key string) string {
		if vs := q[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	switch t := get("type"); t {
	case "":
	case string(domain.TransactionInitial), string(domain.TransactionAdjustment),
		string(domain.TransactionSale), string(domain.TransactionReturn):
		f.Type = domain.TransactionType(t)
	default:
		return f, errors.New("invalid transaction type")
	}

	if raw := get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errors.New("invalid from timestamp")
		}
		f.From = ts
	}
	if raw := get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errors.New("invalid to timestamp")
		}
		f.To = ts
	}
	if raw := get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, errors.New("invalid limit")
		}
		f.Limit = n
	}

	return f, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
