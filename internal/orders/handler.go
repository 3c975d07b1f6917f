package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

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

type createOrderRequest struct {
	Email           string         `json:"email"`
	UserID          *string        `json:"user_id"`
	ShippingAddress domain.Address `json:"shipping_address"`
	BillingAddress  domain.Address `json:"billing_address"`
	PaymentMethod   string         `json:"payment_method"`
	ShippingMethod  string         `json:"shipping_method"`
	Notes           string         `json:"notes"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.manager.Create(r.Context(), tenantID, CreateInput{
		Email:           req.Email,
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		ShippingMethod:  req.ShippingMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		if errors.Is(err, ErrEmailRequired) {
			h.writeError(w, http.StatusBadRequest, "email is required")
			return
		}
		h.logger.Error("failed to create order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.manager.Get(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	orders, err := h.manager.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "tenant_id", tenantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

type updateOrderRequest struct {
	Email           *string         `json:"email"`
	ShippingAddress *domain.Address `json:"shipping_address"`
	BillingAddress  *domain.Address `json:"billing_address"`
	PaymentMethod   *string         `json:"payment_method"`
	ShippingMethod  *string         `json:"shipping_method"`
	Notes           *string         `json:"notes"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.manager.Update(r.Context(), tenantID, id, UpdateInput{
		Email:           req.Email,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		ShippingMethod:  req.ShippingMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, ErrEmailRequired):
			h.writeError(w, http.StatusBadRequest, "email must not be empty")
		default:
			h.logger.Error("failed to update order", "error", err, "order_id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type addItemRequest struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.manager.AddItem(r.Context(), tenantID, id, ItemInput{
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		SKU:         req.SKU,
		Quantity:    req.Quantity,
		Price:       req.Price,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidItem):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		default:
			h.logger.Error("failed to add order item", "error", err, "order_id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type applyEventRequest struct {
	Event string `json:"event"`
}

func (h *Handler) HandleApplyEvent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req applyEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := domain.ParseOrderEvent(req.Event)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.manager.ApplyEvent(r.Context(), tenantID, id, event)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ErrStatusConflict):
			h.writeError(w, http.StatusConflict, "order status changed concurrently, re-read and retry")
		default:
			h.logger.Error("failed to apply order event", "error", err, "order_id", id, "event", event)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, order)
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
