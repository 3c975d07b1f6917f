package shipments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/commercecore/fulfillment/internal/domain"
	"github.com/commercecore/fulfillment/internal/orders"
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

type createShipmentRequest struct {
	OrderID        string `json:"order_id"`
	ShippingMethod string `json:"shipping_method"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	var req createShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	shipment, err := h.manager.Create(r.Context(), tenantID, CreateInput{
		OrderID:        req.OrderID,
		ShippingMethod: req.ShippingMethod,
		TrackingNumber: req.TrackingNumber,
		TrackingURL:    req.TrackingURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderRequired):
			h.writeError(w, http.StatusBadRequest, "order_id is required")
		case errors.Is(err, orders.ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, orders.ErrStatusConflict):
			h.writeError(w, http.StatusConflict, "order status changed concurrently, re-read and retry")
		default:
			h.logger.Error("failed to create shipment", "error", err, "order_id", req.OrderID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, shipment)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing shipment id")
		return
	}

	shipment, err := h.manager.Get(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, ErrShipmentNotFound) {
			h.writeError(w, http.StatusNotFound, "shipment not found")
			return
		}
		h.logger.Error("failed to get shipment", "error", err, "shipment_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, shipment)
}

func (h *Handler) HandleListByOrder(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	orderID := r.PathValue("id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	shipments, err := h.manager.ListByOrder(r.Context(), tenantID, orderID)
	if err != nil {
		h.logger.Error("failed to list shipments", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, shipments)
}

type updateStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"tracking_number"`
	TrackingURL    *string `json:"tracking_url"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing shipment id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := domain.ParseShipmentStatus(req.Status)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	shipment, err := h.manager.UpdateStatus(r.Context(), tenantID, id, UpdateInput{
		Status:         status,
		TrackingNumber: req.TrackingNumber,
		TrackingURL:    req.TrackingURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrShipmentNotFound):
			h.writeError(w, http.StatusNotFound, "shipment not found")
		case errors.Is(err, orders.ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, orders.ErrStatusConflict):
			h.writeError(w, http.StatusConflict, "order status changed concurrently, re-read and retry")
		default:
			h.logger.Error("failed to update shipment status", "error", err, "shipment_id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, shipment)
}

type addItemRequest struct {
	OrderItemID string `json:"order_item_id"`
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing tenant")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing shipment id")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	shipment, err := h.manager.AddItem(r.Context(), tenantID, id, ItemInput{
		OrderItemID: req.OrderItemID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidItem):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrShipmentNotFound):
			h.writeError(w, http.StatusNotFound, "shipment not found")
		default:
			h.logger.Error("failed to add shipment item", "error", err, "shipment_id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, shipment)
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
