package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/commercecore/fulfillment/internal/domain"
)

// Handler turns order.status_changed events into webhook deliveries. A
// returned error keeps the message uncommitted so the consumer retries it.
type Handler struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHandler(webhookURL string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		webhookURL: webhookURL,
		httpClient: client,
		logger:     logger,
	}
}

type notification struct {
	OrderID        string             `json:"order_id"`
	TenantID       string             `json:"tenant_id"`
	Email          string             `json:"email"`
	PreviousStatus domain.OrderStatus `json:"previous_status"`
	Status         domain.OrderStatus `json:"status"`
	Subject        string             `json:"subject"`
	Message        string             `json:"message"`
}

func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order status event: %w", err)
	}

	h.logger.Info("processing status change",
		"order_id", event.OrderID,
		"tenant_id", event.TenantID,
		"from", event.PreviousStatus,
		"to", event.Status,
	)

	if h.webhookURL == "" {
		h.logger.Warn("no webhook configured, dropping notification", "order_id", event.OrderID)
		return nil
	}

	subject, message := render(event)
	body := notification{
		OrderID:        event.OrderID,
		TenantID:       event.TenantID,
		Email:          event.Email,
		PreviousStatus: event.PreviousStatus,
		Status:         event.Status,
		Subject:        subject,
		Message:        message,
	}

	if err := h.deliver(ctx, body); err != nil {
		h.logger.Error("webhook delivery failed", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("deliver notification: %w", err)
	}

	h.logger.Info("notification delivered", "order_id", event.OrderID, "status", event.Status)
	return nil
}

func (h *Handler) deliver(ctx context.Context, body notification) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func render(event domain.OrderStatusChangedEvent) (subject, message string) {
	switch event.Status {
	case domain.OrderStatusPaid:
		return "Order confirmed: " + event.OrderID,
			fmt.Sprintf("Payment for order %s has been received.", event.OrderID)
	case domain.OrderStatusProcessing:
		return "Order in fulfillment: " + event.OrderID,
			fmt.Sprintf("Order %s is being prepared for shipment.", event.OrderID)
	case domain.OrderStatusShipped:
		return "Order shipped: " + event.OrderID,
			fmt.Sprintf("Order %s is on its way.", event.OrderID)
	case domain.OrderStatusDelivered:
		return "Order delivered: " + event.OrderID,
			fmt.Sprintf("Order %s has been delivered.", event.OrderID)
	case domain.OrderStatusCancelled:
		return "Order cancelled: " + event.OrderID,
			fmt.Sprintf("Order %s has been cancelled.", event.OrderID)
	case domain.OrderStatusReturned:
		return "Return received: " + event.OrderID,
			fmt.Sprintf("The return for order %s has been received.", event.OrderID)
	default:
		return "Order update: " + event.OrderID,
			fmt.Sprintf("Order %s moved from %s to %s.", event.OrderID, event.PreviousStatus, event.Status)
	}
}
