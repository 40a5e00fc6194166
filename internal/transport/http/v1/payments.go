package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/quickflip/marketbot/internal/store"
)

// CreateCheckout creates a checkout session for a conversation manually.
// POST /v1/payments/checkout/:conversation_id
func (h *Handler) CreateCheckout(c echo.Context) error {
	ctx := c.Request().Context()

	txn, err := h.service.CreateCheckoutForConversation(ctx, c.Param("conversation_id"))
	if errors.Is(err, store.ErrTransactionExists) {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":       "transaction already exists",
			"transaction": txn,
		})
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"transaction_id": txn.TransactionID,
		"checkout_url":   txn.CheckoutURL,
	})
}

// WebhookEvent is the processor callback envelope.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// PaymentWebhook handles processor callbacks. The callback is advisory; the
// service re-verifies with the processor before advancing anything.
// POST /v1/payments/webhook
func (h *Handler) PaymentWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	var event WebhookEvent
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if event.Type == "checkout.session.completed" && event.Data.Object.ID != "" {
		if err := h.service.HandleCheckoutCompleted(ctx, event.Data.Object.ID); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
