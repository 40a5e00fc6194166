package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListTransactions lists all transactions, newest first.
// GET /v1/transactions
func (h *Handler) ListTransactions(c echo.Context) error {
	ctx := c.Request().Context()

	transactions, err := h.service.ListTransactions(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"transactions": transactions,
	})
}

// GetTransaction gets a transaction by ID.
// GET /v1/transactions/:transaction_id
func (h *Handler) GetTransaction(c echo.Context) error {
	ctx := c.Request().Context()

	txn, err := h.service.GetTransaction(ctx, c.Param("transaction_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if txn == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "transaction not found"})
	}
	return c.JSON(http.StatusOK, txn)
}

// TrackingRequest uploads a shipment tracking number.
type TrackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

// AddTracking records tracking and marks the transaction shipped.
// POST /v1/transactions/:transaction_id/tracking
func (h *Handler) AddTracking(c echo.Context) error {
	ctx := c.Request().Context()

	var req TrackingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.TrackingNumber == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "tracking_number is required"})
	}

	txn, err := h.service.AddTracking(ctx, c.Param("transaction_id"), req.TrackingNumber)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if txn == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "could not add tracking number"})
	}
	return c.JSON(http.StatusOK, txn)
}

// ConfirmDelivery manually confirms delivery, triggering payout.
// POST /v1/transactions/:transaction_id/deliver
func (h *Handler) ConfirmDelivery(c echo.Context) error {
	ctx := c.Request().Context()

	txn, err := h.service.ConfirmDelivery(ctx, c.Param("transaction_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if txn == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "transaction is not shipped"})
	}
	return c.JSON(http.StatusOK, txn)
}

// Payout releases a held payout manually.
// POST /v1/transactions/:transaction_id/payout
func (h *Handler) Payout(c echo.Context) error {
	ctx := c.Request().Context()

	txn, err := h.service.Payout(ctx, c.Param("transaction_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if txn == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "transaction not found"})
	}
	return c.JSON(http.StatusOK, txn)
}

// Refund refunds the buyer in full.
// POST /v1/transactions/:transaction_id/refund
func (h *Handler) Refund(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.service.RefundTransaction(ctx, c.Param("transaction_id")); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	txn, err := h.service.GetTransaction(ctx, c.Param("transaction_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, txn)
}
