// Package v1 provides the dashboard HTTP handlers.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/quickflip/marketbot/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Listings (owned by the dashboard)
	e.POST("/v1/listings", h.CreateListing)
	e.GET("/v1/listings", h.ListListings)
	e.GET("/v1/listings/:listing_id", h.GetListing)
	e.PATCH("/v1/listings/:listing_id", h.UpdateListing)

	// Conversations (read-only plus the human review hatch)
	e.GET("/v1/conversations", h.ListConversations)
	e.GET("/v1/conversations/:conversation_id", h.GetConversation)
	e.PATCH("/v1/conversations/:conversation_id", h.ResolveConversation)

	// Transactions
	e.GET("/v1/transactions", h.ListTransactions)
	e.GET("/v1/transactions/:transaction_id", h.GetTransaction)
	e.POST("/v1/transactions/:transaction_id/tracking", h.AddTracking)
	e.POST("/v1/transactions/:transaction_id/deliver", h.ConfirmDelivery)
	e.POST("/v1/transactions/:transaction_id/payout", h.Payout)
	e.POST("/v1/transactions/:transaction_id/refund", h.Refund)

	// Payments
	e.POST("/v1/payments/checkout/:conversation_id", h.CreateCheckout)
	e.POST("/v1/payments/webhook", h.PaymentWebhook)

	// Monitor control
	e.POST("/v1/monitor/start", h.StartMonitor)
	e.POST("/v1/monitor/stop", h.StopMonitor)
	e.GET("/v1/monitor/status", h.MonitorStatus)

	e.GET("/v1/stats", h.GetStats)
	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
