package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// StartMonitor starts the inbox polling loop.
// POST /v1/monitor/start
func (h *Handler) StartMonitor(c echo.Context) error {
	// The loop outlives the request; it is cancelled via /v1/monitor/stop or
	// process shutdown, not by this request's context.
	if err := h.service.StartMonitor(context.Background()); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "started"})
}

// StopMonitor stops the inbox polling loop.
// POST /v1/monitor/stop
func (h *Handler) StopMonitor(c echo.Context) error {
	h.service.StopMonitor()
	return c.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

// MonitorStatus reports the polling loop's state.
// GET /v1/monitor/status
func (h *Handler) MonitorStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.MonitorStatus())
}

// GetStats reports aggregate conversation counts.
// GET /v1/stats
func (h *Handler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.service.GetStats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}
