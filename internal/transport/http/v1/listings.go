package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/quickflip/marketbot/internal/domain"
)

// ListingRequest is the create/update request body for a listing.
type ListingRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	MinPrice    float64 `json:"min_price"`
	Flexibility float64 `json:"flexibility"`
	SellerNotes string  `json:"seller_notes"`
	Condition   string  `json:"condition"`
	Status      string  `json:"status"`
}

// CreateListing creates a new listing.
// POST /v1/listings
func (h *Handler) CreateListing(c echo.Context) error {
	ctx := c.Request().Context()

	var req ListingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title is required"})
	}
	if req.Price <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "price must be positive"})
	}

	listing := &domain.Listing{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		MinPrice:    req.MinPrice,
		Flexibility: req.Flexibility,
		SellerNotes: req.SellerNotes,
		Condition:   req.Condition,
		Status:      domain.ListingStatus(req.Status),
	}
	if err := h.service.CreateListing(ctx, listing); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, listing)
}

// ListListings lists listings, optionally filtered by status.
// GET /v1/listings
func (h *Handler) ListListings(c echo.Context) error {
	ctx := c.Request().Context()

	listings, err := h.service.ListListings(ctx, domain.ListingStatus(c.QueryParam("status")))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"listings": listings,
	})
}

// GetListing gets a listing by ID.
// GET /v1/listings/:listing_id
func (h *Handler) GetListing(c echo.Context) error {
	ctx := c.Request().Context()

	listing, err := h.service.GetListing(ctx, c.Param("listing_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if listing == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "listing not found"})
	}
	return c.JSON(http.StatusOK, listing)
}

// UpdateListing applies edits to an existing listing.
// PATCH /v1/listings/:listing_id
func (h *Handler) UpdateListing(c echo.Context) error {
	ctx := c.Request().Context()

	var req ListingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	listing := &domain.Listing{
		ListingID:   c.Param("listing_id"),
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		MinPrice:    req.MinPrice,
		Flexibility: req.Flexibility,
		SellerNotes: req.SellerNotes,
		Condition:   req.Condition,
		Status:      domain.ListingStatus(req.Status),
	}
	updated, err := h.service.UpdateListing(ctx, listing)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if updated == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "listing not found"})
	}
	return c.JSON(http.StatusOK, updated)
}
