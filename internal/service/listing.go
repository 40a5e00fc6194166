package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quickflip/marketbot/internal/domain"
)

// CreateListing validates and stores a new listing owned by the dashboard.
func (s *Service) CreateListing(ctx context.Context, listing *domain.Listing) error {
	if listing.Title == "" {
		return fmt.Errorf("title is required")
	}
	if listing.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if listing.MinPrice <= 0 || listing.MinPrice > listing.Price {
		listing.MinPrice = listing.Price
	}
	if listing.Flexibility < 0 {
		listing.Flexibility = 0
	}
	if listing.Flexibility > 1 {
		listing.Flexibility = 1
	}
	if listing.Status == "" {
		listing.Status = domain.ListingActive
	}

	listing.ListingID = "lst_" + uuid.New().String()[:8]
	now := time.Now()
	listing.CreatedAt = now
	listing.UpdatedAt = now
	return s.store.CreateListing(ctx, listing)
}

// UpdateListing applies dashboard edits to an existing listing.
func (s *Service) UpdateListing(ctx context.Context, listing *domain.Listing) (*domain.Listing, error) {
	existing, err := s.store.GetListing(ctx, listing.ListingID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if listing.Title == "" {
		listing.Title = existing.Title
	}
	if listing.Price <= 0 {
		listing.Price = existing.Price
	}
	if listing.MinPrice <= 0 || listing.MinPrice > listing.Price {
		listing.MinPrice = listing.Price
	}
	if listing.Status == "" {
		listing.Status = existing.Status
	}
	if err := s.store.UpdateListing(ctx, listing); err != nil {
		return nil, err
	}
	return s.store.GetListing(ctx, listing.ListingID)
}
