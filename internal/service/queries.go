package service

import (
	"context"

	"github.com/quickflip/marketbot/internal/domain"
)

// Read-side passthroughs backing the dashboard surface.

func (s *Service) GetListing(ctx context.Context, listingID string) (*domain.Listing, error) {
	return s.store.GetListing(ctx, listingID)
}

func (s *Service) ListListings(ctx context.Context, status domain.ListingStatus) ([]domain.Listing, error) {
	return s.store.ListListings(ctx, status)
}

func (s *Service) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return s.store.GetConversation(ctx, conversationID)
}

func (s *Service) ListConversations(ctx context.Context, status domain.ConversationStatus, limit, offset int) ([]domain.Conversation, error) {
	return s.store.ListConversations(ctx, status, limit, offset)
}

func (s *Service) GetConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error) {
	return s.store.GetMessages(ctx, conversationID, limit, offset)
}

func (s *Service) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.store.GetTransaction(ctx, transactionID)
}

func (s *Service) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.store.ListTransactions(ctx)
}

func (s *Service) GetStats(ctx context.Context) (*domain.Stats, error) {
	return s.store.GetStats(ctx)
}
