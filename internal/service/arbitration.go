package service

import (
	"context"
	"fmt"
	"log"

	"github.com/quickflip/marketbot/internal/domain"
)

// bestRivalOffer returns the highest recorded buyer offer among other
// conversations on the listing still in active or pending. It is advisory
// context for the negotiation policy, not an accept/reject rule.
func (s *Service) bestRivalOffer(ctx context.Context, listingID, excludeConversationID string) *float64 {
	rivals, err := s.store.ListConversationsByListing(ctx, listingID)
	if err != nil {
		log.Printf("WARN: failed to list rival conversations for %s: %v", listingID, err)
		return nil
	}

	var best float64
	for _, rival := range rivals {
		if rival.ConversationID == excludeConversationID {
			continue
		}
		if rival.Status != domain.ConversationActive && rival.Status != domain.ConversationPending {
			continue
		}
		if rival.BuyerOffer > best {
			best = rival.BuyerOffer
		}
	}
	if best <= 0 {
		return nil
	}
	return &best
}

// closeRivals closes every other active conversation on the listing. Called
// in the same logical step as the winning conversation's move to pending, so
// at most one live deal exists per listing.
func (s *Service) closeRivals(ctx context.Context, listingID, winnerConversationID string) error {
	rivals, err := s.store.ListConversationsByListing(ctx, listingID)
	if err != nil {
		return fmt.Errorf("failed to list rival conversations: %w", err)
	}
	for _, rival := range rivals {
		if rival.ConversationID == winnerConversationID || rival.Status != domain.ConversationActive {
			continue
		}
		if _, err := s.store.UpdateConversationStatus(ctx, rival.ConversationID, domain.ConversationClosed); err != nil {
			return fmt.Errorf("failed to close rival conversation %s: %w", rival.ConversationID, err)
		}
		log.Printf("INFO: closed rival conversation %s on listing %s", rival.ConversationID, listingID)
	}
	return nil
}
