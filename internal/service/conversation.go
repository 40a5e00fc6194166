package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/quickflip/marketbot/guard"
	"github.com/quickflip/marketbot/internal/adapter/browser"
	"github.com/quickflip/marketbot/internal/diff"
	"github.com/quickflip/marketbot/internal/domain"
	"github.com/quickflip/marketbot/internal/match"
	"github.com/quickflip/marketbot/internal/negotiator"
)

const soldNoticeText = "hey sorry, this one's already been sold! thanks for your interest though"

const securedNoticeText = "hey sorry, someone else already secured this one! ill hit you up if it falls through"

// handleConversation opens one previewed thread, reconciles the observed
// transcript against the store, and drives a single negotiation turn.
// Returns whether a reply was sent.
func (s *Service) handleConversation(ctx context.Context, session browser.Session, preview domain.ConversationPreview) (bool, error) {
	if err := session.Act(ctx, fmt.Sprintf("Open the conversation with %s in the inbox list", preview.BuyerName)); err != nil {
		return false, err
	}

	snap, err := session.ObserveConversation(ctx)
	if err != nil {
		return false, err
	}
	if len(snap.Messages) == 0 {
		return false, nil
	}

	buyerName := snap.BuyerName
	if buyerName == "" {
		buyerName = preview.BuyerName
	}
	buyer, err := s.store.GetOrCreateBuyer(ctx, match.NormalizeName(buyerName), buyerName, "")
	if err != nil {
		return false, fmt.Errorf("failed to get/create buyer: %w", err)
	}

	titleHint := snap.ListingTitle
	if titleHint == "" {
		titleHint = preview.ListingHint
	}
	listings, err := s.store.ListListings(ctx, "")
	if err != nil {
		return false, fmt.Errorf("failed to list listings: %w", err)
	}
	listing := match.BestListing(titleHint, listings)
	listingID := ""
	if listing != nil {
		listingID = listing.ListingID
	}

	conv, err := s.store.GetOrCreateConversation(ctx, buyer.BuyerID, listingID)
	if err != nil {
		return false, fmt.Errorf("failed to get/create conversation: %w", err)
	}

	hashes, err := s.store.GetMessageHashes(ctx, conv.ConversationID)
	if err != nil {
		return false, fmt.Errorf("failed to load message hashes: %w", err)
	}
	fresh := diff.New(snap.Messages, buyerName, hashes)
	if len(fresh) == 0 {
		return false, nil
	}
	log.Printf("INFO: %d new message(s) from %s (conversation %s)", len(fresh), buyerName, conv.ConversationID)

	// Read history before appending, so the policy sees the new texts only in
	// the NEW MESSAGES section.
	history, err := s.store.GetMessages(ctx, conv.ConversationID, 200, 0)
	if err != nil {
		return false, fmt.Errorf("failed to load history: %w", err)
	}

	// Persist observed buyer messages before any reply generation. A crash
	// after this point never fabricates a transition without its trigger.
	newTexts := make([]string, 0, len(fresh))
	for _, m := range fresh {
		if err := s.saveMessage(ctx, conv.ConversationID, domain.RoleBuyer, m.Text, true); err != nil {
			return false, fmt.Errorf("failed to save buyer message: %w", err)
		}
		newTexts = append(newTexts, m.Text)
	}

	// Sale already completed on this thread: record only, never reply.
	if conv.Status == domain.ConversationSold {
		return false, nil
	}

	// Listing gone while the buyer was typing.
	if listing != nil && listing.Status == domain.ListingSold {
		sent := s.sendReply(ctx, session, conv, listing, soldNoticeText)
		if _, err := s.store.UpdateConversationStatus(ctx, conv.ConversationID, domain.ConversationClosed); err != nil {
			return sent, fmt.Errorf("failed to close conversation: %w", err)
		}
		return sent, nil
	}

	if conv.Status == domain.ConversationClosed {
		reopened, err := s.tryReopen(ctx, conv)
		if err != nil {
			return false, err
		}
		if !reopened {
			return s.sendReply(ctx, session, conv, listing, securedNoticeText), nil
		}
		conv.Status = domain.ConversationActive
	}

	decision, err := s.decide(ctx, listing, conv, history, newTexts)
	if err != nil {
		return false, err
	}

	sent := s.sendReply(ctx, session, conv, listing, decision.Reply)

	if err := s.applyDecision(ctx, session, conv, listing, decision); err != nil {
		return sent, err
	}
	return sent, nil
}

func (s *Service) decide(ctx context.Context, listing *domain.Listing, conv *domain.Conversation, history []domain.Message, newTexts []string) (*domain.Decision, error) {
	in := negotiatorInput(listing, conv)
	if listing != nil {
		in.CompetingOffer = s.bestRivalOffer(ctx, listing.ListingID, conv.ConversationID)
	}
	decision, err := s.policy.Decide(ctx, in, history, newTexts)
	if err != nil {
		return nil, fmt.Errorf("negotiation policy failed: %w", err)
	}
	log.Printf("INFO: policy decision for %s: deal_status=%s reply=%.80q", conv.ConversationID, decision.DealStatus, decision.Reply)
	return decision, nil
}

// sendReply checks the guard, performs the send, and persists the seller
// message with its observed delivery outcome. A blocked send stores nothing.
func (s *Service) sendReply(ctx context.Context, session browser.Session, conv *domain.Conversation, listing *domain.Listing, text string) bool {
	if text == "" {
		return false
	}

	in := guard.Input{
		Action:             "reply.send",
		ConversationStatus: string(conv.Status),
	}
	if listing != nil {
		in.ListingStatus = string(listing.Status)
	}
	decision, reason, err := s.guard.Evaluate(ctx, in)
	if err != nil {
		log.Printf("ERROR: guard evaluation failed, not sending: %v", err)
		return false
	}
	if decision != guard.DecisionAllow {
		log.Printf("WARN: guard %s on reply.send for %s: %s", decision, conv.ConversationID, reason)
		return false
	}

	sendErr := session.Act(ctx, fmt.Sprintf("Type the following message into the open chat and send it: %s", text))
	if sendErr != nil {
		log.Printf("ERROR: failed to send reply in %s: %v", conv.ConversationID, sendErr)
	}

	// The seller message is stored on any confirmed send attempt, delivered
	// or not, so the diff engine recognizes it next cycle.
	if err := s.saveMessage(ctx, conv.ConversationID, domain.RoleSeller, text, sendErr == nil); err != nil {
		log.Printf("ERROR: failed to save seller message: %v", err)
	}
	return sendErr == nil
}

// applyDecision runs the conversation state machine on the policy's deal
// status signal.
func (s *Service) applyDecision(ctx context.Context, session browser.Session, conv *domain.Conversation, listing *domain.Listing, decision *domain.Decision) error {
	if decision.BuyerOffer != nil && *decision.BuyerOffer > 0 {
		if err := s.store.SaveDealDetails(ctx, conv.ConversationID, nil, decision.BuyerOffer, nil); err != nil {
			return fmt.Errorf("failed to save buyer offer: %w", err)
		}
	}

	switch decision.DealStatus {
	case domain.DealStatusNone:
		return nil

	case domain.DealStatusAgreed:
		if conv.Status != domain.ConversationActive && conv.Status != domain.ConversationNeedsReview {
			return nil
		}
		agreed := 0.0
		if decision.AgreedPrice != nil {
			agreed = *decision.AgreedPrice
		}
		if agreed <= 0 && listing != nil {
			agreed = listing.Price
		}
		log.Printf("INFO: deal agreed on %s at $%.2f, awaiting address", conv.ConversationID, agreed)
		if err := s.store.SaveDealDetails(ctx, conv.ConversationID, &agreed, nil, nil); err != nil {
			return fmt.Errorf("failed to save agreed price: %w", err)
		}
		if _, err := s.store.UpdateConversationStatus(ctx, conv.ConversationID, domain.ConversationPending); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		conv.Status = domain.ConversationPending
		conv.AgreedPrice = agreed
		if listing != nil {
			if err := s.closeRivals(ctx, listing.ListingID, conv.ConversationID); err != nil {
				return err
			}
		}
		return nil

	case domain.DealStatusAddressReceived:
		// An empty extraction never advances state; the policy re-asks.
		if decision.DeliveryAddress == "" {
			log.Printf("WARN: address_received with empty address on %s, not advancing", conv.ConversationID)
			return nil
		}
		if conv.Status != domain.ConversationPending && conv.Status != domain.ConversationAwaitingConfirm {
			return nil
		}
		log.Printf("INFO: address received on %s: %s", conv.ConversationID, decision.DeliveryAddress)
		if err := s.store.SaveDealDetails(ctx, conv.ConversationID, nil, nil, &decision.DeliveryAddress); err != nil {
			return fmt.Errorf("failed to save delivery address: %w", err)
		}
		if _, err := s.store.UpdateConversationStatus(ctx, conv.ConversationID, domain.ConversationAwaitingConfirm); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		conv.Status = domain.ConversationAwaitingConfirm
		return nil

	case domain.DealStatusAddressConfirmed:
		if conv.Status != domain.ConversationAwaitingConfirm {
			return nil
		}
		if _, err := s.store.UpdateConversationStatus(ctx, conv.ConversationID, domain.ConversationConfirmed); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		conv.Status = domain.ConversationConfirmed
		log.Printf("INFO: address confirmed on %s, creating checkout", conv.ConversationID)
		return s.sendCheckout(ctx, session, conv, listing)

	case domain.DealStatusDeclined:
		if conv.Status.Terminal() {
			return nil
		}
		log.Printf("INFO: deal declined on %s", conv.ConversationID)
		if _, err := s.store.UpdateConversationStatus(ctx, conv.ConversationID, domain.ConversationClosed); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		conv.Status = domain.ConversationClosed
		return nil

	case domain.DealStatusNeedsReview:
		if conv.Status.Terminal() {
			return nil
		}
		log.Printf("INFO: conversation %s held for review", conv.ConversationID)
		if _, err := s.store.UpdateConversationStatus(ctx, conv.ConversationID, domain.ConversationNeedsReview); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		conv.Status = domain.ConversationNeedsReview
		return nil
	}
	return nil
}

// tryReopen reactivates a closed conversation on new buyer activity, unless a
// rival already holds a live deal on the same listing.
func (s *Service) tryReopen(ctx context.Context, conv *domain.Conversation) (bool, error) {
	if conv.ListingID != "" {
		rivals, err := s.store.ListConversationsByListing(ctx, conv.ListingID)
		if err != nil {
			return false, fmt.Errorf("failed to list rival conversations: %w", err)
		}
		for _, rival := range rivals {
			if rival.ConversationID != conv.ConversationID && rival.Status.Live() {
				return false, nil
			}
		}
	}
	if _, err := s.store.UpdateConversationStatus(ctx, conv.ConversationID, domain.ConversationActive); err != nil {
		return false, fmt.Errorf("failed to reopen conversation: %w", err)
	}
	log.Printf("INFO: reopened conversation %s on new buyer activity", conv.ConversationID)
	return true, nil
}

// ResolveReview is the human escalation hatch: the dashboard moves a
// needs_review conversation back to a chosen status.
func (s *Service) ResolveReview(ctx context.Context, conversationID string, status domain.ConversationStatus) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}
	switch status {
	case domain.ConversationActive, domain.ConversationClosed:
	default:
		return nil, fmt.Errorf("cannot resolve review to status %q", status)
	}
	if _, err := s.store.UpdateConversationStatus(ctx, conversationID, status); err != nil {
		return nil, err
	}
	conv.Status = status
	return conv, nil
}

func (s *Service) saveMessage(ctx context.Context, conversationID string, role domain.MessageRole, content string, delivered bool) error {
	return s.store.CreateMessage(ctx, &domain.Message{
		MessageID:      "msg_" + uuid.New().String()[:8],
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ContentHash:    diff.Hash(content),
		Delivered:      delivered,
		SentAt:         time.Now(),
	})
}

func negotiatorInput(listing *domain.Listing, conv *domain.Conversation) negotiator.PromptInput {
	in := negotiator.PromptInput{
		Listing:         listing,
		Status:          conv.Status,
		DeliveryAddress: conv.DeliveryAddress,
	}
	if conv.AgreedPrice > 0 {
		agreed := conv.AgreedPrice
		in.AgreedPrice = &agreed
	}
	return in
}
