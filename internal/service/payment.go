package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/quickflip/marketbot/guard"
	"github.com/quickflip/marketbot/internal/adapter/browser"
	"github.com/quickflip/marketbot/internal/domain"
	"github.com/quickflip/marketbot/internal/store"
)

// sendCheckout creates the checkout for a confirmed conversation and sends
// the payment link to the buyer. Safe to hit twice: the transaction
// uniqueness invariant makes the second attempt a no-op.
func (s *Service) sendCheckout(ctx context.Context, session browser.Session, conv *domain.Conversation, listing *domain.Listing) error {
	txn, err := s.CreateCheckoutForConversation(ctx, conv.ConversationID)
	if errors.Is(err, store.ErrTransactionExists) {
		log.Printf("WARN: checkout already exists for %s, not resending", conv.ConversationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create checkout: %w", err)
	}

	text := fmt.Sprintf("here's the payment link: %s  once it goes through ill ship it right out", txn.CheckoutURL)
	s.sendReply(ctx, session, conv, listing, text)
	return nil
}

// CreateCheckoutForConversation creates the hosted checkout session and the
// transaction row for a conversation with an agreed price. Exactly once per
// conversation; a second call returns ErrTransactionExists.
func (s *Service) CreateCheckoutForConversation(ctx context.Context, conversationID string) (*domain.Transaction, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}
	if conv.AgreedPrice <= 0 {
		return nil, fmt.Errorf("conversation %s has no agreed price", conversationID)
	}

	if existing, err := s.store.GetTransactionByConversation(ctx, conversationID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, store.ErrTransactionExists
	}

	listingStatus := ""
	productName := "Marketplace purchase"
	if conv.ListingID != "" {
		listing, err := s.store.GetListing(ctx, conv.ListingID)
		if err != nil {
			return nil, err
		}
		if listing != nil {
			listingStatus = string(listing.Status)
			productName = listing.Title
		}
	}

	decision, reason, err := s.guard.Evaluate(ctx, guard.Input{
		Action:             "checkout.create",
		ConversationStatus: string(conv.Status),
		ListingStatus:      listingStatus,
	})
	if err != nil {
		return nil, fmt.Errorf("guard evaluation failed: %w", err)
	}
	if decision == guard.DecisionBlock {
		return nil, fmt.Errorf("checkout blocked by policy: %s", reason)
	}

	amountCents := int64(math.Round(conv.AgreedPrice * 100))
	checkout, err := s.payments.CreateCheckout(ctx, amountCents, productName, conversationID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	txn := &domain.Transaction{
		TransactionID:     "txn_" + uuid.New().String()[:8],
		ConversationID:    conversationID,
		ListingID:         conv.ListingID,
		BuyerID:           conv.BuyerID,
		AmountCents:       amountCents,
		CheckoutSessionID: checkout.SessionID,
		CheckoutURL:       checkout.URL,
		Status:            domain.TransactionPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateTransaction(ctx, txn); err != nil {
		if errors.Is(err, store.ErrTransactionExists) {
			existing, getErr := s.store.GetTransactionByConversation(ctx, conversationID)
			if getErr == nil && existing != nil {
				return existing, store.ErrTransactionExists
			}
		}
		return nil, err
	}
	log.Printf("INFO: created checkout %s for conversation %s ($%d cents)", checkout.SessionID, conversationID, amountCents)
	return txn, nil
}

// HandleCheckoutCompleted processes a checkout.session.completed callback.
// The callback is advisory: the payment state is verified with the processor
// and de-duplicated against the transaction's current status.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, checkoutSessionID string) error {
	txn, err := s.store.GetTransactionByCheckoutSession(ctx, checkoutSessionID)
	if err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("no transaction for checkout session %s", checkoutSessionID)
	}

	checkout, err := s.payments.GetCheckout(ctx, checkoutSessionID)
	if err != nil {
		return fmt.Errorf("failed to verify checkout %s: %w", checkoutSessionID, err)
	}
	if !checkout.Paid() {
		log.Printf("WARN: checkout callback for %s but processor reports %s", checkoutSessionID, checkout.PaymentStatus)
		return nil
	}
	return s.completeSale(ctx, txn, checkout.PaymentIntent)
}

// completeSale advances a transaction to payment_held and finishes the deal:
// conversation to sold, listing to sold, shutdown signal. The guarded update
// makes webhook and poller racing each other harmless.
func (s *Service) completeSale(ctx context.Context, txn *domain.Transaction, paymentRef string) error {
	updated, err := s.store.MarkPaymentHeld(ctx, txn.TransactionID, paymentRef)
	if err != nil {
		return fmt.Errorf("failed to mark payment held: %w", err)
	}
	if !updated {
		return nil
	}
	log.Printf("INFO: payment held for transaction %s", txn.TransactionID)

	if _, err := s.store.UpdateConversationStatus(ctx, txn.ConversationID, domain.ConversationSold); err != nil {
		return fmt.Errorf("failed to mark conversation sold: %w", err)
	}
	if txn.ListingID != "" {
		if err := s.store.UpdateListingStatus(ctx, txn.ListingID, domain.ListingSold); err != nil {
			return fmt.Errorf("failed to mark listing sold: %w", err)
		}
	}
	log.Printf("INFO: sale completed on conversation %s", txn.ConversationID)
	s.signalSaleCompleted()
	return nil
}

// AddTracking records a tracking number and marks the transaction shipped.
// Returns (nil, nil) when the transaction is missing or not in payment_held.
func (s *Service) AddTracking(ctx context.Context, transactionID, trackingNumber string) (*domain.Transaction, error) {
	if trackingNumber == "" {
		return nil, fmt.Errorf("tracking_number is required")
	}
	updated, err := s.store.MarkShipped(ctx, transactionID, trackingNumber)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, nil
	}
	log.Printf("INFO: transaction %s shipped with tracking %s", transactionID, trackingNumber)
	return s.store.GetTransaction(ctx, transactionID)
}

// ConfirmDelivery marks a shipped transaction delivered and triggers payout.
func (s *Service) ConfirmDelivery(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	updated, err := s.store.MarkDelivered(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, nil
	}
	log.Printf("INFO: transaction %s delivered", transactionID)

	if err := s.payoutSeller(ctx, transactionID); err != nil {
		log.Printf("ERROR: payout failed for %s: %v", transactionID, err)
	}
	return s.store.GetTransaction(ctx, transactionID)
}

// payoutSeller transfers held funds to the connected seller account. A guard
// hold logs and skips; the human releases it later through the dashboard.
func (s *Service) payoutSeller(ctx context.Context, transactionID string) error {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("transaction %s not found", transactionID)
	}

	decision, reason, err := s.guard.Evaluate(ctx, guard.Input{
		Action:      "payout.transfer",
		AmountCents: txn.AmountCents,
	})
	if err != nil {
		return fmt.Errorf("guard evaluation failed: %w", err)
	}
	if decision != guard.DecisionAllow {
		log.Printf("WARN: guard %s on payout.transfer for %s: %s", decision, transactionID, reason)
		return nil
	}

	transferRef := ""
	if s.config.ConnectedAccountID == "" {
		log.Printf("WARN: no connected account configured, recording payout without transfer")
	} else {
		transferRef, err = s.payments.Transfer(ctx, txn.AmountCents, s.config.ConnectedAccountID, "conv_"+txn.ConversationID)
		if err != nil {
			return err
		}
	}

	updated, err := s.store.MarkPaidOut(ctx, transactionID, transferRef)
	if err != nil {
		return err
	}
	if updated {
		log.Printf("INFO: payout completed for transaction %s", transactionID)
	}
	return nil
}

// Payout is the dashboard hatch for releasing a held payout manually.
func (s *Service) Payout(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	if err := s.payoutSeller(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.store.GetTransaction(ctx, transactionID)
}

// RefundTransaction refunds the buyer in full.
func (s *Service) RefundTransaction(ctx context.Context, transactionID string) error {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("transaction %s not found", transactionID)
	}
	if txn.PaymentRef == "" {
		return fmt.Errorf("transaction %s has no captured payment to refund", transactionID)
	}

	refundRef, err := s.payments.Refund(ctx, txn.PaymentRef)
	if err != nil {
		return err
	}
	updated, err := s.store.MarkRefunded(ctx, transactionID, refundRef)
	if err != nil {
		return err
	}
	if updated {
		log.Printf("INFO: refund completed for transaction %s", transactionID)
	}
	return nil
}
