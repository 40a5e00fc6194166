package service

import (
	"context"
	"log"
	"time"

	"github.com/quickflip/marketbot/internal/domain"
)

// RunPaymentWorker reconciles transactions on a fixed interval until the
// context is cancelled. It runs independently of the inbox monitor because
// deadlines must fire even when no buyer is messaging.
func (s *Service) RunPaymentWorker(ctx context.Context) {
	ticker := time.NewTicker(s.config.ProcessorPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepPendingCheckouts(ctx)
			s.sweepDeliveries(ctx)
			s.sweepRefunds(ctx)
		}
	}
}

// sweepPendingCheckouts polls the processor directly for unpaid checkouts,
// covering webhook deliveries that never arrived.
func (s *Service) sweepPendingCheckouts(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pending, err := s.store.ListTransactionsByStatus(sweepCtx, domain.TransactionPending)
	if err != nil {
		log.Printf("WARN: checkout sweep failed: %v", err)
		return
	}

	for i := range pending {
		txn := &pending[i]
		if txn.CheckoutSessionID == "" {
			continue
		}
		checkout, err := s.payments.GetCheckout(sweepCtx, txn.CheckoutSessionID)
		if err != nil {
			log.Printf("WARN: failed to poll checkout %s: %v", txn.CheckoutSessionID, err)
			continue
		}
		if !checkout.Paid() {
			continue
		}
		if err := s.completeSale(sweepCtx, txn, checkout.PaymentIntent); err != nil {
			log.Printf("ERROR: failed to complete sale for %s: %v", txn.TransactionID, err)
		}
	}
}

// sweepDeliveries auto-confirms delivery for shipments past the
// no-dispute window, which triggers payout.
func (s *Service) sweepDeliveries(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.config.DeliveryAutoConfirm)
	shipped, err := s.store.ListShippedBefore(sweepCtx, cutoff)
	if err != nil {
		log.Printf("WARN: delivery sweep failed: %v", err)
		return
	}

	for _, txn := range shipped {
		log.Printf("INFO: auto-confirming delivery for transaction %s", txn.TransactionID)
		if _, err := s.ConfirmDelivery(sweepCtx, txn.TransactionID); err != nil {
			log.Printf("ERROR: auto-confirm failed for %s: %v", txn.TransactionID, err)
		}
	}
}

// sweepRefunds auto-refunds held payments with no tracking uploaded before
// the refund deadline.
func (s *Service) sweepRefunds(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.config.RefundDeadline)
	held, err := s.store.ListPaymentHeldBefore(sweepCtx, cutoff)
	if err != nil {
		log.Printf("WARN: refund sweep failed: %v", err)
		return
	}

	for _, txn := range held {
		if txn.TrackingNumber != "" {
			continue
		}
		log.Printf("INFO: auto-refunding transaction %s, no tracking before deadline", txn.TransactionID)
		if err := s.RefundTransaction(sweepCtx, txn.TransactionID); err != nil {
			log.Printf("ERROR: auto-refund failed for %s: %v", txn.TransactionID, err)
		}
	}
}
