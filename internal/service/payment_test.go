package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quickflip/marketbot/internal/domain"
	"github.com/quickflip/marketbot/internal/store"
)

// seedDeal puts a conversation in confirmed with an agreed price, ready for
// checkout.
func seedDeal(t *testing.T, env *testEnv, agreed float64) *domain.Conversation {
	t.Helper()
	ctx := context.Background()
	env.seedListing(t, 120, 80)
	conv := env.seedConversation(t, "john smith", "John Smith", "lst_test", domain.ConversationConfirmed)
	if err := env.store.SaveDealDetails(ctx, conv.ConversationID, &agreed, nil, nil); err != nil {
		t.Fatalf("SaveDealDetails failed: %v", err)
	}
	return conv
}

func TestCreateCheckoutExactlyOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := seedDeal(t, env, 100)

	txn, err := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("CreateCheckoutForConversation failed: %v", err)
	}
	if txn.AmountCents != 10000 {
		t.Fatalf("expected 10000 cents, got %d", txn.AmountCents)
	}
	if txn.CheckoutURL == "" || txn.CheckoutSessionID == "" {
		t.Fatalf("expected checkout details, got %+v", txn)
	}

	again, err := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	if !errors.Is(err, store.ErrTransactionExists) {
		t.Fatalf("expected ErrTransactionExists, got %v", err)
	}
	if again == nil || again.TransactionID != txn.TransactionID {
		t.Fatalf("expected the existing transaction back, got %+v", again)
	}
}

func TestCreateCheckoutRequiresAgreedPrice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedListing(t, 120, 80)
	conv := env.seedConversation(t, "john smith", "John Smith", "lst_test", domain.ConversationConfirmed)

	if _, err := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID); err == nil {
		t.Fatal("expected error without an agreed price")
	}
}

func TestCreateCheckoutBlockedOnSoldListing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := seedDeal(t, env, 100)
	if err := env.store.UpdateListingStatus(ctx, "lst_test", domain.ListingSold); err != nil {
		t.Fatalf("UpdateListingStatus failed: %v", err)
	}

	if _, err := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID); err == nil {
		t.Fatal("expected guard to block checkout on a sold listing")
	}
	txn, _ := env.store.GetTransactionByConversation(ctx, conv.ConversationID)
	if txn != nil {
		t.Fatalf("no transaction must be created, got %+v", txn)
	}
}

func TestHandleCheckoutCompletedCompletesSale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := seedDeal(t, env, 100)

	txn, err := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("CreateCheckoutForConversation failed: %v", err)
	}

	env.pay.CompleteCheckout(txn.CheckoutSessionID)
	if err := env.svc.HandleCheckoutCompleted(ctx, txn.CheckoutSessionID); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}

	gotTxn, _ := env.store.GetTransaction(ctx, txn.TransactionID)
	if gotTxn.Status != domain.TransactionPaymentHeld {
		t.Fatalf("expected payment_held, got %s", gotTxn.Status)
	}
	if gotTxn.PaymentRef == "" {
		t.Fatal("expected payment reference recorded")
	}

	gotConv, _ := env.store.GetConversation(ctx, conv.ConversationID)
	if gotConv.Status != domain.ConversationSold {
		t.Fatalf("expected conversation sold, got %s", gotConv.Status)
	}
	listing, _ := env.store.GetListing(ctx, "lst_test")
	if listing.Status != domain.ListingSold {
		t.Fatalf("expected listing sold, got %s", listing.Status)
	}

	select {
	case <-env.svc.SaleCompleted():
	default:
		t.Fatal("expected SaleCompleted to be signalled")
	}

	// A duplicate callback is harmless.
	if err := env.svc.HandleCheckoutCompleted(ctx, txn.CheckoutSessionID); err != nil {
		t.Fatalf("duplicate callback failed: %v", err)
	}
}

func TestHandleCheckoutCompletedUnpaidIsIgnored(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := seedDeal(t, env, 100)

	txn, err := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("CreateCheckoutForConversation failed: %v", err)
	}

	// Callback arrives but the processor still reports unpaid.
	if err := env.svc.HandleCheckoutCompleted(ctx, txn.CheckoutSessionID); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}
	gotTxn, _ := env.store.GetTransaction(ctx, txn.TransactionID)
	if gotTxn.Status != domain.TransactionPending {
		t.Fatalf("unverified payment must not advance, got %s", gotTxn.Status)
	}
}

func TestSweepPendingCheckoutsCatchesMissedWebhook(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := seedDeal(t, env, 100)

	txn, err := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("CreateCheckoutForConversation failed: %v", err)
	}
	env.pay.CompleteCheckout(txn.CheckoutSessionID)

	// No webhook arrives; the worker's direct poll picks it up.
	env.svc.sweepPendingCheckouts(ctx)

	gotTxn, _ := env.store.GetTransaction(ctx, txn.TransactionID)
	if gotTxn.Status != domain.TransactionPaymentHeld {
		t.Fatalf("expected payment_held after sweep, got %s", gotTxn.Status)
	}
}

func TestShipDeliverPayout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.cfg.ConnectedAccountID = "acct_test"
	conv := seedDeal(t, env, 100)

	txn, _ := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	env.pay.CompleteCheckout(txn.CheckoutSessionID)
	if err := env.svc.HandleCheckoutCompleted(ctx, txn.CheckoutSessionID); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}

	shipped, err := env.svc.AddTracking(ctx, txn.TransactionID, "TRK123")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}
	if shipped.Status != domain.TransactionShipped || shipped.TrackingNumber != "TRK123" {
		t.Fatalf("unexpected transaction after tracking: %+v", shipped)
	}

	delivered, err := env.svc.ConfirmDelivery(ctx, txn.TransactionID)
	if err != nil {
		t.Fatalf("ConfirmDelivery failed: %v", err)
	}
	if delivered.Status != domain.TransactionPaidOut {
		t.Fatalf("expected paid_out after delivery, got %s", delivered.Status)
	}
	if delivered.TransferRef == "" {
		t.Fatal("expected transfer reference recorded")
	}
	if len(env.pay.Transfers) != 1 || env.pay.Transfers[0] != 10000 {
		t.Fatalf("expected one transfer of 10000 cents, got %v", env.pay.Transfers)
	}
}

func TestPayoutHeldAboveLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.cfg.ConnectedAccountID = "acct_test"
	conv := seedDeal(t, env, 2500) // 250000 cents, above the 100000 hold limit

	txn, _ := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	env.pay.CompleteCheckout(txn.CheckoutSessionID)
	if err := env.svc.HandleCheckoutCompleted(ctx, txn.CheckoutSessionID); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}
	if _, err := env.svc.AddTracking(ctx, txn.TransactionID, "TRK123"); err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}

	delivered, err := env.svc.ConfirmDelivery(ctx, txn.TransactionID)
	if err != nil {
		t.Fatalf("ConfirmDelivery failed: %v", err)
	}
	if delivered.Status != domain.TransactionDelivered {
		t.Fatalf("held payout must stay delivered, got %s", delivered.Status)
	}
	if len(env.pay.Transfers) != 0 {
		t.Fatalf("no transfer may happen while held, got %v", env.pay.Transfers)
	}
}

func TestAddTrackingBeforePaymentIsRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := seedDeal(t, env, 100)

	txn, _ := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)

	got, err := env.svc.AddTracking(ctx, txn.TransactionID, "TRK123")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}
	if got != nil {
		t.Fatalf("tracking before payment must be a no-op, got %+v", got)
	}
}

func TestSweepRefundsOverdueUnshipped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.cfg.RefundDeadline = time.Millisecond
	conv := seedDeal(t, env, 100)

	txn, _ := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	env.pay.CompleteCheckout(txn.CheckoutSessionID)
	if err := env.svc.HandleCheckoutCompleted(ctx, txn.CheckoutSessionID); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	env.svc.sweepRefunds(ctx)

	gotTxn, _ := env.store.GetTransaction(ctx, txn.TransactionID)
	if gotTxn.Status != domain.TransactionRefunded {
		t.Fatalf("expected refunded, got %s", gotTxn.Status)
	}
	if len(env.pay.Refunds) != 1 {
		t.Fatalf("expected one refund call, got %v", env.pay.Refunds)
	}
}

func TestSweepRefundsSkipsShipped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.cfg.RefundDeadline = time.Millisecond
	conv := seedDeal(t, env, 100)

	txn, _ := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	env.pay.CompleteCheckout(txn.CheckoutSessionID)
	if err := env.svc.HandleCheckoutCompleted(ctx, txn.CheckoutSessionID); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}
	if _, err := env.svc.AddTracking(ctx, txn.TransactionID, "TRK123"); err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	env.svc.sweepRefunds(ctx)

	gotTxn, _ := env.store.GetTransaction(ctx, txn.TransactionID)
	if gotTxn.Status != domain.TransactionShipped {
		t.Fatalf("shipped transaction must not be refunded, got %s", gotTxn.Status)
	}
	if len(env.pay.Refunds) != 0 {
		t.Fatalf("expected no refunds, got %v", env.pay.Refunds)
	}
}

func TestSweepDeliveriesAutoConfirms(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.cfg.ConnectedAccountID = "acct_test"
	env.cfg.DeliveryAutoConfirm = time.Millisecond
	conv := seedDeal(t, env, 100)

	txn, _ := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	env.pay.CompleteCheckout(txn.CheckoutSessionID)
	if err := env.svc.HandleCheckoutCompleted(ctx, txn.CheckoutSessionID); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}
	if _, err := env.svc.AddTracking(ctx, txn.TransactionID, "TRK123"); err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	env.svc.sweepDeliveries(ctx)

	gotTxn, _ := env.store.GetTransaction(ctx, txn.TransactionID)
	if gotTxn.Status != domain.TransactionPaidOut {
		t.Fatalf("expected paid_out after auto-confirm, got %s", gotTxn.Status)
	}
}

func TestRefundRequiresCapturedPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	conv := seedDeal(t, env, 100)

	txn, _ := env.svc.CreateCheckoutForConversation(ctx, conv.ConversationID)
	if err := env.svc.RefundTransaction(ctx, txn.TransactionID); err == nil {
		t.Fatal("expected refusal to refund before payment capture")
	}
}
