package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quickflip/marketbot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedListing(t *testing.T, ctx context.Context, store *SQLiteStore, id string) *domain.Listing {
	t.Helper()
	now := time.Now()
	listing := &domain.Listing{
		ListingID:   id,
		Title:       "Trek Mountain Bike",
		Description: "Barely used",
		Price:       120,
		MinPrice:    80,
		Flexibility: 0.5,
		Condition:   "good",
		Status:      domain.ListingActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateListing(ctx, listing); err != nil {
		t.Fatalf("CreateListing failed: %v", err)
	}
	return listing
}

func TestGetOrCreateBuyerIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	b1, err := store.GetOrCreateBuyer(ctx, "john smith", "John Smith", "")
	if err != nil {
		t.Fatalf("GetOrCreateBuyer failed: %v", err)
	}
	b2, err := store.GetOrCreateBuyer(ctx, "john smith", "John Smith", "")
	if err != nil {
		t.Fatalf("second GetOrCreateBuyer failed: %v", err)
	}
	if b1.BuyerID != b2.BuyerID {
		t.Fatalf("expected same buyer, got %s and %s", b1.BuyerID, b2.BuyerID)
	}

	// A later observation may supply the profile URL.
	b3, err := store.GetOrCreateBuyer(ctx, "john smith", "John Smith", "https://example.com/john")
	if err != nil {
		t.Fatalf("GetOrCreateBuyer with URL failed: %v", err)
	}
	if b3.ProfileURL != "https://example.com/john" {
		t.Fatalf("expected profile URL backfill, got %q", b3.ProfileURL)
	}
}

func TestGetOrCreateConversationAdoptsUnresolved(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedListing(t, ctx, store, "lst_1")

	buyer, err := store.GetOrCreateBuyer(ctx, "john smith", "John Smith", "")
	if err != nil {
		t.Fatalf("GetOrCreateBuyer failed: %v", err)
	}

	// First contact before any listing match.
	unresolved, err := store.GetOrCreateConversation(ctx, buyer.BuyerID, "")
	if err != nil {
		t.Fatalf("GetOrCreateConversation failed: %v", err)
	}
	if unresolved.ListingID != "" {
		t.Fatalf("expected no listing yet, got %q", unresolved.ListingID)
	}

	// Once the title matches, the same conversation picks up the listing.
	adopted, err := store.GetOrCreateConversation(ctx, buyer.BuyerID, "lst_1")
	if err != nil {
		t.Fatalf("adopting GetOrCreateConversation failed: %v", err)
	}
	if adopted.ConversationID != unresolved.ConversationID {
		t.Fatalf("expected adoption, got new conversation %s", adopted.ConversationID)
	}
	if adopted.ListingID != "lst_1" {
		t.Fatalf("expected listing lst_1, got %q", adopted.ListingID)
	}

	// Repeat calls return the same row.
	again, err := store.GetOrCreateConversation(ctx, buyer.BuyerID, "lst_1")
	if err != nil {
		t.Fatalf("repeat GetOrCreateConversation failed: %v", err)
	}
	if again.ConversationID != adopted.ConversationID {
		t.Fatalf("expected same conversation, got %s", again.ConversationID)
	}
}

func TestMessageHashesAndHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	buyer, _ := store.GetOrCreateBuyer(ctx, "john", "John", "")
	conv, _ := store.GetOrCreateConversation(ctx, buyer.BuyerID, "")

	msg := &domain.Message{
		MessageID:      "msg_1",
		ConversationID: conv.ConversationID,
		Role:           domain.RoleBuyer,
		Content:        "is this available?",
		ContentHash:    "h1",
		Delivered:      true,
		SentAt:         time.Now(),
	}
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	hashes, err := store.GetMessageHashes(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("GetMessageHashes failed: %v", err)
	}
	if !hashes["h1"] {
		t.Fatalf("expected hash h1 present, got %v", hashes)
	}

	messages, err := store.GetMessages(ctx, conv.ConversationID, 10, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "is this available?" {
		t.Fatalf("unexpected messages: %+v", messages)
	}

	// Message append bumps the conversation's last activity.
	got, err := store.GetConversation(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.LastMessageAt == nil {
		t.Fatal("expected last_message_at to be set")
	}
}

func TestSaveDealDetailsPartialUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	buyer, _ := store.GetOrCreateBuyer(ctx, "john", "John", "")
	conv, _ := store.GetOrCreateConversation(ctx, buyer.BuyerID, "")

	offer := 90.0
	if err := store.SaveDealDetails(ctx, conv.ConversationID, nil, &offer, nil); err != nil {
		t.Fatalf("SaveDealDetails failed: %v", err)
	}
	agreed := 100.0
	addr := "123 Main St, Springfield, IL 62704"
	if err := store.SaveDealDetails(ctx, conv.ConversationID, &agreed, nil, &addr); err != nil {
		t.Fatalf("second SaveDealDetails failed: %v", err)
	}

	got, err := store.GetConversation(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.BuyerOffer != 90 || got.AgreedPrice != 100 || got.DeliveryAddress != addr {
		t.Fatalf("unexpected deal details: %+v", got)
	}
}

func TestCreateTransactionUniquePerConversation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	buyer, _ := store.GetOrCreateBuyer(ctx, "john", "John", "")
	conv, _ := store.GetOrCreateConversation(ctx, buyer.BuyerID, "")

	now := time.Now()
	txn := &domain.Transaction{
		TransactionID:  "txn_1",
		ConversationID: conv.ConversationID,
		BuyerID:        buyer.BuyerID,
		AmountCents:    10000,
		Status:         domain.TransactionPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.CreateTransaction(ctx, txn); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	dup := *txn
	dup.TransactionID = "txn_2"
	if err := store.CreateTransaction(ctx, &dup); !errors.Is(err, ErrTransactionExists) {
		t.Fatalf("expected ErrTransactionExists, got %v", err)
	}

	got, err := store.GetTransactionByConversation(ctx, conv.ConversationID)
	if err != nil {
		t.Fatalf("GetTransactionByConversation failed: %v", err)
	}
	if got == nil || got.TransactionID != "txn_1" {
		t.Fatalf("expected txn_1 to survive, got %+v", got)
	}
}

func TestTransactionLifecycleIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	buyer, _ := store.GetOrCreateBuyer(ctx, "john", "John", "")
	conv, _ := store.GetOrCreateConversation(ctx, buyer.BuyerID, "")

	now := time.Now()
	txn := &domain.Transaction{
		TransactionID:  "txn_1",
		ConversationID: conv.ConversationID,
		BuyerID:        buyer.BuyerID,
		AmountCents:    10000,
		Status:         domain.TransactionPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.CreateTransaction(ctx, txn); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	// Shipping before payment is held must be a no-op.
	if ok, err := store.MarkShipped(ctx, "txn_1", "TRK123"); err != nil || ok {
		t.Fatalf("expected MarkShipped no-op, got ok=%v err=%v", ok, err)
	}

	if ok, err := store.MarkPaymentHeld(ctx, "txn_1", "pi_1"); err != nil || !ok {
		t.Fatalf("MarkPaymentHeld failed: ok=%v err=%v", ok, err)
	}
	// A second delivery of the same payment signal is harmless.
	if ok, err := store.MarkPaymentHeld(ctx, "txn_1", "pi_dup"); err != nil || ok {
		t.Fatalf("expected duplicate MarkPaymentHeld no-op, got ok=%v err=%v", ok, err)
	}
	got, _ := store.GetTransaction(ctx, "txn_1")
	if got.PaymentRef != "pi_1" {
		t.Fatalf("duplicate signal overwrote payment ref: %q", got.PaymentRef)
	}

	if ok, err := store.MarkShipped(ctx, "txn_1", "TRK123"); err != nil || !ok {
		t.Fatalf("MarkShipped failed: ok=%v err=%v", ok, err)
	}
	if ok, err := store.MarkDelivered(ctx, "txn_1"); err != nil || !ok {
		t.Fatalf("MarkDelivered failed: ok=%v err=%v", ok, err)
	}
	if ok, err := store.MarkPaidOut(ctx, "txn_1", "tr_1"); err != nil || !ok {
		t.Fatalf("MarkPaidOut failed: ok=%v err=%v", ok, err)
	}

	// Settled funds can never be refunded.
	if ok, err := store.MarkRefunded(ctx, "txn_1", "re_1"); err != nil || ok {
		t.Fatalf("expected refund of paid_out to be a no-op, got ok=%v err=%v", ok, err)
	}

	got, _ = store.GetTransaction(ctx, "txn_1")
	if got.Status != domain.TransactionPaidOut {
		t.Fatalf("expected paid_out, got %s", got.Status)
	}
	if got.PaidAt == nil || got.ShippedAt == nil || got.DeliveredAt == nil || got.PaidOutAt == nil {
		t.Fatalf("expected all lifecycle timestamps set: %+v", got)
	}
}

func TestMarkRefundedDivertsFromHeld(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	buyer, _ := store.GetOrCreateBuyer(ctx, "john", "John", "")
	conv, _ := store.GetOrCreateConversation(ctx, buyer.BuyerID, "")

	now := time.Now()
	txn := &domain.Transaction{
		TransactionID:  "txn_1",
		ConversationID: conv.ConversationID,
		BuyerID:        buyer.BuyerID,
		AmountCents:    10000,
		Status:         domain.TransactionPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.CreateTransaction(ctx, txn); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	if _, err := store.MarkPaymentHeld(ctx, "txn_1", "pi_1"); err != nil {
		t.Fatalf("MarkPaymentHeld failed: %v", err)
	}

	if ok, err := store.MarkRefunded(ctx, "txn_1", "re_1"); err != nil || !ok {
		t.Fatalf("MarkRefunded failed: ok=%v err=%v", ok, err)
	}
	got, _ := store.GetTransaction(ctx, "txn_1")
	if got.Status != domain.TransactionRefunded || got.RefundRef != "re_1" {
		t.Fatalf("unexpected transaction after refund: %+v", got)
	}

	// Refunded is terminal.
	if ok, _ := store.MarkShipped(ctx, "txn_1", "TRK123"); ok {
		t.Fatal("refunded transaction must not advance")
	}
}

func TestListPaymentHeldBeforeSkipsTracked(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	b1, _ := store.GetOrCreateBuyer(ctx, "john", "John", "")
	b2, _ := store.GetOrCreateBuyer(ctx, "jane", "Jane", "")
	convA, _ := store.GetOrCreateConversation(ctx, b1.BuyerID, "")
	convB, _ := store.GetOrCreateConversation(ctx, b2.BuyerID, "")

	now := time.Now()
	for i, conv := range []*domain.Conversation{convA, convB} {
		txn := &domain.Transaction{
			TransactionID:  "txn_" + string(rune('a'+i)),
			ConversationID: conv.ConversationID,
			BuyerID:        conv.BuyerID,
			AmountCents:    10000,
			Status:         domain.TransactionPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := store.CreateTransaction(ctx, txn); err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
		if _, err := store.MarkPaymentHeld(ctx, txn.TransactionID, "pi_"+txn.TransactionID); err != nil {
			t.Fatalf("MarkPaymentHeld failed: %v", err)
		}
	}

	// txn_b got a tracking number in time.
	if _, err := store.MarkShipped(ctx, "txn_b", "TRK123"); err != nil {
		t.Fatalf("MarkShipped failed: %v", err)
	}

	held, err := store.ListPaymentHeldBefore(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ListPaymentHeldBefore failed: %v", err)
	}
	if len(held) != 1 || held[0].TransactionID != "txn_a" {
		t.Fatalf("expected only txn_a overdue, got %+v", held)
	}
}

func TestConversationListingQueries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedListing(t, ctx, store, "lst_1")

	b1, _ := store.GetOrCreateBuyer(ctx, "john", "John", "")
	b2, _ := store.GetOrCreateBuyer(ctx, "jane", "Jane", "")
	c1, _ := store.GetOrCreateConversation(ctx, b1.BuyerID, "lst_1")
	c2, _ := store.GetOrCreateConversation(ctx, b2.BuyerID, "lst_1")

	if _, err := store.UpdateConversationStatus(ctx, c2.ConversationID, domain.ConversationPending); err != nil {
		t.Fatalf("UpdateConversationStatus failed: %v", err)
	}

	byListing, err := store.ListConversationsByListing(ctx, "lst_1")
	if err != nil {
		t.Fatalf("ListConversationsByListing failed: %v", err)
	}
	if len(byListing) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(byListing))
	}

	pending, err := store.ListConversationsByStatus(ctx, domain.ConversationPending)
	if err != nil {
		t.Fatalf("ListConversationsByStatus failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ConversationID != c2.ConversationID {
		t.Fatalf("unexpected pending conversations: %+v", pending)
	}

	// Updates on a missing conversation report not-found.
	if ok, err := store.UpdateConversationStatus(ctx, "conv_missing", domain.ConversationClosed); err != nil || ok {
		t.Fatalf("expected no-op for missing conversation, got ok=%v err=%v", ok, err)
	}
	_ = c1
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	buyer, _ := store.GetOrCreateBuyer(ctx, "john", "John", "")
	conv, _ := store.GetOrCreateConversation(ctx, buyer.BuyerID, "")
	if err := store.CreateMessage(ctx, &domain.Message{
		MessageID:      "msg_1",
		ConversationID: conv.ConversationID,
		Role:           domain.RoleBuyer,
		Content:        "hey",
		ContentHash:    "h1",
		SentAt:         time.Now(),
	}); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalBuyers != 1 || stats.TotalConversations != 1 || stats.TotalMessages != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ActiveConversations != 1 {
		t.Fatalf("expected 1 active conversation, got %d", stats.ActiveConversations)
	}
}
