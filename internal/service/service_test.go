package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/quickflip/marketbot/guard"
	"github.com/quickflip/marketbot/internal/adapter/browser"
	"github.com/quickflip/marketbot/internal/adapter/llm"
	"github.com/quickflip/marketbot/internal/adapter/payment"
	"github.com/quickflip/marketbot/internal/config"
	"github.com/quickflip/marketbot/internal/domain"
	"github.com/quickflip/marketbot/internal/negotiator"
	"github.com/quickflip/marketbot/internal/store"
	"github.com/quickflip/marketbot/tests/helpers"
)

type testEnv struct {
	svc   *Service
	store *store.SQLiteStore
	agent *browser.FakeAgent
	llm   *llm.MockClient
	pay   *payment.MockClient
	cfg   *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := helpers.NewTestSQLiteStore(t)
	agent := &browser.FakeAgent{Snapshots: map[string]*domain.ConversationSnapshot{}}
	mockLLM := llm.NewMockClient()
	pay := payment.NewMockClient()

	cfg := &config.Config{
		InboxURL:                 "https://marketplace.test/inbox",
		ReplyIntervalMin:         time.Millisecond,
		ReplyIntervalMax:         2 * time.Millisecond,
		IdleIntervalMin:          time.Millisecond,
		IdleIntervalMax:          2 * time.Millisecond,
		SessionBreakCycles:       1000,
		SessionBreakMin:          time.Millisecond,
		SessionBreakMax:          2 * time.Millisecond,
		FullSweepEvery:           10,
		MaxConversationsPerCycle: 5,
		ProcessorPollInterval:    10 * time.Millisecond,
		DeliveryAutoConfirm:      72 * time.Hour,
		RefundDeadline:           7 * 24 * time.Hour,
		PayoutHoldLimitCents:     100000,
	}

	engine, err := guard.NewEngine(context.Background(), fmt.Sprintf(guard.DefaultPolicy, cfg.PayoutHoldLimitCents))
	if err != nil {
		t.Fatalf("guard.NewEngine failed: %v", err)
	}

	svc := New(db, agent, negotiator.NewResponder(mockLLM, "test-model"), pay, engine, cfg)
	return &testEnv{svc: svc, store: db, agent: agent, llm: mockLLM, pay: pay, cfg: cfg}
}

func (e *testEnv) seedListing(t *testing.T, price, minPrice float64) *domain.Listing {
	t.Helper()
	now := time.Now()
	listing := &domain.Listing{
		ListingID:   "lst_test",
		Title:       "Trek Mountain Bike",
		Description: "Barely used",
		Price:       price,
		MinPrice:    minPrice,
		Flexibility: 0.5,
		Condition:   "good",
		Status:      domain.ListingActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.CreateListing(context.Background(), listing); err != nil {
		t.Fatalf("CreateListing failed: %v", err)
	}
	return listing
}

func (e *testEnv) seedConversation(t *testing.T, name, displayName, listingID string, status domain.ConversationStatus) *domain.Conversation {
	t.Helper()
	ctx := context.Background()
	buyer, err := e.store.GetOrCreateBuyer(ctx, name, displayName, "")
	if err != nil {
		t.Fatalf("GetOrCreateBuyer failed: %v", err)
	}
	conv, err := e.store.GetOrCreateConversation(ctx, buyer.BuyerID, listingID)
	if err != nil {
		t.Fatalf("GetOrCreateConversation failed: %v", err)
	}
	if status != domain.ConversationActive {
		if _, err := e.store.UpdateConversationStatus(ctx, conv.ConversationID, status); err != nil {
			t.Fatalf("UpdateConversationStatus failed: %v", err)
		}
		conv.Status = status
	}
	return conv
}

func (e *testEnv) openSession(t *testing.T) browser.Session {
	t.Helper()
	session, err := e.agent.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	return session
}

func preview(name string) domain.ConversationPreview {
	return domain.ConversationPreview{BuyerName: name, Unread: true}
}

func snapshot(buyer, title string, texts ...string) *domain.ConversationSnapshot {
	snap := &domain.ConversationSnapshot{BuyerName: buyer, ListingTitle: title}
	for _, text := range texts {
		snap.Messages = append(snap.Messages, domain.ObservedMessage{Sender: buyer, Text: text, IsBuyer: true})
	}
	return snap
}
