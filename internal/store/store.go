// Package store provides durable persistence for the orchestrator. The store
// is the single source of truth: everything observed through the browser
// agent is reconciled against it, never the other way around.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/quickflip/marketbot/internal/domain"
)

// ErrTransactionExists is returned when a checkout is requested for a
// conversation that already has a transaction.
var ErrTransactionExists = errors.New("transaction already exists for conversation")

// Store defines the persistence operations used by the orchestrator.
type Store interface {
	// Buyers
	GetOrCreateBuyer(ctx context.Context, name, displayName, profileURL string) (*domain.Buyer, error)
	GetBuyer(ctx context.Context, buyerID string) (*domain.Buyer, error)

	// Listings
	CreateListing(ctx context.Context, listing *domain.Listing) error
	GetListing(ctx context.Context, listingID string) (*domain.Listing, error)
	ListListings(ctx context.Context, status domain.ListingStatus) ([]domain.Listing, error)
	UpdateListing(ctx context.Context, listing *domain.Listing) error
	UpdateListingStatus(ctx context.Context, listingID string, status domain.ListingStatus) error

	// Conversations
	GetOrCreateConversation(ctx context.Context, buyerID, listingID string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, status domain.ConversationStatus, limit, offset int) ([]domain.Conversation, error)
	ListConversationsByListing(ctx context.Context, listingID string) ([]domain.Conversation, error)
	ListConversationsByStatus(ctx context.Context, status domain.ConversationStatus) ([]domain.Conversation, error)
	UpdateConversationStatus(ctx context.Context, conversationID string, status domain.ConversationStatus) (bool, error)
	SaveDealDetails(ctx context.Context, conversationID string, agreedPrice, buyerOffer *float64, deliveryAddress *string) error

	// Messages
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error)
	GetMessageHashes(ctx context.Context, conversationID string) (map[string]bool, error)

	// Transactions
	CreateTransaction(ctx context.Context, txn *domain.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)
	GetTransactionByConversation(ctx context.Context, conversationID string) (*domain.Transaction, error)
	GetTransactionByCheckoutSession(ctx context.Context, checkoutSessionID string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	ListTransactionsByStatus(ctx context.Context, status domain.TransactionStatus) ([]domain.Transaction, error)
	ListShippedBefore(ctx context.Context, cutoff time.Time) ([]domain.Transaction, error)
	ListPaymentHeldBefore(ctx context.Context, cutoff time.Time) ([]domain.Transaction, error)
	MarkPaymentHeld(ctx context.Context, transactionID, paymentRef string) (bool, error)
	MarkShipped(ctx context.Context, transactionID, trackingNumber string) (bool, error)
	MarkDelivered(ctx context.Context, transactionID string) (bool, error)
	MarkPaidOut(ctx context.Context, transactionID, transferRef string) (bool, error)
	MarkRefunded(ctx context.Context, transactionID, refundRef string) (bool, error)

	// Stats
	GetStats(ctx context.Context) (*domain.Stats, error)

	Close() error
}
