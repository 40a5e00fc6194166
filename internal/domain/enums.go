// Package domain defines the core domain models for the orchestrator.
package domain

// ConversationStatus represents the deal lifecycle state of a conversation.
type ConversationStatus string

const (
	// ConversationActive is the initial state: ordinary back-and-forth.
	ConversationActive ConversationStatus = "active"
	// ConversationPending means a price was agreed and we asked for an address.
	ConversationPending ConversationStatus = "pending"
	// ConversationAwaitingConfirm means an address was given and we asked the
	// buyer to confirm it.
	ConversationAwaitingConfirm ConversationStatus = "awaiting_confirm"
	// ConversationConfirmed means the address was confirmed and a checkout was
	// issued; we are waiting for payment.
	ConversationConfirmed ConversationStatus = "confirmed"
	// ConversationSold is the terminal success state: payment verified.
	ConversationSold ConversationStatus = "sold"
	// ConversationClosed means declined, superseded by a competing buyer, or
	// the listing was already sold. Reopenable unless the listing is sold.
	ConversationClosed ConversationStatus = "closed"
	// ConversationNeedsReview means the negotiation policy punted to a human.
	ConversationNeedsReview ConversationStatus = "needs_review"
)

// Live reports whether the conversation holds an in-flight deal on its
// listing. At most one conversation per listing may be live.
func (s ConversationStatus) Live() bool {
	switch s {
	case ConversationPending, ConversationAwaitingConfirm, ConversationConfirmed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transitions apply.
func (s ConversationStatus) Terminal() bool {
	return s == ConversationSold || s == ConversationClosed
}

// DealStatus is the negotiation policy's signal for how a conversation's
// business state should move.
type DealStatus string

const (
	DealStatusNone             DealStatus = "none"
	DealStatusAgreed           DealStatus = "agreed"
	DealStatusDeclined         DealStatus = "declined"
	DealStatusNeedsReview      DealStatus = "needs_review"
	DealStatusAddressReceived  DealStatus = "address_received"
	DealStatusAddressConfirmed DealStatus = "address_confirmed"
)

// Valid reports whether s is a known deal-status value. Unknown values from
// the policy degrade to none.
func (s DealStatus) Valid() bool {
	switch s {
	case DealStatusNone, DealStatusAgreed, DealStatusDeclined,
		DealStatusNeedsReview, DealStatusAddressReceived, DealStatusAddressConfirmed:
		return true
	}
	return false
}

// MessageRole represents who authored a message.
type MessageRole string

const (
	RoleBuyer  MessageRole = "buyer"
	RoleSeller MessageRole = "seller"
)

// ListingStatus represents the sale state of a listing.
type ListingStatus string

const (
	ListingActive ListingStatus = "active"
	ListingSold   ListingStatus = "sold"
	ListingClosed ListingStatus = "closed"
)

// TransactionStatus represents the payment lifecycle state. Transitions only
// move forward: pending -> payment_held -> shipped -> delivered -> paid_out,
// or divert once to refunded.
type TransactionStatus string

const (
	TransactionPending     TransactionStatus = "pending"
	TransactionPaymentHeld TransactionStatus = "payment_held"
	TransactionShipped     TransactionStatus = "shipped"
	TransactionDelivered   TransactionStatus = "delivered"
	TransactionPaidOut     TransactionStatus = "paid_out"
	TransactionRefunded    TransactionStatus = "refunded"
)

var transactionRank = map[TransactionStatus]int{
	TransactionPending:     0,
	TransactionPaymentHeld: 1,
	TransactionShipped:     2,
	TransactionDelivered:   3,
	TransactionPaidOut:     4,
	TransactionRefunded:    4,
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s TransactionStatus) CanAdvanceTo(next TransactionStatus) bool {
	if s == TransactionRefunded || s == TransactionPaidOut {
		return false
	}
	if next == TransactionRefunded {
		// Refund diverts from any non-terminal state.
		return true
	}
	return transactionRank[next] == transactionRank[s]+1
}
