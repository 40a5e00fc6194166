package domain

import "time"

// Buyer is a marketplace buyer, keyed by their normalized display name.
// Created on first observation, never deleted.
type Buyer struct {
	BuyerID     string    `json:"buyer_id"`
	Name        string    `json:"name"`         // normalized, the identity key
	DisplayName string    `json:"display_name"` // first-seen surface form
	ProfileURL  string    `json:"profile_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Listing is a marketplace listing. Listings are created and edited through
// the dashboard; the orchestrator only reads them and flips status to sold.
type Listing struct {
	ListingID   string        `json:"listing_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Price       float64       `json:"price"`
	// MinPrice is the seller's true floor. It is never passed verbatim to the
	// negotiation policy, only thresholds derived from it.
	MinPrice    float64       `json:"min_price"`
	Flexibility float64       `json:"flexibility"` // 0 firm .. 1 very willing to drop
	SellerNotes string        `json:"seller_notes,omitempty"`
	Condition   string        `json:"condition,omitempty"`
	Status      ListingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Conversation is one buyer's thread about one listing. ListingID stays empty
// until a title match succeeds; the thread is tracked regardless so messages
// are not lost. Rows are never deleted.
type Conversation struct {
	ConversationID  string             `json:"conversation_id"`
	BuyerID         string             `json:"buyer_id"`
	ListingID       string             `json:"listing_id,omitempty"`
	Status          ConversationStatus `json:"status"`
	AgreedPrice     float64            `json:"agreed_price,omitempty"`
	BuyerOffer      float64            `json:"buyer_offer,omitempty"`
	DeliveryAddress string             `json:"delivery_address,omitempty"`
	LastMessageAt   *time.Time         `json:"last_message_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Message is an immutable, append-only chat record. ContentHash is the
// de-duplication key: the same literal buyer text is never stored twice for
// one conversation.
type Message struct {
	MessageID      string      `json:"message_id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	ContentHash    string      `json:"-"`
	// Delivered records whether the send attempt looked successful. Seller
	// messages are stored either way.
	Delivered bool      `json:"delivered"`
	SentAt    time.Time `json:"sent_at"`
}

// Transaction tracks payment for one sold conversation. At most one exists
// per conversation.
type Transaction struct {
	TransactionID     string            `json:"transaction_id"`
	ConversationID    string            `json:"conversation_id"`
	ListingID         string            `json:"listing_id,omitempty"`
	BuyerID           string            `json:"buyer_id"`
	AmountCents       int64             `json:"amount_cents"`
	CheckoutSessionID string            `json:"checkout_session_id,omitempty"`
	CheckoutURL       string            `json:"checkout_url,omitempty"`
	PaymentRef        string            `json:"payment_ref,omitempty"`
	TransferRef       string            `json:"transfer_ref,omitempty"`
	RefundRef         string            `json:"refund_ref,omitempty"`
	TrackingNumber    string            `json:"tracking_number,omitempty"`
	Status            TransactionStatus `json:"status"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
	ShippedAt         *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty"`
	PaidOutAt         *time.Time        `json:"paid_out_at,omitempty"`
	RefundedAt        *time.Time        `json:"refunded_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
