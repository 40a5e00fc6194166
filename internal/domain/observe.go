package domain

// ConversationPreview is one row of the inbox list as rendered by the
// marketplace UI. Everything here is best-effort extraction, never trusted
// as authoritative.
type ConversationPreview struct {
	BuyerName   string `json:"buyer_name"`
	ListingHint string `json:"listing_hint,omitempty"`
	PreviewText string `json:"preview_text,omitempty"`
	Unread      bool   `json:"unread,omitempty"`
}

// ObservedMessage is a single message as extracted from an open conversation.
type ObservedMessage struct {
	Sender  string `json:"sender"`
	Text    string `json:"text"`
	IsBuyer bool   `json:"is_buyer"`
}

// ConversationSnapshot is the full extraction of an open conversation: a
// noisy, possibly incomplete view to be reconciled against the durable log.
type ConversationSnapshot struct {
	BuyerName    string            `json:"buyer_name"`
	ListingTitle string            `json:"listing_title,omitempty"`
	Messages     []ObservedMessage `json:"messages"`
}
