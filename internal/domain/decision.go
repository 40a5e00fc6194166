package domain

// Decision is the negotiation policy's structured output for one turn.
// A malformed model response degrades to {Reply: raw text, DealStatus: none}
// rather than an error, so the buyer still gets an answer.
type Decision struct {
	Reply           string     `json:"message"`
	DealStatus      DealStatus `json:"deal_status"`
	AgreedPrice     *float64   `json:"agreed_price,omitempty"`
	DeliveryAddress string     `json:"delivery_address,omitempty"`
	// BuyerOffer is the dollar amount the buyer mentioned this turn, if any.
	// It feeds competing-offer arbitration on the listing.
	BuyerOffer *float64 `json:"buyer_offer,omitempty"`
}

// MonitorStatus is the poller's externally visible state.
type MonitorStatus struct {
	Running      bool     `json:"running"`
	CycleCount   int      `json:"cycle_count"`
	LastPollAt   int64    `json:"last_poll_at,omitempty"` // Unix milliseconds, 0 if never
	RecentErrors []string `json:"recent_errors"`
}

// Stats is the dashboard counters payload.
type Stats struct {
	TotalConversations  int `json:"total_conversations"`
	ActiveConversations int `json:"active_conversations"`
	SoldConversations   int `json:"sold_conversations"`
	TotalMessages       int `json:"total_messages"`
	TotalBuyers         int `json:"total_buyers"`
}
