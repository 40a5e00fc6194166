package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/quickflip/marketbot/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS buyers (
			buyer_id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			profile_url TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS listings (
			listing_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price REAL NOT NULL,
			min_price REAL NOT NULL DEFAULT 0,
			flexibility REAL NOT NULL DEFAULT 0.5,
			seller_notes TEXT,
			condition TEXT NOT NULL DEFAULT 'good',
			status TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			buyer_id TEXT NOT NULL,
			listing_id TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			agreed_price REAL,
			buyer_offer REAL,
			delivery_address TEXT,
			last_message_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (buyer_id) REFERENCES buyers(buyer_id),
			FOREIGN KEY (listing_id) REFERENCES listings(listing_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_buyer_listing ON conversations(buyer_id, listing_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_listing_status ON conversations(listing_id, status)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			delivered INTEGER NOT NULL DEFAULT 0,
			sent_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sent_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_hash ON messages(conversation_id, content_hash)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL UNIQUE,
			listing_id TEXT,
			buyer_id TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			checkout_session_id TEXT,
			checkout_url TEXT,
			payment_ref TEXT,
			transfer_ref TEXT,
			refund_ref TEXT,
			tracking_number TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			paid_at DATETIME,
			shipped_at DATETIME,
			delivered_at DATETIME,
			paid_out_at DATETIME,
			refunded_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id),
			FOREIGN KEY (buyer_id) REFERENCES buyers(buyer_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_checkout ON transactions(checkout_session_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetOrCreateBuyer gets a buyer by normalized name or creates one.
func (s *SQLiteStore) GetOrCreateBuyer(ctx context.Context, name, displayName, profileURL string) (*domain.Buyer, error) {
	buyer, err := s.getBuyerByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if buyer != nil {
		if profileURL != "" && buyer.ProfileURL == "" {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE buyers SET profile_url = ? WHERE buyer_id = ?`,
				profileURL, buyer.BuyerID); err != nil {
				return nil, err
			}
			buyer.ProfileURL = profileURL
		}
		return buyer, nil
	}

	buyer = &domain.Buyer{
		BuyerID:     newID("buyer"),
		Name:        name,
		DisplayName: displayName,
		ProfileURL:  profileURL,
		CreatedAt:   time.Now(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO buyers (buyer_id, name, display_name, profile_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		buyer.BuyerID, buyer.Name, buyer.DisplayName, nullString(buyer.ProfileURL), buyer.CreatedAt)
	if err != nil {
		return nil, err
	}
	return buyer, nil
}

func (s *SQLiteStore) getBuyerByName(ctx context.Context, name string) (*domain.Buyer, error) {
	var buyer domain.Buyer
	var profileURL sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT buyer_id, name, display_name, profile_url, created_at FROM buyers WHERE name = ?`,
		name).Scan(&buyer.BuyerID, &buyer.Name, &buyer.DisplayName, &profileURL, &buyer.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if profileURL.Valid {
		buyer.ProfileURL = profileURL.String
	}
	return &buyer, nil
}

// GetBuyer retrieves a buyer by ID.
func (s *SQLiteStore) GetBuyer(ctx context.Context, buyerID string) (*domain.Buyer, error) {
	var buyer domain.Buyer
	var profileURL sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT buyer_id, name, display_name, profile_url, created_at FROM buyers WHERE buyer_id = ?`,
		buyerID).Scan(&buyer.BuyerID, &buyer.Name, &buyer.DisplayName, &profileURL, &buyer.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if profileURL.Valid {
		buyer.ProfileURL = profileURL.String
	}
	return &buyer, nil
}

// CreateListing creates a new listing.
func (s *SQLiteStore) CreateListing(ctx context.Context, listing *domain.Listing) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (listing_id, title, description, price, min_price, flexibility, seller_notes, condition, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		listing.ListingID, listing.Title, listing.Description, listing.Price, listing.MinPrice,
		listing.Flexibility, nullString(listing.SellerNotes), listing.Condition, listing.Status,
		listing.CreatedAt, listing.UpdatedAt)
	return err
}

// GetListing retrieves a listing by ID.
func (s *SQLiteStore) GetListing(ctx context.Context, listingID string) (*domain.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT listing_id, title, description, price, min_price, flexibility, seller_notes, condition, status, created_at, updated_at
		 FROM listings WHERE listing_id = ?`, listingID)
	return scanListing(row)
}

// ListListings lists listings, optionally filtered by status.
func (s *SQLiteStore) ListListings(ctx context.Context, status domain.ListingStatus) ([]domain.Listing, error) {
	query := `SELECT listing_id, title, description, price, min_price, flexibility, seller_notes, condition, status, created_at, updated_at FROM listings`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

// UpdateListing updates listing attributes owned by the dashboard.
func (s *SQLiteStore) UpdateListing(ctx context.Context, listing *domain.Listing) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE listings SET title = ?, description = ?, price = ?, min_price = ?, flexibility = ?, seller_notes = ?, condition = ?, status = ?, updated_at = ?
		 WHERE listing_id = ?`,
		listing.Title, listing.Description, listing.Price, listing.MinPrice, listing.Flexibility,
		nullString(listing.SellerNotes), listing.Condition, listing.Status, time.Now(), listing.ListingID)
	return err
}

// UpdateListingStatus updates only the status of a listing.
func (s *SQLiteStore) UpdateListingStatus(ctx context.Context, listingID string, status domain.ListingStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE listings SET status = ?, updated_at = ? WHERE listing_id = ?`,
		status, time.Now(), listingID)
	return err
}

// GetOrCreateConversation gets the conversation for (buyer, listing) or
// creates one. A buyer's unresolved conversation (no listing yet) is adopted
// when a listing match later succeeds, so early messages are not orphaned.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, buyerID, listingID string) (*domain.Conversation, error) {
	if listingID != "" {
		conv, err := s.queryConversation(ctx,
			`SELECT `+conversationCols+` FROM conversations WHERE buyer_id = ? AND listing_id = ?`,
			buyerID, listingID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}

		// Adopt the buyer's unresolved conversation if one exists.
		conv, err = s.queryConversation(ctx,
			`SELECT `+conversationCols+` FROM conversations WHERE buyer_id = ? AND listing_id IS NULL`,
			buyerID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE conversations SET listing_id = ? WHERE conversation_id = ?`,
				listingID, conv.ConversationID); err != nil {
				return nil, err
			}
			conv.ListingID = listingID
			return conv, nil
		}
	} else {
		conv, err := s.queryConversation(ctx,
			`SELECT `+conversationCols+` FROM conversations WHERE buyer_id = ? AND listing_id IS NULL`,
			buyerID)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			return conv, nil
		}
	}

	conv := &domain.Conversation{
		ConversationID: newID("conv"),
		BuyerID:        buyerID,
		ListingID:      listingID,
		Status:         domain.ConversationActive,
		CreatedAt:      time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, buyer_id, listing_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ConversationID, conv.BuyerID, nullString(conv.ListingID), conv.Status, conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

const conversationCols = `conversation_id, buyer_id, listing_id, status, agreed_price, buyer_offer, delivery_address, last_message_at, created_at`

func (s *SQLiteStore) queryConversation(ctx context.Context, query string, args ...interface{}) (*domain.Conversation, error) {
	var conv domain.Conversation
	var listingID, deliveryAddress sql.NullString
	var agreedPrice, buyerOffer sql.NullFloat64
	var lastMessageAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&conv.ConversationID, &conv.BuyerID, &listingID, &conv.Status,
		&agreedPrice, &buyerOffer, &deliveryAddress, &lastMessageAt, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if listingID.Valid {
		conv.ListingID = listingID.String
	}
	if agreedPrice.Valid {
		conv.AgreedPrice = agreedPrice.Float64
	}
	if buyerOffer.Valid {
		conv.BuyerOffer = buyerOffer.Float64
	}
	if deliveryAddress.Valid {
		conv.DeliveryAddress = deliveryAddress.String
	}
	if lastMessageAt.Valid {
		conv.LastMessageAt = &lastMessageAt.Time
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return s.queryConversation(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE conversation_id = ?`, conversationID)
}

// ListConversations lists conversations, newest activity first, optionally
// filtered by status.
func (s *SQLiteStore) ListConversations(ctx context.Context, status domain.ConversationStatus, limit, offset int) ([]domain.Conversation, error) {
	query := `SELECT ` + conversationCols + ` FROM conversations`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY last_message_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}
	return s.queryConversations(ctx, query, args...)
}

// ListConversationsByListing lists all conversations about one listing.
func (s *SQLiteStore) ListConversationsByListing(ctx context.Context, listingID string) ([]domain.Conversation, error) {
	return s.queryConversations(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE listing_id = ?`, listingID)
}

// ListConversationsByStatus lists all conversations in the given status.
func (s *SQLiteStore) ListConversationsByStatus(ctx context.Context, status domain.ConversationStatus) ([]domain.Conversation, error) {
	return s.queryConversations(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE status = ?`, status)
}

func (s *SQLiteStore) queryConversations(ctx context.Context, query string, args ...interface{}) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		var listingID, deliveryAddress sql.NullString
		var agreedPrice, buyerOffer sql.NullFloat64
		var lastMessageAt sql.NullTime
		if err := rows.Scan(&conv.ConversationID, &conv.BuyerID, &listingID, &conv.Status,
			&agreedPrice, &buyerOffer, &deliveryAddress, &lastMessageAt, &conv.CreatedAt); err != nil {
			return nil, err
		}
		if listingID.Valid {
			conv.ListingID = listingID.String
		}
		if agreedPrice.Valid {
			conv.AgreedPrice = agreedPrice.Float64
		}
		if buyerOffer.Valid {
			conv.BuyerOffer = buyerOffer.Float64
		}
		if deliveryAddress.Valid {
			conv.DeliveryAddress = deliveryAddress.String
		}
		if lastMessageAt.Valid {
			conv.LastMessageAt = &lastMessageAt.Time
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// UpdateConversationStatus updates the status of a conversation. Returns
// false when the conversation does not exist.
func (s *SQLiteStore) UpdateConversationStatus(ctx context.Context, conversationID string, status domain.ConversationStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ? WHERE conversation_id = ?`,
		status, conversationID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SaveDealDetails persists whichever deal fields are non-nil.
func (s *SQLiteStore) SaveDealDetails(ctx context.Context, conversationID string, agreedPrice, buyerOffer *float64, deliveryAddress *string) error {
	sets := []string{}
	args := []interface{}{}
	if agreedPrice != nil {
		sets = append(sets, "agreed_price = ?")
		args = append(args, *agreedPrice)
	}
	if buyerOffer != nil {
		sets = append(sets, "buyer_offer = ?")
		args = append(args, *buyerOffer)
	}
	if deliveryAddress != nil {
		sets = append(sets, "delivery_address = ?")
		args = append(args, *deliveryAddress)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, conversationID)
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET `+strings.Join(sets, ", ")+` WHERE conversation_id = ?`, args...)
	return err
}

// CreateMessage appends a message and bumps the conversation's last activity.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	delivered := 0
	if message.Delivered {
		delivered = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, conversation_id, role, content, content_hash, delivered, sent_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.ConversationID, message.Role, message.Content, message.ContentHash, delivered, message.SentAt)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ? WHERE conversation_id = ?`,
		message.SentAt, message.ConversationID)
	return err
}

// GetMessages retrieves messages for a conversation, oldest first.
func (s *SQLiteStore) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error) {
	query := `SELECT message_id, conversation_id, role, content, content_hash, delivered, sent_at
	          FROM messages WHERE conversation_id = ? ORDER BY sent_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var delivered int
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.ContentHash, &delivered, &msg.SentAt); err != nil {
			return nil, err
		}
		msg.Delivered = delivered != 0
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetMessageHashes returns the set of content hashes already stored for a
// conversation. The diff engine reconciles observed transcripts against it.
func (s *SQLiteStore) GetMessageHashes(ctx context.Context, conversationID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_hash FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes[h] = true
	}
	return hashes, rows.Err()
}

// CreateTransaction creates a transaction. Returns ErrTransactionExists when
// the conversation already has one; creation is exactly-once per conversation.
func (s *SQLiteStore) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (transaction_id, conversation_id, listing_id, buyer_id, amount_cents, checkout_session_id, checkout_url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.TransactionID, txn.ConversationID, nullString(txn.ListingID), txn.BuyerID, txn.AmountCents,
		nullString(txn.CheckoutSessionID), nullString(txn.CheckoutURL), txn.Status, txn.CreatedAt, txn.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrTransactionExists
	}
	return err
}

const transactionCols = `transaction_id, conversation_id, listing_id, buyer_id, amount_cents, checkout_session_id, checkout_url, payment_ref, transfer_ref, refund_ref, tracking_number, status, paid_at, shipped_at, delivered_at, paid_out_at, refunded_at, created_at, updated_at`

func (s *SQLiteStore) queryTransaction(ctx context.Context, query string, args ...interface{}) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	txn, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// GetTransaction retrieves a transaction by ID.
func (s *SQLiteStore) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.queryTransaction(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE transaction_id = ?`, transactionID)
}

// GetTransactionByConversation retrieves the transaction for a conversation.
func (s *SQLiteStore) GetTransactionByConversation(ctx context.Context, conversationID string) (*domain.Transaction, error) {
	return s.queryTransaction(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE conversation_id = ?`, conversationID)
}

// GetTransactionByCheckoutSession retrieves the transaction for a processor
// checkout session.
func (s *SQLiteStore) GetTransactionByCheckoutSession(ctx context.Context, checkoutSessionID string) (*domain.Transaction, error) {
	return s.queryTransaction(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE checkout_session_id = ?`, checkoutSessionID)
}

// ListTransactions lists all transactions, newest first.
func (s *SQLiteStore) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionCols+` FROM transactions ORDER BY created_at DESC`)
}

// ListTransactionsByStatus lists transactions in the given status.
func (s *SQLiteStore) ListTransactionsByStatus(ctx context.Context, status domain.TransactionStatus) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE status = ? ORDER BY created_at ASC`, status)
}

// ListShippedBefore lists shipped transactions whose shipped_at is at or
// before the cutoff. The payment worker auto-confirms delivery for these.
func (s *SQLiteStore) ListShippedBefore(ctx context.Context, cutoff time.Time) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE status = ? AND shipped_at <= ?`,
		domain.TransactionShipped, cutoff)
}

// ListPaymentHeldBefore lists payment_held transactions with no tracking
// number whose paid_at is at or before the cutoff. These are auto-refunded.
func (s *SQLiteStore) ListPaymentHeldBefore(ctx context.Context, cutoff time.Time) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE status = ? AND tracking_number IS NULL AND paid_at <= ?`,
		domain.TransactionPaymentHeld, cutoff)
}

func (s *SQLiteStore) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// MarkPaymentHeld advances pending -> payment_held. The status guard in the
// WHERE clause de-duplicates webhook and poll delivery of the same signal.
func (s *SQLiteStore) MarkPaymentHeld(ctx context.Context, transactionID, paymentRef string) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, payment_ref = ?, paid_at = ?, updated_at = ? WHERE transaction_id = ? AND status = ?`,
		domain.TransactionPaymentHeld, nullString(paymentRef), now, now, transactionID, domain.TransactionPending)
	return affected(res, err)
}

// MarkShipped advances payment_held -> shipped and records the tracking number.
func (s *SQLiteStore) MarkShipped(ctx context.Context, transactionID, trackingNumber string) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, tracking_number = ?, shipped_at = ?, updated_at = ? WHERE transaction_id = ? AND status = ?`,
		domain.TransactionShipped, trackingNumber, now, now, transactionID, domain.TransactionPaymentHeld)
	return affected(res, err)
}

// MarkDelivered advances shipped -> delivered.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, transactionID string) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, delivered_at = ?, updated_at = ? WHERE transaction_id = ? AND status = ?`,
		domain.TransactionDelivered, now, now, transactionID, domain.TransactionShipped)
	return affected(res, err)
}

// MarkPaidOut advances delivered -> paid_out.
func (s *SQLiteStore) MarkPaidOut(ctx context.Context, transactionID, transferRef string) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, transfer_ref = ?, paid_out_at = ?, updated_at = ? WHERE transaction_id = ? AND status = ?`,
		domain.TransactionPaidOut, nullString(transferRef), now, now, transactionID, domain.TransactionDelivered)
	return affected(res, err)
}

// MarkRefunded diverts any not-yet-settled transaction to refunded.
func (s *SQLiteStore) MarkRefunded(ctx context.Context, transactionID, refundRef string) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, refund_ref = ?, refunded_at = ?, updated_at = ? WHERE transaction_id = ? AND status NOT IN (?, ?)`,
		domain.TransactionRefunded, nullString(refundRef), now, now, transactionID,
		domain.TransactionPaidOut, domain.TransactionRefunded)
	return affected(res, err)
}

// GetStats returns dashboard counters.
func (s *SQLiteStore) GetStats(ctx context.Context) (*domain.Stats, error) {
	stats := &domain.Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM conversations`, &stats.TotalConversations},
		{`SELECT COUNT(*) FROM conversations WHERE status = 'active'`, &stats.ActiveConversations},
		{`SELECT COUNT(*) FROM conversations WHERE status = 'sold'`, &stats.SoldConversations},
		{`SELECT COUNT(*) FROM messages`, &stats.TotalMessages},
		{`SELECT COUNT(*) FROM buyers`, &stats.TotalBuyers},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(sc scanner) (*domain.Listing, error) {
	var l domain.Listing
	var sellerNotes sql.NullString
	err := sc.Scan(&l.ListingID, &l.Title, &l.Description, &l.Price, &l.MinPrice,
		&l.Flexibility, &sellerNotes, &l.Condition, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sellerNotes.Valid {
		l.SellerNotes = sellerNotes.String
	}
	return &l, nil
}

func scanTransaction(sc scanner) (*domain.Transaction, error) {
	var txn domain.Transaction
	var listingID, checkoutSessionID, checkoutURL, paymentRef, transferRef, refundRef, trackingNumber sql.NullString
	var paidAt, shippedAt, deliveredAt, paidOutAt, refundedAt sql.NullTime
	err := sc.Scan(&txn.TransactionID, &txn.ConversationID, &listingID, &txn.BuyerID, &txn.AmountCents,
		&checkoutSessionID, &checkoutURL, &paymentRef, &transferRef, &refundRef, &trackingNumber,
		&txn.Status, &paidAt, &shippedAt, &deliveredAt, &paidOutAt, &refundedAt, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if listingID.Valid {
		txn.ListingID = listingID.String
	}
	if checkoutSessionID.Valid {
		txn.CheckoutSessionID = checkoutSessionID.String
	}
	if checkoutURL.Valid {
		txn.CheckoutURL = checkoutURL.String
	}
	if paymentRef.Valid {
		txn.PaymentRef = paymentRef.String
	}
	if transferRef.Valid {
		txn.TransferRef = transferRef.String
	}
	if refundRef.Valid {
		txn.RefundRef = refundRef.String
	}
	if trackingNumber.Valid {
		txn.TrackingNumber = trackingNumber.String
	}
	if paidAt.Valid {
		txn.PaidAt = &paidAt.Time
	}
	if shippedAt.Valid {
		txn.ShippedAt = &shippedAt.Time
	}
	if deliveredAt.Valid {
		txn.DeliveredAt = &deliveredAt.Time
	}
	if paidOutAt.Valid {
		txn.PaidOutAt = &paidOutAt.Time
	}
	if refundedAt.Valid {
		txn.RefundedAt = &refundedAt.Time
	}
	return &txn, nil
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
