package payment

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-memory PaymentClient for testing. Sessions transition
// to paid when a test calls CompleteCheckout.
type MockClient struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*Checkout

	Refunds   []string
	Transfers []int64
}

// NewMockClient creates a new mock payment client.
func NewMockClient() *MockClient {
	return &MockClient{sessions: make(map[string]*Checkout)}
}

var _ PaymentClient = (*MockClient)(nil)

func (m *MockClient) CreateCheckout(ctx context.Context, amountCents int64, productName, reference string) (*Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	co := &Checkout{
		SessionID:     fmt.Sprintf("cs_mock_%d", m.seq),
		URL:           fmt.Sprintf("https://checkout.mock/pay/%d", m.seq),
		PaymentStatus: "unpaid",
	}
	m.sessions[co.SessionID] = co
	return &Checkout{SessionID: co.SessionID, URL: co.URL, PaymentStatus: co.PaymentStatus}, nil
}

func (m *MockClient) GetCheckout(ctx context.Context, sessionID string) (*Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	co, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("payment API error [404]: no such checkout session: %s", sessionID)
	}
	cp := *co
	return &cp, nil
}

func (m *MockClient) Refund(ctx context.Context, paymentRef string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Refunds = append(m.Refunds, paymentRef)
	m.seq++
	return fmt.Sprintf("re_mock_%d", m.seq), nil
}

func (m *MockClient) Transfer(ctx context.Context, amountCents int64, destination, transferGroup string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transfers = append(m.Transfers, amountCents)
	m.seq++
	return fmt.Sprintf("tr_mock_%d", m.seq), nil
}

// CompleteCheckout marks a session as paid, simulating the buyer finishing
// the hosted checkout flow.
func (m *MockClient) CompleteCheckout(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if co, ok := m.sessions[sessionID]; ok {
		co.PaymentStatus = "paid"
		co.PaymentIntent = "pi_" + sessionID
	}
}
