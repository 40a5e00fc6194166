// Package payment provides the client for the payment processor. The wire
// protocol is Stripe's: form-encoded requests, bearer auth, JSON responses.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Checkout describes a hosted checkout session.
type Checkout struct {
	SessionID     string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	PaymentIntent string `json:"payment_intent"`
}

// Paid reports whether the checkout completed successfully.
func (c *Checkout) Paid() bool {
	return c.PaymentStatus == "paid"
}

// PaymentClient defines the interface for payment processor operations.
type PaymentClient interface {
	// CreateCheckout creates a hosted checkout session for the given amount.
	CreateCheckout(ctx context.Context, amountCents int64, productName, reference string) (*Checkout, error)

	// GetCheckout retrieves the current state of a checkout session.
	GetCheckout(ctx context.Context, sessionID string) (*Checkout, error)

	// Refund refunds a captured payment in full. Returns the refund id.
	Refund(ctx context.Context, paymentRef string) (string, error)

	// Transfer moves funds to the connected seller account. Returns the
	// transfer id.
	Transfer(ctx context.Context, amountCents int64, destination, transferGroup string) (string, error)
}

// Client talks to the payment processor API.
type Client struct {
	baseURL    string
	secretKey  string
	successURL string
	cancelURL  string
	httpClient *http.Client
}

// NewClient creates a new payment processor client.
func NewClient(baseURL, secretKey, successURL, cancelURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ PaymentClient = (*Client)(nil)

// CreateCheckout creates a hosted checkout session. The reference is stored
// in the session metadata so the webhook can be correlated back to a deal.
func (c *Client) CreateCheckout(ctx context.Context, amountCents int64, productName, reference string) (*Checkout, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", c.successURL)
	form.Set("cancel_url", c.cancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", productName)
	form.Set("metadata[reference]", reference)
	form.Set("payment_intent_data[transfer_group]", reference)

	var result Checkout
	if err := c.post(ctx, "/v1/checkout/sessions", form, &result); err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &result, nil
}

// GetCheckout retrieves a checkout session.
func (c *Client) GetCheckout(ctx context.Context, sessionID string) (*Checkout, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	var result Checkout
	if err := c.send(httpReq, &result); err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}
	return &result, nil
}

// Refund refunds the payment in full.
func (c *Client) Refund(ctx context.Context, paymentRef string) (string, error) {
	form := url.Values{}
	form.Set("payment_intent", paymentRef)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/refunds", form, &result); err != nil {
		return "", fmt.Errorf("failed to refund payment: %w", err)
	}
	return result.ID, nil
}

// Transfer moves funds to the connected seller account.
func (c *Client) Transfer(ctx context.Context, amountCents int64, destination, transferGroup string) (string, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", "usd")
	form.Set("destination", destination)
	form.Set("transfer_group", transferGroup)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/transfers", form, &result); err != nil {
		return "", fmt.Errorf("failed to create transfer: %w", err)
	}
	return result.ID, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(httpReq, out)
}

func (c *Client) send(httpReq *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return fmt.Errorf("payment API error [%d]: %s (type: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
		}
		return fmt.Errorf("payment API error [%d]: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
