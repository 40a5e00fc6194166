// Package browser provides the client for the browser-automation sidecar.
// The sidecar drives a real marketplace UI; everything it returns is
// best-effort extraction with no correctness guarantee, and any call can
// fail with ErrSessionExpired when the upstream automation session dies.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quickflip/marketbot/internal/domain"
)

// ErrSessionExpired signals that the automation session is gone and must be
// torn down and rebuilt. It is recoverable, never fatal.
var ErrSessionExpired = errors.New("browser session expired")

// Agent starts browser sessions.
type Agent interface {
	StartSession(ctx context.Context) (Session, error)
}

// Session is one live browser session. Only one logical conversation is
// inspected at a time: the session is a serially reused, stateful resource.
type Session interface {
	Navigate(ctx context.Context, url string) error
	ObserveInbox(ctx context.Context) ([]domain.ConversationPreview, error)
	ObserveConversation(ctx context.Context) (*domain.ConversationSnapshot, error)
	// Act performs a natural-language instruction (click, type, send).
	// Best-effort: it may silently no-op.
	Act(ctx context.Context, instruction string) error
	Close(ctx context.Context) error
}

// Client talks to the browser-automation sidecar over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new sidecar client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ Agent = (*Client)(nil)

type httpSession struct {
	client    *Client
	sessionID string
}

var _ Session = (*httpSession)(nil)

// StartSession creates a new automation session on the sidecar.
func (c *Client) StartSession(ctx context.Context) (Session, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("sidecar returned empty session id")
	}
	return &httpSession{client: c, sessionID: resp.SessionID}, nil
}

func (s *httpSession) Navigate(ctx context.Context, url string) error {
	req := map[string]string{"url": url}
	return s.client.do(ctx, http.MethodPost, "/v1/sessions/"+s.sessionID+"/navigate", req, nil)
}

func (s *httpSession) ObserveInbox(ctx context.Context) ([]domain.ConversationPreview, error) {
	var resp struct {
		Conversations []domain.ConversationPreview `json:"conversations"`
	}
	err := s.client.do(ctx, http.MethodPost, "/v1/sessions/"+s.sessionID+"/observe/inbox", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (s *httpSession) ObserveConversation(ctx context.Context) (*domain.ConversationSnapshot, error) {
	var resp domain.ConversationSnapshot
	err := s.client.do(ctx, http.MethodPost, "/v1/sessions/"+s.sessionID+"/observe/conversation", nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *httpSession) Act(ctx context.Context, instruction string) error {
	req := map[string]string{"instruction": instruction}
	return s.client.do(ctx, http.MethodPost, "/v1/sessions/"+s.sessionID+"/act", req, nil)
}

func (s *httpSession) Close(ctx context.Context) error {
	return s.client.do(ctx, http.MethodDelete, "/v1/sessions/"+s.sessionID, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sidecar request failed: %w", err)
	}
	defer resp.Body.Close()

	// 410 is the sidecar's "session no longer exists" signal.
	if resp.StatusCode == http.StatusGone {
		return ErrSessionExpired
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sidecar returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("failed to decode sidecar response: %w", err)
	}
	return nil
}
