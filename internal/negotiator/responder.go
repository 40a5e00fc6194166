package negotiator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/quickflip/marketbot/internal/adapter/llm"
	"github.com/quickflip/marketbot/internal/domain"
)

// Responder generates negotiation replies via an LLM.
type Responder struct {
	client llm.LLMClient
	model  string
}

// NewResponder creates a new Responder.
func NewResponder(client llm.LLMClient, model string) *Responder {
	return &Responder{client: client, model: model}
}

// Decide generates a reply for the new buyer messages given the conversation
// so far. History must be ordered oldest first; newTexts are the buyer
// messages not yet responded to and must not also appear in history.
func (r *Responder) Decide(ctx context.Context, in PromptInput, history []domain.Message, newTexts []string) (*domain.Decision, error) {
	if len(newTexts) == 0 {
		return nil, fmt.Errorf("no new buyer messages to respond to")
	}

	messages := []llm.ChatMessage{
		{Role: "system", Content: BuildSystemPrompt(in)},
	}
	for _, msg := range history {
		role := "assistant"
		if msg.Role == domain.RoleBuyer {
			role = "user"
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, llm.ChatMessage{
		Role:    "user",
		Content: "NEW MESSAGES:\n" + strings.Join(newTexts, "\n"),
	})

	temperature := 0.7
	maxTokens := 256
	resp, err := r.client.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return ParseDecision(resp.Choices[0].Message.Content), nil
}

// ParseDecision parses the model's JSON reply. Markdown code fences are
// stripped first. A reply that is not valid JSON degrades to a plain message
// with no deal signal rather than an error, so one malformed completion
// never advances deal state.
func ParseDecision(raw string) *domain.Decision {
	raw = strings.TrimSpace(raw)
	cleaned := stripFences(raw)

	var d domain.Decision
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		log.Printf("WARN: failed to parse negotiation JSON, using raw text: %.100s", raw)
		return &domain.Decision{Reply: raw, DealStatus: domain.DealStatusNone}
	}
	if d.DealStatus == "" {
		d.DealStatus = domain.DealStatusNone
	}
	if !d.DealStatus.Valid() {
		log.Printf("WARN: unknown deal_status %q, treating as none", d.DealStatus)
		d.DealStatus = domain.DealStatusNone
	}
	if d.Reply == "" {
		d.Reply = raw
	}
	return &d
}

func stripFences(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
		raw = raw[idx+1:]
	} else {
		raw = raw[3:]
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
