// Package guard gates the orchestrator's automated side effects through an
// OPA policy. Every outbound action (sending a reply, issuing a payout) is
// checked before execution.
package guard

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by Evaluate.
const (
	DecisionAllow = "allow"
	DecisionHold  = "hold"
	DecisionBlock = "block"
)

// Input describes an action about to be performed.
type Input struct {
	Action             string `json:"action"`
	ConversationStatus string `json:"conversation_status,omitempty"`
	ListingStatus      string `json:"listing_status,omitempty"`
	AmountCents        int64  `json:"amount_cents,omitempty"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.action_policy.result"),
		rego.Module("action_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the action policy.
// Returns: decision (allow, hold, block), reason, error.
func (e *Engine) Evaluate(ctx context.Context, in Input) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return DecisionAllow, "unexpected return type", nil
	}

	decision := DecisionAllow
	if s, ok := obj["decision"].(string); ok && s != "" {
		decision = s
	}
	reason, _ := obj["reason"].(string)
	return decision, reason, nil
}

// DefaultPolicy is the default action policy. PayoutHoldLimitCents is
// substituted in by the caller via fmt.Sprintf.
const DefaultPolicy = `
package action_policy

default result = {"decision": "allow", "reason": "default"}

# Never message a buyer on a conversation that already completed a sale.
result = {"decision": "block", "reason": "conversation already sold"} {
	input.action == "reply.send"
	input.conversation_status == "sold"
}

# Never send a checkout link for a listing that is no longer active.
result = {"decision": "block", "reason": "listing not active"} {
	input.action == "checkout.create"
	input.listing_status != "active"
}

# Large payouts wait for a human.
result = {"decision": "hold", "reason": "payout above hold limit"} {
	input.action == "payout.transfer"
	input.amount_cents > %d
}
`
