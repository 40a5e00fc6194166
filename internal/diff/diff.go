// Package diff reconciles browser-observed transcripts against the durable
// message log and emits only the genuinely new buyer messages.
//
// The source UI has no stable message identifiers, renders promotional and
// system banners as if they were chat content, and can bleed preview text
// from another buyer's thread when panels overlap. The durable log is the
// source of truth; the observed transcript is evidence to reconcile.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/quickflip/marketbot/internal/domain"
	"github.com/quickflip/marketbot/internal/match"
)

// boilerplatePatterns match known non-message UI chrome that the extractor
// sometimes reports as chat content. Matched case-insensitively as substrings.
var boilerplatePatterns = []string{
	"view listing",
	"view profile",
	"marketplace · ",
	"sent a listing",
	"you can now message",
	"rate your experience",
	"this conversation is encrypted",
	"see buying history",
}

// Hash returns the de-duplication key for a message: hex sha256 of the exact
// text. Semantics are identical to literal string membership with bounded
// memory as history grows.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// New returns the ordered subset of observed messages that are buyer-authored
// and not yet in the durable log. expectedBuyer is the conversation's buyer
// display name; seenHashes is the stored content-hash set for the
// conversation. Feeding the same transcript twice yields nothing the second
// time.
func New(observed []domain.ObservedMessage, expectedBuyer string, seenHashes map[string]bool) []domain.ObservedMessage {
	kept := make([]domain.ObservedMessage, 0, len(observed))
	for _, msg := range observed {
		text := strings.TrimSpace(msg.Text)
		if text == "" || isBoilerplate(text) {
			continue
		}
		kept = append(kept, domain.ObservedMessage{Sender: msg.Sender, Text: text, IsBuyer: msg.IsBuyer})
	}

	// Last surviving message seller-authored means the buyer said nothing
	// since our last reply; nothing to react to.
	if len(kept) == 0 || !kept[len(kept)-1].IsBuyer {
		return nil
	}

	var fresh []domain.ObservedMessage
	for _, msg := range kept {
		if !msg.IsBuyer {
			continue
		}
		// A "buyer" message from a name that doesn't match the expected buyer
		// is bleed-through from a neighboring thread, not input.
		if msg.Sender != "" && !match.SameBuyer(expectedBuyer, msg.Sender) {
			continue
		}
		if seenHashes[Hash(msg.Text)] {
			continue
		}
		fresh = append(fresh, msg)
	}
	return fresh
}

func isBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range boilerplatePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
