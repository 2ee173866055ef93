package cardhash

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/drillhash/internal/domain"
)

// normalize cleans one field of a card before hashing: lowercase, trimmed,
// with line endings normalized.
func normalize(part string) string {
	p := strings.ToLower(part)
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\r\n", "\n")
	return p
}

// join concatenates normalized fields with a newline so that neighbouring
// fields can never run together and collide ("question"+"answer" vs
// "questionanswer").
func join(parts ...string) string {
	cleaned := make([]string, len(parts))
	for i, p := range parts {
		cleaned[i] = normalize(p)
	}
	return strings.Join(cleaned, "\n")
}

// Sum returns the identity of a card as a SHA-256 hex digest over the
// normalized (deck, kind, front, back) tuple. Identical source text always
// yields the same digest; any visible edit, a deck rename or a kind change
// yields a new one.
func Sum(deck string, kind domain.CardKind, front, back string) string {
	digest := sha256.Sum256([]byte(join(deck, kind.String(), front, back)))
	return fmt.Sprintf("%x", digest)
}

// Family returns the digest shared by all sibling cards produced from one
// cloze block, derived from the block's raw text rather than any single
// card's sides.
func Family(deck string, kind domain.CardKind, block string) string {
	digest := sha256.Sum256([]byte(join(deck, kind.String(), block)))
	return fmt.Sprintf("%x", digest)
}
