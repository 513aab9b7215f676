// Package chain implements emoji chain detection for the StarCode system.
// A chain is an ordered run of two or more emoji treated as a single semantic
// unit. Chains are identified by their concatenated emoji sequence, with
// duplicates preserved for reaction-derived chains.
package chain

import (
	"strings"

	"github.com/rivo/uniseg"
)

// Key identifies a registered or pending chain. It is the concatenation of
// the chain's emoji tokens in the order they appeared.
type Key string

// TrackingIndicator marks messages the engine has already picked up. It is
// excluded when deriving chain keys from reactions.
const TrackingIndicator = "✨"

// MinChainLength is the minimum number of emoji required for a sequence to
// acquire chain identity. Single emoji never form a chain.
const MinChainLength = 2

// Reaction is one platform-reported reaction entry: an emoji and how many
// users added it. Order follows the platform-reported reaction order.
type Reaction struct {
	Emoji string
	Count int
}

// token is an extracted emoji with its byte offsets in the source text.
type token struct {
	emoji      string
	start, end int
}

// ExtractEmoji returns every emoji in text in order of appearance. Multi-rune
// emoji (ZWJ sequences, skin tones, flags) are returned as single tokens.
func ExtractEmoji(text string) []string {
	toks := scan(text)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.emoji)
	}
	return out
}

// ContiguousChains returns every run of two or more textually adjacent emoji
// in text. A run breaks wherever the next emoji does not start exactly where
// the previous one ended. Texts with no qualifying run yield nil.
func ContiguousChains(text string) [][]string {
	toks := scan(text)

	var chains [][]string
	var current []string
	lastEnd := -1
	for _, t := range toks {
		if lastEnd >= 0 && t.start == lastEnd {
			current = append(current, t.emoji)
		} else {
			if len(current) >= MinChainLength {
				chains = append(chains, current)
			}
			current = []string{t.emoji}
		}
		lastEnd = t.end
	}
	if len(current) >= MinChainLength {
		chains = append(chains, current)
	}
	return chains
}

// ReactionKey derives a chain key from a message's reactions, preserving the
// platform-reported order and duplicate counts. The tracking indicator is
// skipped. Returns the empty key when fewer than MinChainLength emoji remain.
func ReactionKey(reactions []Reaction) Key {
	tokens := ReactionTokens(reactions)
	if len(tokens) < MinChainLength {
		return ""
	}
	return KeyOf(tokens)
}

// ReactionTokens expands reactions into an ordered emoji list with duplicates
// preserved, excluding the tracking indicator.
func ReactionTokens(reactions []Reaction) []string {
	var tokens []string
	for _, r := range reactions {
		if r.Emoji == TrackingIndicator {
			continue
		}
		for i := 0; i < r.Count; i++ {
			tokens = append(tokens, r.Emoji)
		}
	}
	return tokens
}

// KeyOf joins an ordered emoji token list into a chain key.
func KeyOf(tokens []string) Key {
	return Key(strings.Join(tokens, ""))
}

// Tokens splits a key back into its emoji tokens.
func (k Key) Tokens() []string {
	return ExtractEmoji(string(k))
}

// Valid reports whether the key derives from at least MinChainLength emoji.
func (k Key) Valid() bool {
	return len(k.Tokens()) >= MinChainLength
}

// ParseKey extracts a chain key from free-form text. It fails with
// ErrInvalidChain when the text holds fewer than two emoji.
func ParseKey(text string) (Key, error) {
	tokens := ExtractEmoji(text)
	if len(tokens) < MinChainLength {
		return "", ErrInvalidChain
	}
	return KeyOf(tokens), nil
}

// ParseStrict extracts a chain key from text that must consist of emoji only
// (surrounding whitespace allowed). Used for manual pattern registration,
// where stray characters invalidate the submission.
func ParseStrict(text string) (Key, error) {
	tokens := ExtractEmoji(text)
	if len(tokens) < MinChainLength {
		return "", ErrInvalidChain
	}
	if strings.TrimSpace(text) != string(KeyOf(tokens)) {
		return "", ErrInvalidChain
	}
	return KeyOf(tokens), nil
}

// scan walks text grapheme cluster by grapheme cluster and collects emoji
// tokens with their byte offsets.
func scan(text string) []token {
	var toks []token
	state := -1
	rest := text
	offset := 0
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.StepString(rest, state)
		end := offset + len(cluster)
		if isEmojiCluster(cluster) {
			toks = append(toks, token{emoji: cluster, start: offset, end: end})
		}
		offset = end
	}
	return toks
}

// isEmojiCluster reports whether a grapheme cluster is an emoji token. The
// leading rune decides; variation selectors and ZWJ joins ride along inside
// the cluster.
func isEmojiCluster(cluster string) bool {
	for _, r := range cluster {
		return isEmojiRune(r)
	}
	return false
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1F5FF: // symbols & pictographs
		return true
	case r >= 0x1F600 && r <= 0x1F64F: // emoticons
		return true
	case r >= 0x1F680 && r <= 0x1F6FF: // transport & map
		return true
	case r >= 0x1F900 && r <= 0x1F9FF: // supplemental symbols
		return true
	case r >= 0x1FA70 && r <= 0x1FAFF: // symbols extended-A
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2B00 && r <= 0x2B55: // arrows, stars, shapes
		return true
	case r >= 0x2190 && r <= 0x21FF: // arrows
		return true
	case r >= 0x23E9 && r <= 0x23FA: // media controls
		return true
	case r == 0x231A || r == 0x231B || r == 0x23CF:
		return true
	case r == 0x3030 || r == 0x2B50 || r == 0x2B55:
		return true
	case r >= 0x2640 && r <= 0x2642:
		return true
	case r == 0x200D || r == 0xFE0F:
		return true
	}
	return false
}
