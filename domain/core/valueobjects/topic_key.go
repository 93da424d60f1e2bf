package valueobjects

import (
	"strings"
	"unicode"

	pkgerrors "topicgraph/pkg/errors"
)

// TopicKey is the canonical, normalized identity of a topic.
// Two raw labels that normalize to the same key are the same topic.
type TopicKey string

// stopWords are dropped from topic labels unless nothing else would remain
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "from": {}, "about": {}, "as": {}, "into": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"being": {}, "have": {}, "has": {}, "had": {}, "do": {}, "does": {},
	"did": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "it": {}, "its": {},
}

// Normalize canonicalizes a raw topic label.
//
// The label is lower-cased, every rune that is not a letter, digit or
// whitespace is removed, whitespace runs collapse to a single space and the
// ends are trimmed. Stop words are then removed, unless every token is a
// stop word, in which case the label is kept as is. Normalize is idempotent.
func Normalize(raw string) TopicKey {
	lowered := strings.ToLower(raw)

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, lowered)

	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return ""
	}

	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopWords[tok]; !stop {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		kept = tokens
	}

	return TopicKey(strings.Join(kept, " "))
}

// NewTopicKey normalizes raw and rejects labels with no usable content
func NewTopicKey(raw string) (TopicKey, error) {
	key := Normalize(raw)
	if key.IsEmpty() {
		return "", pkgerrors.NewValidationError("topic label has no alphanumeric content")
	}
	return key, nil
}

// String returns the key as a plain string
func (k TopicKey) String() string {
	return string(k)
}

// IsEmpty reports whether the key has no content
func (k TopicKey) IsEmpty() bool {
	return k == ""
}

// Tokens splits the key on whitespace
func (k TopicKey) Tokens() []string {
	return strings.Fields(string(k))
}

// Jaccard returns |A ∩ B| / |A ∪ B| over the whitespace-separated token sets of two keys.
func Jaccard(a, b TopicKey) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection

	return float64(intersection) / float64(union)
}

func tokenSet(k TopicKey) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range k.Tokens() {
		set[tok] = struct{}{}
	}
	return set
}
