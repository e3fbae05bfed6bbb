// Package intent decides what a caller's utterance means for the order.
// Decide is deterministic; the language model only supplies reply text.
package intent

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Intent is the outcome of one turn.
type Intent int

const (
	NoOp Intent = iota
	Proposed
	Confirmed
	Declined
)

// String returns the metrics/event label for the intent.
func (i Intent) String() string {
	switch i {
	case NoOp:
		return "noop"
	case Proposed:
		return "proposed"
	case Confirmed:
		return "confirmed"
	case Declined:
		return "declined"
	default:
		return fmt.Sprintf("unknown(%d)", int(i))
	}
}

// Pending is an item awaiting confirmation. The zero value means none.
type Pending struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

// Empty reports whether nothing is pending.
func (p Pending) Empty() bool { return p.Item == "" }

// Decision is the deterministic result of a turn.
type Decision struct {
	Intent   Intent
	Item     string
	Quantity int
}

// Next returns the pending state after applying d.
func (d Decision) Next(prev Pending) Pending {
	switch d.Intent {
	case Proposed:
		return Pending{Item: d.Item, Quantity: d.Quantity}
	case Confirmed, Declined:
		return Pending{}
	default:
		return prev
	}
}

// Affirmative and Negative are matched as whole words against the
// normalized transcript.
var (
	Affirmative = []string{
		"yes", "yeah", "yep", "yup", "sure", "confirm", "confirmed", "correct",
		"ok", "okay", "go ahead", "place the order", "place my order",
		"place it", "that's right", "sounds good",
	}
	Negative = []string{
		"no", "nope", "nah", "not now", "cancel", "never mind", "nevermind",
		"don't", "do not",
	}
)

const maxQuantity = 99

// Decide applies the decision table:
//
//	pending  recognized  phrase  -> intent
//	none     none        -          NoOp
//	none     X           -          Proposed(X)
//	X        Y != X      -          Proposed(Y)
//	X        -           negative   Declined
//	X        X or none   yes        Confirmed(X)
//	X        X           -          Confirmed(X)
//	X        none        none       NoOp (X stays pending)
func Decide(transcript string, vocab []string, pending Pending) Decision {
	item, qty := Recognize(transcript, vocab)

	if pending.Empty() {
		if item == "" {
			return Decision{Intent: NoOp}
		}
		return Decision{Intent: Proposed, Item: item, Quantity: qty}
	}

	if item != "" && !strings.EqualFold(item, pending.Item) {
		return Decision{Intent: Proposed, Item: item, Quantity: qty}
	}

	words := normalize(transcript)
	if containsPhrase(words, Negative) {
		return Decision{Intent: Declined, Item: pending.Item}
	}

	if item != "" || containsPhrase(words, Affirmative) {
		quantity := pending.Quantity
		if item != "" && qty > 1 {
			quantity = qty
		}
		if quantity <= 0 {
			quantity = 1
		}
		return Decision{Intent: Confirmed, Item: pending.Item, Quantity: quantity}
	}

	return Decision{Intent: NoOp, Item: pending.Item, Quantity: pending.Quantity}
}

// Recognize returns the first vocabulary entry, in menu order, that occurs
// as a case-insensitive substring of the transcript, plus the quantity
// spoken right before it (default 1).
func Recognize(transcript string, vocab []string) (string, int) {
	lower := strings.ToLower(transcript)
	for _, name := range vocab {
		needle := strings.ToLower(strings.TrimSpace(name))
		if needle == "" {
			continue
		}
		if idx := strings.Index(lower, needle); idx >= 0 {
			return name, quantityBefore(lower[:idx])
		}
	}
	return "", 0
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "single": 1,
	"two": 2, "couple": 2, "pair": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "dozen": 12,
}

// quantityBefore looks at the two words preceding an item mention, so
// "two large pepperoni" and "3 pepperoni" both parse.
func quantityBefore(prefix string) int {
	tokens := strings.Fields(strings.Join(normalize(prefix), " "))
	for i := len(tokens) - 1; i >= 0 && i >= len(tokens)-2; i-- {
		tok := tokens[i]
		if n, err := strconv.Atoi(tok); err == nil {
			if n >= 1 && n <= maxQuantity {
				return n
			}
			return 1
		}
		if n, ok := numberWords[tok]; ok {
			return n
		}
	}
	return 1
}

// normalize lowercases and splits into words, keeping apostrophes.
func normalize(s string) []string {
	s = strings.ToLower(strings.NewReplacer("’", "'", "‘", "'").Replace(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
}

func containsPhrase(words []string, phrases []string) bool {
	for _, phrase := range phrases {
		pw := strings.Fields(phrase)
		if len(pw) == 0 || len(pw) > len(words) {
			continue
		}
		for i := 0; i+len(pw) <= len(words); i++ {
			match := true
			for j := range pw {
				if words[i+j] != pw[j] {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
	}
	return false
}
