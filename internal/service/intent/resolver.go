package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-order-service/internal/models"
	"voice-order-service/internal/observability/metrics"
	"voice-order-service/internal/service/llm"
)

// ErrResolutionDegraded marks a turn whose reply fell back to the
// deterministic template. The decision itself is never affected.
var ErrResolutionDegraded = errors.New("intent resolution degraded")

// DefaultTimeout bounds the reply service call.
const DefaultTimeout = 30 * time.Second

// Input is everything a turn resolution needs.
type Input struct {
	Transcript     string
	Menu           models.MenuSnapshot
	Pending        Pending
	RestaurantName string
}

// Resolution is the decision for a turn plus the text to speak.
type Resolution struct {
	Decision
	// Reply is what the caller hears next.
	Reply string
	// GeneratedReply is the raw advisory text, empty when unused or degraded.
	GeneratedReply string
	Degraded       bool
	Err            error
}

// Resolver combines Decide with an optional reply service.
type Resolver struct {
	replier llm.Replier
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewResolver creates a resolver. A nil replier means templates only.
func NewResolver(r llm.Replier, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{replier: r, timeout: timeout, metrics: metrics.DefaultMetrics}
}

// Resolve decides the intent and builds the reply. It never fails; a
// reply service error is reported through Degraded and Err.
func (r *Resolver) Resolve(ctx context.Context, in Input) Resolution {
	vocab := in.Menu.Vocabulary()
	res := Resolution{Decision: Decide(in.Transcript, vocab, in.Pending)}

	switch res.Intent {
	case Proposed:
		res.Reply = ConfirmPrompt(in.Menu, res.Item, res.Quantity)
	case Declined:
		res.Reply = DeclinedReply
	case Confirmed:
		// The final reply depends on whether the order persists.
		return res
	default:
		if !in.Pending.Empty() {
			res.Reply = RepeatConfirmPrompt(in.Menu, in.Pending.Item, in.Pending.Quantity)
		} else {
			res.Reply = NotOnMenuReply(in.Menu)
		}
	}

	// A pending item is always re-read from the template, so the reply
	// service has nothing to add.
	if r.replier == nil || res.Intent == Declined || (res.Intent == NoOp && !in.Pending.Empty()) {
		return res
	}

	generated, err := r.generate(ctx, in, vocab)
	if err != nil {
		res.Degraded = true
		res.Err = fmt.Errorf("%w: %v", ErrResolutionDegraded, err)
		r.metrics.RecordDegradedReply()
		return res
	}
	res.GeneratedReply = generated

	if res.Intent == Proposed {
		res.Reply = generated + " " + res.Reply
	} else {
		res.Reply = generated
	}
	return res
}

func (r *Resolver) generate(ctx context.Context, in Input, vocab []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	text, err := r.replier.GenerateReply(ctx, llm.Request{
		Vocabulary:     vocab,
		Transcript:     in.Transcript,
		RestaurantName: in.RestaurantName,
		PendingItem:    in.Pending.Item,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyReply
	}
	return text, nil
}

// DeclinedReply is spoken after the caller turns down the pending item.
const DeclinedReply = "No problem, I won't add that. What else would you like?"

// ConfirmPrompt asks the caller to confirm a proposed item.
func ConfirmPrompt(menu models.MenuSnapshot, item string, qty int) string {
	return fmt.Sprintf("Would you like me to place an order for %s? Please say yes to confirm.", describe(menu, item, qty))
}

// RepeatConfirmPrompt re-asks when the caller's answer was unclear.
func RepeatConfirmPrompt(menu models.MenuSnapshot, item string, qty int) string {
	return fmt.Sprintf("Sorry, I didn't catch that. Should I place the order for %s? Please say yes or no.", describe(menu, item, qty))
}

// NotOnMenuReply is the fallback when nothing on the menu was recognized.
func NotOnMenuReply(menu models.MenuSnapshot) string {
	vocab := menu.Vocabulary()
	if len(vocab) == 0 {
		return "Sorry, I couldn't find that on our menu. What would you like to order?"
	}
	return fmt.Sprintf("Sorry, I couldn't find that on our menu. We have %s. What would you like to order?",
		strings.Join(vocab, ", "))
}

func describe(menu models.MenuSnapshot, item string, qty int) string {
	if qty <= 0 {
		qty = 1
	}
	label := item
	if qty > 1 {
		label = fmt.Sprintf("%d %s", qty, item)
	}
	if mi, ok := menu.Lookup(item); ok {
		return fmt.Sprintf("%s (%s)", label, models.FormatPrice(mi.Price*float64(qty)))
	}
	return label
}
