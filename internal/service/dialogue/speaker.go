package dialogue

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Speaker renders a reply to the caller. Implementations must return
// promptly once ctx is cancelled.
type Speaker interface {
	Speak(ctx context.Context, text, languageTag string) error
}

// Discard drops replies. Transports that return the reply in their own
// response use it.
var Discard Speaker = discard{}

type discard struct{}

func (discard) Speak(ctx context.Context, _, _ string) error { return ctx.Err() }

// ReplyCollector keeps replies as text, for transports that return the
// reply in their own response (HTTP, TwiML).
type ReplyCollector struct {
	mu      sync.Mutex
	replies []string
}

// NewReplyCollector creates an empty collector.
func NewReplyCollector() *ReplyCollector {
	return &ReplyCollector{}
}

func (c *ReplyCollector) Speak(ctx context.Context, text, languageTag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	return nil
}

// Replies returns everything spoken so far.
func (c *ReplyCollector) Replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.replies...)
}

// Last returns the latest reply.
func (c *ReplyCollector) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return ""
	}
	return c.replies[len(c.replies)-1]
}

// ConsoleSpeaker prints replies and optionally holds for roughly the time
// the words would take to say aloud.
type ConsoleSpeaker struct {
	mu             sync.Mutex
	w              io.Writer
	wordsPerMinute int
}

// NewConsoleSpeaker writes to w. wordsPerMinute 0 disables pacing.
func NewConsoleSpeaker(w io.Writer, wordsPerMinute int) *ConsoleSpeaker {
	return &ConsoleSpeaker{w: w, wordsPerMinute: wordsPerMinute}
}

func (c *ConsoleSpeaker) Speak(ctx context.Context, text, languageTag string) error {
	c.mu.Lock()
	_, err := fmt.Fprintf(c.w, "assistant [%s]: %s\n", languageTag, text)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if c.wordsPerMinute <= 0 {
		return ctx.Err()
	}

	words := len(strings.Fields(text))
	d := time.Duration(words) * time.Minute / time.Duration(c.wordsPerMinute)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
