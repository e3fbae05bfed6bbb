package dialogue

import (
	"context"
	"strings"
	"sync"
	"time"

	"voice-order-service/internal/models"
	"voice-order-service/internal/observability/metrics"
	"voice-order-service/internal/service/intent"
	"voice-order-service/internal/service/order"
)

// Channels a session can arrive on.
const (
	ChannelTestCall = "test_call"
	ChannelTwilio   = "twilio"
	ChannelLocal    = "local"
)

// Turn is one entry of a session's history.
type Turn struct {
	ID         string    `json:"id"`
	Transcript string    `json:"transcript"`
	Reply      string    `json:"reply"`
	Intent     string    `json:"intent"`
	Item       string    `json:"item,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
	At         time.Time `json:"at"`
}

// SessionParams creates a session.
type SessionParams struct {
	// ID overrides the generated session ID, e.g. with a call SID.
	ID             string
	RestaurantID   string
	RestaurantName string
	CustomerID     string
	Language       string
	Channel        string
	Menu           models.MenuSnapshot
	HistorySize    int
	// Speaker overrides the engine's speaker for this session.
	Speaker Speaker
}

// Session is one caller's conversation. The menu is fixed for its lifetime.
//
// State transitions:
//
//	GREETING → LISTENING ⇄ PROCESSING ⇄ AWAITING_CONFIRMATION
//	    any state ──Cancel/failure cap/order placed──→ TERMINATED
type Session struct {
	ID             string
	RestaurantID   string
	RestaurantName string
	CustomerID     string
	Language       string
	Channel        string
	Menu           models.MenuSnapshot
	CreatedAt      time.Time

	speaker Speaker
	turnIDs TurnIDs
	turnMu  sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.RWMutex
	state          State
	pending        intent.Pending
	lastTranscript string
	lastReply      string
	history        []Turn
	historySize    int
	failures       int
	receipt        *order.Receipt
	reason         string
	err            error
	lastActivity   time.Time
}

// NewSession creates a session in GREETING state.
func NewSession(p SessionParams) *Session {
	id := p.ID
	if id == "" {
		id = NewSessionID()
	}
	if p.HistorySize <= 0 {
		p.HistorySize = 20
	}
	if p.Channel == "" {
		p.Channel = ChannelLocal
	}
	if p.Language == "" {
		p.Language = "en-US"
	}
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	metrics.DefaultMetrics.RecordSessionStart(p.Channel)

	return &Session{
		ID:             id,
		RestaurantID:   p.RestaurantID,
		RestaurantName: p.RestaurantName,
		CustomerID:     p.CustomerID,
		Language:       p.Language,
		Channel:        p.Channel,
		Menu:           p.Menu,
		CreatedAt:      now,
		speaker:        p.Speaker,
		ctx:            ctx,
		cancel:         cancel,
		state:          StateGreeting,
		historySize:    p.HistorySize,
		lastActivity:   now,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Pending returns the item awaiting confirmation, if any.
func (s *Session) Pending() intent.Pending {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// Failures returns the consecutive failure count.
func (s *Session) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// Receipt returns the order receipt once an order has been placed.
func (s *Session) Receipt() *order.Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.receipt == nil {
		return nil
	}
	r := *s.receipt
	return &r
}

// Err returns the terminal error, if the session ended abnormally.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// TerminationReason returns why the session ended, or "".
func (s *Session) TerminationReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// LastTranscript returns the most recent caller utterance.
func (s *Session) LastTranscript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTranscript
}

// LastReply returns the most recent reply spoken.
func (s *Session) LastReply() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReply
}

// History returns a copy of the bounded turn history.
func (s *Session) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// LastActivity returns when the session last changed.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Done is closed when the session terminates.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Conversation renders the history as a caller/assistant script.
func (s *Session) Conversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var b strings.Builder
	for _, t := range s.history {
		if t.Transcript != "" {
			b.WriteString("Caller: " + t.Transcript + "\n")
		}
		if t.Reply != "" {
			b.WriteString("Assistant: " + t.Reply + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// setState moves to next unless the session already terminated.
func (s *Session) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return
	}
	s.state = next
	s.lastActivity = time.Now()
}

func (s *Session) setPending(p intent.Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p
}

// resting is the state to return to after a turn.
func (s *Session) resting() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.pending.Empty() {
		return StateAwaitingConfirmation
	}
	return StateListening
}

func (s *Session) recordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return s.failures
}

func (s *Session) resetFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
}

func (s *Session) setReceipt(r order.Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipt = &r
}

func (s *Session) appendTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Transcript != "" {
		s.lastTranscript = t.Transcript
	}
	if t.Reply != "" {
		s.lastReply = t.Reply
	}
	s.history = append(s.history, t)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.lastActivity = time.Now()
}

// terminate ends the session once; later calls are no-ops. It cancels
// everything bound to the session context.
func (s *Session) terminate(reason string, err error) bool {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	s.state = StateTerminated
	s.reason = reason
	s.err = err
	s.pending = intent.Pending{}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.cancel()
	metrics.DefaultMetrics.RecordSessionEnd(reason, time.Since(s.CreatedAt).Seconds())
	return true
}

// bind derives a context that is cancelled by either parent or the session.
func (s *Session) bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(s.ctx, func() { cancel(ErrSessionTerminated) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}
