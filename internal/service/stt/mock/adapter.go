// Package mock provides a scripted transcriber for local runs and tests
// without cloud credentials. Each call returns the next scripted line.
package mock

import (
	"context"
	"sync"
	"time"

	"voice-order-service/internal/service/stt"
)

// ScriptedTurn is one simulated recognition result.
type ScriptedTurn struct {
	Text  string
	Err   error
	Delay time.Duration
}

// DefaultScript walks through a complete pepperoni order.
var DefaultScript = []ScriptedTurn{
	{Text: "Hi, can I get a pepperoni pizza", Delay: 50 * time.Millisecond},
	{Text: "Yes please go ahead", Delay: 50 * time.Millisecond},
}

// Transcriber implements stt.Transcriber with scripted responses.
// Once the script is exhausted it returns empty transcripts.
type Transcriber struct {
	mu     sync.Mutex
	script []ScriptedTurn
	next   int
	calls  []stt.Audio
}

// New creates a mock transcriber. With no turns it uses DefaultScript.
func New(turns ...ScriptedTurn) *Transcriber {
	if len(turns) == 0 {
		turns = DefaultScript
	}
	return &Transcriber{script: turns}
}

// FromTexts builds a script of immediate results.
func FromTexts(texts ...string) *Transcriber {
	turns := make([]ScriptedTurn, len(texts))
	for i, t := range texts {
		turns[i] = ScriptedTurn{Text: t}
	}
	return &Transcriber{script: turns}
}

// Name returns the provider label.
func (m *Transcriber) Name() string { return "mock" }

// Transcribe returns the next scripted result, honouring ctx during the
// simulated delay.
func (m *Transcriber) Transcribe(ctx context.Context, audio stt.Audio, languageHint string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, audio)
	if m.next >= len(m.script) {
		m.mu.Unlock()
		return "", nil
	}
	turn := m.script[m.next]
	m.next++
	m.mu.Unlock()

	if turn.Delay > 0 {
		t := time.NewTimer(turn.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return turn.Text, turn.Err
}

// Calls returns how many times Transcribe was invoked.
func (m *Transcriber) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
