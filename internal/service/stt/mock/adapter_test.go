package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-order-service/internal/service/stt"
)

func TestTranscriber_FollowsScript(t *testing.T) {
	m := FromTexts("one", "two")
	ctx := context.Background()

	for _, want := range []string{"one", "two", "", ""} {
		got, err := m.Transcribe(ctx, stt.Audio{}, "")
		if err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if m.Calls() != 4 {
		t.Errorf("calls = %d, want 4", m.Calls())
	}
}

func TestTranscriber_ScriptedError(t *testing.T) {
	m := New(ScriptedTurn{Err: stt.ErrServiceUnavailable}, ScriptedTurn{Text: "ok"})

	if _, err := m.Transcribe(context.Background(), stt.Audio{}, ""); !errors.Is(err, stt.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
	if got, _ := m.Transcribe(context.Background(), stt.Audio{}, ""); got != "ok" {
		t.Errorf("got %q, want ok", got)
	}
}

func TestTranscriber_DelayHonoursContext(t *testing.T) {
	m := New(ScriptedTurn{Text: "late", Delay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Transcribe(ctx, stt.Audio{}, "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestDefaultScript(t *testing.T) {
	m := New()
	got, err := m.Transcribe(context.Background(), stt.Audio{}, "")
	if err != nil || got == "" {
		t.Errorf("expected first default line, got %q, %v", got, err)
	}
}
