package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"voice-order-service/internal/models"
	"voice-order-service/internal/service/llm"
)

func testMenu() models.MenuSnapshot {
	return models.MenuSnapshot{Categories: []models.MenuCategory{
		{Category: "Pizza", Items: []models.MenuItem{
			{Name: "Pepperoni", Price: 12},
			{Name: "Margherita", Price: 10.5},
		}},
	}}
}

type stubReplier struct {
	text  string
	err   error
	delay time.Duration
	got   llm.Request
	calls int
}

func (s *stubReplier) Name() string { return "stub" }

func (s *stubReplier) GenerateReply(ctx context.Context, req llm.Request) (string, error) {
	s.calls++
	s.got = req
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func TestResolve_Proposed(t *testing.T) {
	stub := &stubReplier{text: "Great choice!"}
	r := NewResolver(stub, time.Second)

	res := r.Resolve(context.Background(), Input{
		Transcript:     "I'd like a pepperoni",
		Menu:           testMenu(),
		RestaurantName: "Tony's",
	})

	if res.Intent != Proposed || res.Item != "Pepperoni" {
		t.Fatalf("unexpected decision %+v", res.Decision)
	}
	if res.Degraded {
		t.Error("did not expect degraded")
	}
	if !strings.HasPrefix(res.Reply, "Great choice!") || !strings.Contains(res.Reply, "Pepperoni ($12.00)") {
		t.Errorf("reply = %q", res.Reply)
	}
	if stub.got.RestaurantName != "Tony's" || len(stub.got.Vocabulary) != 2 {
		t.Errorf("unexpected request %+v", stub.got)
	}
}

func TestResolve_DegradedKeepsDecision(t *testing.T) {
	r := NewResolver(&stubReplier{err: llm.ErrServiceUnavailable}, time.Second)

	res := r.Resolve(context.Background(), Input{Transcript: "pepperoni please", Menu: testMenu()})

	if res.Intent != Proposed || res.Item != "Pepperoni" {
		t.Fatalf("unexpected decision %+v", res.Decision)
	}
	if !res.Degraded || !errors.Is(res.Err, ErrResolutionDegraded) {
		t.Errorf("expected degraded, got %+v", res)
	}
	if res.Reply != ConfirmPrompt(testMenu(), "Pepperoni", 1) {
		t.Errorf("reply = %q", res.Reply)
	}
}

func TestResolve_Timeout(t *testing.T) {
	r := NewResolver(&stubReplier{text: "late", delay: time.Second}, 20*time.Millisecond)

	res := r.Resolve(context.Background(), Input{Transcript: "do you have sushi", Menu: testMenu()})

	if res.Intent != NoOp || !res.Degraded {
		t.Fatalf("expected degraded noop, got %+v", res)
	}
	if res.Reply != NotOnMenuReply(testMenu()) {
		t.Errorf("reply = %q", res.Reply)
	}
}

func TestResolve_NoReplier(t *testing.T) {
	r := NewResolver(nil, 0)

	res := r.Resolve(context.Background(), Input{Transcript: "do you have sushi", Menu: testMenu()})
	if res.Degraded {
		t.Error("templates-only resolution is not degraded")
	}
	if !strings.Contains(res.Reply, "Pepperoni, Margherita") {
		t.Errorf("reply = %q", res.Reply)
	}
}

func TestResolve_ConfirmedAndDeclinedSkipReplier(t *testing.T) {
	stub := &stubReplier{text: "hi"}
	r := NewResolver(stub, time.Second)
	pending := Pending{Item: "Pepperoni", Quantity: 1}

	res := r.Resolve(context.Background(), Input{Transcript: "yes please", Menu: testMenu(), Pending: pending})
	if res.Intent != Confirmed || res.Reply != "" {
		t.Errorf("confirmed = %+v", res)
	}

	res = r.Resolve(context.Background(), Input{Transcript: "actually no", Menu: testMenu(), Pending: pending})
	if res.Intent != Declined || res.Reply != DeclinedReply {
		t.Errorf("declined = %+v", res)
	}

	if stub.calls != 0 {
		t.Errorf("replier calls = %d, want 0", stub.calls)
	}
}

func TestResolve_UnclearWithPending(t *testing.T) {
	stub := &stubReplier{text: "Anything else?"}
	r := NewResolver(stub, time.Second)

	res := r.Resolve(context.Background(), Input{
		Transcript: "hmm",
		Menu:       testMenu(),
		Pending:    Pending{Item: "Margherita", Quantity: 2},
	})
	if res.Intent != NoOp {
		t.Fatalf("intent = %v", res.Intent)
	}
	if !strings.Contains(res.Reply, "2 Margherita ($21.00)") {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.GeneratedReply != "" || stub.calls != 0 {
		t.Errorf("replier calls = %d generated = %q, want none", stub.calls, res.GeneratedReply)
	}
	if res.Degraded {
		t.Error("skipping the replier is not degraded")
	}
}
