package intent

import "testing"

var vocab = []string{"Pepperoni", "Margherita", "Garlic Knots", "Cannoli"}

func TestDecide(t *testing.T) {
	pep := Pending{Item: "Pepperoni", Quantity: 1}

	tests := []struct {
		name       string
		transcript string
		pending    Pending
		want       Decision
	}{
		{"propose item", "Hi, can I get a pepperoni pizza", Pending{}, Decision{Intent: Proposed, Item: "Pepperoni", Quantity: 1}},
		{"unknown item", "do you have sushi", Pending{}, Decision{Intent: NoOp}},
		{"yes without pending", "yes please", Pending{}, Decision{Intent: NoOp}},
		{"empty transcript", "", Pending{}, Decision{Intent: NoOp}},
		{"confirm", "Yes please go ahead", pep, Decision{Intent: Confirmed, Item: "Pepperoni", Quantity: 1}},
		{"confirm by restating", "the pepperoni", pep, Decision{Intent: Confirmed, Item: "Pepperoni", Quantity: 1}},
		{"decline", "actually no", pep, Decision{Intent: Declined, Item: "Pepperoni"}},
		{"negative wins over affirmative", "yes, no wait", pep, Decision{Intent: Declined, Item: "Pepperoni"}},
		{"switch item", "make it a margherita instead", pep, Decision{Intent: Proposed, Item: "Margherita", Quantity: 1}},
		{"unclear keeps pending", "hmm what", pep, Decision{Intent: NoOp, Item: "Pepperoni", Quantity: 1}},
		{"no inside word is not negative", "cannoli sounds good", Pending{Item: "Cannoli", Quantity: 1}, Decision{Intent: Confirmed, Item: "Cannoli", Quantity: 1}},
		{"yes inside word is not affirmative", "yesterday", pep, Decision{Intent: NoOp, Item: "Pepperoni", Quantity: 1}},
		{"curly apostrophe", "that’s right", pep, Decision{Intent: Confirmed, Item: "Pepperoni", Quantity: 1}},
		{"multi-word item", "some garlic knots", Pending{}, Decision{Intent: Proposed, Item: "Garlic Knots", Quantity: 1}},
		{"menu order wins", "margherita or pepperoni", Pending{}, Decision{Intent: Proposed, Item: "Pepperoni", Quantity: 1}},
		{"restate with quantity", "make that two pepperoni", pep, Decision{Intent: Confirmed, Item: "Pepperoni", Quantity: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.transcript, vocab, tt.pending)
			if got != tt.want {
				t.Errorf("Decide(%q) = %+v, want %+v", tt.transcript, got, tt.want)
			}
		})
	}
}

func TestDecide_Deterministic(t *testing.T) {
	first := Decide("two pepperoni please", vocab, Pending{})
	for i := 0; i < 100; i++ {
		if got := Decide("two pepperoni please", vocab, Pending{}); got != first {
			t.Fatalf("iteration %d: %+v != %+v", i, got, first)
		}
	}
}

func TestRecognize_Quantity(t *testing.T) {
	tests := []struct {
		transcript string
		wantQty    int
	}{
		{"a pepperoni", 1},
		{"two pepperoni", 2},
		{"3 pepperoni", 3},
		{"two large pepperoni", 2},
		{"a dozen cannoli", 12},
		{"pepperoni", 1},
		{"500 pepperoni", 1},
		{"I have two kids and want one pepperoni", 1},
	}

	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			_, qty := Recognize(tt.transcript, vocab)
			if qty != tt.wantQty {
				t.Errorf("quantity = %d, want %d", qty, tt.wantQty)
			}
		})
	}
}

func TestDecision_Next(t *testing.T) {
	prev := Pending{Item: "Pepperoni", Quantity: 1}

	if got := (Decision{Intent: Proposed, Item: "Cannoli", Quantity: 2}).Next(prev); got.Item != "Cannoli" || got.Quantity != 2 {
		t.Errorf("proposed next = %+v", got)
	}
	if got := (Decision{Intent: Confirmed}).Next(prev); !got.Empty() {
		t.Errorf("confirmed should clear pending, got %+v", got)
	}
	if got := (Decision{Intent: Declined}).Next(prev); !got.Empty() {
		t.Errorf("declined should clear pending, got %+v", got)
	}
	if got := (Decision{Intent: NoOp}).Next(prev); got != prev {
		t.Errorf("noop should keep pending, got %+v", got)
	}
}

func TestIntent_String(t *testing.T) {
	if Proposed.String() != "proposed" || NoOp.String() != "noop" || Intent(9).String() != "unknown(9)" {
		t.Error("unexpected intent labels")
	}
}
