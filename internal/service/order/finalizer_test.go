package order

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voice-order-service/internal/models"
	"voice-order-service/internal/store/memory"
)

func testMenu() models.MenuSnapshot {
	return models.MenuSnapshot{Categories: []models.MenuCategory{
		{Category: "Pizza", Items: []models.MenuItem{
			{Name: "Pepperoni", Price: 12},
			{Name: "Margherita", Price: 10.5},
		}},
	}}
}

type recordingPublisher struct {
	events []models.OrderCreated
	err    error
}

func (p *recordingPublisher) PublishOrder(ctx context.Context, e models.OrderCreated) error {
	p.events = append(p.events, e)
	return p.err
}

func TestFinalize(t *testing.T) {
	tests := []struct {
		name      string
		item      string
		quantity  int
		wantTotal float64
		wantPrice string
		wantSum   string
	}{
		{"single pepperoni", "Pepperoni", 0, 12, "$12.00", "$12.00"},
		{"case insensitive", "pepperoni", 1, 12, "$12.00", "$12.00"},
		{"price from menu", "Margherita", 1, 10.5, "$10.50", "$10.50"},
		{"quantity", "Margherita", 3, 31.5, "$10.50", "$31.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			pub := &recordingPublisher{}
			f := NewFinalizer(st, pub)

			receipt, record, err := f.Finalize(context.Background(), FinalizeInput{
				SessionID:      "s1",
				RestaurantID:   "r1",
				RestaurantName: "Tony's",
				CustomerID:     "+15551234567",
				Menu:           testMenu(),
				Item:           tt.item,
				Quantity:       tt.quantity,
			})
			if err != nil {
				t.Fatalf("Finalize() error = %v", err)
			}
			if record.Total != tt.wantTotal {
				t.Errorf("total = %v, want %v", record.Total, tt.wantTotal)
			}
			if record.Status != models.OrderPending || record.ID == "" {
				t.Errorf("unexpected record %+v", record)
			}
			if receipt.Price != tt.wantPrice || receipt.Total != tt.wantSum || receipt.Status != ReceiptStatus {
				t.Errorf("unexpected receipt %+v", receipt)
			}
			if receipt.OrderID != record.ID {
				t.Error("receipt and record IDs differ")
			}

			stored, _ := st.ListByRestaurant(context.Background(), "r1", 10)
			if len(stored) != 1 {
				t.Fatalf("stored %d orders, want 1", len(stored))
			}
			if len(pub.events) != 1 || pub.events[0].OrderID != record.ID {
				t.Errorf("unexpected events %+v", pub.events)
			}
		})
	}
}

func TestFinalize_PersistenceFailure(t *testing.T) {
	st := memory.New()
	st.FailOrders = errors.New("connection reset")
	pub := &recordingPublisher{}
	f := NewFinalizer(st, pub)

	receipt, _, err := f.Finalize(context.Background(), FinalizeInput{
		RestaurantID: "r1",
		Menu:         testMenu(),
		Item:         "Pepperoni",
	})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if receipt.OrderID != "" {
		t.Error("no receipt expected on failure")
	}
	if len(pub.events) != 0 {
		t.Error("no event expected on failure")
	}
}

func TestFinalize_UnknownItem(t *testing.T) {
	f := NewFinalizer(memory.New(), nil)
	_, _, err := f.Finalize(context.Background(), FinalizeInput{RestaurantID: "r1", Menu: testMenu(), Item: "Sushi"})
	if !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
}

func TestFinalize_PublishFailureIsNotFatal(t *testing.T) {
	f := NewFinalizer(memory.New(), &recordingPublisher{err: errors.New("broker down")})
	_, _, err := f.Finalize(context.Background(), FinalizeInput{RestaurantID: "r1", Menu: testMenu(), Item: "Pepperoni"})
	if err != nil {
		t.Errorf("publish failure should not fail the order, got %v", err)
	}
}

func TestReceipt_Summary(t *testing.T) {
	r := Receipt{Item: "Pepperoni", Quantity: 2, Total: "$24.00", ThankYouNote: "Thanks!"}
	s := r.Summary()
	if !strings.Contains(s, "2 Pepperoni") || !strings.Contains(s, "$24.00") {
		t.Errorf("summary = %q", s)
	}
}
