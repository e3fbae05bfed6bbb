package events

import (
	"context"
	"errors"
	"testing"

	"voice-order-service/internal/models"
	"voice-order-service/internal/schema"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerTurns != nil || p.writerOrders != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Brokers:     []string{"localhost:9092"},
		TopicTurns:  "test.turns",
		TopicOrders: "test.orders",
		Principal:   "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicTurns != "test.turns" {
		t.Errorf("expected turns topic 'test.turns', got %s", p.topicTurns)
	}
	if p.topicOrders != "test.orders" {
		t.Errorf("expected orders topic 'test.orders', got %s", p.topicOrders)
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:     true,
		Brokers:     []string{"localhost:9092"},
		TopicTurns:  "t",
		TopicOrders: "o",
	})
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("expected enabled publisher")
	}
	if p.writerTurns.Topic != "t" || p.writerOrders.Topic != "o" {
		t.Errorf("unexpected writer topics %q %q", p.writerTurns.Topic, p.writerOrders.Topic)
	}
}

func TestPublisher_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicTurns: "t", TopicOrders: "o"})

	if err := p.PublishTurn(context.Background(), models.TurnCompleted{SessionID: "s1", Intent: "proposed"}); err != nil {
		t.Errorf("PublishTurn() error = %v", err)
	}
	err := p.PublishOrder(context.Background(), models.OrderCreated{
		OrderID:      "o1",
		RestaurantID: "r1",
		Items:        []models.OrderItem{{Name: "Pepperoni", Price: 12, Quantity: 1}},
		Total:        12,
	})
	if err != nil {
		t.Errorf("PublishOrder() error = %v", err)
	}
}

func TestPublisher_RejectsInvalidEvents(t *testing.T) {
	p := New(&Config{Enabled: false, TopicTurns: "t", TopicOrders: "o"})

	if err := p.PublishTurn(context.Background(), models.TurnCompleted{Intent: "noop"}); !errors.Is(err, schema.ErrInvalid) {
		t.Errorf("expected ErrInvalid for turn without session, got %v", err)
	}
	if err := p.PublishOrder(context.Background(), models.OrderCreated{OrderID: "o1"}); !errors.Is(err, schema.ErrInvalid) {
		t.Errorf("expected ErrInvalid for order without items, got %v", err)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.publish(context.Background(), nil, "t", "x", "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_Close_NilWriters(t *testing.T) {
	p := &Publisher{}
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
