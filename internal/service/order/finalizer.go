// Package order turns a confirmed item into a persisted order and receipt.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voice-order-service/internal/models"
	"voice-order-service/internal/observability/logging"
	"voice-order-service/internal/observability/metrics"
	"voice-order-service/internal/store"
)

var (
	// ErrPersistence wraps any failure to store the order.
	ErrPersistence = errors.New("order persistence failed")
	// ErrUnknownItem means the confirmed item is not on the session menu.
	ErrUnknownItem = errors.New("item not on menu")
)

// ReceiptStatus is shown on every receipt for a stored order.
const ReceiptStatus = "Confirmed"

// Receipt is what the caller is told after a successful order.
type Receipt struct {
	OrderID      string `json:"orderId"`
	Item         string `json:"item"`
	Quantity     int    `json:"quantity"`
	Price        string `json:"price"`
	Total        string `json:"total"`
	Status       string `json:"status"`
	ThankYouNote string `json:"thankYouNote"`
}

// EventPublisher receives order.created events.
type EventPublisher interface {
	PublishOrder(ctx context.Context, event models.OrderCreated) error
}

// FinalizeInput describes a confirmed order.
type FinalizeInput struct {
	SessionID      string
	RestaurantID   string
	RestaurantName string
	CustomerID     string
	Menu           models.MenuSnapshot
	Item           string
	Quantity       int
	Transcript     string
	AIResponse     string
}

// Finalizer persists confirmed orders.
type Finalizer struct {
	orders    store.OrderStore
	publisher EventPublisher
	metrics   *metrics.Metrics
}

// NewFinalizer creates a finalizer. publisher may be nil.
func NewFinalizer(orders store.OrderStore, publisher EventPublisher) *Finalizer {
	return &Finalizer{orders: orders, publisher: publisher, metrics: metrics.DefaultMetrics}
}

// Finalize stores the order exactly as priced on the menu and returns the
// receipt. No receipt is produced unless the store accepted the record.
func (f *Finalizer) Finalize(ctx context.Context, in FinalizeInput) (Receipt, models.OrderRecord, error) {
	item, ok := in.Menu.Lookup(in.Item)
	if !ok {
		return Receipt{}, models.OrderRecord{}, fmt.Errorf("%w: %q", ErrUnknownItem, in.Item)
	}
	qty := in.Quantity
	if qty <= 0 {
		qty = 1
	}

	record := models.NewOrderRecord(in.RestaurantID, in.CustomerID,
		[]models.OrderItem{{Name: item.Name, Price: item.Price, Quantity: qty}},
		in.Transcript, in.AIResponse)
	record.ID = uuid.NewString()

	if err := record.Validate(); err != nil {
		f.metrics.RecordOrder(0, err)
		return Receipt{}, models.OrderRecord{}, err
	}

	logger := logging.WithSession(in.SessionID, in.RestaurantID, in.CustomerID)

	if err := f.orders.CreateOrder(ctx, record); err != nil {
		f.metrics.RecordOrder(0, err)
		logger.Error().Err(err).Str("item", item.Name).Msg("Failed to persist order")
		return Receipt{}, models.OrderRecord{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	f.metrics.RecordOrder(record.Total, nil)

	logger.Info().
		Str("orderId", record.ID).
		Str("item", item.Name).
		Int("quantity", qty).
		Float64("total", record.Total).
		Msg("Order created")

	if f.publisher != nil {
		event := models.OrderCreated{
			EventType:    "order.created",
			OrderID:      record.ID,
			SessionID:    in.SessionID,
			RestaurantID: record.RestaurantID,
			CustomerID:   record.CustomerID,
			Timestamp:    time.Now().UnixMilli(),
			Items:        record.Items,
			Total:        record.Total,
		}
		if err := f.publisher.PublishOrder(ctx, event); err != nil {
			logger.Warn().Err(err).Str("orderId", record.ID).Msg("Failed to publish order event")
		}
	}

	return NewReceipt(record, in.RestaurantName), record, nil
}

// NewReceipt renders the receipt for a single-item order.
func NewReceipt(record models.OrderRecord, restaurantName string) Receipt {
	var line models.OrderItem
	if len(record.Items) > 0 {
		line = record.Items[0]
	}
	note := "Thank you for your order!"
	if restaurantName != "" {
		note = fmt.Sprintf("Thank you for ordering from %s!", restaurantName)
	}
	return Receipt{
		OrderID:      record.ID,
		Item:         line.Name,
		Quantity:     line.Quantity,
		Price:        models.FormatPrice(line.Price),
		Total:        models.FormatPrice(record.Total),
		Status:       ReceiptStatus,
		ThankYouNote: note,
	}
}

// Summary is the spoken confirmation for a receipt.
func (r Receipt) Summary() string {
	label := r.Item
	if r.Quantity > 1 {
		label = fmt.Sprintf("%d %s", r.Quantity, r.Item)
	}
	return fmt.Sprintf("Your order for %s has been placed. Your total is %s. %s", label, r.Total, r.ThankYouNote)
}
