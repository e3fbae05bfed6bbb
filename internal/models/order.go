package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// OrderStatus is the fulfillment status of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// ErrInvalidOrder is returned when an order record fails validation.
var ErrInvalidOrder = errors.New("invalid order")

// OrderItem is one line of an order.
type OrderItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Notes    string  `json:"notes,omitempty"`
}

// Subtotal is price times quantity.
func (i OrderItem) Subtotal() float64 {
	return i.Price * float64(i.Quantity)
}

// OrderRecord is a persisted customer order.
type OrderRecord struct {
	ID           string      `json:"id"`
	RestaurantID string      `json:"restaurantId"`
	CustomerID   string      `json:"customerNumber"`
	Items        []OrderItem `json:"items"`
	Total        float64     `json:"total"`
	Status       OrderStatus `json:"status"`
	Transcript   string      `json:"transcript"`
	AIResponse   string      `json:"aiResponse"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// NewOrderRecord builds a pending order with its total derived from items.
func NewOrderRecord(restaurantID, customerID string, items []OrderItem, transcript, aiResponse string) OrderRecord {
	for i := range items {
		if items[i].Quantity <= 0 {
			items[i].Quantity = 1
		}
	}
	return OrderRecord{
		RestaurantID: restaurantID,
		CustomerID:   customerID,
		Items:        items,
		Total:        ComputeTotal(items),
		Status:       OrderPending,
		Transcript:   transcript,
		AIResponse:   aiResponse,
		CreatedAt:    time.Now().UTC(),
	}
}

// ComputeTotal sums line subtotals, rounded to cents.
func ComputeTotal(items []OrderItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Subtotal()
	}
	return roundCents(total)
}

// Validate checks required fields and the total invariant.
func (o OrderRecord) Validate() error {
	if strings.TrimSpace(o.RestaurantID) == "" {
		return fmt.Errorf("%w: missing restaurant", ErrInvalidOrder)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for _, item := range o.Items {
		if strings.TrimSpace(item.Name) == "" || item.Quantity <= 0 || item.Price < 0 {
			return fmt.Errorf("%w: bad line item %+v", ErrInvalidOrder, item)
		}
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, o.Status)
	}
	if want := ComputeTotal(o.Items); math.Abs(o.Total-want) > 0.005 {
		return fmt.Errorf("%w: total %.2f does not match items %.2f", ErrInvalidOrder, o.Total, want)
	}
	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
