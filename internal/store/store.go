// Package store defines persistence for restaurants and orders.
package store

import (
	"context"
	"errors"

	"voice-order-service/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrAINumberTaken is returned when another restaurant already answers
	// the AI number being saved.
	ErrAINumberTaken = errors.New("ai number already assigned to another restaurant")
)

// RestaurantStore reads and writes restaurant configuration.
type RestaurantStore interface {
	GetByUser(ctx context.Context, userID string) (*models.Restaurant, error)
	GetByID(ctx context.Context, id string) (*models.Restaurant, error)
	// GetByAINumber finds the restaurant answering the given E.164 number.
	GetByAINumber(ctx context.Context, number string) (*models.Restaurant, error)
	// UpsertByUser creates or replaces the user's restaurant and returns
	// the stored copy with ID and timestamps set. A non-empty AI number
	// owned by another user fails with ErrAINumberTaken.
	UpsertByUser(ctx context.Context, r *models.Restaurant) (*models.Restaurant, error)
}

// OrderStore persists orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, o models.OrderRecord) error
	// ListByRestaurant returns the newest orders first.
	ListByRestaurant(ctx context.Context, restaurantID string, limit int) ([]models.OrderRecord, error)
}

// Store is the combined backend injected at startup.
type Store interface {
	RestaurantStore
	OrderStore
	Ping(ctx context.Context) error
	Close()
}
