// Package memory is an in-process store for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-order-service/internal/models"
	"voice-order-service/internal/store"
)

// Store keeps restaurants and orders in maps.
type Store struct {
	mu          sync.RWMutex
	restaurants map[string]*models.Restaurant // by ID
	byUser      map[string]string
	orders      map[string][]models.OrderRecord // by restaurant ID

	// FailOrders makes CreateOrder fail, for exercising persistence errors.
	FailOrders error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		restaurants: make(map[string]*models.Restaurant),
		byUser:      make(map[string]string),
		orders:      make(map[string][]models.OrderRecord),
	}
}

func clone(r *models.Restaurant) *models.Restaurant {
	c := *r
	c.Locations = append([]string(nil), r.Locations...)
	c.Menu = append([]models.MenuItem(nil), r.Menu...)
	c.Deals = append([]models.Deal(nil), r.Deals...)
	return &c
}

func (s *Store) GetByUser(ctx context.Context, userID string) (*models.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(s.restaurants[id]), nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.restaurants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(r), nil
}

func (s *Store) GetByAINumber(ctx context.Context, number string) (*models.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.restaurants {
		if r.AINumber != "" && r.AINumber == number {
			return clone(r), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpsertByUser(ctx context.Context, r *models.Restaurant) (*models.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.AINumber != "" {
		for _, other := range s.restaurants {
			if other.AINumber == r.AINumber && other.UserID != r.UserID {
				return nil, store.ErrAINumberTaken
			}
		}
	}

	now := time.Now().UTC()
	c := clone(r)
	if id, ok := s.byUser[r.UserID]; ok {
		c.ID = id
		c.CreatedAt = s.restaurants[id].CreatedAt
	} else {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt = now
		s.byUser[r.UserID] = c.ID
	}
	c.UpdatedAt = now
	s.restaurants[c.ID] = c
	return clone(c), nil
}

func (s *Store) CreateOrder(ctx context.Context, o models.OrderRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOrders != nil {
		return s.FailOrders
	}
	o.Items = append([]models.OrderItem(nil), o.Items...)
	s.orders[o.RestaurantID] = append(s.orders[o.RestaurantID], o)
	return nil
}

func (s *Store) ListByRestaurant(ctx context.Context, restaurantID string, limit int) ([]models.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.orders[restaurantID]
	out := make([]models.OrderRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}
