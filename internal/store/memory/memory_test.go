package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-order-service/internal/models"
	"voice-order-service/internal/store"
)

func TestStore_UpsertByUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.UpsertByUser(ctx, &models.Restaurant{UserID: "u1", Name: "Tony's", AINumber: "+15550001111"})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("expected ID and CreatedAt, got %+v", first)
	}

	second, err := s.UpsertByUser(ctx, &models.Restaurant{UserID: "u1", Name: "Tony's Pizza"})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert changed ID: %s -> %s", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("upsert should keep CreatedAt")
	}

	got, err := s.GetByUser(ctx, "u1")
	if err != nil || got.Name != "Tony's Pizza" {
		t.Errorf("GetByUser() = %+v, %v", got, err)
	}
	if _, err := s.GetByAINumber(ctx, "+15550001111"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("old AI number should no longer resolve, got %v", err)
	}
}

func TestStore_AINumberIsUnique(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner, err := s.UpsertByUser(ctx, &models.Restaurant{UserID: "u1", Name: "Tony's", AINumber: "+15550001111"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.UpsertByUser(ctx, &models.Restaurant{UserID: "u2", Name: "Other Place", AINumber: "+15550001111"}); !errors.Is(err, store.ErrAINumberTaken) {
		t.Fatalf("err = %v, want ErrAINumberTaken", err)
	}
	if _, err := s.GetByUser(ctx, "u2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("rejected restaurant was stored, err = %v", err)
	}
	if _, err := s.UpsertByUser(ctx, &models.Restaurant{UserID: "u1", Name: "Tony's Pizza", AINumber: "+15550001111"}); err != nil {
		t.Errorf("owner re-saving its number: %v", err)
	}
	if _, err := s.UpsertByUser(ctx, &models.Restaurant{UserID: "u3", Name: "No Number Yet"}); err != nil {
		t.Errorf("empty AI number: %v", err)
	}

	for i := 0; i < 50; i++ {
		got, err := s.GetByAINumber(ctx, "+15550001111")
		if err != nil || got.ID != owner.ID {
			t.Fatalf("GetByAINumber() = %+v, %v, want %s", got, err, owner.ID)
		}
	}
}

func TestStore_Lookups(t *testing.T) {
	s := New()
	ctx := context.Background()
	r, _ := s.UpsertByUser(ctx, &models.Restaurant{UserID: "u1", AINumber: "+15550001111"})

	tests := []struct {
		name    string
		get     func() (*models.Restaurant, error)
		wantErr error
	}{
		{"by id", func() (*models.Restaurant, error) { return s.GetByID(ctx, r.ID) }, nil},
		{"by ai number", func() (*models.Restaurant, error) { return s.GetByAINumber(ctx, "+15550001111") }, nil},
		{"unknown id", func() (*models.Restaurant, error) { return s.GetByID(ctx, "nope") }, store.ErrNotFound},
		{"unknown user", func() (*models.Restaurant, error) { return s.GetByUser(ctx, "u2") }, store.ErrNotFound},
		{"unknown number", func() (*models.Restaurant, error) { return s.GetByAINumber(ctx, "+1999") }, store.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.get()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got.ID != r.ID {
				t.Errorf("got ID %s, want %s", got.ID, r.ID)
			}
		})
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	r, _ := s.UpsertByUser(ctx, &models.Restaurant{UserID: "u1", Menu: []models.MenuItem{{Name: "Pepperoni", Price: 12}}})

	r.Menu[0].Price = 99
	got, _ := s.GetByID(ctx, r.ID)
	if got.Menu[0].Price != 12 {
		t.Error("caller mutation leaked into store")
	}
}

func TestStore_Orders(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		o := models.OrderRecord{ID: string(rune('a' + i)), RestaurantID: "r1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	s.CreateOrder(ctx, models.OrderRecord{ID: "other", RestaurantID: "r2", CreatedAt: base})

	got, err := s.ListByRestaurant(ctx, "r1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "e" || got[2].ID != "c" {
		t.Errorf("unexpected order list %+v", got)
	}

	s.FailOrders = errors.New("disk full")
	if err := s.CreateOrder(ctx, models.OrderRecord{RestaurantID: "r1"}); err == nil {
		t.Error("expected injected failure")
	}
}
