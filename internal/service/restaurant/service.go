// Package restaurant manages restaurant setup and resolves restaurants for
// incoming calls.
package restaurant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"voice-order-service/internal/models"
	"voice-order-service/internal/observability/logging"
	"voice-order-service/internal/store"
)

var (
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrNoMenu             = errors.New("restaurant has no menu")
	ErrInvalidSetup       = errors.New("invalid setup")
	ErrAINumberTaken      = errors.New("ai number is already in use by another restaurant")
)

// SetupInput is the wizard payload. The menu arrives grouped by category.
type SetupInput struct {
	Name             string                `json:"name"`
	Locations        []string              `json:"locations"`
	OwnerName        string                `json:"ownerName"`
	RestaurantNumber string                `json:"restaurantNumber"`
	AINumber         string                `json:"aiNumber"`
	POSSystem        string                `json:"posSystem"`
	Menu             []models.MenuCategory `json:"menu"`
	Deals            []models.Deal         `json:"deals"`
	Language         string                `json:"language"`
	Voice            string                `json:"voice"`
	Accent           string                `json:"accent"`
	SetupComplete    bool                  `json:"setupComplete"`
	Step             int                   `json:"step"`
}

// SetupSummary is the restaurant as shown by the setup check.
type SetupSummary struct {
	Name             string                `json:"name"`
	Locations        []string              `json:"locations"`
	OwnerName        string                `json:"ownerName"`
	RestaurantNumber string                `json:"restaurantNumber"`
	AINumber         string                `json:"aiNumber"`
	POSSystem        string                `json:"posSystem,omitempty"`
	Menu             []models.MenuCategory `json:"menu"`
	Deals            []models.Deal         `json:"deals"`
	MenuCount        int                   `json:"menuCount"`
	DealsCount       int                   `json:"dealsCount"`
}

// SetupStatus reports wizard progress.
type SetupStatus struct {
	Complete   bool          `json:"complete"`
	Step       int           `json:"step"`
	Restaurant *SetupSummary `json:"restaurant,omitempty"`
}

// Service implements restaurant setup and lookup.
type Service struct {
	store store.RestaurantStore
}

// NewService creates a service.
func NewService(s store.RestaurantStore) *Service {
	return &Service{store: s}
}

// SaveSetup upserts the user's restaurant. Menu items without a category
// are filed under "Uncategorized"; malformed items are rejected.
func (s *Service) SaveSetup(ctx context.Context, userID string, in SetupInput) (*models.Restaurant, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidSetup)
	}

	menu, err := normalizeMenu(in.Menu)
	if err != nil {
		return nil, err
	}
	for i, d := range in.Deals {
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("%w: deal %d has no name", ErrInvalidSetup, i)
		}
	}

	r := &models.Restaurant{
		UserID:           userID,
		Name:             strings.TrimSpace(in.Name),
		Locations:        trimAll(in.Locations),
		OwnerName:        strings.TrimSpace(in.OwnerName),
		RestaurantNumber: NormalizePhone(in.RestaurantNumber),
		AINumber:         NormalizePhone(in.AINumber),
		POSSystem:        in.POSSystem,
		Menu:             menu,
		Deals:            in.Deals,
		Language:         in.Language,
		Voice:            in.Voice,
		Accent:           in.Accent,
		Step:             in.Step,
		SetupComplete:    in.SetupComplete,
	}
	if r.Step <= 0 {
		r.Step = detectStep(r)
	}

	saved, err := s.store.UpsertByUser(ctx, r)
	if errors.Is(err, store.ErrAINumberTaken) {
		return nil, fmt.Errorf("%w: %s", ErrAINumberTaken, r.AINumber)
	}
	if err != nil {
		return nil, fmt.Errorf("save restaurant: %w", err)
	}

	logger := logging.WithRestaurant(saved.ID)
	logger.Info().
		Str("userId", userID).
		Int("menuItems", len(saved.Menu)).
		Int("step", saved.Step).
		Bool("setupComplete", saved.SetupComplete).
		Msg("Restaurant setup saved")
	return saved, nil
}

// CheckSetup reports which wizard step the user is on. A user without a
// restaurant is on step 1.
func (s *Service) CheckSetup(ctx context.Context, userID string) (SetupStatus, error) {
	r, err := s.store.GetByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return SetupStatus{Step: 1}, nil
	}
	if err != nil {
		return SetupStatus{}, fmt.Errorf("load restaurant: %w", err)
	}

	grouped := r.MenuSnapshot().Categories
	if grouped == nil {
		grouped = []models.MenuCategory{}
	}
	deals := r.Deals
	if deals == nil {
		deals = []models.Deal{}
	}

	return SetupStatus{
		Complete: isComplete(r),
		Step:     detectStep(r),
		Restaurant: &SetupSummary{
			Name:             r.Name,
			Locations:        r.Locations,
			OwnerName:        r.OwnerName,
			RestaurantNumber: r.RestaurantNumber,
			AINumber:         r.AINumber,
			POSSystem:        r.POSSystem,
			Menu:             grouped,
			Deals:            deals,
			MenuCount:        len(grouped),
			DealsCount:       len(deals),
		},
	}, nil
}

// GetByUser returns the user's restaurant.
func (s *Service) GetByUser(ctx context.Context, userID string) (*models.Restaurant, error) {
	return s.lookup(s.store.GetByUser(ctx, userID))
}

// GetByID returns a restaurant by ID.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Restaurant, error) {
	return s.lookup(s.store.GetByID(ctx, id))
}

// MenuForRestaurant returns the validated menu snapshot a session uses.
func (s *Service) MenuForRestaurant(ctx context.Context, restaurantID string) (models.MenuSnapshot, error) {
	r, err := s.GetByID(ctx, restaurantID)
	if err != nil {
		return models.MenuSnapshot{}, err
	}
	return MenuOf(r)
}

// MenuOf returns r's menu, or ErrNoMenu.
func MenuOf(r *models.Restaurant) (models.MenuSnapshot, error) {
	menu := r.MenuSnapshot()
	if menu.Empty() {
		return models.MenuSnapshot{}, ErrNoMenu
	}
	if err := menu.Validate(); err != nil {
		return models.MenuSnapshot{}, err
	}
	return menu, nil
}

// ResolveByAINumber finds the restaurant that owns the dialled number.
func (s *Service) ResolveByAINumber(ctx context.Context, number string) (*models.Restaurant, error) {
	normalized := NormalizePhone(number)
	if normalized == "" {
		return nil, ErrRestaurantNotFound
	}
	return s.lookup(s.store.GetByAINumber(ctx, normalized))
}

func (s *Service) lookup(r *models.Restaurant, err error) (*models.Restaurant, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRestaurantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load restaurant: %w", err)
	}
	return r, nil
}

func normalizeMenu(groups []models.MenuCategory) ([]models.MenuItem, error) {
	var items []models.MenuItem
	seen := make(map[string]struct{})
	for _, group := range groups {
		for _, item := range group.Items {
			cat := strings.TrimSpace(group.Category)
			if cat == "" {
				cat = strings.TrimSpace(item.Category)
			}
			if cat == "" {
				cat = models.DefaultCategory
			}
			item.Name = strings.TrimSpace(item.Name)
			item.Category = cat
			if err := item.Validate(); err != nil {
				return nil, err
			}
			key := strings.ToLower(item.Name)
			if _, dup := seen[key]; dup {
				return nil, fmt.Errorf("%w: duplicate item %q", models.ErrInvalidMenu, item.Name)
			}
			seen[key] = struct{}{}
			items = append(items, item)
		}
	}
	return items, nil
}

// detectStep mirrors the setup wizard: each step requires all earlier ones.
func detectStep(r *models.Restaurant) int {
	step := 1
	if r.Name != "" && len(r.Locations) > 0 && r.OwnerName != "" {
		step = 2
	}
	if step == 2 && r.RestaurantNumber != "" && r.AINumber != "" {
		step = 3
	}
	if step == 3 && len(r.Menu) > 0 {
		step = 4
	}
	if step == 4 && r.Language != "" && r.Voice != "" && r.Accent != "" {
		step = 5
	}
	return step
}

// isComplete requires every step plus the explicit go-live flag.
func isComplete(r *models.Restaurant) bool {
	return detectStep(r) == 5 && r.SetupComplete
}

// NormalizePhone reduces a number to E.164 form ("+15551234567"). Ten-digit
// numbers are assumed to be North American. It returns "" for input with
// no digits.
func NormalizePhone(number string) string {
	var digits strings.Builder
	for _, r := range number {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return ""
	}
	if len(d) == 10 && !strings.HasPrefix(strings.TrimSpace(number), "+") {
		d = "1" + d
	}
	return "+" + d
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
