package models

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCategory is assigned to menu items saved without a category.
const DefaultCategory = "Uncategorized"

// ErrInvalidMenu is returned when a menu fails boundary validation.
var ErrInvalidMenu = errors.New("invalid menu")

// MenuItem is a single orderable item. Category is only populated in the
// flat storage form; inside a MenuSnapshot the owning category is implied.
type MenuItem struct {
	Name        string  `json:"name" yaml:"name"`
	Price       float64 `json:"price" yaml:"price"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string  `json:"category,omitempty" yaml:"-"`
}

// MenuCategory is an ordered group of items.
type MenuCategory struct {
	Category string     `json:"category" yaml:"category"`
	Items    []MenuItem `json:"items" yaml:"items"`
}

// MenuSnapshot is the read-only, ordered menu a dialogue session is
// constrained to. It is fetched once when the session starts.
type MenuSnapshot struct {
	Categories []MenuCategory `json:"categories" yaml:"categories"`
}

// Validate rejects malformed menus instead of coercing them.
func (m MenuSnapshot) Validate() error {
	if len(m.Categories) == 0 {
		return fmt.Errorf("%w: no categories", ErrInvalidMenu)
	}
	seen := make(map[string]struct{})
	for ci, cat := range m.Categories {
		if strings.TrimSpace(cat.Category) == "" {
			return fmt.Errorf("%w: category %d has no name", ErrInvalidMenu, ci)
		}
		if len(cat.Items) == 0 {
			return fmt.Errorf("%w: category %q has no items", ErrInvalidMenu, cat.Category)
		}
		for ii, item := range cat.Items {
			if err := item.Validate(); err != nil {
				return fmt.Errorf("category %q item %d: %w", cat.Category, ii, err)
			}
			key := strings.ToLower(strings.TrimSpace(item.Name))
			if _, dup := seen[key]; dup {
				return fmt.Errorf("%w: duplicate item %q", ErrInvalidMenu, item.Name)
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}

// Validate checks a single item.
func (i MenuItem) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("%w: item has no name", ErrInvalidMenu)
	}
	if math.IsNaN(i.Price) || math.IsInf(i.Price, 0) || i.Price < 0 {
		return fmt.Errorf("%w: item %q has invalid price %v", ErrInvalidMenu, i.Name, i.Price)
	}
	return nil
}

// Empty reports whether the menu has no items at all.
func (m MenuSnapshot) Empty() bool {
	for _, cat := range m.Categories {
		if len(cat.Items) > 0 {
			return false
		}
	}
	return true
}

// Vocabulary flattens item names in menu traversal order.
func (m MenuSnapshot) Vocabulary() []string {
	var names []string
	for _, cat := range m.Categories {
		for _, item := range cat.Items {
			names = append(names, item.Name)
		}
	}
	return names
}

// Lookup finds an item by name, case-insensitively.
func (m MenuSnapshot) Lookup(name string) (MenuItem, bool) {
	for _, cat := range m.Categories {
		for _, item := range cat.Items {
			if strings.EqualFold(item.Name, name) {
				item.Category = cat.Category
				return item, true
			}
		}
	}
	return MenuItem{}, false
}

// Flatten returns the storage form of the menu, one row per item.
func (m MenuSnapshot) Flatten() []MenuItem {
	var out []MenuItem
	for _, cat := range m.Categories {
		for _, item := range cat.Items {
			item.Category = cat.Category
			out = append(out, item)
		}
	}
	return out
}

// GroupMenu rebuilds a snapshot from flat items, keeping the first-seen
// order of categories and items.
func GroupMenu(items []MenuItem) MenuSnapshot {
	var snap MenuSnapshot
	index := make(map[string]int)
	for _, item := range items {
		cat := strings.TrimSpace(item.Category)
		if cat == "" {
			cat = DefaultCategory
		}
		i, ok := index[cat]
		if !ok {
			i = len(snap.Categories)
			index[cat] = i
			snap.Categories = append(snap.Categories, MenuCategory{Category: cat})
		}
		item.Category = ""
		snap.Categories[i].Items = append(snap.Categories[i].Items, item)
	}
	return snap
}

// LoadMenuYAML reads and validates a menu fixture.
func LoadMenuYAML(r io.Reader) (MenuSnapshot, error) {
	var snap MenuSnapshot
	if err := yaml.NewDecoder(r).Decode(&snap); err != nil {
		return MenuSnapshot{}, fmt.Errorf("decode menu: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return MenuSnapshot{}, err
	}
	return snap, nil
}

// FormatPrice renders a price the way receipts and replies show it.
func FormatPrice(p float64) string {
	return fmt.Sprintf("$%.2f", p)
}
