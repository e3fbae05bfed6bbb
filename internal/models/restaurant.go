package models

import "time"

// Restaurant is a tenant's configured phone assistant.
type Restaurant struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	Name             string     `json:"name"`
	Locations        []string   `json:"locations"`
	OwnerName        string     `json:"ownerName"`
	RestaurantNumber string     `json:"restaurantNumber"`
	AINumber         string     `json:"aiNumber"`
	POSSystem        string     `json:"posSystem,omitempty"`
	Menu             []MenuItem `json:"menu"`
	Deals            []Deal     `json:"deals"`
	Language         string     `json:"language,omitempty"`
	Voice            string     `json:"voice,omitempty"`
	Accent           string     `json:"accent,omitempty"`
	Step             int        `json:"step"`
	SetupComplete    bool       `json:"setupComplete"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Deal is a promotional bundle shown alongside the menu.
type Deal struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price,omitempty"`
}

// MenuSnapshot groups the stored flat menu for a dialogue session.
func (r *Restaurant) MenuSnapshot() MenuSnapshot {
	return GroupMenu(r.Menu)
}

// LanguageTag maps the configured language to a BCP-47 tag for speech.
func (r *Restaurant) LanguageTag() string {
	switch r.Language {
	case "Spanish":
		return "es-ES"
	case "French":
		return "fr-FR"
	case "German":
		return "de-DE"
	}
	switch r.Accent {
	case "UK":
		return "en-GB"
	case "Australian":
		return "en-AU"
	case "Indian":
		return "en-IN"
	}
	return "en-US"
}

// POS systems a restaurant may connect.
var POSSystems = []string{"Square", "Toast", "Clover"}
