package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"voice-order-service/internal/auth"
	"voice-order-service/internal/models"
	"voice-order-service/internal/schema"
	"voice-order-service/internal/service/restaurant"
)

const (
	defaultOrderLimit = 50
	maxOrderLimit     = 200
	maxSetupBody      = 1 << 20
	numberLimit       = 50
)

var errNumbersUnavailable = errors.New("phone number listing is not configured")

func (h *handlers) checkSetup(w http.ResponseWriter, r *http.Request) {
	status, err := h.app.Restaurants.CheckSetup(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) saveSetup(w http.ResponseWriter, r *http.Request) {
	var in restaurant.SetupInput
	if err := h.decodeDocument(w, r, schema.DocSetup, &in); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := h.app.Restaurants.SaveSetup(r.Context(), auth.UserIDFromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Setup saved",
		"restaurant": saved,
	})
}

func (h *handlers) getRestaurant(w http.ResponseWriter, r *http.Request) {
	rest, err := h.app.Restaurants.GetByUser(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rest)
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	rest, err := h.app.Restaurants.GetByUser(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := defaultOrderLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", schema.ErrInvalid))
			return
		}
		limit = min(n, maxOrderLimit)
	}

	orders, err := h.app.Store.ListByRestaurant(r.Context(), rest.ID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []models.OrderRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *handlers) listNumbers(w http.ResponseWriter, r *http.Request) {
	if h.app.Numbers == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: errNumbersUnavailable.Error()})
		return
	}
	numbers, err := h.app.Numbers.ListNumbers(numberLimit)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list Twilio numbers")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "could not list phone numbers"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"numbers": numbers})
}

// decodeDocument reads a JSON body, checks it against the document's
// schema, and only then decodes it into v.
func (h *handlers) decodeDocument(w http.ResponseWriter, r *http.Request, doc schema.Document, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSetupBody))
	if err != nil {
		return fmt.Errorf("%w: %v", schema.ErrInvalid, err)
	}
	if err := h.app.Validator.ValidateJSON(doc, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrInvalid, err)
	}
	return nil
}
