package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"voice-order-service/internal/models"
	"voice-order-service/internal/schema"
	"voice-order-service/internal/service/dialogue"
	"voice-order-service/internal/service/restaurant"
	"voice-order-service/internal/service/stt"
	"voice-order-service/internal/store"
)

var errSessionNotFound = errors.New("session not found")

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps err to a status code. Server errors are logged and
// their details withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		resp.Error = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, stt.ErrInvalidAudio),
		errors.Is(err, restaurant.ErrNoMenu),
		errors.Is(err, dialogue.ErrEmptyMenu):
		return http.StatusUnprocessableEntity
	case errors.Is(err, schema.ErrInvalid),
		errors.Is(err, models.ErrInvalidMenu),
		errors.Is(err, restaurant.ErrInvalidSetup):
		return http.StatusBadRequest
	case errors.Is(err, errSessionNotFound),
		errors.Is(err, restaurant.ErrRestaurantNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dialogue.ErrTurnInProgress),
		errors.Is(err, dialogue.ErrSessionTerminated),
		errors.Is(err, dialogue.ErrNotStarted),
		errors.Is(err, dialogue.ErrAlreadyStarted),
		errors.Is(err, dialogue.ErrDuplicateSession),
		errors.Is(err, restaurant.ErrAINumberTaken):
		return http.StatusConflict
	case errors.Is(err, stt.ErrServiceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
