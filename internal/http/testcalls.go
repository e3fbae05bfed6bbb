package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"voice-order-service/internal/auth"
	"voice-order-service/internal/models"
	"voice-order-service/internal/schema"
	"voice-order-service/internal/service/dialogue"
	"voice-order-service/internal/service/intent"
	"voice-order-service/internal/service/order"
	"voice-order-service/internal/service/restaurant"
	"voice-order-service/internal/service/stt"
)

// testCallCustomer stands in for the caller's number on simulated calls.
const testCallCustomer = "test-call"

type startResponse struct {
	SessionID string              `json:"sessionId"`
	Greeting  string              `json:"greeting"`
	State     string              `json:"state"`
	Menu      models.MenuSnapshot `json:"menu"`
}

type turnResponse struct {
	dialogue.TurnResult
	Error string `json:"error,omitempty"`
}

type sessionResponse struct {
	SessionID         string          `json:"sessionId"`
	RestaurantID      string          `json:"restaurantId"`
	State             string          `json:"state"`
	Pending           *intent.Pending `json:"pending,omitempty"`
	Failures          int             `json:"failures"`
	TerminationReason string          `json:"terminationReason,omitempty"`
	Receipt           *order.Receipt  `json:"receipt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	History           []dialogue.Turn `json:"history"`
}

func snapshot(sess *dialogue.Session) sessionResponse {
	resp := sessionResponse{
		SessionID:         sess.ID,
		RestaurantID:      sess.RestaurantID,
		State:             sess.State().String(),
		Failures:          sess.Failures(),
		TerminationReason: sess.TerminationReason(),
		Receipt:           sess.Receipt(),
		CreatedAt:         sess.CreatedAt,
		History:           sess.History(),
	}
	if p := sess.Pending(); !p.Empty() {
		resp.Pending = &p
	}
	return resp
}

func (h *handlers) startTestCall(w http.ResponseWriter, r *http.Request) {
	rest, err := h.app.Restaurants.GetByUser(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	menu, err := restaurant.MenuOf(rest)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sess := h.app.Engine.NewSession(dialogue.SessionParams{
		RestaurantID:   rest.ID,
		RestaurantName: rest.Name,
		CustomerID:     testCallCustomer,
		Language:       rest.LanguageTag(),
		Channel:        dialogue.ChannelTestCall,
		Menu:           menu,
	})
	if err := h.app.Sessions.Add(sess); err != nil {
		writeError(w, r, err)
		return
	}
	greeting, err := h.app.Engine.Start(r.Context(), sess)
	if err != nil {
		h.app.Engine.Cancel(sess)
		h.app.Sessions.Remove(sess.ID)
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, startResponse{
		SessionID: sess.ID,
		Greeting:  greeting,
		State:     sess.State().String(),
		Menu:      menu,
	})
}

// ownSession returns the caller's test-call session from the URL.
func (h *handlers) ownSession(r *http.Request) (*dialogue.Session, error) {
	sess, ok := h.app.Sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok || sess.Channel != dialogue.ChannelTestCall {
		return nil, errSessionNotFound
	}
	rest, err := h.app.Restaurants.GetByUser(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, restaurant.ErrRestaurantNotFound) {
			return nil, errSessionNotFound
		}
		return nil, err
	}
	if rest.ID != sess.RestaurantID {
		return nil, errSessionNotFound
	}
	return sess, nil
}

func (h *handlers) getTestCall(w http.ResponseWriter, r *http.Request) {
	sess, err := h.ownSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot(sess))
}

// testCallTurn runs one turn from an uploaded recording (multipart field
// "audio") or a typed transcript (JSON). Turn failures the session
// recovered from are reported in the body with status 200.
func (h *handlers) testCallTurn(w http.ResponseWriter, r *http.Request) {
	sess, err := h.ownSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var result dialogue.TurnResult
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		audio, err := h.readAudio(w, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		result, err = h.app.Engine.HandleAudio(r.Context(), sess, audio)
		if err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		var req schema.TurnRequest
		if err := h.decodeDocument(w, r, schema.DocTurn, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if strings.TrimSpace(req.Transcript) == "" {
			result, err = h.app.Engine.HandleSilence(r.Context(), sess)
		} else {
			result, err = h.app.Engine.HandleTranscript(r.Context(), sess, req.Transcript)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	resp := turnResponse{TurnResult: result}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) readAudio(w http.ResponseWriter, r *http.Request) (stt.Audio, error) {
	limit := h.app.Validator.MaxAudioBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+maxSetupBody)
	if err := r.ParseMultipartForm(limit); err != nil {
		return stt.Audio{}, fmt.Errorf("%w: %w: %v", schema.ErrInvalid, stt.ErrInvalidAudio, err)
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return stt.Audio{}, fmt.Errorf("%w: %w: audio file required", schema.ErrInvalid, stt.ErrInvalidAudio)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return stt.Audio{}, fmt.Errorf("read audio: %w", err)
	}
	audio := stt.Audio{
		Data:   data,
		Format: stt.FormatFromContentType(header.Header.Get("Content-Type"), header.Filename),
	}
	if v := r.FormValue("sampleRate"); v != "" {
		audio.SampleRate, _ = strconv.Atoi(v)
	}
	if err := h.app.Validator.Validate(audio); err != nil {
		return stt.Audio{}, err
	}
	return audio, nil
}

func (h *handlers) endTestCall(w http.ResponseWriter, r *http.Request) {
	sess, err := h.ownSession(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.app.Engine.Cancel(sess)
	h.app.Sessions.Remove(sess.ID)
	writeJSON(w, http.StatusOK, snapshot(sess))
}
