package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"voice-order-service/internal/observability/logging"
	"voice-order-service/internal/service/dialogue"
	"voice-order-service/internal/service/restaurant"
	"voice-order-service/internal/telephony"
)

const (
	transcribePath = "/v1/twilio/transcribe"

	notFoundSpeech    = "Sorry, this number is not linked to a restaurant. Goodbye."
	unavailableSpeech = "Sorry, ordering by phone is not available right now. Please call back later."
	callEndedSpeech   = "Sorry, this call has ended. Please call back to place an order."
	errorSpeech       = "Sorry, something went wrong. Please call back later."
	waitSpeech        = "One moment please."
)

// verifyTwilio rejects webhooks whose signature does not match the
// public URL and form body.
func (h *handlers) verifyTwilio(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !h.app.Signatures.Valid(h.publicURL(r, r.URL.RequestURI()), params, r.Header.Get("X-Twilio-Signature")) {
			log.Warn().Str("path", r.URL.Path).Msg("Rejected webhook with invalid Twilio signature")
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// publicURL is the URL Twilio used to reach us, which may differ from the
// request's own host behind a proxy.
func (h *handlers) publicURL(r *http.Request, path string) string {
	if base := h.app.Cfg.Twilio.PublicBaseURL; base != "" {
		return base + path
	}
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = "http"
	}
	return scheme + "://" + r.Host + path
}

func (h *handlers) voiceOptions(language string) telephony.VoiceOptions {
	return telephony.VoiceOptions{
		Voice:         h.app.Cfg.Twilio.Voice,
		Language:      language,
		GatherTimeout: h.app.Cfg.Twilio.GatherTimeout,
		SpeechTimeout: h.app.Cfg.Twilio.SpeechTimeout,
	}
}

func (h *handlers) twiml(w http.ResponseWriter, body string, err error) {
	if err != nil {
		log.Error().Err(err).Msg("Failed to render TwiML")
		http.Error(w, "twiml error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (h *handlers) hangup(w http.ResponseWriter, text, language string) {
	body, err := telephony.HangupResponse(text, h.voiceOptions(language))
	h.twiml(w, body, err)
}

func (h *handlers) listen(w http.ResponseWriter, r *http.Request, text, language string) {
	body, err := telephony.ListenResponse(text, h.publicURL(r, transcribePath), h.voiceOptions(language))
	h.twiml(w, body, err)
}

// twilioVoice answers an inbound call: the dialled number selects the
// restaurant and the call SID becomes the session ID.
func (h *handlers) twilioVoice(w http.ResponseWriter, r *http.Request) {
	callSid := r.PostFormValue("CallSid")
	to := r.PostFormValue("To")
	logger := log.With().Str("callSid", callSid).Str("to", to).Logger()

	if callSid == "" {
		http.Error(w, "CallSid required", http.StatusBadRequest)
		return
	}

	if sess, ok := h.app.Sessions.Get(callSid); ok && !sess.State().IsTerminal() {
		// Twilio retried the webhook; repeat the last prompt.
		h.listen(w, r, sess.LastReply(), sess.Language)
		return
	}

	rest, err := h.app.Restaurants.ResolveByAINumber(r.Context(), to)
	if err != nil {
		if !errors.Is(err, restaurant.ErrRestaurantNotFound) {
			logger.Error().Err(err).Msg("Restaurant lookup failed")
			h.hangup(w, errorSpeech, "")
			return
		}
		logger.Warn().Msg("Call to unassigned number")
		h.hangup(w, notFoundSpeech, "")
		return
	}
	menu, err := restaurant.MenuOf(rest)
	if err != nil {
		restLogger := logging.WithRestaurant(rest.ID)
		restLogger.Warn().Err(err).Msg("Call rejected, restaurant menu unusable")
		h.hangup(w, unavailableSpeech, rest.LanguageTag())
		return
	}

	sess := h.app.Engine.NewSession(dialogue.SessionParams{
		ID:             callSid,
		RestaurantID:   rest.ID,
		RestaurantName: rest.Name,
		CustomerID:     r.PostFormValue("From"),
		Language:       rest.LanguageTag(),
		Channel:        dialogue.ChannelTwilio,
		Menu:           menu,
	})
	if err := h.app.Sessions.Add(sess); err != nil {
		logger.Error().Err(err).Msg("Failed to register call session")
		h.hangup(w, errorSpeech, sess.Language)
		return
	}
	greeting, err := h.app.Engine.Start(r.Context(), sess)
	if err != nil {
		h.app.Engine.Cancel(sess)
		h.app.Sessions.Remove(sess.ID)
		logger.Error().Err(err).Msg("Failed to start call session")
		h.hangup(w, errorSpeech, sess.Language)
		return
	}
	h.listen(w, r, greeting, sess.Language)
}

// twilioTranscribe receives the caller's speech recognized by Twilio and
// answers with the next prompt.
func (h *handlers) twilioTranscribe(w http.ResponseWriter, r *http.Request) {
	callSid := r.PostFormValue("CallSid")
	sess, ok := h.app.Sessions.Get(callSid)
	if !ok || sess.Channel != dialogue.ChannelTwilio {
		h.hangup(w, callEndedSpeech, "")
		return
	}

	speech := r.PostFormValue("SpeechResult")
	if speech == "" {
		speech = r.PostFormValue("TranscriptionText")
	}

	var (
		result dialogue.TurnResult
		err    error
	)
	if strings.TrimSpace(speech) == "" {
		result, err = h.app.Engine.HandleSilence(r.Context(), sess)
	} else {
		result, err = h.app.Engine.HandleTranscript(r.Context(), sess, speech)
	}

	switch {
	case errors.Is(err, dialogue.ErrTurnInProgress):
		h.listen(w, r, waitSpeech, sess.Language)
		return
	case errors.Is(err, dialogue.ErrSessionTerminated):
		h.app.Sessions.Remove(sess.ID)
		h.hangup(w, callEndedSpeech, sess.Language)
		return
	case err != nil:
		sessLogger := logging.WithSession(sess.ID, sess.RestaurantID, sess.CustomerID)
		sessLogger.Error().Err(err).Msg("Call turn failed")
		h.app.Engine.Cancel(sess)
		h.app.Sessions.Remove(sess.ID)
		h.hangup(w, errorSpeech, sess.Language)
		return
	}

	if sess.State().IsTerminal() {
		h.app.Sessions.Remove(sess.ID)
		h.hangup(w, result.Reply, sess.Language)
		return
	}
	h.listen(w, r, result.Reply, sess.Language)
}

// twilioStatus ends the session when the call is over.
func (h *handlers) twilioStatus(w http.ResponseWriter, r *http.Request) {
	switch r.PostFormValue("CallStatus") {
	case "completed", "busy", "failed", "no-answer", "canceled":
		if sess, ok := h.app.Sessions.Get(r.PostFormValue("CallSid")); ok {
			h.app.Engine.Cancel(sess)
			h.app.Sessions.Remove(sess.ID)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
