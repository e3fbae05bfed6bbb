package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"voice-order-service/internal/app"
	"voice-order-service/internal/config"
	"voice-order-service/internal/models"
	"voice-order-service/internal/service/restaurant"
	"voice-order-service/internal/telephony"
)

const testAINumber = "+15550001111"

type testServer struct {
	app     *app.Application
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, adjust func(*config.Configuration)) *testServer {
	t.Helper()
	cfg := config.Load()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Database.Driver = "memory"
	cfg.STT.Provider = "mock"
	cfg.LLM.Provider = "none"
	cfg.Kafka.Enabled = false
	cfg.Recordings.Enabled = false
	cfg.Twilio.AccountSID = ""
	cfg.Twilio.AuthToken = ""
	cfg.Twilio.PublicBaseURL = "https://voice.example.com"
	cfg.RateLimit.TestCallRPS = 100
	cfg.RateLimit.TestCallBurst = 100
	if adjust != nil {
		adjust(cfg)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Shutdown)
	return &testServer{app: a, handler: NewRouter(a)}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.app.Auth.GenerateToken(userID, userID+"@example.com", "restaurant", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) form(t *testing.T, path string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func setupBody(menu []models.MenuCategory) map[string]any {
	return map[string]any{
		"name":             "Tony's",
		"locations":        []string{"Main St"},
		"ownerName":        "Tony",
		"restaurantNumber": "(555) 123-4567",
		"aiNumber":         testAINumber,
		"menu":             menu,
		"language":         "English",
		"voice":            "Female",
		"accent":           "American",
		"setupComplete":    true,
	}
}

func pizzaMenu() []models.MenuCategory {
	return []models.MenuCategory{
		{Category: "Pizza", Items: []models.MenuItem{{Name: "Pepperoni", Price: 12}, {Name: "Margherita", Price: 10.5}}},
	}
}

func (s *testServer) setup(t *testing.T, userID string, menu []models.MenuCategory) {
	t.Helper()
	s.setupWith(t, userID, setupBody(menu))
}

func (s *testServer) setupWith(t *testing.T, userID string, body map[string]any) {
	t.Helper()
	if w := s.do(t, http.MethodPost, "/v1/setup", userID, body); w.Code != http.StatusOK {
		t.Fatalf("setup status = %d body = %s", w.Code, w.Body)
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", w.Body, err)
	}
	return v
}

type turnBody struct {
	Intent      string `json:"intent"`
	Item        string `json:"item"`
	Reply       string `json:"reply"`
	State       string `json:"state"`
	OrderPlaced bool   `json:"orderPlaced"`
	Transcript  string `json:"transcript"`
	Error       string `json:"error"`
	Receipt     *struct {
		Total  string `json:"total"`
		Status string `json:"status"`
	} `json:"receipt"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/v1/liveness", "/v1/readiness"} {
		if w := s.do(t, http.MethodGet, path, "", nil); w.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, w.Code)
		}
	}

	s.app.Shutdown()
	if w := s.do(t, http.MethodGet, "/v1/readiness", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness after shutdown = %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/v1/setup/check", "/v1/restaurant", "/v1/orders", "/v1/twilio/numbers"} {
		if w := s.do(t, http.MethodGet, path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, w.Code)
		}
	}
	if w := s.do(t, http.MethodPost, "/v1/test-calls", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("test-calls status = %d, want 401", w.Code)
	}
}

func TestSetupFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/setup/check", "u1", nil)
	if status := decode[map[string]any](t, w); status["step"] != float64(1) || status["complete"] != false {
		t.Errorf("initial status = %v", status)
	}
	if w := s.do(t, http.MethodGet, "/v1/restaurant", "u1", nil); w.Code != http.StatusNotFound {
		t.Errorf("restaurant before setup = %d", w.Code)
	}

	s.setup(t, "u1", pizzaMenu())

	w = s.do(t, http.MethodGet, "/v1/setup/check", "u1", nil)
	if status := decode[map[string]any](t, w); status["step"] != float64(5) || status["complete"] != true {
		t.Errorf("status after setup = %v", status)
	}
	w = s.do(t, http.MethodGet, "/v1/restaurant", "u1", nil)
	if rest := decode[models.Restaurant](t, w); rest.AINumber != testAINumber || len(rest.Menu) != 2 {
		t.Errorf("restaurant = %+v", rest)
	}
}

func TestSetup_Invalid(t *testing.T) {
	s := newTestServer(t)

	body := setupBody(pizzaMenu())
	body["aiNumber"] = "not a number"
	w := s.do(t, http.MethodPost, "/v1/setup", "u1", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[errorResponse](t, w)
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "aiNumber" {
		t.Errorf("fields = %+v", resp.Fields)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/setup", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+s.token(t, "u1"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed json status = %d", rec.Code)
	}
}

func TestSetup_AINumberTaken(t *testing.T) {
	s := newTestServer(t)
	s.setup(t, "u1", pizzaMenu())

	other := setupBody(pizzaMenu())
	other["name"] = "Other Place"
	w := s.do(t, http.MethodPost, "/v1/setup", "u2", other)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}

	resp := s.form(t, "/v1/twilio/voice", url.Values{"CallSid": {"CA1"}, "From": {"+15551234567"}, "To": {testAINumber}})
	if body := resp.Body.String(); !strings.Contains(body, "Welcome to Tony") || strings.Contains(body, "Other Place") {
		t.Errorf("inbound call should reach the original owner, twiml = %s", body)
	}
}

func TestTestCall_PepperoniOrder(t *testing.T) {
	s := newTestServer(t)
	s.setup(t, "u1", pizzaMenu())

	w := s.do(t, http.MethodPost, "/v1/test-calls", "u1", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("start status = %d body = %s", w.Code, w.Body)
	}
	start := decode[startResponse](t, w)
	if !strings.Contains(start.Greeting, "Welcome to Tony's") || start.State != "LISTENING" {
		t.Errorf("unexpected start %+v", start)
	}
	turns := "/v1/test-calls/" + start.SessionID + "/turns"

	w = s.do(t, http.MethodPost, turns, "u1", map[string]string{"transcript": "can I get a pepperoni"})
	turn := decode[turnBody](t, w)
	if turn.Intent != "proposed" || turn.Item != "Pepperoni" || turn.State != "AWAITING_CONFIRMATION" {
		t.Errorf("proposal turn = %+v", turn)
	}

	w = s.do(t, http.MethodPost, turns, "u1", map[string]string{"transcript": "yes please"})
	turn = decode[turnBody](t, w)
	if !turn.OrderPlaced || turn.State != "TERMINATED" || turn.Receipt == nil || turn.Receipt.Total != "$12.00" {
		t.Fatalf("confirm turn = %+v", turn)
	}

	w = s.do(t, http.MethodGet, "/v1/orders", "u1", nil)
	orders := decode[map[string][]models.OrderRecord](t, w)["orders"]
	if len(orders) != 1 || orders[0].Total != 12 || orders[0].Items[0].Name != "Pepperoni" {
		t.Errorf("orders = %+v", orders)
	}

	w = s.do(t, http.MethodGet, "/v1/test-calls/"+start.SessionID, "u1", nil)
	snap := decode[sessionResponse](t, w)
	if snap.State != "TERMINATED" || snap.TerminationReason != "order_placed" || snap.Receipt == nil {
		t.Errorf("snapshot = %+v", snap)
	}

	if w := s.do(t, http.MethodPost, turns, "u1", map[string]string{"transcript": "yes"}); w.Code != http.StatusConflict {
		t.Errorf("turn after termination = %d", w.Code)
	}
}

func TestTestCall_NotOnMenuAndSilence(t *testing.T) {
	s := newTestServer(t)
	s.setup(t, "u1", pizzaMenu())
	start := decode[startResponse](t, s.do(t, http.MethodPost, "/v1/test-calls", "u1", nil))
	turns := "/v1/test-calls/" + start.SessionID + "/turns"

	turn := decode[turnBody](t, s.do(t, http.MethodPost, turns, "u1", map[string]string{"transcript": "do you have sushi"}))
	if turn.Intent != "noop" || turn.OrderPlaced || turn.State != "LISTENING" {
		t.Errorf("sushi turn = %+v", turn)
	}

	w := s.do(t, http.MethodPost, turns, "u1", map[string]string{"transcript": "  "})
	if w.Code != http.StatusOK {
		t.Fatalf("silence status = %d", w.Code)
	}
	if turn := decode[turnBody](t, w); turn.Intent != "failure" || turn.Error == "" {
		t.Errorf("silence turn = %+v", turn)
	}
}

func TestTestCall_Errors(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(t, http.MethodPost, "/v1/test-calls", "nobody", nil); w.Code != http.StatusNotFound {
		t.Errorf("no restaurant = %d", w.Code)
	}

	empty := setupBody(nil)
	empty["aiNumber"] = "+15550003333"
	s.setupWith(t, "empty", empty)
	if w := s.do(t, http.MethodPost, "/v1/test-calls", "empty", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty menu = %d", w.Code)
	}

	s.setup(t, "u1", pizzaMenu())
	start := decode[startResponse](t, s.do(t, http.MethodPost, "/v1/test-calls", "u1", nil))

	other := setupBody(pizzaMenu())
	other["aiNumber"] = "+15550002222"
	s.setupWith(t, "u2", other)
	if w := s.do(t, http.MethodGet, "/v1/test-calls/"+start.SessionID, "u2", nil); w.Code != http.StatusNotFound {
		t.Errorf("foreign session = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/v1/test-calls/missing", "u1", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing session = %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/v1/test-calls/"+start.SessionID+"/turns", "u1", map[string]string{"transcript": strings.Repeat("a", 3000)}); w.Code != http.StatusBadRequest {
		t.Errorf("long transcript = %d", w.Code)
	}
}

func TestTestCall_Cancel(t *testing.T) {
	s := newTestServer(t)
	s.setup(t, "u1", pizzaMenu())
	start := decode[startResponse](t, s.do(t, http.MethodPost, "/v1/test-calls", "u1", nil))

	w := s.do(t, http.MethodDelete, "/v1/test-calls/"+start.SessionID, "u1", nil)
	if snap := decode[sessionResponse](t, w); snap.State != "TERMINATED" || snap.TerminationReason != "cancelled" {
		t.Errorf("cancel snapshot = %+v", snap)
	}
	if w := s.do(t, http.MethodGet, "/v1/test-calls/"+start.SessionID, "u1", nil); w.Code != http.StatusNotFound {
		t.Errorf("cancelled session still visible: %d", w.Code)
	}
}

func multipartAudio(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="audio"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestTestCall_AudioTurn(t *testing.T) {
	s := newTestServer(t)
	s.setup(t, "u1", pizzaMenu())
	start := decode[startResponse](t, s.do(t, http.MethodPost, "/v1/test-calls", "u1", nil))
	path := "/v1/test-calls/" + start.SessionID + "/turns"

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		wantStatus  int
	}{
		{"unsupported format", "turn.mp3", "audio/mpeg", []byte{1, 2, 3}, http.StatusUnprocessableEntity},
		{"empty file", "turn.wav", "audio/wav", nil, http.StatusUnprocessableEntity},
		{"wav", "turn.wav", "audio/wav", []byte("RIFF0000WAVE"), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartAudio(t, tt.filename, tt.contentType, tt.data)
			req := httptest.NewRequest(http.MethodPost, path, body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("Authorization", "Bearer "+s.token(t, "u1"))
			w := httptest.NewRecorder()
			s.handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d body = %s", w.Code, w.Body)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			// The mock transcriber opens its default script with a pepperoni request.
			turn := decode[turnBody](t, w)
			if turn.Intent != "proposed" || turn.Item != "Pepperoni" || turn.Transcript == "" {
				t.Errorf("audio turn = %+v", turn)
			}
		})
	}
}

type fakeNumbers struct {
	err error
}

func (f fakeNumbers) ListNumbers(limit int) ([]telephony.PhoneNumber, error) {
	return []telephony.PhoneNumber{{SID: "PN1", Number: testAINumber}}, f.err
}

func TestListNumbers(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(t, http.MethodGet, "/v1/twilio/numbers", "u1", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured = %d", w.Code)
	}

	s.app.Numbers = fakeNumbers{}
	w := s.do(t, http.MethodGet, "/v1/twilio/numbers", "u1", nil)
	numbers := decode[map[string][]telephony.PhoneNumber](t, w)["numbers"]
	if len(numbers) != 1 || numbers[0].Number != testAINumber {
		t.Errorf("numbers = %+v", numbers)
	}

	s.app.Numbers = fakeNumbers{err: errors.New("401")}
	if w := s.do(t, http.MethodGet, "/v1/twilio/numbers", "u1", nil); w.Code != http.StatusBadGateway {
		t.Errorf("upstream failure = %d", w.Code)
	}
}

func TestTwilioCall(t *testing.T) {
	s := newTestServer(t)
	s.setup(t, "u1", pizzaMenu())

	w := s.form(t, "/v1/twilio/voice", url.Values{"CallSid": {"CA1"}, "To": {"+1 (555) 000-1111"}, "From": {"+15557654321"}})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<Gather") || !strings.Contains(w.Body.String(), "Welcome to Tony") {
		t.Fatalf("voice webhook = %d %s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), "https://voice.example.com/v1/twilio/transcribe") {
		t.Errorf("gather action should use the public URL: %s", w.Body)
	}

	w = s.form(t, "/v1/twilio/transcribe", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"A pepperoni please"}})
	if !strings.Contains(w.Body.String(), "Pepperoni") || !strings.Contains(w.Body.String(), "<Gather") {
		t.Errorf("proposal twiml = %s", w.Body)
	}

	w = s.form(t, "/v1/twilio/transcribe", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"yes"}})
	if !strings.Contains(w.Body.String(), "$12.00") || !strings.Contains(w.Body.String(), "<Hangup") {
		t.Errorf("confirmation twiml = %s", w.Body)
	}

	orders, err := s.app.Store.ListByRestaurant(context.Background(), mustRestaurantID(t, s), 10)
	if err != nil || len(orders) != 1 || orders[0].CustomerID != "+15557654321" {
		t.Errorf("orders = %+v err = %v", orders, err)
	}

	w = s.form(t, "/v1/twilio/transcribe", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"hello?"}})
	if !strings.Contains(w.Body.String(), callEndedSpeech) {
		t.Errorf("transcribe after hangup = %s", w.Body)
	}
}

func mustRestaurantID(t *testing.T, s *testServer) string {
	t.Helper()
	r, err := s.app.Restaurants.GetByUser(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	return r.ID
}

func TestTwilioVoice_UnknownNumber(t *testing.T) {
	s := newTestServer(t)

	w := s.form(t, "/v1/twilio/voice", url.Values{"CallSid": {"CA9"}, "To": {"+19998887777"}})
	body := w.Body.String()
	if !strings.Contains(body, "not linked to a restaurant") || !strings.Contains(body, "<Hangup") {
		t.Errorf("unexpected twiml %s", body)
	}
	if _, ok := s.app.Sessions.Get("CA9"); ok {
		t.Error("no session should be created")
	}
}

func TestTwilioStatus_EndsSession(t *testing.T) {
	s := newTestServer(t)
	s.setup(t, "u1", pizzaMenu())
	s.form(t, "/v1/twilio/voice", url.Values{"CallSid": {"CA2"}, "To": {testAINumber}})

	sess, ok := s.app.Sessions.Get("CA2")
	if !ok {
		t.Fatal("expected session")
	}
	if w := s.form(t, "/v1/twilio/status", url.Values{"CallSid": {"CA2"}, "CallStatus": {"completed"}}); w.Code != http.StatusNoContent {
		t.Errorf("status webhook = %d", w.Code)
	}
	if !sess.State().IsTerminal() {
		t.Error("session should be terminated")
	}
	if _, ok := s.app.Sessions.Get("CA2"); ok {
		t.Error("session should be removed")
	}
}

func TestTwilio_RejectsBadSignature(t *testing.T) {
	s := newTestServer(t)
	s.app.Signatures = telephony.NewSignatureValidator("auth-token")

	w := s.form(t, "/v1/twilio/voice", url.Values{"CallSid": {"CA3"}, "To": {testAINumber}})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestTestCall_RateLimited(t *testing.T) {
	s := newTestServerWith(t, func(cfg *config.Configuration) {
		cfg.RateLimit.TestCallRPS = 0.01
		cfg.RateLimit.TestCallBurst = 2
	})
	s.setup(t, "u1", pizzaMenu())

	for i := 0; i < 2; i++ {
		if w := s.do(t, http.MethodPost, "/v1/test-calls", "u1", nil); w.Code != http.StatusCreated {
			t.Fatalf("call %d status = %d", i, w.Code)
		}
	}
	w := s.do(t, http.MethodPost, "/v1/test-calls", "u1", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Errorf("third call = %d, want 429 with Retry-After", w.Code)
	}

	// Budgets are per user.
	s.setupWith(t, "u2", map[string]any{"name": "Other", "aiNumber": "+15550009999", "menu": pizzaMenu()})
	if w := s.do(t, http.MethodPost, "/v1/test-calls", "u2", nil); w.Code != http.StatusCreated {
		t.Errorf("other user status = %d", w.Code)
	}
	// Setup is not throttled.
	if w := s.do(t, http.MethodGet, "/v1/setup/check", "u1", nil); w.Code != http.StatusOK {
		t.Errorf("setup check = %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: +15550001111", restaurant.ErrAINumberTaken), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
