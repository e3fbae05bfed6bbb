package restutil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	var out struct {
		Text string `json:"text"`
	}
	err := DoJSON(context.Background(), nil, http.MethodPost, srv.URL, map[string]string{"Authorization": "Bearer k"}, map[string]string{"a": "b"}, &out)
	if err != nil {
		t.Fatalf("DoJSON() error = %v", err)
	}
	if out.Text != "hello" {
		t.Errorf("text = %q, want hello", out.Text)
	}
}

func TestDoRaw_StatusError(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.code)
		}))

		_, err := DoRaw(context.Background(), srv.Client(), http.MethodGet, srv.URL, nil, nil)
		srv.Close()

		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("expected StatusError, got %v", err)
		}
		if se.Code != tt.code {
			t.Errorf("code = %d, want %d", se.Code, tt.code)
		}
		if se.Retryable() != tt.retryable {
			t.Errorf("code %d retryable = %v, want %v", tt.code, se.Retryable(), tt.retryable)
		}
	}
}
