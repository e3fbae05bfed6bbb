// Package restutil holds the JSON-over-HTTP plumbing shared by the
// transcription and reply clients.
package restutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClient is used when a caller does not supply its own.
var DefaultClient = &http.Client{Timeout: 30 * time.Second}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Retryable reports whether the upstream is likely to succeed on retry.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// DoJSON sends a JSON request and decodes the JSON response into dest.
func DoJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any, dest any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	if headers == nil {
		headers = map[string]string{}
	}
	if body != nil {
		headers["Content-Type"] = "application/json"
	}

	respBody, err := DoRaw(ctx, client, method, url, headers, bodyReader)
	if err != nil {
		return err
	}
	defer respBody.Close()

	if dest != nil {
		if err := json.NewDecoder(respBody).Decode(dest); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// DoRaw sends a request with a raw body and returns the response body.
func DoRaw(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body io.Reader) (io.ReadCloser, error) {
	if client == nil {
		client = DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	return resp.Body, nil
}
