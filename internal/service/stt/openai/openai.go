// Package openai transcribes utterances with an OpenAI-compatible
// /audio/transcriptions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"voice-order-service/internal/restutil"
	"voice-order-service/internal/service/stt"
)

// Config holds the endpoint settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Transcriber implements stt.Transcriber.
type Transcriber struct {
	cfg    Config
	client *http.Client
}

// New creates a transcriber. The client may be nil.
func New(cfg Config, client *http.Client) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai transcriber: API key required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	return &Transcriber{cfg: cfg, client: client}, nil
}

// Name returns the provider label.
func (t *Transcriber) Name() string { return "openai" }

// Transcribe uploads the audio as a multipart form.
func (t *Transcriber) Transcribe(ctx context.Context, audio stt.Audio, languageHint string) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("%w: empty audio", stt.ErrInvalidAudio)
	}

	filename, err := fileName(audio.Format)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("openai transcribe: create form file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", fmt.Errorf("openai transcribe: write form file: %w", err)
	}
	_ = writer.WriteField("model", t.cfg.Model)
	_ = writer.WriteField("response_format", "json")
	if languageHint != "" {
		_ = writer.WriteField("language", stt.BaseLanguage(languageHint))
	}
	writer.Close()

	headers := map[string]string{
		"Authorization": "Bearer " + t.cfg.APIKey,
		"Content-Type":  writer.FormDataContentType(),
	}

	respBody, err := restutil.DoRaw(ctx, t.client, http.MethodPost, t.cfg.BaseURL+"/audio/transcriptions", headers, &body)
	if err != nil {
		return "", classify(err)
	}
	defer respBody.Close()

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", stt.ErrServiceUnavailable, err)
	}
	return resp.Text, nil
}

func fileName(format string) (string, error) {
	switch format {
	case stt.FormatWAV, "":
		return "audio.wav", nil
	case stt.FormatWebM:
		return "audio.webm", nil
	case stt.FormatOgg:
		return "audio.ogg", nil
	}
	return "", fmt.Errorf("%w: format %q needs a container", stt.ErrInvalidAudio, format)
}

func classify(err error) error {
	var se *restutil.StatusError
	if errors.As(err, &se) && !se.Retryable() {
		return fmt.Errorf("%w: %v", stt.ErrInvalidAudio, err)
	}
	return fmt.Errorf("%w: %v", stt.ErrServiceUnavailable, err)
}
