package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"voice-order-service/internal/restutil"
)

// GeminiConfig configures the generateContent client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
}

// Gemini implements Replier with the Generative Language API.
type Gemini struct {
	cfg    GeminiConfig
	client *http.Client
}

// NewGemini creates a Gemini replier.
func NewGemini(cfg GeminiConfig, client *http.Client) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing GEMINI_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("missing GEMINI_MODEL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &Gemini{cfg: cfg, client: client}, nil
}

// Name returns the provider label.
func (g *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  map[string]any  `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GenerateReply asks Gemini for a reply.
func (g *Gemini) GenerateReply(ctx context.Context, req Request) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.cfg.BaseURL, url.PathEscape(g.cfg.Model), url.QueryEscape(g.cfg.APIKey))

	body := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: SystemPrompt(req)}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: UserPrompt(req)}}},
		},
		GenerationConfig: map[string]any{
			"temperature":     g.cfg.Temperature,
			"maxOutputTokens": 256,
		},
	}

	var resp geminiResponse
	if err := restutil.DoJSON(ctx, g.client, http.MethodPost, endpoint, nil, body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyReply
	}
	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
