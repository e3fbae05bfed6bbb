package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"voice-order-service/internal/restutil"
)

// OpenAIConfig configures the chat completions client.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// OpenAI implements Replier with /chat/completions.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAI creates a chat completions replier.
func NewOpenAI(cfg OpenAIConfig, client *http.Client) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai replier: API key required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	return &OpenAI{cfg: cfg, client: client}, nil
}

// Name returns the provider label.
func (o *OpenAI) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateReply asks the model for a reply.
func (o *OpenAI) GenerateReply(ctx context.Context, req Request) (string, error) {
	body := chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(req)},
			{Role: "user", Content: UserPrompt(req)},
		},
		Temperature: o.cfg.Temperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.cfg.APIKey}

	var resp chatResponse
	if err := restutil.DoJSON(ctx, o.client, http.MethodPost, o.cfg.BaseURL+"/chat/completions", headers, body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
