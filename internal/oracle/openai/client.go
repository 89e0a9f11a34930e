// Package openai talks to an OpenAI-compatible chat completions endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/util"
)

const (
	Provider = "openai"

	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-5.2"

	errorDetailLimit = 300
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client sends one system and one user message and returns the assistant content.
type Client struct {
	http   *resty.Client
	model  string
	logger *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}

	return &Client{
		http:   httpClient,
		model:  model,
		logger: logger.WithCommonFields(log, Provider, model),
	}, nil
}

func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// GenerateContent posts a chat completion in JSON mode.
func (c *Client) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if c == nil || c.http == nil {
		return "", errors.New("openai client is not initialized")
	}
	if strings.TrimSpace(message) == "" {
		return "", errors.New("prompt must not be empty")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"model":           c.model,
			"response_format": map[string]string{"type": "json_object"},
			"messages": []map[string]string{
				{"role": "system", "content": system},
				{"role": "user", "content": message},
			},
		}).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("openai HTTP %d: %s", resp.StatusCode(), util.TruncateForLog(resp.String(), errorDetailLimit))
	}

	content := strings.TrimSpace(gjson.Get(resp.String(), "choices.0.message.content").String())
	if content == "" {
		return "", errors.New("openai api returned empty response")
	}

	c.logger.Debug("openai completion received",
		zap.Int("status", resp.StatusCode()),
		zap.Int64("total_tokens", gjson.Get(resp.String(), "usage.total_tokens").Int()),
	)
	return content, nil
}
