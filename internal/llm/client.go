// Package llm is a small client for the DeepSeek chat-completions API,
// which follows the OpenAI wire format.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voice-trading-assistant-go/internal/config"
)

const (
	defaultBaseURL = "https://api.deepseek.com/v1"
	defaultModel   = "deepseek-chat"

	// placeholderKey is the value shipped in sample env files; it counts as unset.
	placeholderKey = "your_deepseek_api_key"
)

// ErrNotConfigured is returned by Complete when no API key is set.
var ErrNotConfigured = errors.New("deepseek api key not configured")

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a single non-streaming completion.
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Client calls the chat-completions endpoint. Calls are not retried: callers
// own their fallback.
type Client struct {
	client  *resty.Client
	apiKey  string
	model   string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewClient creates a new DeepSeek client.
func NewClient(cfg config.DeepSeek, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.TimeoutSeconds > 0 {
		client.SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		client:  client,
		apiKey:  cfg.ApiKey,
		model:   model,
		logger:  logger.Named("llm"),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Configured reports whether a usable API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiKey != placeholderKey
}

// Complete sends the messages and returns the trimmed content of the first choice.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	body := chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	c.logger.Debug("Requesting chat completion", zap.String("model", c.model), zap.Int("messages", len(req.Messages)))
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(body).
		SetResult(&chatResponse{}).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("deepseek request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("deepseek request failed with status %s: %s", resp.Status(), resp.String())
	}

	result := resp.Result().(*chatResponse)
	if len(result.Choices) == 0 {
		return "", errors.New("deepseek response contained no choices")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON strips markdown code fences that models often wrap JSON in.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	if m := fencedBlock.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return content
}
