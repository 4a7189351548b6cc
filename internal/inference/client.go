// Package inference talks to the structured-inference service. A task prompt
// and a JSON document go in; a JSON document comes out.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// Client completes a task prompt against a JSON document and returns the raw
// model text.
type Client interface {
	Complete(ctx context.Context, taskPrompt, document string) (string, error)
}

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second
)

// AnthropicConfig configures the Messages API client. MaxRetries is passed
// through as is; zero disables retries.
type AnthropicConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	Timeout    time.Duration
}

// AnthropicClient implements Client over the Anthropic Messages API.
type AnthropicClient struct {
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicClient creates a client. Zero-valued model, token and timeout
// settings take the package defaults.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base+"/"))
	}

	return &AnthropicClient{
		api:       anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}
}

// Complete sends the task prompt as the system instruction and the document
// as the user turn, at temperature 0. Every failure wraps
// domain.ErrInferenceUnavailable.
func (c *AnthropicClient) Complete(ctx context.Context, taskPrompt, document string) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: taskPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(document)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("inference: %w: HTTP %d: %v", domain.ErrInferenceUnavailable, apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("inference: %w: %v", domain.ErrInferenceUnavailable, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("inference: %w: empty completion (stop reason %q)", domain.ErrInferenceUnavailable, msg.StopReason)
	}
	return sb.String(), nil
}

var _ Client = (*AnthropicClient)(nil)
