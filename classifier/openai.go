package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	httpx "commentguard/http"

	openai "github.com/sashabaranov/go-openai"
)

// Completer sends one instruction/message pair to a language model and
// returns the raw text of its reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// DefaultModel is used when OpenAIConfig.Model is empty.
const DefaultModel = "gpt-4o-mini"

// OpenAIConfig configures an OpenAI compatible chat completion backend.
type OpenAIConfig struct {
	APIKey string
	// BaseURL selects the provider, e.g. "https://api.openai.com/v1".
	BaseURL string
	Model   string
	// RequestTimeout bounds each completion call. Zero means no bound
	// beyond the caller's context.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// OpenAICompleter implements Completer with go-openai.
type OpenAICompleter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAICompleter creates a completer. It returns an error when no API
// key is configured.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("classifier: AI API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	} else {
		config.HTTPClient = httpx.NewClient(nil)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAICompleter{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: cfg.RequestTimeout,
	}, nil
}

// Complete requests a JSON object reply at temperature zero.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", upstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &SchemaError{Reason: "response has no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

// UpstreamError is a failed call to the AI service.
type UpstreamError struct {
	StatusCode int
	Transient  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("classifier: AI service returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("classifier: AI service: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func upstreamError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// A per-request timeout fires while the caller's context is still
		// alive; report it as a transient upstream failure.
		return &UpstreamError{Transient: true, Err: err}
	}
	if errors.Is(err, httpx.ErrCircuitOpen) {
		return &UpstreamError{Err: err}
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return &UpstreamError{StatusCode: status, Transient: transientStatus(status), Err: err}
}

func transientStatus(status int) bool {
	switch {
	case status == 0:
		// network failure before a response
		return true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	}
	return false
}
