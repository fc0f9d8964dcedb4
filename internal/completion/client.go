package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "openai/gpt-4o-mini"
	defaultTimeout = 60 * time.Second

	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

var (
	// ErrUpstream wraps every failure of the completion provider.
	ErrUpstream = errors.New("completion: upstream failure")
	// ErrMissingAPIKey indicates the client was configured without credentials.
	ErrMissingAPIKey = errors.New("completion: api key missing")
	// ErrNoChoices indicates the provider answered without any choice.
	ErrNoChoices = errors.New("completion: no choices returned")
)

// Message is one role-tagged turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer turns an ordered message list into generated text.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ClientConfig describes an OpenAI-compatible chat completions endpoint.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client sends one chat completion per call; failures are never retried.
type Client struct {
	api         *openai.Client
	apiKey      string
	model       string
	temperature float32
}

func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	apiConfig := openai.DefaultConfig(apiKey)
	apiConfig.BaseURL = baseURL
	apiConfig.HTTPClient = httpClient

	return &Client{
		api:         openai.NewClientWithConfig(apiConfig),
		apiKey:      apiKey,
		model:       model,
		temperature: float32(cfg.Temperature),
	}
}

// Complete returns the text of the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: %w", ErrUpstream, ErrMissingAPIKey)
	}

	request := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: c.temperature,
	}
	for _, message := range messages {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}

	response, err := c.api.CreateChatCompletion(ctx, request)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, apiErr.HTTPStatusCode, apiErr.Message)
		}
		var requestErr *openai.RequestError
		if errors.As(err, &requestErr) {
			return "", fmt.Errorf("%w: status %d: %v", ErrUpstream, requestErr.HTTPStatusCode, requestErr.Err)
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: %w", ErrUpstream, ErrNoChoices)
	}
	return response.Choices[0].Message.Content, nil
}
