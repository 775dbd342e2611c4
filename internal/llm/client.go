// Package llm is a minimal client for OpenAI-compatible chat completion APIs.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the hosted OpenAI API.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used when neither the config nor the call names a model.
	DefaultModel = "gpt-4o-mini"
	// DefaultTimeout bounds a single completion request.
	DefaultTimeout = 90 * time.Second
)

// ErrNoChoices is returned when the API responds without any completion.
var ErrNoChoices = errors.New("llm returned no choices")

const jsonSystemPrompt = "You are a music curation assistant. Respond with a single JSON object and nothing else."

// Config holds API settings. Temperature is always sent, including zero.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls the /chat/completions endpoint.
type Client struct {
	config     Config
	api        *openai.Client
	httpClient *http.Client
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// New creates a client, filling unset config fields with defaults.
func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	c := &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	apiConfig.BaseURL = cfg.BaseURL
	apiConfig.HTTPClient = c.httpClient
	c.api = openai.NewClientWithConfig(apiConfig)
	return c
}

// Model returns the default model name.
func (c *Client) Model() string { return c.config.Model }

// Complete sends messages and returns the first choice's content. An empty
// model uses the configured default.
func (c *Client) Complete(ctx context.Context, messages []Message, model string) (string, error) {
	if model == "" {
		model = c.config.Model
	}

	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   c.config.MaxTokens,
		Temperature: temperature(c.config.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	c.log.Debug("chat completion",
		zap.String("model", model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// temperature converts t for the request, whose zero value is omitted from
// the JSON body. Zero is sent as the smallest positive float32.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// GenerateJSON sends prompt and returns the reply as raw JSON. Markdown code
// fences around the reply are removed. ErrInvalidJSON is returned when what
// remains is not valid JSON.
func (c *Client) GenerateJSON(ctx context.Context, prompt, model string) (json.RawMessage, error) {
	content, err := c.Complete(ctx, []Message{
		{Role: openai.ChatMessageRoleSystem, Content: jsonSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, model)
	if err != nil {
		return nil, err
	}
	return ParseJSON(content)
}
