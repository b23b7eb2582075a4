package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"tipflow/internal/config"
)

// Prompt is one system + user exchange.
type Prompt struct {
	System string
	User   string
}

// Client completes a prompt into raw model text.
type Client interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Settings captures the runtime settings required to talk to the model.
type Settings struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// ErrEmptyResponse reports a completion without any choices or text.
var ErrEmptyResponse = errors.New("llm: empty response")

// OpenAI implements Client using the official openai-go SDK.
type OpenAI struct {
	settings Settings
	client   openai.Client
}

// NewOpenAI validates settings and builds a client. Retries are disabled; a
// failed call falls back to the static pool instead.
func NewOpenAI(settings Settings, extra ...option.RequestOption) (*OpenAI, error) {
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, errors.New("llm: api key missing")
	}
	if strings.TrimSpace(settings.Model) == "" {
		return nil, errors.New("llm: model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(settings.APIKey),
		option.WithMaxRetries(0),
	}
	if settings.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(settings.BaseURL))
	}
	if settings.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(settings.Timeout))
	}
	opts = append(opts, extra...)
	return &OpenAI{settings: settings, client: openai.NewClient(opts...)}, nil
}

// FromConfig returns an OpenAI client when an API key is configured and nil
// otherwise.
func FromConfig(cfg *config.Config) (Client, error) {
	if cfg == nil || !cfg.Generator.UsesModel() {
		return nil, nil
	}
	client, err := NewOpenAI(Settings{
		APIKey:      cfg.Generator.APIKey,
		BaseURL:     cfg.Generator.BaseURL,
		Model:       cfg.Generator.Model,
		Temperature: cfg.Generator.Temperature,
		MaxTokens:   cfg.Generator.MaxTokens,
		Timeout:     time.Duration(cfg.Generator.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (o *OpenAI) Complete(ctx context.Context, prompt Prompt) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.settings.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		Temperature: openai.Float(o.settings.Temperature),
	}
	if o.settings.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.settings.MaxTokens))
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// Static returns a fixed response or error and records the prompts it saw.
type Static struct {
	Response string
	Err      error
	Prompts  []Prompt
}

func (s *Static) Complete(_ context.Context, prompt Prompt) (string, error) {
	s.Prompts = append(s.Prompts, prompt)
	if s.Err != nil {
		return "", s.Err
	}
	return s.Response, nil
}

// HealthCheck lists models to confirm the endpoint is reachable and the key
// is accepted.
func (o *OpenAI) HealthCheck(ctx context.Context) error {
	if _, err := o.client.Models.List(ctx); err != nil {
		return fmt.Errorf("llm: list models: %w", err)
	}
	return nil
}
