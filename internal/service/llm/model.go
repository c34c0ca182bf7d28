// Package llm adapts langchaingo chat models to the pipeline's LanguageModel.
package llm

import (
	"context"
	"fmt"
	"time"

	"ProTrdx/pkg/config"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Model wraps a langchaingo model in forced-JSON mode.
type Model struct {
	llm         llms.Model
	provider    string
	modelName   string
	temperature float64
	timeout     time.Duration
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg *config.Config) (*Model, error) {
	c := cfg.LLM
	var (
		model llms.Model
		err   error
	)

	switch c.Provider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(c.Model),
			ollama.WithServerURL(c.OllamaHost),
			ollama.WithFormat("json"),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			return nil, fmt.Errorf("openai api key required")
		}
		model, err = openai.New(
			openai.WithToken(c.OpenAIKey),
			openai.WithModel(c.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if c.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic api key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(c.AnthropicKey),
			anthropic.WithModel(c.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", c.Provider)
	}

	return New(model, c.Provider, c.Model, c.Temperature, c.Timeout), nil
}

// New wraps an already constructed langchaingo model.
func New(model llms.Model, provider, name string, temperature float64, timeout time.Duration) *Model {
	return &Model{
		llm:         model,
		provider:    provider,
		modelName:   name,
		temperature: temperature,
		timeout:     timeout,
	}
}

// GenerateJSON sends a system and user message and returns the first choice.
func (m *Model) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(m.temperature),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", m.provider, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%s generate: no response choices", m.provider)
	}
	return response.Choices[0].Content, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

func (m *Model) Provider() string {
	return m.provider
}
