package llm

import (
	"fmt"

	"mcpchat/internal/agenterr"
	"mcpchat/internal/config"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultOllamaURL is the OpenAI-compatible endpoint of a local Ollama.
const DefaultOllamaURL = "http://localhost:11434/v1"

// NewGateway builds a Gateway for the provider named in settings.
func NewGateway(settings config.Settings, opts ...Option) (*Gateway, error) {
	model, err := newModel(settings)
	if err != nil {
		return nil, agenterr.Configuration(fmt.Sprintf("initialize %s client", settings.Provider), err)
	}
	if settings.Provider == config.ProviderAnthropic {
		// The anthropic client reads only the first part of an assistant message.
		opts = append([]Option{WithSplitToolCalls()}, opts...)
	}
	return New(model, settings.Model, opts...), nil
}

func newModel(settings config.Settings) (llms.Model, error) {
	switch settings.Provider {
	case config.ProviderOpenAI, "":
		opts := []openai.Option{
			openai.WithModel(settings.Model),
			openai.WithToken(settings.APIKey),
		}
		if settings.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(settings.BaseURL))
		}
		return openai.New(opts...)
	case config.ProviderAnthropic:
		opts := []anthropic.Option{
			anthropic.WithModel(settings.Model),
			anthropic.WithToken(settings.APIKey),
		}
		if settings.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(settings.BaseURL))
		}
		return anthropic.New(opts...)
	case config.ProviderOllama:
		// langchaingo's native ollama client drops tools, so Ollama is reached
		// through its OpenAI-compatible API.
		token := settings.APIKey
		if token == "" {
			token = "ollama"
		}
		baseURL := settings.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return openai.New(
			openai.WithModel(settings.Model),
			openai.WithToken(token),
			openai.WithBaseURL(baseURL),
		)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", settings.Provider)
	}
}
