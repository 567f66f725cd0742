// Package storyteller narrates each dawn with a language model. It is
// optional: with no provider configured the console runs without it.
package storyteller

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/kingrea/loups-garous/internal/config"
)

const systemPrompt = `You are the narrator of a village game of Loups-Garous. Each dawn you tell the villagers what the night brought. Keep it to 2-3 sentences, gothic and atmospheric. Never reveal anyone's role.`

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultOllamaModel    = "llama3.2"
	defaultOllamaURL      = "http://localhost:11434"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
)

// Teller turns the game history into a short story. onChunk receives text as
// it streams in and may be nil.
type Teller interface {
	Tell(ctx context.Context, history []string, onChunk func(string)) (string, error)
}

type llmTeller struct {
	llm          llms.Model
	systemPrompt string
	callOpts     []llms.CallOption
}

// NewModelTeller wraps any langchaingo model.
func NewModelTeller(model llms.Model, opts ...llms.CallOption) Teller {
	return &llmTeller{llm: model, systemPrompt: systemPrompt, callOpts: opts}
}

// NewTeller builds the teller for the configured provider. It returns a nil
// Teller and no error when no provider is set.
func NewTeller(cfg config.StorytellerConfig) (Teller, error) {
	var callOpts []llms.CallOption
	if cfg.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(cfg.Temperature))
	}
	model := strings.TrimSpace(cfg.Model)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return nil, nil
	case "openai":
		if model == "" {
			model = defaultOpenAIModel
		}
		opts := []openai.Option{openai.WithModel(model)}
		if cfg.URL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.URL))
		}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("storyteller: openai (%s): %w", model, err)
		}
		return NewModelTeller(llm, callOpts...), nil
	case "ollama":
		if model == "" {
			model = defaultOllamaModel
		}
		url := cfg.URL
		if url == "" {
			url = defaultOllamaURL
		}
		llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(url))
		if err != nil {
			return nil, fmt.Errorf("storyteller: ollama (%s at %s): %w", model, url, err)
		}
		return NewModelTeller(llm, callOpts...), nil
	case "anthropic":
		if model == "" {
			model = defaultAnthropicModel
		}
		opts := []anthropic.Option{anthropic.WithModel(model)}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithToken(cfg.APIKey))
		}
		if cfg.URL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.URL))
		}
		llm, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("storyteller: anthropic (%s): %w", model, err)
		}
		return NewModelTeller(llm, callOpts...), nil
	default:
		return nil, fmt.Errorf("storyteller: provider %q is not supported", cfg.Provider)
	}
}

func (t *llmTeller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, t.systemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman,
			"What has happened so far:\n"+strings.Join(history, "\n")+
				"\n\nTell the village, in 2-3 sentences, what they find this morning."),
	}

	var full strings.Builder
	opts := append(append([]llms.CallOption(nil), t.callOpts...), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		text := string(chunk)
		full.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
		return nil
	}))

	resp, err := t.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return strings.TrimSpace(full.String()), err
	}
	// Some providers ignore streaming and only fill the response.
	if full.Len() == 0 && resp != nil && len(resp.Choices) > 0 {
		return strings.TrimSpace(resp.Choices[0].Content), nil
	}
	return strings.TrimSpace(full.String()), nil
}
