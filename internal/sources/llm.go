package sources

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// LLMClient wraps a langchaingo model with the source's cost settings.
type LLMClient struct {
	model       llms.Model
	modelName   string
	costPer1K   float64
	hasCostRate bool
	log         *slog.Logger
}

// GenerateResult is one completion with its usage accounting.
type GenerateResult struct {
	Text   string
	Tokens int
	Cost   float64
}

// NewLLMClient builds a client from a merged source config. The provider is
// openai-compatible; `base_url` points it at alternative endpoints. The
// model name comes from `model` or `model_name`; the key from `api_key` or
// the variable named by `api_key_env`.
func NewLLMClient(cfg map[string]any, log *slog.Logger) (*LLMClient, error) {
	if log == nil {
		log = slog.Default()
	}
	modelName := configString(cfg, "model")
	if modelName == "" {
		modelName = configString(cfg, "model_name")
	}
	if modelName == "" {
		return nil, errors.New("llm source: model is required")
	}

	opts := []openai.Option{openai.WithModel(modelName)}
	if key := envOrDirect(cfg, "api_key"); key != "" {
		opts = append(opts, openai.WithToken(key))
	}
	if baseURL := configString(cfg, "base_url"); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "llm source: building client")
	}

	c := &LLMClient{model: model, modelName: modelName, log: log}
	if rate, ok := configFloat(cfg, "cost_per_1k_tokens"); ok {
		c.costPer1K = rate
		c.hasCostRate = true
	}
	return c, nil
}

// Generate runs one completion. Token usage comes from the provider when
// reported, otherwise it is approximated at four characters per token over
// prompt and completion.
func (c *LLMClient) Generate(ctx context.Context, systemPrompt, prompt string, temperature float64, maxTokens int) (*GenerateResult, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "llm source: generating with %s", c.modelName)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm source: empty response")
	}
	choice := resp.Choices[0]

	tokens := usageTokens(choice.GenerationInfo)
	if tokens == 0 {
		tokens = approximateTokens(systemPrompt) + approximateTokens(prompt) + approximateTokens(choice.Content)
	}

	result := &GenerateResult{Text: choice.Content, Tokens: tokens}
	if c.hasCostRate {
		result.Cost = float64(tokens) / 1000 * c.costPer1K
	}
	return result, nil
}

// ModelName reports the configured model.
func (c *LLMClient) ModelName() string { return c.modelName }

// usageTokens extracts the total token count from provider generation info.
func usageTokens(info map[string]any) int {
	for _, key := range []string{"TotalTokens", "total_tokens"} {
		switch v := info[key].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	prompt := infoInt(info, "PromptTokens") + infoInt(info, "prompt_tokens")
	completion := infoInt(info, "CompletionTokens") + infoInt(info, "completion_tokens")
	return prompt + completion
}

func infoInt(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func approximateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
