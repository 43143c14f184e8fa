// Package llmopenai adapts openai-go/v3 to memstorellm.Completer.
package llmopenai

import (
	"context"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Provider implements memstorellm.Completer for OpenAI chat completions.
type Provider struct {
	client openai.Client
	apiKey string
	model  string
}

// New creates a new OpenAI completer. An empty apiKey falls back to
// OPENAI_API_KEY.
func New(apiKey, model string, opts ...option.RequestOption) *Provider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if model == "" {
		model = "gpt-4o"
	}

	options := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Provider{
		client: openai.NewClient(options...),
		apiKey: apiKey,
		model:  model,
	}
}

func (p *Provider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if p.apiKey == "" {
		return "", errorRegistry.New(ErrMissingAPIKey)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    p.model,
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", ParseOpenAIError(err).WithDetail("model", p.model)
	}
	if len(completion.Choices) == 0 {
		return "", errorRegistry.New(ErrNoChoicesInResponse).WithDetail("model", p.model)
	}

	return completion.Choices[0].Message.Content, nil
}
