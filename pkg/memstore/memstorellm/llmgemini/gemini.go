// Package llmgemini adapts google.golang.org/genai to memstorellm.Completer.
package llmgemini

import (
	"context"
	"os"

	"google.golang.org/genai"
)

// Provider implements memstorellm.Completer for Google Gemini.
type Provider struct {
	client *genai.Client
	apiKey string
	model  string
}

// New creates a new Gemini completer against the public Gemini API. An
// empty apiKey falls back to GEMINI_API_KEY.
func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, WrapError(err, ErrMissingAPIKey)
	}

	return &Provider{client: client, apiKey: apiKey, model: model}, nil
}

func (p *Provider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if p.apiKey == "" {
		return "", errorRegistry.New(ErrMissingAPIKey)
	}

	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(systemPrompt)},
		}
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{genai.NewPartFromText(userPrompt)},
	}}

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", ParseGeminiError(err).WithDetail("model", p.model)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errorRegistry.New(ErrAPIResponse).WithDetail("model", p.model)
	}

	var out string
	for _, part := range result.Candidates[0].Content.Parts {
		out += part.Text
	}
	return out, nil
}
