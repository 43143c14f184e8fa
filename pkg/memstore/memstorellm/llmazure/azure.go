// Package llmazure adapts openai-go/v3's Azure OpenAI transport to
// memstorellm.Completer.
package llmazure

import (
	"context"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
)

// Provider implements memstorellm.Completer for Azure OpenAI chat
// completions. deployment is the Azure deployment name, used as the
// chat completion model.
type Provider struct {
	client     openai.Client
	endpoint   string
	deployment string
}

// New creates a new Azure OpenAI completer, authenticating with an API
// key. An empty apiKey falls back to AZURE_OPENAI_API_KEY.
func New(endpoint, apiKey, apiVersion, deployment string) *Provider {
	if apiKey == "" {
		apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
	}
	if apiVersion == "" {
		apiVersion = "2024-06-01"
	}

	client := openai.NewClient(
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	)
	return &Provider{client: client, endpoint: endpoint, deployment: deployment}
}

// NewWithCredential creates a new Azure OpenAI completer authenticating via
// Azure AD instead of an API key.
func NewWithCredential(endpoint, apiVersion, deployment string, cred azcore.TokenCredential) *Provider {
	if apiVersion == "" {
		apiVersion = "2024-06-01"
	}

	client := openai.NewClient(
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithTokenCredential(cred),
	)
	return &Provider{client: client, endpoint: endpoint, deployment: deployment}
}

func (p *Provider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if p.endpoint == "" {
		return "", errorRegistry.New(ErrMissingEndpoint)
	}
	if p.deployment == "" {
		return "", errorRegistry.New(ErrMissingEndpoint).WithDetail("error", "deployment name is required")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    p.deployment,
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", ParseAzureError(err).WithDetail("deployment", p.deployment)
	}
	if len(completion.Choices) == 0 {
		return "", errorRegistry.New(ErrAPIResponse).WithDetail("deployment", p.deployment)
	}

	return completion.Choices[0].Message.Content, nil
}
