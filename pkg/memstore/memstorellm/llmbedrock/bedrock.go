// Package llmbedrock adapts aws-sdk-go-v2's bedrockruntime Converse API to
// memstorellm.Completer.
package llmbedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// Provider implements memstorellm.Completer for AWS Bedrock.
type Provider struct {
	client *bedrockruntime.Client
	model  string
}

// New creates a new Bedrock completer from an already-resolved AWS config.
func New(cfg aws.Config, model string) *Provider {
	if model == "" {
		model = "anthropic.claude-sonnet-4-20250514-v1:0"
	}
	return &Provider{client: bedrockruntime.NewFromConfig(cfg), model: model}
}

func (p *Provider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.model),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: userPrompt}},
			},
		},
	}
	if systemPrompt != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: systemPrompt}}
	}

	output, err := p.client.Converse(ctx, input)
	if err != nil {
		return "", ParseBedrockError(err).WithDetail("model", p.model)
	}

	msgOutput, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", errorRegistry.New(ErrAPIResponse).WithDetail("model", p.model)
	}

	var out string
	for _, block := range msgOutput.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			out += text.Value
		}
	}
	return out, nil
}
