// Package memstorellm is the home for the LLM vendor fleet behind
// EmbeddingBuilder's keyword extraction and ConversationAnalyzer's
// structured extraction/summarization/query-suggestion calls. Every
// provider implements the same narrow, single-shot contract — streaming
// and tool-calling are deliberately absent, since nothing in this module
// ever needs them.
package memstorellm

import "context"

// Completer issues one system+user prompt round trip and returns the
// model's text response.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
