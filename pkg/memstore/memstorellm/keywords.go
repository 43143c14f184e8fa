package memstorellm

import (
	"context"
	"errors"
	"strings"
)

const keywordSystemPrompt = "You extract keyword concepts from text for a search index. " +
	"Respond with 5 to 10 comma-separated keyword phrases and nothing else."

// KeywordExtractor adapts any Completer into a memstore.KeywordExtractor by
// prompting for a short comma-separated keyword list and parsing the
// response. It satisfies the interface structurally, so memstore never
// imports this package.
type KeywordExtractor struct {
	Completer Completer
}

func NewKeywordExtractor(c Completer) *KeywordExtractor {
	return &KeywordExtractor{Completer: c}
}

var errNoCompleter = errors.New("memstorellm: no completer configured")

func (k *KeywordExtractor) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	if k == nil || k.Completer == nil {
		return nil, errNoCompleter
	}
	reply, err := k.Completer.Complete(ctx, keywordSystemPrompt, text)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(reply, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
