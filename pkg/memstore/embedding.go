package memstore

import (
	"context"
	"math"
	"strings"
)

// KeywordExtractor asks an LLM for a short list of keyword concepts
// describing text. A nil KeywordExtractor, or one that returns an error, is
// treated by EmbeddingBuilder as "no credential" — embedding generation
// still succeeds with an empty keyword sketch.
type KeywordExtractor interface {
	ExtractKeywords(ctx context.Context, text string) ([]string, error)
}

// EmbeddingBuilder turns text into a fixed-length, L2-normalized vector
// from a character-trigram sketch plus an LLM-extracted keyword sketch.
// It is deliberately not a learned embedding: correctness is judged by
// reproducibility and by the ordering it yields on near-duplicate text.
type EmbeddingBuilder struct {
	Keywords KeywordExtractor
}

func NewEmbeddingBuilder(kw KeywordExtractor) *EmbeddingBuilder {
	return &EmbeddingBuilder{Keywords: kw}
}

// Embed builds the sketch vector:
//  1. 5-10 LLM keyword concepts (empty on missing/failing LLM).
//  2. First 64 trigrams of the lowercased text hashed into v[0:64].
//  3. Every keyword hashed into v[64:128], weight 2.
//  4. L2-normalize.
func (b *EmbeddingBuilder) Embed(ctx context.Context, text string) []float32 {
	keywords := b.extractKeywords(ctx, text)

	v := make([]float32, EmbeddingSize)

	lower := strings.ToLower(text)
	trigramCount := 0
	for i := 0; i+3 <= len(lower) && trigramCount < 64; i++ {
		h := shiftAddHash(lower[i : i+3])
		v[h%64] += 1
		trigramCount++
	}

	for _, kw := range keywords {
		h := shiftAddHash(kw)
		v[64+h%64] += 2
	}

	normalize(v)
	return v
}

func (b *EmbeddingBuilder) extractKeywords(ctx context.Context, text string) []string {
	if b.Keywords == nil {
		return nil
	}
	kws, err := b.Keywords.ExtractKeywords(ctx, text)
	if err != nil {
		return nil
	}
	return kws
}

// shiftAddHash is the standard h = h*31 + c shift-add hash over 32-bit
// arithmetic (so the overflow behavior is identical in any language),
// returned as its absolute value so callers can safely take it mod N.
func shiftAddHash(s string) uint32 {
	var h int32
	for i := 0; i < len(s); i++ {
		h = h*31 + int32(s[i])
	}
	if h < 0 {
		h = -h
	}
	return uint32(h)
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// CosineSimilarity returns the cosine similarity between two equal-length
// vectors. Callers must pass equal-length vectors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, NewInvalidInput("cosine similarity requires equal-length vectors")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
