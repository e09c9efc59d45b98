package services

import (
	"context"
	"sync"

	"github.com/soaringjerry/whenwhy/internal/models"
)

// MaxSuggestions bounds how many suggestions one batch may display.
const MaxSuggestions = 4

// FallbackSuggestions replace a failed provider call.
var FallbackSuggestions = []string{
	"Explore relationships between key variables in your dataset",
	"Consider how external factors might influence the patterns you see",
	"Think about practical applications of insights from this data",
}

type SuggestionRequest struct {
	Dataset       models.Dataset
	ExistingIdeas []string
}

// SuggestionProvider produces short research prompts for a dataset.
type SuggestionProvider interface {
	Generate(ctx context.Context, req SuggestionRequest) ([]string, error)
}

// FixedProvider returns the same list or error on every call.
type FixedProvider struct {
	Suggestions []string
	Err         error

	mu       sync.Mutex
	requests []SuggestionRequest
}

func NewFixedProvider(suggestions ...string) *FixedProvider {
	return &FixedProvider{Suggestions: suggestions}
}

func (p *FixedProvider) Generate(ctx context.Context, req SuggestionRequest) ([]string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return append([]string(nil), p.Suggestions...), nil
}

// Requests returns every request seen so far.
func (p *FixedProvider) Requests() []SuggestionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SuggestionRequest(nil), p.requests...)
}

// GenerateOrFallback calls provider and substitutes the fallback list on any
// failure or empty result. The bool reports whether the fallback was used.
func GenerateOrFallback(ctx context.Context, provider SuggestionProvider, req SuggestionRequest) ([]string, bool, error) {
	if provider == nil {
		return append([]string(nil), FallbackSuggestions...), true, nil
	}
	list, err := provider.Generate(ctx, req)
	if err != nil || len(list) == 0 {
		return append([]string(nil), FallbackSuggestions...), true, err
	}
	if len(list) > MaxSuggestions {
		list = list[:MaxSuggestions]
	}
	return list, false, nil
}
