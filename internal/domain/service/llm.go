package service

import "context"

// LanguageModel produces a single JSON-object completion.
type LanguageModel interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewsSource is one research provider.
type NewsSource interface {
	Name() string
	Search(ctx context.Context, symbol string) ([]RawNews, error)
}

// RawNews is a provider hit before freshness filtering.
type RawNews struct {
	Title       string
	URL         string
	PublishedAt string
	Sentiment   string
	ImpactScore float64
}
