package reranker

import (
	"context"
	"fmt"

	"journalrag/internal/settings"
)

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// DynamicClient picks provider and key from runtime settings on every call.
type DynamicClient struct {
	settings SettingsProvider
	baseURL  string
}

func NewDynamicClient(s SettingsProvider) *DynamicClient {
	return &DynamicClient{settings: s}
}

func (d *DynamicClient) SetBaseURL(url string) {
	d.baseURL = url
}

func (d *DynamicClient) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	s, err := d.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if !Enabled(s) {
		return identity(len(docs)), nil
	}

	client := NewClient(s.RerankProvider, s.RerankAPIKey)
	if d.baseURL != "" {
		client.SetBaseURL(d.baseURL)
	}
	return client.Rerank(ctx, query, docs)
}

// Enabled reports whether s names a usable reranker.
func Enabled(s *settings.Settings) bool {
	if s == nil || s.RerankAPIKey == "" {
		return false
	}
	return s.RerankProvider == settings.RerankJina || s.RerankProvider == settings.RerankCohere
}
