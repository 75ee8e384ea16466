package journal

import (
	"context"

	"journalrag/internal/adapter/reranker"
	"journalrag/internal/chat"
	"journalrag/internal/settings"
)

type SettingsProvider interface {
	Effective(ctx context.Context) *settings.Settings
}

// SettingsOptions reads chat switches from the runtime settings.
type SettingsOptions struct {
	settings SettingsProvider
}

func NewSettingsOptions(s SettingsProvider) *SettingsOptions {
	return &SettingsOptions{settings: s}
}

func (o *SettingsOptions) ChatOptions(ctx context.Context) chat.Options {
	s := o.settings.Effective(ctx)
	return chat.Options{
		ApplyMinScore: s.ChatApplyMinScore,
		Rerank:        reranker.Enabled(s),
	}
}
