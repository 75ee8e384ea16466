package settings

import (
	"context"
	"fmt"
	"log/slog"

	"journalrag/internal/apperror"
)

// Defaults applied when the settings row cannot be read.
const (
	DefaultSearchTopK     = 10
	DefaultSearchMinScore = 0.25
	DefaultChatTopK       = 5
	DefaultChatMinScore   = 0.5
)

// Reranker providers.
const (
	RerankNone   = "none"
	RerankJina   = "jina"
	RerankCohere = "cohere"
)

type Settings struct {
	ID             int     `json:"-"`
	SearchTopK     int     `json:"search_top_k"`
	SearchMinScore float64 `json:"search_min_score"`
	ChatTopK       int     `json:"chat_top_k"`
	ChatMinScore   float64 `json:"chat_min_score"`
	// FetchK is the candidate pool size; 0 means "same as k".
	FetchK            int    `json:"fetch_k"`
	ChatApplyMinScore bool   `json:"chat_apply_min_score"`
	RerankProvider    string `json:"rerank_provider"`
	RerankAPIKey      string `json:"rerank_api_key"`
}

func Defaults() *Settings {
	return &Settings{
		ID:             1,
		SearchTopK:     DefaultSearchTopK,
		SearchMinScore: DefaultSearchMinScore,
		ChatTopK:       DefaultChatTopK,
		ChatMinScore:   DefaultChatMinScore,
		RerankProvider: RerankNone,
	}
}

func (s *Settings) Validate() error {
	switch {
	case s.SearchTopK <= 0:
		return fmt.Errorf("%w: search_top_k must be > 0", apperror.ErrValidation)
	case s.ChatTopK <= 0:
		return fmt.Errorf("%w: chat_top_k must be > 0", apperror.ErrValidation)
	case s.SearchMinScore < 0 || s.SearchMinScore > 1:
		return fmt.Errorf("%w: search_min_score must be in [0,1]", apperror.ErrValidation)
	case s.ChatMinScore < 0 || s.ChatMinScore > 1:
		return fmt.Errorf("%w: chat_min_score must be in [0,1]", apperror.ErrValidation)
	case s.FetchK < 0:
		return fmt.Errorf("%w: fetch_k must be >= 0", apperror.ErrValidation)
	}
	switch s.RerankProvider {
	case "", RerankNone, RerankJina, RerankCohere:
	default:
		return fmt.Errorf("%w: unknown rerank_provider %q", apperror.ErrValidation, s.RerankProvider)
	}
	return nil
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

// Effective returns the stored settings, or Defaults when they cannot be read.
func (s *Service) Effective(ctx context.Context) *Settings {
	set, err := s.repo.Get(ctx)
	if err != nil || set == nil {
		slog.WarnContext(ctx, "failed to load settings, using defaults", "error", err)
		return Defaults()
	}
	return set
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if set.RerankProvider == "" {
		set.RerankProvider = RerankNone
	}
	if err := set.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, set)
}
