package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"journalrag/internal/apperror"
	"journalrag/internal/chunk"
	"journalrag/internal/middleware"
	"journalrag/internal/usage"
)

type Store interface {
	QuerySimilar(ctx context.Context, queryText string, k int) ([]chunk.Candidate, error)
}

// Query parameters of a similarity search. FetchK bounds the candidate
// pool and defaults to K.
type Query struct {
	Text     string
	K        int
	FetchK   int
	MinScore float64
}

func (q Query) Validate() error {
	switch {
	case strings.TrimSpace(q.Text) == "":
		return fmt.Errorf("%w: query must not be empty", apperror.ErrValidation)
	case q.K <= 0:
		return fmt.Errorf("%w: k must be > 0", apperror.ErrValidation)
	case q.FetchK < 0:
		return fmt.Errorf("%w: fetch_k must be >= 0", apperror.ErrValidation)
	case q.MinScore < 0 || q.MinScore > 1:
		return fmt.Errorf("%w: min_score must be in [0,1]", apperror.ErrValidation)
	}
	return nil
}

// PoolSize is the number of candidates fetched from the store.
func (q Query) PoolSize() int {
	if q.FetchK > 0 {
		return q.FetchK
	}
	return q.K
}

type Service struct {
	store    Store
	recorder usage.Recorder
	logger   *QueryLogger
}

func NewService(store Store, recorder usage.Recorder, logger *QueryLogger) *Service {
	return &Service{store: store, recorder: recorder, logger: logger}
}

// SimilaritySearch returns at most q.K hits with score >= q.MinScore, best
// first, and records usage for every returned chunk.
func (s *Service) SimilaritySearch(ctx context.Context, q Query) ([]chunk.Hit, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := middleware.StartSpan(ctx, "Retrieval.SimilaritySearch",
		attribute.Int("k", q.K),
		attribute.Int("fetch_k", q.PoolSize()),
		attribute.Float64("min_score", q.MinScore),
	)
	defer span.End()
	start := time.Now()

	candidates, err := s.store.QuerySimilar(ctx, q.Text, q.PoolSize())
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	hits := Rank(candidates, q.MinScore, q.K)

	if s.recorder != nil && len(hits) > 0 {
		s.recorder.Record(ctx, IDs(hits))
	}

	span.SetAttributes(attribute.Int("candidates", len(candidates)), attribute.Int("hits", len(hits)))
	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Kind:          KindSimilaritySearch,
			Query:         q.Text,
			K:             q.K,
			MinScore:      q.MinScore,
			NumCandidates: len(candidates),
			NumResults:    len(hits),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return hits, nil
}
