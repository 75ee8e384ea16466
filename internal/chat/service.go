package chat

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"journalrag/internal/chunk"
	"journalrag/internal/middleware"
	"journalrag/internal/retrieval"
	"journalrag/internal/usage"
)

type Store interface {
	QuerySimilar(ctx context.Context, queryText string, k int) ([]chunk.Candidate, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}

// Options are the runtime switches read on each request.
type Options struct {
	ApplyMinScore bool
	Rerank        bool
}

type OptionsProvider interface {
	ChatOptions(ctx context.Context) Options
}

type Request struct {
	Query    string
	K        int
	FetchK   int
	MinScore float64
}

type Answer struct {
	Text      string   `json:"answer"`
	Citations []string `json:"citations"`
}

type Service struct {
	store     Store
	generator Generator
	reranker  Reranker
	recorder  usage.Recorder
	options   OptionsProvider
	logger    *retrieval.QueryLogger
}

func NewService(store Store, gen Generator, rr Reranker, rec usage.Recorder, opts OptionsProvider, logger *retrieval.QueryLogger) *Service {
	return &Service{store: store, generator: gen, reranker: rr, recorder: rec, options: opts, logger: logger}
}

// Chat answers req.Query from retrieved chunks. Citations list the distinct
// source document ids of the context in first-seen order and are never
// reconciled with citations the model writes inline.
func (s *Service) Chat(ctx context.Context, req Request) (Answer, error) {
	q := retrieval.Query{Text: req.Query, K: req.K, FetchK: req.FetchK, MinScore: req.MinScore}
	if err := q.Validate(); err != nil {
		return Answer{}, err
	}

	ctx, span := middleware.StartSpan(ctx, "Chat.Answer", attribute.Int("k", q.K), attribute.Int("fetch_k", q.PoolSize()))
	defer span.End()
	start := time.Now()

	var opts Options
	if s.options != nil {
		opts = s.options.ChatOptions(ctx)
	}

	candidates, err := s.store.QuerySimilar(ctx, q.Text, q.PoolSize())
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return Answer{}, err
	}

	var hits []chunk.Hit
	if opts.ApplyMinScore {
		hits = retrieval.Rank(candidates, q.MinScore, q.K)
	} else {
		slog.DebugContext(ctx, "chat ignores min_score", "min_score", q.MinScore)
		hits = retrieval.ToHits(candidates)
		if len(hits) > q.K {
			hits = hits[:q.K]
		}
	}

	if opts.Rerank && s.reranker != nil && len(hits) > 1 {
		hits = s.rerank(ctx, q.Text, hits)
	}

	blocks := make([]string, 0, len(hits))
	citations := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		blocks = append(blocks, ContextBlock(h))
		if h.SourceDocID != "" && !seen[h.SourceDocID] {
			seen[h.SourceDocID] = true
			citations = append(citations, h.SourceDocID)
		}
	}

	if s.recorder != nil && len(hits) > 0 {
		s.recorder.Record(ctx, retrieval.IDs(hits))
	}

	text, err := s.generator.Generate(ctx, BuildPrompt(q.Text, blocks))
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return Answer{}, err
	}

	span.SetAttributes(attribute.Int("context_blocks", len(blocks)), attribute.Int("citations", len(citations)))
	if s.logger != nil {
		s.logger.Log(retrieval.QueryLogEntry{
			Kind:          retrieval.KindChat,
			Query:         q.Text,
			K:             q.K,
			MinScore:      q.MinScore,
			NumCandidates: len(candidates),
			NumResults:    len(hits),
			Citations:     citations,
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return Answer{Text: text, Citations: citations}, nil
}

// rerank reorders hits by the reranker; on error the store order is kept.
func (s *Service) rerank(ctx context.Context, query string, hits []chunk.Hit) []chunk.Hit {
	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = h.Text
	}

	indices, err := s.reranker.Rerank(ctx, query, docs)
	if err != nil {
		slog.WarnContext(ctx, "rerank failed, keeping store order", "error", err)
		return hits
	}

	out := make([]chunk.Hit, 0, len(hits))
	used := make([]bool, len(hits))
	for _, idx := range indices {
		if idx >= 0 && idx < len(hits) && !used[idx] {
			used[idx] = true
			out = append(out, hits[idx])
		}
	}
	for i, h := range hits {
		if !used[i] {
			out = append(out, h)
		}
	}
	return out
}
