package journal

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"journalrag/internal/apperror"
	"journalrag/internal/chunk"
	"journalrag/internal/middleware"
)

type Store interface {
	Upsert(ctx context.Context, records []chunk.Record) error
	GetAll(ctx context.Context) ([]chunk.Chunk, error)
	GetByDocumentID(ctx context.Context, docID string) ([]chunk.Chunk, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Upload validates every chunk before writing any of them, then upserts the
// batch. Chunks whose id already exists are replaced.
func (s *Service) Upload(ctx context.Context, chunks []chunk.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: no chunks to upload", apperror.ErrValidation)
	}

	records := make([]chunk.Record, 0, len(chunks))
	for _, c := range chunks {
		if err := chunk.Validate(c); err != nil {
			return 0, err
		}
		records = append(records, chunk.ToRecord(c))
	}

	ctx, span := middleware.StartSpan(ctx, "Journal.Upload", attribute.Int("chunks", len(records)))
	defer span.End()

	if err := s.store.Upsert(ctx, records); err != nil {
		middleware.AddSpanError(ctx, err)
		return 0, err
	}
	return len(records), nil
}

// UsageStatistics sums usage counts per source document, highest first.
// Ties are ordered by source id. Documents that were never retrieved appear
// with a total of zero.
func (s *Service) UsageStatistics(ctx context.Context) ([]chunk.UsageTotal, error) {
	ctx, span := middleware.StartSpan(ctx, "Journal.UsageStatistics")
	defer span.End()

	all, err := s.store.GetAll(ctx)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	totals := make(map[string]int)
	for _, c := range all {
		if c.SourceDocID == "" {
			continue
		}
		totals[c.SourceDocID] += c.UsageCount
	}

	out := make([]chunk.UsageTotal, 0, len(totals))
	for id, total := range totals {
		out = append(out, chunk.UsageTotal{SourceDocID: id, TotalUsageCount: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalUsageCount != out[j].TotalUsageCount {
			return out[i].TotalUsageCount > out[j].TotalUsageCount
		}
		return out[i].SourceDocID < out[j].SourceDocID
	})

	span.SetAttributes(attribute.Int("chunks", len(all)), attribute.Int("journals", len(out)))
	return out, nil
}

// JournalContent returns the chunks of one journal ordered by chunk index.
func (s *Service) JournalContent(ctx context.Context, journalID string) ([]chunk.Chunk, error) {
	if journalID == "" {
		return nil, fmt.Errorf("%w: journal id is required", apperror.ErrValidation)
	}

	ctx, span := middleware.StartSpan(ctx, "Journal.Content", attribute.String("journal_id", journalID))
	defer span.End()

	chunks, err := s.store.GetByDocumentID(ctx, journalID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: journal %s", apperror.ErrNotFound, journalID)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}
