package journal_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"journalrag/internal/chunk"
)

// memStore is an in-memory chunk store. Distance is the share of query words
// missing from the chunk text.
type memStore struct {
	mu     sync.Mutex
	chunks map[string]chunk.Chunk
	err    error
}

func newMemStore() *memStore {
	return &memStore{chunks: make(map[string]chunk.Chunk)}
}

func (m *memStore) Upsert(ctx context.Context, records []chunk.Record) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.chunks[r.ID] = chunk.FromProperties(r.Properties)
	}
	return nil
}

func (m *memStore) GetAll(ctx context.Context) ([]chunk.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chunk.Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) GetByDocumentID(ctx context.Context, docID string) ([]chunk.Chunk, error) {
	all, err := m.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []chunk.Chunk
	for _, c := range all {
		if c.SourceDocID == docID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) QuerySimilar(ctx context.Context, text string, k int) ([]chunk.Candidate, error) {
	all, err := m.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	words := strings.Fields(strings.ToLower(text))
	out := make([]chunk.Candidate, 0, len(all))
	for _, c := range all {
		body := strings.ToLower(c.Text)
		missing := 0
		for _, w := range words {
			if !strings.Contains(body, strings.Trim(w, "?.,")) {
				missing++
			}
		}
		out = append(out, chunk.Candidate{Chunk: c, Distance: float64(missing) / float64(len(words))})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memStore) IncrementUsage(ctx context.Context, ids []string) []chunk.UsageFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []chunk.UsageFailure
	for _, id := range ids {
		c, ok := m.chunks[id]
		if !ok {
			failed = append(failed, chunk.UsageFailure{ID: id, Err: errors.New("not found")})
			continue
		}
		c.UsageCount++
		m.chunks[id] = c
	}
	return failed
}
