package usage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"journalrag/internal/chunk"
	"journalrag/internal/config"
	"journalrag/internal/middleware"
)

// HandlerIncrement names failed usage jobs.
const HandlerIncrement = "usage-increment"

// Message is the body of a queued increment and of a failed job payload.
type Message struct {
	ChunkIDs      []string `json:"chunk_ids"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

type Incrementer interface {
	IncrementUsage(ctx context.Context, ids []string) []chunk.UsageFailure
}

// FailureRecorder persists an increment that could not be applied so it can be replayed.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, chunkID, handler string, payload []byte, cause error) error
}

type Publisher interface {
	Publish(topic string, body []byte) error
}

// Recorder bumps usage counts of retrieved chunks. It never fails the caller.
type Recorder interface {
	Record(ctx context.Context, ids []string)
}

// Applier runs increments against the store and records per-id failures.
type Applier struct {
	store    Incrementer
	failures FailureRecorder
}

func NewApplier(store Incrementer, failures FailureRecorder) *Applier {
	return &Applier{store: store, failures: failures}
}

// Apply returns the number of ids that failed.
func (a *Applier) Apply(ctx context.Context, ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	ctx, span := middleware.StartSpan(ctx, "Usage.Apply", attribute.Int("ids", len(ids)))
	defer span.End()

	failed := a.store.IncrementUsage(ctx, ids)
	for _, f := range failed {
		slog.WarnContext(ctx, "usage increment failed", "chunk_id", f.ID, "error", f.Err)
		if a.failures == nil {
			continue
		}
		payload, _ := json.Marshal(Message{ChunkIDs: []string{f.ID}})
		if err := a.failures.RecordFailure(ctx, f.ID, HandlerIncrement, payload, f.Err); err != nil {
			slog.ErrorContext(ctx, "failed to save failed usage job", "chunk_id", f.ID, "error", err)
		}
	}
	if len(failed) > 0 {
		span.SetAttributes(attribute.Int("failures", len(failed)))
	}
	return len(failed)
}

// SyncRecorder applies increments before returning.
type SyncRecorder struct {
	applier *Applier
}

func NewSyncRecorder(a *Applier) *SyncRecorder {
	return &SyncRecorder{applier: a}
}

func (r *SyncRecorder) Record(ctx context.Context, ids []string) {
	r.applier.Apply(ctx, ids)
}

// AsyncRecorder applies increments in the background, detached from request cancellation.
type AsyncRecorder struct {
	applier *Applier
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncRecorder(a *Applier, timeout time.Duration) *AsyncRecorder {
	return &AsyncRecorder{applier: a, timeout: timeout}
}

func (r *AsyncRecorder) Record(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	ids = append([]string(nil), ids...)
	bg := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.timeout > 0 {
			var cancel context.CancelFunc
			bg, cancel = context.WithTimeout(bg, r.timeout)
			defer cancel()
		}
		r.applier.Apply(bg, ids)
	}()
}

// Wait blocks until in-flight increments finish.
func (r *AsyncRecorder) Wait() {
	r.wg.Wait()
}

// QueueRecorder publishes increments for the usage worker. If publishing
// fails the increment is applied inline instead.
type QueueRecorder struct {
	pub     Publisher
	applier *Applier
}

func NewQueueRecorder(pub Publisher, a *Applier) *QueueRecorder {
	return &QueueRecorder{pub: pub, applier: a}
}

func (r *QueueRecorder) Record(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	body, err := json.Marshal(Message{ChunkIDs: ids, CorrelationID: middleware.GetCorrelationID(ctx)})
	if err == nil {
		err = r.pub.Publish(config.TopicUsageIncrement, body)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to queue usage increment, applying inline", "error", err, "ids", len(ids))
		r.applier.Apply(ctx, ids)
	}
}

// NewRecorder builds the recorder for mode. Unknown modes fall back to sync.
func NewRecorder(mode string, a *Applier, pub Publisher, timeout time.Duration) Recorder {
	switch mode {
	case config.UsageModeAsync:
		return NewAsyncRecorder(a, timeout)
	case config.UsageModeQueue:
		if pub != nil {
			return NewQueueRecorder(pub, a)
		}
		slog.Warn("queue usage mode without publisher, using sync")
	}
	return NewSyncRecorder(a)
}
