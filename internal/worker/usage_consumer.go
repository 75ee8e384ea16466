package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"journalrag/internal/middleware"
	"journalrag/internal/usage"
)

type Applier interface {
	Apply(ctx context.Context, ids []string) int
}

// UsageConsumer applies queued usage increments. Run it with MaxInFlight 1 so
// increments to the same chunk never interleave.
type UsageConsumer struct {
	applier Applier
	timeout time.Duration
}

func NewUsageConsumer(a Applier, timeout time.Duration) *UsageConsumer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &UsageConsumer{applier: a, timeout: timeout}
}

func (h *UsageConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload usage.Message
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill
		slog.Error("poison pill: invalid usage message", "error", err)
		return nil
	}

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if len(payload.ChunkIDs) == 0 {
		slog.WarnContext(ctx, "usage message without chunk ids, dropping")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	// Failed ids are saved as failed jobs by the applier, so the message is
	// acked either way. Requeueing would double count the ids that succeeded.
	failed := h.applier.Apply(ctx, payload.ChunkIDs)
	slog.InfoContext(ctx, "usage increments applied", "count", len(payload.ChunkIDs), "failed", failed)
	return nil
}
