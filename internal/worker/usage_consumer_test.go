package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"journalrag/internal/middleware"
	"journalrag/internal/usage"
	"journalrag/internal/worker"
)

type MockApplier struct{ mock.Mock }

func (m *MockApplier) Apply(ctx context.Context, ids []string) int {
	args := m.Called(ctx, ids)
	return args.Int(0)
}

func TestUsageConsumer_HandleMessage(t *testing.T) {
	a := new(MockApplier)
	consumer := worker.NewUsageConsumer(a, time.Second)

	body, _ := json.Marshal(usage.Message{ChunkIDs: []string{"a1", "a2"}, CorrelationID: "corr-1"})

	a.On("Apply", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return hasDeadline && middleware.GetCorrelationID(ctx) == "corr-1"
	}), []string{"a1", "a2"}).Return(0)

	err := consumer.HandleMessage(&nsq.Message{Body: body})

	assert.NoError(t, err)
	a.AssertExpectations(t)
}

func TestUsageConsumer_PartialFailureIsAcked(t *testing.T) {
	a := new(MockApplier)
	consumer := worker.NewUsageConsumer(a, time.Second)

	body, _ := json.Marshal(usage.Message{ChunkIDs: []string{"a1", "missing"}})
	a.On("Apply", mock.Anything, []string{"a1", "missing"}).Return(1)

	assert.NoError(t, consumer.HandleMessage(&nsq.Message{Body: body}))
	a.AssertExpectations(t)
}

func TestUsageConsumer_DropsBadMessages(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"Empty Body", nil},
		{"Invalid JSON", []byte("invalid json")},
		{"No Chunk IDs", []byte(`{"chunk_ids":[]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := new(MockApplier)
			consumer := worker.NewUsageConsumer(a, time.Second)

			assert.NoError(t, consumer.HandleMessage(&nsq.Message{Body: tt.body}))
			a.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
		})
	}
}
