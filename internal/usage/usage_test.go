package usage_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"journalrag/internal/chunk"
	"journalrag/internal/config"
	"journalrag/internal/middleware"
	"journalrag/internal/usage"
)

type MockIncrementer struct{ mock.Mock }

func (m *MockIncrementer) IncrementUsage(ctx context.Context, ids []string) []chunk.UsageFailure {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]chunk.UsageFailure)
}

type MockFailureRecorder struct{ mock.Mock }

func (m *MockFailureRecorder) RecordFailure(ctx context.Context, chunkID, handler string, payload []byte, cause error) error {
	return m.Called(ctx, chunkID, handler, payload, cause).Error(0)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

func TestApplier_RecordsEachFailure(t *testing.T) {
	store := new(MockIncrementer)
	failures := new(MockFailureRecorder)
	cause := errors.New("weaviate timeout")

	store.On("IncrementUsage", mock.Anything, []string{"a1", "a2", "a3"}).
		Return([]chunk.UsageFailure{{ID: "a2", Err: cause}})
	failures.On("RecordFailure", mock.Anything, "a2", usage.HandlerIncrement, mock.MatchedBy(func(p []byte) bool {
		var msg usage.Message
		return json.Unmarshal(p, &msg) == nil && assert.ObjectsAreEqual([]string{"a2"}, msg.ChunkIDs)
	}), cause).Return(nil)

	n := usage.NewApplier(store, failures).Apply(context.Background(), []string{"a1", "a2", "a3"})

	assert.Equal(t, 1, n)
	store.AssertExpectations(t)
	failures.AssertExpectations(t)
}

func TestApplier_FailureStoreErrorIsSwallowed(t *testing.T) {
	store := new(MockIncrementer)
	failures := new(MockFailureRecorder)
	store.On("IncrementUsage", mock.Anything, []string{"a1"}).Return([]chunk.UsageFailure{{ID: "a1", Err: errors.New("x")}})
	failures.On("RecordFailure", mock.Anything, "a1", usage.HandlerIncrement, mock.Anything, mock.Anything).Return(errors.New("db down"))

	assert.NotPanics(t, func() {
		usage.NewApplier(store, failures).Apply(context.Background(), []string{"a1"})
	})
}

func TestApplier_EmptyIsNoop(t *testing.T) {
	store := new(MockIncrementer)
	assert.Equal(t, 0, usage.NewApplier(store, nil).Apply(context.Background(), nil))
	store.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything)
}

func TestSyncRecorder(t *testing.T) {
	store := new(MockIncrementer)
	store.On("IncrementUsage", mock.Anything, []string{"a1"}).Return(nil).Once()

	usage.NewSyncRecorder(usage.NewApplier(store, nil)).Record(context.Background(), []string{"a1"})
	store.AssertExpectations(t)
}

func TestAsyncRecorder_SurvivesRequestCancellation(t *testing.T) {
	store := new(MockIncrementer)
	var mu sync.Mutex
	var seenErr error
	store.On("IncrementUsage", mock.Anything, []string{"a1", "a2"}).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		mu.Lock()
		seenErr = ctx.Err()
		mu.Unlock()
	}).Return(nil)

	rec := usage.NewAsyncRecorder(usage.NewApplier(store, nil), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	ids := []string{"a1", "a2"}
	rec.Record(ctx, ids)
	cancel()
	ids[0] = "mutated"
	rec.Wait()

	store.AssertExpectations(t)
	mu.Lock()
	assert.NoError(t, seenErr)
	mu.Unlock()
}

func TestQueueRecorder_Publishes(t *testing.T) {
	pub := new(MockPublisher)
	store := new(MockIncrementer)
	pub.On("Publish", config.TopicUsageIncrement, mock.MatchedBy(func(body []byte) bool {
		var msg usage.Message
		require.NoError(t, json.Unmarshal(body, &msg))
		return assert.ObjectsAreEqual([]string{"a1"}, msg.ChunkIDs) && msg.CorrelationID == "corr-1"
	})).Return(nil)

	ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
	usage.NewQueueRecorder(pub, usage.NewApplier(store, nil)).Record(ctx, []string{"a1"})

	pub.AssertExpectations(t)
	store.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything)
}

func TestQueueRecorder_FallsBackInline(t *testing.T) {
	pub := new(MockPublisher)
	store := new(MockIncrementer)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nsqd unreachable"))
	store.On("IncrementUsage", mock.Anything, []string{"a1"}).Return(nil)

	usage.NewQueueRecorder(pub, usage.NewApplier(store, nil)).Record(context.Background(), []string{"a1"})
	store.AssertExpectations(t)
}

func TestNewRecorder(t *testing.T) {
	a := usage.NewApplier(new(MockIncrementer), nil)

	assert.IsType(t, &usage.SyncRecorder{}, usage.NewRecorder(config.UsageModeSync, a, nil, 0))
	assert.IsType(t, &usage.AsyncRecorder{}, usage.NewRecorder(config.UsageModeAsync, a, nil, time.Second))
	assert.IsType(t, &usage.QueueRecorder{}, usage.NewRecorder(config.UsageModeQueue, a, new(MockPublisher), 0))
	assert.IsType(t, &usage.SyncRecorder{}, usage.NewRecorder(config.UsageModeQueue, a, nil, 0))
}
