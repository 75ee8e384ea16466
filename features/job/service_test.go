package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"journalrag/features/job"
	"journalrag/internal/apperror"
	"journalrag/internal/config"
)

func TestService_RecordFailure(t *testing.T) {
	repo := new(MockRepo)
	svc := job.NewService(repo, nil, nil)

	payload := []byte(`{"chunk_ids":["a1"]}`)
	repo.On("Save", mock.Anything, mock.MatchedBy(func(j *job.Job) bool {
		return j.ChunkID == "a1" && j.Handler == "usage-increment" && j.Error == "store error: timeout" &&
			string(j.Payload) == string(payload)
	})).Return(nil)

	err := svc.RecordFailure(context.Background(), "a1", "usage-increment", payload, errors.New("store error: timeout"))
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_RecordFailure_SaveError(t *testing.T) {
	repo := new(MockRepo)
	svc := job.NewService(repo, nil, nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down"))

	err := svc.RecordFailure(context.Background(), "a1", "usage-increment", nil, nil)
	assert.ErrorContains(t, err, "db down")
}

func TestService_Retry(t *testing.T) {
	payload := json.RawMessage(`{"chunk_ids":["a1"]}`)

	t.Run("Requeues And Deletes", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		svc := job.NewService(repo, pub, nil)

		repo.On("Get", mock.Anything, "job-1").Return(&job.Job{ID: "job-1", ChunkID: "a1", Payload: payload}, nil)
		pub.On("Publish", config.TopicUsageIncrement, []byte(payload)).Return(nil)
		repo.On("Delete", mock.Anything, "job-1").Return(nil)

		require.NoError(t, svc.Retry(context.Background(), "job-1"))
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("Publish Failure Keeps Job", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		svc := job.NewService(repo, pub, nil)

		repo.On("Get", mock.Anything, "job-1").Return(&job.Job{ID: "job-1", Payload: payload}, nil)
		pub.On("Publish", config.TopicUsageIncrement, mock.Anything).Return(errors.New("nsqd unreachable"))

		err := svc.Retry(context.Background(), "job-1")
		assert.ErrorContains(t, err, "nsqd unreachable")
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("Not Found", func(t *testing.T) {
		repo := new(MockRepo)
		svc := job.NewService(repo, new(MockPublisher), nil)
		repo.On("Get", mock.Anything, "missing").Return(nil, fmt.Errorf("%w: job missing", apperror.ErrNotFound))

		assert.ErrorIs(t, svc.Retry(context.Background(), "missing"), apperror.ErrNotFound)
	})

	t.Run("No Publisher", func(t *testing.T) {
		svc := job.NewService(new(MockRepo), nil, nil)
		assert.ErrorIs(t, svc.Retry(context.Background(), "job-1"), job.ErrNoPublisher)
	})
}
