package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publisherFunc func(ctx context.Context, postID int64) error

func (f publisherFunc) Process(ctx context.Context, postID int64) error { return f(ctx, postID) }

type refresherFunc func(ctx context.Context, accountID int64) error

func (f refresherFunc) RefreshAccount(ctx context.Context, accountID int64) error {
	return f(ctx, accountID)
}

type deadLetterLog struct {
	items []*models.DeadLetter
}

func (d *deadLetterLog) Create(ctx context.Context, dl *models.DeadLetter) (int64, error) {
	d.items = append(d.items, dl)
	return int64(len(d.items)), nil
}

func task(t *testing.T, taskType string, item models.WorkItem) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(item)
	require.NoError(t, err)
	return asynq.NewTask(taskType, payload)
}

func TestHandlePublishTask(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{"success", nil, false},
		{"lease held", lock.ErrLeaseHeld, false},
		{"not publishable", publisher.ErrNotPublishable, true},
		{"missing post", repository.ErrNotFound, true},
		{"store failure", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int64
			w := NewWorker(publisherFunc(func(ctx context.Context, postID int64) error {
				got = postID
				return tt.err
			}), nil, &deadLetterLog{})

			err := w.HandlePublishTask(context.Background(), task(t, TaskTypePublishPost, models.WorkItem{
				ID: "publish-5", Kind: models.WorkItemPublish, TargetID: 5,
			}))

			assert.Equal(t, int64(5), got)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestHandlePublishTask_BadPayload(t *testing.T) {
	w := NewWorker(publisherFunc(func(ctx context.Context, postID int64) error {
		t.Fatal("publisher must not run")
		return nil
	}), nil, &deadLetterLog{})

	err := w.HandlePublishTask(context.Background(), asynq.NewTask(TaskTypePublishPost, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleRefreshTask_RevokedIsNotRetried(t *testing.T) {
	w := NewWorker(nil, refresherFunc(func(ctx context.Context, accountID int64) error {
		return platform.NewError(platform.KindAuthRevoked, models.PlatformTiktok, "revoked")
	}), &deadLetterLog{})

	err := w.HandleRefreshTask(context.Background(), task(t, TaskTypeRefreshCredential, models.WorkItem{
		ID: "refresh-3", Kind: models.WorkItemRefresh, TargetID: 3,
	}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleError_RecordsDeadLetter(t *testing.T) {
	dl := &deadLetterLog{}
	w := NewWorker(nil, nil, dl)

	w.HandleError(context.Background(), task(t, TaskTypePublishPost, models.WorkItem{
		ID: "publish-5", Kind: models.WorkItemPublish, TargetID: 5,
	}), errors.New("still failing"))

	require.Len(t, dl.items, 1)
	assert.Equal(t, models.WorkItemPublish, dl.items[0].Kind)
	assert.Equal(t, int64(5), dl.items[0].TargetID)
	assert.Equal(t, "still failing", dl.items[0].LastError)
}

func TestHandleError_RevokedTaskIsNotDeadLettered(t *testing.T) {
	dl := &deadLetterLog{}
	w := NewWorker(nil, nil, dl)

	w.HandleError(context.Background(), asynq.NewTask(TaskTypePublishPost, nil), asynq.RevokeTask)
	assert.Empty(t, dl.items)
}

func TestHandleError_LeaseContentionIsNotDeadLettered(t *testing.T) {
	dl := &deadLetterLog{}
	w := NewWorker(nil, nil, dl)

	w.HandleError(context.Background(), task(t, TaskTypePublishPost, models.WorkItem{
		ID: "publish-5", Kind: models.WorkItemPublish, TargetID: 5,
	}), fmt.Errorf("process post 5: %w", lock.ErrLeaseHeld))
	assert.Empty(t, dl.items)
}

func TestIsFailure(t *testing.T) {
	assert.False(t, isFailure(lock.ErrLeaseHeld))
	assert.True(t, isFailure(errors.New("boom")))
}
