package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/sirupsen/logrus"
)

var ErrAlreadyQueued = errors.New("work item already queued")

// PublishItemID is the work item id for a post. It is stable so a post
// can be queued at most once and its item found again for cancellation.
func PublishItemID(postID int64) string {
	return fmt.Sprintf("publish-%d", postID)
}

func RefreshItemID(accountID int64) string {
	return fmt.Sprintf("refresh-%d", accountID)
}

func (q *Queue) EnqueuePost(ctx context.Context, postID int64, notBefore time.Time) (*models.WorkItem, error) {
	item := &models.WorkItem{
		ID:          PublishItemID(postID),
		Kind:        models.WorkItemPublish,
		TargetID:    postID,
		NotBefore:   notBefore,
		MaxAttempts: q.maxAttempts,
	}
	return item, q.Enqueue(ctx, item)
}

func (q *Queue) EnqueueRefresh(ctx context.Context, accountID int64) (*models.WorkItem, error) {
	item := &models.WorkItem{
		ID:          RefreshItemID(accountID),
		Kind:        models.WorkItemRefresh,
		TargetID:    accountID,
		MaxAttempts: q.maxAttempts,
	}
	return item, q.Enqueue(ctx, item)
}

// Enqueue hands item to the worker pool. Items with a future NotBefore are
// held back until then.
func (q *Queue) Enqueue(ctx context.Context, item *models.WorkItem) error {
	taskType, queueName, err := route(item.Kind)
	if err != nil {
		return err
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = q.maxAttempts
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.TaskID(item.ID),
		asynq.Queue(queueName),
		asynq.MaxRetry(item.MaxAttempts - 1),
	}
	if item.NotBefore.After(time.Now()) {
		opts = append(opts, asynq.ProcessAt(item.NotBefore))
	}

	info, err := q.Client.EnqueueContext(ctx, asynq.NewTask(taskType, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, item.ID)
	}
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"work_item_id": info.ID,
		"kind":         item.Kind,
		"target_id":    item.TargetID,
		"state":        info.State.String(),
	}).Info("work item enqueued")
	return nil
}

// Cancel removes a work item that has not started. It is a no-op when the
// item is already gone.
func (q *Queue) Cancel(kind models.WorkItemKind, id string) error {
	_, queueName, err := route(kind)
	if err != nil {
		return err
	}
	err = q.Inspector.DeleteTask(queueName, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

func route(kind models.WorkItemKind) (string, string, error) {
	switch kind {
	case models.WorkItemPublish:
		return TaskTypePublishPost, QueuePublish, nil
	case models.WorkItemRefresh:
		return TaskTypeRefreshCredential, QueueRefresh, nil
	}
	return "", "", fmt.Errorf("unknown work item kind %q", kind)
}

func decode(task *asynq.Task) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := json.Unmarshal(task.Payload(), &item); err != nil {
		return nil, fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return &item, nil
}
