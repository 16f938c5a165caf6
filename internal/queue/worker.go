package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/sirupsen/logrus"
)

type Publisher interface {
	Process(ctx context.Context, postID int64) error
}

type CredentialRefresher interface {
	RefreshAccount(ctx context.Context, accountID int64) error
}

type DeadLetters interface {
	Create(ctx context.Context, dl *models.DeadLetter) (int64, error)
}

type Worker struct {
	publisher   Publisher
	refresher   CredentialRefresher
	deadLetters DeadLetters
}

func NewWorker(p Publisher, r CredentialRefresher, dl DeadLetters) *Worker {
	return &Worker{publisher: p, refresher: r, deadLetters: dl}
}

func (w *Worker) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	item, err := decode(task)
	if err != nil {
		return err
	}

	err = w.publisher.Process(ctx, item.TargetID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lock.ErrLeaseHeld):
		logrus.WithField("post_id", item.TargetID).Debug("post is being processed by another worker")
		return err
	case errors.Is(err, publisher.ErrNotPublishable), errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("post %d: %v: %w", item.TargetID, err, asynq.SkipRetry)
	}
	return err
}

func (w *Worker) HandleRefreshTask(ctx context.Context, task *asynq.Task) error {
	item, err := decode(task)
	if err != nil {
		return err
	}

	err = w.refresher.RefreshAccount(ctx, item.TargetID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, platform.ErrAuthRevoked), errors.Is(err, repository.ErrNotFound):
		// Needs the user to reconnect; retrying cannot help.
		return fmt.Errorf("account %d: %v: %w", item.TargetID, err, asynq.SkipRetry)
	}
	return err
}

// HandleError records a dead letter once a work item will not be retried again.
func (w *Worker) HandleError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	taskID, _ := asynq.GetTaskID(ctx)

	log := logrus.WithFields(logrus.Fields{
		"work_item_id": taskID,
		"type":         task.Type(),
		"retried":      retried,
	})
	if errors.Is(err, asynq.RevokeTask) {
		return
	}
	if errors.Is(err, lock.ErrLeaseHeld) {
		// The lease holder finishes the post.
		log.Debug("work item skipped, post is leased by another worker")
		return
	}
	if retried < maxRetry && !errors.Is(err, asynq.SkipRetry) {
		log.WithError(err).Warn("work item failed, will retry")
		return
	}

	dl := &models.DeadLetter{
		WorkItemID: taskID,
		Attempts:   retried + 1,
		LastError:  err.Error(),
	}
	if item, derr := decode(task); derr == nil {
		dl.Kind = item.Kind
		dl.TargetID = item.TargetID
	}

	metrics.IncDeadLetter(string(dl.Kind))
	log.WithError(err).Error("work item exhausted its retries")
	if _, err := w.deadLetters.Create(context.WithoutCancel(ctx), dl); err != nil {
		log.WithError(err).Error("failed to record dead letter")
	}
}
