package queue

import (
	"errors"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/sirupsen/logrus"
)

const (
	TaskTypePublishPost       = "publish:post"
	TaskTypeRefreshCredential = "refresh:credential"

	QueuePublish = "publish"
	QueueRefresh = "refresh"
)

type Queue struct {
	Client      *asynq.Client
	Inspector   *asynq.Inspector
	maxAttempts int
}

// NewQueue returns a producer for work items. maxAttempts bounds delivery
// attempts per item before it is archived as a dead letter.
func NewQueue(opt asynq.RedisConnOpt, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Queue{
		Client:      asynq.NewClient(opt),
		Inspector:   asynq.NewInspector(opt),
		maxAttempts: maxAttempts,
	}
}

func (q *Queue) Close() error {
	return errors.Join(q.Client.Close(), q.Inspector.Close())
}

type ServerConfig struct {
	Concurrency int
}

// NewServer builds the worker pool. Publishing gets twice the share of
// refresh work.
func NewServer(opt asynq.RedisConnOpt, cfg ServerConfig, w *Worker) *asynq.Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueuePublish: 2,
			QueueRefresh: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(w.HandleError),
		IsFailure:    isFailure,
		Logger:       logrus.StandardLogger(),
	})
}

func NewServeMux(w *Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypePublishPost, w.HandlePublishTask)
	mux.HandleFunc(TaskTypeRefreshCredential, w.HandleRefreshTask)
	return mux
}

// isFailure keeps contention on a post lease from consuming the retry budget.
func isFailure(err error) bool {
	return !errors.Is(err, lock.ErrLeaseHeld)
}
