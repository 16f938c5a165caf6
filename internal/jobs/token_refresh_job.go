package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/credential"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

type Refresher interface {
	Refresh(ctx context.Context, acc *models.SocialAccount, trigger credential.Trigger) (*models.Credential, error)
}

type TokenRefreshConfig struct {
	Interval    time.Duration
	Lookahead   time.Duration
	Concurrency int
}

type TokenRefreshJob struct {
	store     credential.Store
	refresher Refresher
	cfg       TokenRefreshConfig
	now       func() time.Time
	running   sync.Mutex
}

// RefreshSummary counts what one tick did.
type RefreshSummary struct {
	Due       int
	Refreshed int
	Failed    int
}

func NewTokenRefreshJob(store credential.Store, refresher Refresher, cfg TokenRefreshConfig) *TokenRefreshJob {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 30 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	return &TokenRefreshJob{store: store, refresher: refresher, cfg: cfg, now: time.Now}
}

// Schedule registers the job on c at the configured interval.
func (j *TokenRefreshJob) Schedule(c *cron.Cron) error {
	return c.AddFunc(fmt.Sprintf("@every %s", j.cfg.Interval), j.RefreshTokens)
}

// RefreshTokens is the cron entry point. A tick that starts while the
// previous one is still running is skipped.
func (j *TokenRefreshJob) RefreshTokens() {
	if !j.running.TryLock() {
		logrus.Warn("previous token refresh still running, skipping tick")
		return
	}
	defer j.running.Unlock()

	if _, err := j.Run(context.Background()); err != nil {
		logrus.WithError(err).Error("token refresh run failed")
	}
}

// Run refreshes every active account whose credential expires within the
// lookahead window. Failures are left for the next tick.
func (j *TokenRefreshJob) Run(ctx context.Context) (RefreshSummary, error) {
	var summary RefreshSummary

	accounts, err := j.store.ListExpiringBefore(ctx, j.now().Add(j.cfg.Lookahead))
	if err != nil {
		return summary, err
	}
	summary.Due = len(accounts)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	semaphore := make(chan struct{}, j.cfg.Concurrency)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			_, err := j.refresher.Refresh(ctx, acc, credential.TriggerScheduled)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				return
			}
			summary.Refreshed++
		}(acc)
	}
	wg.Wait()

	logrus.WithFields(logrus.Fields{
		"due":       summary.Due,
		"refreshed": summary.Refreshed,
		"failed":    summary.Failed,
	}).Info("token refresh finished")
	return summary, nil
}
