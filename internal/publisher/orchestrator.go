// Package publisher runs a post through validation, fan-out to every target
// platform and reduction of the per-target outcomes.
package publisher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/compat"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// PostStore persists post state and outcomes.
type PostStore interface {
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	UpdateStatus(ctx context.Context, id int64, status models.PostStatus, reason string) error
	RecordOutcome(ctx context.Context, outcome *models.Outcome) error
	CancelRequested(ctx context.Context, id int64) (bool, error)
}

type Accounts interface {
	GetAccount(ctx context.Context, id int64) (*models.SocialAccount, error)
}

// Credentials hands out accounts whose credential is safe to use.
type Credentials interface {
	Resolve(ctx context.Context, accountID int64) (*models.SocialAccount, error)
	ForceRefresh(ctx context.Context, acc *models.SocialAccount) (*models.SocialAccount, error)
}

type Adapters interface {
	Get(platform string) (platform.Adapter, error)
}

type Leaser interface {
	Acquire(ctx context.Context, postID int64) (lock.Lease, error)
}

type Config struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	FanoutLimit    int
	Ceiling        time.Duration
	PlatformRPS    float64
	// LeaseTTL, when set, is renewed in the background while a post runs.
	LeaseTTL       time.Duration
}

type Orchestrator struct {
	posts    PostStore
	accounts Accounts
	creds    Credentials
	adapters Adapters
	leaser   Leaser
	cfg      Config
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewOrchestrator(posts PostStore, accounts Accounts, creds Credentials, adapters Adapters, leaser Leaser, cfg Config) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.FanoutLimit <= 0 {
		cfg.FanoutLimit = 10
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 10 * time.Minute
	}
	return &Orchestrator{
		posts:    posts,
		accounts: accounts,
		creds:    creds,
		adapters: adapters,
		leaser:   leaser,
		cfg:      cfg,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Process publishes one post. It returns lock.ErrLeaseHeld when another
// worker owns the post, and nil once the post is terminal.
func (o *Orchestrator) Process(ctx context.Context, postID int64) error {
	log := logrus.WithField("post_id", postID)

	lease, err := o.leaser.Acquire(ctx, postID)
	if err != nil {
		return err
	}
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer func() {
		stopHeartbeat()
		if err := lease.Release(context.Background()); err != nil {
			log.WithError(err).Warn("failed to release post lease")
		}
	}()
	if o.cfg.LeaseTTL > 0 {
		go heartbeat(hbCtx, lease, o.cfg.LeaseTTL, log)
	}

	post, err := o.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.Status.IsTerminal() {
		log.WithField("status", post.Status).Debug("post already finished")
		return nil
	}
	if post.Status != models.PostStatusQueued && !post.Status.IsPublishing() {
		return ErrNotPublishable
	}
	if post.Status == models.PostStatusQueued && post.CancelRequested {
		return o.finish(ctx, post, models.PostStatusCancelled, "cancelled before dispatch")
	}
	if post.Status.IsPublishing() {
		// A previous worker died mid-run; targets it already settled are kept.
		log.WithField("status", post.Status).Warn("resuming interrupted post")
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Ceiling)
	defer cancel()

	c := newCollector(post)
	err = o.run(runCtx, post, c, log)
	switch {
	case errors.Is(err, errCancelledBeforeDispatch):
		return o.finish(ctx, post, models.PostStatusCancelled, "cancelled before dispatch")
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		log.Warn("post hit the publishing ceiling")
		c.seal(ctx, o.posts, post, KindTimeout, "publishing did not finish in time")
		return o.finish(ctx, post, o.afterDispatch(ctx, post.ID, models.PostStatusFailed, log), KindTimeout)
	case err != nil:
		return err
	}

	status, reason := Reduce(c.snapshot())
	return o.finish(ctx, post, o.afterDispatch(ctx, post.ID, status, log), reason)
}

// afterDispatch turns status into cancelled_after_dispatch when the owner
// cancelled while calls were in flight. The reason is kept.
func (o *Orchestrator) afterDispatch(ctx context.Context, postID int64, status models.PostStatus, log *logrus.Entry) models.PostStatus {
	cancelled, err := o.posts.CancelRequested(ctx, postID)
	if err != nil {
		log.WithError(err).Warn("failed to read cancel flag")
	}
	if cancelled {
		return models.PostStatusCancelledAfterDispatch
	}
	return status
}

// heartbeat renews lease every third of ttl until ctx is done.
func heartbeat(ctx context.Context, lease lock.Lease, ttl time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Extend(ctx, ttl); err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("failed to renew post lease")
				}
				return
			}
		}
	}
}

// run drives validating, dispatching and reducing, settling targets into c.
// A context deadline error means the ceiling fired.
func (o *Orchestrator) run(ctx context.Context, post *models.Post, c *collector, log *logrus.Entry) error {
	if err := o.posts.UpdateStatus(ctx, post.ID, models.PostStatusValidating, ""); err != nil {
		return err
	}

	var targets []*models.SocialAccount
	for _, id := range post.TargetAccountIDs {
		if c.settled(id) {
			continue
		}
		acc, err := o.accounts.GetAccount(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			c.add(ctx, o.posts, models.Outcome{
				PostID:      post.ID,
				AccountID:   id,
				Status:      models.OutcomeFailed,
				ErrorKind:   KindAccountGone,
				ErrorDetail: "account is no longer connected",
			})
			continue
		}
		if err != nil {
			return err
		}
		c.platforms[acc.ID] = acc.Platform
		targets = append(targets, acc)
	}

	partition := compat.Check(post.Content, targets)
	for _, r := range partition.Incompatible {
		c.add(ctx, o.posts, models.Outcome{
			PostID:      post.ID,
			AccountID:   r.Account.ID,
			Platform:    r.Account.Platform,
			Status:      models.OutcomeSkippedIncompatible,
			ErrorDetail: r.Reason,
		})
	}

	if cancelled, err := o.posts.CancelRequested(ctx, post.ID); err == nil && cancelled && len(partition.Eligible) > 0 {
		log.Info("cancel observed before dispatch")
		return errCancelledBeforeDispatch
	}

	if err := o.posts.UpdateStatus(ctx, post.ID, models.PostStatusDispatching, ""); err != nil {
		return err
	}
	done := o.dispatch(ctx, post, partition.Eligible, c)

	select {
	case <-done:
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return o.posts.UpdateStatus(ctx, post.ID, models.PostStatusReducing, "")
}

var errCancelledBeforeDispatch = errors.New("cancelled before dispatch")

func (o *Orchestrator) finish(ctx context.Context, post *models.Post, status models.PostStatus, reason string) error {
	if err := o.posts.UpdateStatus(ctx, post.ID, status, reason); err != nil {
		return err
	}
	metrics.IncPostFinished(string(status))
	logrus.WithFields(logrus.Fields{
		"post_id": post.ID,
		"status":  status,
		"reason":  reason,
	}).Info("post finished")
	return nil
}

// collector holds one outcome per target. Results arriving after seal are dropped.
type collector struct {
	mu        sync.Mutex
	targets   map[int64]bool
	outcomes  map[int64]models.Outcome
	platforms map[int64]string
	order     []int64
	sealed    bool
}

func newCollector(post *models.Post) *collector {
	c := &collector{
		targets:   make(map[int64]bool, len(post.TargetAccountIDs)),
		outcomes:  make(map[int64]models.Outcome, len(post.TargetAccountIDs)),
		platforms: make(map[int64]string, len(post.TargetAccountIDs)),
	}
	for _, id := range post.TargetAccountIDs {
		c.targets[id] = true
	}
	for _, o := range post.Outcomes {
		if c.targets[o.AccountID] {
			if _, dup := c.outcomes[o.AccountID]; !dup {
				c.outcomes[o.AccountID] = o
				c.order = append(c.order, o.AccountID)
			}
		}
	}
	return c
}

func (c *collector) settled(accountID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.outcomes[accountID]
	return ok
}

func (c *collector) add(ctx context.Context, store PostStore, o models.Outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed || !c.targets[o.AccountID] {
		return false
	}
	if _, ok := c.outcomes[o.AccountID]; ok {
		return false
	}
	return c.record(ctx, store, o)
}

// record must be called with mu held.
func (c *collector) record(ctx context.Context, store PostStore, o models.Outcome) bool {
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now()
	}
	// The store write outlives a fired ceiling.
	if err := store.RecordOutcome(context.WithoutCancel(ctx), &o); err != nil {
		logrus.WithFields(logrus.Fields{
			"post_id":    o.PostID,
			"account_id": o.AccountID,
		}).WithError(err).Error("failed to record outcome")
	}
	c.outcomes[o.AccountID] = o
	c.order = append(c.order, o.AccountID)
	metrics.IncPublishOutcome(o.Platform, string(o.Status), o.ErrorKind)
	return true
}

// seal fails every unsettled target with kind and stops accepting results.
func (c *collector) seal(ctx context.Context, store PostStore, post *models.Post, kind, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range post.TargetAccountIDs {
		if _, ok := c.outcomes[id]; ok {
			continue
		}
		c.record(ctx, store, models.Outcome{
			PostID:      post.ID,
			AccountID:   id,
			Platform:    c.platforms[id],
			Status:      models.OutcomeFailed,
			ErrorKind:   kind,
			ErrorDetail: detail,
		})
	}
	c.sealed = true
}

func (c *collector) snapshot() []models.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Outcome, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.outcomes[id])
	}
	return out
}
