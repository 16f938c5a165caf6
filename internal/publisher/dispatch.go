package publisher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// dispatch publishes to every account concurrently, at most FanoutLimit at a
// time. The returned channel closes once every call has settled.
func (o *Orchestrator) dispatch(ctx context.Context, post *models.Post, accounts []*models.SocialAccount, c *collector) <-chan struct{} {
	done := make(chan struct{})
	semaphore := make(chan struct{}, o.cfg.FanoutLimit)

	go func() {
		defer close(done)
		finished := make(chan struct{}, len(accounts))
		started := 0
		for _, acc := range accounts {
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				// Unstarted targets are settled by the ceiling.
				for ; started > 0; started-- {
					<-finished
				}
				return
			}
			started++
			go func(acc *models.SocialAccount) {
				defer func() {
					<-semaphore
					finished <- struct{}{}
				}()
				c.add(ctx, o.posts, o.publishOne(ctx, post, acc))
			}(acc)
		}
		for ; started > 0; started-- {
			<-finished
		}
	}()

	return done
}

// publishOne settles a single target. It never returns an error: every
// failure becomes a failed outcome so siblings are unaffected.
func (o *Orchestrator) publishOne(ctx context.Context, post *models.Post, target *models.SocialAccount) models.Outcome {
	log := logrus.WithFields(logrus.Fields{
		"post_id":    post.ID,
		"account_id": target.ID,
		"platform":   target.Platform,
	})
	outcome := models.Outcome{
		PostID:    post.ID,
		AccountID: target.ID,
		Platform:  target.Platform,
	}
	fail := func(err error) models.Outcome {
		outcome.Status = models.OutcomeFailed
		outcome.ErrorKind = errorKind(err)
		outcome.ErrorDetail = errorDetail(err)
		log.WithField("error_kind", outcome.ErrorKind).WithError(err).Warn("publish failed")
		return outcome
	}

	adapter, err := o.adapters.Get(target.Platform)
	if err != nil {
		return fail(platform.NewError(platform.KindUnsupported, target.Platform, "platform is not supported"))
	}

	acc, err := o.creds.Resolve(ctx, target.ID)
	if err != nil {
		return fail(err)
	}

	caption := post.Content.CaptionFor(acc.Platform)
	refreshed := false
	var ref platform.ExternalRef

	attempt := func() (platform.ExternalRef, error) {
		if err := o.limiter(acc.Platform).Wait(ctx); err != nil {
			return "", err
		}
		start := time.Now()
		r, err := adapter.Publish(ctx, acc, post.Content, caption)
		metrics.ObservePublishAttempt(acc.Platform, attemptResult(err), time.Since(start))
		return r, err
	}

	op := func() error {
		r, err := attempt()
		if platform.KindOf(err) == platform.KindAuthExpired && !refreshed {
			refreshed = true
			log.Info("credential rejected, refreshing once")
			fresh, rerr := o.creds.ForceRefresh(ctx, acc)
			if rerr != nil {
				return backoff.Permanent(rerr)
			}
			acc = fresh
			r, err = attempt()
		}
		if err == nil {
			ref = r
			return nil
		}
		if platform.Retryable(err) {
			log.WithError(err).Debug("publish attempt failed, will retry")
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, o.retryPolicy(ctx)); err != nil {
		return fail(err)
	}

	outcome.Status = models.OutcomeSuccess
	outcome.ExternalRef = string(ref)
	log.WithField("external_ref", ref).Info("published")
	return outcome
}

// retryPolicy allows MaxAttempts calls in total with jittered exponential backoff.
func (o *Orchestrator) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.BackoffInitial
	b.MaxInterval = o.cfg.BackoffMax
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.cfg.MaxAttempts-1)), ctx)
}

func (o *Orchestrator) limiter(name string) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.limiters[name]
	if !ok {
		limit, burst := rate.Inf, 1
		if o.cfg.PlatformRPS > 0 {
			limit = rate.Limit(o.cfg.PlatformRPS)
			burst = max(1, int(o.cfg.PlatformRPS))
		}
		l = rate.NewLimiter(limit, burst)
		o.limiters[name] = l
	}
	return l
}

func attemptResult(err error) string {
	if err == nil {
		return "success"
	}
	return errorKind(err)
}
