package credential

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Trigger string

const (
	TriggerScheduled   Trigger = "scheduled"
	TriggerOnDemand    Trigger = "on_demand"
	TriggerAuthExpired Trigger = "auth_expired"
	TriggerManual      Trigger = "manual"
)

// Adapters resolves the adapter for a platform.
type Adapters interface {
	Get(platform string) (platform.Adapter, error)
}

type Config struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	// Skew refreshes credentials this long before they actually expire.
	Skew time.Duration
}

type Refresher struct {
	store    Store
	adapters Adapters
	cfg      Config
	now      func() time.Time
}

func NewRefresher(store Store, adapters Adapters, cfg Config) *Refresher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = time.Second
	}
	return &Refresher{store: store, adapters: adapters, cfg: cfg, now: time.Now}
}

// Resolve loads an account with a credential that is valid for at least the
// configured skew, refreshing it first when needed.
func (r *Refresher) Resolve(ctx context.Context, accountID int64) (*models.SocialAccount, error) {
	acc, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, errors.Wrapf(err, "load account %d", accountID)
	}
	if acc.AccountStatus == models.AccountStatusReauthRequired {
		return acc, platform.NewError(platform.KindAuthRevoked, acc.Platform, "account needs to be reconnected")
	}
	if !acc.Credential.ExpiresWithin(r.now(), r.cfg.Skew) {
		return acc, nil
	}

	cred, err := r.Refresh(ctx, acc, TriggerOnDemand)
	if err != nil {
		return acc, err
	}
	acc.Credential = *cred
	return acc, nil
}

// ForceRefresh renews a credential the platform has just rejected.
func (r *Refresher) ForceRefresh(ctx context.Context, acc *models.SocialAccount) (*models.SocialAccount, error) {
	cred, err := r.Refresh(ctx, acc, TriggerAuthExpired)
	if err != nil {
		return acc, err
	}
	out := *acc
	out.Credential = *cred
	return &out, nil
}

// RefreshAccount refreshes an account regardless of its expiry.
func (r *Refresher) RefreshAccount(ctx context.Context, accountID int64) error {
	acc, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return errors.Wrapf(err, "load account %d", accountID)
	}
	if acc.AccountStatus == models.AccountStatusReauthRequired {
		return platform.NewError(platform.KindAuthRevoked, acc.Platform, "account needs to be reconnected")
	}
	_, err = r.Refresh(ctx, acc, TriggerManual)
	return err
}

// Refresh asks the platform for a new credential and stores it. AuthExpired and
// transient failures are retried with backoff; AuthRevoked marks the account
// for reauthorization and is returned at once. Scheduled refreshes leave
// transient failures to the next tick.
func (r *Refresher) Refresh(ctx context.Context, acc *models.SocialAccount, trigger Trigger) (*models.Credential, error) {
	log := logrus.WithFields(logrus.Fields{
		"account_id": acc.ID,
		"platform":   acc.Platform,
		"trigger":    trigger,
	})

	adapter, err := r.adapters.Get(acc.Platform)
	if err != nil {
		return nil, err
	}

	var cred *models.Credential
	op := func() error {
		c, err := adapter.Refresh(ctx, acc)
		if err == nil {
			cred = c
			return nil
		}
		switch platform.KindOf(err) {
		case platform.KindAuthExpired:
			log.WithError(err).Debug("credential refresh attempt failed")
			return err
		case platform.KindTransientNetwork, platform.KindRateLimited:
			if trigger == TriggerScheduled {
				return backoff.Permanent(err)
			}
			log.WithError(err).Debug("credential refresh attempt failed")
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.BackoffInitial
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxAttempts-1)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		metrics.IncCredentialRefresh(acc.Platform, string(trigger), resultLabel(err))
		if platform.KindOf(err) == platform.KindAuthRevoked {
			log.Warn("credential revoked, account needs reauthorization")
			if markErr := r.store.MarkReauthRequired(ctx, acc.ID, platform.ReasonOf(err)); markErr != nil {
				log.WithError(markErr).Error("failed to mark account for reauthorization")
			}
		} else {
			log.WithError(err).Warn("credential refresh failed")
		}
		return nil, err
	}

	if cred.LastRefreshedAt.IsZero() {
		cred.LastRefreshedAt = r.now()
	}
	applied, err := r.store.PutCredential(ctx, acc.ID, *cred)
	if err != nil {
		return nil, errors.Wrap(err, "store refreshed credential")
	}
	metrics.IncCredentialRefresh(acc.Platform, string(trigger), "success")

	if !applied {
		// A concurrent refresh stored a newer credential; use that one.
		log.Debug("newer credential already stored")
		stored, err := r.store.GetAccount(ctx, acc.ID)
		if err != nil {
			return nil, errors.Wrap(err, "reload credential")
		}
		return &stored.Credential, nil
	}

	log.WithField("expires_at", cred.ExpiresAt).Info("credential refreshed")
	return cred, nil
}

func resultLabel(err error) string {
	if kind := platform.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
