package job

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/credential"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/platform/platformtest"
	"github.com/robfig/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount(id int64, platformName string, expiresIn time.Duration) *models.SocialAccount {
	now := time.Now()
	return &models.SocialAccount{
		ID:            id,
		UserID:        1,
		Platform:      platformName,
		AccountStatus: models.AccountStatusActive,
		Credential: models.Credential{
			AccessToken:     "stale",
			RefreshToken:    "refresh",
			ExpiresAt:       now.Add(expiresIn),
			LastRefreshedAt: now.Add(-time.Hour),
		},
	}
}

func newJob(store credential.Store, adapters ...platform.Adapter) *TokenRefreshJob {
	refresher := credential.NewRefresher(store, platform.NewRegistry(adapters...), credential.Config{
		MaxAttempts:    2,
		BackoffInitial: time.Millisecond,
		Skew:           2 * time.Minute,
	})
	return NewTokenRefreshJob(store, refresher, TokenRefreshConfig{
		Interval:    10 * time.Minute,
		Lookahead:   30 * time.Minute,
		Concurrency: 2,
	})
}

func TestRun_RefreshesOnlyAccountsInsideLookahead(t *testing.T) {
	youtube := platformtest.New(models.PlatformYoutube)
	store := credential.NewMemoryStore(
		testAccount(1, models.PlatformYoutube, 5*time.Minute),
		testAccount(2, models.PlatformYoutube, 2*time.Hour),
		testAccount(3, models.PlatformYoutube, -time.Minute),
	)

	summary, err := newJob(store, youtube).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RefreshSummary{Due: 2, Refreshed: 2}, summary)
	assert.Equal(t, 2, youtube.RefreshCalls())

	untouched, err := store.GetAccount(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "stale", untouched.Credential.AccessToken)
}

func TestRun_RevokedAccountIsMarkedAndSkippedNextTick(t *testing.T) {
	tiktok := platformtest.New(models.PlatformTiktok)
	tiktok.RefreshFunc = func(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error) {
		return nil, platform.NewError(platform.KindAuthRevoked, acc.Platform, "invalid_grant")
	}
	store := credential.NewMemoryStore(testAccount(1, models.PlatformTiktok, time.Minute))
	j := newJob(store, tiktok)

	summary, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, tiktok.RefreshCalls(), "revocation is not retried")

	acc, err := store.GetAccount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusReauthRequired, acc.AccountStatus)

	summary, err = j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Due)
}

func TestRun_TransientFailureWaitsForNextTick(t *testing.T) {
	linkedin := platformtest.New(models.PlatformLinkedin)
	linkedin.RefreshFunc = func(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error) {
		return nil, platform.NewError(platform.KindTransientNetwork, acc.Platform, "bad gateway")
	}
	store := credential.NewMemoryStore(testAccount(1, models.PlatformLinkedin, time.Minute))

	summary, err := newJob(store, linkedin).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RefreshSummary{Due: 1, Failed: 1}, summary)
	assert.Equal(t, 1, linkedin.RefreshCalls())

	acc, err := store.GetAccount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusActive, acc.AccountStatus)
}

func TestRun_RateLimitedIsNotRetriedWithinTick(t *testing.T) {
	youtube := platformtest.New(models.PlatformYoutube)
	youtube.RefreshFunc = func(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error) {
		return nil, platform.NewError(platform.KindRateLimited, acc.Platform, "quota exceeded")
	}
	store := credential.NewMemoryStore(testAccount(1, models.PlatformYoutube, time.Minute))

	summary, err := newJob(store, youtube).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, youtube.RefreshCalls())
}

func TestRun_AuthExpiredStillBacksOff(t *testing.T) {
	linkedin := platformtest.New(models.PlatformLinkedin)
	linkedin.RefreshFunc = func(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error) {
		return nil, platform.NewError(platform.KindAuthExpired, acc.Platform, "expired")
	}
	store := credential.NewMemoryStore(testAccount(1, models.PlatformLinkedin, time.Minute))

	summary, err := newJob(store, linkedin).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, linkedin.RefreshCalls())
}

func TestSchedule(t *testing.T) {
	c := cron.New()
	j := newJob(credential.NewMemoryStore())
	require.NoError(t, j.Schedule(c))
	assert.Len(t, c.Entries(), 1)
}
