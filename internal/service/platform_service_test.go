package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/platform/platformtest"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "state-secret"

// connectable adds the connect and revoke flows to the scripted adapter.
type connectable struct {
	*platformtest.Adapter
	revokeErr error
	revoked   []int64
	codes     []string
}

func (c *connectable) Connect(ctx context.Context, code string) (*models.SocialAccount, error) {
	c.codes = append(c.codes, code)
	return &models.SocialAccount{
		Platform:    c.Name,
		AccountID:   "remote-42",
		AccountName: "Acme",
		Credential: models.Credential{
			AccessToken:     "fresh-access",
			RefreshToken:    "fresh-refresh",
			ExpiresAt:       time.Now().Add(time.Hour),
			LastRefreshedAt: time.Now(),
		},
	}, nil
}

func (c *connectable) Revoke(ctx context.Context, acc *models.SocialAccount) error {
	c.revoked = append(c.revoked, acc.ID)
	return c.revokeErr
}

func newPlatformHarness(accounts ...*models.SocialAccount) (PlatformService, *connectable, *fakeAccounts, *fakeQueue) {
	linkedin := &connectable{Adapter: platformtest.New(models.PlatformLinkedin)}
	registry := platform.NewRegistry(linkedin, platformtest.New(models.PlatformTiktok))
	store := newFakeAccounts(accounts...)
	q := &fakeQueue{}
	return NewPlatformService(testSecret, store, registry, q), linkedin, store, q
}

func stateOf(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestConnectFlow(t *testing.T) {
	svc, linkedin, store, _ := newPlatformHarness()

	authURL, err := svc.GetAuthURL(context.Background(), 7, models.PlatformLinkedin)
	require.NoError(t, err)
	state := stateOf(t, authURL)
	require.NotEmpty(t, state)

	acc, err := svc.Callback(context.Background(), models.PlatformLinkedin, "the-code", state)
	require.NoError(t, err)
	assert.Equal(t, int64(7), acc.UserID)
	assert.Equal(t, []string{"the-code"}, linkedin.codes)

	stored, err := store.GetAccount(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", stored.Credential.AccessToken)
}

func TestCallback_RejectsStateForAnotherPlatform(t *testing.T) {
	svc, linkedin, _, _ := newPlatformHarness()

	state, err := utils.GenerateStateToken(testSecret, "7", models.PlatformTiktok, time.Minute)
	require.NoError(t, err)

	_, err = svc.Callback(context.Background(), models.PlatformLinkedin, "code", state)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, linkedin.codes)
}

func TestGetAuthURL_Unsupported(t *testing.T) {
	svc, _, _, _ := newPlatformHarness()

	_, err := svc.GetAuthURL(context.Background(), 7, models.PlatformTiktok)
	assert.ErrorIs(t, err, ErrConnectUnsupported)

	_, err = svc.GetAuthURL(context.Background(), 7, "myspace")
	assert.ErrorIs(t, err, platform.ErrUnknownPlatform)
}

func TestDeleteAccount(t *testing.T) {
	t.Run("revokes then removes", func(t *testing.T) {
		svc, linkedin, store, q := newPlatformHarness(account(3, 7, models.PlatformLinkedin))

		require.NoError(t, svc.Delete(context.Background(), 7, 3))
		assert.Equal(t, []int64{3}, linkedin.revoked)
		assert.Equal(t, []int64{3}, store.removed)
		assert.Equal(t, []string{queue.RefreshItemID(3)}, q.cancelled)
	})

	t.Run("already revoked token does not block", func(t *testing.T) {
		svc, linkedin, store, _ := newPlatformHarness(account(3, 7, models.PlatformLinkedin))
		linkedin.revokeErr = platform.NewError(platform.KindAuthRevoked, models.PlatformLinkedin, "invalid_token")

		require.NoError(t, svc.Delete(context.Background(), 7, 3))
		assert.Equal(t, []int64{3}, store.removed)
	})

	t.Run("transient revoke failure keeps the account", func(t *testing.T) {
		svc, linkedin, store, _ := newPlatformHarness(account(3, 7, models.PlatformLinkedin))
		linkedin.revokeErr = platform.NewError(platform.KindTransientNetwork, models.PlatformLinkedin, "503")

		assert.Error(t, svc.Delete(context.Background(), 7, 3))
		assert.Empty(t, store.removed)
	})

	t.Run("someone else's account", func(t *testing.T) {
		svc, _, store, _ := newPlatformHarness(account(3, 8, models.PlatformLinkedin))

		assert.ErrorIs(t, svc.Delete(context.Background(), 7, 3), ErrAccountNotFound)
		assert.Empty(t, store.removed)
	})
}

func TestRefreshAccount(t *testing.T) {
	svc, _, _, q := newPlatformHarness(account(3, 7, models.PlatformTiktok))

	item, err := svc.Refresh(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.Equal(t, queue.RefreshItemID(3), item.ID)
	assert.Equal(t, []int64{3}, q.refreshes)

	_, err = svc.Refresh(context.Background(), 8, 3)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
