package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postHarness struct {
	svc      PostService
	mock     sqlmock.Sqlmock
	posts    *fakePosts
	selected *fakeSelected
	assets   *fakeAssets
	media    *fakePostMedia
	store    *fakeStore
	queue    *fakeQueue
	unpub    *fakeUnpublisher
}

func newPostHarness(t *testing.T, accounts ...*models.SocialAccount) *postHarness {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &postHarness{
		mock:     mock,
		posts:    newFakePosts(),
		selected: &fakeSelected{},
		assets:   &fakeAssets{},
		media:    &fakePostMedia{},
		store:    &fakeStore{},
		queue:    &fakeQueue{},
		unpub:    &fakeUnpublisher{},
	}
	h.svc = NewPostService(db, h.posts, h.selected, h.assets, newFakeAccounts(accounts...), h.media, h.posts, h.store, h.queue, h.unpub)
	return h
}

func (h *postHarness) expectTx() {
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()
}

func TestCreatePost_TextKeepsIncompatibleTargets(t *testing.T) {
	h := newPostHarness(t, account(1, 7, models.PlatformLinkedin), account(2, 7, models.PlatformYoutube))
	h.expectTx()

	created, err := h.svc.CreatePost(context.Background(), 7, &transfer.PostCreation{
		Caption:          "hello",
		Immediate:        true,
		SelectedAccounts: []int64{1, 2},
		IncompatibleMode: transfer.IncompatibleInclude,
	}, nil)
	require.NoError(t, err)

	post, ok := h.posts.get(created.PostID)
	require.True(t, ok)
	assert.Equal(t, models.ContentKindText, post.Content.Kind)
	assert.Equal(t, models.PostStatusQueued, post.Status)
	assert.Equal(t, []int64{1, 2}, h.selected.accountIDs(created.PostID))

	assert.False(t, created.Compatibility.IsCompatible)
	assert.Equal(t, []string{models.PlatformYoutube}, created.Compatibility.AffectedPlatforms)
	assert.Contains(t, h.queue.posts, created.PostID)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestCreatePost_RemoveModeDropsIncompatibleTargets(t *testing.T) {
	h := newPostHarness(t, account(1, 7, models.PlatformLinkedin), account(2, 7, models.PlatformInstagram))
	h.expectTx()

	files := formFiles(t, map[string][]byte{"square.png": pngBytes(t, 64, 64)})
	created, err := h.svc.CreatePost(context.Background(), 7, &transfer.PostCreation{
		Caption:          "a picture",
		ScheduledTime:    time.Now().Add(time.Hour).UTC().Format(transfer.ScheduledTimeLayout),
		SelectedAccounts: []int64{1, 2},
		IncompatibleMode: transfer.IncompatibleRemove,
	}, files)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, h.selected.accountIDs(created.PostID))
	assert.Equal(t, []string{models.PlatformInstagram}, created.Compatibility.AffectedPlatforms)

	require.Len(t, h.assets.assets, 1)
	asset := h.assets.assets[0]
	assert.Equal(t, "image/png", asset.FileType)
	assert.Equal(t, 64, asset.Width)
	assert.Equal(t, 64, asset.Height)
	require.Len(t, h.media.rows, 1)
	assert.Equal(t, asset.ID, h.media.rows[0].AssetID)

	post, _ := h.posts.get(created.PostID)
	assert.Equal(t, models.ContentKindImageSet, post.Content.Kind)
	assert.True(t, h.queue.posts[created.PostID].After(time.Now()))
}

func TestCreatePost_NoCompatibleTarget(t *testing.T) {
	h := newPostHarness(t, account(2, 7, models.PlatformYoutube))

	_, err := h.svc.CreatePost(context.Background(), 7, &transfer.PostCreation{
		Caption:          "text only",
		Immediate:        true,
		SelectedAccounts: []int64{2},
	}, nil)
	assert.ErrorIs(t, err, ErrNoCompatibleTarget)
	assert.Empty(t, h.queue.posts)
}

func TestCreatePost_ForeignAccount(t *testing.T) {
	h := newPostHarness(t, account(1, 8, models.PlatformLinkedin))

	_, err := h.svc.CreatePost(context.Background(), 7, &transfer.PostCreation{
		Caption:          "hello",
		Immediate:        true,
		SelectedAccounts: []int64{1},
	}, nil)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCreatePost_UnsupportedFile(t *testing.T) {
	h := newPostHarness(t, account(1, 7, models.PlatformLinkedin))

	files := formFiles(t, map[string][]byte{"notes.txt": []byte("just some text")})
	_, err := h.svc.CreatePost(context.Background(), 7, &transfer.PostCreation{
		Immediate:        true,
		SelectedAccounts: []int64{1},
	}, files)
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestCheckCompatibility(t *testing.T) {
	h := newPostHarness(t, account(1, 7, models.PlatformLinkedin), account(2, 7, models.PlatformTiktok))

	report, err := h.svc.CheckCompatibility(context.Background(), 7, &transfer.PostCreation{
		Caption:          "text",
		SelectedAccounts: []int64{1, 2},
	}, nil)
	require.NoError(t, err)
	assert.False(t, report.IsCompatible)
	assert.Equal(t, []string{models.PlatformTiktok}, report.AffectedPlatforms)
	assert.Empty(t, h.store.uploads)
}

func seedPost(h *postHarness, userID int64, status models.PostStatus, outcomes ...models.Outcome) int64 {
	id, _ := h.posts.Create(context.Background(), nil, &models.Post{
		UserID:   userID,
		Content:  models.Content{Kind: models.ContentKindText, Caption: "hi"},
		Status:   status,
		Outcomes: outcomes,
	})
	return id
}

func TestCancel(t *testing.T) {
	h := newPostHarness(t)

	t.Run("queued post is cancelled and dequeued", func(t *testing.T) {
		id := seedPost(h, 7, models.PostStatusQueued)
		status, err := h.svc.Cancel(context.Background(), 7, id)
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusCancelled, status)
		assert.Contains(t, h.queue.cancelled, queue.PublishItemID(id))
	})

	t.Run("publishing post keeps running", func(t *testing.T) {
		id := seedPost(h, 7, models.PostStatusDispatching)
		status, err := h.svc.Cancel(context.Background(), 7, id)
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusDispatching, status)

		post, _ := h.posts.get(id)
		assert.True(t, post.CancelRequested)
	})

	t.Run("finished post", func(t *testing.T) {
		id := seedPost(h, 7, models.PostStatusCompleted)
		_, err := h.svc.Cancel(context.Background(), 7, id)
		assert.ErrorIs(t, err, ErrPostNotCancellable)
	})

	t.Run("someone else's post", func(t *testing.T) {
		id := seedPost(h, 8, models.PostStatusQueued)
		_, err := h.svc.Cancel(context.Background(), 7, id)
		assert.ErrorIs(t, err, ErrPostNotFound)
	})
}

func TestRemove(t *testing.T) {
	published := models.Outcome{AccountID: 1, Platform: models.PlatformLinkedin, Status: models.OutcomeSuccess, ExternalRef: "urn:li:share:1"}

	t.Run("deletes external copies first", func(t *testing.T) {
		h := newPostHarness(t)
		h.unpub.results = []publisher.DeleteResult{
			{AccountID: 1, Platform: models.PlatformLinkedin, Ref: "urn:li:share:1"},
			{AccountID: 2, Platform: models.PlatformInstagram, Ref: "1789",
				Err: platform.NewError(platform.KindUnsupported, models.PlatformInstagram, "no delete endpoint")},
		}
		id := seedPost(h, 7, models.PostStatusCompleted, published)

		results, err := h.svc.Remove(context.Background(), 7, id)
		require.NoError(t, err)
		assert.Len(t, results, 2)
		assert.Equal(t, 1, h.unpub.calls)
		_, ok := h.posts.get(id)
		assert.False(t, ok)
	})

	t.Run("keeps the post when a delete fails", func(t *testing.T) {
		h := newPostHarness(t)
		h.unpub.results = []publisher.DeleteResult{
			{AccountID: 1, Platform: models.PlatformLinkedin, Ref: "urn:li:share:1",
				Err: platform.NewError(platform.KindTransientNetwork, models.PlatformLinkedin, "503")},
		}
		id := seedPost(h, 7, models.PostStatusCompleted, published)

		_, err := h.svc.Remove(context.Background(), 7, id)
		assert.ErrorIs(t, err, ErrExternalDeleteFailed)
		_, ok := h.posts.get(id)
		assert.True(t, ok)
	})

	t.Run("refuses while publishing", func(t *testing.T) {
		h := newPostHarness(t)
		id := seedPost(h, 7, models.PostStatusDispatching)

		_, err := h.svc.Remove(context.Background(), 7, id)
		assert.ErrorIs(t, err, ErrPostPublishing)
		assert.Equal(t, 0, h.unpub.calls)
	})

	t.Run("queued post is dequeued", func(t *testing.T) {
		h := newPostHarness(t)
		id := seedPost(h, 7, models.PostStatusQueued)

		_, err := h.svc.Remove(context.Background(), 7, id)
		require.NoError(t, err)
		assert.Equal(t, []string{queue.PublishItemID(id)}, h.queue.cancelled)
	})
}
