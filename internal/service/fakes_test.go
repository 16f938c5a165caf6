package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/stretchr/testify/require"
)

type fakePosts struct {
	mu     sync.Mutex
	nextID int64
	posts  map[int64]*models.Post
}

func newFakePosts() *fakePosts {
	return &fakePosts{posts: make(map[int64]*models.Post)}
}

func (f *fakePosts) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *post
	cp.ID = f.nextID
	f.posts[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakePosts) get(id int64) (*models.Post, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	return p, ok
}

func (f *fakePosts) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	p, ok := f.get(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePosts) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	return f.GetByID(ctx, id)
}

func (f *fakePosts) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Post
	for _, p := range f.posts {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakePosts) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	p, ok := f.get(postID)
	return ok && p.UserID == userID, nil
}

func (f *fakePosts) UpdateStatus(ctx context.Context, id int64, status models.PostStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status, p.StatusReason = status, reason
	return nil
}

func (f *fakePosts) TransitionStatus(ctx context.Context, id int64, from []models.PostStatus, to models.PostStatus, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if p.Status == s {
			p.Status, p.StatusReason = to, reason
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePosts) RequestCancel(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.CancelRequested = true
	return nil
}

func (f *fakePosts) IsCancelRequested(ctx context.Context, id int64) (bool, error) {
	p, ok := f.get(id)
	if !ok {
		return false, repository.ErrNotFound
	}
	return p.CancelRequested, nil
}

func (f *fakePosts) Remove(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, id)
	return nil
}

type fakeSelected struct {
	mu   sync.Mutex
	rows []models.SelectedAccount
}

func (f *fakeSelected) Create(ctx context.Context, tx *sql.Tx, sa *models.SelectedAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *sa)
	return nil
}

func (f *fakeSelected) ListByPostID(ctx context.Context, postID int64) ([]*models.SelectedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SelectedAccount
	for i := range f.rows {
		if f.rows[i].PostID == postID {
			row := f.rows[i]
			out = append(out, &row)
		}
	}
	return out, nil
}

func (f *fakeSelected) Remove(ctx context.Context, postID, accountID int64) error {
	return nil
}

func (f *fakeSelected) accountIDs(postID int64) []int64 {
	rows, _ := f.ListByPostID(context.Background(), postID)
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.AccountID)
	}
	return ids
}

type fakeAssets struct {
	mu      sync.Mutex
	assets  []models.MediaAsset
	removed []int64
}

func (f *fakeAssets) Create(ctx context.Context, tx *sql.Tx, ma *models.MediaAsset) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ma
	cp.ID = int64(len(f.assets) + 1)
	f.assets = append(f.assets, cp)
	return cp.ID, nil
}

func (f *fakeAssets) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.assets {
		if f.assets[i].ID == id {
			cp := f.assets[i]
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAssets) ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error) {
	return nil, nil
}

func (f *fakeAssets) Remove(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

type fakePostMedia struct {
	mu   sync.Mutex
	rows []models.PostMedia
}

func (f *fakePostMedia) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *pm)
	return nil
}

func (f *fakePostMedia) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	return nil, nil
}

func (f *fakePostMedia) Remove(ctx context.Context, postID int64) error {
	return nil
}

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*models.SocialAccount
	removed  []int64
}

func newFakeAccounts(accounts ...*models.SocialAccount) *fakeAccounts {
	f := &fakeAccounts{accounts: make(map[int64]*models.SocialAccount)}
	for _, a := range accounts {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) Upsert(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.accounts {
		if existing.UserID == sa.UserID && existing.Platform == sa.Platform && existing.AccountID == sa.AccountID {
			cp := *sa
			cp.ID = id
			f.accounts[id] = &cp
			return id, nil
		}
	}
	cp := *sa
	cp.ID = int64(len(f.accounts) + 100)
	f.accounts[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeAccounts) GetAccount(ctx context.Context, id int64) (*models.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (f *fakeAccounts) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range f.accounts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAccounts) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	acc, err := f.GetAccount(ctx, accountID)
	return err == nil && acc.UserID == userID, nil
}

func (f *fakeAccounts) PutCredential(ctx context.Context, id int64, cred models.Credential) (bool, error) {
	return false, nil
}

func (f *fakeAccounts) ListExpiringBefore(ctx context.Context, t time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (f *fakeAccounts) MarkReauthRequired(ctx context.Context, id int64, reason string) error {
	return nil
}

func (f *fakeAccounts) Remove(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, id)
	f.removed = append(f.removed, id)
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	uploads map[string]string
}

func (f *fakeStore) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploads == nil {
		f.uploads = make(map[string]string)
	}
	f.uploads[key] = contentType
	return "https://media.example.com/" + key, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	return nil
}

type fakeQueue struct {
	mu        sync.Mutex
	posts     map[int64]time.Time
	refreshes []int64
	cancelled []string
	err       error
}

func (f *fakeQueue) EnqueuePost(ctx context.Context, postID int64, notBefore time.Time) (*models.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.posts == nil {
		f.posts = make(map[int64]time.Time)
	}
	f.posts[postID] = notBefore
	return &models.WorkItem{ID: fmt.Sprintf("publish-%d", postID), Kind: models.WorkItemPublish, TargetID: postID, NotBefore: notBefore}, nil
}

func (f *fakeQueue) EnqueueRefresh(ctx context.Context, accountID int64) (*models.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, accountID)
	return &models.WorkItem{ID: fmt.Sprintf("refresh-%d", accountID), Kind: models.WorkItemRefresh, TargetID: accountID}, nil
}

func (f *fakeQueue) Cancel(kind models.WorkItemKind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

type fakeUnpublisher struct {
	results []publisher.DeleteResult
	calls   int
}

func (f *fakeUnpublisher) Unpublish(ctx context.Context, post *models.Post) []publisher.DeleteResult {
	f.calls++
	return f.results
}

func account(id, userID int64, platformName string) *models.SocialAccount {
	return &models.SocialAccount{
		ID:            id,
		UserID:        userID,
		Platform:      platformName,
		AccountID:     fmt.Sprintf("%s-%d", platformName, id),
		AccountStatus: models.AccountStatusActive,
		Credential: models.Credential{
			AccessToken:     "access",
			RefreshToken:    "refresh",
			ExpiresAt:       time.Now().Add(time.Hour),
			LastRefreshedAt: time.Now(),
		},
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

// formFiles round-trips files through a real multipart form so the headers
// can be opened like uploaded ones.
func formFiles(t *testing.T, files map[string][]byte) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["files"]
}
