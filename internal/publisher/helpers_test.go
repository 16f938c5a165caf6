package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/maheshrc27/postflow/internal/credential"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/platform/platformtest"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/redis/go-redis/v9"
)

type memPosts struct {
	mu       sync.Mutex
	posts    map[int64]*models.Post
	statuses map[int64][]models.PostStatus
}

func newMemPosts(posts ...*models.Post) *memPosts {
	m := &memPosts{
		posts:    make(map[int64]*models.Post),
		statuses: make(map[int64][]models.PostStatus),
	}
	for _, p := range posts {
		m.posts[p.ID] = p
	}
	return m
}

func (m *memPosts) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	cp.Outcomes = append([]models.Outcome(nil), p.Outcomes...)
	cp.TargetAccountIDs = append([]int64(nil), p.TargetAccountIDs...)
	return &cp, nil
}

func (m *memPosts) UpdateStatus(ctx context.Context, id int64, status models.PostStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	p.StatusReason = reason
	m.statuses[id] = append(m.statuses[id], status)
	return nil
}

func (m *memPosts) RecordOutcome(ctx context.Context, outcome *models.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[outcome.PostID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Outcomes = append(p.Outcomes, *outcome)
	return nil
}

func (m *memPosts) CancelRequested(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	return p.CancelRequested, nil
}

func (m *memPosts) requestCancel(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[id].CancelRequested = true
}

func (m *memPosts) post(id int64) models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.posts[id]
	cp.Outcomes = append([]models.Outcome(nil), m.posts[id].Outcomes...)
	return cp
}

func (m *memPosts) history(id int64) []models.PostStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PostStatus(nil), m.statuses[id]...)
}

type harness struct {
	orch     *Orchestrator
	posts    *memPosts
	accounts *credential.MemoryStore
	leaser   *lock.Leaser
}

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		FanoutLimit:    4,
		Ceiling:        5 * time.Second,
	}
}

func newHarness(t *testing.T, cfg Config, posts *memPosts, adapters ...*platformtest.Adapter) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	leaser := lock.NewLeaser(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)

	list := make([]platform.Adapter, 0, len(adapters))
	for _, a := range adapters {
		list = append(list, a)
	}
	registry := platform.NewRegistry(list...)
	store := credential.NewMemoryStore()
	refresher := credential.NewRefresher(store, registry, credential.Config{
		MaxAttempts:    1,
		BackoffInitial: time.Millisecond,
		Skew:           time.Minute,
	})

	return &harness{
		orch:     NewOrchestrator(posts, store, refresher, registry, leaser, cfg),
		posts:    posts,
		accounts: store,
		leaser:   leaser,
	}
}

func account(id int64, platformName string) *models.SocialAccount {
	now := time.Now()
	return &models.SocialAccount{
		ID:            id,
		UserID:        1,
		Platform:      platformName,
		AccountID:     platformName + "-external",
		AccountStatus: models.AccountStatusActive,
		Credential: models.Credential{
			AccessToken:     platformName + "-stored",
			RefreshToken:    platformName + "-refresh",
			ExpiresAt:       now.Add(time.Hour),
			LastRefreshedAt: now.Add(-time.Hour),
		},
	}
}

func queuedPost(id int64, content models.Content, targets ...int64) *models.Post {
	return &models.Post{
		ID:               id,
		UserID:           1,
		Content:          content,
		TargetAccountIDs: targets,
		Immediate:        true,
		Status:           models.PostStatusQueued,
	}
}

func textContent() models.Content {
	return models.Content{Kind: models.ContentKindText, Caption: "hello world"}
}

func imageContent() models.Content {
	return models.Content{
		Kind:    models.ContentKindImageSet,
		Caption: "look at this",
		Media: []models.MediaItem{{
			AssetID: 1,
			URL:     "https://cdn.example/a.jpg",
			MIME:    "image/jpeg",
			Format:  "jpg",
			Width:   1080,
			Height:  1080,
		}},
	}
}

func outcomeFor(p models.Post, accountID int64) (models.Outcome, bool) {
	for _, o := range p.Outcomes {
		if o.AccountID == accountID {
			return o, true
		}
	}
	return models.Outcome{}, false
}
