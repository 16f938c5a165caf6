// Package credential keeps per-account OAuth material fresh.
package credential

import (
	"context"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

// Store is the persisted home of accounts and their credentials. Every
// operation is atomic for a single account.
type Store interface {
	GetAccount(ctx context.Context, id int64) (*models.SocialAccount, error)
	// PutCredential stores cred unless the stored one was refreshed later.
	// It reports whether cred was written.
	PutCredential(ctx context.Context, id int64, cred models.Credential) (bool, error)
	ListExpiringBefore(ctx context.Context, t time.Time) ([]*models.SocialAccount, error)
	MarkReauthRequired(ctx context.Context, id int64, reason string) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[int64]*models.SocialAccount
	locks    map[int64]*sync.Mutex
}

// NewMemoryStore returns a Store backed by process memory.
func NewMemoryStore(accounts ...*models.SocialAccount) *MemoryStore {
	s := &MemoryStore{
		accounts: make(map[int64]*models.SocialAccount),
		locks:    make(map[int64]*sync.Mutex),
	}
	for _, acc := range accounts {
		s.Add(acc)
	}
	return s
}

func (s *MemoryStore) Add(acc *models.SocialAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneAccount(acc)
	s.accounts[acc.ID] = cp
	if _, ok := s.locks[acc.ID]; !ok {
		s.locks[acc.ID] = &sync.Mutex{}
	}
}

func (s *MemoryStore) lock(id int64) (*sync.Mutex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locks[id]
	return l, ok
}

func (s *MemoryStore) GetAccount(ctx context.Context, id int64) (*models.SocialAccount, error) {
	l, ok := s.lock(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAccount(s.accounts[id]), nil
}

func (s *MemoryStore) PutCredential(ctx context.Context, id int64, cred models.Credential) (bool, error) {
	l, ok := s.lock(id)
	if !ok {
		return false, repository.ErrNotFound
	}
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[id]
	if acc.Credential.NewerThan(cred) {
		return false, nil
	}
	acc.Credential = cloneCredential(cred)
	acc.AccountStatus = models.AccountStatusActive
	acc.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) ListExpiringBefore(ctx context.Context, t time.Time) ([]*models.SocialAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.SocialAccount
	for _, acc := range s.accounts {
		if acc.AccountStatus == models.AccountStatusReauthRequired {
			continue
		}
		if !acc.Credential.ExpiresAt.IsZero() && acc.Credential.ExpiresAt.Before(t) {
			out = append(out, cloneAccount(acc))
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkReauthRequired(ctx context.Context, id int64, reason string) error {
	l, ok := s.lock(id)
	if !ok {
		return repository.ErrNotFound
	}
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id].AccountStatus = models.AccountStatusReauthRequired
	return nil
}

func cloneAccount(acc *models.SocialAccount) *models.SocialAccount {
	cp := *acc
	cp.Credential = cloneCredential(acc.Credential)
	return &cp
}

func cloneCredential(c models.Credential) models.Credential {
	c.Scopes = append([]string(nil), c.Scopes...)
	return c
}
