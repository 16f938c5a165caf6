// Package platformtest provides a scriptable platform.Adapter for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

type PublishFunc func(ctx context.Context, acc *models.SocialAccount, content models.Content, caption string) (platform.ExternalRef, error)

type RefreshFunc func(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error)

type DeleteFunc func(ctx context.Context, acc *models.SocialAccount, ref platform.ExternalRef) error

// Adapter records every call. Nil funcs succeed.
type Adapter struct {
	Name        string
	PublishFunc PublishFunc
	RefreshFunc RefreshFunc
	DeleteFunc  DeleteFunc

	mu           sync.Mutex
	publishCalls int
	refreshCalls int
	deleteCalls  int
	tokens       []string
	captions     []string
}

func New(name string) *Adapter {
	return &Adapter{Name: name}
}

func (a *Adapter) Platform() string {
	return a.Name
}

func (a *Adapter) AuthorizationURL(accountHint, state string) string {
	return fmt.Sprintf("https://%s.example/authorize?state=%s&hint=%s", a.Name, state, accountHint)
}

func (a *Adapter) Refresh(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error) {
	a.mu.Lock()
	a.refreshCalls++
	n := a.refreshCalls
	a.mu.Unlock()

	if a.RefreshFunc != nil {
		return a.RefreshFunc(ctx, acc)
	}
	now := time.Now()
	return &models.Credential{
		AccessToken:     fmt.Sprintf("%s-access-%d", a.Name, n),
		RefreshToken:    acc.Credential.RefreshToken,
		ExpiresAt:       now.Add(time.Hour),
		Scopes:          acc.Credential.Scopes,
		LastRefreshedAt: now,
	}, nil
}

func (a *Adapter) Publish(ctx context.Context, acc *models.SocialAccount, content models.Content, caption string) (platform.ExternalRef, error) {
	a.mu.Lock()
	a.publishCalls++
	n := a.publishCalls
	a.tokens = append(a.tokens, acc.Credential.AccessToken)
	a.captions = append(a.captions, caption)
	a.mu.Unlock()

	if a.PublishFunc != nil {
		return a.PublishFunc(ctx, acc, content, caption)
	}
	return platform.ExternalRef(fmt.Sprintf("%s-post-%d", a.Name, n)), nil
}

func (a *Adapter) Delete(ctx context.Context, acc *models.SocialAccount, ref platform.ExternalRef) error {
	a.mu.Lock()
	a.deleteCalls++
	a.mu.Unlock()

	if a.DeleteFunc != nil {
		return a.DeleteFunc(ctx, acc, ref)
	}
	return nil
}

func (a *Adapter) PublishCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.publishCalls
}

func (a *Adapter) RefreshCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshCalls
}

func (a *Adapter) DeleteCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deleteCalls
}

// Tokens returns the access tokens presented to Publish, in call order.
func (a *Adapter) Tokens() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.tokens...)
}

func (a *Adapter) Captions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.captions...)
}

// Fail returns a PublishFunc that always fails with kind.
func Fail(kind platform.Kind) PublishFunc {
	return func(ctx context.Context, acc *models.SocialAccount, content models.Content, caption string) (platform.ExternalRef, error) {
		return "", platform.NewError(kind, acc.Platform, "scripted "+string(kind))
	}
}
