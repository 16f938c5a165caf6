// Package platform holds one adapter per supported social network behind a
// single contract. Callers never branch on the platform name.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/pkg/errors"
)

// ExternalRef identifies a published item on the remote platform.
type ExternalRef string

type Adapter interface {
	Platform() string
	// AuthorizationURL is the consent page for the connect flow. accountHint may be empty.
	AuthorizationURL(accountHint, state string) string
	// Refresh exchanges the account's refresh material for a new credential.
	Refresh(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error)
	Publish(ctx context.Context, acc *models.SocialAccount, content models.Content, caption string) (ExternalRef, error)
	Delete(ctx context.Context, acc *models.SocialAccount, ref ExternalRef) error
}

// Connector completes the OAuth callback and returns an account with its
// credential populated. UserID is left for the caller.
type Connector interface {
	Connect(ctx context.Context, code string) (*models.SocialAccount, error)
}

// Revoker withdraws the application's access on disconnect.
type Revoker interface {
	Revoke(ctx context.Context, acc *models.SocialAccount) error
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

func (r *Registry) Get(platform string) (Adapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, errors.Wrap(ErrUnknownPlatform, platform)
	}
	return a, nil
}

func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// BatchResult is the outcome of deleting one reference in a batch.
type BatchResult struct {
	Ref ExternalRef
	Err error
}

func (b BatchResult) OK() bool {
	return b.Err == nil
}

// BatchDelete deletes refs one at a time. A failure never stops the remaining deletes.
func BatchDelete(ctx context.Context, a Adapter, acc *models.SocialAccount, refs []ExternalRef) []BatchResult {
	results := make([]BatchResult, 0, len(refs))
	for _, ref := range refs {
		results = append(results, BatchResult{Ref: ref, Err: a.Delete(ctx, acc, ref)})
	}
	return results
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// classifier turns a non-2xx response into a taxonomy error.
type classifier func(status int, body []byte) error

func doRequest(client *http.Client, platform string, req *http.Request, out any, classify classifier) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransport(platform, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(platform, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if classify == nil {
			return nil, classifyStatus(platform, resp.StatusCode, body, "")
		}
		return nil, classify(resp.StatusCode, body)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, newError(KindTransientNetwork, platform, "malformed response", err)
		}
	}
	return resp, nil
}

func newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshal payload")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	return req, nil
}

// fetchMedia opens a stored asset for re-upload. The caller closes the body.
func fetchMedia(ctx context.Context, client *http.Client, platform, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "create media request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, classifyTransport(platform, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, 0, newError(KindTransientNetwork, platform, "media storage unavailable", nil)
		}
		return nil, 0, newError(KindContentRejected, platform, "media asset is not reachable", nil)
	}
	return resp.Body, resp.ContentLength, nil
}

func expiresAt(now time.Time, expiresIn int64) time.Time {
	if expiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(expiresIn) * time.Second)
}

func jsonUnmarshal(body []byte, out any) error {
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, out)
}
