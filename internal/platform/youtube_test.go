package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const googleTokenURL = "https://oauth2.googleapis.com/token"

func youtubeAccount() *models.SocialAccount {
	acc := &models.SocialAccount{ID: 2, Platform: models.PlatformYoutube, AccountID: "UC1"}
	acc.Credential.AccessToken = "yt-token"
	acc.Credential.RefreshToken = "yt-refresh"
	return acc
}

func TestYoutube_AuthorizationURL(t *testing.T) {
	a := NewYoutube(OAuthConfig{ClientID: "gid", RedirectURI: "https://app/cb"}, nil)

	u, err := url.Parse(a.AuthorizationURL("me@example.com", "st"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "st", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "me@example.com", q.Get("login_hint"))
	assert.Contains(t, q.Get("scope"), "youtube.upload")
}

func TestYoutube_RefreshKeepsRefreshToken(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, googleTokenURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"access_token": "yt-token-2",
			"token_type":   "Bearer",
			"expires_in":   3599,
		}))

	cred, err := NewYoutube(OAuthConfig{ClientID: "gid", ClientSecret: "gs"}, nil).Refresh(context.Background(), youtubeAccount())
	require.NoError(t, err)
	assert.Equal(t, "yt-token-2", cred.AccessToken)
	assert.Equal(t, "yt-refresh", cred.RefreshToken)
	assert.False(t, cred.ExpiresAt.IsZero())
}

func TestYoutube_RefreshInvalidGrant(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, googleTokenURL,
		httpmock.NewJsonResponderOrPanic(http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Token has been expired or revoked.",
		}))

	_, err := NewYoutube(OAuthConfig{}, nil).Refresh(context.Background(), youtubeAccount())
	assert.Equal(t, KindAuthRevoked, KindOf(err))
}

func TestYoutube_RefreshServerError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, googleTokenURL,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "unavailable"))

	_, err := NewYoutube(OAuthConfig{}, nil).Refresh(context.Background(), youtubeAccount())
	assert.Equal(t, KindTransientNetwork, KindOf(err))
}

func TestYoutube_Publish(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, "https://cdn.example/v.mp4",
		httpmock.NewBytesResponder(http.StatusOK, []byte("fake video bytes")))
	httpmock.RegisterResponder(http.MethodPost, `=~/upload/youtube/v3/videos`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer yt-token", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(http.StatusOK, `{"id":"dQw4w9WgXcQ"}`), nil
		})

	content := models.Content{
		Kind:    models.ContentKindVideo,
		Caption: "first line\nsecond line",
		Media:   []models.MediaItem{{URL: "https://cdn.example/v.mp4", MIME: "video/mp4", Format: "mp4"}},
	}
	ref, err := NewYoutube(OAuthConfig{}, nil).Publish(context.Background(), youtubeAccount(), content, content.Caption)
	require.NoError(t, err)
	assert.Equal(t, ExternalRef("dQw4w9WgXcQ"), ref)
}

func TestYoutube_PublishQuota(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, "https://cdn.example/v.mp4",
		httpmock.NewBytesResponder(http.StatusOK, []byte("fake video bytes")))
	httpmock.RegisterResponder(http.MethodPost, `=~/upload/youtube/v3/videos`,
		httpmock.NewStringResponder(http.StatusForbidden,
			`{"error":{"code":403,"message":"quota exceeded","errors":[{"reason":"quotaExceeded","message":"quota exceeded"}]}}`))

	content := models.Content{
		Kind:  models.ContentKindVideo,
		Media: []models.MediaItem{{URL: "https://cdn.example/v.mp4", MIME: "video/mp4", Format: "mp4"}},
	}
	_, err := NewYoutube(OAuthConfig{}, nil).Publish(context.Background(), youtubeAccount(), content, "x")
	assert.Equal(t, KindRateLimited, KindOf(err))
}

func TestYoutube_DeleteNotFound(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodDelete, `=~/youtube/v3/videos`,
		httpmock.NewStringResponder(http.StatusNotFound,
			`{"error":{"code":404,"message":"Video not found","errors":[{"reason":"videoNotFound"}]}}`))

	err := NewYoutube(OAuthConfig{}, nil).Delete(context.Background(), youtubeAccount(), "gone")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestYoutube_RejectsNonVideo(t *testing.T) {
	_, err := NewYoutube(OAuthConfig{}, nil).Publish(context.Background(), youtubeAccount(),
		models.Content{Kind: models.ContentKindText, Caption: "hi"}, "hi")
	assert.Equal(t, KindContentRejected, KindOf(err))
}

func TestVideoTitle(t *testing.T) {
	assert.Equal(t, "given", videoTitle("given", "caption"))
	assert.Equal(t, "first", videoTitle("", "first\nsecond"))
	assert.Equal(t, "Untitled", videoTitle("", ""))
	assert.Len(t, []rune(videoTitle(strings.Repeat("é", 150), "")), youtubeTitleLimit)
}
