package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tiktokAccount() *models.SocialAccount {
	acc := &models.SocialAccount{ID: 4, Platform: models.PlatformTiktok, AccountID: "open-1"}
	acc.Credential.AccessToken = "tt-token"
	acc.Credential.RefreshToken = "tt-refresh"
	return acc
}

func TestTiktok_PublishVideo(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, tiktokCreatorInfoURL,
		httpmock.NewStringResponder(http.StatusOK, `{"data":{"privacy_level_options":["SELF_ONLY","PUBLIC_TO_EVERYONE"]},"error":{"code":"ok"}}`))
	httpmock.RegisterResponder(http.MethodPost, tiktokVideoInitURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer tt-token", req.Header.Get("Authorization"))
			var body transfer.VideoUploadRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			assert.Equal(t, "PUBLIC_TO_EVERYONE", body.PostInfo.PrivacyLevel)
			assert.Equal(t, "tiktok caption", body.PostInfo.Title)
			assert.Equal(t, "https://cdn/v.mp4", body.SourceInfo.VideoURL)
			return httpmock.NewStringResponse(http.StatusOK, `{"data":{"publish_id":"v_pub_url~v2.123"},"error":{"code":"ok"}}`), nil
		})

	content := models.Content{
		Kind:  models.ContentKindVideo,
		Media: []models.MediaItem{{URL: "https://cdn/v.mp4", MIME: "video/mp4", Format: "mp4"}},
	}
	ref, err := NewTiktok(OAuthConfig{ClientID: "key"}, nil).Publish(context.Background(), tiktokAccount(), content, "tiktok caption")
	require.NoError(t, err)
	assert.Equal(t, ExternalRef("v_pub_url~v2.123"), ref)
}

func TestTiktok_PublishErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"rate", http.StatusTooManyRequests, `{"error":{"code":"rate_limit_exceeded","message":"slow down"}}`, KindRateLimited},
		{"token", http.StatusUnauthorized, `{"error":{"code":"access_token_invalid","message":"expired"}}`, KindAuthExpired},
		{"spam", http.StatusForbidden, `{"error":{"code":"spam_risk_too_many_posts","message":"daily cap"}}`, KindContentRejected},
		{"server", http.StatusInternalServerError, `{"error":{"code":"internal_error","message":"oops"}}`, KindTransientNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Activate()
			defer httpmock.DeactivateAndReset()

			httpmock.RegisterResponder(http.MethodPost, tiktokCreatorInfoURL,
				httpmock.NewStringResponder(tt.status, tt.body))

			content := models.Content{
				Kind:  models.ContentKindImageSet,
				Media: []models.MediaItem{{URL: "https://cdn/a.jpg", MIME: "image/jpeg", Format: "jpg"}},
			}
			_, err := NewTiktok(OAuthConfig{}, nil).Publish(context.Background(), tiktokAccount(), content, "x")
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestTiktok_Refresh(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, tiktokTokenURL,
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseForm())
			assert.Equal(t, "refresh_token", req.PostForm.Get("grant_type"))
			assert.Equal(t, "tt-refresh", req.PostForm.Get("refresh_token"))
			return httpmock.NewStringResponse(http.StatusOK,
				`{"access_token":"tt-token-2","expires_in":86400,"refresh_token":"tt-refresh-2","scope":"user.info.basic,video.publish"}`), nil
		})

	cred, err := NewTiktok(OAuthConfig{ClientID: "key", ClientSecret: "secret"}, nil).Refresh(context.Background(), tiktokAccount())
	require.NoError(t, err)
	assert.Equal(t, "tt-token-2", cred.AccessToken)
	assert.Equal(t, "tt-refresh-2", cred.RefreshToken)
	assert.Equal(t, []string{"user.info.basic", "video.publish"}, cred.Scopes)
	assert.False(t, cred.ExpiresAt.IsZero())
}

func TestTiktok_RefreshRevokedOnOK(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, tiktokTokenURL,
		httpmock.NewStringResponder(http.StatusOK, `{"error":"invalid_grant","error_description":"Refresh token is invalid or expired."}`))

	_, err := NewTiktok(OAuthConfig{}, nil).Refresh(context.Background(), tiktokAccount())
	assert.Equal(t, KindAuthRevoked, KindOf(err))
	assert.Equal(t, "Refresh token is invalid or expired.", ReasonOf(err))
}

func TestTiktok_RefreshWithoutToken(t *testing.T) {
	acc := tiktokAccount()
	acc.Credential.RefreshToken = ""

	_, err := NewTiktok(OAuthConfig{}, nil).Refresh(context.Background(), acc)
	assert.Equal(t, KindAuthRevoked, KindOf(err))
}
