package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	tiktokAuthURL        = "https://www.tiktok.com/v2/auth/authorize"
	tiktokTokenURL       = "https://open.tiktokapis.com/v2/oauth/token/"
	tiktokRevokeURL      = "https://open.tiktokapis.com/v2/oauth/revoke/"
	tiktokUserInfoURL    = "https://open.tiktokapis.com/v2/user/info/?fields=open_id,avatar_url,display_name,username"
	tiktokCreatorInfoURL = "https://open.tiktokapis.com/v2/post/publish/creator_info/query/"
	tiktokVideoInitURL   = "https://open.tiktokapis.com/v2/post/publish/video/init/"
	tiktokContentInitURL = "https://open.tiktokapis.com/v2/post/publish/content/init/"
	tiktokScopes         = "user.info.basic,user.info.profile,video.publish,video.upload"
	tiktokPublicPrivacy  = "PUBLIC_TO_EVERYONE"
)

type tiktok struct {
	cfg    OAuthConfig
	client *http.Client
}

func NewTiktok(cfg OAuthConfig, client *http.Client) Adapter {
	return &tiktok{cfg: cfg, client: defaultClient(client)}
}

func (t *tiktok) Platform() string {
	return models.PlatformTiktok
}

func (t *tiktok) AuthorizationURL(accountHint, state string) string {
	params := url.Values{}
	params.Add("client_key", t.cfg.ClientID)
	params.Add("scope", tiktokScopes)
	params.Add("response_type", "code")
	params.Add("redirect_uri", t.cfg.RedirectURI)
	params.Add("state", state)
	return fmt.Sprintf("%s?%s", tiktokAuthURL, params.Encode())
}

func (t *tiktok) Connect(ctx context.Context, code string) (*models.SocialAccount, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}

	cred, err := t.token(ctx, url.Values{
		"client_key":    {t.cfg.ClientID},
		"client_secret": {t.cfg.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {t.cfg.RedirectURI},
	})
	if err != nil {
		return nil, errors.Wrap(err, "exchange code")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tiktokUserInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create user info request")
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	var info transfer.TikTokResponse
	if _, err := doRequest(t.client, t.Platform(), req, &info, t.classify); err != nil {
		return nil, errors.Wrap(err, "fetch user info")
	}

	user := info.Data.User
	return &models.SocialAccount{
		Platform:        models.PlatformTiktok,
		AccountID:       user.OpenID,
		AccountName:     user.DisplayName,
		AccountUsername: user.Username,
		ProfilePicture:  user.AvatarURL,
		AccountStatus:   models.AccountStatusActive,
		Credential:      *cred,
	}, nil
}

func (t *tiktok) Refresh(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error) {
	if acc.Credential.RefreshToken == "" {
		return nil, newError(KindAuthRevoked, t.Platform(), "no refresh token on file", nil)
	}
	return t.token(ctx, url.Values{
		"client_key":    {t.cfg.ClientID},
		"client_secret": {t.cfg.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {acc.Credential.RefreshToken},
	})
}

func (t *tiktok) token(ctx context.Context, form url.Values) (*models.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tiktokTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result transfer.TiktokTokenResponse
	if _, err := doRequest(t.client, t.Platform(), req, &result, t.classifyToken); err != nil {
		return nil, err
	}
	// The token endpoint reports OAuth errors with a 200 status.
	if result.Error != "" {
		return nil, t.tokenError(http.StatusOK, result)
	}

	now := time.Now()
	return &models.Credential{
		AccessToken:     result.AccessToken,
		RefreshToken:    result.RefreshToken,
		ExpiresAt:       expiresAt(now, int64(result.ExpiresIn)),
		Scopes:          strings.Split(result.Scope, ","),
		LastRefreshedAt: now,
	}, nil
}

func (t *tiktok) Publish(ctx context.Context, acc *models.SocialAccount, content models.Content, caption string) (ExternalRef, error) {
	privacy, err := t.privacyLevel(ctx, acc)
	if err != nil {
		return "", err
	}

	var (
		endpoint string
		payload  any
	)
	switch content.Kind {
	case models.ContentKindVideo:
		if len(content.Media) != 1 {
			return "", newError(KindContentRejected, t.Platform(), "video posts need exactly one video", nil)
		}
		endpoint = tiktokVideoInitURL
		payload = transfer.VideoUploadRequest{
			PostInfo: transfer.VideoPostInfo{
				Title:                 caption,
				PrivacyLevel:          privacy,
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.VideoSourceInfo{
				Source:   "PULL_FROM_URL",
				VideoURL: content.Media[0].URL,
			},
		}
	case models.ContentKindImageSet:
		photos := make([]string, 0, len(content.Media))
		for _, m := range content.Media {
			photos = append(photos, m.URL)
		}
		endpoint = tiktokContentInitURL
		payload = transfer.PhotoUploadRequest{
			PostInfo: transfer.PhotoPostInfo{
				Title:        content.Title,
				Description:  caption,
				PrivacyLevel: privacy,
				AutoAddMusic: true,
			},
			SourceInfo: transfer.PhotoSourceInfo{
				Source:      "PULL_FROM_URL",
				PhotoImages: photos,
			},
			PostMode:  "DIRECT_POST",
			MediaType: "PHOTO",
		}
	default:
		return "", newError(KindContentRejected, t.Platform(), "tiktok does not support "+string(content.Kind)+" posts", nil)
	}

	req, err := newJSONRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+acc.Credential.AccessToken)

	var result transfer.TikTokUploadResponse
	if _, err := doRequest(t.client, t.Platform(), req, &result, t.classify); err != nil {
		return "", err
	}
	if result.Data.PublishID == "" {
		return "", newError(KindTransientNetwork, t.Platform(), "no publish id returned", nil)
	}

	logrus.WithFields(logrus.Fields{
		"platform":   t.Platform(),
		"account_id": acc.ID,
		"publish_id": result.Data.PublishID,
	}).Debug("tiktok publish initiated")
	return ExternalRef(result.Data.PublishID), nil
}

// privacyLevel asks TikTok which audiences the creator may post to.
func (t *tiktok) privacyLevel(ctx context.Context, acc *models.SocialAccount) (string, error) {
	req, err := newJSONRequest(ctx, http.MethodPost, tiktokCreatorInfoURL, struct{}{})
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+acc.Credential.AccessToken)

	var info transfer.TiktokCreatorInfoResponse
	if _, err := doRequest(t.client, t.Platform(), req, &info, t.classify); err != nil {
		return "", err
	}
	options := info.Data.PrivacyLevelOptions
	for _, o := range options {
		if o == tiktokPublicPrivacy {
			return o, nil
		}
	}
	if len(options) == 0 {
		return "", newError(KindContentRejected, t.Platform(), "creator cannot post at this time", nil)
	}
	return options[0], nil
}

// Delete is not offered by the TikTok content posting API.
func (t *tiktok) Delete(ctx context.Context, acc *models.SocialAccount, ref ExternalRef) error {
	return newError(KindUnsupported, t.Platform(), "tiktok does not support deleting published posts", nil)
}

func (t *tiktok) Revoke(ctx context.Context, acc *models.SocialAccount) error {
	form := url.Values{
		"client_key":    {t.cfg.ClientID},
		"client_secret": {t.cfg.ClientSecret},
		"token":         {acc.Credential.AccessToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tiktokRevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "create revoke request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err = doRequest(t.client, t.Platform(), req, nil, t.classifyToken)
	return err
}

func (t *tiktok) classify(status int, body []byte) error {
	var resp struct {
		Error transfer.TiktokError `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error.Code == "" {
		return classifyStatus(t.Platform(), status, body, "")
	}
	reason := resp.Error.Message
	switch resp.Error.Code {
	case "rate_limit_exceeded", "spam_risk_too_many_pending_share":
		return newError(KindRateLimited, t.Platform(), reason, nil)
	case "access_token_invalid", "token_not_authorized_for_specified_user":
		return newError(KindAuthExpired, t.Platform(), reason, nil)
	case "scope_not_authorized":
		return newError(KindAuthRevoked, t.Platform(), reason, nil)
	case "internal_error":
		return newError(KindTransientNetwork, t.Platform(), reason, nil)
	}
	return classifyStatus(t.Platform(), status, body, reason)
}

func (t *tiktok) classifyToken(status int, body []byte) error {
	var result transfer.TiktokTokenResponse
	if err := json.Unmarshal(body, &result); err != nil || result.Error == "" {
		return classifyStatus(t.Platform(), status, body, "")
	}
	return t.tokenError(status, result)
}

func (t *tiktok) tokenError(status int, result transfer.TiktokTokenResponse) error {
	reason := result.ErrorDescription
	if reason == "" {
		reason = result.Error
	}
	switch result.Error {
	case "invalid_grant", "access_denied":
		return newError(KindAuthRevoked, t.Platform(), reason, nil)
	case "rate_limit_exceeded":
		return newError(KindRateLimited, t.Platform(), reason, nil)
	case "temporarily_unavailable", "server_error":
		return newError(KindTransientNetwork, t.Platform(), reason, nil)
	}
	if status >= 500 {
		return newError(KindTransientNetwork, t.Platform(), reason, nil)
	}
	return newError(KindAuthExpired, t.Platform(), reason, nil)
}
