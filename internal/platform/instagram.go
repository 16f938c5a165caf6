package platform

import (
	"context"
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
	instagramAuthURL  = "https://www.instagram.com/oauth/authorize"
	instagramTokenURL = "https://api.instagram.com/oauth/access_token"
	instagramGraphURL = "https://graph.instagram.com"
	instagramVersion  = "v21.0"
	instagramScopes   = "instagram_business_basic,instagram_business_content_publish"
)

// Graph API error codes that mean throttling or a dead token.
var (
	instagramRateCodes = map[int]bool{4: true, 17: true, 32: true, 613: true}
	instagramAuthCode  = 190
)

type instagram struct {
	cfg          OAuthConfig
	client       *http.Client
	pollInterval time.Duration
	maxPolls     int
}

func NewInstagram(cfg OAuthConfig, client *http.Client) Adapter {
	return &instagram{
		cfg:          cfg,
		client:       defaultClient(client),
		pollInterval: 3 * time.Second,
		maxPolls:     40,
	}
}

func (ig *instagram) Platform() string {
	return models.PlatformInstagram
}

func (ig *instagram) AuthorizationURL(accountHint, state string) string {
	params := url.Values{}
	params.Add("client_id", ig.cfg.ClientID)
	params.Add("scope", instagramScopes)
	params.Add("response_type", "code")
	params.Add("redirect_uri", ig.cfg.RedirectURI)
	params.Add("state", state)
	return fmt.Sprintf("%s?%s", instagramAuthURL, params.Encode())
}

func (ig *instagram) Connect(ctx context.Context, code string) (*models.SocialAccount, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}

	data := url.Values{}
	data.Set("client_id", ig.cfg.ClientID)
	data.Set("client_secret", ig.cfg.ClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", ig.cfg.RedirectURI)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, instagramTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var short transfer.InstagramTokenResponse
	if _, err := doRequest(ig.client, ig.Platform(), req, &short, ig.classify(true)); err != nil {
		return nil, errors.Wrap(err, "exchange code")
	}

	// Short-lived tokens last an hour; trade for the 60 day variant.
	longURL := fmt.Sprintf("%s/access_token?%s", instagramGraphURL, url.Values{
		"grant_type":    {"ig_exchange_token"},
		"client_secret": {ig.cfg.ClientSecret},
		"access_token":  {short.AccessToken},
	}.Encode())
	cred, err := ig.tokenCall(ctx, longURL)
	if err != nil {
		return nil, errors.Wrap(err, "exchange long-lived token")
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet,
		instagramGraphURL+"/me?fields=id,username,name,account_type,profile_picture_url", nil)
	if err != nil {
		return nil, errors.Wrap(err, "create user info request")
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	var info transfer.InstagramUserInfo
	if _, err := doRequest(ig.client, ig.Platform(), req, &info, ig.classify(false)); err != nil {
		return nil, errors.Wrap(err, "fetch user info")
	}

	return &models.SocialAccount{
		Platform:        models.PlatformInstagram,
		AccountID:       info.UserID,
		AccountName:     info.Name,
		AccountUsername: info.Username,
		ProfilePicture:  info.ProfilePicture,
		AccountStatus:   models.AccountStatusActive,
		Credential:      *cred,
	}, nil
}

// Refresh extends a long-lived token. Instagram has no separate refresh token,
// so the access token doubles as the refresh material.
func (ig *instagram) Refresh(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error) {
	token := acc.Credential.RefreshToken
	if token == "" {
		token = acc.Credential.AccessToken
	}
	refreshURL := fmt.Sprintf("%s/refresh_access_token?%s", instagramGraphURL, url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {token},
	}.Encode())
	return ig.tokenCall(ctx, refreshURL)
}

func (ig *instagram) tokenCall(ctx context.Context, endpoint string) (*models.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create token request")
	}

	var result transfer.InstagramTokenResponse
	if _, err := doRequest(ig.client, ig.Platform(), req, &result, ig.classify(true)); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, newError(KindTransientNetwork, ig.Platform(), "token response without access token", nil)
	}

	now := time.Now()
	return &models.Credential{
		AccessToken:     result.AccessToken,
		RefreshToken:    result.AccessToken,
		ExpiresAt:       expiresAt(now, result.ExpiresIn),
		Scopes:          strings.Split(instagramScopes, ","),
		LastRefreshedAt: now,
	}, nil
}

func (ig *instagram) Publish(ctx context.Context, acc *models.SocialAccount, content models.Content, caption string) (ExternalRef, error) {
	var (
		containerID string
		err         error
	)
	switch {
	case content.Kind == models.ContentKindVideo && len(content.Media) == 1:
		containerID, err = ig.createContainer(ctx, acc, map[string]any{
			"media_type": "REELS",
			"video_url":  content.Media[0].URL,
			"caption":    caption,
		})
	case content.Kind == models.ContentKindImageSet && len(content.Media) == 1:
		containerID, err = ig.createContainer(ctx, acc, map[string]any{
			"image_url": content.Media[0].URL,
			"caption":   caption,
		})
	case content.Kind == models.ContentKindImageSet && len(content.Media) > 1:
		containerID, err = ig.createCarousel(ctx, acc, content.Media, caption)
	default:
		return "", newError(KindContentRejected, ig.Platform(), "unsupported content for instagram", nil)
	}
	if err != nil {
		return "", err
	}

	if err := ig.waitReady(ctx, acc, containerID); err != nil {
		return "", err
	}

	req, err := newJSONRequest(ctx, http.MethodPost, ig.mediaURL(acc, "media_publish"), map[string]string{
		"creation_id": containerID,
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+acc.Credential.AccessToken)

	var published transfer.InstagramMediaResponse
	if _, err := doRequest(ig.client, ig.Platform(), req, &published, ig.classify(false)); err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", newError(KindTransientNetwork, ig.Platform(), "no media id returned", nil)
	}

	logrus.WithFields(logrus.Fields{
		"platform":   ig.Platform(),
		"account_id": acc.ID,
		"media_id":   published.ID,
	}).Debug("instagram media published")
	return ExternalRef(published.ID), nil
}

func (ig *instagram) createCarousel(ctx context.Context, acc *models.SocialAccount, media []models.MediaItem, caption string) (string, error) {
	children := make([]string, 0, len(media))
	for _, m := range media {
		id, err := ig.createContainer(ctx, acc, map[string]any{
			"image_url":        m.URL,
			"is_carousel_item": true,
		})
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}
	return ig.createContainer(ctx, acc, map[string]any{
		"media_type": "CAROUSEL",
		"caption":    caption,
		"children":   strings.Join(children, ","),
	})
}

func (ig *instagram) createContainer(ctx context.Context, acc *models.SocialAccount, payload map[string]any) (string, error) {
	req, err := newJSONRequest(ctx, http.MethodPost, ig.mediaURL(acc, "media"), payload)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+acc.Credential.AccessToken)

	var container transfer.InstagramMediaResponse
	if _, err := doRequest(ig.client, ig.Platform(), req, &container, ig.classify(false)); err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", newError(KindTransientNetwork, ig.Platform(), "no container id returned", nil)
	}
	return container.ID, nil
}

// waitReady polls a container until Instagram has finished ingesting its media.
func (ig *instagram) waitReady(ctx context.Context, acc *models.SocialAccount, containerID string) error {
	statusURL := fmt.Sprintf("%s/%s/%s?fields=status_code,status", instagramGraphURL, instagramVersion, containerID)
	for i := 0; i < ig.maxPolls; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return errors.Wrap(err, "create status request")
		}
		req.Header.Set("Authorization", "Bearer "+acc.Credential.AccessToken)

		var status transfer.InstagramContainerStatus
		if _, err := doRequest(ig.client, ig.Platform(), req, &status, ig.classify(false)); err != nil {
			return err
		}
		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return newError(KindContentRejected, ig.Platform(), "media processing failed: "+status.Status, nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ig.pollInterval):
		}
	}
	return newError(KindTransientNetwork, ig.Platform(), "media still processing", nil)
}

// Delete is not offered by the Instagram Graph API for published media.
func (ig *instagram) Delete(ctx context.Context, acc *models.SocialAccount, ref ExternalRef) error {
	return newError(KindUnsupported, ig.Platform(), "instagram does not support deleting published media", nil)
}

func (ig *instagram) mediaURL(acc *models.SocialAccount, edge string) string {
	return fmt.Sprintf("%s/%s/%s/%s", instagramGraphURL, instagramVersion, acc.AccountID, edge)
}

func (ig *instagram) classify(refreshing bool) classifier {
	return func(status int, body []byte) error {
		var resp transfer.InstagramErrorResponse
		if err := jsonUnmarshal(body, &resp); err != nil || resp.Error.Code == 0 {
			return classifyStatus(ig.Platform(), status, body, "")
		}
		e := resp.Error
		reason := e.Message
		if e.ErrorUserMsg != "" {
			reason = e.ErrorUserMsg
		}
		switch {
		case e.Code == instagramAuthCode && refreshing:
			return newError(KindAuthRevoked, ig.Platform(), reason, nil)
		case e.Code == instagramAuthCode:
			return newError(KindAuthExpired, ig.Platform(), reason, nil)
		case instagramRateCodes[e.Code]:
			return newError(KindRateLimited, ig.Platform(), reason, nil)
		case e.IsTransient:
			return newError(KindTransientNetwork, ig.Platform(), reason, nil)
		}
		return classifyStatus(ig.Platform(), status, body, reason)
	}
}
