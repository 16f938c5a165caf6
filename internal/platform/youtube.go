package platform

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"
	googleRevokeURL   = "https://oauth2.googleapis.com/revoke"
	youtubeTitleLimit = 100
	youtubeCategory   = "22"
)

var youtubeScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube",
}

type youtubeAdapter struct {
	conf   *oauth2.Config
	client *http.Client
	opts   []option.ClientOption
}

func NewYoutube(cfg OAuthConfig, client *http.Client) Adapter {
	return &youtubeAdapter{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       youtubeScopes,
			Endpoint:     google.Endpoint,
		},
		client: defaultClient(client),
	}
}

func (y *youtubeAdapter) Platform() string {
	return models.PlatformYoutube
}

func (y *youtubeAdapter) AuthorizationURL(accountHint, state string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}
	if accountHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", accountHint))
	}
	return y.conf.AuthCodeURL(state, opts...)
}

func (y *youtubeAdapter) Connect(ctx context.Context, code string) (*models.SocialAccount, error) {
	token, err := exchangeOAuth(ctx, y.Platform(), y.conf, y.client, code)
	if err != nil {
		return nil, errors.Wrap(err, "exchange code")
	}
	// Without offline access the account cannot be refreshed later.
	if token.RefreshToken == "" {
		return nil, newError(KindAuthRevoked, y.Platform(), "google did not return a refresh token", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create user info request")
	}
	token.SetAuthHeader(req)

	var info transfer.GoogleUserInfo
	if _, err := doRequest(y.client, y.Platform(), req, &info, nil); err != nil {
		return nil, errors.Wrap(err, "fetch user info")
	}

	return &models.SocialAccount{
		Platform:        models.PlatformYoutube,
		AccountID:       info.ID,
		AccountName:     info.Name,
		AccountUsername: info.Email,
		ProfilePicture:  info.Picture,
		AccountStatus:   models.AccountStatusActive,
		Credential:      *credentialFromToken(token, y.conf.Scopes),
	}, nil
}

func (y *youtubeAdapter) Refresh(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error) {
	return refreshOAuth(ctx, y.Platform(), y.conf, y.client, acc.Credential)
}

func (y *youtubeAdapter) service(ctx context.Context, acc *models.SocialAccount) (*youtube.Service, error) {
	token := &oauth2.Token{AccessToken: acc.Credential.AccessToken, TokenType: "Bearer"}
	httpClient := oauth2.NewClient(withClient(ctx, y.client), oauth2.StaticTokenSource(token))
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, y.opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create youtube service")
	}
	return svc, nil
}

func (y *youtubeAdapter) Publish(ctx context.Context, acc *models.SocialAccount, content models.Content, caption string) (ExternalRef, error) {
	if content.Kind != models.ContentKindVideo || len(content.Media) != 1 {
		return "", newError(KindContentRejected, y.Platform(), "youtube only accepts a single video", nil)
	}

	svc, err := y.service(ctx, acc)
	if err != nil {
		return "", err
	}

	media, _, err := fetchMedia(ctx, y.client, y.Platform(), content.Media[0].URL)
	if err != nil {
		return "", err
	}
	defer media.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       videoTitle(content.Title, caption),
			Description: caption,
			CategoryId:  youtubeCategory,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(media, googleapi.ContentType(content.Media[0].MIME)).
		Context(ctx).
		Do()
	if err != nil {
		return "", y.classify(err)
	}

	logrus.WithFields(logrus.Fields{
		"platform":   y.Platform(),
		"account_id": acc.ID,
		"video_id":   uploaded.Id,
	}).Debug("youtube video uploaded")
	return ExternalRef(uploaded.Id), nil
}

func (y *youtubeAdapter) Delete(ctx context.Context, acc *models.SocialAccount, ref ExternalRef) error {
	svc, err := y.service(ctx, acc)
	if err != nil {
		return err
	}
	if err := svc.Videos.Delete(string(ref)).Context(ctx).Do(); err != nil {
		return y.classify(err)
	}
	return nil
}

func (y *youtubeAdapter) Revoke(ctx context.Context, acc *models.SocialAccount) error {
	token := acc.Credential.RefreshToken
	if token == "" {
		token = acc.Credential.AccessToken
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleRevokeURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "create revoke request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err = doRequest(y.client, y.Platform(), req, nil, nil)
	return err
}

func (y *youtubeAdapter) classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return classifyTransport(y.Platform(), err)
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "uploadLimitExceeded":
			return newError(KindRateLimited, y.Platform(), gerr.Message, nil)
		}
	}
	return classifyStatus(y.Platform(), gerr.Code, []byte(gerr.Body), gerr.Message)
}

// videoTitle falls back to the caption's first line, cut to YouTube's limit.
func videoTitle(title, caption string) string {
	if title == "" {
		title, _, _ = strings.Cut(caption, "\n")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	if r := []rune(title); len(r) > youtubeTitleLimit {
		title = string(r[:youtubeTitleLimit])
	}
	return title
}
