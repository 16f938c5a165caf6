package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
)

const (
	linkedinAPIURL      = "https://api.linkedin.com/rest"
	linkedinUserInfoURL = "https://api.linkedin.com/v2/userinfo"
	linkedinRevokeURL   = "https://www.linkedin.com/oauth/v2/revoke"
	linkedinVersion     = "202411"
	linkedinPostIDKey   = "X-Restli-Id"
)

var linkedinScopes = []string{"openid", "profile", "email", "w_member_social"}

type linkedinAdapter struct {
	cfg    OAuthConfig
	conf   *oauth2.Config
	client *http.Client
}

func NewLinkedin(cfg OAuthConfig, client *http.Client) Adapter {
	return &linkedinAdapter{
		cfg: cfg,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       linkedinScopes,
			Endpoint:     linkedin.Endpoint,
		},
		client: defaultClient(client),
	}
}

func (l *linkedinAdapter) Platform() string {
	return models.PlatformLinkedin
}

func (l *linkedinAdapter) AuthorizationURL(accountHint, state string) string {
	return l.conf.AuthCodeURL(state)
}

func (l *linkedinAdapter) Connect(ctx context.Context, code string) (*models.SocialAccount, error) {
	token, err := exchangeOAuth(ctx, l.Platform(), l.conf, l.client, code)
	if err != nil {
		return nil, errors.Wrap(err, "exchange code")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, linkedinUserInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create user info request")
	}
	token.SetAuthHeader(req)

	var info transfer.LinkedinUserInfo
	if _, err := doRequest(l.client, l.Platform(), req, &info, l.classify); err != nil {
		return nil, errors.Wrap(err, "fetch user info")
	}

	return &models.SocialAccount{
		Platform:        models.PlatformLinkedin,
		AccountID:       info.Sub,
		AccountName:     info.Name,
		AccountUsername: info.Email,
		ProfilePicture:  info.Picture,
		AccountStatus:   models.AccountStatusActive,
		Credential:      *credentialFromToken(token, l.conf.Scopes),
	}, nil
}

func (l *linkedinAdapter) Refresh(ctx context.Context, acc *models.SocialAccount) (*models.Credential, error) {
	return refreshOAuth(ctx, l.Platform(), l.conf, l.client, acc.Credential)
}

func (l *linkedinAdapter) Publish(ctx context.Context, acc *models.SocialAccount, content models.Content, caption string) (ExternalRef, error) {
	author := "urn:li:person:" + acc.AccountID
	post := transfer.LinkedinPostRequest{
		Author:     author,
		Commentary: caption,
		Visibility: "PUBLIC",
		Distribution: transfer.LinkedinDistribution{
			FeedDistribution: "MAIN_FEED",
			TargetEntities:   []string{},
			ThirdParty:       []string{},
		},
		LifecycleState: "PUBLISHED",
	}

	switch content.Kind {
	case models.ContentKindText:
	case models.ContentKindImageSet:
		images := make([]transfer.LinkedinMedia, 0, len(content.Media))
		for _, m := range content.Media {
			urn, err := l.uploadImage(ctx, acc, author, m)
			if err != nil {
				return "", err
			}
			images = append(images, transfer.LinkedinMedia{ID: urn})
		}
		if len(images) == 1 {
			post.Content = &transfer.LinkedinPostContent{Media: &images[0]}
		} else {
			post.Content = &transfer.LinkedinPostContent{MultiImage: &transfer.LinkedinMultiImage{Images: images}}
		}
	case models.ContentKindVideo:
		if len(content.Media) != 1 {
			return "", newError(KindContentRejected, l.Platform(), "video posts need exactly one video", nil)
		}
		urn, err := l.uploadVideo(ctx, acc, author, content.Media[0])
		if err != nil {
			return "", err
		}
		post.Content = &transfer.LinkedinPostContent{Media: &transfer.LinkedinMedia{ID: urn, Title: content.Title}}
	default:
		return "", newError(KindContentRejected, l.Platform(), "unsupported content kind "+string(content.Kind), nil)
	}

	req, err := l.newRequest(ctx, acc, http.MethodPost, linkedinAPIURL+"/posts", post)
	if err != nil {
		return "", err
	}
	resp, err := doRequest(l.client, l.Platform(), req, nil, l.classify)
	if err != nil {
		return "", err
	}
	id := resp.Header.Get(linkedinPostIDKey)
	if id == "" {
		return "", newError(KindTransientNetwork, l.Platform(), "no post id returned", nil)
	}

	logrus.WithFields(logrus.Fields{
		"platform":   l.Platform(),
		"account_id": acc.ID,
		"post_urn":   id,
	}).Debug("linkedin post created")
	return ExternalRef(id), nil
}

func (l *linkedinAdapter) uploadImage(ctx context.Context, acc *models.SocialAccount, owner string, m models.MediaItem) (string, error) {
	var init transfer.LinkedinUploadRequest
	init.InitializeUploadRequest.Owner = owner

	req, err := l.newRequest(ctx, acc, http.MethodPost, linkedinAPIURL+"/images?action=initializeUpload", init)
	if err != nil {
		return "", err
	}
	var upload transfer.LinkedinUploadResponse
	if _, err := doRequest(l.client, l.Platform(), req, &upload, l.classify); err != nil {
		return "", err
	}

	data, err := l.download(ctx, m.URL)
	if err != nil {
		return "", err
	}
	if _, err := l.put(ctx, acc, upload.Value.UploadURL, data); err != nil {
		return "", err
	}
	return upload.Value.Image, nil
}

func (l *linkedinAdapter) uploadVideo(ctx context.Context, acc *models.SocialAccount, owner string, m models.MediaItem) (string, error) {
	data, err := l.download(ctx, m.URL)
	if err != nil {
		return "", err
	}

	var init transfer.LinkedinUploadRequest
	init.InitializeUploadRequest.Owner = owner
	init.InitializeUploadRequest.FileSizeBytes = int64(len(data))

	req, err := l.newRequest(ctx, acc, http.MethodPost, linkedinAPIURL+"/videos?action=initializeUpload", init)
	if err != nil {
		return "", err
	}
	var upload transfer.LinkedinUploadResponse
	if _, err := doRequest(l.client, l.Platform(), req, &upload, l.classify); err != nil {
		return "", err
	}

	partIDs := make([]string, 0, len(upload.Value.UploadInstructions))
	for _, in := range upload.Value.UploadInstructions {
		last := in.LastByte + 1
		if last <= 0 || last > int64(len(data)) {
			last = int64(len(data))
		}
		if in.FirstByte < 0 || in.FirstByte >= last {
			return "", newError(KindContentRejected, l.Platform(), "invalid upload instruction", nil)
		}
		etag, err := l.put(ctx, acc, in.UploadURL, data[in.FirstByte:last])
		if err != nil {
			return "", err
		}
		partIDs = append(partIDs, etag)
	}

	var fin transfer.LinkedinFinalizeRequest
	fin.FinalizeUploadRequest.Video = upload.Value.Video
	fin.FinalizeUploadRequest.UploadToken = upload.Value.UploadToken
	fin.FinalizeUploadRequest.UploadedPartIDs = partIDs

	req, err = l.newRequest(ctx, acc, http.MethodPost, linkedinAPIURL+"/videos?action=finalizeUpload", fin)
	if err != nil {
		return "", err
	}
	if _, err := doRequest(l.client, l.Platform(), req, nil, l.classify); err != nil {
		return "", err
	}
	return upload.Value.Video, nil
}

func (l *linkedinAdapter) download(ctx context.Context, mediaURL string) ([]byte, error) {
	body, _, err := fetchMedia(ctx, l.client, l.Platform(), mediaURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, classifyTransport(l.Platform(), err)
	}
	return data, nil
}

// put uploads raw bytes and returns the part's ETag.
func (l *linkedinAdapter) put(ctx context.Context, acc *models.SocialAccount, uploadURL string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "create upload request")
	}
	req.Header.Set("Authorization", "Bearer "+acc.Credential.AccessToken)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := doRequest(l.client, l.Platform(), req, nil, l.classify)
	if err != nil {
		return "", err
	}
	return resp.Header.Get("ETag"), nil
}

func (l *linkedinAdapter) Delete(ctx context.Context, acc *models.SocialAccount, ref ExternalRef) error {
	req, err := l.newRequest(ctx, acc, http.MethodDelete, linkedinAPIURL+"/posts/"+url.QueryEscape(string(ref)), nil)
	if err != nil {
		return err
	}
	_, err = doRequest(l.client, l.Platform(), req, nil, l.classify)
	return err
}

func (l *linkedinAdapter) Revoke(ctx context.Context, acc *models.SocialAccount) error {
	form := url.Values{
		"client_id":     {l.cfg.ClientID},
		"client_secret": {l.cfg.ClientSecret},
		"token":         {acc.Credential.AccessToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, linkedinRevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "create revoke request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err = doRequest(l.client, l.Platform(), req, nil, nil)
	return err
}

func (l *linkedinAdapter) newRequest(ctx context.Context, acc *models.SocialAccount, method, endpoint string, payload any) (*http.Request, error) {
	req, err := newJSONRequest(ctx, method, endpoint, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+acc.Credential.AccessToken)
	req.Header.Set("LinkedIn-Version", linkedinVersion)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	return req, nil
}

func (l *linkedinAdapter) classify(status int, body []byte) error {
	var resp transfer.LinkedinError
	if err := json.Unmarshal(body, &resp); err != nil || resp.Message == "" {
		return classifyStatus(l.Platform(), status, body, "")
	}
	if resp.Code == "REVOKED_ACCESS_TOKEN" {
		return newError(KindAuthRevoked, l.Platform(), resp.Message, nil)
	}
	return classifyStatus(l.Platform(), status, body, resp.Message)
}
