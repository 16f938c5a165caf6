package platform

import (
	"context"
	"net/http"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// withClient makes the oauth2 package use the adapter's http.Client.
func withClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func refreshOAuth(ctx context.Context, platform string, conf *oauth2.Config, client *http.Client, cred models.Credential) (*models.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, newError(KindAuthRevoked, platform, "no refresh token on file", nil)
	}
	token, err := conf.TokenSource(withClient(ctx, client), &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return nil, classifyOAuth(platform, err)
	}
	out := credentialFromToken(token, conf.Scopes)
	// Providers may omit the refresh token when it is unchanged.
	if out.RefreshToken == "" {
		out.RefreshToken = cred.RefreshToken
	}
	return out, nil
}

func exchangeOAuth(ctx context.Context, platform string, conf *oauth2.Config, client *http.Client, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}
	token, err := conf.Exchange(withClient(ctx, client), code)
	if err != nil {
		return nil, classifyOAuth(platform, err)
	}
	return token, nil
}

func credentialFromToken(token *oauth2.Token, scopes []string) *models.Credential {
	return &models.Credential{
		AccessToken:     token.AccessToken,
		RefreshToken:    token.RefreshToken,
		ExpiresAt:       token.Expiry,
		Scopes:          scopes,
		LastRefreshedAt: time.Now(),
	}
}

func classifyOAuth(platform string, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return classifyTransport(platform, err)
	}
	reason := re.ErrorDescription
	if reason == "" {
		reason = re.ErrorCode
	}
	if re.ErrorCode == "invalid_grant" || re.ErrorCode == "unauthorized_client" {
		return newError(KindAuthRevoked, platform, reason, nil)
	}
	status := http.StatusBadGateway
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	return classifyStatus(platform, status, re.Body, reason)
}
