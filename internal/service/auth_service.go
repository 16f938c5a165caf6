package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	loginStatePurpose = "login"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"
)

type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Secret       string
}

// AuthService signs users in with Google. It only issues identities; the
// session itself is a JWT cookie set by the handler.
type AuthService interface {
	LoginURL() (string, error)
	LoginCallback(ctx context.Context, code, state string) (int64, error)
}

type authService struct {
	conf   *oauth2.Config
	secret string
	u      repository.UserRepository
}

func NewAuthService(cfg AuthConfig, u repository.UserRepository) AuthService {
	return &authService{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
			Endpoint:     google.Endpoint,
		},
		secret: cfg.Secret,
		u:      u,
	}
}

func (s *authService) LoginURL() (string, error) {
	state, err := utils.GenerateStateToken(s.secret, "", loginStatePurpose, stateTTL)
	if err != nil {
		return "", err
	}
	return s.conf.AuthCodeURL(state), nil
}

func (s *authService) LoginCallback(ctx context.Context, code, state string) (int64, error) {
	if code == "" {
		return 0, errors.New("code is empty")
	}
	if _, err := utils.ValidateStateToken(s.secret, state, loginStatePurpose); err != nil {
		return 0, ErrInvalidState
	}
	if s.conf.ClientID == "" || s.conf.ClientSecret == "" || s.conf.RedirectURL == "" {
		return 0, errors.New("OAuth2 configuration is incomplete")
	}

	token, err := s.conf.Exchange(ctx, code)
	if err != nil {
		logrus.Error(err)
		return 0, fmt.Errorf("exchange login code: %w", err)
	}

	userInfo, err := fetchUserInfo(s.conf.Client(ctx, token))
	if err != nil {
		return 0, err
	}

	return s.u.Upsert(ctx, &models.User{
		GoogleID:       userInfo.ID,
		Email:          userInfo.Email,
		Name:           userInfo.Name,
		ProfilePicture: userInfo.Picture,
	})
}

func fetchUserInfo(client *http.Client) (*transfer.GoogleUserInfo, error) {
	response, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("error fetching user info: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response status: %d", response.StatusCode)
	}

	var userInfo transfer.GoogleUserInfo
	if err := json.NewDecoder(response.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("error decoding user info: %w", err)
	}
	return &userInfo, nil
}
