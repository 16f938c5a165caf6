package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/sirupsen/logrus"
)

const stateTTL = 10 * time.Minute

var (
	ErrInvalidState       = errors.New("unable to validate user")
	ErrConnectUnsupported = errors.New("platform cannot be connected")
)

type AccountQueue interface {
	EnqueueRefresh(ctx context.Context, accountID int64) (*models.WorkItem, error)
	Cancel(kind models.WorkItemKind, id string) error
}

type Adapters interface {
	Get(platform string) (platform.Adapter, error)
}

type PlatformService interface {
	// GetAuthURL starts the connect flow with a signed single-platform state.
	GetAuthURL(ctx context.Context, userID int64, platformName string) (string, error)
	Callback(ctx context.Context, platformName, code, state string) (*models.SocialAccount, error)
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Delete(ctx context.Context, userID, accountID int64) error
	// Refresh queues an out-of-band credential refresh for the account.
	Refresh(ctx context.Context, userID, accountID int64) (*models.WorkItem, error)
}

type platformService struct {
	secret   string
	sa       repository.SocialAccountRepository
	adapters Adapters
	queue    AccountQueue
}

func NewPlatformService(secret string, sa repository.SocialAccountRepository, adapters Adapters, queue AccountQueue) PlatformService {
	return &platformService{
		secret:   secret,
		sa:       sa,
		adapters: adapters,
		queue:    queue,
	}
}

func (s *platformService) GetAuthURL(ctx context.Context, userID int64, platformName string) (string, error) {
	adapter, err := s.adapters.Get(platformName)
	if err != nil {
		return "", err
	}
	if _, ok := adapter.(platform.Connector); !ok {
		return "", ErrConnectUnsupported
	}

	state, err := utils.GenerateStateToken(s.secret, strconv.FormatInt(userID, 10), platformName, stateTTL)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return adapter.AuthorizationURL("", state), nil
}

func (s *platformService) Callback(ctx context.Context, platformName, code, state string) (*models.SocialAccount, error) {
	claims, err := utils.ValidateStateToken(s.secret, state, platformName)
	if err != nil {
		logrus.WithField("platform", platformName).Warn(err)
		return nil, ErrInvalidState
	}
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		return nil, ErrInvalidState
	}

	adapter, err := s.adapters.Get(platformName)
	if err != nil {
		return nil, err
	}
	connector, ok := adapter.(platform.Connector)
	if !ok {
		return nil, ErrConnectUnsupported
	}

	acc, err := connector.Connect(ctx, code)
	if err != nil {
		logrus.WithFields(logrus.Fields{"platform": platformName, "user_id": userID}).Error(err)
		return nil, err
	}
	acc.UserID = userID

	if acc.ID, err = s.sa.Upsert(ctx, nil, acc); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"platform":   platformName,
		"account_id": acc.ID,
		"user_id":    userID,
	}).Info("social account connected")
	return acc, nil
}

func (s *platformService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	if userID == 0 {
		return nil, errors.New("user id is not valid")
	}

	accounts, err := s.sa.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting social accounts: %w", err)
	}
	return accounts, nil
}

func (s *platformService) owned(ctx context.Context, userID, accountID int64) (*models.SocialAccount, error) {
	if userID == 0 || accountID == 0 {
		return nil, ErrAccountNotFound
	}
	acc, err := s.sa.GetAccount(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && acc.UserID != userID) {
		return nil, ErrAccountNotFound
	}
	return acc, err
}

// Delete disconnects the account, revoking access first where the platform
// allows it. A token the platform already rejects does not block removal.
func (s *platformService) Delete(ctx context.Context, userID, accountID int64) error {
	acc, err := s.owned(ctx, userID, accountID)
	if err != nil {
		return err
	}

	if adapter, err := s.adapters.Get(acc.Platform); err == nil {
		if revoker, ok := adapter.(platform.Revoker); ok {
			if err := revoker.Revoke(ctx, acc); err != nil {
				switch platform.KindOf(err) {
				case platform.KindAuthExpired, platform.KindAuthRevoked, platform.KindNotFound:
				default:
					logrus.WithFields(logrus.Fields{"platform": acc.Platform, "account_id": acc.ID}).Error(err)
					return fmt.Errorf("unable to revoke access: %w", err)
				}
			}
		}
	}

	if err := s.queue.Cancel(models.WorkItemRefresh, queue.RefreshItemID(accountID)); err != nil {
		logrus.WithField("account_id", accountID).Warn(err)
	}
	return s.sa.Remove(ctx, accountID)
}

func (s *platformService) Refresh(ctx context.Context, userID, accountID int64) (*models.WorkItem, error) {
	if _, err := s.owned(ctx, userID, accountID); err != nil {
		return nil, err
	}

	item, err := s.queue.EnqueueRefresh(ctx, accountID)
	if errors.Is(err, queue.ErrAlreadyQueued) {
		return item, nil
	}
	return item, err
}
