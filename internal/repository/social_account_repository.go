package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/sirupsen/logrus"
)

// SocialAccountRepository persists connected accounts. Tokens are sealed with
// AES-GCM before they reach the database and opened again on read.
type SocialAccountRepository interface {
	// Upsert connects an account, or reconnects it with a fresh credential.
	Upsert(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error)
	GetAccount(ctx context.Context, id int64) (*models.SocialAccount, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error)
	PutCredential(ctx context.Context, id int64, cred models.Credential) (bool, error)
	ListExpiringBefore(ctx context.Context, t time.Time) ([]*models.SocialAccount, error)
	MarkReauthRequired(ctx context.Context, id int64, reason string) error
	Remove(ctx context.Context, id int64) error
}

type socialAccountRepository struct {
	db  *sql.DB
	key []byte
}

func NewSocialAccountRepository(db *sql.DB, key []byte) SocialAccountRepository {
	return &socialAccountRepository{db: db, key: key}
}

const accountColumns = `id, user_id, platform, account_id, account_name, account_username, profile_picture_url,
	access_token, refresh_token, token_expires_at, scopes, last_refreshed_at, account_status, created_at, updated_at`

func (r *socialAccountRepository) scan(row rowScanner) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	var access, refresh string
	var expires sql.NullTime

	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.AccountID, &sa.AccountName,
		&sa.AccountUsername, &sa.ProfilePicture, &access, &refresh, &expires,
		pq.Array(&sa.Credential.Scopes), &sa.Credential.LastRefreshedAt, &sa.AccountStatus,
		&sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if sa.Credential.AccessToken, err = utils.Decrypt(access, r.key); err != nil {
		return nil, fmt.Errorf("open access token of account %d: %w", sa.ID, err)
	}
	if sa.Credential.RefreshToken, err = utils.Decrypt(refresh, r.key); err != nil {
		return nil, fmt.Errorf("open refresh token of account %d: %w", sa.ID, err)
	}
	if expires.Valid {
		sa.Credential.ExpiresAt = expires.Time
	}
	return &sa, nil
}

func (r *socialAccountRepository) seal(cred models.Credential) (access, refresh string, err error) {
	if access, err = utils.Encrypt([]byte(cred.AccessToken), r.key); err != nil {
		return "", "", fmt.Errorf("seal access token: %w", err)
	}
	if refresh, err = utils.Encrypt([]byte(cred.RefreshToken), r.key); err != nil {
		return "", "", fmt.Errorf("seal refresh token: %w", err)
	}
	return access, refresh, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (r *socialAccountRepository) Upsert(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	query := `
		INSERT INTO social_accounts (
			user_id,
			platform,
			account_id,
			account_name,
			account_username,
			profile_picture_url,
			access_token,
			refresh_token,
			token_expires_at,
			scopes,
			last_refreshed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, platform, account_id) DO UPDATE SET
			account_name = EXCLUDED.account_name,
			account_username = EXCLUDED.account_username,
			profile_picture_url = EXCLUDED.profile_picture_url,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			scopes = EXCLUDED.scopes,
			last_refreshed_at = EXCLUDED.last_refreshed_at,
			account_status = 'active',
			status_reason = '',
			updated_at = NOW()
		RETURNING id
	`

	access, refresh, err := r.seal(sa.Credential)
	if err != nil {
		return 0, err
	}

	refreshedAt := sa.Credential.LastRefreshedAt
	if refreshedAt.IsZero() {
		refreshedAt = time.Now()
	}
	scopes := sa.Credential.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	args := []any{sa.UserID, sa.Platform, sa.AccountID, sa.AccountName, sa.AccountUsername,
		sa.ProfilePicture, access, refresh, nullTime(sa.Credential.ExpiresAt), pq.Array(scopes), refreshedAt}

	var id int64
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{"platform": sa.Platform, "user_id": sa.UserID}).Error(err)
		return 0, fmt.Errorf("upsert social account: %w", err)
	}

	return id, nil
}

func (r *socialAccountRepository) GetAccount(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts WHERE id = $1`

	sa, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		logrus.WithField("account_id", id).Error(err)
		return nil, fmt.Errorf("get social account %d: %w", id, err)
	}
	return sa, nil
}

func (r *socialAccountRepository) list(ctx context.Context, query string, args ...any) ([]*models.SocialAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logrus.Error(err)
		return nil, fmt.Errorf("list social accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := r.scan(rows)
		if err != nil {
			logrus.Error(err)
			return nil, err
		}
		accounts = append(accounts, sa)
	}
	return accounts, rows.Err()
}

func (r *socialAccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts WHERE user_id = $1 ORDER BY id`
	return r.list(ctx, query, userID)
}

func (r *socialAccountRepository) ListExpiringBefore(ctx context.Context, t time.Time) ([]*models.SocialAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts
		WHERE account_status = 'active' AND token_expires_at IS NOT NULL AND token_expires_at < $1
		ORDER BY token_expires_at`
	return r.list(ctx, query, t)
}

func (r *socialAccountRepository) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	query := "SELECT 1 FROM social_accounts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		logrus.Error(err)
		return false, err
	}

	return result == 1, nil
}

// PutCredential is a conditional update: a credential refreshed earlier than
// the stored one never overwrites it.
func (r *socialAccountRepository) PutCredential(ctx context.Context, id int64, cred models.Credential) (bool, error) {
	query := `
		UPDATE social_accounts
		SET access_token = $2,
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expires_at = $4,
			scopes = $5,
			last_refreshed_at = $6,
			account_status = 'active',
			status_reason = '',
			updated_at = NOW()
		WHERE id = $1 AND last_refreshed_at <= $6
	`

	access, refresh, err := r.seal(cred)
	if err != nil {
		return false, err
	}
	scopes := cred.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	res, err := r.db.ExecContext(ctx, query, id, access, refresh, nullTime(cred.ExpiresAt), pq.Array(scopes), cred.LastRefreshedAt)
	if err != nil {
		logrus.WithField("account_id", id).Error(err)
		return false, fmt.Errorf("put credential for account %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *socialAccountRepository) exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM social_accounts WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		logrus.Error(err)
		return false, err
	}
	return true, nil
}

func (r *socialAccountRepository) MarkReauthRequired(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE social_accounts
		SET account_status = $2,
			status_reason = $3,
			updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, models.AccountStatusReauthRequired, reason)
	if err != nil {
		logrus.WithField("account_id", id).Error(err)
		return fmt.Errorf("mark account %d for reauth: %w", id, err)
	}
	return expectAffected(res)
}

func (r *socialAccountRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM social_accounts WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		logrus.Error(err)
		return fmt.Errorf("remove social account %d: %w", id, err)
	}
	return nil
}
