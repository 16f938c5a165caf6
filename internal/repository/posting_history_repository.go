package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/sirupsen/logrus"
)

// PostingHistoryRepository stores per-account outcomes. A post has at most one
// outcome per target account; the first one recorded wins.
type PostingHistoryRepository interface {
	// Create reports false when an outcome for the same target already exists.
	Create(ctx context.Context, o *models.Outcome) (bool, error)
	ListByPostID(ctx context.Context, postID int64) ([]models.Outcome, error)
}

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

func (r *postingHistoryRepository) Create(ctx context.Context, o *models.Outcome) (bool, error) {
	query := `
		INSERT INTO posting_history (post_id, account_id, platform, status, external_ref, error_kind, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (post_id, account_id) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, o.PostID, o.AccountID, o.Platform, o.Status,
		o.ExternalRef, o.ErrorKind, o.ErrorDetail).Scan(&o.ID, &o.RecordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		logrus.WithFields(logrus.Fields{"post_id": o.PostID, "account_id": o.AccountID}).Error(err)
		return false, fmt.Errorf("record outcome: %w", err)
	}

	return true, nil
}

func (r *postingHistoryRepository) ListByPostID(ctx context.Context, postID int64) ([]models.Outcome, error) {
	query := `
		SELECT id, post_id, account_id, platform, status, external_ref, error_kind, error_message, created_at
		FROM posting_history
		WHERE post_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		logrus.Error(err)
		return nil, fmt.Errorf("list outcomes of post %d: %w", postID, err)
	}
	defer rows.Close()

	var outcomes []models.Outcome
	for rows.Next() {
		var o models.Outcome
		err := rows.Scan(&o.ID, &o.PostID, &o.AccountID, &o.Platform, &o.Status,
			&o.ExternalRef, &o.ErrorKind, &o.ErrorDetail, &o.RecordedAt)
		if err != nil {
			logrus.Error(err)
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
