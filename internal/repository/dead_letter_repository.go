package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/sirupsen/logrus"
)

type DeadLetterRepository interface {
	Create(ctx context.Context, dl *models.DeadLetter) (int64, error)
	List(ctx context.Context, limit int) ([]*models.DeadLetter, error)
}

type deadLetterRepository struct {
	db *sql.DB
}

func NewDeadLetterRepository(db *sql.DB) DeadLetterRepository {
	return &deadLetterRepository{db: db}
}

func (r *deadLetterRepository) Create(ctx context.Context, dl *models.DeadLetter) (int64, error) {
	query := `
		INSERT INTO dead_letters (work_item_id, kind, target_id, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, dl.WorkItemID, dl.Kind, dl.TargetID, dl.Attempts, dl.LastError).Scan(&id)
	if err != nil {
		logrus.WithField("work_item_id", dl.WorkItemID).Error(err)
		return 0, fmt.Errorf("create dead letter: %w", err)
	}
	return id, nil
}

// List returns the newest dead letters first.
func (r *deadLetterRepository) List(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, work_item_id, kind, target_id, attempts, last_error, created_at
		FROM dead_letters
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		logrus.Error(err)
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*models.DeadLetter
	for rows.Next() {
		var dl models.DeadLetter
		if err := rows.Scan(&dl.ID, &dl.WorkItemID, &dl.Kind, &dl.TargetID, &dl.Attempts, &dl.LastError, &dl.CreatedAt); err != nil {
			logrus.Error(err)
			return nil, err
		}
		letters = append(letters, &dl)
	}
	return letters, rows.Err()
}
