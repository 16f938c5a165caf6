package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/sirupsen/logrus"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	UpdateStatus(ctx context.Context, id int64, status models.PostStatus, reason string) error
	// TransitionStatus moves the post to `to` only while its status is one of
	// from. It reports whether the row changed.
	TransitionStatus(ctx context.Context, id int64, from []models.PostStatus, to models.PostStatus, reason string) (bool, error)
	RequestCancel(ctx context.Context, id int64) error
	IsCancelRequested(ctx context.Context, id int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, content_kind, title, caption, caption_overrides, immediate, scheduled_time, status, status_reason, cancel_requested, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var overrides []byte
	err := row.Scan(&post.ID, &post.UserID, &post.Content.Kind, &post.Content.Title, &post.Content.Caption,
		&overrides, &post.Immediate, &post.ScheduledTime, &post.Status, &post.StatusReason,
		&post.CancelRequested, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &post.Content.CaptionOverrides); err != nil {
			return nil, fmt.Errorf("decode caption overrides: %w", err)
		}
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, content_kind, title, caption, caption_overrides, immediate, scheduled_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	overrides := post.Content.CaptionOverrides
	if overrides == nil {
		overrides = map[string]string{}
	}
	overridesJSON, err := json.Marshal(overrides)
	if err != nil {
		return 0, fmt.Errorf("encode caption overrides: %w", err)
	}

	status := post.Status
	if status == "" {
		status = models.PostStatusDraft
	}

	args := []any{post.UserID, post.Content.Kind, post.Content.Title, post.Content.Caption,
		overridesJSON, post.Immediate, post.ScheduledTime, status}

	var id int64
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		logrus.Error(err)
		return 0, fmt.Errorf("create post: %w", err)
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		logrus.Error(err)
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}

	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY scheduled_time DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		logrus.Error(err)
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			logrus.Error(err)
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		logrus.Error(err)
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, id int64, status models.PostStatus, reason string) error {
	query := `
		UPDATE posts
		SET status = $1,
			status_reason = $2,
			updated_at = $3
		WHERE id = $4
	`
	res, err := r.db.ExecContext(ctx, query, status, reason, time.Now(), id)
	if err != nil {
		logrus.Error(err)
		return fmt.Errorf("update post %d status: %w", id, err)
	}
	return expectAffected(res)
}

func (r *postRepository) TransitionStatus(ctx context.Context, id int64, from []models.PostStatus, to models.PostStatus, reason string) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1,
			status_reason = $2,
			updated_at = $3
		WHERE id = $4 AND status = ANY($5)
	`
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	res, err := r.db.ExecContext(ctx, query, to, reason, time.Now(), id, pq.Array(allowed))
	if err != nil {
		logrus.Error(err)
		return false, fmt.Errorf("transition post %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *postRepository) RequestCancel(ctx context.Context, id int64) error {
	query := `UPDATE posts SET cancel_requested = TRUE, updated_at = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		logrus.Error(err)
		return fmt.Errorf("request cancel of post %d: %w", id, err)
	}
	return expectAffected(res)
}

func (r *postRepository) IsCancelRequested(ctx context.Context, id int64) (bool, error) {
	query := `SELECT cancel_requested FROM posts WHERE id = $1`

	var requested bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&requested); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		logrus.Error(err)
		return false, err
	}
	return requested, nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)

	if err != nil {
		logrus.Error(err)
		return fmt.Errorf("remove post %d: %w", id, err)
	}
	return nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
