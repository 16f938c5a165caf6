package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/sirupsen/logrus"
)

type MediaAssetRepository interface {
	Create(ctx context.Context, tx *sql.Tx, ma *models.MediaAsset) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.MediaAsset, error)
	// ListByPostID returns the post's assets in display order.
	ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error)
	Remove(ctx context.Context, id int64) error
}

type mediaAssetRepository struct {
	db *sql.DB
}

func NewMediaAssetRepository(db *sql.DB) MediaAssetRepository {
	return &mediaAssetRepository{db: db}
}

const assetColumns = `ma.id, ma.user_id, ma.file_name, ma.file_type, ma.file_format, ma.file_size, ma.file_url,
	ma.duration_sec, ma.width, ma.height, ma.thumbnail_url, ma.created_at`

func scanAsset(row rowScanner) (*models.MediaAsset, error) {
	var ma models.MediaAsset
	err := row.Scan(&ma.ID, &ma.UserID, &ma.FileName, &ma.FileType, &ma.FileFormat, &ma.FileSize,
		&ma.FileURL, &ma.DurationSec, &ma.Width, &ma.Height, &ma.ThumbnailURL, &ma.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ma, nil
}

func (r *mediaAssetRepository) Create(ctx context.Context, tx *sql.Tx, ma *models.MediaAsset) (int64, error) {
	var id int64
	var err error

	query := `
		INSERT INTO media_assets (user_id, file_name, file_type, file_format, file_size, file_url, duration_sec, width, height, thumbnail_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	args := []any{ma.UserID, ma.FileName, ma.FileType, ma.FileFormat, ma.FileSize, ma.FileURL,
		ma.DurationSec, ma.Width, ma.Height, ma.ThumbnailURL}

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}

	if err != nil {
		logrus.Error(err)
		return 0, fmt.Errorf("create media asset: %w", err)
	}

	return id, nil
}

func (r *mediaAssetRepository) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM media_assets ma WHERE ma.id = $1`

	ma, err := scanAsset(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		logrus.Error(err)
		return nil, fmt.Errorf("get media asset %d: %w", id, err)
	}

	return ma, nil
}

func (r *mediaAssetRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM media_assets ma
		JOIN post_media pm ON pm.asset_id = ma.id
		WHERE pm.post_id = $1
		ORDER BY pm.display_order
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		logrus.Error(err)
		return nil, fmt.Errorf("list media of post %d: %w", postID, err)
	}
	defer rows.Close()

	var assets []*models.MediaAsset
	for rows.Next() {
		ma, err := scanAsset(rows)
		if err != nil {
			logrus.Error(err)
			return nil, err
		}
		assets = append(assets, ma)
	}
	return assets, rows.Err()
}

func (r *mediaAssetRepository) Remove(ctx context.Context, id int64) error {
	query := `
		DELETE FROM media_assets
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		logrus.Error(err)
		return fmt.Errorf("remove media asset %d: %w", id, err)
	}
	return nil
}
