package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/maheshrc27/postflow/internal/compat"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/publisher"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"
)

var (
	ErrPostNotFound         = errors.New("post doesn't exist")
	ErrAccountNotFound      = errors.New("social account doesn't exist")
	ErrNoCompatibleTarget   = errors.New("no selected account can publish this content")
	ErrPostNotCancellable   = errors.New("post has already finished")
	ErrPostPublishing       = errors.New("post is being published")
	ErrExternalDeleteFailed = errors.New("some published copies could not be deleted")
)

type PostQueue interface {
	EnqueuePost(ctx context.Context, postID int64, notBefore time.Time) (*models.WorkItem, error)
	Cancel(kind models.WorkItemKind, id string) error
}

type PostLoader interface {
	GetPost(ctx context.Context, id int64) (*models.Post, error)
}

type Unpublisher interface {
	Unpublish(ctx context.Context, post *models.Post) []publisher.DeleteResult
}

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (*transfer.PostCreated, error)
	// CheckCompatibility previews which selected accounts can take the content
	// without storing anything.
	CheckCompatibility(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (transfer.CompatibilityReport, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	Cancel(ctx context.Context, userID, postID int64) (models.PostStatus, error)
	Remove(ctx context.Context, userID, postID int64) ([]publisher.DeleteResult, error)
}

type postService struct {
	db     *sql.DB
	pr     repository.PostRepository
	sa     repository.SelectedAccountRepository
	ac     repository.SocialAccountRepository
	ma     repository.MediaAssetRepository
	pm     repository.PostMediaRepository
	loader PostLoader
	store  ObjectStore
	queue  PostQueue
	unpub  Unpublisher
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	sa repository.SelectedAccountRepository,
	ma repository.MediaAssetRepository,
	ac repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	loader PostLoader,
	store ObjectStore,
	queue PostQueue,
	unpub Unpublisher) PostService {
	return &postService{
		db:     db,
		pr:     pr,
		sa:     sa,
		ac:     ac,
		ma:     ma,
		pm:     pm,
		loader: loader,
		store:  store,
		queue:  queue,
		unpub:  unpub,
	}
}

// draft is a post assembled from a request but not yet stored.
type draft struct {
	content   models.Content
	uploads   []upload
	accounts  []*models.SocialAccount
	partition compat.Partition
}

func (s *postService) prepare(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (*draft, error) {
	if pc == nil {
		return nil, errors.New("post creation data is nil")
	}

	accounts, err := s.ownedAccounts(ctx, userID, pc.SelectedAccounts)
	if err != nil {
		return nil, err
	}

	uploads, err := readUploads(files)
	if err != nil {
		return nil, err
	}
	items := make([]models.MediaItem, len(uploads))
	for i, u := range uploads {
		items[i] = u.item
	}

	content := models.Content{
		Kind:             contentKind(items),
		Title:            pc.Title,
		Caption:          pc.Caption,
		Media:            items,
		CaptionOverrides: pc.CaptionOverrides,
	}

	return &draft{
		content:   content,
		uploads:   uploads,
		accounts:  accounts,
		partition: compat.Check(content, accounts),
	}, nil
}

func (s *postService) ownedAccounts(ctx context.Context, userID int64, ids []int64) ([]*models.SocialAccount, error) {
	seen := make(map[int64]bool, len(ids))
	accounts := make([]*models.SocialAccount, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		acc, err := s.ac.GetAccount(ctx, id)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && acc.UserID != userID) {
			return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("error checking social account %d: %w", id, err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

func (s *postService) CheckCompatibility(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (transfer.CompatibilityReport, error) {
	d, err := s.prepare(ctx, userID, pc, files)
	if err != nil {
		return transfer.CompatibilityReport{}, err
	}
	return d.partition.Report(), nil
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (*transfer.PostCreated, error) {
	d, err := s.prepare(ctx, userID, pc, files)
	if err != nil {
		return nil, err
	}

	targets := d.accounts
	if pc.IncompatibleMode == transfer.IncompatibleRemove {
		targets = d.partition.Eligible
	}
	if len(targets) == 0 || len(d.partition.Eligible) == 0 {
		return nil, ErrNoCompatibleTarget
	}

	scheduledTime := time.Now().UTC()
	if !pc.Immediate {
		scheduledTime, err = time.Parse(transfer.ScheduledTimeLayout, pc.ScheduledTime)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduled time format: %w", err)
		}
	}

	assetIDs, err := s.storeMedia(ctx, userID, d)
	if err != nil {
		return nil, err
	}

	post := models.Post{
		UserID:        userID,
		Content:       d.content,
		Immediate:     pc.Immediate,
		ScheduledTime: scheduledTime,
		Status:        models.PostStatusQueued,
	}
	postID, err := s.persist(ctx, &post, targets, assetIDs)
	if err != nil {
		return nil, err
	}

	if _, err := s.queue.EnqueuePost(ctx, postID, scheduledTime); err != nil && !errors.Is(err, queue.ErrAlreadyQueued) {
		logrus.WithField("post_id", postID).Error(err)
		if uerr := s.pr.UpdateStatus(ctx, postID, models.PostStatusDraft, "could not be queued"); uerr != nil {
			logrus.WithField("post_id", postID).Error(uerr)
		}
		return nil, fmt.Errorf("error scheduling post: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"post_id": postID,
		"targets": len(targets),
		"kind":    d.content.Kind,
	}).Info("post queued")

	return &transfer.PostCreated{
		PostID:        postID,
		ScheduledTime: scheduledTime,
		Compatibility: d.partition.Report(),
	}, nil
}

// storeMedia uploads every file and records it as an asset.
func (s *postService) storeMedia(ctx context.Context, userID int64, d *draft) ([]int64, error) {
	ids := make([]int64, 0, len(d.uploads))
	for i, u := range d.uploads {
		key, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		key = key + "." + u.item.Format

		url, err := s.store.Upload(ctx, key, u.data, u.item.MIME)
		if err != nil {
			return nil, fmt.Errorf("error uploading file: %w", err)
		}

		asset := models.MediaAsset{
			UserID:     userID,
			FileName:   key,
			FileType:   u.item.MIME,
			FileFormat: u.item.Format,
			FileSize:   u.item.SizeBytes,
			FileURL:    url,
			Width:      u.item.Width,
			Height:     u.item.Height,
		}
		id, err := s.ma.Create(ctx, nil, &asset)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		d.content.Media[i].AssetID = id
		d.content.Media[i].URL = url
	}
	return ids, nil
}

func (s *postService) persist(ctx context.Context, post *models.Post, targets []*models.SocialAccount, assetIDs []int64) (postID int64, err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	postID, err = s.pr.Create(ctx, tx, post)
	if err != nil {
		return 0, fmt.Errorf("error creating post: %w", err)
	}

	for _, acc := range targets {
		if err = s.sa.Create(ctx, tx, &models.SelectedAccount{PostID: postID, AccountID: acc.ID}); err != nil {
			return 0, fmt.Errorf("error saving selected account %d: %w", acc.ID, err)
		}
	}

	for i, assetID := range assetIDs {
		if err = s.pm.Create(ctx, tx, &models.PostMedia{PostID: postID, AssetID: assetID, DisplayOrder: i}); err != nil {
			return 0, fmt.Errorf("error saving media file: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return postID, nil
}

func (s *postService) owned(ctx context.Context, userID, postID int64) error {
	if userID == 0 || postID == 0 {
		return ErrPostNotFound
	}
	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		return ErrPostNotFound
	}
	return nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	if err := s.owned(ctx, userID, postID); err != nil {
		return nil, err
	}

	post, err := s.loader.GetPost(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting post info: %w", err)
	}
	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return posts, nil
}

// Cancel stops a post that has not been dispatched. A post already
// publishing finishes its dispatch and ends as cancelled_after_dispatch.
func (s *postService) Cancel(ctx context.Context, userID, postID int64) (models.PostStatus, error) {
	if err := s.owned(ctx, userID, postID); err != nil {
		return "", err
	}

	if err := s.pr.RequestCancel(ctx, postID); err != nil {
		return "", err
	}

	moved, err := s.pr.TransitionStatus(ctx, postID,
		[]models.PostStatus{models.PostStatusDraft, models.PostStatusQueued},
		models.PostStatusCancelled, "cancelled by user")
	if err != nil {
		return "", err
	}
	if moved {
		if err := s.queue.Cancel(models.WorkItemPublish, queue.PublishItemID(postID)); err != nil {
			logrus.WithField("post_id", postID).Warn(err)
		}
		return models.PostStatusCancelled, nil
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return "", err
	}
	if post.Status.IsTerminal() {
		return post.Status, ErrPostNotCancellable
	}
	return post.Status, nil
}

// Remove deletes the post. Copies already published are deleted from their
// platforms first; copies on platforms without a delete endpoint, or already
// gone, do not block removal.
func (s *postService) Remove(ctx context.Context, userID, postID int64) ([]publisher.DeleteResult, error) {
	if err := s.owned(ctx, userID, postID); err != nil {
		return nil, err
	}

	post, err := s.loader.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status.IsPublishing() {
		return nil, ErrPostPublishing
	}
	if !post.Status.IsTerminal() {
		if err := s.queue.Cancel(models.WorkItemPublish, queue.PublishItemID(postID)); err != nil {
			return nil, err
		}
	}

	results := s.unpub.Unpublish(ctx, post)
	for _, r := range results {
		if r.OK() {
			continue
		}
		kind := platform.KindOf(r.Err)
		if kind != platform.KindNotFound && kind != platform.KindUnsupported {
			return results, ErrExternalDeleteFailed
		}
	}

	if err := s.pr.Remove(ctx, postID); err != nil {
		return results, fmt.Errorf("error removing post: %w", err)
	}
	for _, m := range post.Content.Media {
		if err := s.ma.Remove(ctx, m.AssetID); err != nil {
			logrus.WithField("asset_id", m.AssetID).Warn(err)
		}
	}
	return results, nil
}
