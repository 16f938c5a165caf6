package repository

import (
	"context"
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/sirupsen/logrus"
)

// PublishStore assembles a post with its targets, media and recorded outcomes
// and writes publishing progress back.
type PublishStore struct {
	posts    PostRepository
	selected SelectedAccountRepository
	assets   MediaAssetRepository
	history  PostingHistoryRepository
}

func NewPublishStore(posts PostRepository, selected SelectedAccountRepository, assets MediaAssetRepository, history PostingHistoryRepository) *PublishStore {
	return &PublishStore{posts: posts, selected: selected, assets: assets, history: history}
}

func (s *PublishStore) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	targets, err := s.selected.ListByPostID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load targets of post %d: %w", id, err)
	}
	post.TargetAccountIDs = make([]int64, 0, len(targets))
	for _, t := range targets {
		post.TargetAccountIDs = append(post.TargetAccountIDs, t.AccountID)
	}

	assets, err := s.assets.ListByPostID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load media of post %d: %w", id, err)
	}
	for _, a := range assets {
		post.Content.Media = append(post.Content.Media, a.MediaItem())
	}

	if post.Outcomes, err = s.history.ListByPostID(ctx, id); err != nil {
		return nil, fmt.Errorf("load outcomes of post %d: %w", id, err)
	}
	return post, nil
}

func (s *PublishStore) UpdateStatus(ctx context.Context, id int64, status models.PostStatus, reason string) error {
	return s.posts.UpdateStatus(ctx, id, status, reason)
}

func (s *PublishStore) RecordOutcome(ctx context.Context, outcome *models.Outcome) error {
	created, err := s.history.Create(ctx, outcome)
	if err != nil {
		return err
	}
	if !created {
		logrus.WithFields(logrus.Fields{
			"post_id":    outcome.PostID,
			"account_id": outcome.AccountID,
		}).Debug("outcome already recorded")
	}
	return nil
}

func (s *PublishStore) CancelRequested(ctx context.Context, id int64) (bool, error) {
	return s.posts.IsCancelRequested(ctx, id)
}
