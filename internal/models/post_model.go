package models

import "time"

type ContentKind string

const (
	ContentKindText     ContentKind = "text"
	ContentKindImageSet ContentKind = "image_set"
	ContentKindVideo    ContentKind = "video"
)

type PostStatus string

const (
	PostStatusDraft                  PostStatus = "draft"
	PostStatusQueued                 PostStatus = "queued"
	PostStatusValidating             PostStatus = "validating"
	PostStatusDispatching            PostStatus = "dispatching"
	PostStatusReducing               PostStatus = "reducing"
	PostStatusCompleted              PostStatus = "completed"
	PostStatusPartiallyFailed        PostStatus = "partially_failed"
	PostStatusFailed                 PostStatus = "failed"
	PostStatusCancelled              PostStatus = "cancelled"
	PostStatusCancelledAfterDispatch PostStatus = "cancelled_after_dispatch"
)

// IsTerminal reports whether no worker will touch the post again.
func (s PostStatus) IsTerminal() bool {
	switch s {
	case PostStatusCompleted, PostStatusPartiallyFailed, PostStatusFailed,
		PostStatusCancelled, PostStatusCancelledAfterDispatch:
		return true
	}
	return false
}

// IsPublishing covers the states in which content is frozen and a lease is held.
func (s PostStatus) IsPublishing() bool {
	return s == PostStatusValidating || s == PostStatusDispatching || s == PostStatusReducing
}

type Post struct {
	ID               int64      `db:"id" json:"id"`
	UserID           int64      `db:"user_id" json:"user_id"`
	Content          Content    `json:"content"`
	TargetAccountIDs []int64    `json:"target_account_ids"`
	Immediate        bool       `db:"immediate" json:"immediate"`
	ScheduledTime    time.Time  `db:"scheduled_time" json:"scheduled_time"`
	Status           PostStatus `db:"status" json:"status"`
	StatusReason     string     `db:"status_reason" json:"status_reason,omitempty"`
	CancelRequested  bool       `db:"cancel_requested" json:"cancel_requested"`
	Outcomes         []Outcome  `json:"outcomes,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

type Content struct {
	Kind             ContentKind       `db:"content_kind" json:"kind"`
	Title            string            `db:"title" json:"title"`
	Caption          string            `db:"caption" json:"caption"`
	Media            []MediaItem       `json:"media,omitempty"`
	CaptionOverrides map[string]string `db:"caption_overrides" json:"caption_overrides,omitempty"`
}

// CaptionFor returns the platform override when one is set.
func (c Content) CaptionFor(platform string) string {
	if override, ok := c.CaptionOverrides[platform]; ok && override != "" {
		return override
	}
	return c.Caption
}

// MediaItem describes one uploaded asset. Duration and dimensions are zero when unknown.
type MediaItem struct {
	AssetID     int64   `json:"asset_id"`
	URL         string  `json:"url"`
	MIME        string  `json:"mime"`
	Format      string  `json:"format"`
	SizeBytes   int64   `json:"size_bytes"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
}

func (m MediaItem) IsVideo() bool {
	return len(m.MIME) > 6 && m.MIME[:6] == "video/"
}

// AspectRatio is width/height, or zero when the dimensions are unknown.
func (m MediaItem) AspectRatio() float64 {
	if m.Width <= 0 || m.Height <= 0 {
		return 0
	}
	return float64(m.Width) / float64(m.Height)
}

type MediaAsset struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	FileName     string    `db:"file_name"`
	FileType     string    `db:"file_type"`
	FileFormat   string    `db:"file_format"`
	FileSize     int64     `db:"file_size"`
	FileURL      string    `db:"file_url"`
	DurationSec  float64   `db:"duration_sec"`
	Width        int       `db:"width"`
	Height       int       `db:"height"`
	ThumbnailURL string    `db:"thumbnail_url"`
	CreatedAt    time.Time `db:"created_at"`
}

func (a MediaAsset) MediaItem() MediaItem {
	return MediaItem{
		AssetID:     a.ID,
		URL:         a.FileURL,
		MIME:        a.FileType,
		Format:      a.FileFormat,
		SizeBytes:   a.FileSize,
		DurationSec: a.DurationSec,
		Width:       a.Width,
		Height:      a.Height,
	}
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}
