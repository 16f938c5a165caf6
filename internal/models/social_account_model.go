package models

import (
	"fmt"
	"time"
)

const (
	PlatformInstagram = "instagram"
	PlatformTiktok    = "tiktok"
	PlatformYoutube   = "youtube"
	PlatformLinkedin  = "linkedin"
)

const (
	AccountStatusActive         = "active"
	AccountStatusReauthRequired = "reauth_required"
)

type SocialAccount struct {
	ID              int64      `db:"id" json:"id"`
	UserID          int64      `db:"user_id" json:"user_id"`
	Platform        string     `db:"platform" json:"platform"`
	AccountID       string     `db:"account_id" json:"account_id"`
	AccountName     string     `db:"account_name" json:"account_name"`
	AccountUsername string     `db:"account_username" json:"account_username"`
	ProfilePicture  string     `db:"profile_picture_url" json:"profile_picture"`
	AccountStatus   string     `db:"account_status" json:"account_status"`
	Credential      Credential `json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Credential is owned by exactly one account and refreshed in place.
type Credential struct {
	AccessToken     string    `db:"access_token"`
	RefreshToken    string    `db:"refresh_token"`
	ExpiresAt       time.Time `db:"token_expires_at"`
	Scopes          []string  `db:"scopes"`
	LastRefreshedAt time.Time `db:"last_refreshed_at"`
}

// Expired reports whether the access token is unusable at now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ExpiresWithin reports whether the token expires before now+d.
func (c Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now.Add(d))
}

// NewerThan orders credentials by refresh time; last refresh wins.
func (c Credential) NewerThan(other Credential) bool {
	return c.LastRefreshedAt.After(other.LastRefreshedAt)
}

// String keeps token material out of logs and error messages.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{expires_at=%s, scopes=%v, last_refreshed_at=%s}",
		c.ExpiresAt.Format(time.RFC3339), c.Scopes, c.LastRefreshedAt.Format(time.RFC3339))
}

func (c Credential) GoString() string {
	return c.String()
}

type SelectedAccount struct {
	PostID    int64     `db:"post_id" json:"post_id"`
	AccountID int64     `db:"account_id" json:"account_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
