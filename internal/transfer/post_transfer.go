package transfer

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	IncompatibleInclude = "include"
	IncompatibleRemove  = "remove"
)

const ScheduledTimeLayout = "2006-01-02T15:04"

type PostCreation struct {
	Caption          string            `json:"caption"`
	Title            string            `json:"title"`
	ScheduledTime    string            `json:"scheduling_time"`
	Immediate        bool              `json:"immediate"`
	SelectedAccounts []int64           `json:"selected_accounts"`
	CaptionOverrides map[string]string `json:"caption_overrides"`
	IncompatibleMode string            `json:"incompatible_mode"`
}

func (p PostCreation) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.SelectedAccounts, validation.Required.Error("no social accounts selected")),
		validation.Field(&p.ScheduledTime,
			validation.When(!p.Immediate, validation.Required, validation.Date(ScheduledTimeLayout))),
		validation.Field(&p.IncompatibleMode, validation.In(IncompatibleInclude, IncompatibleRemove)),
		validation.Field(&p.Title, validation.Length(0, 100)),
	)
}

// PostCreated is returned to the caller after a post has been accepted.
type PostCreated struct {
	PostID        int64               `json:"post_id"`
	ScheduledTime time.Time           `json:"scheduled_time"`
	Compatibility CompatibilityReport `json:"compatibility"`
}

type IncompatibleItem struct {
	FileType string `json:"fileType"`
	Reason   string `json:"reason"`
}

type CompatibilityReport struct {
	IsCompatible      bool               `json:"isCompatible"`
	AffectedPlatforms []string           `json:"affectedPlatforms"`
	IncompatibleItems []IncompatibleItem `json:"incompatibleItems"`
}

// ExternalDelete reports what happened to one published copy when its post was removed.
type ExternalDelete struct {
	AccountID int64  `json:"account_id"`
	Platform  string `json:"platform"`
	Ref       string `json:"external_ref"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}
