package models

import "time"

type OutcomeStatus string

const (
	OutcomeSuccess             OutcomeStatus = "success"
	OutcomeSkippedIncompatible OutcomeStatus = "skipped_incompatible"
	OutcomeFailed              OutcomeStatus = "failed"
)

// Outcome is one row of a post's posting history: the result for a single target account.
type Outcome struct {
	ID          int64         `db:"id" json:"-"`
	PostID      int64         `db:"post_id" json:"post_id"`
	AccountID   int64         `db:"account_id" json:"account_id"`
	Platform    string        `db:"platform" json:"platform"`
	Status      OutcomeStatus `db:"status" json:"status"`
	ExternalRef string        `db:"external_ref" json:"external_ref,omitempty"`
	ErrorKind   string        `db:"error_kind" json:"error_kind,omitempty"`
	ErrorDetail string        `db:"error_message" json:"error_detail,omitempty"`
	RecordedAt  time.Time     `db:"created_at" json:"recorded_at"`
}
