package models

import "time"

type WorkItemKind string

const (
	WorkItemPublish WorkItemKind = "publish"
	WorkItemRefresh WorkItemKind = "refresh"
)

// WorkItem is the enqueue contract: the target is a post id for publish
// items and an account id for refresh items.
type WorkItem struct {
	ID          string       `json:"work_item_id"`
	Kind        WorkItemKind `json:"kind"`
	TargetID    int64        `json:"target_id"`
	NotBefore   time.Time    `json:"not_before"`
	Attempt     int          `json:"attempt"`
	MaxAttempts int          `json:"max_attempts"`
}

type DeadLetter struct {
	ID         int64        `db:"id" json:"id"`
	WorkItemID string       `db:"work_item_id" json:"work_item_id"`
	Kind       WorkItemKind `db:"kind" json:"kind"`
	TargetID   int64        `db:"target_id" json:"target_id"`
	Attempts   int          `db:"attempts" json:"attempts"`
	LastError  string       `db:"last_error" json:"last_error"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}
