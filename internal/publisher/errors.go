package publisher

import (
	"context"
	"errors"

	"github.com/maheshrc27/postflow/internal/platform"
)

// Outcome error kinds raised by the orchestrator itself rather than an adapter.
const (
	KindTimeout       = "timeout"
	KindAccountGone   = "account_missing"
	KindInternalError = "internal"
)

var ErrNotPublishable = errors.New("post is not queued for publishing")

// errorKind reduces err to the label stored on a failed outcome.
func errorKind(err error) string {
	if kind := platform.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternalError
}

// errorDetail is the user-facing message. Foreign errors are not echoed.
func errorDetail(err error) string {
	if reason := platform.ReasonOf(err); reason != "" {
		return reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "publishing did not finish in time"
	}
	return "internal error while publishing"
}
