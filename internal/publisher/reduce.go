package publisher

import (
	"fmt"

	"github.com/maheshrc27/postflow/internal/models"
)

// Tally counts outcomes by status.
type Tally struct {
	Succeeded int
	Failed    int
	Skipped   int
}

func Count(outcomes []models.Outcome) Tally {
	var t Tally
	for _, o := range outcomes {
		switch o.Status {
		case models.OutcomeSuccess:
			t.Succeeded++
		case models.OutcomeFailed:
			t.Failed++
		case models.OutcomeSkippedIncompatible:
			t.Skipped++
		}
	}
	return t
}

// Reduce derives the terminal status from the outcome multiset alone.
// Skipped targets were excluded by the user's "continue anyway" and do not
// count against the post: completed needs at least one success and no
// failures, failed means nothing was published.
func Reduce(outcomes []models.Outcome) (models.PostStatus, string) {
	t := Count(outcomes)
	reason := t.String()
	switch {
	case t.Succeeded == 0:
		if len(outcomes) == 0 {
			return models.PostStatusFailed, "no target accounts"
		}
		return models.PostStatusFailed, reason
	case t.Failed > 0:
		return models.PostStatusPartiallyFailed, reason
	default:
		return models.PostStatusCompleted, reason
	}
}

func (t Tally) String() string {
	return fmt.Sprintf("%d succeeded, %d failed, %d skipped", t.Succeeded, t.Failed, t.Skipped)
}
