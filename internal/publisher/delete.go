package publisher

import (
	"context"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/sirupsen/logrus"
)

// DeleteResult reports one external copy removed (or not) by Unpublish.
type DeleteResult struct {
	AccountID int64
	Platform  string
	Ref       string
	Err       error
}

func (r DeleteResult) OK() bool {
	return r.Err == nil
}

// Unpublish deletes every successfully published copy of post. A failure on
// one reference never stops the others.
func (o *Orchestrator) Unpublish(ctx context.Context, post *models.Post) []DeleteResult {
	refs := make(map[int64][]platform.ExternalRef)
	var order []int64
	for _, out := range post.Outcomes {
		if out.Status != models.OutcomeSuccess || out.ExternalRef == "" {
			continue
		}
		if _, ok := refs[out.AccountID]; !ok {
			order = append(order, out.AccountID)
		}
		refs[out.AccountID] = append(refs[out.AccountID], platform.ExternalRef(out.ExternalRef))
	}

	var results []DeleteResult
	for _, accountID := range order {
		results = append(results, o.deleteForAccount(ctx, accountID, refs[accountID])...)
	}
	return results
}

func (o *Orchestrator) deleteForAccount(ctx context.Context, accountID int64, refs []platform.ExternalRef) []DeleteResult {
	failAll := func(platformName string, err error) []DeleteResult {
		out := make([]DeleteResult, len(refs))
		for i, ref := range refs {
			out[i] = DeleteResult{AccountID: accountID, Platform: platformName, Ref: string(ref), Err: err}
		}
		return out
	}

	acc, err := o.creds.Resolve(ctx, accountID)
	if err != nil {
		name := ""
		if acc != nil {
			name = acc.Platform
		}
		return failAll(name, err)
	}
	adapter, err := o.adapters.Get(acc.Platform)
	if err != nil {
		return failAll(acc.Platform, err)
	}

	batch := platform.BatchDelete(ctx, adapter, acc, refs)
	out := make([]DeleteResult, 0, len(batch))
	for _, r := range batch {
		if r.Err != nil {
			logrus.WithFields(logrus.Fields{
				"account_id": accountID,
				"platform":   acc.Platform,
				"ref":        r.Ref,
			}).WithError(r.Err).Warn("failed to delete published copy")
		}
		out = append(out, DeleteResult{AccountID: accountID, Platform: acc.Platform, Ref: string(r.Ref), Err: r.Err})
	}
	return out
}
