package planops

import (
	"context"
	"errors"
)

// BulkResult is the outcome of one item of a ForEach run.
type BulkResult struct {
	PlanID string
	Err    error
}

// ForEach runs fn once per id, in order, and collects the per-plan errors.
// It stops early only when ctx is cancelled; the remaining ids are reported
// with the context error.
func ForEach(ctx context.Context, ids []string, fn func(ctx context.Context, id string) error) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, BulkResult{PlanID: id, Err: err})
			continue
		}
		results = append(results, BulkResult{PlanID: id, Err: fn(ctx, id)})
	}
	return results
}

// Errors joins the failures of a ForEach run, or returns nil.
func Errors(results []BulkResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
