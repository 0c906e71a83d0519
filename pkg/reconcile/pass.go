package reconcile

import (
	"context"
	"fmt"
)

// Pass describes one reconciliation of a single binding collection against a
// remote resource. Read is called once per Run, so state is never reused
// across passes. Compute must be pure.
type Pass[S any, B Binding] struct {
	// Name identifies the collection in errors, e.g. "acl" or "iam_policy".
	Name    string
	Read    func(ctx context.Context) (S, error)
	Compute func(current S) (S, Diff[B])
	// Write persists next. It receives the state Read returned so that it can
	// issue incremental calls. It is only called when not in dry-run and the
	// diff reports a change.
	Write func(ctx context.Context, current, next S) error
}

// Run executes the pass. The (next, diff) returned are the same whether or
// not dryRun suppresses the write.
func Run[S any, B Binding](ctx context.Context, p Pass[S, B], dryRun bool) (S, Diff[B], error) {
	var zero S
	current, err := p.Read(ctx)
	if err != nil {
		return zero, NoChange[B](), fmt.Errorf("failed to read %s: %w", p.Name, err)
	}

	next, diff := p.Compute(current)
	if dryRun || !diff.Changed || p.Write == nil {
		return next, diff, nil
	}

	if err := p.Write(ctx, current, next); err != nil {
		return next, diff, fmt.Errorf("failed to write %s: %w", p.Name, err)
	}
	return next, diff, nil
}
