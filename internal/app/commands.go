package service

import (
	"context"

	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/internal/domain/ratings"
)

// command is one unit of work for the engine actor.
type command interface {
	apply(ctx context.Context, e *Engine)
	kind() string
}

type observeCmd struct{ obs model.Observation }

func (c observeCmd) apply(ctx context.Context, e *Engine) { e.Observe(ctx, c.obs) }
func (observeCmd) kind() string { return "observe" }

type ratingsCmd struct{ res ratings.Result }

func (c ratingsCmd) apply(ctx context.Context, e *Engine) { e.ApplyRatings(ctx, c.res) }
func (ratingsCmd) kind() string { return "ratings_resolved" }

type policyCmd struct{ policy model.Policy }

func (c policyCmd) apply(ctx context.Context, e *Engine) { e.SetPolicy(ctx, c.policy) }
func (policyCmd) kind() string { return "policy" }

// rebetCmd answers with the snapshot after the re-decision. reply is buffered.
type rebetCmd struct{ reply chan model.Snapshot }

func (c rebetCmd) apply(ctx context.Context, e *Engine) {
	e.Rebet(ctx)
	c.reply <- e.Snapshot()
}
func (rebetCmd) kind() string { return "rebet" }
