// Package repository persists policy, the last status snapshot and decision history.
package repository

import (
	"context"

	"github.com/okian/saltyscope/internal/domain/model"
)

// Store provides durable state for the engine.
type Store interface {
	// LoadPolicy returns the saved policy or ErrNotFound.
	LoadPolicy(ctx context.Context) (model.Policy, error)
	SavePolicy(ctx context.Context, p model.Policy) error

	// LastSnapshot returns the most recent snapshot or ErrNotFound.
	LastSnapshot(ctx context.Context) (model.Snapshot, error)
	SaveSnapshot(ctx context.Context, s model.Snapshot) error

	RecordDecision(ctx context.Context, r model.DecisionRecord) error
	// History returns up to limit records, newest first.
	History(ctx context.Context, limit int) ([]model.DecisionRecord, error)

	Close() error
}
