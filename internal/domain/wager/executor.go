// Package wager signals decisions to the acting surface, at most once per window.
package wager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/saltyscope/internal/domain/dedupe"
	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/pkg/logger"
	"github.com/okian/saltyscope/pkg/metrics"
)

// ErrUnavailable is returned by an ActingSurface that cannot place wagers right now.
var ErrUnavailable = errors.New("acting surface unavailable")

// ActingSurface places a wager across the system boundary.
type ActingSurface interface {
	Place(ctx context.Context, target model.Slot, amount int64) error
}

// Outcome reports what happened to a decision.
type Outcome struct {
	Placed    bool
	Duplicate bool
	Reason    model.Reason
	Rationale string
	Err       error
}

// Executor owns the at-most-once guard.
type Executor struct {
	surface ActingSurface
	ledger  dedupe.Deduper
	timeout time.Duration
	log     logger.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout bounds each placement call.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLedger replaces the window ledger.
func WithLedger(d dedupe.Deduper) Option {
	return func(e *Executor) {
		if d != nil {
			e.ledger = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// NewExecutor creates an Executor for surface.
func NewExecutor(surface ActingSurface, opts ...Option) *Executor {
	e := &Executor{
		surface: surface,
		ledger:  dedupe.NewWindowLedger(),
		timeout: 3 * time.Second,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute places d for the window identified by windowKey. The window stays
// claimed whatever the acting surface answers; a failed placement is never retried.
func (e *Executor) Execute(ctx context.Context, windowKey string, d model.Decision, targetName string) Outcome {
	if !d.IsWager() {
		return Outcome{Reason: d.Reason, Rationale: d.Rationale}
	}
	if !e.ledger.Claim(ctx, windowKey) {
		e.log.Warn(ctx, "wager already placed for window", logger.String("window", windowKey))
		return Outcome{Duplicate: true, Reason: model.ReasonWindowClosed, Rationale: "Betting Closed. Cannot bet."}
	}
	if e.surface == nil {
		return e.failed(ctx, windowKey, ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.surface.Place(ctx, d.Target, d.Amount); err != nil {
		return e.failed(ctx, windowKey, err)
	}

	metrics.RecordWagerPlaced(d.Target.String(), d.Amount)
	e.log.Info(ctx, "wager placed",
		logger.String("window", windowKey),
		logger.String("target", d.Target.String()),
		logger.String("name", targetName),
		logger.Int64("amount", d.Amount))
	return Outcome{
		Placed:    true,
		Rationale: fmt.Sprintf("Bet placed: %d on %s!", d.Amount, targetName),
	}
}

func (e *Executor) failed(ctx context.Context, windowKey string, err error) Outcome {
	metrics.RecordExecutionError()
	e.log.Error(ctx, "wager placement failed", logger.String("window", windowKey), logger.Error(err))
	return Outcome{
		Reason:    model.ReasonExecutionUnavailable,
		Rationale: fmt.Sprintf("Error placing bet: %v.", err),
		Err:       err,
	}
}

// DryRun acknowledges every placement without acting.
type DryRun struct {
	Log logger.Logger
}

// Place logs the wager.
func (d DryRun) Place(ctx context.Context, target model.Slot, amount int64) error {
	if d.Log != nil {
		d.Log.Info(ctx, "dry-run placement", logger.String("target", target.String()), logger.Int64("amount", amount))
	}
	return nil
}
