// Package strategy turns match context and user policy into a wager decision.
package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/pkg/logger"
	"github.com/okian/saltyscope/pkg/metrics"
)

const (
	// Logistic scale of the rating curve.
	eloScale = 400

	defaultDrawTimeout = 3 * time.Second
)

// Randomness draws one of the two slots uniformly.
type Randomness interface {
	Draw(ctx context.Context) (model.Slot, error)
}

// Input is everything a decision depends on.
type Input struct {
	Match model.MatchContext
	// WindowOpen is true only while wagers are accepted and the window is unconsumed.
	WindowOpen bool
	Policy     model.Policy
	Balance    int64
	// Fresh is set when the decision follows a new match or a window opening.
	Fresh bool
}

// Resolver evaluates the ordered rule chain.
type Resolver struct {
	random      Randomness
	drawTimeout time.Duration
	rules       []rule
	log         logger.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDrawTimeout bounds one coin-flip draw.
func WithDrawTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.drawTimeout = d
		}
	}
}

// NewResolver builds a Resolver that flips coins with random.
func NewResolver(random Randomness, opts ...Option) *Resolver {
	r := &Resolver{
		random:      random,
		drawTimeout: defaultDrawTimeout,
		rules:       defaultRules(),
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decide runs the rules in priority order. The first rule that ends the chain
// determines the result.
func (r *Resolver) Decide(ctx context.Context, in Input) model.Decision {
	p := &plan{in: in}
	for _, rl := range r.rules {
		if d, done := rl.apply(ctx, r, p); done {
			r.record(ctx, rl.name, d)
			return d
		}
	}
	// The chain always ends at clamp; reaching here means the rule list is broken.
	d := model.NoWager(model.ReasonIncompleteContext, "Fighter data incomplete. Cannot bet.")
	r.record(ctx, "fallthrough", d)
	return d
}

func (r *Resolver) record(ctx context.Context, ruleName string, d model.Decision) {
	metrics.RecordDecision(d.Reason.String())
	r.log.Debug(ctx, "decision",
		logger.String("rule", ruleName),
		logger.String("reason", d.Reason.String()),
		logger.String("target", d.Target.String()),
		logger.Int64("amount", d.Amount),
		logger.String("basis", d.Basis))
}

// Probability returns the logistic win expectancy of a rating over another.
func Probability(r1, r2 float64) float64 {
	return 1 / (1 + math.Pow(10, -(r1-r2)/eloScale))
}

// Confidence is the distance of the win expectancy from a coin toss, in [0,1].
func Confidence(r1, r2 float64) float64 {
	p1 := Probability(r1, r2)
	return math.Abs(p1 - (1 - p1))
}

// Clamp bounds an amount to [1, balance].
func Clamp(amount, balance int64) int64 {
	return max(1, min(amount, balance))
}

func wagerRationale(amount int64, name string) string {
	return fmt.Sprintf("Betting %d on %s!", amount, name)
}
