// Package ratings fetches contestant ratings at most once per match.
package ratings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/pkg/logger"
	"github.com/okian/saltyscope/pkg/metrics"
)

// ErrNotFound is returned by a Source that has no data for the identity.
var ErrNotFound = errors.New("contestant not found")

// Source looks up one contestant's ratings.
type Source interface {
	Lookup(ctx context.Context, identity string) (model.Rating, error)
}

// Dispatch says what FetchIfNeeded did.
type Dispatch int

// Dispatch outcomes.
const (
	Skipped Dispatch = iota
	CoinFlip
	Dispatched
)

func (d Dispatch) String() string {
	switch d {
	case CoinFlip:
		return "coin_flip"
	case Dispatched:
		return "dispatched"
	default:
		return "skipped"
	}
}

// Lookup is one slot's resolution.
type Lookup struct {
	Identity string
	Rating   model.Rating
	Err      error
}

// Result is the joined resolution of both lookups of one fetch cycle.
type Result struct {
	Seq     uint64
	MatchID string
	Slots   [2]Lookup
}

// Completion summarizes how a Result was applied.
type Completion struct {
	Stale bool
	Ready bool
}

// Coordinator owns the in-flight guard. FetchIfNeeded and Complete must be
// called from the engine actor; lookups run on their own goroutines and hand
// their joined Result to the deliver callback.
type Coordinator struct {
	source  Source
	deliver func(Result)
	timeout time.Duration
	log     logger.Logger

	seq      uint64
	inFlight uint64
	current  atomic.Pointer[string]
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout bounds each fetch cycle.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCoordinator wires a Source with the callback that receives joined results.
func NewCoordinator(source Source, deliver func(Result), opts ...Option) *Coordinator {
	c := &Coordinator{
		source:  source,
		deliver: deliver,
		timeout: 5 * time.Second,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	empty := ""
	c.current.Store(&empty)
	return c
}

// InFlight reports whether a fetch cycle is outstanding.
func (c *Coordinator) InFlight() bool { return c.inFlight != 0 }

// Supersede records the live match. Lookups for any other match are dropped
// as soon as they resolve.
func (c *Coordinator) Supersede(matchID string) {
	c.current.Store(&matchID)
}

// Reset clears the guard and forgets the live match. Outstanding lookups
// still resolve but are discarded.
func (c *Coordinator) Reset() {
	c.inFlight = 0
	c.Supersede("")
}

func (c *Coordinator) isCurrent(matchID string) bool {
	return *c.current.Load() == matchID
}

// FetchIfNeeded starts a fetch cycle for m unless one is already running.
// Coin-flip matches never touch the Source, so the in-flight guard does not
// hold them back.
func (c *Coordinator) FetchIfNeeded(ctx context.Context, m model.MatchContext) Dispatch {
	if !m.HasIdentities() {
		return Skipped
	}
	if m.CoinFlip {
		return CoinFlip
	}
	if c.InFlight() {
		c.log.Debug(ctx, "fetch already in flight", logger.String("match_id", m.ID))
		return Skipped
	}
	if !c.isCurrent(m.ID) {
		c.log.Debug(ctx, "match superseded before dispatch", logger.String("match_id", m.ID))
		return Skipped
	}

	c.seq++
	c.inFlight = c.seq
	req := Result{
		Seq:     c.seq,
		MatchID: m.ID,
		Slots:   [2]Lookup{{Identity: m.A.Identity}, {Identity: m.B.Identity}},
	}
	c.log.Info(ctx, "fetching ratings",
		logger.String("match_id", m.ID),
		logger.String("slot1", m.A.Identity),
		logger.String("slot2", m.B.Identity))

	go c.run(ctx, req)
	return Dispatched
}

func (c *Coordinator) run(ctx context.Context, res Result) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for i := range res.Slots {
		wg.Add(1)
		go func(slot *Lookup) {
			defer wg.Done()
			start := time.Now()
			r, err := c.source.Lookup(ctx, slot.Identity)
			metrics.RecordRatingLookupLatency(float64(time.Since(start).Milliseconds()))
			if !c.isCurrent(res.MatchID) {
				c.log.Debug(ctx, "dropping lookup for superseded match",
					logger.String("match_id", res.MatchID),
					logger.String("identity", slot.Identity))
				slot.Err = errSuperseded
				return
			}
			slot.Rating, slot.Err = r, err
		}(&res.Slots[i])
	}
	wg.Wait()

	c.deliver(res)
}

var errSuperseded = errors.New("match superseded")

// Complete applies a joined Result to the live context. Stale results only
// release the guard; the returned context is then unchanged.
func (c *Coordinator) Complete(ctx context.Context, live model.MatchContext, res Result) (model.MatchContext, Completion) {
	if res.Seq == c.inFlight {
		c.inFlight = 0
	}

	stale := res.MatchID != live.ID ||
		!live.SameIdentities(res.Slots[0].Identity, res.Slots[1].Identity)
	for _, s := range res.Slots {
		if errors.Is(s.Err, errSuperseded) {
			stale = true
		}
	}
	if stale {
		metrics.RecordRatingFetch("stale")
		c.log.Info(ctx, "discarding ratings for superseded match", logger.String("match_id", res.MatchID))
		return live, Completion{Stale: true}
	}

	live.A = apply(ctx, c.log, live.A, res.Slots[0])
	live.B = apply(ctx, c.log, live.B, res.Slots[1])

	live.Tier = model.TierUnknown
	for _, t := range []string{live.A.Tier, live.B.Tier} {
		if t != model.TierUnknown {
			live.Tier = t
			break
		}
	}
	if live.Tier == model.TierUnknown {
		c.log.Warn(ctx, "could not determine match tier", logger.String("match_id", live.ID))
	}

	ready := live.A.Rating.State != model.RatingNotFound && live.B.Rating.State != model.RatingNotFound
	return live, Completion{Ready: ready}
}

func apply(ctx context.Context, log logger.Logger, c model.Contestant, l Lookup) model.Contestant {
	switch {
	case l.Err == nil:
		metrics.RecordRatingFetch("found")
		c.Rating, c.TierRating = l.Rating.Rating, l.Rating.TierRating
		c.Tier = l.Rating.Tier
		if c.Tier == "" {
			c.Tier = model.TierUnknown
		}
	case errors.Is(l.Err, ErrNotFound):
		metrics.RecordRatingFetch("not_found")
		log.Info(ctx, "no ratings for contestant", logger.String("identity", c.Identity))
		c.Rating, c.TierRating, c.Tier = model.NotFound, model.NotFound, model.TierUnknown
	default:
		metrics.RecordRatingFetch("error")
		log.Warn(ctx, "rating lookup failed",
			logger.String("identity", c.Identity),
			logger.Error(l.Err))
		c.Rating, c.TierRating, c.Tier = model.NotFound, model.NotFound, model.TierUnknown
	}
	return c
}
