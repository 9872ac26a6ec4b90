package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/saltyscope/internal/domain/dedupe"
	"github.com/okian/saltyscope/internal/domain/match"
	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/internal/domain/ratings"
	"github.com/okian/saltyscope/internal/domain/strategy"
	"github.com/okian/saltyscope/internal/domain/wager"
	"github.com/okian/saltyscope/pkg/logger"
	"github.com/okian/saltyscope/pkg/metrics"
)

// Status texts.
const (
	msgWaiting       = "Waiting for match..."
	msgOpen          = "Betting Open!"
	msgClosed        = "Betting Closed."
	msgFetching      = "Fetching data for %s and %s..."
	msgReady         = "Data fetched. Ready to bet!"
	msgNoData        = "Could not fetch data for one or both fighters."
	msgCoinFlipMatch = "Exhibition Team Match: Flipping coin..."
)

// HistoryRecorder stores decisions.
type HistoryRecorder interface {
	RecordDecision(ctx context.Context, r model.DecisionRecord) error
}

// Deps are the boundaries the engine talks to. Only Ratings is required.
type Deps struct {
	Ratings    ratings.Source
	Randomness strategy.Randomness
	Surface    wager.ActingSurface
	Publisher  model.Publisher
	History    HistoryRecorder
	// Deliver hands a joined ratings result back to the actor.
	Deliver func(ratings.Result)
}

// EngineOption configures an Engine.
type EngineOption func(*engineSettings)

type engineSettings struct {
	policy       model.Policy
	fetchTimeout time.Duration
	placeTimeout time.Duration
	drawTimeout  time.Duration
	dedupeSize   int
	newID        func() string
	now          func() time.Time
	log          logger.Logger
}

// WithPolicy sets the initial policy.
func WithPolicy(p model.Policy) EngineOption {
	return func(s *engineSettings) { s.policy = p }
}

// WithFetchTimeout bounds one rating fetch cycle.
func WithFetchTimeout(d time.Duration) EngineOption {
	return func(s *engineSettings) { s.fetchTimeout = d }
}

// WithPlaceTimeout bounds one placement.
func WithPlaceTimeout(d time.Duration) EngineOption {
	return func(s *engineSettings) { s.placeTimeout = d }
}

// WithEngineDrawTimeout bounds one coin-flip draw.
func WithEngineDrawTimeout(d time.Duration) EngineOption {
	return func(s *engineSettings) { s.drawTimeout = d }
}

// WithWindowLedgerSize sets how many window keys the at-most-once guard remembers.
func WithWindowLedgerSize(n int) EngineOption {
	return func(s *engineSettings) { s.dedupeSize = n }
}

// WithMatchIDs replaces the match ID generator.
func WithMatchIDs(fn func() string) EngineOption {
	return func(s *engineSettings) { s.newID = fn }
}

// WithClock replaces time.Now for snapshots and history.
func WithClock(now func() time.Time) EngineOption {
	return func(s *engineSettings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l logger.Logger) EngineOption {
	return func(s *engineSettings) {
		if l != nil {
			s.log = l
		}
	}
}

// Engine is the single owner of match state. Every method except Snapshot
// must be called from one goroutine (the actor).
type Engine struct {
	tracker  *match.Tracker
	coord    *ratings.Coordinator
	resolver *strategy.Resolver
	executor *wager.Executor
	balance  *BalanceHolder

	publisher model.Publisher
	history   HistoryRecorder
	policy    model.Policy
	now       func() time.Time
	log       logger.Logger

	reason    model.Reason
	rationale string
	latest    atomic.Pointer[model.Snapshot]
}

// NewEngine wires the domain components.
func NewEngine(deps Deps, opts ...EngineOption) *Engine {
	s := engineSettings{
		policy: model.DefaultPolicy(),
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	deliver := deps.Deliver
	if deliver == nil {
		deliver = func(ratings.Result) {}
	}

	var trackerOpts []match.Option
	if s.newID != nil {
		trackerOpts = append(trackerOpts, match.WithIDGenerator(s.newID))
	}
	executorOpts := []wager.Option{wager.WithLogger(s.log.Named("wager")), wager.WithTimeout(s.placeTimeout)}
	if s.dedupeSize > 0 {
		executorOpts = append(executorOpts, wager.WithLedger(dedupe.NewWindowLedger(dedupe.WithMaxSize(s.dedupeSize))))
	}

	e := &Engine{
		tracker: match.NewTracker(trackerOpts...),
		coord: ratings.NewCoordinator(deps.Ratings, deliver,
			ratings.WithTimeout(s.fetchTimeout),
			ratings.WithLogger(s.log.Named("ratings"))),
		resolver: strategy.NewResolver(deps.Randomness,
			strategy.WithLogger(s.log.Named("strategy")),
			strategy.WithDrawTimeout(s.drawTimeout)),
		executor:  wager.NewExecutor(deps.Surface, executorOpts...),
		balance:   &BalanceHolder{},
		publisher: deps.Publisher,
		history:   deps.History,
		policy:    s.policy,
		now:       s.now,
		log:       s.log,
		rationale: msgWaiting,
	}
	e.latest.Store(ptr(e.snapshot()))
	return e
}

func ptr[T any](v T) *T { return &v }

// Snapshot returns the last emitted status. Safe for concurrent use.
func (e *Engine) Snapshot() model.Snapshot { return *e.latest.Load() }

// Policy returns the active policy.
func (e *Engine) Policy() model.Policy { return e.policy }

// SetPolicy replaces the policy used by subsequent decisions.
func (e *Engine) SetPolicy(ctx context.Context, p model.Policy) {
	e.policy = p
	metrics.RecordPolicyUpdate()
	e.log.Info(ctx, "policy updated", logger.String("mode", string(p.Mode)))
}

// Observe folds one raw observation into the engine.
func (e *Engine) Observe(ctx context.Context, obs model.Observation) {
	metrics.RecordObservation()
	e.balance.Update(obs.BalanceText)

	events := e.tracker.Observe(obs, e.coord.InFlight())
	if len(events) == 0 {
		return
	}

	var opened, closed, started, refetch, cleared, awaiting bool
	for _, ev := range events {
		metrics.RecordMatchEvent(ev.Kind.String())
		e.log.Debug(ctx, "match event", logger.String("event", ev.Kind.String()), logger.String("match_id", ev.MatchID))
		switch ev.Kind {
		case match.WindowOpened:
			opened = true
		case match.WindowClosed:
			closed = true
		case match.NewMatch:
			started = true
		case match.RefetchNeeded:
			refetch = true
		case match.MatchCleared:
			cleared = true
		case match.AwaitingMatch:
			awaiting = true
		}
	}

	live := e.tracker.Match()
	switch {
	case awaiting:
		e.coord.Reset()
		e.setStatus(ctx, model.ReasonNone, msgWaiting)
		return
	case closed:
		e.coord.Supersede(live.ID)
		e.setStatus(ctx, model.ReasonNone, msgClosed)
	case opened:
		e.setStatus(ctx, model.ReasonNone, msgOpen)
	}

	switch {
	case started:
		e.coord.Supersede(live.ID)
		e.fetch(ctx, live)
	case refetch:
		e.fetch(ctx, live)
	case cleared:
		e.coord.Supersede(live.ID)
		e.publish(ctx)
	case opened && live.HasIdentities() && !e.tracker.NeedsRatings() && (live.CoinFlip || !e.coord.InFlight()):
		e.decide(ctx, true)
	}
}

func (e *Engine) fetch(ctx context.Context, live model.MatchContext) {
	switch e.coord.FetchIfNeeded(ctx, live) {
	case ratings.Dispatched:
		e.setStatus(ctx, model.ReasonNone, fmt.Sprintf(msgFetching, live.A.Identity, live.B.Identity))
	case ratings.CoinFlip:
		e.setStatus(ctx, model.ReasonNone, msgCoinFlipMatch)
		e.decide(ctx, true)
	default:
		e.publish(ctx)
	}
}

// ApplyRatings handles a joined lookup result posted back by the coordinator.
func (e *Engine) ApplyRatings(ctx context.Context, res ratings.Result) {
	updated, c := e.coord.Complete(ctx, e.tracker.Match(), res)
	if c.Stale {
		if e.tracker.NeedsRatings() && !e.coord.InFlight() {
			e.fetch(ctx, e.tracker.Match())
		}
		return
	}
	e.tracker.ApplyRatings(updated)

	if !c.Ready {
		e.setStatus(ctx, model.ReasonDataUnavailable, msgNoData)
		e.record(ctx, e.tracker.Match(), model.NoWager(model.ReasonDataUnavailable, msgNoData), false)
		return
	}
	e.setStatus(ctx, model.ReasonNone, msgReady)
	e.decide(ctx, true)
}

// Rebet re-runs the resolver against the current state.
func (e *Engine) Rebet(ctx context.Context) {
	metrics.RecordRebet()
	e.log.Info(ctx, "re-deciding on request")
	e.decide(ctx, false)
}

// Restore seeds state from a persisted snapshot. The window is never restored open.
func (e *Engine) Restore(ctx context.Context, s model.Snapshot) {
	e.tracker.Restore(s)
	e.coord.Supersede(e.tracker.Match().ID)
	e.log.Info(ctx, "restored last match",
		logger.String("slot1", s.Slot1.Identity),
		logger.String("slot2", s.Slot2.Identity))
	e.setStatus(ctx, model.ReasonNone, msgWaiting)
}

// Reset drops all match state.
func (e *Engine) Reset(ctx context.Context) {
	e.tracker.Reset()
	e.coord.Reset()
	e.setStatus(ctx, model.ReasonNone, msgWaiting)
}

func (e *Engine) decide(ctx context.Context, fresh bool) {
	live := e.tracker.Match()
	d := e.resolver.Decide(ctx, strategy.Input{
		Match:      live,
		WindowOpen: e.tracker.Accepting(),
		Policy:     e.policy,
		Balance:    e.balance.Balance(),
		Fresh:      fresh,
	})

	if !d.ClosesWindow {
		e.setStatus(ctx, d.Reason, d.Rationale)
		e.record(ctx, live, d, false)
		return
	}

	e.tracker.Consume()
	e.setStatus(ctx, model.ReasonNone, d.Rationale)

	name := live.Contestant(d.Target).Identity
	out := e.executor.Execute(ctx, e.tracker.WindowKey(), d, name)
	e.setStatus(ctx, out.Reason, out.Rationale)

	d.Reason, d.Rationale = out.Reason, out.Rationale
	e.record(ctx, live, d, out.Placed)
}

func (e *Engine) record(ctx context.Context, live model.MatchContext, d model.Decision, placed bool) {
	if e.history == nil {
		return
	}
	r := model.DecisionRecord{
		MatchID:    live.ID,
		At:         e.now(),
		Slot1:      live.A.Identity,
		Slot2:      live.B.Identity,
		Mode:       live.Mode,
		Tier:       live.Tier,
		Target:     d.Target,
		TargetName: live.Contestant(d.Target).Identity,
		Amount:     d.Amount,
		Balance:    e.balance.Balance(),
		Placed:     placed,
		Reason:     d.Reason,
		Rationale:  d.Rationale,
	}
	if d.Target == model.SlotNone {
		r.TargetName = ""
	}
	if err := e.history.RecordDecision(ctx, r); err != nil {
		metrics.RecordErrorByComponent("engine", "history")
		e.log.Warn(ctx, "could not record decision", logger.Error(err))
	}
}

func (e *Engine) setStatus(ctx context.Context, reason model.Reason, rationale string) {
	e.reason, e.rationale = reason, rationale
	e.publish(ctx)
}

func (e *Engine) snapshot() model.Snapshot {
	m := e.tracker.Match()
	return model.Snapshot{
		MatchID:    m.ID,
		Slot1:      m.A,
		Slot2:      m.B,
		WindowOpen: e.tracker.WindowOpen(),
		Consumed:   e.tracker.Consumed(),
		Fetching:   e.coord.InFlight(),
		Mode:       m.Mode,
		Tier:       m.Tier,
		Balance:    e.balance.Balance(),
		Reason:     e.reason,
		Rationale:  e.rationale,
		At:         e.now(),
	}
}

func (e *Engine) publish(ctx context.Context) {
	s := e.snapshot()
	e.latest.Store(&s)
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, s); err != nil {
		e.log.Debug(ctx, "status publish failed", logger.Error(err))
	}
}
