// Package service runs the wager engine behind a single-consumer mailbox and
// implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/saltyscope/internal/adapters/mq/queue"
	"github.com/okian/saltyscope/internal/adapters/mq/worker"
	"github.com/okian/saltyscope/internal/adapters/publisher"
	"github.com/okian/saltyscope/internal/adapters/repository"
	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/internal/domain/ratings"
	"github.com/okian/saltyscope/internal/domain/strategy"
	"github.com/okian/saltyscope/internal/domain/wager"
	"github.com/okian/saltyscope/pkg/logger"
)

const (
	deliverRetryWait = 5 * time.Millisecond
	stopTimeout      = 5 * time.Second
)

// Service owns the engine actor and its mailbox.
type Service struct {
	mu sync.RWMutex

	// Boundaries
	ratings ratings.Source
	random  strategy.Randomness
	surface wager.ActingSurface
	store   repository.Store
	sinks   []publisher.Sink

	// Configuration
	queueSize    int
	dedupeSize   int
	fetchTimeout time.Duration
	placeTimeout time.Duration
	drawTimeout  time.Duration
	policy       model.Policy
	engineOpts   []EngineOption

	// Runtime
	mailbox     *queue.InMemoryQueue[command]
	actor       *worker.Worker[command]
	engine      *Engine
	fanout      *publisher.Fanout
	started     bool
	storeClosed bool
	cancel      context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithQueueSize sets how many commands may wait for the engine.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many wagering windows the at-most-once guard remembers.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRatingSource sets where contestant ratings come from.
func WithRatingSource(src ratings.Source) Option {
	return func(s *Service) { s.ratings = src }
}

// WithRandomness sets the coin-flip source.
func WithRandomness(r strategy.Randomness) Option {
	return func(s *Service) { s.random = r }
}

// WithActingSurface sets where wagers are placed.
func WithActingSurface(a wager.ActingSurface) Option {
	return func(s *Service) { s.surface = a }
}

// WithStore enables persistence of policy, last status and decision history.
func WithStore(st repository.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithSink adds a status sink.
func WithSink(name string, p model.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.sinks = append(s.sinks, publisher.Sink{Name: name, Publisher: p})
		}
	}
}

// WithDefaultPolicy sets the policy used when none was persisted.
func WithDefaultPolicy(p model.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithTimeouts bounds rating fetch cycles and wager placements.
func WithTimeouts(fetch, place time.Duration) Option {
	return func(s *Service) {
		if fetch > 0 {
			s.fetchTimeout = fetch
		}
		if place > 0 {
			s.placeTimeout = place
		}
	}
}

// WithDrawTimeout bounds one coin-flip draw.
func WithDrawTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.drawTimeout = d
		}
	}
}

// WithEngineOptions passes extra options to the engine.
func WithEngineOptions(opts ...EngineOption) Option {
	return func(s *Service) { s.engineOpts = append(s.engineOpts, opts...) }
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:    1024,
		dedupeSize:   1024,
		fetchTimeout: 5 * time.Second,
		placeTimeout: 3 * time.Second,
		policy:       model.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start restores persisted state and starts the engine actor.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.ratings == nil {
		return ErrNoRatingSource
	}

	s.logger.Info(ctx, "starting wager engine...")

	if s.store != nil {
		p, err := s.store.LoadPolicy(ctx)
		switch {
		case err == nil:
			s.policy = p
			s.logger.Info(ctx, "restored policy", logger.String("mode", string(p.Mode)))
		case errors.Is(err, repository.ErrNotFound):
		default:
			s.logger.Warn(ctx, "could not load policy, using default", logger.Error(err))
		}
	}

	fanout := publisher.NewFanout(s.logger.Named("publisher"), publisher.WithSinks(s.sinks...))
	var history HistoryRecorder
	if s.store != nil {
		fanout.Add(publisher.Sink{Name: "sqlite", Publisher: storeSink{s.store}})
		history = s.store
	}
	fanout.Start(ctx)
	s.fanout = fanout

	s.mailbox = queue.NewInMemoryQueue[command](queue.WithCapacity(s.queueSize))
	engineOpts := append([]EngineOption{
		WithPolicy(s.policy),
		WithFetchTimeout(s.fetchTimeout),
		WithPlaceTimeout(s.placeTimeout),
		WithEngineDrawTimeout(s.drawTimeout),
		WithWindowLedgerSize(s.dedupeSize),
		WithEngineLogger(s.logger.Named("engine")),
	}, s.engineOpts...)
	s.engine = NewEngine(Deps{
		Ratings:    s.ratings,
		Randomness: s.random,
		Surface:    s.surface,
		Publisher:  fanout,
		History:    history,
		Deliver:    s.deliver,
	}, engineOpts...)

	if s.store != nil {
		if snap, err := s.store.LastSnapshot(ctx); err == nil {
			s.engine.Restore(ctx, snap)
		} else if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn(ctx, "could not load last snapshot", logger.Error(err))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.actor = worker.New[command](s.mailbox, worker.HandlerFunc[command](s.handle),
		worker.WithName("engine"),
		worker.WithLogger(s.logger))
	go s.actor.Run(runCtx)

	s.started = true
	s.logger.Info(ctx, "wager engine started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("sinks", fanout.Len()),
		logger.String("policy", string(s.policy.Mode)),
	)
	return nil
}

func (s *Service) handle(ctx context.Context, c command) error {
	s.logger.Debug(ctx, "engine command", logger.String("kind", c.kind()))
	c.apply(ctx, s.engine)
	return nil
}

// deliver posts a ratings result back to the actor. A full mailbox is waited
// out; losing the result would leave the fetch guard held.
func (s *Service) deliver(res ratings.Result) {
	for {
		err := s.mailbox.Enqueue(context.Background(), ratingsCmd{res: res})
		if err == nil {
			return
		}
		if !errors.Is(err, queue.ErrFull) {
			s.logger.Debug(context.Background(), "dropping ratings result", logger.String("match_id", res.MatchID), logger.Error(err))
			return
		}
		time.Sleep(deliverRetryWait)
	}
}

// Stop gracefully shuts down the service. The store is closed even when
// Start failed.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	if !s.started {
		s.closeStore(ctx)
		return
	}
	s.logger.Info(ctx, "stopping wager engine...")

	shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.actor.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "engine did not stop in time", logger.Error(err))
	}
	s.cancel()
	_ = s.mailbox.Close()
	s.fanout.Close()
	s.closeStore(ctx)

	s.started = false
	s.logger.Info(ctx, "wager engine stopped")
}

func (s *Service) closeStore(ctx context.Context) {
	if s.store == nil || s.storeClosed {
		return
	}
	s.storeClosed = true
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store", logger.Error(err))
	}
}

func (s *Service) enqueue(ctx context.Context, c command) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	err := s.mailbox.Enqueue(ctx, c)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrFull):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	case errors.Is(err, queue.ErrClosed):
		return ErrNotStarted
	default:
		return err
	}
}

// Observe submits one raw page observation.
func (s *Service) Observe(ctx context.Context, obs model.Observation) error {
	return s.enqueue(ctx, observeCmd{obs: obs})
}

// Status returns the latest snapshot.
func (s *Service) Status(context.Context) model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.engine == nil {
		return model.Snapshot{
			Slot1:     model.EmptyContestant(),
			Slot2:     model.EmptyContestant(),
			Tier:      model.TierUnknown,
			Rationale: msgWaiting,
		}
	}
	return s.engine.Snapshot()
}

// Policy returns the active policy.
func (s *Service) Policy(context.Context) model.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// UpdatePolicy validates p, hands it to the engine and persists it.
func (s *Service) UpdatePolicy(ctx context.Context, p model.Policy) (model.Policy, error) {
	p, err := p.Normalize()
	if err != nil {
		return model.Policy{}, err
	}
	if err := s.enqueue(ctx, policyCmd{policy: p}); err != nil {
		return model.Policy{}, err
	}

	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SavePolicy(ctx, p); err != nil {
			s.logger.Warn(ctx, "policy applied but not persisted", logger.Error(err))
			return p, fmt.Errorf("persist policy: %w", err)
		}
	}
	return p, nil
}

// Rebet re-runs the decision for the current match and returns the resulting status.
func (s *Service) Rebet(ctx context.Context) (model.Snapshot, error) {
	reply := make(chan model.Snapshot, 1)
	if err := s.enqueue(ctx, rebetCmd{reply: reply}); err != nil {
		return model.Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return model.Snapshot{}, ctx.Err()
	}
}

// History returns recent decisions, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]model.DecisionRecord, error) {
	if s.store == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.store.History(ctx, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() model.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := model.Stats{
		Started:    s.started,
		QueueSize:  s.queueSize,
		DedupeSize: s.dedupeSize,
		Policy:     s.policy.Mode,
	}
	if s.started {
		stats.QueueLength = s.mailbox.Len()
		stats.MatchID = s.engine.Snapshot().MatchID
	}
	return stats
}

// storeSink saves every snapshot so the last match survives a restart.
type storeSink struct{ store repository.Store }

func (s storeSink) Publish(ctx context.Context, snap model.Snapshot) error {
	return s.store.SaveSnapshot(ctx, snap)
}
