package publisher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/pkg/logger"
	"github.com/okian/saltyscope/pkg/metrics"
)

const (
	defaultBuffer      = 64
	defaultSinkTimeout = 2 * time.Second
)

// Sink is a named Publisher.
type Sink struct {
	Name      string
	Publisher model.Publisher
}

// Option configures a Fanout.
type Option func(*Fanout)

// WithSinks registers sinks. Nil publishers are skipped.
func WithSinks(sinks ...Sink) Option {
	return func(f *Fanout) { f.pending = append(f.pending, sinks...) }
}

// WithBuffer sets how many snapshots may wait per sink before new ones are dropped.
func WithBuffer(n int) Option {
	return func(f *Fanout) {
		if n > 0 {
			f.buffer = n
		}
	}
}

// WithSinkTimeout bounds one delivery to one sink.
func WithSinkTimeout(d time.Duration) Option {
	return func(f *Fanout) {
		if d > 0 {
			f.timeout = d
		}
	}
}

type lane struct {
	sink  Sink
	queue chan model.Snapshot
}

// Fanout delivers every snapshot to all sinks in the background. Each sink has
// its own bounded queue drained by one goroutine, so a slow sink never blocks
// the caller or the other sinks; when a queue is full the snapshot is dropped
// for that sink. Sink errors are logged and counted; ErrNoSubscriber is success.
type Fanout struct {
	buffer  int
	timeout time.Duration
	log     logger.Logger

	pending []Sink

	mu      sync.Mutex
	lanes   []*lane
	started bool
	closed  bool
	wg      sync.WaitGroup
}

var _ model.Publisher = (*Fanout)(nil)

// NewFanout creates a fan-out. Call Start before relying on delivery.
func NewFanout(log logger.Logger, opts ...Option) *Fanout {
	if log == nil {
		log = logger.Nop()
	}
	f := &Fanout{buffer: defaultBuffer, timeout: defaultSinkTimeout, log: log}
	for _, opt := range opts {
		opt(f)
	}
	for _, s := range f.pending {
		f.Add(s)
	}
	f.pending = nil
	return f
}

// Add registers another sink. Sinks added after Start are ignored.
func (f *Fanout) Add(s Sink) {
	if s.Publisher == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.closed {
		f.log.Warn(context.Background(), "sink added after start ignored", logger.String("sink", s.Name))
		return
	}
	f.lanes = append(f.lanes, &lane{sink: s, queue: make(chan model.Snapshot, f.buffer)})
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lanes)
}

// Start launches one delivery goroutine per sink. Deliveries outlive ctx
// cancellation so snapshots queued before Close still reach their sinks.
func (f *Fanout) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.closed {
		return
	}
	f.started = true
	ctx = context.WithoutCancel(ctx)
	for _, l := range f.lanes {
		f.wg.Add(1)
		go f.drain(ctx, l)
	}
}

// Publish queues s for every sink and returns at once. It never fails.
func (f *Fanout) Publish(ctx context.Context, s model.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	for _, l := range f.lanes {
		select {
		case l.queue <- s:
		default:
			metrics.RecordPublishDropped(l.sink.Name)
			f.log.Debug(ctx, "status sink behind, snapshot dropped", logger.String("sink", l.sink.Name))
		}
	}
	return nil
}

// Close stops accepting snapshots and waits until queued ones are delivered.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, l := range f.lanes {
		close(l.queue)
	}
	f.mu.Unlock()
	f.wg.Wait()
}

func (f *Fanout) drain(ctx context.Context, l *lane) {
	defer f.wg.Done()
	for s := range l.queue {
		f.deliver(ctx, l.sink, s)
	}
}

func (f *Fanout) deliver(ctx context.Context, sink Sink, s model.Snapshot) {
	sctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	err := sink.Publisher.Publish(sctx, s)
	if err == nil || errors.Is(err, model.ErrNoSubscriber) {
		return
	}
	metrics.RecordPublishError(sink.Name)
	f.log.Warn(ctx, "status sink failed", logger.String("sink", sink.Name), logger.Error(err))
}
