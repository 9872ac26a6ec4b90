package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/internal/domain/wager"
	"github.com/okian/saltyscope/pkg/logger"
	"github.com/okian/saltyscope/pkg/metrics"
)

// ErrRejected is returned when the actor answers a placement with ok=false.
var ErrRejected = errors.New("placement rejected by actor")

// Hub tracks connected clients. It is both a status Publisher and an ActingSurface.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	pending map[string]chan ack

	upgrader websocket.Upgrader
	ctx      context.Context
	log      logger.Logger
}

var (
	_ model.Publisher     = (*Hub)(nil)
	_ wager.ActingSurface = (*Hub)(nil)
)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithOriginCheck restricts websocket origins. All origins are allowed by default.
func WithOriginCheck(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

// NewHub creates a hub. ctx bounds logging for client pumps.
func NewHub(ctx context.Context, opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		pending: make(map[string]chan ack),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx: ctx,
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request. "?role=actor" registers an acting client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	c := newClient(uuid.NewString(), ParseRole(r.URL.Query().Get("role")), conn, h)
	h.register(c)

	go c.writePump()
	go c.readPump(h.ctx)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.updateGauges()
	h.log.Info(h.ctx, "client connected", logger.String("client", c.id), logger.String("role", string(c.role)))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
	if ok {
		h.updateGauges()
		h.log.Info(h.ctx, "client disconnected", logger.String("client", c.id))
	}
}

func (h *Hub) updateGauges() {
	viewers, actors := h.Count()
	metrics.UpdateStreamClients(string(RoleViewer), viewers)
	metrics.UpdateStreamClients(string(RoleActor), actors)
}

// Count returns connected viewers and actors.
func (h *Hub) Count() (viewers, actors int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.role == RoleActor {
			actors++
		} else {
			viewers++
		}
	}
	return viewers, actors
}

func (h *Hub) reply(c *client, m ServerMessage) {
	m.Timestamp = time.Now()
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		c.trySend(m)
	}
}

// Publish broadcasts the snapshot to every client. No clients is ErrNoSubscriber.
// Clients whose buffer is full are dropped.
func (h *Hub) Publish(_ context.Context, s model.Snapshot) error {
	msg := ServerMessage{Type: TypeStatus, Status: &s, Timestamp: time.Now()}

	var slow []*client
	h.mu.RLock()
	n := len(h.clients)
	for c := range h.clients {
		if !c.trySend(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn(h.ctx, "client too slow, disconnecting", logger.String("client", c.id))
		h.unregister(c)
	}
	if n == 0 {
		return model.ErrNoSubscriber
	}
	return nil
}

// Place sends a placement to the most recently connected actor and waits for its ack.
func (h *Hub) Place(ctx context.Context, target model.Slot, amount int64) error {
	id := uuid.NewString()
	done := make(chan ack, 1)

	h.mu.Lock()
	actor := h.latestActorLocked()
	if actor == nil {
		h.mu.Unlock()
		return wager.ErrUnavailable
	}
	h.pending[id] = done
	sent := actor.trySend(ServerMessage{
		Type:      TypePlace,
		ID:        id,
		Slot:      int(target),
		Amount:    amount,
		Timestamp: time.Now(),
	})
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	if !sent {
		return fmt.Errorf("%w: actor %s is not reading", wager.ErrUnavailable, actor.id)
	}

	select {
	case a := <-done:
		if !a.ok {
			return fmt.Errorf("%w: %s", ErrRejected, a.msg)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) latestActorLocked() *client {
	var latest *client
	for c := range h.clients {
		if c.role != RoleActor {
			continue
		}
		if latest == nil || c.connected.After(latest.connected) {
			latest = c
		}
	}
	return latest
}

func (h *Hub) resolve(id string, a ack) {
	h.mu.RLock()
	ch, ok := h.pending[id]
	h.mu.RUnlock()
	if !ok {
		h.log.Debug(h.ctx, "ack for unknown placement", logger.String("id", id))
		return
	}
	select {
	case ch <- a:
	default:
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
	h.updateGauges()
}
