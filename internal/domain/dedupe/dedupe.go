// Package dedupe tracks which wagering windows already had a placement.
package dedupe

import (
	"context"
	"sync"
)

// Deduper guarantees at-most-once placement per window key.
type Deduper interface {
	// Claim records key and reports whether this caller is the first to do so.
	Claim(ctx context.Context, key string) bool

	Size() int
}

// windowLedger keeps the most recent keys in insertion order. When full, the
// oldest key is evicted. Windows are short-lived, so only recent keys matter.
type windowLedger struct {
	mu      sync.Mutex
	claimed map[string]struct{}
	order   []string // ring buffer of keys, "" marks a free cell
	next    int
	maxSize int
}

// NewWindowLedger creates an in-memory Deduper.
func NewWindowLedger(opts ...Option) Deduper {
	d := &windowLedger{maxSize: 1024}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxSize <= 0 {
		d.maxSize = 1
	}
	d.claimed = make(map[string]struct{}, d.maxSize)
	d.order = make([]string, d.maxSize)
	return d
}

func (d *windowLedger) Claim(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.claimed[key]; ok {
		return false
	}
	if old := d.order[d.next]; old != "" {
		delete(d.claimed, old)
	}
	d.order[d.next] = key
	d.claimed[key] = struct{}{}
	d.next = (d.next + 1) % d.maxSize
	return true
}

func (d *windowLedger) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claimed)
}
