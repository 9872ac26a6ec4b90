package model

import (
	"context"
	"errors"
	"time"
)

// Acceptance is the tri-state "can currently accept wagers" indicator.
type Acceptance int

// Acceptance values. AcceptUnknown means the indicating elements were absent.
const (
	AcceptUnknown Acceptance = iota
	AcceptOpen
	AcceptClosed
)

// AcceptanceFrom converts an optional boolean.
func AcceptanceFrom(open *bool) Acceptance {
	switch {
	case open == nil:
		return AcceptUnknown
	case *open:
		return AcceptOpen
	default:
		return AcceptClosed
	}
}

// Observation is one raw read of the page, as delivered by the scraping layer.
// Entry* come from the wager-entry affordances, Display* from the post-match
// display. A nil ModeSignal means the signal element was absent.
type Observation struct {
	EntrySlot1   string
	EntrySlot2   string
	DisplaySlot1 string
	DisplaySlot2 string
	Accepting    Acceptance
	ModeSignal   *string
	BalanceText  *string
}

// Snapshot is the status view emitted on every meaningful transition.
type Snapshot struct {
	MatchID    string     `json:"matchId,omitempty"`
	Slot1      Contestant `json:"fighter1"`
	Slot2      Contestant `json:"fighter2"`
	WindowOpen bool       `json:"bettingOpen"`
	Consumed   bool       `json:"consumed"`
	Fetching   bool       `json:"fetching"`
	Mode       EventMode  `json:"matchMode"`
	Tier       string     `json:"matchTier"`
	Balance    int64      `json:"balance"`
	Reason     Reason     `json:"reason"`
	Rationale  string     `json:"statusMessage"`
	At         time.Time  `json:"at"`
}

// ErrNoSubscriber is what a sink returns when nobody is listening. It is not a failure.
var ErrNoSubscriber = errors.New("no subscriber")

// Publisher receives status snapshots. Delivery is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, s Snapshot) error
}

// BalanceSource reads the current available stake in whole units.
type BalanceSource interface {
	Balance() int64
}

// Stats is the operational summary served on /stats.
type Stats struct {
	Started     bool       `json:"started"`
	QueueSize   int        `json:"queueSize"`
	QueueLength int        `json:"queueLength"`
	DedupeSize  int        `json:"dedupeSize"`
	Policy      PolicyMode `json:"policy"`
	MatchID     string     `json:"matchId,omitempty"`
}
