// Package match tracks the lifecycle of the single live match from raw page observations.
package match

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/saltyscope/internal/domain/model"
)

// EventKind is a lifecycle transition produced by Observe.
type EventKind int

// Event kinds.
const (
	WindowOpened EventKind = iota + 1
	WindowClosed
	NewMatch
	RefetchNeeded
	MatchCleared
	// AwaitingMatch means the acceptance indicators vanished and all state was reset.
	AwaitingMatch
)

func (k EventKind) String() string {
	switch k {
	case WindowOpened:
		return "window_opened"
	case WindowClosed:
		return "window_closed"
	case NewMatch:
		return "new_match"
	case RefetchNeeded:
		return "refetch_needed"
	case MatchCleared:
		return "match_cleared"
	case AwaitingMatch:
		return "awaiting_match"
	default:
		return "unknown"
	}
}

// Event is one transition, tagged with the match it applies to.
type Event struct {
	Kind    EventKind
	MatchID string
}

// Tracker owns the live MatchContext and the wagering window.
// It is not safe for concurrent use; the engine actor serializes access.
type Tracker struct {
	match      model.MatchContext
	windowOpen bool
	consumed   bool
	windowSeq  uint64
	newID      func() string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithIDGenerator replaces the match ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.newID = fn
		}
	}
}

// NewTracker returns a tracker in the "waiting for match" state.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		match: model.EmptyMatch(model.Matchmaking),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe folds one observation into the state and returns the resulting transitions
// in the order they happened. inFlight reports whether a rating fetch is outstanding.
func (t *Tracker) Observe(raw model.Observation, inFlight bool) []Event {
	mode := DetectMode(raw.ModeSignal)
	t.match.Mode = mode

	if raw.Accepting == model.AcceptUnknown {
		return t.awaitMatch(mode)
	}

	var events []Event
	open := raw.Accepting == model.AcceptOpen
	if open != t.windowOpen {
		t.windowOpen = open
		if open {
			t.consumed = false
			t.windowSeq++
			events = append(events, t.event(WindowOpened))
		} else {
			events = append(events, t.event(WindowClosed))
			t.match = model.EmptyMatch(mode)
		}
	}

	name1, name2 := t.identities(raw, open)
	if name1 == "" || name2 == "" {
		if t.match.HasAnyIdentity() {
			events = append(events, t.event(MatchCleared))
			t.match = model.EmptyMatch(mode)
		}
		return events
	}

	switch {
	case !t.match.SameIdentities(name1, name2):
		t.startMatch(name1, name2, mode)
		events = append(events, t.event(NewMatch))
	case t.needsRatings() && !inFlight:
		t.match.A.Rating, t.match.A.TierRating = model.Pending, model.Pending
		t.match.B.Rating, t.match.B.TierRating = model.Pending, model.Pending
		events = append(events, t.event(RefetchNeeded))
	}
	return events
}

func (t *Tracker) awaitMatch(mode model.EventMode) []Event {
	if !t.windowOpen && !t.match.HasAnyIdentity() {
		return nil
	}
	var events []Event
	if t.windowOpen {
		events = append(events, t.event(WindowClosed))
	}
	events = append(events, t.event(AwaitingMatch))
	t.windowOpen = false
	t.consumed = false
	t.match = model.EmptyMatch(mode)
	return events
}

// identities picks the name source matching the acceptance state.
func (t *Tracker) identities(raw model.Observation, open bool) (string, string) {
	if open {
		return CleanIdentity(raw.EntrySlot1), CleanIdentity(raw.EntrySlot2)
	}
	return CleanIdentity(raw.DisplaySlot1), CleanIdentity(raw.DisplaySlot2)
}

func (t *Tracker) startMatch(name1, name2 string, mode model.EventMode) {
	t.match = model.MatchContext{
		ID:       t.newID(),
		A:        model.PendingContestant(name1),
		B:        model.PendingContestant(name2),
		Mode:     mode,
		Tier:     model.TierUnknown,
		CoinFlip: IsCoinFlipPair(mode, name1, name2),
	}
	if t.match.CoinFlip {
		// Placeholder teams have no ratings to fetch.
		t.match.A.Rating, t.match.A.TierRating = model.Unknown, model.Unknown
		t.match.B.Rating, t.match.B.TierRating = model.Unknown, model.Unknown
	}
}

func (t *Tracker) needsRatings() bool {
	if t.match.CoinFlip {
		return false
	}
	return !t.match.A.Rating.IsNumeric() || !t.match.B.Rating.IsNumeric()
}

func (t *Tracker) event(kind EventKind) Event {
	return Event{Kind: kind, MatchID: t.match.ID}
}

// Match returns a copy of the live context.
func (t *Tracker) Match() model.MatchContext { return t.match }

// ApplyRatings replaces the live context after a fetch resolved. Contexts for
// another match are ignored and false is returned.
func (t *Tracker) ApplyRatings(m model.MatchContext) bool {
	if m.ID != t.match.ID || !t.match.SameIdentities(m.A.Identity, m.B.Identity) {
		return false
	}
	t.match.A, t.match.B, t.match.Tier = m.A, m.B, m.Tier
	return true
}

// WindowOpen reports the last observed acceptance edge.
func (t *Tracker) WindowOpen() bool { return t.windowOpen }

// Consumed reports whether the current window already produced a decision.
func (t *Tracker) Consumed() bool { return t.consumed }

// Accepting reports whether a decision may still be made in this window.
func (t *Tracker) Accepting() bool { return t.windowOpen && !t.consumed }

// Consume marks the current window used until the next WindowOpened.
func (t *Tracker) Consume() { t.consumed = true }

// WindowKey identifies the current window of the current match.
func (t *Tracker) WindowKey() string {
	return t.match.ID + "#" + strconv.FormatUint(t.windowSeq, 10)
}

// NeedsRatings reports whether the live match has identities but lacks numeric ratings.
func (t *Tracker) NeedsRatings() bool {
	return t.match.HasIdentities() && t.needsRatings()
}

// Reset drops all state, as on a fresh start.
func (t *Tracker) Reset() {
	t.match = model.EmptyMatch(model.Matchmaking)
	t.windowOpen = false
	t.consumed = false
}

// Restore seeds the tracker from a persisted snapshot. Ratings are kept as
// saved; a non-numeric rating will be refetched on the next observation.
func (t *Tracker) Restore(s model.Snapshot) {
	if s.Slot1.Identity == "" || s.Slot2.Identity == "" {
		return
	}
	id := s.MatchID
	if id == "" {
		id = t.newID()
	}
	t.match = model.MatchContext{
		ID:       id,
		A:        s.Slot1,
		B:        s.Slot2,
		Mode:     s.Mode,
		Tier:     s.Tier,
		CoinFlip: IsCoinFlipPair(s.Mode, s.Slot1.Identity, s.Slot2.Identity),
	}
	if t.match.A.Rating.State == model.RatingPending || t.match.B.Rating.State == model.RatingPending {
		t.match.A.Rating, t.match.A.TierRating = model.Unknown, model.Unknown
		t.match.B.Rating, t.match.B.TierRating = model.Unknown, model.Unknown
	}
}
