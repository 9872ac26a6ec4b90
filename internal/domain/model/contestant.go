// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// Slot is one of the two fixed positions in a match.
type Slot int

// Slots. SlotNone marks "no target".
const (
	SlotNone Slot = iota
	Slot1
	Slot2
)

// Other returns the opposing slot.
func (s Slot) Other() Slot {
	switch s {
	case Slot1:
		return Slot2
	case Slot2:
		return Slot1
	default:
		return SlotNone
	}
}

func (s Slot) String() string {
	switch s {
	case Slot1:
		return "slot1"
	case Slot2:
		return "slot2"
	default:
		return "none"
	}
}

// MarshalJSON encodes the slot as its name.
func (s Slot) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// UnmarshalJSON accepts "slot1"/"slot2" or the numbers 1/2.
func (s *Slot) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*s = ParseSlot(name)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = ParseSlot(strconv.Itoa(n))
	return nil
}

// ParseSlot reads "slot1", "slot2", "1" or "2". Anything else is SlotNone.
func ParseSlot(v string) Slot {
	switch v {
	case "slot1", "1":
		return Slot1
	case "slot2", "2":
		return Slot2
	default:
		return SlotNone
	}
}

// RatingState distinguishes the non-numeric rating values.
type RatingState int

// Rating states.
const (
	RatingUnknown RatingState = iota
	RatingPending
	RatingNotFound
	RatingKnown
)

// RatingValue is a finite number or one of unknown, pending, not-found.
type RatingValue struct {
	State RatingState
	Value float64
}

// Non-numeric rating values.
var (
	Unknown  = RatingValue{State: RatingUnknown}
	Pending  = RatingValue{State: RatingPending}
	NotFound = RatingValue{State: RatingNotFound}
)

// Known wraps a number. NaN and infinities are treated as unknown.
func Known(v float64) RatingValue {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Unknown
	}
	return RatingValue{State: RatingKnown, Value: v}
}

// IsNumeric reports whether the value holds a finite number.
func (r RatingValue) IsNumeric() bool { return r.State == RatingKnown }

func (r RatingValue) String() string {
	switch r.State {
	case RatingKnown:
		return strconv.FormatFloat(r.Value, 'f', -1, 64)
	case RatingPending:
		return "Fetching..."
	case RatingNotFound:
		return "Not Found"
	default:
		return "N/A"
	}
}

// MarshalJSON renders numbers as numbers and everything else as display text.
func (r RatingValue) MarshalJSON() ([]byte, error) {
	if r.IsNumeric() {
		return json.Marshal(r.Value)
	}
	return json.Marshal(r.String())
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *RatingValue) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*r = Known(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "Fetching...":
		*r = Pending
	case "Not Found":
		*r = NotFound
	default:
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*r = Known(v)
			return nil
		}
		*r = Unknown
	}
	return nil
}

// TierUnknown is the tier of a contestant without rating data.
const TierUnknown = "unknown"

// Contestant is one side of a match.
type Contestant struct {
	Identity   string      `json:"name"`
	Rating     RatingValue `json:"elo"`
	TierRating RatingValue `json:"tierElo"`
	Tier       string      `json:"tier"`
}

// EmptyContestant is the cleared slot value.
func EmptyContestant() Contestant {
	return Contestant{Rating: Unknown, TierRating: Unknown, Tier: TierUnknown}
}

// PendingContestant is a freshly detected contestant awaiting ratings.
func PendingContestant(identity string) Contestant {
	return Contestant{Identity: identity, Rating: Pending, TierRating: Pending, Tier: TierUnknown}
}

// Rating is what a RatingSource returns for a found contestant.
type Rating struct {
	Rating     RatingValue
	TierRating RatingValue
	Tier       string
}
