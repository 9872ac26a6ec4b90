package model

import "encoding/json"

// EventMode is the kind of event the current match belongs to.
type EventMode int

// Event modes. The zero value is Matchmaking, the documented default.
const (
	Matchmaking EventMode = iota
	Tournament
	Exhibition
)

func (m EventMode) String() string {
	switch m {
	case Tournament:
		return "Tournament"
	case Exhibition:
		return "Exhibition"
	default:
		return "Matchmaking"
	}
}

// MarshalJSON encodes the mode by name.
func (m EventMode) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// UnmarshalJSON decodes the mode by name; unknown names become Matchmaking.
func (m *EventMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "Tournament":
		*m = Tournament
	case "Exhibition":
		*m = Exhibition
	default:
		*m = Matchmaking
	}
	return nil
}

// MatchContext is the single live match.
type MatchContext struct {
	ID       string
	A        Contestant
	B        Contestant
	Mode     EventMode
	Tier     string
	CoinFlip bool
}

// EmptyMatch returns a cleared context that keeps the given mode.
func EmptyMatch(mode EventMode) MatchContext {
	return MatchContext{
		A:    EmptyContestant(),
		B:    EmptyContestant(),
		Mode: mode,
		Tier: TierUnknown,
	}
}

// HasIdentities reports whether both slots carry a name.
func (m MatchContext) HasIdentities() bool {
	return m.A.Identity != "" && m.B.Identity != ""
}

// HasAnyIdentity reports whether at least one slot carries a name.
func (m MatchContext) HasAnyIdentity() bool {
	return m.A.Identity != "" || m.B.Identity != ""
}

// Contestant returns the contestant in slot s.
func (m MatchContext) Contestant(s Slot) Contestant {
	if s == Slot2 {
		return m.B
	}
	return m.A
}

// SameIdentities reports whether the pair matches the context's slots.
func (m MatchContext) SameIdentities(a, b string) bool {
	return m.A.Identity == a && m.B.Identity == b
}
