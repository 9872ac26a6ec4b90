package model

import (
	"encoding/json"
	"time"
)

// Reason explains why no wager was made. ReasonNone accompanies a wager.
type Reason int

// Reason codes.
const (
	ReasonNone Reason = iota
	ReasonDataUnavailable
	ReasonIncompleteContext
	ReasonPolicyDisabled
	ReasonWindowClosed
	ReasonZeroBalance
	ReasonTiedRatings
	ReasonRandomnessFailure
	ReasonExecutionUnavailable
)

var reasonNames = map[Reason]string{
	ReasonNone:                 "None",
	ReasonDataUnavailable:      "DataUnavailable",
	ReasonIncompleteContext:    "IncompleteContext",
	ReasonPolicyDisabled:       "PolicyDisabled",
	ReasonWindowClosed:         "WindowClosed",
	ReasonZeroBalance:          "ZeroBalance",
	ReasonTiedRatings:          "TiedRatings",
	ReasonRandomnessFailure:    "RandomnessFailure",
	ReasonExecutionUnavailable: "ExecutionUnavailable",
}

func (r Reason) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	return "Unknown"
}

// MarshalJSON encodes the reason by name.
func (r Reason) MarshalJSON() ([]byte, error) { return json.Marshal(r.String()) }

// UnmarshalJSON decodes a reason name.
func (r *Reason) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = ParseReason(s)
	return nil
}

// ParseReason maps a reason name back to its code. Unknown names map to ReasonNone.
func ParseReason(s string) Reason {
	for r, n := range reasonNames {
		if n == s {
			return r
		}
	}
	return ReasonNone
}

// Decision is the resolver's output: a wager, or a reason for not wagering.
type Decision struct {
	Target       Slot   `json:"target"`
	Amount       int64  `json:"amount"`
	AllIn        bool   `json:"allIn"`
	ClosesWindow bool   `json:"closesWindow"`
	Reason       Reason `json:"reason"`
	Rationale    string `json:"rationale"`
	// Basis names the rule that fixed the amount.
	Basis string `json:"basis,omitempty"`
}

// NoWager builds a skip decision.
func NoWager(reason Reason, rationale string) Decision {
	return Decision{Reason: reason, Rationale: rationale}
}

// IsWager reports whether the decision asks for a placement.
func (d Decision) IsWager() bool {
	return d.Reason == ReasonNone && d.Target != SlotNone && d.Amount > 0
}

// DecisionRecord is the persisted trace of one decision.
type DecisionRecord struct {
	MatchID    string    `json:"matchId"`
	At         time.Time `json:"at"`
	Slot1      string    `json:"slot1"`
	Slot2      string    `json:"slot2"`
	Mode       EventMode `json:"mode"`
	Tier       string    `json:"tier"`
	Target     Slot      `json:"target"`
	TargetName string    `json:"targetName,omitempty"`
	Amount     int64     `json:"amount"`
	Balance    int64     `json:"balance"`
	Placed     bool      `json:"placed"`
	Reason     Reason    `json:"reason"`
	Rationale  string    `json:"rationale"`
}
