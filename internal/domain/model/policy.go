package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// PolicyMode selects how the resolver compares contestants and sizes bets.
type PolicyMode string

// Policy modes.
const (
	ModeElo       PolicyMode = "elo"
	ModeTieredElo PolicyMode = "tiered-elo"
	ModeXPBet     PolicyMode = "xp-bet"
	ModeDisabled  PolicyMode = "disabled"
)

// AmountKind says whether an Amount is a share of the balance or a fixed value.
type AmountKind string

// Amount kinds.
const (
	Percentage AmountKind = "percentage"
	Absolute   AmountKind = "absolute"
)

// ErrInvalidPolicy is returned by Policy.Validate.
var ErrInvalidPolicy = errors.New("invalid policy")

// Amount is a value paired with its interpretation.
type Amount struct {
	Value float64    `json:"value" koanf:"value"`
	Kind  AmountKind `json:"kind" koanf:"kind"`
}

// Of resolves the amount against a balance.
func (a Amount) Of(balance int64) float64 {
	if a.Kind == Percentage {
		return a.Value / 100 * float64(balance)
	}
	return a.Value
}

// Policy is the user's wagering configuration. The engine only reads it.
type Policy struct {
	Mode                PolicyMode `json:"mode"`
	MaxBet              Amount     `json:"maxBet"`
	AllIn               Amount     `json:"allIn"`
	UpsetMode           bool       `json:"upsetMode"`
	AllInOnTournament   bool       `json:"allInOnTournament"`
	OneUnitOnExhibition bool       `json:"oneUnitOnExhibition"`
}

// DefaultPolicy mirrors the extension's factory preferences.
func DefaultPolicy() Policy {
	return Policy{
		Mode:   ModeElo,
		MaxBet: Amount{Value: 100, Kind: Percentage},
		AllIn:  Amount{Value: 1000, Kind: Absolute},
	}
}

// ParsePolicyMode normalizes a mode name.
func ParsePolicyMode(s string) (PolicyMode, error) {
	switch m := PolicyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeElo, ModeTieredElo, ModeXPBet, ModeDisabled:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, s)
	}
}

// ParseAmountKind normalizes a kind name. "%" and "dollar"/"$" are accepted aliases.
func ParseAmountKind(s string) (AmountKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percentage", "percent", "%":
		return Percentage, nil
	case "absolute", "dollar", "$":
		return Absolute, nil
	default:
		return "", fmt.Errorf("%w: unknown amount kind %q", ErrInvalidPolicy, s)
	}
}

// Normalize canonicalizes names and validates values.
func (p Policy) Normalize() (Policy, error) {
	mode, err := ParsePolicyMode(string(p.Mode))
	if err != nil {
		return Policy{}, err
	}
	p.Mode = mode

	if p.MaxBet.Kind, err = ParseAmountKind(string(p.MaxBet.Kind)); err != nil {
		return Policy{}, fmt.Errorf("maxBet: %w", err)
	}
	if p.AllIn.Kind, err = ParseAmountKind(string(p.AllIn.Kind)); err != nil {
		return Policy{}, fmt.Errorf("allIn: %w", err)
	}
	for name, a := range map[string]Amount{"maxBet": p.MaxBet, "allIn": p.AllIn} {
		if a.Value < 0 || math.IsNaN(a.Value) || math.IsInf(a.Value, 0) {
			return Policy{}, fmt.Errorf("%w: %s value must be a non-negative number", ErrInvalidPolicy, name)
		}
	}
	return p, nil
}
