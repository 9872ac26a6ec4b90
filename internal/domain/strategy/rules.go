package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/pkg/logger"
)

// Status texts shown to the operator.
const (
	msgDisabled          = "Betting Disabled."
	msgClosed            = "Betting Closed. Cannot bet."
	msgNamesIncomplete   = "Fighter names incomplete. Cannot bet."
	msgZeroBalance       = "Balance is 0. Cannot bet."
	msgCoinFlipFailed    = "Coin flip failed. Skipping bet."
	msgRatingsIncomplete = "Fighter data incomplete. Cannot bet."
	msgTied              = "Fighters equal. Skipping bet."
)

// Basis labels.
const (
	basisCoinFlip        = "coin_flip"
	basisExhibitionUnit  = "exhibition_unit"
	basisTournamentAllIn = "tournament_all_in"
	basisThresholdAllIn  = "threshold_all_in"
	basisXPBet           = "xp_bet"
)

// plan accumulates what earlier rules fixed.
type plan struct {
	in          Input
	target      model.Slot
	amount      int64
	amountFixed bool
	allIn       bool
	basis       string
	stat1       float64
	stat2       float64
}

func (p *plan) fixAmount(amount int64, basis string) {
	p.amount = amount
	p.amountFixed = true
	p.basis = basis
}

// rule is one step of the chain. done ends evaluation with d.
type rule struct {
	name  string
	apply func(ctx context.Context, r *Resolver, p *plan) (d model.Decision, done bool)
}

func skip(reason model.Reason, rationale string) (model.Decision, bool) {
	return model.NoWager(reason, rationale), true
}

func next() (model.Decision, bool) { return model.Decision{}, false }

// defaultRules lists the chain in priority order. Amount rules 6 to 8 form a
// precedence chain: the first that applies fixes the amount.
func defaultRules() []rule {
	return []rule{
		{"policy_disabled", policyDisabled},
		{"window_closed", windowClosed},
		{"identities", identities},
		{"zero_balance", zeroBalance},
		{"coin_flip", coinFlip},
		{"exhibition_unit", exhibitionUnit},
		{"tournament_all_in", tournamentAllIn},
		{"threshold_all_in", thresholdAllIn},
		{"target", target},
		{"amount", amount},
		{"clamp", clamp},
	}
}

func policyDisabled(_ context.Context, _ *Resolver, p *plan) (model.Decision, bool) {
	if p.in.Policy.Mode == model.ModeDisabled {
		return skip(model.ReasonPolicyDisabled, msgDisabled)
	}
	return next()
}

func windowClosed(_ context.Context, _ *Resolver, p *plan) (model.Decision, bool) {
	if !p.in.WindowOpen {
		return skip(model.ReasonWindowClosed, msgClosed)
	}
	return next()
}

func identities(_ context.Context, _ *Resolver, p *plan) (model.Decision, bool) {
	if !p.in.Match.HasIdentities() {
		return skip(model.ReasonIncompleteContext, msgNamesIncomplete)
	}
	return next()
}

func zeroBalance(_ context.Context, _ *Resolver, p *plan) (model.Decision, bool) {
	if p.in.Balance <= 0 {
		return skip(model.ReasonZeroBalance, msgZeroBalance)
	}
	return next()
}

func coinFlip(ctx context.Context, r *Resolver, p *plan) (model.Decision, bool) {
	if !p.in.Match.CoinFlip || !p.in.Fresh {
		return next()
	}
	if r.random == nil {
		return skip(model.ReasonRandomnessFailure, msgCoinFlipFailed)
	}
	dctx, cancel := context.WithTimeout(ctx, r.drawTimeout)
	defer cancel()
	slot, err := r.random.Draw(dctx)
	if err != nil || slot == model.SlotNone {
		r.log.Warn(ctx, "coin flip failed", logger.Error(err))
		return skip(model.ReasonRandomnessFailure, msgCoinFlipFailed)
	}
	p.target = slot
	p.fixAmount(1, basisCoinFlip)
	return next()
}

func exhibitionUnit(_ context.Context, _ *Resolver, p *plan) (model.Decision, bool) {
	if !p.amountFixed && p.in.Policy.OneUnitOnExhibition && p.in.Match.Mode == model.Exhibition {
		p.fixAmount(1, basisExhibitionUnit)
	}
	return next()
}

func tournamentAllIn(_ context.Context, _ *Resolver, p *plan) (model.Decision, bool) {
	if !p.amountFixed && p.in.Policy.AllInOnTournament && p.in.Match.Mode == model.Tournament {
		p.fixAmount(p.in.Balance, basisTournamentAllIn)
		p.allIn = true
	}
	return next()
}

func thresholdAllIn(_ context.Context, _ *Resolver, p *plan) (model.Decision, bool) {
	if p.amountFixed {
		return next()
	}
	if float64(p.in.Balance) <= p.in.Policy.AllIn.Of(p.in.Balance) {
		p.fixAmount(p.in.Balance, basisThresholdAllIn)
		p.allIn = true
	}
	return next()
}

func target(ctx context.Context, r *Resolver, p *plan) (model.Decision, bool) {
	if p.target != model.SlotNone {
		return next()
	}
	a, b := p.in.Match.A.Rating, p.in.Match.B.Rating
	if p.in.Policy.Mode == model.ModeTieredElo {
		a, b = p.in.Match.A.TierRating, p.in.Match.B.TierRating
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return skip(model.ReasonIncompleteContext, msgRatingsIncomplete)
	}
	p.stat1, p.stat2 = a.Value, b.Value

	switch {
	case p.stat1 > p.stat2:
		p.target = model.Slot1
	case p.stat2 > p.stat1:
		p.target = model.Slot2
	default:
		return skip(model.ReasonTiedRatings, msgTied)
	}
	if p.in.Policy.UpsetMode {
		p.target = p.target.Other()
		r.log.Debug(ctx, "upset mode inverted target", logger.String("target", p.target.String()))
	}
	return next()
}

func amount(_ context.Context, _ *Resolver, p *plan) (model.Decision, bool) {
	if p.amountFixed {
		return next()
	}
	if p.in.Policy.Mode == model.ModeXPBet {
		p.fixAmount(1, basisXPBet)
		return next()
	}
	conf := Confidence(p.stat1, p.stat2)
	limit := p.in.Policy.MaxBet
	var raw float64
	if limit.Kind == model.Percentage {
		raw = limit.Value / 100 * float64(p.in.Balance) * conf
	} else {
		raw = limit.Value * conf
	}
	// bound in float first; huge caps would wrap on conversion
	raw = math.Min(raw, float64(p.in.Balance))
	p.fixAmount(int64(math.Round(raw)), fmt.Sprintf("confidence %.4f", conf))
	return next()
}

func clamp(_ context.Context, _ *Resolver, p *plan) (model.Decision, bool) {
	amt := Clamp(p.amount, p.in.Balance)
	name := p.in.Match.Contestant(p.target).Identity
	return model.Decision{
		Target:       p.target,
		Amount:       amt,
		AllIn:        p.allIn,
		ClosesWindow: true,
		Reason:       model.ReasonNone,
		Rationale:    wagerRationale(amt, name),
		Basis:        p.basis,
	}, true
}
