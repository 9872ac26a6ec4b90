package service

import (
	"regexp"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/okian/saltyscope/internal/domain/model"
)

var nonNumeric = regexp.MustCompile(`[^0-9.]`)

// ParseBalance reads a page balance such as "$1,234" in whole units.
// Fractions are truncated; anything unreadable is 0.
func ParseBalance(text string) int64 {
	cleaned := nonNumeric.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsNegative() {
		return 0
	}
	return d.Truncate(0).IntPart()
}

// BalanceHolder keeps the last observed balance.
type BalanceHolder struct {
	v atomic.Int64
}

var _ model.BalanceSource = (*BalanceHolder)(nil)

// Update records the balance from an observation. An absent element reads as 0.
func (b *BalanceHolder) Update(text *string) {
	if text == nil {
		b.v.Store(0)
		return
	}
	b.v.Store(ParseBalance(*text))
}

// Balance returns the last observed balance.
func (b *BalanceHolder) Balance() int64 { return b.v.Load() }
