// Package notify renders status snapshots for a human at the terminal.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/olekukonko/tablewriter"

	"github.com/okian/saltyscope/internal/domain/model"
)

// Console implements model.Publisher by printing a small table per change.
// Identical consecutive snapshots are printed once.
type Console struct {
	mu   sync.Mutex
	out  io.Writer
	last string
}

var _ model.Publisher = (*Console)(nil)

// NewConsole writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter writes to w; used by tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Publish prints the snapshot.
func (c *Console) Publish(_ context.Context, s model.Snapshot) error {
	key := fmt.Sprintf("%s|%v|%v|%s|%s|%s|%s", s.MatchID, s.WindowOpen, s.Consumed, s.Rationale,
		s.Slot1.Rating, s.Slot2.Rating, s.Tier)

	c.mu.Lock()
	defer c.mu.Unlock()
	if key == c.last {
		return nil
	}
	c.last = key

	window := "closed"
	switch {
	case s.WindowOpen && s.Consumed:
		window = "open (bet placed)"
	case s.WindowOpen:
		window = "open"
	}
	fmt.Fprintf(c.out, "\n[%s] %s | %s | tier %s | balance %d | %s\n",
		s.At.Format("15:04:05"), s.Mode, window, s.Tier, s.Balance, s.Rationale)

	table := tablewriter.NewWriter(c.out)
	table.Header("Slot", "Fighter", "Elo", "Tier Elo", "Tier")
	for i, f := range []model.Contestant{s.Slot1, s.Slot2} {
		name := f.Identity
		if name == "" {
			name = "-"
		}
		_ = table.Append(fmt.Sprintf("%d", i+1), name, f.Rating.String(), f.TierRating.String(), f.Tier)
	}
	return table.Render()
}
