package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/saltyscope/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWindowLedger(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new window ledger", t, func() {
		d := dedupe.NewWindowLedger()

		Convey("When a window is claimed for the first time", func() {
			first := d.Claim(ctx, "match-1#1")

			Convey("Then the claim succeeds and a second one fails", func() {
				So(first, ShouldBeTrue)
				So(d.Claim(ctx, "match-1#1"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the same match reopens its window", func() {
			d.Claim(ctx, "match-1#1")

			Convey("Then the new window key is independent", func() {
				So(d.Claim(ctx, "match-1#2"), ShouldBeTrue)
			})
		})

		Convey("When nothing was claimed yet", func() {
			Convey("Then the ledger is empty", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a bounded ledger", t, func() {
		d := dedupe.NewWindowLedger(dedupe.WithMaxSize(2))

		Convey("When more keys than capacity are claimed", func() {
			d.Claim(ctx, "a")
			d.Claim(ctx, "b")
			d.Claim(ctx, "c")

			Convey("Then the oldest key is forgotten", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.Claim(ctx, "c"), ShouldBeFalse)
				So(d.Claim(ctx, "a"), ShouldBeTrue)
			})
		})

		Convey("When the ring wraps several times", func() {
			for _, k := range []string{"a", "b", "c", "d", "e"} {
				d.Claim(ctx, k)
			}

			Convey("Then only the two newest keys are held", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.Claim(ctx, "e"), ShouldBeFalse)
				So(d.Claim(ctx, "d"), ShouldBeFalse)
				So(d.Claim(ctx, "c"), ShouldBeTrue)
			})
		})
	})

	Convey("Given a non-positive size", t, func() {
		d := dedupe.NewWindowLedger(dedupe.WithMaxSize(0))

		Convey("Then it still remembers the latest key", func() {
			So(d.Claim(ctx, "a"), ShouldBeTrue)
			So(d.Claim(ctx, "a"), ShouldBeFalse)
		})
	})
}

func TestWindowLedgerConcurrency(t *testing.T) {
	Convey("Given many goroutines racing for the same window", t, func() {
		d := dedupe.NewWindowLedger()
		var winners atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if d.Claim(context.Background(), "match#1") {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one claim wins", func() {
			So(winners.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given distinct windows claimed concurrently", t, func() {
		d := dedupe.NewWindowLedger(dedupe.WithMaxSize(1000))
		var wg sync.WaitGroup
		for g := 0; g < 10; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					d.Claim(context.Background(), fmt.Sprintf("m-%d#%d", g, j))
				}
			}(g)
		}
		wg.Wait()

		Convey("Then all of them are recorded", func() {
			So(d.Size(), ShouldEqual, 500)
		})
	})
}
