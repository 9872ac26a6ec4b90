package ratings_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/internal/domain/ratings"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeSource struct {
	mu    sync.Mutex
	calls []string
	data  map[string]model.Rating
	errs  map[string]error
	gate  chan struct{}
}

func (f *fakeSource) Lookup(ctx context.Context, identity string) (model.Rating, error) {
	f.mu.Lock()
	f.calls = append(f.calls, identity)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return model.Rating{}, ctx.Err()
		}
	}
	if err := f.errs[identity]; err != nil {
		return model.Rating{}, err
	}
	r, ok := f.data[identity]
	if !ok {
		return model.Rating{}, ratings.ErrNotFound
	}
	return r, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func rated(v float64, tier string) model.Rating {
	return model.Rating{Rating: model.Known(v), TierRating: model.Known(v - 100), Tier: tier}
}

func pendingMatch(id, a, b string) model.MatchContext {
	return model.MatchContext{
		ID:   id,
		A:    model.PendingContestant(a),
		B:    model.PendingContestant(b),
		Tier: model.TierUnknown,
	}
}

func await(results <-chan ratings.Result) ratings.Result {
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		return ratings.Result{}
	}
}

func TestCoordinatorFetch(t *testing.T) {
	ctx := context.Background()

	Convey("Given a coordinator over a rating source", t, func() {
		src := &fakeSource{data: map[string]model.Rating{
			"Ryu": rated(1600, "A"),
			"Ken": rated(1400, "A"),
			"Dan": rated(900, model.TierUnknown),
		}}
		results := make(chan ratings.Result, 4)
		c := ratings.NewCoordinator(src, func(r ratings.Result) { results <- r }, ratings.WithTimeout(time.Second))

		Convey("When both contestants are known", func() {
			m := pendingMatch("m1", "Ryu", "Ken")
			c.Supersede(m.ID)
			d := c.FetchIfNeeded(ctx, m)

			Convey("Then a single cycle is dispatched and guarded", func() {
				So(d, ShouldEqual, ratings.Dispatched)
				So(c.InFlight(), ShouldBeTrue)
				So(c.FetchIfNeeded(ctx, m), ShouldEqual, ratings.Skipped)

				res := await(results)
				got, done := c.Complete(ctx, m, res)

				So(done.Stale, ShouldBeFalse)
				So(done.Ready, ShouldBeTrue)
				So(c.InFlight(), ShouldBeFalse)
				So(src.callCount(), ShouldEqual, 2)
				So(got.A.Rating, ShouldResemble, model.Known(1600))
				So(got.B.TierRating, ShouldResemble, model.Known(1300))
				So(got.Tier, ShouldEqual, "A")
			})
		})

		Convey("When one contestant is not found", func() {
			m := pendingMatch("m1", "Zangief", "Ken")
			c.Supersede(m.ID)
			c.FetchIfNeeded(ctx, m)
			got, done := c.Complete(ctx, m, await(results))

			Convey("Then it is marked not-found and the match is not ready", func() {
				So(done.Ready, ShouldBeFalse)
				So(got.A.Rating, ShouldResemble, model.NotFound)
				So(got.A.TierRating, ShouldResemble, model.NotFound)
				So(got.A.Tier, ShouldEqual, model.TierUnknown)
				So(got.Tier, ShouldEqual, "A")
			})
		})

		Convey("When a lookup fails in transport", func() {
			src.errs = map[string]error{"Ken": errors.New("connection reset")}
			m := pendingMatch("m1", "Ryu", "Ken")
			c.Supersede(m.ID)
			c.FetchIfNeeded(ctx, m)
			got, done := c.Complete(ctx, m, await(results))

			Convey("Then it degrades to not-found", func() {
				So(done.Ready, ShouldBeFalse)
				So(got.B.Rating, ShouldResemble, model.NotFound)
			})
		})

		Convey("When neither contestant has a tier", func() {
			m := pendingMatch("m1", "Dan", "Dan")
			c.Supersede(m.ID)
			c.FetchIfNeeded(ctx, m)
			got, done := c.Complete(ctx, m, await(results))

			Convey("Then the match tier stays unknown but the match is ready", func() {
				So(done.Ready, ShouldBeTrue)
				So(got.Tier, ShouldEqual, model.TierUnknown)
			})
		})

		Convey("When the match is a coin flip", func() {
			m := pendingMatch("m1", "Team A", "Team B")
			m.Mode, m.CoinFlip = model.Exhibition, true
			c.Supersede(m.ID)

			Convey("Then the source is never called and the guard is not held", func() {
				So(c.FetchIfNeeded(ctx, m), ShouldEqual, ratings.CoinFlip)
				So(c.InFlight(), ShouldBeFalse)
				So(src.callCount(), ShouldEqual, 0)
			})
		})

		Convey("When a coin flip starts while an earlier fetch is running", func() {
			prev := pendingMatch("m1", "Ryu", "Ken")
			c.Supersede(prev.ID)
			So(c.FetchIfNeeded(ctx, prev), ShouldEqual, ratings.Dispatched)

			m := pendingMatch("m2", "Team A", "Team B")
			m.Mode, m.CoinFlip = model.Exhibition, true
			c.Supersede(m.ID)

			Convey("Then the coin flip is not held back by the guard", func() {
				So(c.InFlight(), ShouldBeTrue)
				So(c.FetchIfNeeded(ctx, m), ShouldEqual, ratings.CoinFlip)

				_, done := c.Complete(ctx, m, await(results))
				So(done.Stale, ShouldBeTrue)
				So(c.InFlight(), ShouldBeFalse)
			})
		})

		Convey("When the match was superseded before dispatch", func() {
			m := pendingMatch("m1", "Ryu", "Ken")
			c.Supersede("m2")

			Convey("Then nothing is dispatched", func() {
				So(c.FetchIfNeeded(ctx, m), ShouldEqual, ratings.Skipped)
				So(c.InFlight(), ShouldBeFalse)
			})
		})

		Convey("When identities are missing", func() {
			m := pendingMatch("m1", "Ryu", "")
			c.Supersede(m.ID)

			Convey("Then nothing is dispatched", func() {
				So(c.FetchIfNeeded(ctx, m), ShouldEqual, ratings.Skipped)
			})
		})
	})
}

func TestCoordinatorSupersededRace(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fetch for match A blocked in the source", t, func() {
		src := &fakeSource{
			data: map[string]model.Rating{"Ryu": rated(1600, "S"), "Ken": rated(1400, "S")},
			gate: make(chan struct{}),
		}
		results := make(chan ratings.Result, 2)
		c := ratings.NewCoordinator(src, func(r ratings.Result) { results <- r })

		matchA := pendingMatch("A", "Ryu", "Ken")
		c.Supersede(matchA.ID)
		So(c.FetchIfNeeded(ctx, matchA), ShouldEqual, ratings.Dispatched)

		Convey("When match B starts before the lookups resolve", func() {
			matchB := pendingMatch("B", "Guile", "Blanka")
			c.Supersede(matchB.ID)
			close(src.gate)

			res := await(results)
			got, done := c.Complete(ctx, matchB, res)

			Convey("Then match B is untouched and the guard is released", func() {
				So(res.MatchID, ShouldEqual, "A")
				So(done.Stale, ShouldBeTrue)
				So(done.Ready, ShouldBeFalse)
				So(got, ShouldResemble, matchB)
				So(got.A.Rating, ShouldResemble, model.Pending)
				So(got.B.Rating, ShouldResemble, model.Pending)
				So(c.InFlight(), ShouldBeFalse)
			})
		})

		Convey("When the coordinator is reset and a new cycle starts", func() {
			c.Reset()
			matchC := pendingMatch("C", "Ryu", "Ken")
			c.Supersede(matchC.ID)
			So(c.FetchIfNeeded(ctx, matchC), ShouldEqual, ratings.Dispatched)
			close(src.gate)

			byMatch := map[string]ratings.Result{}
			for i := 0; i < 2; i++ {
				r := await(results)
				byMatch[r.MatchID] = r
			}

			Convey("Then the old cycle's result does not release the new guard", func() {
				_, done := c.Complete(ctx, matchC, byMatch["A"])
				So(done.Stale, ShouldBeTrue)
				So(c.InFlight(), ShouldBeTrue)

				got, done := c.Complete(ctx, matchC, byMatch["C"])
				So(done.Stale, ShouldBeFalse)
				So(done.Ready, ShouldBeTrue)
				So(got.A.Rating, ShouldResemble, model.Known(1600))
				So(c.InFlight(), ShouldBeFalse)
			})
		})
	})
}
