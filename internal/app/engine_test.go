package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	service "github.com/okian/saltyscope/internal/app"
	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/internal/domain/ratings"
	"github.com/okian/saltyscope/internal/domain/wager"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeRatings struct {
	mu    sync.Mutex
	data  map[string]model.Rating
	calls []string
	gate  chan struct{}
}

func (f *fakeRatings) Lookup(ctx context.Context, identity string) (model.Rating, error) {
	f.mu.Lock()
	f.calls = append(f.calls, identity)
	gate := f.gate
	r, ok := f.data[identity]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Rating{}, ctx.Err()
		}
	}
	if !ok {
		return model.Rating{}, ratings.ErrNotFound
	}
	return r, nil
}

func (f *fakeRatings) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type placement struct {
	target model.Slot
	amount int64
}

type fakeSurface struct {
	mu     sync.Mutex
	placed []placement
	err    error
}

func (f *fakeSurface) Place(_ context.Context, target model.Slot, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.placed = append(f.placed, placement{target, amount})
	return nil
}

func (f *fakeSurface) Placed() []placement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]placement(nil), f.placed...)
}

type fakeRandom struct {
	slot  model.Slot
	err   error
	calls int
}

func (f *fakeRandom) Draw(context.Context) (model.Slot, error) {
	f.calls++
	return f.slot, f.err
}

type sinkRecorder struct {
	mu    sync.Mutex
	snaps []model.Snapshot
}

func (s *sinkRecorder) Publish(_ context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return model.ErrNoSubscriber
}

func (s *sinkRecorder) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.snaps))
	for i, snap := range s.snaps {
		out[i] = snap.Rationale
	}
	return out
}

type memHistory struct {
	recs []model.DecisionRecord
}

func (m *memHistory) RecordDecision(_ context.Context, r model.DecisionRecord) error {
	m.recs = append(m.recs, r)
	return nil
}

func text(s string) *string { return &s }

const matchmakingSignal = "12 more matches until the next tournament!"

func openObs(a, b string) model.Observation {
	return model.Observation{
		EntrySlot1:  a,
		EntrySlot2:  b,
		Accepting:   model.AcceptOpen,
		ModeSignal:  text(matchmakingSignal),
		BalanceText: text("$1,000"),
	}
}

func closedObs(a, b string) model.Observation {
	return model.Observation{
		DisplaySlot1: a,
		DisplaySlot2: b,
		Accepting:    model.AcceptClosed,
		ModeSignal:   text(matchmakingSignal),
		BalanceText:  text("$1,000"),
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
}

func noThreshold() model.Policy {
	p := model.DefaultPolicy()
	p.AllIn = model.Amount{Value: 0, Kind: model.Absolute}
	return p
}

type harness struct {
	engine  *service.Engine
	src     *fakeRatings
	surface *fakeSurface
	random  *fakeRandom
	sink    *sinkRecorder
	history *memHistory
	results chan ratings.Result
}

func newHarness(policy model.Policy) *harness {
	h := &harness{
		src: &fakeRatings{data: map[string]model.Rating{
			"Ryu":    {Rating: model.Known(1600), TierRating: model.Known(1450), Tier: "A"},
			"Ken":    {Rating: model.Known(1400), TierRating: model.Known(1550), Tier: "A"},
			"Guile":  {Rating: model.Known(1500), TierRating: model.Known(1500), Tier: "B"},
			"Blanka": {Rating: model.Known(1700), TierRating: model.Known(1700), Tier: "B"},
		}},
		surface: &fakeSurface{},
		random:  &fakeRandom{slot: model.Slot2},
		sink:    &sinkRecorder{},
		history: &memHistory{},
		results: make(chan ratings.Result, 8),
	}
	h.engine = service.NewEngine(service.Deps{
		Ratings:    h.src,
		Randomness: h.random,
		Surface:    h.surface,
		Publisher:  h.sink,
		History:    h.history,
		Deliver:    func(r ratings.Result) { h.results <- r },
	}, service.WithPolicy(policy), service.WithMatchIDs(sequentialIDs()))
	return h
}

// resolve waits for the next fetch result and applies it on the calling goroutine.
func (h *harness) resolve(ctx context.Context) bool {
	select {
	case r := <-h.results:
		h.engine.ApplyRatings(ctx, r)
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestEngine_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given an engine with rated fighters and no all-in threshold", t, func() {
		h := newHarness(noThreshold())

		Convey("When wagering opens for Ryu vs Ken", func() {
			h.engine.Observe(ctx, openObs("Ryu", "Ken"))
			snap := h.engine.Snapshot()

			Convey("Then ratings are fetched and pending", func() {
				So(snap.Rationale, ShouldEqual, "Fetching data for Ryu and Ken...")
				So(snap.Fetching, ShouldBeTrue)
				So(snap.WindowOpen, ShouldBeTrue)
				So(snap.Slot1.Rating, ShouldResemble, model.Pending)
				So(snap.Balance, ShouldEqual, 1000)
			})

			Convey("And the ratings resolve", func() {
				So(h.resolve(ctx), ShouldBeTrue)
				snap := h.engine.Snapshot()

				Convey("Then 519 is placed on slot 1 and the window is consumed", func() {
					So(h.surface.Placed(), ShouldResemble, []placement{{model.Slot1, 519}})
					So(snap.Rationale, ShouldEqual, "Bet placed: 519 on Ryu!")
					So(snap.Consumed, ShouldBeTrue)
					So(snap.Fetching, ShouldBeFalse)
					So(snap.Tier, ShouldEqual, "A")
					So(h.sink.Messages(), ShouldContain, "Data fetched. Ready to bet!")
					So(h.sink.Messages(), ShouldContain, "Betting 519 on Ryu!")
				})

				Convey("Then the decision is recorded", func() {
					So(len(h.history.recs), ShouldEqual, 1)
					rec := h.history.recs[0]
					So(rec.Placed, ShouldBeTrue)
					So(rec.Target, ShouldEqual, model.Slot1)
					So(rec.TargetName, ShouldEqual, "Ryu")
					So(rec.Amount, ShouldEqual, 519)
					So(rec.MatchID, ShouldEqual, "m1")
				})

				Convey("And identical observations keep arriving", func() {
					for range 5 {
						h.engine.Observe(ctx, openObs("Ryu", "Ken"))
					}

					Convey("Then there is no new match, fetch or wager", func() {
						So(h.src.Calls(), ShouldEqual, 2)
						So(len(h.surface.Placed()), ShouldEqual, 1)
						So(h.engine.Snapshot().MatchID, ShouldEqual, "m1")
						So(len(h.results), ShouldEqual, 0)
					})
				})

				Convey("And a rebet is requested", func() {
					h.engine.Rebet(ctx)

					Convey("Then the consumed window refuses it", func() {
						So(h.engine.Snapshot().Reason, ShouldEqual, model.ReasonWindowClosed)
						So(h.engine.Snapshot().Rationale, ShouldEqual, "Betting Closed. Cannot bet.")
						So(len(h.surface.Placed()), ShouldEqual, 1)
					})
				})

				Convey("And the window closes with no names on display", func() {
					h.engine.Observe(ctx, closedObs("", ""))
					snap := h.engine.Snapshot()

					Convey("Then both contestants and the tier are cleared", func() {
						So(snap.Rationale, ShouldEqual, "Betting Closed.")
						So(snap.WindowOpen, ShouldBeFalse)
						So(snap.Slot1, ShouldResemble, model.EmptyContestant())
						So(snap.Slot2, ShouldResemble, model.EmptyContestant())
						So(snap.Tier, ShouldEqual, model.TierUnknown)
					})
				})
			})
		})

		Convey("When a match is seen while closed and its window opens later", func() {
			h.engine.Observe(ctx, closedObs("Ryu", "Ken"))
			So(h.resolve(ctx), ShouldBeTrue)
			afterFetch := h.engine.Snapshot()

			h.engine.Observe(ctx, openObs("Ryu", "Ken"))

			Convey("Then nothing is placed while closed and the opening decides at once", func() {
				So(afterFetch.Reason, ShouldEqual, model.ReasonWindowClosed)
				So(h.src.Calls(), ShouldEqual, 2)
				So(h.surface.Placed(), ShouldResemble, []placement{{model.Slot1, 519}})
			})
		})
	})
}

func TestEngine_CoinFlip(t *testing.T) {
	ctx := context.Background()

	Convey("Given an exhibition between placeholder teams", t, func() {
		h := newHarness(model.DefaultPolicy())
		obs := openObs("Team B", "Team A")
		obs.ModeSignal = text("Exhibition matches!")

		Convey("When the window opens", func() {
			h.engine.Observe(ctx, obs)

			Convey("Then ratings are never fetched and 1 unit is placed on the drawn slot", func() {
				So(h.src.Calls(), ShouldEqual, 0)
				So(h.random.calls, ShouldEqual, 1)
				So(h.surface.Placed(), ShouldResemble, []placement{{model.Slot2, 1}})
				So(h.engine.Snapshot().Rationale, ShouldEqual, "Bet placed: 1 on Team A!")
				So(h.engine.Snapshot().Mode, ShouldEqual, model.Exhibition)
			})

			Convey("And the same observation repeats", func() {
				h.engine.Observe(ctx, obs)

				Convey("Then the coin is not flipped again", func() {
					So(h.random.calls, ShouldEqual, 1)
					So(len(h.surface.Placed()), ShouldEqual, 1)
				})
			})
		})

		Convey("When the draw fails", func() {
			h.random.err = errors.New("quota exceeded")
			h.random.slot = model.SlotNone
			h.engine.Observe(ctx, obs)

			Convey("Then no wager is made", func() {
				So(h.engine.Snapshot().Reason, ShouldEqual, model.ReasonRandomnessFailure)
				So(h.surface.Placed(), ShouldBeEmpty)
			})
		})
	})
}

func TestEngine_CoinFlipDuringFetch(t *testing.T) {
	ctx := context.Background()

	Convey("Given a rating fetch for Ryu vs Ken that has not resolved", t, func() {
		h := newHarness(model.DefaultPolicy())
		h.src.gate = make(chan struct{})
		h.engine.Observe(ctx, closedObs("Ryu", "Ken"))
		So(h.engine.Snapshot().Fetching, ShouldBeTrue)

		Convey("When a placeholder exhibition opens before it resolves", func() {
			obs := openObs("Team A", "Team B")
			obs.ModeSignal = text("Exhibition matches!")
			h.engine.Observe(ctx, obs)

			Convey("Then the coin is flipped and 1 unit is placed at once", func() {
				So(h.random.calls, ShouldEqual, 1)
				So(h.surface.Placed(), ShouldResemble, []placement{{model.Slot2, 1}})
				So(h.engine.Snapshot().Rationale, ShouldEqual, "Bet placed: 1 on Team B!")
			})

			Convey("And the stale result arrives and the observation repeats", func() {
				close(h.src.gate)
				So(h.resolve(ctx), ShouldBeTrue)
				for range 3 {
					h.engine.Observe(ctx, obs)
				}

				Convey("Then there is still exactly one draw and one wager", func() {
					So(h.random.calls, ShouldEqual, 1)
					So(len(h.surface.Placed()), ShouldEqual, 1)
					So(h.engine.Snapshot().MatchID, ShouldEqual, "m2")
					So(h.engine.Snapshot().Consumed, ShouldBeTrue)
				})
			})
		})
	})
}

func TestEngine_StaleResolution(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fetch for match A that has not resolved", t, func() {
		h := newHarness(noThreshold())
		h.src.gate = make(chan struct{})
		h.engine.Observe(ctx, closedObs("Ryu", "Ken"))
		So(h.engine.Snapshot().MatchID, ShouldEqual, "m1")

		Convey("When match B replaces it before resolution", func() {
			h.engine.Observe(ctx, closedObs("Guile", "Blanka"))
			before := h.engine.Snapshot()
			close(h.src.gate)

			So(h.resolve(ctx), ShouldBeTrue)
			afterStale := h.engine.Snapshot()

			Convey("Then match B's ratings stay pending after A's result arrives", func() {
				So(before.MatchID, ShouldEqual, "m2")
				So(afterStale.MatchID, ShouldEqual, "m2")
				So(afterStale.Slot1.Identity, ShouldEqual, "Guile")
				So(afterStale.Slot1.Rating, ShouldResemble, model.Pending)
				So(afterStale.Slot2.Rating, ShouldResemble, model.Pending)
				So(afterStale.Tier, ShouldEqual, model.TierUnknown)
			})

			Convey("Then B is fetched next and resolves on its own", func() {
				So(afterStale.Rationale, ShouldEqual, "Fetching data for Guile and Blanka...")
				So(h.resolve(ctx), ShouldBeTrue)
				snap := h.engine.Snapshot()
				So(snap.Slot1.Rating, ShouldResemble, model.Known(1500))
				So(snap.Slot2.Rating, ShouldResemble, model.Known(1700))
				So(snap.Tier, ShouldEqual, "B")
			})
		})
	})
}

func TestEngine_Failures(t *testing.T) {
	ctx := context.Background()

	Convey("Given an engine", t, func() {
		h := newHarness(noThreshold())

		Convey("When a fighter is unknown to the rating source", func() {
			h.engine.Observe(ctx, openObs("Ryu", "Dan"))
			So(h.resolve(ctx), ShouldBeTrue)
			snap := h.engine.Snapshot()

			Convey("Then data is reported unavailable and nothing is placed", func() {
				So(snap.Reason, ShouldEqual, model.ReasonDataUnavailable)
				So(snap.Rationale, ShouldEqual, "Could not fetch data for one or both fighters.")
				So(snap.Slot2.Rating, ShouldResemble, model.NotFound)
				So(h.surface.Placed(), ShouldBeEmpty)
				So(h.history.recs[0].Reason, ShouldEqual, model.ReasonDataUnavailable)
			})

			Convey("And the next observation triggers a refetch", func() {
				h.engine.Observe(ctx, openObs("Ryu", "Dan"))

				Convey("Then a new fetch is dispatched for the same match", func() {
					So(h.engine.Snapshot().Fetching, ShouldBeTrue)
					So(h.engine.Snapshot().MatchID, ShouldEqual, "m1")
					So(h.resolve(ctx), ShouldBeTrue)
					So(h.src.Calls(), ShouldEqual, 4)
				})
			})
		})

		Convey("When the acting surface is unavailable", func() {
			h.surface.err = wager.ErrUnavailable
			h.engine.Observe(ctx, openObs("Ryu", "Ken"))
			So(h.resolve(ctx), ShouldBeTrue)
			snap := h.engine.Snapshot()

			Convey("Then the error is surfaced and the window stays consumed", func() {
				So(snap.Reason, ShouldEqual, model.ReasonExecutionUnavailable)
				So(snap.Rationale, ShouldStartWith, "Error placing bet:")
				So(snap.Consumed, ShouldBeTrue)

				h.surface.err = nil
				h.engine.Rebet(ctx)
				So(h.engine.Snapshot().Reason, ShouldEqual, model.ReasonWindowClosed)
				So(h.surface.Placed(), ShouldBeEmpty)
			})
		})

		Convey("When betting is disabled by a policy update", func() {
			p := noThreshold()
			p.Mode = model.ModeDisabled
			h.engine.SetPolicy(ctx, p)
			h.engine.Observe(ctx, openObs("Ryu", "Ken"))
			So(h.resolve(ctx), ShouldBeTrue)

			Convey("Then nothing is placed", func() {
				So(h.engine.Snapshot().Rationale, ShouldEqual, "Betting Disabled.")
				So(h.engine.Policy().Mode, ShouldEqual, model.ModeDisabled)
				So(h.surface.Placed(), ShouldBeEmpty)
			})
		})

		Convey("When the balance element is missing", func() {
			obs := openObs("Ryu", "Ken")
			obs.BalanceText = nil
			h.engine.Observe(ctx, obs)
			So(h.resolve(ctx), ShouldBeTrue)

			Convey("Then the balance reads as zero", func() {
				So(h.engine.Snapshot().Reason, ShouldEqual, model.ReasonZeroBalance)
				So(h.surface.Placed(), ShouldBeEmpty)
			})
		})

		Convey("When the acceptance indicators disappear mid-match", func() {
			h.engine.Observe(ctx, openObs("Ryu", "Ken"))
			So(h.resolve(ctx), ShouldBeTrue)
			h.engine.Observe(ctx, model.Observation{})
			snap := h.engine.Snapshot()

			Convey("Then the engine waits for the next match", func() {
				So(snap.Rationale, ShouldEqual, "Waiting for match...")
				So(snap.WindowOpen, ShouldBeFalse)
				So(snap.Fetching, ShouldBeFalse)
				So(snap.Slot1, ShouldResemble, model.EmptyContestant())
			})
		})
	})
}

func TestEngine_Restore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an engine restored from a snapshot with known ratings", t, func() {
		h := newHarness(noThreshold())
		h.engine.Restore(ctx, model.Snapshot{
			MatchID: "saved",
			Slot1:   model.Contestant{Identity: "Ryu", Rating: model.Known(1600), TierRating: model.Known(1450), Tier: "A"},
			Slot2:   model.Contestant{Identity: "Ken", Rating: model.Known(1400), TierRating: model.Known(1550), Tier: "A"},
			Tier:    "A",
		})

		Convey("When the same fighters open for wagering", func() {
			h.engine.Observe(ctx, openObs("Ryu", "Ken"))

			Convey("Then the saved ratings are used without a fetch", func() {
				So(h.src.Calls(), ShouldEqual, 0)
				So(h.surface.Placed(), ShouldResemble, []placement{{model.Slot1, 519}})
				So(h.engine.Snapshot().MatchID, ShouldEqual, "saved")
			})
		})

		Convey("When the engine is reset", func() {
			h.engine.Reset(ctx)

			Convey("Then the saved match is forgotten", func() {
				So(h.engine.Snapshot().MatchID, ShouldEqual, "")
				So(h.engine.Snapshot().Rationale, ShouldEqual, "Waiting for match...")
			})
		})
	})
}
