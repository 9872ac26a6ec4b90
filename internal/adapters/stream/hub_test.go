package stream_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/saltyscope/internal/adapters/stream"
	"github.com/okian/saltyscope/internal/domain/model"
	"github.com/okian/saltyscope/internal/domain/wager"
	. "github.com/smartystreets/goconvey/convey"
)

func dial(srv *httptest.Server, role string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if role != "" {
		url += "?role=" + role
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	So(err, ShouldBeNil)
	return conn
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func read(conn *websocket.Conn) stream.ServerMessage {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m stream.ServerMessage
	So(conn.ReadJSON(&m), ShouldBeNil)
	return m
}

func TestHub(t *testing.T) {
	ctx := context.Background()

	Convey("Given a hub behind a test server", t, func() {
		hub := stream.NewHub(ctx)
		srv := httptest.NewServer(hub)
		Reset(func() {
			hub.Close()
			srv.Close()
		})

		Convey("When nobody is connected", func() {
			err := hub.Publish(ctx, model.Snapshot{Rationale: "Waiting for match..."})
			perr := hub.Place(ctx, model.Slot1, 10)

			Convey("Then publishing reports no subscriber and placing is unavailable", func() {
				So(err, ShouldEqual, model.ErrNoSubscriber)
				So(errors.Is(perr, wager.ErrUnavailable), ShouldBeTrue)
			})
		})

		Convey("When a viewer is connected", func() {
			viewer := dial(srv, "")
			defer viewer.Close()
			So(waitFor(func() bool { v, _ := hub.Count(); return v == 1 }), ShouldBeTrue)

			So(hub.Publish(ctx, model.Snapshot{MatchID: "m1", Rationale: "Betting Open!", WindowOpen: true}), ShouldBeNil)

			Convey("Then it receives the status", func() {
				m := read(viewer)
				So(m.Type, ShouldEqual, stream.TypeStatus)
				So(m.Status, ShouldNotBeNil)
				So(m.Status.Rationale, ShouldEqual, "Betting Open!")
				So(m.Status.WindowOpen, ShouldBeTrue)
			})

			Convey("Then it still cannot act", func() {
				So(errors.Is(hub.Place(ctx, model.Slot1, 1), wager.ErrUnavailable), ShouldBeTrue)
			})
		})

		Convey("When an actor is connected", func() {
			actor := dial(srv, "actor")
			defer actor.Close()
			So(waitFor(func() bool { _, a := hub.Count(); return a == 1 }), ShouldBeTrue)

			answer := func(ok bool, msg string) <-chan error {
				errc := make(chan error, 1)
				go func() {
					errc <- hub.Place(ctx, model.Slot2, 42)
				}()
				m := read(actor)
				So(m.Type, ShouldEqual, stream.TypePlace)
				So(m.Slot, ShouldEqual, 2)
				So(m.Amount, ShouldEqual, 42)
				So(actor.WriteJSON(stream.ClientMessage{Type: stream.TypeAck, ID: m.ID, OK: ok, Error: msg}), ShouldBeNil)
				return errc
			}

			Convey("Then an ok ack completes the placement", func() {
				So(<-answer(true, ""), ShouldBeNil)
			})

			Convey("Then a negative ack is a rejection", func() {
				err := <-answer(false, "button missing")
				So(errors.Is(err, stream.ErrRejected), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "button missing")
			})

			Convey("Then an unanswered placement ends with its context", func() {
				cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
				defer cancel()
				err := hub.Place(cctx, model.Slot1, 1)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("When a client pings", func() {
			viewer := dial(srv, "")
			defer viewer.Close()
			So(viewer.WriteJSON(stream.ClientMessage{Type: stream.TypePing}), ShouldBeNil)

			Convey("Then it gets a pong", func() {
				So(read(viewer).Type, ShouldEqual, stream.TypePong)
			})
		})

		Convey("When a client disconnects", func() {
			viewer := dial(srv, "")
			So(waitFor(func() bool { v, _ := hub.Count(); return v == 1 }), ShouldBeTrue)
			_ = viewer.Close()

			Convey("Then it is unregistered", func() {
				So(waitFor(func() bool { v, _ := hub.Count(); return v == 0 }), ShouldBeTrue)
			})
		})
	})
}

func TestParseRole(t *testing.T) {
	Convey("Roles default to viewer", t, func() {
		So(stream.ParseRole("actor"), ShouldEqual, stream.RoleActor)
		So(stream.ParseRole(""), ShouldEqual, stream.RoleViewer)
		So(stream.ParseRole("admin"), ShouldEqual, stream.RoleViewer)
	})
}
