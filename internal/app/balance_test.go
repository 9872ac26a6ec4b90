package service_test

import (
	"testing"

	service "github.com/okian/saltyscope/internal/app"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseBalance(t *testing.T) {
	Convey("Given page balance texts", t, func() {
		cases := map[string]int64{
			"$1,000":      1000,
			"$12,345,678": 12345678,
			" 250 ":       250,
			"$99.99":      99,
			"":            0,
			"$":           0,
			"n/a":         0,
			"1.2.3":       0,
		}

		Convey("Then each parses to whole units", func() {
			for text, want := range cases {
				So(service.ParseBalance(text), ShouldEqual, want)
			}
		})
	})

	Convey("Given a balance holder", t, func() {
		var b service.BalanceHolder
		v := "$500"
		b.Update(&v)

		Convey("Then it keeps the last value", func() {
			So(b.Balance(), ShouldEqual, 500)
		})

		Convey("When the element disappears", func() {
			b.Update(nil)

			Convey("Then the balance reads as zero", func() {
				So(b.Balance(), ShouldEqual, 0)
			})
		})
	})
}
