package datastore

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/tally/internal/domain/retry"
	. "github.com/smartystreets/goconvey/convey"
)

func TestIncrementRanked(t *testing.T) {
	Convey("Given a ranked template", t, func() {
		ctx := context.Background()
		h := newHarness()
		m := h.m
		So(m.RegisterRankedTemplate("Gold_O", 0), ShouldBeNil)

		Convey("When the store fails three times then succeeds", func() {
			h.ranked.incFailures = 3
			score, err := m.IncrementRanked(ctx, "Gold_O", "1", 50)

			Convey("Then the increment succeeds after exactly four calls", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 50)
				So(h.ranked.increments, ShouldEqual, 4)
			})
		})

		Convey("When the store fails every attempt", func() {
			h.ranked.incFailures = retry.DefaultMaxAttempts
			_, err := m.IncrementRanked(ctx, "Gold_O", "1", 50)

			Convey("Then the failure is returned after four calls", func() {
				So(errors.Is(err, retry.ErrExhausted), ShouldBeTrue)
				So(errors.Is(err, errTransient), ShouldBeTrue)
				So(h.ranked.increments, ShouldEqual, 4)
			})
		})

		Convey("When the template is unknown", func() {
			_, err := m.IncrementRanked(ctx, "Nope", "1", 1)
			So(errors.Is(err, ErrUnknownTemplate), ShouldBeTrue)
			So(h.ranked.increments, ShouldEqual, 0)
		})
	})
}

func TestTopN(t *testing.T) {
	Convey("Given a ranked template", t, func() {
		ctx := context.Background()
		h := newHarness()
		m := h.m
		So(m.RegisterRankedTemplate("Gold_O", 0), ShouldBeNil)

		Convey("When the store is empty", func() {
			top, err := m.TopN(ctx, "Gold_O", 3)

			Convey("Then an empty sequence is returned without error", func() {
				So(err, ShouldBeNil)
				So(top, ShouldNotBeNil)
				So(top, ShouldBeEmpty)
			})
		})

		Convey("When the store holds resolvable, unresolvable and non-numeric keys", func() {
			ns := RankedNamespace("Gold_O", 2)
			_, _ = h.ranked.TreapStore.Increment(ctx, ns, "1", 10)
			_, _ = h.ranked.TreapStore.Increment(ctx, ns, "2", 30)
			_, _ = h.ranked.TreapStore.Increment(ctx, ns, "99", 40)
			_, _ = h.ranked.TreapStore.Increment(ctx, ns, "guest", 50)
			_, _ = h.ranked.TreapStore.Increment(ctx, ns, "3", 20)

			top, err := m.TopN(ctx, "Gold_O", 5)

			Convey("Then only resolved entries are returned, best first", func() {
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 3)
				So(top[0].Name, ShouldEqual, "u2")
				So(top[0].Score, ShouldEqual, 30)
				So(top[1].Name, ShouldEqual, "u3")
				So(top[2].Name, ShouldEqual, "u1")
				So(top[2].EntityID, ShouldEqual, 1)
			})

			Convey("Then n bounds the fetched page", func() {
				top, err := m.TopN(ctx, "Gold_O", 2)
				So(err, ShouldBeNil)
				So(top, ShouldBeEmpty)
			})
		})

		Convey("When every fetch attempt fails", func() {
			h.ranked.topFailures = retry.DefaultMaxAttempts
			top, err := m.TopN(ctx, "Gold_O", 3)

			Convey("Then an empty sequence and the failure are returned", func() {
				So(top, ShouldBeEmpty)
				So(errors.Is(err, retry.ErrExhausted), ShouldBeTrue)
				So(h.ranked.tops, ShouldEqual, 4)
			})
		})

		Convey("When the template is unknown", func() {
			top, err := m.TopN(ctx, "Gold", 3)
			So(top, ShouldBeEmpty)
			So(errors.Is(err, ErrUnknownTemplate), ShouldBeTrue)
		})

		Convey("When n is not positive", func() {
			top, err := m.TopN(ctx, "Gold_O", 0)
			So(err, ShouldBeNil)
			So(top, ShouldBeEmpty)
			So(h.ranked.tops, ShouldEqual, 0)
		})
	})
}
