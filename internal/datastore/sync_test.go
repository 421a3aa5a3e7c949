package datastore

import (
	"context"
	"testing"

	"github.com/okian/tally/internal/domain/record"
	"github.com/okian/tally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDispatcher(t *testing.T) {
	Convey("Given a dispatcher", t, func() {
		ctx := context.Background()
		d := NewDispatcher(logger.Get())
		rec := &record.Record{
			Name: "Gold",
			Fields: []record.Field{
				{Name: "Coins", Value: record.Number(50), LastSynced: record.Number(0)},
				{Name: "Title", Value: record.String("rookie"), LastSynced: record.String("")},
			},
		}

		var deltas []float64
		var ids []string
		observer := func(ctx context.Context, _ int64, f *record.Field) {
			delta, _ := f.Delta()
			deltas = append(deltas, delta)
			ids = append(ids, SyncID(ctx))
			f.MarkSynced()
		}

		Convey("When an observer is registered for a numeric field", func() {
			d.Register("Gold", "Coins", observer)

			Convey("Then dispatch hands it the live field", func() {
				So(d.Dispatch(ctx, "Gold", 1, rec), ShouldBeTrue)
				So(deltas, ShouldResemble, []float64{50})
				last, _ := rec.Field("Coins").LastSynced.AsNumber()
				So(last, ShouldEqual, 50)
				So(ids[0], ShouldNotBeEmpty)
			})

			Convey("Then a second dispatch without mutation sees a zero delta", func() {
				d.Dispatch(ctx, "Gold", 1, rec)
				d.Dispatch(ctx, "Gold", 1, rec)
				So(deltas, ShouldResemble, []float64{50, 0})
				So(ids[0], ShouldNotEqual, ids[1])
			})

			Convey("Then other templates are not dispatched", func() {
				So(d.Dispatch(ctx, "Silver", 1, rec), ShouldBeFalse)
				So(deltas, ShouldBeEmpty)
			})
		})

		Convey("When the field is missing or not numeric", func() {
			d.Register("Gold", "Title", observer)
			So(d.Dispatch(ctx, "Gold", 1, rec), ShouldBeFalse)
			d.Register("Gold", "Gems", observer)
			So(d.Dispatch(ctx, "Gold", 1, rec), ShouldBeFalse)
			So(deltas, ShouldBeEmpty)
		})

		Convey("When a template is registered twice", func() {
			var first int
			d.Register("Gold", "Coins", func(context.Context, int64, *record.Field) { first++ })
			d.Register("Gold", "Coins", observer)
			d.Dispatch(ctx, "Gold", 1, rec)

			Convey("Then the last registration wins", func() {
				So(first, ShouldEqual, 0)
				So(len(deltas), ShouldEqual, 1)
			})
		})
	})
}
