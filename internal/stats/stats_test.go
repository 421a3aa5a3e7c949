package stats

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/datastore"
	"github.com/okian/tally/internal/domain/identity"
	"github.com/okian/tally/internal/domain/record"
	"github.com/okian/tally/internal/schedule"
	"github.com/okian/tally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func goldDefaults() *record.Record {
	prio := 1
	return &record.Record{
		Name: "Gold",
		Fields: []record.Field{
			{Name: "Coins", Priority: &prio, Value: record.Number(0), LastSynced: record.Number(0)},
			{Name: "Playtime", Value: record.Number(0), LastSynced: record.Number(0)},
			{Name: "Title", Value: record.String("rookie"), LastSynced: record.String("rookie")},
		},
	}
}

func newKeeper(autosave time.Duration) (*datastore.Manager, *Keeper, *repository.MemoryStore, *repository.TreapStore) {
	kv := repository.NewMemoryStore()
	ranked := repository.NewTreapStore()
	sched := schedule.New()
	m := datastore.New(kv, ranked,
		datastore.WithScheduler(sched),
		datastore.WithResolver(identity.NewDirectory(map[int64]string{1: "u1"})),
	)
	So(m.RegisterScalarTemplate("Gold", goldDefaults(), autosave), ShouldBeNil)
	k := New(m, WithTemplate("Gold"), WithScheduler(sched), WithPlaytime("Playtime", 5*time.Millisecond))
	return m, k, kv, ranked
}

func TestKeeperOperations(t *testing.T) {
	Convey("Given a loaded entity", t, func() {
		ctx := context.Background()
		m, k, _, _ := newKeeper(0)
		_, err := m.LoadInstance(ctx, 1, "Gold")
		So(err, ShouldBeNil)

		Convey("When reading stats", func() {
			f, ok := k.Get(1, "Coins")
			So(ok, ShouldBeTrue)
			So(f.Name, ShouldEqual, "Coins")

			_, ok = k.Get(1, "Gems")
			So(ok, ShouldBeFalse)
			_, ok = k.Get(2, "Coins")
			So(ok, ShouldBeFalse)
		})

		Convey("When setting a stat", func() {
			v, ok := k.Set(1, "Coins", -5)

			Convey("Then no bound is enforced", func() {
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, -5)
				f, _ := k.Get(1, "Coins")
				n, _ := f.Value.AsNumber()
				So(n, ShouldEqual, -5)
			})
		})

		Convey("When updating never goes below zero", func() {
			cases := []struct{ start, delta float64 }{
				{0, 5}, {10, -3}, {10, -10}, {10, -11}, {0, -1}, {2.5, -100}, {7, 0},
			}
			for _, c := range cases {
				k.Set(1, "Coins", c.start)
				got, ok := k.Update(1, "Coins", c.delta)
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, math.Max(0, c.start+c.delta))
			}
		})

		Convey("When try-updating", func() {
			cases := []struct{ start, delta float64 }{
				{0, 5}, {10, -3}, {10, -10}, {10, -11}, {0, -1}, {50, -100},
			}
			for _, c := range cases {
				k.Set(1, "Coins", c.start)
				got, err := k.TryUpdate(1, "Coins", c.delta)
				f, _ := k.Get(1, "Coins")
				now, _ := f.Value.AsNumber()

				if c.start+c.delta < 0 {
					var short *ShortfallError
					So(errors.As(err, &short), ShouldBeTrue)
					So(short.Shortfall, ShouldEqual, -(c.start + c.delta))
					So(now, ShouldEqual, c.start)
				} else {
					So(err, ShouldBeNil)
					So(got, ShouldEqual, c.start+c.delta)
					So(now, ShouldEqual, c.start+c.delta)
				}
			}
		})

		Convey("When the stat is missing or not numeric", func() {
			_, ok := k.Update(1, "Title", 1)
			So(ok, ShouldBeFalse)
			_, err := k.TryUpdate(1, "Gems", 1)
			So(errors.Is(err, ErrStatNotFound), ShouldBeTrue)
			_, err = k.TryUpdate(9, "Coins", 1)
			So(errors.Is(err, ErrStatNotFound), ShouldBeTrue)
			_, err = k.TryUpdate(9, "Coins", 1)
			So(errors.Is(err, datastore.ErrNotLoaded), ShouldBeTrue)
		})

		Convey("When a mutation would overflow to infinity", func() {
			k.Set(1, "Coins", 1e308)
			_, ok := k.Update(1, "Coins", 1e308)
			So(ok, ShouldBeFalse)
			_, err := k.Add(1, "Coins", 1e308)
			So(errors.Is(err, ErrNonFinite), ShouldBeTrue)
			_, err = k.TryUpdate(1, "Coins", 1e308)
			So(errors.Is(err, ErrNonFinite), ShouldBeTrue)
			_, err = k.TryUpdate(1, "Coins", math.Inf(-1))
			So(errors.Is(err, ErrNonFinite), ShouldBeTrue)
			_, ok = k.Set(1, "Coins", math.NaN())
			So(ok, ShouldBeFalse)

			Convey("Then the stat keeps its last finite value and still saves", func() {
				f, _ := k.Get(1, "Coins")
				v, _ := f.Value.AsNumber()
				So(v, ShouldEqual, 1e308)
				So(m.SaveNow(ctx, 1, "Gold"), ShouldBeNil)
			})
		})

		Convey("When listing stats", func() {
			k.Set(1, "Coins", 12)
			list, ok := k.List(1)

			Convey("Then only numeric fields are projected, in order", func() {
				So(ok, ShouldBeTrue)
				So(len(list), ShouldEqual, 2)
				So(list[0].Name, ShouldEqual, "Coins")
				So(list[0].Value, ShouldEqual, 12)
				So(*list[0].Priority, ShouldEqual, 1)
				So(list[1].Name, ShouldEqual, "Playtime")
				So(list[1].Priority, ShouldBeNil)
			})
		})

		Convey("When mutating stats", func() {
			k.Update(1, "Coins", 5)

			Convey("Then nothing is persisted or synced until autosave or detach", func() {
				f, _ := k.Get(1, "Coins")
				last, _ := f.LastSynced.AsNumber()
				So(last, ShouldEqual, 0)
			})
		})
	})
}

func TestPlaytime(t *testing.T) {
	Convey("Given a loaded entity with playtime accrual", t, func() {
		ctx := context.Background()
		m, k, _, _ := newKeeper(0)
		_, _ = m.LoadInstance(ctx, 1, "Gold")
		So(k.StartPlaytime(1), ShouldBeTrue)

		Convey("Then playtime grows while attached", func() {
			So(eventually(func() bool {
				f, _ := k.Get(1, "Playtime")
				n, _ := f.Value.AsNumber()
				return n >= 3
			}), ShouldBeTrue)
		})

		Convey("Then accrual stops by itself once the entity detaches", func() {
			m.DetachInstance(ctx, 1)
			So(eventually(func() bool { return !k.scheduler.Armed(playtimeKey(1)) }), ShouldBeTrue)
		})

		Convey("Then accrual can be stopped explicitly", func() {
			So(k.StopPlaytime(1), ShouldBeTrue)
			So(k.StopPlaytime(1), ShouldBeFalse)
		})

		Reset(func() {
			_ = m.Shutdown(ctx)
		})
	})
}

func TestGoldScenario(t *testing.T) {
	Convey("Given Gold with ten second autosave and a Coins observer", t, func() {
		ctx := context.Background()
		m, k, kv, ranked := newKeeper(10 * time.Second)
		So(m.RegisterRankedTemplate("Gold_O", 0), ShouldBeNil)

		var deltas []float64
		m.AddSync("Gold", "Coins", func(ctx context.Context, id int64, f *record.Field) {
			d, _ := f.Delta()
			deltas = append(deltas, d)
			_, _ = m.IncrementRanked(ctx, "Gold_O", datastore.RankedKey(id), d)
			f.MarkSynced()
		})

		rec, err := m.LoadInstance(ctx, 1, "Gold")
		So(err, ShouldBeNil)
		c, _ := rec.Field("Coins").Value.AsNumber()
		So(c, ShouldEqual, 0)

		v, ok := k.Update(1, "Coins", 50)
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, 50)

		_, err = k.TryUpdate(1, "Coins", -100)
		var short *ShortfallError
		So(errors.As(err, &short), ShouldBeTrue)
		So(short.Shortfall, ShouldEqual, 50)
		f, _ := k.Get(1, "Coins")
		now, _ := f.Value.AsNumber()
		So(now, ShouldEqual, 50)

		Convey("When the autosave fires and the entity later detaches", func() {
			So(m.SaveNow(ctx, 1, "Gold"), ShouldBeNil)
			f, _ := k.Get(1, "Coins")
			last, _ := f.LastSynced.AsNumber()
			So(last, ShouldEqual, 50)

			results := m.DetachInstance(ctx, 1)

			Convey("Then the first delta is 50, the detach delta is 0 and Coins:50 is saved", func() {
				So(deltas, ShouldResemble, []float64{50, 0})
				So(len(results), ShouldEqual, 1)
				So(results[0].Err, ShouldBeNil)

				data, ok, err := kv.Get(ctx, datastore.Namespace("Gold", 2), datastore.RecordKey(1))
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				saved, err := record.Decode(data)
				So(err, ShouldBeNil)
				coins, _ := saved.Field("Coins").Value.AsNumber()
				So(coins, ShouldEqual, 50)

				top, err := m.TopN(ctx, "Gold_O", 3)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)
				So(top[0].Score, ShouldEqual, 50)
				So(ranked.Count(datastore.RankedNamespace("Gold_O", 2)), ShouldEqual, 1)
			})
		})

		Reset(func() {
			_ = m.Shutdown(ctx)
		})
	})
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
