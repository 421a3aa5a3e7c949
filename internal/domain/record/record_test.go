package record_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/tally/internal/domain/record"
	. "github.com/smartystreets/goconvey/convey"
)

func coins() *record.Record {
	return &record.Record{
		Name: "PlayerData",
		Fields: []record.Field{
			{Name: "Coins", Value: record.Number(0), LastSynced: record.Number(0)},
			{Name: "Title", Value: record.String("rookie"), LastSynced: record.String("rookie")},
		},
	}
}

func TestRecord_Validate(t *testing.T) {
	Convey("Given a record", t, func() {
		Convey("When it is well formed", func() {
			So(coins().Validate(), ShouldBeNil)
		})

		Convey("When a field's last value has a different kind", func() {
			r := coins()
			r.Fields[0].LastSynced = record.Bool(true)

			Convey("Then validation fails", func() {
				So(errors.Is(r.Validate(), record.ErrInvalidRecord), ShouldBeTrue)
			})
		})

		Convey("When two fields share a name", func() {
			r := coins()
			r.Fields[1].Name = "Coins"
			So(errors.Is(r.Validate(), record.ErrInvalidRecord), ShouldBeTrue)
		})

		Convey("When the name is missing", func() {
			r := coins()
			r.Name = " "
			So(errors.Is(r.Validate(), record.ErrInvalidRecord), ShouldBeTrue)
		})

		Convey("When a value is missing", func() {
			r := coins()
			r.Fields[0].Value = record.Value{}
			So(errors.Is(r.Validate(), record.ErrInvalidRecord), ShouldBeTrue)
		})

		Convey("When a number is not finite", func() {
			for _, n := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
				r := coins()
				r.Fields[0].Value = record.Number(n)
				So(errors.Is(r.Validate(), record.ErrInvalidRecord), ShouldBeTrue)

				r = coins()
				r.Fields[0].LastSynced = record.Number(n)
				So(errors.Is(r.Validate(), record.ErrInvalidRecord), ShouldBeTrue)
			}
		})
	})
}

func TestRecord_Decode(t *testing.T) {
	Convey("Given stored bytes", t, func() {
		Convey("When they round trip through Encode", func() {
			prio := 3
			r := coins()
			r.Fields[0].Priority = &prio
			r.Fields[0].Value = record.Number(50)

			data, err := record.Encode(r)
			So(err, ShouldBeNil)
			got, err := record.Decode(data)

			Convey("Then the decoded record equals the original", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, r)
			})
		})

		Convey("When a value is null", func() {
			_, err := record.Decode([]byte(`{"name":"P","fields":[{"name":"Coins","value":null,"last_value":0}]}`))
			So(errors.Is(err, record.ErrInvalidRecord), ShouldBeTrue)
		})

		Convey("When the payload is not a record at all", func() {
			_, err := record.Decode([]byte(`"hello"`))
			So(errors.Is(err, record.ErrInvalidRecord), ShouldBeTrue)
		})

		Convey("When fields are absent", func() {
			_, err := record.Decode([]byte(`{"name":"P"}`))
			So(errors.Is(err, record.ErrInvalidRecord), ShouldBeTrue)
		})
	})
}

func TestRecord_DecodeYAML(t *testing.T) {
	Convey("Given defaults declared in YAML", t, func() {
		doc := `
name: PlayerData
priority: 0
fields:
  - name: Coins
    priority: 1
    value: 0
    last_value: 0
  - name: VIP
    value: false
    last_value: false
`
		r, err := record.DecodeYAML([]byte(doc))

		Convey("Then each field keeps its kind", func() {
			So(err, ShouldBeNil)
			So(r.Field("Coins").Value.Kind(), ShouldEqual, record.KindNumber)
			So(*r.Field("Coins").Priority, ShouldEqual, 1)
			So(r.Field("VIP").Value.Kind(), ShouldEqual, record.KindBool)
			So(r.Field("Missing"), ShouldBeNil)
		})
	})
}

func TestRecord_CloneAndDelta(t *testing.T) {
	Convey("Given a record with a pending delta", t, func() {
		r := coins()
		r.Field("Coins").Value = record.Number(50)

		Convey("When it is cloned and the clone mutated", func() {
			c := r.Clone()
			c.Field("Coins").Value = record.Number(7)

			Convey("Then the original is untouched", func() {
				n, _ := r.Field("Coins").Value.AsNumber()
				So(n, ShouldEqual, 50)
			})
		})

		Convey("When the delta is taken twice around a sync", func() {
			f := r.Field("Coins")
			first, ok := f.Delta()
			f.MarkSynced()
			second, _ := f.Delta()

			Convey("Then the second delta is zero", func() {
				So(ok, ShouldBeTrue)
				So(first, ShouldEqual, 50)
				So(second, ShouldEqual, 0)
			})
		})

		Convey("When the field is not numeric", func() {
			_, ok := r.Field("Title").Delta()
			So(ok, ShouldBeFalse)
		})
	})
}
