package scoring_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func assets(ids ...string) []model.Asset {
	out := make([]model.Asset, len(ids))
	for i, id := range ids {
		out[i] = model.Asset{ID: id, UnitID: "unit-1", Position: i}
	}
	return out
}

func progress(pairs map[string]float64) []model.AssetProgress {
	out := make([]model.AssetProgress, 0, len(pairs))
	for id, p := range pairs {
		out = append(out, model.AssetProgress{AssetID: id, UnitID: "unit-1", ProgressPercentage: p})
	}
	return out
}

func TestUnitScore(t *testing.T) {
	Convey("Given a unit with two catalog assets", t, func() {
		catalog := assets("a1", "a2")

		Convey("When both assets and two attempts exist", func() {
			rows := progress(map[string]float64{"a1": 100, "a2": 80})
			stats := model.AttemptStats{Count: 2, Average: 85}

			Convey("Then both components are averaged", func() {
				So(scoring.UnitScore(catalog, rows, stats), ShouldEqual, 88)
			})
		})

		Convey("When only one asset has progress", func() {
			rows := progress(map[string]float64{"a1": 100})

			Convey("Then the untouched asset counts as zero", func() {
				v, ok := scoring.AssetComponent(catalog, rows)
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 50)
				So(scoring.UnitScore(catalog, rows, model.AttemptStats{}), ShouldEqual, 50)
			})
		})

		Convey("When a progress row belongs to an asset outside the catalog", func() {
			rows := progress(map[string]float64{"a1": 60, "stray": 100})

			Convey("Then it is ignored", func() {
				So(scoring.UnitScore(catalog, rows, model.AttemptStats{}), ShouldEqual, 30)
			})
		})
	})

	Convey("Given a unit with no catalog assets", t, func() {
		Convey("When there are no attempts", func() {
			Convey("Then the score is zero", func() {
				So(scoring.UnitScore(nil, nil, model.AttemptStats{}), ShouldEqual, 0)
				c := scoring.Compose(nil, nil, model.AttemptStats{})
				So(c.Asset, ShouldBeNil)
				So(c.Pronunciation, ShouldBeNil)
			})
		})

		Convey("When attempts exist", func() {
			Convey("Then the pronunciation mean alone is the score", func() {
				So(scoring.UnitScore(nil, nil, model.AttemptStats{Count: 3, Average: 72.5}), ShouldEqual, 73)
			})
		})
	})

	Convey("Given a unit whose assets are all at zero", t, func() {
		Convey("Then the asset component is present and zero", func() {
			c := scoring.Compose(assets("a1"), nil, model.AttemptStats{Count: 1, Average: 90})
			So(c.Asset, ShouldNotBeNil)
			So(*c.Asset, ShouldEqual, 0)
			So(c.Score(), ShouldEqual, 45)
		})
	})
}

func TestRound(t *testing.T) {
	Convey("Round clamps and rounds half away from zero", t, func() {
		So(scoring.Round(87.5), ShouldEqual, 88)
		So(scoring.Round(87.49), ShouldEqual, 87)
		So(scoring.Round(150), ShouldEqual, 100)
		So(scoring.Round(-3), ShouldEqual, 0)
		So(scoring.Round(math.NaN()), ShouldEqual, 0)
	})
}

func TestSanitizers(t *testing.T) {
	Convey("Given numeric client input", t, func() {
		Convey("Percent clamps into range", func() {
			v, err := scoring.Percent(150)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 100)

			v, err = scoring.Percent(-5)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 0)

			v, err = scoring.Percent(math.Inf(1))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 100)
		})

		Convey("Percent rejects NaN", func() {
			_, err := scoring.Percent(math.NaN())
			So(errors.Is(err, scoring.ErrNotANumber), ShouldBeTrue)
		})

		Convey("Seconds floors to a non-negative integer", func() {
			s, err := scoring.Seconds(12.9)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 12)

			s, err = scoring.Seconds(-4)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 0)

			_, err = scoring.Seconds(math.NaN())
			So(errors.Is(err, scoring.ErrNotANumber), ShouldBeTrue)
		})

		Convey("OverrideScore clamps then rounds", func() {
			s, err := scoring.OverrideScore(94.6)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 95)

			s, err = scoring.OverrideScore(250)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 100)
		})
	})
}

func TestAssetCompleted(t *testing.T) {
	Convey("Given the completion policy", t, func() {
		yes, no := true, false

		Convey("An explicit override wins over progress", func() {
			So(scoring.AssetCompleted(10, &yes), ShouldBeTrue)
			So(scoring.AssetCompleted(95, &no), ShouldBeFalse)
		})

		Convey("Without an override the threshold decides", func() {
			So(scoring.AssetCompleted(90, nil), ShouldBeTrue)
			So(scoring.AssetCompleted(89.9, nil), ShouldBeFalse)
		})
	})
}
