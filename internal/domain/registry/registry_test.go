package registry

import (
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pitwall/internal/domain/model"
)

func TestDefaultRegistry(t *testing.T) {
	Convey("Given the bundled registry", t, func() {
		r, err := Default()
		So(err, ShouldBeNil)

		Convey("Then tracks and drivers keep file order", func() {
			tracks := r.ListTracks()
			So(len(tracks), ShouldEqual, 10)
			So(tracks[0].ID, ShouldEqual, "monaco")
			So(len(r.ListDrivers()), ShouldEqual, 22)
			So(r.ListDrivers()[0].ID, ShouldEqual, "senna")
		})

		Convey("Then a missing track name is derived from its id", func() {
			tr, err := r.Track("las_vegas")
			So(err, ShouldBeNil)
			So(tr.Name, ShouldEqual, "Las Vegas")
		})

		Convey("When looking up an unknown driver", func() {
			_, err := r.Driver("nobody")

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When mutating a returned track", func() {
			tr, _ := r.Track("monaco")
			tr.Landmarks[0] = "changed"
			again, _ := r.Track("monaco")

			Convey("Then the registry is unaffected", func() {
				So(again.Landmarks[0], ShouldEqual, "Casino Square")
			})
		})

		Convey("When asking for the strongest drivers", func() {
			top := r.TopDrivers(3)

			Convey("Then era-adjusted skill orders them and ties break by id", func() {
				So(len(top), ShouldEqual, 3)
				So(top[0].ID, ShouldEqual, "schumacher")
				So(top[1].ID, ShouldEqual, "senna")
				So(top[2].ID, ShouldEqual, "prost")
			})
		})
	})
}

func TestEraAdjustedSkill(t *testing.T) {
	Convey("Given drivers from each era", t, func() {
		Convey("Then the era offset is applied and capped", func() {
			So(Driver{Skill: 90, Era: EraClassic}.EraAdjustedSkill(), ShouldEqual, 94)
			So(Driver{Skill: 90, Era: EraModern}.EraAdjustedSkill(), ShouldEqual, 92)
			So(Driver{Skill: 90, Era: EraHybrid}.EraAdjustedSkill(), ShouldEqual, 90)
			So(Driver{Skill: 99, Era: EraClassic}.EraAdjustedSkill(), ShouldEqual, 100)
		})
	})
}

func TestLoadValidation(t *testing.T) {
	Convey("Given registry documents", t, func() {
		Convey("When a driver skill is out of range", func() {
			_, err := Load(strings.NewReader("drivers:\n  - {id: x, skill: 120}\n"))
			So(errors.Is(err, ErrInvalidData), ShouldBeTrue)
		})

		Convey("When a track id is duplicated", func() {
			doc := "tracks:\n  - {id: a, difficulty: 10, overtaking_factor: 0.5}\n  - {id: a, difficulty: 10, overtaking_factor: 0.5}\n"
			_, err := Load(strings.NewReader(doc))
			So(errors.Is(err, ErrInvalidData), ShouldBeTrue)
		})

		Convey("When an unknown field is present", func() {
			_, err := Load(strings.NewReader("tracks:\n  - {id: a, colour: red}\n"))
			So(errors.Is(err, ErrInvalidData), ShouldBeTrue)
		})

		Convey("When ids are written in mixed case", func() {
			r, err := Load(strings.NewReader("tracks:\n  - {id: Spa_Francorchamps, difficulty: 60}\ndrivers:\n  - {id: Senna, skill: 95}\n"))
			So(err, ShouldBeNil)

			Convey("Then they are stored lowercase and found in any case", func() {
				tr, err := r.Track("SPA_FRANCORCHAMPS")
				So(err, ShouldBeNil)
				So(tr.ID, ShouldEqual, "spa_francorchamps")
				So(tr.Name, ShouldEqual, "Spa Francorchamps")
				d, err := r.Driver("senna")
				So(err, ShouldBeNil)
				So(d.ID, ShouldEqual, "senna")
			})
		})

		Convey("When two ids differ only in case", func() {
			doc := "drivers:\n  - {id: hunt, skill: 80}\n  - {id: Hunt, skill: 81}\n"
			_, err := Load(strings.NewReader(doc))
			So(errors.Is(err, ErrInvalidData), ShouldBeTrue)
		})

		Convey("When weather and era are omitted", func() {
			r, err := Load(strings.NewReader("tracks:\n  - {id: a, difficulty: 10}\ndrivers:\n  - {id: b, skill: 50}\n"))
			So(err, ShouldBeNil)
			tr, _ := r.Track("a")
			d, _ := r.Driver("b")

			Convey("Then sunny and hybrid are assumed", func() {
				So(tr.Weather, ShouldEqual, model.WeatherSunny)
				So(d.Era, ShouldEqual, EraHybrid)
				So(d.Name, ShouldEqual, "B")
			})
		})
	})
}
