package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	dedupe "github.com/okian/pitwall/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When a payload is new", func() {
			seen := d.SeenAndRecord(ctx, dedupe.Hash("Lap 1: Senna leads"))

			Convey("Then it should return false and record it", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a payload repeats", func() {
			d.SeenAndRecord(ctx, dedupe.Hash("menu"))
			seen := d.SeenAndRecord(ctx, dedupe.Hash("menu"))

			Convey("Then it should return true and not grow", func() {
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a payload is unrecorded", func() {
			k := dedupe.Hash("dropped")
			d.SeenAndRecord(ctx, k)
			d.Unrecord(ctx, k)

			Convey("Then it can be recorded again", func() {
				So(d.Contains(k), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
			})
		})

		Convey("When the window is reset", func() {
			d.SeenAndRecord(ctx, dedupe.Hash("a"))
			d.SeenAndRecord(ctx, dedupe.Hash("b"))
			d.Reset(ctx)

			Convey("Then it is empty", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, dedupe.Hash("a")), ShouldBeFalse)
			})
		})
	})

	Convey("Given a window with the default cap", t, func() {
		d := dedupe.NewInMemoryDeduper()
		keys := make([]dedupe.Key, 0, 101)
		for i := 0; i < 101; i++ {
			k := dedupe.Hash(fmt.Sprintf("line %d", i))
			keys = append(keys, k)
			So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
		}

		Convey("Then the 101st insert trims to the 50 most recent", func() {
			So(d.Size(), ShouldEqual, 50)
			for _, k := range keys[:51] {
				So(d.Contains(k), ShouldBeFalse)
			}
			for _, k := range keys[51:] {
				So(d.Contains(k), ShouldBeTrue)
			}
		})
	})

	Convey("Given an unbounded window", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 500; i++ {
			d.SeenAndRecord(ctx, dedupe.Key(i))
		}

		Convey("Then nothing is trimmed", func() {
			So(d.Size(), ShouldEqual, 500)
		})
	})
}

func TestHash(t *testing.T) {
	Convey("Given two encodings of the same text", t, func() {
		composed := "R\u00e4ikk\u00f6nen"
		decomposed := "Ra\u0308ikko\u0308nen"

		Convey("Then they hash the same", func() {
			So(composed, ShouldNotEqual, decomposed)
			So(dedupe.Hash(composed), ShouldEqual, dedupe.Hash(decomposed))
		})

		Convey("Then different text hashes differently", func() {
			So(dedupe.Hash("a"), ShouldNotEqual, dedupe.Hash("b"))
		})
	})
}

func TestDeduperConcurrency(t *testing.T) {
	d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if !d.SeenAndRecord(ctx, dedupe.Key(i)) {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if fresh != 100 {
		t.Fatalf("expected 100 fresh records, got %d", fresh)
	}
}
