package telemetry

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGaugeReadWrite(t *testing.T) {
	Convey("Given a gauge initialized to 1.5", t, func() {
		g := NewGauge(1.5)

		Convey("Read returns the initial value", func() {
			So(g.Read(), ShouldEqual, 1.5)
		})

		Convey("Set overwrites it", func() {
			g.Set(42)
			So(g.Read(), ShouldEqual, float64(42))
		})

		Convey("Add accumulates", func() {
			got := g.Add(0.5)
			So(got, ShouldEqual, 2.0)
			So(g.Read(), ShouldEqual, 2.0)
		})
	})
}

func TestGaugeConcurrentAddsAllLand(t *testing.T) {
	Convey("Given many goroutines adding to the same gauge concurrently", t, func() {
		g := NewGauge(0)
		var wg sync.WaitGroup
		const n = 200
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.Add(1)
			}()
		}
		wg.Wait()

		Convey("every add lands, with no lost updates", func() {
			So(g.Read(), ShouldEqual, float64(n))
		})
	})
}
