package discretization

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/msqp/mpctypes"
)

func TestUniformGridNoEvents(t *testing.T) {
	grid := Discretize(0, 1.0, 0.1, nil)
	test.That(t, grid[0].Time, test.ShouldEqual, 0.0)
	test.That(t, grid[0].Event, test.ShouldEqual, mpctypes.Interior)
	test.That(t, grid[len(grid)-1].Time, test.ShouldEqual, 1.0)
	test.That(t, grid[len(grid)-1].Event, test.ShouldEqual, mpctypes.Interior)
	for i := 1; i < len(grid); i++ {
		test.That(t, grid[i].Time, test.ShouldBeGreaterThanOrEqualTo, grid[i-1].Time)
	}
}

func TestEventSplicing(t *testing.T) {
	grid := Discretize(0, 1.0, 0.1, []float64{0.45})
	foundPreEvent := false
	for i, node := range grid {
		if node.Event == mpctypes.PreEvent {
			foundPreEvent = true
			test.That(t, node.Time, test.ShouldAlmostEqual, 0.45)
			test.That(t, grid[i+1].Event, test.ShouldEqual, mpctypes.Interior)
			test.That(t, grid[i+1].Time, test.ShouldAlmostEqual, 0.45)
		}
	}
	test.That(t, foundPreEvent, test.ShouldBeTrue)
}

func TestEventsOutsideHorizonIgnored(t *testing.T) {
	grid := Discretize(0, 1.0, 0.1, []float64{-0.5, 0, 1.0, 5.0})
	for _, node := range grid {
		test.That(t, node.Event, test.ShouldEqual, mpctypes.Interior)
	}
}

func TestEventMergesWithNearbyTick(t *testing.T) {
	// 0.1 is already a uniform tick; splicing an event there should not duplicate it.
	grid := Discretize(0, 1.0, 0.1, []float64{0.1})
	count := 0
	for _, node := range grid {
		if almostEqual(node.Time, 0.1) {
			count++
		}
	}
	// Exactly the PreEvent/Interior pair, no extra uniform-tick duplicate.
	test.That(t, count, test.ShouldEqual, 2)
}

func TestFirstAndLastAlwaysInterior(t *testing.T) {
	grid := Discretize(0, 1.0, 0.37, []float64{0.01, 0.99})
	test.That(t, grid[0].Event, test.ShouldEqual, mpctypes.Interior)
	test.That(t, grid[len(grid)-1].Event, test.ShouldEqual, mpctypes.Interior)
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-6
}
