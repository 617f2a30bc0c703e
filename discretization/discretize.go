// Package discretization builds the MS-SQP solver's time grid: a uniform mesh over
// [t0,tf] with PreEvent/Interior node pairs spliced in at each interior event time
// (spec.md §4.A).
package discretization

import (
	"math"
	"sort"

	"go.viam.com/msqp/mpctypes"
)

// epsilon is the tolerance used both to decide whether an event coincides with a uniform
// grid tick (and should be merged into it) and whether an event falls strictly inside the
// open interval (t0,tf).
const epsilon = 1e-9

// Discretize emits a uniform grid with spacing <= dt from t0 to tf, splicing a PreEvent
// node followed by an Interior node at each event time in eventTimes that falls strictly
// inside (t0,tf); events at or outside the horizon are ignored. When a spliced Interior
// node falls within epsilon of the next uniform tick, the tick is merged into it rather
// than duplicated. The first and last nodes are always Interior.
func Discretize(t0, tf, dt float64, eventTimes []float64) []mpctypes.AnnotatedTime {
	if tf <= t0 {
		return []mpctypes.AnnotatedTime{{Time: t0, Event: mpctypes.Interior}}
	}
	if dt <= 0 {
		dt = tf - t0
	}

	n := int(math.Ceil((tf - t0) / dt))
	if n < 1 {
		n = 1
	}
	step := (tf - t0) / float64(n)
	grid := make([]float64, n+1)
	for i := range grid {
		grid[i] = t0 + float64(i)*step
	}
	grid[n] = tf

	events := make([]float64, 0, len(eventTimes))
	for _, e := range eventTimes {
		if e > t0+epsilon && e < tf-epsilon {
			events = append(events, e)
		}
	}
	sort.Float64s(events)

	out := make([]mpctypes.AnnotatedTime, 0, len(grid)+2*len(events))
	ei := 0
	spliceEvent := func() {
		out = append(out,
			mpctypes.AnnotatedTime{Time: events[ei], Event: mpctypes.PreEvent},
			mpctypes.AnnotatedTime{Time: events[ei], Event: mpctypes.Interior},
		)
		ei++
	}
	for _, g := range grid {
		for ei < len(events) && events[ei] < g-epsilon {
			spliceEvent()
		}
		if ei < len(events) && math.Abs(events[ei]-g) <= epsilon {
			spliceEvent()
			continue // merge: the just-spliced Interior node stands in for this uniform tick
		}
		out = append(out, mpctypes.AnnotatedTime{Time: g, Event: mpctypes.Interior})
	}
	return out
}

// Stages returns the number of dynamics intervals N implied by a discretized grid of N+1
// nodes. Each PreEvent/Interior pair at an identical time contributes two nodes and the
// zero-duration interval between them, which is counted as one stage.
func Stages(grid []mpctypes.AnnotatedTime) int {
	if len(grid) == 0 {
		return 0
	}
	return len(grid) - 1
}
