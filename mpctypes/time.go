// Package mpctypes holds the core data model of the MS-SQP solver: the annotated time
// grid, the linear/quadratic Taylor approximations produced by transcription, the
// per-stage payload consumed by the QP back-end, the performance index, and the
// resulting primal solution with its feedback controller.
package mpctypes

import "fmt"

// EventKind tags a grid node as an ordinary interior node or the pre-event boundary of a
// mode switch / jump map.
type EventKind int

const (
	// Interior is an ordinary node with a decision input.
	Interior EventKind = iota
	// PreEvent is a node immediately preceding a jump map; it shares its time value with
	// the Interior node that follows it and has no decision input.
	PreEvent
)

func (k EventKind) String() string {
	switch k {
	case Interior:
		return "Interior"
	case PreEvent:
		return "PreEvent"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// AnnotatedTime is one node of the discretized time grid.
type AnnotatedTime struct {
	Time  float64
	Event EventKind
}
