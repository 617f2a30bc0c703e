// Package providers declares the external collaborator interfaces of the MS-SQP solver:
// dynamics, cost, constraints, operating trajectories, integrator selectors, the structured
// QP back-end, and the mode-schedule source. Concrete robot-specific implementations of
// Dynamics/Cost/Constraint are out of scope; this package only defines the contract plus
// two in-scope reference implementations, providers/rk4 and qpsolver/dense.
package providers

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
)

// CostDesiredTrajectories is a reference-trajectory pointer passed into every cost
// evaluation; its lifetime must outlive the call that receives it.
type CostDesiredTrajectories interface {
	DesiredState(t float64) *mat.VecDense
	DesiredInput(t float64) *mat.VecDense
}

// Dynamics evaluates continuous-time dynamics x_dot = f(t,x,u) and its Jacobians, and can
// be deep-cloned for worker-local use so parallel stage assembly needs no locking.
type Dynamics interface {
	Evaluate(t float64, x, u *mat.VecDense) (*mat.VecDense, error)
	Linearize(t float64, x, u *mat.VecDense) (mpctypes.LinearApproximation, error)
	Clone() Dynamics
}

// EventDynamics evaluates a jump map g(t,x) at a mode-switch boundary, where there is no
// decision input.
type EventDynamics interface {
	Evaluate(t float64, x *mat.VecDense) (*mat.VecDense, error)
	Linearize(t float64, x *mat.VecDense) (mpctypes.LinearApproximation, error)
	Clone() EventDynamics
}

// Cost evaluates the intermediate stage cost and its quadratic expansion around (t,x,u).
type Cost interface {
	Evaluate(t float64, x, u *mat.VecDense, desired CostDesiredTrajectories) (float64, error)
	Quadraticize(t float64, x, u *mat.VecDense, desired CostDesiredTrajectories) (mpctypes.QuadraticApproximation, error)
	Clone() Cost
}

// TerminalCost is the (t,x)-only cost variant evaluated at the final node.
type TerminalCost interface {
	Evaluate(t float64, x *mat.VecDense, desired CostDesiredTrajectories) (float64, error)
	Quadraticize(t float64, x *mat.VecDense, desired CostDesiredTrajectories) (mpctypes.QuadraticApproximation, error)
	Clone() TerminalCost
}

// Constraint evaluates the stacked state-input equality and inequality constraints at an
// intermediate node.
type Constraint interface {
	NumEquality(t float64) int
	NumInequality(t float64) int
	Linearize(t float64, x, u *mat.VecDense) (equality, inequality mpctypes.LinearApproximation, err error)
	Clone() Constraint
}

// EventConstraint is the (t,x)-only constraint variant used at event nodes and the
// terminal node.
type EventConstraint interface {
	NumEquality(t float64) int
	NumInequality(t float64) int
	Linearize(t float64, x *mat.VecDense) (equality, inequality mpctypes.LinearApproximation, err error)
	Clone() EventConstraint
}

// OperatingTrajectories seeds a (times, states, inputs) segment used to initialize inputs
// outside the previous controller's horizon.
type OperatingTrajectories interface {
	Seed(x *mat.VecDense, tLo, tHi float64) (times []float64, states, inputs []*mat.VecDense, err error)
	Clone() OperatingTrajectories
}

// ValueDiscretizer advances dynamics over [t, t+dt] from (x,u) without propagating
// sensitivities.
type ValueDiscretizer func(ctx context.Context, dyn Dynamics, t, dt float64, x, u *mat.VecDense) (*mat.VecDense, error)

// SensitivityDiscretizer advances dynamics over [t, t+dt] and linearizes the resulting flow
// map, i.e. computes the defect and its A, B Jacobians in one pass.
type SensitivityDiscretizer func(ctx context.Context, dyn Dynamics, t, dt float64, x, u *mat.VecDense) (mpctypes.LinearApproximation, error)

// IntegratorSelector maps an integrator type name to its value and sensitivity
// discretizers.
type IntegratorSelector func(integratorType string) (ValueDiscretizer, SensitivityDiscretizer, error)

// StageSizes describes the QP structure at one stage.
type StageSizes struct {
	Nx int // state dimension
	Nu int // input dimension (0 at event stages or where fully projected away)
	Ng int // rows in the stacked constraint block (equality + inequality)
}

// QPStatus is the back-end's solve outcome.
type QPStatus int

const (
	QPSuccess QPStatus = iota
	QPInfeasible
	QPUnbounded
	QPNumericalFailure
)

func (s QPStatus) String() string {
	switch s {
	case QPSuccess:
		return "Success"
	case QPInfeasible:
		return "Infeasible"
	case QPUnbounded:
		return "Unbounded"
	case QPNumericalFailure:
		return "NumericalFailure"
	default:
		return fmt.Sprintf("QPStatus(%d)", int(s))
	}
}

// QPStep is the primal step and solve status returned by the QP back-end; the per-stage
// Riccati feedback is read separately through Backend.RiccatiFeedback.
type QPStep struct {
	DeltaX []*mat.VecDense
	DeltaU []*mat.VecDense
	Status QPStatus
}

// Backend is the structured QP solver: given stage sizes and the assembled LQ problem, it
// returns a primal step and exposes Riccati feedback gains for the last solve. It is used
// only by the caller thread, after the parallel assembly section of the SQP loop has
// completed.
type Backend interface {
	// Resize preallocates internal storage for the given per-stage sizes.
	Resize(stages []StageSizes) error

	// Solve solves the structured LQ-constrained QP for one SQP iteration. constraints[i]
	// may have zero rows (unconstrained at that stage); callers pass a fully empty
	// constraints slice, or one with every entry zero-rowed, for the "no constraints
	// anywhere" mode.
	Solve(
		ctx context.Context,
		deltaX0Init *mat.VecDense,
		dynamics []mpctypes.LinearApproximation,
		cost []mpctypes.QuadraticApproximation,
		constraints []mpctypes.StageConstraintSpec,
	) (QPStep, error)

	// RiccatiFeedback returns the per-stage feedback matrices K_i from the backward pass of
	// the most recent successful Solve.
	RiccatiFeedback() ([]*mat.Dense, error)
}

// ModeScheduleSource exposes the event times and a mode-schedule snapshot, pulled once per
// solver Run call.
type ModeScheduleSource interface {
	EventTimes() []float64
	ModeSchedule() interface{}
}
