package transcription

import (
	"context"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/providers"
	"go.viam.com/msqp/providers/fakes"
	"go.viam.com/msqp/providers/rk4"
)

type zeroDesired struct{ nx, nu int }

func (d zeroDesired) DesiredState(float64) *mat.VecDense { return mat.NewVecDense(d.nx, nil) }
func (d zeroDesired) DesiredInput(float64) *mat.VecDense { return mat.NewVecDense(d.nu, nil) }

func TestSetupIntermediateNodeConsistentDefectIsZero(t *testing.T) {
	dyn := fakes.DoubleIntegrator{}
	cost := fakes.QuadraticCost{Rho: 1}
	x := mat.NewVecDense(2, []float64{1, 2})
	u := mat.NewVecDense(1, []float64{0.5})
	dt := 0.1
	xNext, err := rk4.Value(context.Background(), dyn, 0, dt, x, u)
	test.That(t, err, test.ShouldBeNil)

	payload, perf, err := SetupIntermediateNode(
		context.Background(), dyn, rk4.Sensitivity, cost, fakes.NoConstraint{}, zeroDesired{2, 1},
		Options{}, 0, 0, dt, x, xNext, u,
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, payload.Dynamics.F.AtVec(0), test.ShouldAlmostEqual, 0.0)
	test.That(t, payload.Dynamics.F.AtVec(1), test.ShouldAlmostEqual, 0.0)
	test.That(t, perf.StateEqConstraintISE, test.ShouldAlmostEqual, 0.0)
	test.That(t, payload.Constraints.Rows(), test.ShouldEqual, 0)
	test.That(t, payload.ConstraintsProjection.Rows(), test.ShouldEqual, 0)
}

func TestSetupIntermediateNodeInconsistentDefectIsNonzero(t *testing.T) {
	dyn := fakes.DoubleIntegrator{}
	cost := fakes.QuadraticCost{Rho: 1}
	x := mat.NewVecDense(2, []float64{1, 2})
	u := mat.NewVecDense(1, []float64{0.5})
	xNext := mat.NewVecDense(2, []float64{0, 0})

	payload, perf, err := SetupIntermediateNode(
		context.Background(), dyn, rk4.Sensitivity, cost, fakes.NoConstraint{}, zeroDesired{2, 1},
		Options{}, 0, 0, 0.1, x, xNext, u,
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, payload.Dynamics.F.AtVec(0), test.ShouldNotAlmostEqual, 0.0)
	test.That(t, perf.StateEqConstraintISE, test.ShouldBeGreaterThan, 0.0)
}

func TestSetupIntermediateNodeEqualityProjectionEliminatesConstraint(t *testing.T) {
	dyn := fakes.CoupledInputIntegrator{}
	cost := fakes.QuadraticCost{Rho: 1}
	x := mat.NewVecDense(2, []float64{1, 2})
	u := mat.NewVecDense(2, []float64{0.5, -0.5}) // already satisfies u1+u2=0
	dt := 0.1
	xNext, err := rk4.Value(context.Background(), dyn, 0, dt, x, u)
	test.That(t, err, test.ShouldBeNil)

	opts := Options{ProjectEquality: true}
	payload, _, err := SetupIntermediateNode(
		context.Background(), dyn, rk4.Sensitivity, cost, fakes.SumInputsZero{}, zeroDesired{2, 2},
		opts, 0, 0, dt, x, xNext, u,
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, payload.ConstraintsNumEquality, test.ShouldEqual, 0)
	test.That(t, payload.ConstraintsProjection.Rows(), test.ShouldEqual, 2)
	// The reduced dynamics input column count drops from nu=2 to nu-neq=1.
	test.That(t, payload.Dynamics.DfDu.RawMatrix().Cols, test.ShouldEqual, 1)
	test.That(t, payload.Cost.DfDu.Len(), test.ShouldEqual, 1)

	// Reconstructing du from the projection at dx=dutilde=0 must reproduce the feasible
	// operating input exactly, since e=u1+u2=0 there.
	du := mat.NewVecDense(2, nil)
	du.CopyVec(payload.ConstraintsProjection.F)
	test.That(t, du.AtVec(0)+du.AtVec(1), test.ShouldAlmostEqual, 0.0)
}

func TestSetupIntermediateNodeInequalityPenaltyShapesCost(t *testing.T) {
	dyn := fakes.DoubleIntegrator{}
	cost := fakes.QuadraticCost{Rho: 1}
	x := mat.NewVecDense(2, []float64{1, 2})
	u := mat.NewVecDense(1, []float64{0.5})
	dt := 0.1
	xNext, err := rk4.Value(context.Background(), dyn, 0, dt, x, u)
	test.That(t, err, test.ShouldBeNil)

	opts := Options{InequalityConstraintMu: 0.1, InequalityConstraintDelta: 0.05}
	payload, perf, err := SetupIntermediateNode(
		context.Background(), dyn, rk4.Sensitivity, cost, boundedInput{}, zeroDesired{2, 1},
		opts, 0, 0, dt, x, xNext, u,
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, perf.InequalityConstraintPenalty, test.ShouldBeGreaterThan, 0.0)
	test.That(t, payload.Cost.F, test.ShouldBeGreaterThan, 0.0)
}

// boundedInput enforces u <= 1 (a single inequality row), used to exercise the relaxed
// barrier penalty.
type boundedInput struct{}

func (boundedInput) NumEquality(float64) int   { return 0 }
func (boundedInput) NumInequality(float64) int { return 1 }

func (boundedInput) Linearize(t float64, x, u *mat.VecDense) (equality, inequality mpctypes.LinearApproximation, err error) {
	dfdx := mat.NewDense(1, x.Len(), nil)
	dfdu := mat.NewDense(1, u.Len(), []float64{1})
	ineq := mpctypes.LinearApproximation{F: mat.NewVecDense(1, []float64{u.AtVec(0) - 1}), DfDx: dfdx, DfDu: dfdu}
	return mpctypes.ZeroLinearApproximation(), ineq, nil
}

func (boundedInput) Clone() providers.Constraint { return boundedInput{} }

func TestSetupEventNodeIdentityJumpZeroDefect(t *testing.T) {
	dyn := fakes.IdentityEventDynamics{}
	cost := fakes.TerminalQuadraticCost{}
	x := mat.NewVecDense(2, []float64{1, 2})
	xNext := mat.NewVecDense(2, []float64{1, 2})

	payload, perf, err := SetupEventNode(dyn, cost, fakes.NoEventConstraint{}, zeroDesired{2, 0}, 0, 0.5, x, xNext)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, perf.StateEqConstraintISE, test.ShouldAlmostEqual, 0.0)
	cols := payload.Dynamics.DfDu.RawMatrix().Cols
	test.That(t, cols, test.ShouldEqual, 0)
	test.That(t, payload.Cost.DfDu.Len(), test.ShouldEqual, 0)
}

func TestSetupTerminalNodeNoDynamics(t *testing.T) {
	cost := fakes.TerminalQuadraticCost{}
	xN := mat.NewVecDense(2, []float64{1, 2})

	payload, perf, err := SetupTerminalNode(cost, fakes.NoEventConstraint{}, zeroDesired{2, 0}, 0, 1.0, xN)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, perf.TotalCost, test.ShouldAlmostEqual, 0.5*(1.0+4.0))
	test.That(t, payload.Dynamics.Rows(), test.ShouldEqual, 0)
	test.That(t, payload.Constraints.Rows(), test.ShouldEqual, 0)
}
