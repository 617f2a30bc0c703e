package scheduler

import (
	"context"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/discretization"
	"go.viam.com/msqp/logging"
	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/providers/fakes"
	"go.viam.com/msqp/providers/rk4"
	"go.viam.com/msqp/transcription"
)

type zeroDesired struct{ nx, nu int }

func (d zeroDesired) DesiredState(float64) *mat.VecDense { return mat.NewVecDense(d.nx, nil) }
func (d zeroDesired) DesiredInput(float64) *mat.VecDense { return mat.NewVecDense(d.nu, nil) }

func testProviderSet() ProviderSet {
	return ProviderSet{
		Dynamics:           fakes.DoubleIntegrator{},
		Cost:               fakes.QuadraticCost{Rho: 1},
		Constraint:         fakes.NoConstraint{},
		EventDynamics:      fakes.IdentityEventDynamics{},
		EventCost:          fakes.TerminalQuadraticCost{},
		EventConstraint:    fakes.NoEventConstraint{},
		TerminalCost:       fakes.TerminalQuadraticCost{},
		TerminalConstraint: fakes.NoEventConstraint{},
	}
}

func rolloutStates(t *testing.T, grid []mpctypes.AnnotatedTime, x0 *mat.VecDense, u []*mat.VecDense) []*mat.VecDense {
	t.Helper()
	states := make([]*mat.VecDense, len(grid))
	states[0] = x0
	for i := 0; i < len(grid)-1; i++ {
		if grid[i].Event == mpctypes.PreEvent {
			states[i+1] = states[i]
			continue
		}
		dt := grid[i+1].Time - grid[i].Time
		next, err := rk4.Value(context.Background(), fakes.DoubleIntegrator{}, grid[i].Time, dt, states[i], u[i])
		test.That(t, err, test.ShouldBeNil)
		states[i+1] = next
	}
	return states
}

func TestAssembleStagesSerialAndParallelAgree(t *testing.T) {
	grid := discretization.Discretize(0, 1.0, 0.1, nil)
	n := len(grid) - 1
	u := make([]*mat.VecDense, n)
	for i := range u {
		u[i] = mat.NewVecDense(1, []float64{0.1})
	}
	x0 := mat.NewVecDense(2, []float64{1, 0})
	states := rolloutStates(t, grid, x0, u)

	logger := logging.NewTestLogger(t)
	base := testProviderSet()

	serial, err := AssembleStages(context.Background(), logger, 1, grid, base, zeroDesired{2, 1}, rk4.Sensitivity, transcription.Options{}, states, u)
	test.That(t, err, test.ShouldBeNil)

	parallel, err := AssembleStages(context.Background(), logger, 8, grid, base, zeroDesired{2, 1}, rk4.Sensitivity, transcription.Options{}, states, u)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, len(parallel.Stages), test.ShouldEqual, len(serial.Stages))
	for i := range serial.Stages {
		test.That(t, parallel.Stages[i].Dynamics.F.AtVec(0), test.ShouldAlmostEqual, serial.Stages[i].Dynamics.F.AtVec(0))
		test.That(t, parallel.Stages[i].Cost.F, test.ShouldAlmostEqual, serial.Stages[i].Cost.F)
	}
	test.That(t, parallel.Performance.TotalCost, test.ShouldAlmostEqual, serial.Performance.TotalCost)
	test.That(t, parallel.Terminal.Cost.F, test.ShouldAlmostEqual, serial.Terminal.Cost.F)
}

func TestAssembleStagesZeroDefectOnConsistentRollout(t *testing.T) {
	grid := discretization.Discretize(0, 1.0, 0.25, nil)
	n := len(grid) - 1
	u := make([]*mat.VecDense, n)
	for i := range u {
		u[i] = mat.NewVecDense(1, []float64{-0.2})
	}
	x0 := mat.NewVecDense(2, []float64{0.5, 1})
	states := rolloutStates(t, grid, x0, u)

	logger := logging.NewTestLogger(t)
	result, err := AssembleStages(context.Background(), logger, 4, grid, testProviderSet(), zeroDesired{2, 1}, rk4.Sensitivity, transcription.Options{}, states, u)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Performance.StateEqConstraintISE, test.ShouldAlmostEqual, 0.0)
}
