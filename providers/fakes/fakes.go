// Package fakes supplies minimal Dynamics/Cost/Constraint/OperatingTrajectories/
// ModeScheduleSource implementations used to exercise the solver end-to-end in tests:
// a double integrator, an identity event jump map, and a coupled-input equality constraint.
package fakes

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/providers"
)

// DoubleIntegrator is x_dot = [x2, u], a nx=2, nu=1 plant.
type DoubleIntegrator struct{}

func (DoubleIntegrator) Evaluate(t float64, x, u *mat.VecDense) (*mat.VecDense, error) {
	return mat.NewVecDense(2, []float64{x.AtVec(1), u.AtVec(0)}), nil
}

func (d DoubleIntegrator) Linearize(t float64, x, u *mat.VecDense) (mpctypes.LinearApproximation, error) {
	f, err := d.Evaluate(t, x, u)
	if err != nil {
		return mpctypes.LinearApproximation{}, err
	}
	a := mat.NewDense(2, 2, []float64{0, 1, 0, 0})
	b := mat.NewDense(2, 1, []float64{0, 1})
	return mpctypes.LinearApproximation{F: f, DfDx: a, DfDu: b}, nil
}

func (d DoubleIntegrator) Clone() providers.Dynamics { return DoubleIntegrator{} }

// CoupledInputIntegrator is an nx=2, nu=2 plant used for the equality-projection scenario:
// both inputs drive the same double-integrator channel, and the constraint u1+u2=0 is
// enforced externally.
type CoupledInputIntegrator struct{}

func (CoupledInputIntegrator) Evaluate(t float64, x, u *mat.VecDense) (*mat.VecDense, error) {
	return mat.NewVecDense(2, []float64{x.AtVec(1), u.AtVec(0) + u.AtVec(1)}), nil
}

func (d CoupledInputIntegrator) Linearize(t float64, x, u *mat.VecDense) (mpctypes.LinearApproximation, error) {
	f, err := d.Evaluate(t, x, u)
	if err != nil {
		return mpctypes.LinearApproximation{}, err
	}
	a := mat.NewDense(2, 2, []float64{0, 1, 0, 0})
	b := mat.NewDense(2, 2, []float64{0, 0, 1, 1})
	return mpctypes.LinearApproximation{F: f, DfDx: a, DfDu: b}, nil
}

func (d CoupledInputIntegrator) Clone() providers.Dynamics { return CoupledInputIntegrator{} }

// QuadraticCost is 1/2(x1^2 + x2^2 + rho*sum(u_i^2)), ignoring any desired trajectory.
type QuadraticCost struct {
	Rho float64
}

func (c QuadraticCost) Evaluate(t float64, x, u *mat.VecDense, _ providers.CostDesiredTrajectories) (float64, error) {
	val := 0.5 * (x.AtVec(0)*x.AtVec(0) + x.AtVec(1)*x.AtVec(1))
	for i := 0; i < u.Len(); i++ {
		val += 0.5 * c.Rho * u.AtVec(i) * u.AtVec(i)
	}
	return val, nil
}

func (c QuadraticCost) Quadraticize(
	t float64, x, u *mat.VecDense, desired providers.CostDesiredTrajectories,
) (mpctypes.QuadraticApproximation, error) {
	f, err := c.Evaluate(t, x, u, desired)
	if err != nil {
		return mpctypes.QuadraticApproximation{}, err
	}
	nx, nu := x.Len(), u.Len()
	dfdx := mat.NewVecDense(nx, nil)
	dfdx.CopyVec(x)
	dfdu := mat.NewVecDense(nu, nil)
	dfdu.ScaleVec(c.Rho, u)
	dfdxx := mat.NewDense(nx, nx, nil)
	for i := 0; i < nx; i++ {
		dfdxx.Set(i, i, 1)
	}
	dfduu := mat.NewDense(nu, nu, nil)
	for i := 0; i < nu; i++ {
		dfduu.Set(i, i, c.Rho)
	}
	dfdux := mat.NewDense(nu, nx, nil)
	return mpctypes.QuadraticApproximation{F: f, DfDx: dfdx, DfDu: dfdu, DfDxx: dfdxx, DfDuu: dfduu, DfDux: dfdux}, nil
}

func (c QuadraticCost) Clone() providers.Cost { return c }

// TerminalQuadraticCost is 1/2(x1^2+x2^2), the terminal counterpart of QuadraticCost.
type TerminalQuadraticCost struct{}

func (TerminalQuadraticCost) Evaluate(t float64, x *mat.VecDense, _ providers.CostDesiredTrajectories) (float64, error) {
	return 0.5 * (x.AtVec(0)*x.AtVec(0) + x.AtVec(1)*x.AtVec(1)), nil
}

func (c TerminalQuadraticCost) Quadraticize(
	t float64, x *mat.VecDense, desired providers.CostDesiredTrajectories,
) (mpctypes.QuadraticApproximation, error) {
	f, err := c.Evaluate(t, x, desired)
	if err != nil {
		return mpctypes.QuadraticApproximation{}, err
	}
	nx := x.Len()
	dfdx := mat.NewVecDense(nx, nil)
	dfdx.CopyVec(x)
	dfdxx := mat.NewDense(nx, nx, nil)
	for i := 0; i < nx; i++ {
		dfdxx.Set(i, i, 1)
	}
	return mpctypes.QuadraticApproximation{F: f, DfDx: dfdx, DfDxx: dfdxx}, nil
}

func (c TerminalQuadraticCost) Clone() providers.TerminalCost { return c }

// NoConstraint reports zero equalities and inequalities everywhere.
type NoConstraint struct{}

func (NoConstraint) NumEquality(float64) int   { return 0 }
func (NoConstraint) NumInequality(float64) int { return 0 }

func (NoConstraint) Linearize(t float64, x, u *mat.VecDense) (mpctypes.LinearApproximation, mpctypes.LinearApproximation, error) {
	return mpctypes.ZeroLinearApproximation(), mpctypes.ZeroLinearApproximation(), nil
}

func (NoConstraint) Clone() providers.Constraint { return NoConstraint{} }

// NoEventConstraint is the EventConstraint counterpart of NoConstraint.
type NoEventConstraint struct{}

func (NoEventConstraint) NumEquality(float64) int   { return 0 }
func (NoEventConstraint) NumInequality(float64) int { return 0 }

func (NoEventConstraint) Linearize(t float64, x *mat.VecDense) (mpctypes.LinearApproximation, mpctypes.LinearApproximation, error) {
	return mpctypes.ZeroLinearApproximation(), mpctypes.ZeroLinearApproximation(), nil
}

func (NoEventConstraint) Clone() providers.EventConstraint { return NoEventConstraint{} }

// SumInputsZero enforces u1+u2=0 at every intermediate stage: an nx=2, nu=2 equality
// constraint used for the projection scenario.
type SumInputsZero struct{}

func (SumInputsZero) NumEquality(float64) int   { return 1 }
func (SumInputsZero) NumInequality(float64) int { return 0 }

func (SumInputsZero) Linearize(t float64, x, u *mat.VecDense) (mpctypes.LinearApproximation, mpctypes.LinearApproximation, error) {
	f := mat.NewVecDense(1, []float64{u.AtVec(0) + u.AtVec(1)})
	dfdx := mat.NewDense(1, x.Len(), nil)
	dfdu := mat.NewDense(1, u.Len(), []float64{1, 1})
	eq := mpctypes.LinearApproximation{F: f, DfDx: dfdx, DfDu: dfdu}
	return eq, mpctypes.ZeroLinearApproximation(), nil
}

func (SumInputsZero) Clone() providers.Constraint { return SumInputsZero{} }

// IdentityEventDynamics is the trivial jump map used for the event-handling scenario:
// g(t,x) = x.
type IdentityEventDynamics struct{}

func (IdentityEventDynamics) Evaluate(t float64, x *mat.VecDense) (*mat.VecDense, error) {
	out := mat.NewVecDense(x.Len(), nil)
	out.CopyVec(x)
	return out, nil
}

func (d IdentityEventDynamics) Linearize(t float64, x *mat.VecDense) (mpctypes.LinearApproximation, error) {
	f, err := d.Evaluate(t, x)
	if err != nil {
		return mpctypes.LinearApproximation{}, err
	}
	n := x.Len()
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 1)
	}
	return mpctypes.LinearApproximation{F: f, DfDx: a, DfDu: mat.NewDense(n, 0, nil)}, nil
}

func (d IdentityEventDynamics) Clone() providers.EventDynamics { return IdentityEventDynamics{} }

// ZeroOperatingTrajectories seeds a zero-input guess for any [tLo,tHi] segment.
type ZeroOperatingTrajectories struct {
	Nx, Nu int
}

func (z ZeroOperatingTrajectories) Seed(
	x *mat.VecDense, tLo, tHi float64,
) ([]float64, []*mat.VecDense, []*mat.VecDense, error) {
	return []float64{tLo, tHi},
		[]*mat.VecDense{x, x},
		[]*mat.VecDense{mat.NewVecDense(z.Nu, nil), mat.NewVecDense(z.Nu, nil)},
		nil
}

func (z ZeroOperatingTrajectories) Clone() providers.OperatingTrajectories { return z }

// StaticModeSchedule exposes a fixed set of event times and an opaque schedule tag.
type StaticModeSchedule struct {
	Events  []float64
	Tag     string
}

func (s StaticModeSchedule) EventTimes() []float64     { return s.Events }
func (s StaticModeSchedule) ModeSchedule() interface{} { return s.Tag }

var (
	_ providers.Dynamics              = DoubleIntegrator{}
	_ providers.Dynamics              = CoupledInputIntegrator{}
	_ providers.Cost                  = QuadraticCost{}
	_ providers.TerminalCost          = TerminalQuadraticCost{}
	_ providers.Constraint            = NoConstraint{}
	_ providers.Constraint            = SumInputsZero{}
	_ providers.EventConstraint       = NoEventConstraint{}
	_ providers.EventDynamics         = IdentityEventDynamics{}
	_ providers.OperatingTrajectories = ZeroOperatingTrajectories{}
	_ providers.ModeScheduleSource    = StaticModeSchedule{}
)
