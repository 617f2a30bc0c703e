package rk4

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/providers"
)

// FiniteDifferenceJacobian cross-checks a Dynamics provider's analytic Linearize against a
// central-difference Jacobian, for use in provider unit tests and in diagnosing a
// suspected NumericalDegeneracy. It is not on the hot path of the solver.
func FiniteDifferenceJacobian(
	dyn providers.Dynamics, t float64, x, u *mat.VecDense,
) (a, b *mat.Dense, err error) {
	nx, nu := x.Len(), u.Len()

	evalX := func(y, xv []float64) {
		xVec := mat.NewVecDense(nx, append([]float64(nil), xv...))
		f, evalErr := dyn.Evaluate(t, xVec, u)
		if evalErr != nil {
			err = errors.Wrap(evalErr, "finite-difference eval w.r.t. x")
			return
		}
		copy(y, f.RawVector().Data)
	}
	central := &fd.JacobianSettings{Formula: fd.Central}
	aDense := mat.NewDense(nx, nx, nil)
	fd.Jacobian(aDense, evalX, x.RawVector().Data, central)
	if err != nil {
		return nil, nil, err
	}
	a = aDense

	evalU := func(y, uv []float64) {
		uVec := mat.NewVecDense(nu, append([]float64(nil), uv...))
		f, evalErr := dyn.Evaluate(t, x, uVec)
		if evalErr != nil {
			err = errors.Wrap(evalErr, "finite-difference eval w.r.t. u")
			return
		}
		copy(y, f.RawVector().Data)
	}
	bDense := mat.NewDense(nx, nu, nil)
	fd.Jacobian(bDense, evalU, u.RawVector().Data, central)
	if err != nil {
		return nil, nil, err
	}
	b = bDense

	return a, b, nil
}
