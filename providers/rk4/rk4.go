// Package rk4 supplies the reference integrator selector of SPEC_FULL.md §3: an explicit
// 4th-order Runge-Kutta value discretizer and a tangent-linear-model sensitivity
// discretizer, grounded on the Butcher-tableau RK4 structure of
// other_examples/8490ca05_soypat-godesim__algorithms.go.go, extended to propagate the
// state/input sensitivity matrices alongside the state itself so the Node Transcriber can
// linearize the shooting defect in one integration pass.
package rk4

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/providers"
)

// Value integrates dyn over [t, t+dt] from (x,u) with one step of classic RK4.
func Value(ctx context.Context, dyn providers.Dynamics, t, dt float64, x, u *mat.VecDense) (*mat.VecDense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k1, err := dyn.Evaluate(t, x, u)
	if err != nil {
		return nil, errors.Wrap(err, "rk4 stage 1")
	}
	x2 := addScaled(x, dt/2, k1)
	k2, err := dyn.Evaluate(t+dt/2, x2, u)
	if err != nil {
		return nil, errors.Wrap(err, "rk4 stage 2")
	}
	x3 := addScaled(x, dt/2, k2)
	k3, err := dyn.Evaluate(t+dt/2, x3, u)
	if err != nil {
		return nil, errors.Wrap(err, "rk4 stage 3")
	}
	x4 := addScaled(x, dt, k3)
	k4, err := dyn.Evaluate(t+dt, x4, u)
	if err != nil {
		return nil, errors.Wrap(err, "rk4 stage 4")
	}
	n := x.Len()
	sum := mat.NewVecDense(n, nil)
	sum.AddVec(k1, k4)
	twoK2K3 := mat.NewVecDense(n, nil)
	twoK2K3.AddVec(k2, k3)
	sum.AddScaledVec(sum, 2, twoK2K3)
	out := addScaled(x, dt/6, sum)
	return out, nil
}

// Sensitivity integrates dyn over [t, t+dt] from (x,u) and propagates the tangent-linear
// model alongside it, returning the flow map phi(t,dt,x,u) as F together with its
// Jacobians A=dphi/dx, B=dphi/du. The Node Transcriber forms the shooting defect
// x_{i+1} - phi from this and stores it as the stage's Dynamics.F.
func Sensitivity(
	ctx context.Context, dyn providers.Dynamics, t, dt float64, x, u *mat.VecDense,
) (mpctypes.LinearApproximation, error) {
	if err := ctx.Err(); err != nil {
		return mpctypes.LinearApproximation{}, err
	}
	nx, nu := x.Len(), u.Len()

	sx := identity(nx)
	su := mat.NewDense(nx, nu, nil)

	stage := func(tk float64, xk *mat.VecDense, sxk, suk *mat.Dense) (*mat.VecDense, *mat.Dense, *mat.Dense, error) {
		approx, err := dyn.Linearize(tk, xk, u)
		if err != nil {
			return nil, nil, nil, err
		}
		var kSx, kSu mat.Dense
		kSx.Mul(approx.DfDx, sxk)
		var aSu mat.Dense
		aSu.Mul(approx.DfDx, suk)
		kSu.Add(&aSu, approx.DfDu)
		return approx.F, &kSx, &kSu, nil
	}

	k1, kSx1, kSu1, err := stage(t, x, sx, su)
	if err != nil {
		return mpctypes.LinearApproximation{}, errors.Wrap(err, "rk4 sensitivity stage 1")
	}

	x2 := addScaled(x, dt/2, k1)
	sx2 := addScaledDense(sx, dt/2, kSx1)
	su2 := addScaledDense(su, dt/2, kSu1)
	k2, kSx2, kSu2, err := stage(t+dt/2, x2, sx2, su2)
	if err != nil {
		return mpctypes.LinearApproximation{}, errors.Wrap(err, "rk4 sensitivity stage 2")
	}

	x3 := addScaled(x, dt/2, k2)
	sx3 := addScaledDense(sx, dt/2, kSx2)
	su3 := addScaledDense(su, dt/2, kSu2)
	k3, kSx3, kSu3, err := stage(t+dt/2, x3, sx3, su3)
	if err != nil {
		return mpctypes.LinearApproximation{}, errors.Wrap(err, "rk4 sensitivity stage 3")
	}

	x4 := addScaled(x, dt, k3)
	sx4 := addScaledDense(sx, dt, kSx3)
	su4 := addScaledDense(su, dt, kSu3)
	k4, kSx4, kSu4, err := stage(t+dt, x4, sx4, su4)
	if err != nil {
		return mpctypes.LinearApproximation{}, errors.Wrap(err, "rk4 sensitivity stage 4")
	}

	xOut := addScaled(x, dt/6, weightedSum(k1, k2, k3, k4))
	sxOut := addScaledDense(sx, dt/6, weightedSumDense(kSx1, kSx2, kSx3, kSx4))
	suOut := addScaledDense(su, dt/6, weightedSumDense(kSu1, kSu2, kSu3, kSu4))

	return mpctypes.LinearApproximation{F: xOut, DfDx: sxOut, DfDu: suOut}, nil
}

// Selector is the providers.IntegratorSelector for this package's integrator type name.
func Selector(integratorType string) (providers.ValueDiscretizer, providers.SensitivityDiscretizer, error) {
	if integratorType != "rk4" && integratorType != "" {
		return nil, nil, errors.Errorf("rk4 selector: unsupported integrator type %q", integratorType)
	}
	return Value, Sensitivity, nil
}

func addScaled(x *mat.VecDense, alpha float64, k *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(x.Len(), nil)
	out.AddScaledVec(x, alpha, k)
	return out
}

func addScaledDense(base *mat.Dense, alpha float64, delta *mat.Dense) *mat.Dense {
	r, c := base.Dims()
	out := mat.NewDense(r, c, nil)
	var scaled mat.Dense
	scaled.Scale(alpha, delta)
	out.Add(base, &scaled)
	return out
}

func weightedSum(k1, k2, k3, k4 *mat.VecDense) *mat.VecDense {
	n := k1.Len()
	out := mat.NewVecDense(n, nil)
	out.AddVec(k1, k4)
	mid := mat.NewVecDense(n, nil)
	mid.AddVec(k2, k3)
	out.AddScaledVec(out, 2, mid)
	return out
}

func weightedSumDense(k1, k2, k3, k4 *mat.Dense) *mat.Dense {
	r, c := k1.Dims()
	out := mat.NewDense(r, c, nil)
	out.Add(k1, k4)
	mid := mat.NewDense(r, c, nil)
	mid.Add(k2, k3)
	var scaledMid mat.Dense
	scaledMid.Scale(2, mid)
	out.Add(out, &scaledMid)
	return out
}

func identity(n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}
