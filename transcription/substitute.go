package transcription

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
)

// substituteAffine rewrites an affine map a(dx,du) = F + DfDx*dx + DfDu*du in terms of a
// reduced free input dutilde, given the projection du = du0 + Ax*dx + Bz*dutilde:
//
//	a(dx,dutilde) = (F + DfDu*du0) + (DfDx + DfDu*Ax)*dx + (DfDu*Bz)*dutilde
func substituteAffine(a mpctypes.LinearApproximation, ax, bz *mat.Dense, du0 *mat.VecDense) mpctypes.LinearApproximation {
	if a.Rows() == 0 {
		return a
	}
	var duF mat.VecDense
	duF.MulVec(a.DfDu, du0)
	fNew := mat.NewVecDense(a.Rows(), nil)
	fNew.AddVec(a.F, &duF)

	var dfduAx mat.Dense
	dfduAx.Mul(a.DfDu, ax)
	var dfdxNew mat.Dense
	dfdxNew.Add(a.DfDx, &dfduAx)

	var dfduNew mat.Dense
	dfduNew.Mul(a.DfDu, bz)

	return mpctypes.LinearApproximation{F: fNew, DfDx: &dfdxNew, DfDu: &dfduNew}
}

// substituteQuadratic rewrites a quadratic cost q(dx,du) in terms of a reduced free input
// dutilde under the same projection du = du0 + Ax*dx + Bz*dutilde, by assembling the full
// [dx;du] quadratic form, composing it with the affine map w=[dx;dutilde] -> [dx;du], and
// reading the new blocks back off (spec.md §4.B, "Equality projection").
func substituteQuadratic(q mpctypes.QuadraticApproximation, ax, bz *mat.Dense, du0 *mat.VecDense) mpctypes.QuadraticApproximation {
	nx, _ := q.DfDxx.Dims()
	nu := q.DfDu.Len()
	nz, _ := bz.Dims()
	_ = nz
	_, nzCols := bz.Dims()
	nz = nzCols

	// g = [dfdx; dfdu], H = [[Hxx, Hux'],[Hux, Huu]]
	g := mat.NewVecDense(nx+nu, nil)
	for i := 0; i < nx; i++ {
		g.SetVec(i, q.DfDx.AtVec(i))
	}
	for i := 0; i < nu; i++ {
		g.SetVec(nx+i, q.DfDu.AtVec(i))
	}
	h := mat.NewDense(nx+nu, nx+nu, nil)
	for i := 0; i < nx; i++ {
		for j := 0; j < nx; j++ {
			h.Set(i, j, q.DfDxx.At(i, j))
		}
	}
	for i := 0; i < nu; i++ {
		for j := 0; j < nu; j++ {
			h.Set(nx+i, nx+j, q.DfDuu.At(i, j))
		}
	}
	for i := 0; i < nu; i++ {
		for j := 0; j < nx; j++ {
			h.Set(nx+i, j, q.DfDux.At(i, j))
			h.Set(j, nx+i, q.DfDux.At(i, j))
		}
	}

	// M = [[I,0],[Ax,Bz]], b0 = [0; du0]
	m := mat.NewDense(nx+nu, nx+nz, nil)
	for i := 0; i < nx; i++ {
		m.Set(i, i, 1)
	}
	for i := 0; i < nu; i++ {
		for j := 0; j < nx; j++ {
			m.Set(nx+i, j, ax.At(i, j))
		}
		for j := 0; j < nz; j++ {
			m.Set(nx+i, nx+j, bz.At(i, j))
		}
	}
	b0 := mat.NewVecDense(nx+nu, nil)
	for i := 0; i < nu; i++ {
		b0.SetVec(nx+i, du0.AtVec(i))
	}

	var hb0 mat.VecDense
	hb0.MulVec(h, b0)
	fNew := q.F + mat.Dot(g, b0) + 0.5*mat.Dot(b0, &hb0)

	var mtG mat.VecDense
	mtG.MulVec(m.T(), g)
	var mtHb0 mat.VecDense
	mtHb0.MulVec(m.T(), &hb0)
	var gNew mat.VecDense
	gNew.AddVec(&mtG, &mtHb0)

	var mtH, hNew mat.Dense
	mtH.Mul(m.T(), h)
	hNew.Mul(&mtH, m)

	dfdxNew := mat.NewVecDense(nx, nil)
	dfduNew := mat.NewVecDense(nz, nil)
	for i := 0; i < nx; i++ {
		dfdxNew.SetVec(i, gNew.AtVec(i))
	}
	for i := 0; i < nz; i++ {
		dfduNew.SetVec(i, gNew.AtVec(nx+i))
	}
	dfdxxNew := mat.NewDense(nx, nx, nil)
	dfduuNew := mat.NewDense(nz, nz, nil)
	dfduxNew := mat.NewDense(nz, nx, nil)
	for i := 0; i < nx; i++ {
		for j := 0; j < nx; j++ {
			dfdxxNew.Set(i, j, hNew.At(i, j))
		}
	}
	for i := 0; i < nz; i++ {
		for j := 0; j < nz; j++ {
			dfduuNew.Set(i, j, hNew.At(nx+i, nx+j))
		}
	}
	for i := 0; i < nz; i++ {
		for j := 0; j < nx; j++ {
			dfduxNew.Set(i, j, hNew.At(nx+i, j))
		}
	}

	return mpctypes.QuadraticApproximation{
		F: fNew, DfDx: dfdxNew, DfDu: dfduNew,
		DfDxx: dfdxxNew, DfDuu: dfduuNew, DfDux: dfduxNew,
	}
}
