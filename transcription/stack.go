package transcription

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
)

// stackConstraints concatenates the equality block's rows on top of the inequality block's
// rows into the single affine map StagePayload.Constraints expects, with
// ConstraintsNumEquality marking the split (spec.md §4.D).
func stackConstraints(equality, inequality mpctypes.LinearApproximation) mpctypes.LinearApproximation {
	if equality.Rows() == 0 {
		return inequality
	}
	if inequality.Rows() == 0 {
		return equality
	}
	neq, nineq := equality.Rows(), inequality.Rows()
	_, nx := equality.DfDx.Dims()
	nu := equality.InputCols()

	f := mat.NewVecDense(neq+nineq, nil)
	dfdx := mat.NewDense(neq+nineq, nx, nil)
	dfdu := mat.NewDense(neq+nineq, nu, nil)
	for i := 0; i < neq; i++ {
		f.SetVec(i, equality.F.AtVec(i))
		for j := 0; j < nx; j++ {
			dfdx.Set(i, j, equality.DfDx.At(i, j))
		}
		for j := 0; j < nu; j++ {
			dfdu.Set(i, j, equality.DfDu.At(i, j))
		}
	}
	for i := 0; i < nineq; i++ {
		f.SetVec(neq+i, inequality.F.AtVec(i))
		for j := 0; j < nx; j++ {
			dfdx.Set(neq+i, j, inequality.DfDx.At(i, j))
		}
		for j := 0; j < nu; j++ {
			dfdu.Set(neq+i, j, inequality.DfDu.At(i, j))
		}
	}
	return mpctypes.LinearApproximation{F: f, DfDx: dfdx, DfDu: dfdu}
}

// scaleQuadratic scales every term of a quadratic approximation by w, used to weight an
// instantaneous cost rate by the stage duration dt when integrating it over the interval.
func scaleQuadratic(q mpctypes.QuadraticApproximation, w float64) mpctypes.QuadraticApproximation {
	out := mpctypes.QuadraticApproximation{F: q.F * w}
	out.DfDx = mat.NewVecDense(q.DfDx.Len(), nil)
	out.DfDx.ScaleVec(w, q.DfDx)
	out.DfDu = mat.NewVecDense(q.DfDu.Len(), nil)
	out.DfDu.ScaleVec(w, q.DfDu)
	out.DfDxx = mat.NewDense(q.DfDxx.RawMatrix().Rows, q.DfDxx.RawMatrix().Cols, nil)
	out.DfDxx.Scale(w, q.DfDxx)
	out.DfDuu = mat.NewDense(q.DfDuu.RawMatrix().Rows, q.DfDuu.RawMatrix().Cols, nil)
	out.DfDuu.Scale(w, q.DfDuu)
	out.DfDux = mat.NewDense(q.DfDux.RawMatrix().Rows, q.DfDux.RawMatrix().Cols, nil)
	out.DfDux.Scale(w, q.DfDux)
	return out
}
