package transcription

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
)

// svdTolerance is the relative threshold below which a singular value is treated as zero
// when building the pseudo-inverse and null-space basis.
const svdTolerance = 1e-10

// projectEqualityConstraint eliminates a state-input equality block C*du + D*dx + e = 0 by
// expressing du in terms of a reduced free input dutilde:
//
//	du = Pf + Pdx*dx + Pdu*dutilde
//
// via the orthogonal (minimum-norm) SVD decomposition of C: Pdx = -C^+ D, Pf = -C^+ e, and
// Pdu is an orthonormal basis of null(C) (spec.md §4.B, "Equality projection"). equality.DfDu
// (C) must have full row rank; a rank-deficient block zeroes out the corresponding
// pseudo-inverse directions rather than erroring, since the redundant row simply contributes
// nothing to the projection.
func projectEqualityConstraint(equality mpctypes.LinearApproximation) (mpctypes.LinearApproximation, error) {
	neq := equality.Rows()
	if neq == 0 {
		return mpctypes.ZeroLinearApproximation(), nil
	}
	C := equality.DfDu
	D := equality.DfDx
	e := equality.F
	_, nu := C.Dims()
	if neq > nu {
		return mpctypes.LinearApproximation{}, errors.Errorf(
			"equality projection: %d equality rows exceed %d inputs", neq, nu)
	}

	var svd mat.SVD
	if ok := svd.Factorize(C, mat.SVDFull); !ok {
		return mpctypes.LinearApproximation{}, errors.New("equality projection: SVD factorization failed")
	}
	sigma := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	sigmaPlus := mat.NewDense(nu, neq, nil)
	maxSigma := 0.0
	for _, s := range sigma {
		if s > maxSigma {
			maxSigma = s
		}
	}
	for i := 0; i < neq; i++ {
		if sigma[i] > svdTolerance*maxSigma {
			sigmaPlus.Set(i, i, 1/sigma[i])
		}
	}

	var vSigmaPlus, cPlus mat.Dense
	vSigmaPlus.Mul(&v, sigmaPlus)
	cPlus.Mul(&vSigmaPlus, u.T())

	pdu := mat.DenseCopyOf(v.Slice(0, nu, neq, nu))

	pf := mat.NewVecDense(nu, nil)
	pf.MulVec(&cPlus, e)
	pf.ScaleVec(-1, pf)

	var pdx mat.Dense
	pdx.Mul(&cPlus, D)
	pdx.Scale(-1, &pdx)

	return mpctypes.LinearApproximation{F: pf, DfDx: &pdx, DfDu: pdu}, nil
}
