package mpctypes

import "gonum.org/v1/gonum/mat"

// LinearApproximation is an affine model f + dfdx*dx + dfdu*du. It is reused for three
// distinct roles across the solver: a dynamics/defect model, a stacked constraint model,
// and the equality-projection map du = f + dfdx*dx + dfdu*dutilde. In the dynamics role F
// holds the shooting defect x_{i+1} - phi and enters the QP link with a minus sign:
// dx_{i+1} = dfdx*dx + dfdu*du - F. The zero-row convention
// (F.Len() == 0) means "absent" for constraints and "no projection applied" for
// ConstraintsProjection; DfDu may independently have zero columns at event stages, where
// there is no decision input.
type LinearApproximation struct {
	F    *mat.VecDense
	DfDx *mat.Dense
	DfDu *mat.Dense
}

// ZeroLinearApproximation returns the canonical "absent" value: an F vector of length 0.
func ZeroLinearApproximation() LinearApproximation {
	return LinearApproximation{F: mat.NewVecDense(0, nil)}
}

// Rows reports the number of rows of the affine map, i.e. len(F); this is the convention
// used throughout the solver to detect "no constraint"/"no projection".
func (a LinearApproximation) Rows() int {
	if a.F == nil {
		return 0
	}
	return a.F.Len()
}

// InputCols reports the number of input columns (0 at event stages or when DfDu is nil).
func (a LinearApproximation) InputCols() int {
	if a.DfDu == nil {
		return 0
	}
	_, c := a.DfDu.Dims()
	return c
}

// QuadraticApproximation is a second-order Taylor model of a scalar cost:
// f + dfdx.dx + dfdu.du + 1/2 dx'.dfdxx.dx + 1/2 du'.dfduu.du + du'.dfdux.dx.
type QuadraticApproximation struct {
	F     float64
	DfDx  *mat.VecDense
	DfDu  *mat.VecDense
	DfDxx *mat.Dense
	DfDuu *mat.Dense
	DfDux *mat.Dense
}

// StagePayload is the output of the Node Transcriber for a single stage, consumed by the
// QP back-end. Dynamics and ConstraintsProjection are absent for the terminal stage.
//
// Constraints stacks equality rows first, then inequality rows; ConstraintsNumEquality
// says where the split falls, so C_i*dx + D_i*du + e_i is "=0" for rows before the split
// and "<=0" for rows at or after it, matching the single stacked block of spec.md §4.D.
type StagePayload struct {
	Dynamics               LinearApproximation
	Cost                   QuadraticApproximation
	Constraints            LinearApproximation
	ConstraintsNumEquality int
	ConstraintsProjection  LinearApproximation
}

// NumInequality returns the number of inequality rows in Constraints.
func (s StagePayload) NumInequality() int {
	return s.Constraints.Rows() - s.ConstraintsNumEquality
}

// StageConstraintSpec is the slice of a StagePayload the QP back-end actually needs: the
// stacked constraint block and where the equality/inequality split falls. A zero-row
// Constraint means "unconstrained at this stage".
type StageConstraintSpec struct {
	Constraint  LinearApproximation
	NumEquality int
}

// FromStagePayload extracts the StageConstraintSpec carried by a StagePayload.
func FromStagePayload(s StagePayload) StageConstraintSpec {
	return StageConstraintSpec{Constraint: s.Constraints, NumEquality: s.ConstraintsNumEquality}
}
