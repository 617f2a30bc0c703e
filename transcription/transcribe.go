// Package transcription implements the Node Transcriber (spec.md §4.B): given a linearization
// point and the user-supplied dynamics/cost/constraint providers, it builds the per-stage LQ
// approximation consumed by the structured QP back-end, folding in the relaxed-barrier
// inequality penalty and, optionally, the orthogonal equality-constraint projection.
package transcription

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/msqperrors"
	"go.viam.com/msqp/providers"
)

// Options collects the per-stage transcription knobs that come from msqpsettings.Settings
// rather than the providers themselves.
type Options struct {
	ProjectEquality         bool
	InequalityConstraintMu  float64
	InequalityConstraintDelta float64
}

// SetupIntermediateNode builds the LQ approximation at an interior stage spanning
// [t, t+dt], going from x_i to x_{i+1} under input u_i. When opts.ProjectEquality is set and
// the stage carries a state-input equality block, the block is eliminated from Constraints
// and its orthogonal projection is returned in StagePayload.ConstraintsProjection; the
// dynamics, cost, and any remaining inequality block are rewritten in terms of the reduced
// free input.
func SetupIntermediateNode(
	ctx context.Context,
	dyn providers.Dynamics,
	sensitivity providers.SensitivityDiscretizer,
	cost providers.Cost,
	constraint providers.Constraint,
	desired providers.CostDesiredTrajectories,
	opts Options,
	stageIndex int,
	t, dt float64,
	xi, xNext, ui *mat.VecDense,
) (mpctypes.StagePayload, mpctypes.PerformanceIndex, error) {
	flow, err := sensitivity(ctx, dyn, t, dt, xi, ui)
	if err != nil {
		return mpctypes.StagePayload{}, mpctypes.PerformanceIndex{}, msqperrors.ProviderError(stageIndex, errors.Wrap(err, "sensitivity discretizer"))
	}
	defect := mat.NewVecDense(xNext.Len(), nil)
	defect.SubVec(xNext, flow.F)
	dynamics := mpctypes.LinearApproximation{F: defect, DfDx: flow.DfDx, DfDu: flow.DfDu}

	rawCost, err := cost.Quadraticize(t, xi, ui, desired)
	if err != nil {
		return mpctypes.StagePayload{}, mpctypes.PerformanceIndex{}, msqperrors.ProviderError(stageIndex, errors.Wrap(err, "cost quadraticize"))
	}
	rawCost = scaleQuadratic(rawCost, dt)

	equality, inequality, err := constraint.Linearize(t, xi, ui)
	if err != nil {
		return mpctypes.StagePayload{}, mpctypes.PerformanceIndex{}, msqperrors.ProviderError(stageIndex, errors.Wrap(err, "constraint linearize"))
	}

	perf := mpctypes.PerformanceIndex{TotalCost: rawCost.F}
	perf.StateEqConstraintISE = mat.Dot(defect, defect)
	if equality.Rows() > 0 {
		perf.StateInputEqConstraintISE = mat.Dot(equality.F, equality.F)
	}

	costForQP := rawCost
	if opts.InequalityConstraintMu > 0 && inequality.Rows() > 0 {
		penaltySum, violISE := applyInequalityPenalty(&costForQP, inequality, opts.InequalityConstraintMu, opts.InequalityConstraintDelta)
		perf.InequalityConstraintISE = violISE
		perf.InequalityConstraintPenalty = penaltySum
		costForQP.F = rawCost.F + penaltySum
	}

	projection := mpctypes.ZeroLinearApproximation()
	constraints := stackConstraints(equality, inequality)
	numEquality := equality.Rows()

	if opts.ProjectEquality && equality.Rows() > 0 {
		projection, err = projectEqualityConstraint(equality)
		if err != nil {
			return mpctypes.StagePayload{}, mpctypes.PerformanceIndex{}, msqperrors.NumericalDegeneracy("equality projection at stage " + strconv.Itoa(stageIndex))
		}
		// dynamics.F is the defect d, which the QP link uses with a minus sign
		// (dx_{i+1} = DfDx*dx + DfDu*du - d), so substitute into -d + DfDx*dx + DfDu*du and
		// negate the resulting constant back.
		negDefect := mat.NewVecDense(dynamics.F.Len(), nil)
		negDefect.ScaleVec(-1, dynamics.F)
		dynamics = substituteAffine(
			mpctypes.LinearApproximation{F: negDefect, DfDx: dynamics.DfDx, DfDu: dynamics.DfDu},
			projection.DfDx, projection.DfDu, projection.F)
		dynamics.F.ScaleVec(-1, dynamics.F)
		costForQP = substituteQuadratic(costForQP, projection.DfDx, projection.DfDu, projection.F)
		if inequality.Rows() > 0 {
			inequality = substituteAffine(inequality, projection.DfDx, projection.DfDu, projection.F)
		}
		constraints = inequality
		numEquality = 0
	}

	payload := mpctypes.StagePayload{
		Dynamics:               dynamics,
		Cost:                   costForQP,
		Constraints:            constraints,
		ConstraintsNumEquality: numEquality,
		ConstraintsProjection:  projection,
	}
	return payload, perf, nil
}

// SetupEventNode builds the LQ approximation at a mode-switch boundary: a pure state jump
// with no decision input, costed and constrained as a function of (t,x) only. Costs and
// constraints at an event are evaluated exactly at t, not integrated over an interval.
func SetupEventNode(
	dyn providers.EventDynamics,
	cost providers.TerminalCost,
	constraint providers.EventConstraint,
	desired providers.CostDesiredTrajectories,
	stageIndex int,
	t float64,
	xi, xNext *mat.VecDense,
) (mpctypes.StagePayload, mpctypes.PerformanceIndex, error) {
	jump, err := dyn.Linearize(t, xi)
	if err != nil {
		return mpctypes.StagePayload{}, mpctypes.PerformanceIndex{}, msqperrors.ProviderError(stageIndex, errors.Wrap(err, "event dynamics linearize"))
	}
	defect := mat.NewVecDense(xNext.Len(), nil)
	defect.SubVec(xNext, jump.F)
	dfdu := jump.DfDu
	if dfdu == nil {
		dfdu = mat.NewDense(xi.Len(), 0, nil)
	}
	dynamics := mpctypes.LinearApproximation{F: defect, DfDx: jump.DfDx, DfDu: dfdu}

	rawCost, err := cost.Quadraticize(t, xi, desired)
	if err != nil {
		return mpctypes.StagePayload{}, mpctypes.PerformanceIndex{}, msqperrors.ProviderError(stageIndex, errors.Wrap(err, "event cost quadraticize"))
	}
	fillZeroInputBlocks(&rawCost, xi.Len())

	equality, inequality, err := constraint.Linearize(t, xi)
	if err != nil {
		return mpctypes.StagePayload{}, mpctypes.PerformanceIndex{}, msqperrors.ProviderError(stageIndex, errors.Wrap(err, "event constraint linearize"))
	}

	perf := mpctypes.PerformanceIndex{TotalCost: rawCost.F}
	perf.StateEqConstraintISE = mat.Dot(defect, defect)
	if equality.Rows() > 0 {
		perf.StateInputEqConstraintISE = mat.Dot(equality.F, equality.F)
	}
	if inequality.Rows() > 0 {
		sum := 0.0
		for j := 0; j < inequality.Rows(); j++ {
			sum += violationSquared(inequality.F.AtVec(j))
		}
		perf.InequalityConstraintISE = sum
	}

	payload := mpctypes.StagePayload{
		Dynamics:               dynamics,
		Cost:                   rawCost,
		Constraints:            stackConstraints(equality, inequality),
		ConstraintsNumEquality: equality.Rows(),
		ConstraintsProjection:  mpctypes.ZeroLinearApproximation(),
	}
	return payload, perf, nil
}

// SetupTerminalNode builds the LQ approximation at the final node: a cost and constraint
// block with no dynamics.
func SetupTerminalNode(
	terminalCost providers.TerminalCost,
	constraint providers.EventConstraint,
	desired providers.CostDesiredTrajectories,
	stageIndex int,
	t float64,
	xN *mat.VecDense,
) (mpctypes.StagePayload, mpctypes.PerformanceIndex, error) {
	rawCost, err := terminalCost.Quadraticize(t, xN, desired)
	if err != nil {
		return mpctypes.StagePayload{}, mpctypes.PerformanceIndex{}, msqperrors.ProviderError(stageIndex, errors.Wrap(err, "terminal cost quadraticize"))
	}
	fillZeroInputBlocks(&rawCost, xN.Len())

	equality, inequality, err := constraint.Linearize(t, xN)
	if err != nil {
		return mpctypes.StagePayload{}, mpctypes.PerformanceIndex{}, msqperrors.ProviderError(stageIndex, errors.Wrap(err, "terminal constraint linearize"))
	}

	perf := mpctypes.PerformanceIndex{TotalCost: rawCost.F}
	if equality.Rows() > 0 {
		perf.StateInputEqConstraintISE = mat.Dot(equality.F, equality.F)
	}
	if inequality.Rows() > 0 {
		sum := 0.0
		for j := 0; j < inequality.Rows(); j++ {
			sum += violationSquared(inequality.F.AtVec(j))
		}
		perf.InequalityConstraintISE = sum
	}

	payload := mpctypes.StagePayload{
		Cost:                   rawCost,
		Constraints:            stackConstraints(equality, inequality),
		ConstraintsNumEquality: equality.Rows(),
		ConstraintsProjection:  mpctypes.ZeroLinearApproximation(),
	}
	return payload, perf, nil
}

// fillZeroInputBlocks normalizes a (t,x)-only QuadraticApproximation (DfDu/DfDuu/DfDux left
// nil by TerminalCost implementations) to explicit zero-sized blocks, so downstream code can
// treat every StagePayload.Cost uniformly.
func fillZeroInputBlocks(q *mpctypes.QuadraticApproximation, nx int) {
	if q.DfDu == nil {
		q.DfDu = mat.NewVecDense(0, nil)
	}
	if q.DfDuu == nil {
		q.DfDuu = mat.NewDense(0, 0, nil)
	}
	if q.DfDux == nil {
		q.DfDux = mat.NewDense(0, nx, nil)
	}
}

// applyInequalityPenalty adds the relaxed-barrier penalty's local quadratic model to cost in
// place, via the chain rule through the inequality block's own linearization (which is exact,
// since that linearization is already affine in (dx,du)). It returns the summed penalty value
// and the summed raw violation-squared used for InequalityConstraintPenalty/ISE.
func applyInequalityPenalty(cost *mpctypes.QuadraticApproximation, ineq mpctypes.LinearApproximation, mu, delta float64) (penaltySum, violISE float64) {
	nx := cost.DfDx.Len()
	nu := cost.DfDu.Len()
	for j := 0; j < ineq.Rows(); j++ {
		g := ineq.F.AtVec(j)
		db, ddb := relaxedBarrierDerivatives(g, mu, delta)
		penaltySum += relaxedBarrierValue(g, mu, delta)
		violISE += violationSquared(g)

		for i := 0; i < nx; i++ {
			cost.DfDx.SetVec(i, cost.DfDx.AtVec(i)+db*ineq.DfDx.At(j, i))
		}
		for i := 0; i < nu; i++ {
			cost.DfDu.SetVec(i, cost.DfDu.AtVec(i)+db*ineq.DfDu.At(j, i))
		}
		for i := 0; i < nx; i++ {
			for k := 0; k < nx; k++ {
				cost.DfDxx.Set(i, k, cost.DfDxx.At(i, k)+ddb*ineq.DfDx.At(j, i)*ineq.DfDx.At(j, k))
			}
		}
		for i := 0; i < nu; i++ {
			for k := 0; k < nu; k++ {
				cost.DfDuu.Set(i, k, cost.DfDuu.At(i, k)+ddb*ineq.DfDu.At(j, i)*ineq.DfDu.At(j, k))
			}
		}
		for i := 0; i < nu; i++ {
			for k := 0; k < nx; k++ {
				cost.DfDux.Set(i, k, cost.DfDux.At(i, k)+ddb*ineq.DfDu.At(j, i)*ineq.DfDx.At(j, k))
			}
		}
	}
	return penaltySum, violISE
}
