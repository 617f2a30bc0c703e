package mpctypes

import "math"

// PerformanceIndex accumulates the scalar quantities that drive convergence and the
// filter line search. It is additive across stages and across worker threads.
type PerformanceIndex struct {
	TotalCost                   float64
	StateEqConstraintISE        float64
	StateInputEqConstraintISE   float64
	InequalityConstraintISE     float64
	InequalityConstraintPenalty float64
}

// Add accumulates other into p, stage-by-stage or worker-by-worker.
func (p *PerformanceIndex) Add(other PerformanceIndex) {
	p.TotalCost += other.TotalCost
	p.StateEqConstraintISE += other.StateEqConstraintISE
	p.StateInputEqConstraintISE += other.StateInputEqConstraintISE
	p.InequalityConstraintISE += other.InequalityConstraintISE
	p.InequalityConstraintPenalty += other.InequalityConstraintPenalty
}

// Merit is totalCost + inequalityConstraintPenalty, the quantity the line search tries to
// decrease.
func (p PerformanceIndex) Merit() float64 {
	return p.TotalCost + p.InequalityConstraintPenalty
}

// ConstraintViolation is theta(P) = sqrt(stateEqISE + stateInputEqISE + ineqISE), the total
// constraint violation the filter line search balances against merit.
func (p PerformanceIndex) ConstraintViolation() float64 {
	sum := p.StateEqConstraintISE + p.StateInputEqConstraintISE + p.InequalityConstraintISE
	if sum < 0 {
		// Guards against tiny negative FP noise before Sqrt; any negative sum is reported as
		// zero violation (IsFinite checks only for NaN and Inf, not for negative values).
		sum = 0
	}
	return math.Sqrt(sum)
}

// IsFinite reports whether every accumulated quantity is finite, i.e. whether this
// PerformanceIndex can be used safely by the line search or must be treated as a
// NumericalDegeneracy.
func (p PerformanceIndex) IsFinite() bool {
	vals := []float64{
		p.TotalCost,
		p.StateEqConstraintISE,
		p.StateInputEqConstraintISE,
		p.InequalityConstraintISE,
		p.InequalityConstraintPenalty,
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
