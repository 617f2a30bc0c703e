package transcription

import "math"

// relaxedBarrierValue evaluates the relaxed-barrier penalty for one inequality row g<=0,
// where z=-g is the slack: a log-barrier inside the feasible set (z>=delta) and a smooth
// quadratic extrapolation outside it, so the penalty stays twice differentiable everywhere
// (spec.md glossary, "Relaxed barrier").
func relaxedBarrierValue(g, mu, delta float64) float64 {
	z := -g
	if z >= delta {
		return -mu * math.Log(z)
	}
	return mu * (0.5*math.Pow((z-2*delta)/delta, 2) - 0.5 - math.Log(delta))
}

// relaxedBarrierDerivatives returns d(penalty)/dg and d^2(penalty)/dg^2.
func relaxedBarrierDerivatives(g, mu, delta float64) (dg, ddg float64) {
	z := -g
	if z >= delta {
		// d(penalty)/dz = -mu/z; dz/dg = -1, so d(penalty)/dg = mu/z.
		dg = mu / z
		ddg = mu / (z * z)
		return dg, ddg
	}
	// Quadratic extrapolation: d(penalty)/dz = mu*(z-2*delta)/delta^2; dz/dg=-1.
	dPenaltyDz := mu * (z - 2*delta) / (delta * delta)
	dg = -dPenaltyDz
	ddg = mu / (delta * delta)
	return dg, ddg
}

// violationSquared is the raw (unpenalized) constraint violation used for
// inequalityConstraintISE: max(g,0)^2.
func violationSquared(g float64) float64 {
	v := math.Max(g, 0)
	return v * v
}
