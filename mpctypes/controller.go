package mpctypes

import (
	"gonum.org/v1/gonum/mat"
)

// Controller is the time-indexed feedforward (+ optional linear gain) policy returned
// alongside the primal trajectory: u(t) = FeedForward(t) + Gain(t)*x(t). When UseFeedbackPolicy
// is false, Gain is empty and Evaluate ignores x entirely (feedforward-only controller).
type Controller struct {
	Time              []float64
	FeedForward       []*mat.VecDense
	Gain              []*mat.Dense // nil entries, or an empty slice, when feedforward-only
	UseFeedbackPolicy bool
}

// segment returns the index i such that Time[i] <= t <= Time[i+1], clamping to the ends.
func (c *Controller) segment(t float64) (int, float64) {
	n := len(c.Time)
	if n == 0 {
		return -1, 0
	}
	if n == 1 || t <= c.Time[0] {
		return 0, 0
	}
	if t >= c.Time[n-1] {
		return n - 2, 1
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if c.Time[mid] <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	span := c.Time[lo+1] - c.Time[lo]
	frac := 0.0
	if span > 0 {
		frac = (t - c.Time[lo]) / span
	}
	return lo, frac
}

// Evaluate returns the input at time t given the current state x, linearly interpolating
// the feedforward term and, when UseFeedbackPolicy is set, the gain term between the two
// bracketing grid samples.
func (c *Controller) Evaluate(t float64, x *mat.VecDense) *mat.VecDense {
	idx, frac := c.segment(t)
	if idx < 0 {
		return nil
	}
	uff := interpVec(c.FeedForward[idx], c.FeedForward[idx+1], frac)
	if !c.UseFeedbackPolicy || len(c.Gain) == 0 {
		return uff
	}
	k := interpDense(c.Gain[idx], c.Gain[idx+1], frac)
	if k == nil {
		return uff
	}
	var kx mat.VecDense
	kx.MulVec(k, x)
	uff.AddVec(uff, &kx)
	return uff
}

func interpVec(a, b *mat.VecDense, frac float64) *mat.VecDense {
	if a == nil {
		return nil
	}
	if b == nil || frac == 0 {
		out := mat.NewVecDense(a.Len(), nil)
		out.CopyVec(a)
		return out
	}
	out := mat.NewVecDense(a.Len(), nil)
	out.AddScaledVec(a, frac, scaledDiffVec(b, a))
	return out
}

func scaledDiffVec(b, a *mat.VecDense) *mat.VecDense {
	d := mat.NewVecDense(a.Len(), nil)
	d.SubVec(b, a)
	return d
}

func interpDense(a, b *mat.Dense, frac float64) *mat.Dense {
	if a == nil {
		return b
	}
	if b == nil || frac == 0 {
		return a
	}
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.Scale(1-frac, a)
	var bScaled mat.Dense
	bScaled.Scale(frac, b)
	out.Add(out, &bScaled)
	return out
}

// PrimalSolution is the complete solver output: state/input trajectories over the
// discretized grid, together with the synthesized controller.
type PrimalSolution struct {
	TimeTrajectory  []float64
	StateTrajectory []*mat.VecDense
	InputTrajectory []*mat.VecDense
	Controller      *Controller
	ModeSchedule    interface{}
}
