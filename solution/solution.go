// Package solution implements the final step of the SQP iteration (spec.md §4.E): applying
// an accepted primal step to the state/input trajectories, remapping a projected stage's
// reduced input back to the physical input, synthesizing the feedforward+gain controller
// from the QP back-end's Riccati feedback, and warm-starting the next Run call's trajectory
// guess from the previous solution.
package solution

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/providers"
)

// RemapDeltaU expands each stage's QP-native step du_tilde_i back to the physical input
// step: du_i = proj.F + proj.DfDx*dx_i + proj.DfDu*du_tilde_i when the stage carries an
// active equality projection (spec.md §4.B), and du_tilde_i unchanged otherwise. len(deltaU)
// may be shorter than len(stages) at event-starting intervals, which carry no input and are
// passed through as zero-length vectors.
func RemapDeltaU(stages []mpctypes.StagePayload, deltaX, deltaU []*mat.VecDense) []*mat.VecDense {
	out := make([]*mat.VecDense, len(deltaU))
	for i, du := range deltaU {
		proj := stages[i].ConstraintsProjection
		if proj.Rows() == 0 {
			out[i] = du
			continue
		}
		u := mat.NewVecDense(proj.Rows(), nil)
		u.CopyVec(proj.F)
		if proj.DfDx != nil {
			var term mat.VecDense
			term.MulVec(proj.DfDx, deltaX[i])
			u.AddVec(u, &term)
		}
		if proj.DfDu != nil && du.Len() > 0 {
			var term mat.VecDense
			term.MulVec(proj.DfDu, du)
			u.AddVec(u, &term)
		}
		out[i] = u
	}
	return out
}

// ApplyStep forms the trial trajectory x + alpha*deltaX, u + alpha*deltaU. An input entry
// of length 0 (an event-starting interval, which has no decision input) is left untouched.
func ApplyStep(x, u, deltaX, deltaU []*mat.VecDense, alpha float64) (newX, newU []*mat.VecDense) {
	newX = make([]*mat.VecDense, len(x))
	for i := range x {
		v := mat.NewVecDense(x[i].Len(), nil)
		v.AddScaledVec(x[i], alpha, deltaX[i])
		newX[i] = v
	}
	newU = make([]*mat.VecDense, len(u))
	for i := range u {
		if deltaU[i].Len() == 0 {
			newU[i] = u[i]
			continue
		}
		v := mat.NewVecDense(u[i].Len(), nil)
		v.AddScaledVec(u[i], alpha, deltaU[i])
		newU[i] = v
	}
	return newX, newU
}

// BuildInputTrajectory expands the per-interval input sequence (length len(grid)-1) into a
// per-node trajectory (length len(grid)) for reporting alongside StateTrajectory: node i's
// input is the input active over the interval starting at i, the last node duplicates the
// previous entry, and a PreEvent node repeats the input of the Interior node preceding it
// (it has no decision input of its own).
func BuildInputTrajectory(grid []mpctypes.AnnotatedTime, u []*mat.VecDense) []*mat.VecDense {
	n := len(grid)
	out := make([]*mat.VecDense, n)
	for i := 0; i < n-1; i++ {
		out[i] = u[i]
	}
	if n > 1 {
		out[n-1] = out[n-2]
	} else if n == 1 {
		out[0] = mat.NewVecDense(0, nil)
	}
	for i := 1; i < n; i++ {
		if grid[i].Event == mpctypes.PreEvent {
			out[i] = out[i-1]
		}
	}
	return out
}

// BuildController synthesizes the feedforward+gain controller from the accepted trajectory
// and the QP back-end's Riccati feedback. When useFeedback is false or K is nil, the
// returned controller is feedforward-only (Gain is left empty), the documented degradation
// of spec.md §9 when RiccatiFeedback could not be produced. At a stage carrying an active
// equality projection, the physical gain K_i^full = proj.DfDx + proj.DfDu*K_i composes the
// projection's own state feedback with the reduced-input gain.
func BuildController(
	grid []mpctypes.AnnotatedTime,
	stages []mpctypes.StagePayload,
	x, u []*mat.VecDense,
	k []*mat.Dense,
	useFeedback bool,
) *mpctypes.Controller {
	n := len(grid)
	times := make([]float64, n)
	for i, a := range grid {
		times[i] = a.Time
	}
	ff := BuildInputTrajectory(grid, u)

	if !useFeedback || k == nil {
		return &mpctypes.Controller{Time: times, FeedForward: ff, UseFeedbackPolicy: false}
	}

	gain := make([]*mat.Dense, n)
	for i := 0; i < n-1; i++ {
		gain[i] = fullGain(stages[i], k[i])
	}
	if n > 1 {
		gain[n-1] = gain[n-2]
	}
	for i := 1; i < n; i++ {
		if grid[i].Event == mpctypes.PreEvent {
			gain[i] = gain[i-1]
		}
	}

	feedforward := make([]*mat.VecDense, n)
	for i, gn := range gain {
		if gn == nil || ff[i].Len() == 0 {
			feedforward[i] = ff[i]
			continue
		}
		r, _ := gn.Dims()
		if r == 0 {
			feedforward[i] = ff[i]
			continue
		}
		var gx mat.VecDense
		gx.MulVec(gn, x[i])
		v := mat.NewVecDense(ff[i].Len(), nil)
		v.SubVec(ff[i], &gx)
		feedforward[i] = v
	}

	return &mpctypes.Controller{Time: times, FeedForward: feedforward, Gain: gain, UseFeedbackPolicy: true}
}

// fullGain composes a reduced-input Riccati gain with a stage's equality projection, so the
// resulting K acts on the physical input: u = uff + K*x, rather than on the projection's
// free coordinate dutilde.
func fullGain(stage mpctypes.StagePayload, kRed *mat.Dense) *mat.Dense {
	proj := stage.ConstraintsProjection
	if proj.Rows() == 0 {
		return kRed
	}
	r, c := proj.DfDx.Dims()
	out := mat.NewDense(r, c, nil)
	out.Copy(proj.DfDx)
	if proj.DfDu != nil && kRed != nil {
		rk, _ := kRed.Dims()
		if rk > 0 {
			var term mat.Dense
			term.Mul(proj.DfDu, kRed)
			out.Add(out, &term)
		}
	}
	return out
}

// Build assembles the reported PrimalSolution from the accepted state/input trajectories and
// synthesized controller.
func Build(grid []mpctypes.AnnotatedTime, x, u []*mat.VecDense, controller *mpctypes.Controller, modeSchedule interface{}) mpctypes.PrimalSolution {
	times := make([]float64, len(grid))
	for i, a := range grid {
		times[i] = a.Time
	}
	return mpctypes.PrimalSolution{
		TimeTrajectory:  times,
		StateTrajectory: x,
		InputTrajectory: BuildInputTrajectory(grid, u),
		Controller:      controller,
		ModeSchedule:    modeSchedule,
	}
}

// InitStates seeds the state-trajectory guess for a Run call: the first call (prev == nil)
// holds every node at initState; subsequent calls pin node 0 to initState and interpolate
// the remaining nodes from the previous solution's trajectory, the warm-start rule of
// spec.md §4.E.
func InitStates(grid []mpctypes.AnnotatedTime, initState *mat.VecDense, prev *mpctypes.PrimalSolution) []*mat.VecDense {
	out := make([]*mat.VecDense, len(grid))
	if prev == nil {
		for i := range grid {
			out[i] = copyVec(initState)
		}
		return out
	}
	out[0] = copyVec(initState)
	for i := 1; i < len(grid); i++ {
		out[i] = interpTrajectory(prev.TimeTrajectory, prev.StateTrajectory, grid[i].Time)
	}
	return out
}

// InitInputs seeds the input-sequence guess for a Run call: within the previous controller's
// time horizon, it evaluates that controller's feedforward+gain against the freshly seeded
// state guess; outside it (or on the first call, when prevController is nil), it falls back
// to the operating-trajectories provider's seed. An event-starting interval carries no
// decision input and is seeded with a zero-length vector.
func InitInputs(
	ctx context.Context,
	grid []mpctypes.AnnotatedTime,
	x []*mat.VecDense,
	prevController *mpctypes.Controller,
	operating providers.OperatingTrajectories,
	nu int,
) ([]*mat.VecDense, error) {
	n := len(grid) - 1
	out := make([]*mat.VecDense, n)

	var seedTimes []float64
	var seedInputs []*mat.VecDense
	haveSeed := false

	for i := 0; i < n; i++ {
		if grid[i].Event == mpctypes.PreEvent {
			out[i] = mat.NewVecDense(0, nil)
			continue
		}
		if prevController != nil && withinHorizon(prevController, grid[i].Time) {
			out[i] = prevController.Evaluate(grid[i].Time, x[i])
			continue
		}
		if !haveSeed {
			times, _, inputs, err := operating.Seed(x[i], grid[0].Time, grid[n].Time)
			if err != nil {
				return nil, err
			}
			seedTimes, seedInputs = times, inputs
			haveSeed = true
		}
		out[i] = interpTrajectory(seedTimes, seedInputs, grid[i].Time)
		if out[i] == nil {
			out[i] = mat.NewVecDense(nu, nil)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func withinHorizon(c *mpctypes.Controller, t float64) bool {
	if len(c.Time) == 0 {
		return false
	}
	return t >= c.Time[0] && t <= c.Time[len(c.Time)-1]
}

// interpTrajectory linearly interpolates vals (indexed by times) at t, clamping at the
// ends. It returns nil when vals is empty.
func interpTrajectory(times []float64, vals []*mat.VecDense, t float64) *mat.VecDense {
	if len(vals) == 0 {
		return nil
	}
	if len(vals) == 1 || t <= times[0] {
		return copyVec(vals[0])
	}
	if t >= times[len(times)-1] {
		return copyVec(vals[len(vals)-1])
	}
	lo, hi := 0, len(times)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if times[mid] <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	span := times[lo+1] - times[lo]
	frac := 0.0
	if span > 0 {
		frac = (t - times[lo]) / span
	}
	out := mat.NewVecDense(vals[lo].Len(), nil)
	out.AddScaledVec(vals[lo], frac, diff(vals[lo+1], vals[lo]))
	return out
}

func diff(b, a *mat.VecDense) *mat.VecDense {
	d := mat.NewVecDense(a.Len(), nil)
	d.SubVec(b, a)
	return d
}

func copyVec(v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}
