package solution

import (
	"context"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/providers/fakes"
)

func TestRemapDeltaUPassesThroughWithoutProjection(t *testing.T) {
	stages := []mpctypes.StagePayload{{ConstraintsProjection: mpctypes.ZeroLinearApproximation()}}
	du := []*mat.VecDense{mat.NewVecDense(1, []float64{2})}
	dx := []*mat.VecDense{mat.NewVecDense(1, []float64{0})}
	out := RemapDeltaU(stages, dx, du)
	test.That(t, out[0].AtVec(0), test.ShouldAlmostEqual, 2.0)
}

func TestRemapDeltaUComposesProjection(t *testing.T) {
	// du = f + dfdx*dx + dfdu*dutilde, with f=1, dfdx=[2], dfdu=[3].
	proj := mpctypes.LinearApproximation{
		F:    mat.NewVecDense(1, []float64{1}),
		DfDx: mat.NewDense(1, 1, []float64{2}),
		DfDu: mat.NewDense(1, 1, []float64{3}),
	}
	stages := []mpctypes.StagePayload{{ConstraintsProjection: proj}}
	dx := []*mat.VecDense{mat.NewVecDense(1, []float64{5})}
	dutilde := []*mat.VecDense{mat.NewVecDense(1, []float64{7})}
	out := RemapDeltaU(stages, dx, dutilde)
	// 1 + 2*5 + 3*7 = 32
	test.That(t, out[0].AtVec(0), test.ShouldAlmostEqual, 32.0)
}

func TestApplyStepScalesByAlpha(t *testing.T) {
	x := []*mat.VecDense{mat.NewVecDense(1, []float64{1})}
	u := []*mat.VecDense{mat.NewVecDense(1, []float64{2})}
	dx := []*mat.VecDense{mat.NewVecDense(1, []float64{4})}
	du := []*mat.VecDense{mat.NewVecDense(1, []float64{6})}
	newX, newU := ApplyStep(x, u, dx, du, 0.5)
	test.That(t, newX[0].AtVec(0), test.ShouldAlmostEqual, 3.0)
	test.That(t, newU[0].AtVec(0), test.ShouldAlmostEqual, 5.0)
}

func TestApplyStepLeavesEventIntervalInputUnchanged(t *testing.T) {
	x := []*mat.VecDense{mat.NewVecDense(1, []float64{1})}
	u := []*mat.VecDense{mat.NewVecDense(0, nil)}
	dx := []*mat.VecDense{mat.NewVecDense(1, []float64{1})}
	du := []*mat.VecDense{mat.NewVecDense(0, nil)}
	_, newU := ApplyStep(x, u, dx, du, 1.0)
	test.That(t, newU[0].Len(), test.ShouldEqual, 0)
}

func TestBuildInputTrajectoryDuplicatesLastAndRepeatsPreEvent(t *testing.T) {
	grid := []mpctypes.AnnotatedTime{
		{Time: 0, Event: mpctypes.Interior},
		{Time: 1, Event: mpctypes.PreEvent},
		{Time: 1, Event: mpctypes.Interior},
		{Time: 2, Event: mpctypes.Interior},
	}
	u := []*mat.VecDense{
		mat.NewVecDense(1, []float64{1}),
		mat.NewVecDense(0, nil), // event-starting interval carries no input
		mat.NewVecDense(1, []float64{3}),
	}
	out := BuildInputTrajectory(grid, u)
	test.That(t, len(out), test.ShouldEqual, 4)
	test.That(t, out[0].AtVec(0), test.ShouldAlmostEqual, 1.0)
	// node 1 is the PreEvent node: repeats node 0's input.
	test.That(t, out[1].AtVec(0), test.ShouldAlmostEqual, 1.0)
	test.That(t, out[2].AtVec(0), test.ShouldAlmostEqual, 3.0)
	// last node duplicates the previous entry.
	test.That(t, out[3].AtVec(0), test.ShouldAlmostEqual, 3.0)
}

func TestInitStatesFirstCallSeedsEveryNodeWithInitState(t *testing.T) {
	grid := []mpctypes.AnnotatedTime{{Time: 0}, {Time: 1}, {Time: 2}}
	x0 := mat.NewVecDense(2, []float64{1, 2})
	out := InitStates(grid, x0, nil)
	test.That(t, len(out), test.ShouldEqual, 3)
	for _, v := range out {
		test.That(t, v.AtVec(0), test.ShouldAlmostEqual, 1.0)
		test.That(t, v.AtVec(1), test.ShouldAlmostEqual, 2.0)
	}
	// the returned slice must not alias the caller's initState.
	out[0].SetVec(0, 99)
	test.That(t, x0.AtVec(0), test.ShouldAlmostEqual, 1.0)
}

func TestInitStatesWarmStartsFromPreviousTrajectory(t *testing.T) {
	prev := &mpctypes.PrimalSolution{
		TimeTrajectory:  []float64{0, 1, 2},
		StateTrajectory: []*mat.VecDense{
			mat.NewVecDense(1, []float64{0}),
			mat.NewVecDense(1, []float64{10}),
			mat.NewVecDense(1, []float64{20}),
		},
	}
	grid := []mpctypes.AnnotatedTime{{Time: 0.5}, {Time: 1.5}}
	x0 := mat.NewVecDense(1, []float64{-1})
	out := InitStates(grid, x0, prev)
	test.That(t, out[0].AtVec(0), test.ShouldAlmostEqual, -1.0) // pinned to the new measured state
	test.That(t, out[1].AtVec(0), test.ShouldAlmostEqual, 15.0) // interpolated between 10 and 20
}

func TestInitInputsFallsBackToOperatingTrajectoriesWithNoPreviousController(t *testing.T) {
	grid := []mpctypes.AnnotatedTime{{Time: 0}, {Time: 1}, {Time: 2}}
	x := []*mat.VecDense{
		mat.NewVecDense(2, []float64{0, 0}),
		mat.NewVecDense(2, []float64{0, 0}),
		mat.NewVecDense(2, []float64{0, 0}),
	}
	op := fakes.ZeroOperatingTrajectories{Nx: 2, Nu: 1}
	out, err := InitInputs(context.Background(), grid, x, nil, op, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(out), test.ShouldEqual, 2)
	for _, v := range out {
		test.That(t, v.AtVec(0), test.ShouldAlmostEqual, 0.0)
	}
}

func TestInitInputsSeedsZeroLengthAtEventStartingInterval(t *testing.T) {
	grid := []mpctypes.AnnotatedTime{
		{Time: 0, Event: mpctypes.PreEvent},
		{Time: 0, Event: mpctypes.Interior},
		{Time: 1, Event: mpctypes.Interior},
	}
	x := []*mat.VecDense{
		mat.NewVecDense(1, []float64{0}),
		mat.NewVecDense(1, []float64{0}),
		mat.NewVecDense(1, []float64{0}),
	}
	op := fakes.ZeroOperatingTrajectories{Nx: 1, Nu: 1}
	out, err := InitInputs(context.Background(), grid, x, nil, op, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out[0].Len(), test.ShouldEqual, 0)
}

func TestBuildControllerFeedforwardOnlyWhenFeedbackUnavailable(t *testing.T) {
	grid := []mpctypes.AnnotatedTime{{Time: 0}, {Time: 1}}
	stages := []mpctypes.StagePayload{{ConstraintsProjection: mpctypes.ZeroLinearApproximation()}}
	x := []*mat.VecDense{mat.NewVecDense(1, []float64{1}), mat.NewVecDense(1, []float64{2})}
	u := []*mat.VecDense{mat.NewVecDense(1, []float64{0.5})}
	c := BuildController(grid, stages, x, u, nil, true)
	test.That(t, c.UseFeedbackPolicy, test.ShouldBeFalse)
	test.That(t, len(c.FeedForward), test.ShouldEqual, 2)
}

func TestBuildControllerComposesGainWithProjection(t *testing.T) {
	grid := []mpctypes.AnnotatedTime{{Time: 0}, {Time: 1}}
	proj := mpctypes.LinearApproximation{
		F:    mat.NewVecDense(1, []float64{0}),
		DfDx: mat.NewDense(1, 1, []float64{1}),
		DfDu: mat.NewDense(1, 1, []float64{2}),
	}
	stages := []mpctypes.StagePayload{{ConstraintsProjection: proj}}
	x := []*mat.VecDense{mat.NewVecDense(1, []float64{3}), mat.NewVecDense(1, []float64{3})}
	u := []*mat.VecDense{mat.NewVecDense(1, []float64{1})}
	kRed := []*mat.Dense{mat.NewDense(1, 1, []float64{5})}
	c := BuildController(grid, stages, x, u, kRed, true)
	test.That(t, c.UseFeedbackPolicy, test.ShouldBeTrue)
	// full gain = proj.DfDx + proj.DfDu*kRed = 1 + 2*5 = 11
	test.That(t, c.Gain[0].At(0, 0), test.ShouldAlmostEqual, 11.0)
}
