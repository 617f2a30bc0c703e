package linesearch

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/msqp/logging"
	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/msqpsettings"
)

func testParams() Params {
	return ParamsFromSettings(msqpsettings.Default())
}

func TestAcceptRejectsNonFiniteTrial(t *testing.T) {
	p := testParams()
	baseline := mpctypes.PerformanceIndex{TotalCost: 1}
	trial := mpctypes.PerformanceIndex{TotalCost: 1.0 / zero()}
	test.That(t, Accept(p, baseline, trial), test.ShouldBeFalse)
}

func zero() float64 { return 0 }

func TestAcceptRejectsViolationAboveGMax(t *testing.T) {
	p := testParams()
	baseline := mpctypes.PerformanceIndex{TotalCost: 1}
	trial := mpctypes.PerformanceIndex{TotalCost: 0, StateEqConstraintISE: p.GMax * p.GMax * 4}
	test.That(t, Accept(p, baseline, trial), test.ShouldBeFalse)
}

func TestAcceptAcceptsStrictMeritImprovementAtLowViolation(t *testing.T) {
	p := testParams()
	baseline := mpctypes.PerformanceIndex{TotalCost: 1}
	trial := mpctypes.PerformanceIndex{TotalCost: 0.5}
	test.That(t, Accept(p, baseline, trial), test.ShouldBeTrue)
}

func TestAcceptRejectsWorseMeritAtLowViolation(t *testing.T) {
	p := testParams()
	baseline := mpctypes.PerformanceIndex{TotalCost: 1}
	trial := mpctypes.PerformanceIndex{TotalCost: 1.5}
	test.That(t, Accept(p, baseline, trial), test.ShouldBeFalse)
}

func TestSearchAcceptsFirstImprovingTrial(t *testing.T) {
	p := testParams()
	logger := logging.NewTestLogger(t)
	baseline := mpctypes.PerformanceIndex{TotalCost: 1}
	trial := func(_ context.Context, alpha float64) (mpctypes.PerformanceIndex, error) {
		return mpctypes.PerformanceIndex{TotalCost: 1 - 0.5*alpha}, nil
	}
	result, err := Search(context.Background(), logger, p, baseline, 1.0, 1.0, trial, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Accepted, test.ShouldBeTrue)
	test.That(t, result.Alpha, test.ShouldAlmostEqual, 1.0)
}

func TestSearchDecaysUntilAccepted(t *testing.T) {
	p := testParams()
	logger := logging.NewTestLogger(t)
	baseline := mpctypes.PerformanceIndex{TotalCost: 1}
	// Only accept once alpha has decayed below 0.3: a trial that increases cost at alpha=1
	// but decreases it at small alpha (simulating a step that overshoots at full length).
	trial := func(_ context.Context, alpha float64) (mpctypes.PerformanceIndex, error) {
		if alpha > 0.3 {
			return mpctypes.PerformanceIndex{TotalCost: 2}, nil
		}
		return mpctypes.PerformanceIndex{TotalCost: 0.9}, nil
	}
	result, err := Search(context.Background(), logger, p, baseline, 1.0, 1.0, trial, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Accepted, test.ShouldBeTrue)
	test.That(t, result.Alpha <= 0.3, test.ShouldBeTrue)
}

func TestSearchConvergesWhenStepsFallBelowDeltaTol(t *testing.T) {
	p := testParams()
	logger := logging.NewTestLogger(t)
	baseline := mpctypes.PerformanceIndex{TotalCost: 1, StateEqConstraintISE: 1}
	// A trial that never improves, forcing the loop to decay alpha until the (tiny) step
	// norms fall below DeltaTol and convergence is declared with no accepted step.
	trial := func(_ context.Context, alpha float64) (mpctypes.PerformanceIndex, error) {
		return mpctypes.PerformanceIndex{TotalCost: 2, StateEqConstraintISE: 1}, nil
	}
	result, err := Search(context.Background(), logger, p, baseline, p.DeltaTol, p.DeltaTol, trial, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Accepted, test.ShouldBeFalse)
	test.That(t, result.Converged, test.ShouldBeTrue)
}

func TestSearchPropagatesTrialError(t *testing.T) {
	p := testParams()
	logger := logging.NewTestLogger(t)
	baseline := mpctypes.PerformanceIndex{TotalCost: 1}
	wantErr := context.Canceled
	trial := func(_ context.Context, alpha float64) (mpctypes.PerformanceIndex, error) {
		return mpctypes.PerformanceIndex{}, wantErr
	}
	_, err := Search(context.Background(), logger, p, baseline, 1.0, 1.0, trial, false)
	test.That(t, err, test.ShouldEqual, wantErr)
}
