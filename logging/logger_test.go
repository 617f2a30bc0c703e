package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestSubloggerNaming(t *testing.T) {
	logger := NewTestLogger(t)
	sub := logger.Sublogger("qp")
	test.That(t, sub, test.ShouldNotBeNil)
	test.That(t, sub.Level(), test.ShouldEqual, logger.Level())
}

func TestLoggerDoesNotPanic(t *testing.T) {
	logger := NewTestLogger(t)
	logger.Debugw("stage assembled", "stage", 3, "defectNorm", 0.01)
	logger.Infow("sqp iteration", "iter", 1, "merit", 1.2)
	logger.Warnw("nThreads clamped", "requested", 0, "used", 1)
	logger.Errorw("qp solve failed", "status", "infeasible")
}
