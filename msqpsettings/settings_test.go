package msqpsettings

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/msqp/logging"
)

func TestDefaultSettingsValidate(t *testing.T) {
	logger := logging.NewTestLogger(t)
	s := Default()
	err := s.Validate(logger)
	test.That(t, err, test.ShouldBeNil)
}

func TestNThreadsClampedNotRejected(t *testing.T) {
	logger := logging.NewTestLogger(t)
	s := Default()
	s.NThreads = 0
	err := s.Validate(logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.NThreads, test.ShouldEqual, 1)
}

func TestFilterParameterOrderingEnforced(t *testing.T) {
	logger := logging.NewTestLogger(t)
	s := Default()
	s.GMax = s.GMin
	err := s.Validate(logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromAttributeMapDecodesOverrides(t *testing.T) {
	logger := logging.NewTestLogger(t)
	attrs := AttributeMap{
		"nThreads":          4,
		"dt":                0.05,
		"sqpIteration":      5,
		"useFeedbackPolicy": false,
	}
	s, err := FromAttributeMap(attrs, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.NThreads, test.ShouldEqual, 4)
	test.That(t, s.Dt, test.ShouldEqual, 0.05)
	test.That(t, s.SQPIteration, test.ShouldEqual, 5)
	test.That(t, s.UseFeedbackPolicy, test.ShouldBeFalse)
	// Unset fields keep their defaults.
	test.That(t, s.AlphaDecay, test.ShouldEqual, Default().AlphaDecay)
}

func TestPenaltyEnabled(t *testing.T) {
	s := Default()
	s.InequalityConstraintMu = 0
	test.That(t, s.PenaltyEnabled(), test.ShouldBeFalse)
	s.InequalityConstraintMu = 0.1
	test.That(t, s.PenaltyEnabled(), test.ShouldBeTrue)
}
