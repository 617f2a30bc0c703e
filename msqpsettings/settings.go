package msqpsettings

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/msqp/logging"
)

// IntegratorType selects the value/sensitivity discretizer pair used to advance dynamics
// (spec.md §6, "integratorType"). The core ships a reference RK4 pair in providers/rk4;
// additional selectors are registered by the embedding application.
type IntegratorType string

const (
	// IntegratorRK4 selects the explicit 4th-order Runge-Kutta reference integrator.
	IntegratorRK4 IntegratorType = "rk4"
)

// Settings holds every recognized configuration option from spec.md §6.
type Settings struct {
	NThreads       int    `mapstructure:"nThreads"`
	ThreadPriority int    `mapstructure:"threadPriority"`
	Dt             float64 `mapstructure:"dt"`
	SQPIteration   int    `mapstructure:"sqpIteration"`
	IntegratorType IntegratorType `mapstructure:"integratorType"`

	ProjectStateInputEqualityConstraints bool `mapstructure:"projectStateInputEqualityConstraints"`

	InequalityConstraintMu    float64 `mapstructure:"inequalityConstraintMu"`
	InequalityConstraintDelta float64 `mapstructure:"inequalityConstraintDelta"`

	UseFeedbackPolicy bool `mapstructure:"useFeedbackPolicy"`

	AlphaDecay float64 `mapstructure:"alpha_decay"`
	AlphaMin   float64 `mapstructure:"alpha_min"`
	GammaC     float64 `mapstructure:"gamma_c"`
	GMax       float64 `mapstructure:"g_max"`
	GMin       float64 `mapstructure:"g_min"`
	CostTol    float64 `mapstructure:"costTol"`
	DeltaTol   float64 `mapstructure:"deltaTol"`

	PrintSolverStatus     bool `mapstructure:"printSolverStatus"`
	PrintLinesearch       bool `mapstructure:"printLinesearch"`
	PrintSolverStatistics bool `mapstructure:"printSolverStatistics"`
}

// Default returns the settings used when an embedding application supplies no overrides.
func Default() Settings {
	return Settings{
		NThreads:       1,
		Dt:             0.01,
		SQPIteration:   10,
		IntegratorType: IntegratorRK4,

		ProjectStateInputEqualityConstraints: true,

		InequalityConstraintMu:    0,
		InequalityConstraintDelta: 1e-3,

		UseFeedbackPolicy: true,

		AlphaDecay: 0.5,
		AlphaMin:   1e-4,
		GammaC:     1e-5,
		GMax:       1e-2,
		GMin:       1e-6,
		CostTol:    1e-4,
		DeltaTol:   1e-4,
	}
}

// FromAttributeMap decodes attrs on top of Default(), via mapstructure, matching the
// teacher's attribute-map-to-typed-config pattern, and then validates the result.
func FromAttributeMap(attrs AttributeMap, logger logging.Logger) (Settings, error) {
	settings := Default()
	if len(attrs) > 0 {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &settings,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return Settings{}, errors.Wrap(err, "building settings decoder")
		}
		if err := decoder.Decode(map[string]interface{}(attrs)); err != nil {
			return Settings{}, errors.Wrap(err, "decoding msqp settings")
		}
	}
	if err := settings.Validate(logger); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Validate enforces the invariants implied by spec.md §6/§9, clamping nThreads < 1 to 1
// (the documented resolution of the "nThreads==0" open question) rather than rejecting it,
// and returning a descriptive error for anything else out of range.
func (s *Settings) Validate(logger logging.Logger) error {
	if s.NThreads < 1 {
		if logger != nil {
			logger.Warnw("nThreads below 1, clamping to 1", "requested", s.NThreads)
		}
		s.NThreads = 1
	}
	if s.Dt <= 0 {
		return errors.Errorf("dt must be positive, got %v", s.Dt)
	}
	if s.SQPIteration < 1 {
		return errors.Errorf("sqpIteration must be >= 1, got %v", s.SQPIteration)
	}
	if s.AlphaDecay <= 0 || s.AlphaDecay >= 1 {
		return errors.Errorf("alpha_decay must be in (0,1), got %v", s.AlphaDecay)
	}
	if s.AlphaMin <= 0 {
		return errors.Errorf("alpha_min must be > 0, got %v", s.AlphaMin)
	}
	if s.GammaC <= 0 || s.GammaC >= 1 {
		return errors.Errorf("gamma_c must be in (0,1), got %v", s.GammaC)
	}
	if !(s.GMax > s.GMin && s.GMin > 0) {
		return errors.Errorf("require g_max > g_min > 0, got g_max=%v g_min=%v", s.GMax, s.GMin)
	}
	if s.CostTol <= 0 {
		return errors.Errorf("costTol must be > 0, got %v", s.CostTol)
	}
	if s.DeltaTol <= 0 {
		return errors.Errorf("deltaTol must be > 0, got %v", s.DeltaTol)
	}
	if s.InequalityConstraintMu < 0 {
		return errors.Errorf("inequalityConstraintMu must be >= 0, got %v", s.InequalityConstraintMu)
	}
	return nil
}

// PenaltyEnabled reports whether the relaxed-barrier inequality penalty should be built
// (spec.md §6: "penalty is built only when both a constraint provider exists and mu > 0";
// the constraint-provider half of that condition is checked by the caller).
func (s Settings) PenaltyEnabled() bool {
	return s.InequalityConstraintMu > 0
}
