package mpctypes

import (
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestControllerFeedforwardOnlyInterpolation(t *testing.T) {
	c := &Controller{
		Time: []float64{0, 1, 2},
		FeedForward: []*mat.VecDense{
			mat.NewVecDense(1, []float64{0}),
			mat.NewVecDense(1, []float64{2}),
			mat.NewVecDense(1, []float64{4}),
		},
	}
	u := c.Evaluate(0.5, mat.NewVecDense(1, []float64{0}))
	test.That(t, u.AtVec(0), test.ShouldAlmostEqual, 1.0)

	u = c.Evaluate(2, mat.NewVecDense(1, []float64{0}))
	test.That(t, u.AtVec(0), test.ShouldAlmostEqual, 4.0)
}

func TestControllerFeedbackRecoversNominal(t *testing.T) {
	// u(t_i) = uff_i + K_i*x_i must reproduce u_i exactly at the grid nodes (law 8.6).
	x0 := mat.NewVecDense(2, []float64{1, -1})
	k0 := mat.NewDense(1, 2, []float64{0.5, 0.25})
	var kx mat.VecDense
	kx.MulVec(k0, x0)
	u0 := 3.0
	uff0 := mat.NewVecDense(1, []float64{u0 - kx.AtVec(0)})

	c := &Controller{
		Time:              []float64{0, 1},
		FeedForward:       []*mat.VecDense{uff0, mat.NewVecDense(1, []float64{0})},
		Gain:              []*mat.Dense{k0, mat.NewDense(1, 2, []float64{0, 0})},
		UseFeedbackPolicy: true,
	}

	u := c.Evaluate(0, x0)
	test.That(t, u.AtVec(0), test.ShouldAlmostEqual, u0)
}
