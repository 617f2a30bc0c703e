// Package dense supplies a reference implementation of the structured QP back-end
// (spec.md §4.D, providers.Backend): a dense KKT assembly over the whole horizon, solved by
// elimination of the hard equality rows (the initial-state pin, the shooting-defect links,
// and any un-projected stage equalities) with a single-row-at-a-time active-set loop over
// the remaining inequality rows. Riccati feedback gains are produced by a separate backward
// pass over the cost/dynamics blocks alone (spec.md §9, "Riccati feedback coupling": when
// hard inequality rows are active, this is the documented feedforward-degrading
// approximation rather than an exact constrained Riccati recursion).
package dense

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/msqp/mpctypes"
	"go.viam.com/msqp/providers"
)

const (
	activeSetTol = 1e-9
	maxActiveSetIterations = 200
)

// Backend is a dense, in-memory reference implementation of providers.Backend. It is not
// banded and does not exploit the stage-block sparsity of the problem for its primal
// solve (the whole-horizon KKT system is assembled and factorized densely each call); it
// is intended for small-to-medium horizons and as a drop-in default so the solver runs
// end-to-end without a caller-supplied back-end.
type Backend struct {
	stages []providers.StageSizes

	offsetDx []int // len(stages); offset of dx_i block in the stacked variable vector
	offsetDu []int // len(stages)-1; offset of du_i block
	nz       int

	lastDynamics []mpctypes.LinearApproximation
	lastCost     []mpctypes.QuadraticApproximation
	lastK        []*mat.Dense
	haveK        bool
}

// New returns an unsized Backend; call Resize before Solve.
func New() *Backend {
	return &Backend{}
}

// Resize preallocates the stage-size bookkeeping and precomputes variable offsets.
func (b *Backend) Resize(stages []providers.StageSizes) error {
	if len(stages) == 0 {
		return errors.New("dense qp backend: Resize requires at least the terminal stage")
	}
	n := len(stages) - 1 // number of dynamics intervals
	offsetDx := make([]int, len(stages))
	offsetDu := make([]int, n)
	off := 0
	for i, s := range stages {
		if s.Nx < 0 || s.Nu < 0 || s.Ng < 0 {
			return errors.Errorf("dense qp backend: negative size at stage %d: %+v", i, s)
		}
		offsetDx[i] = off
		off += s.Nx
		if i < n {
			offsetDu[i] = off
			off += s.Nu
		}
	}
	b.stages = append([]providers.StageSizes(nil), stages...)
	b.offsetDx = offsetDx
	b.offsetDu = offsetDu
	b.nz = off
	b.lastK = nil
	b.haveK = false
	return nil
}

type eqRow struct {
	coeff []float64
	rhs   float64
}

type ineqRow struct {
	coeff []float64
	e     float64
}

// Solve implements providers.Backend.
func (b *Backend) Solve(
	ctx context.Context,
	deltaX0Init *mat.VecDense,
	dynamics []mpctypes.LinearApproximation,
	cost []mpctypes.QuadraticApproximation,
	constraints []mpctypes.StageConstraintSpec,
) (providers.QPStep, error) {
	if b.stages == nil {
		return providers.QPStep{}, errors.New("dense qp backend: Solve called before Resize")
	}
	n := len(b.stages) - 1
	if len(dynamics) != n {
		return providers.QPStep{}, errors.Errorf("dense qp backend: expected %d dynamics entries, got %d", n, len(dynamics))
	}
	if len(cost) != n+1 {
		return providers.QPStep{}, errors.Errorf("dense qp backend: expected %d cost entries, got %d", n+1, len(cost))
	}
	if err := ctx.Err(); err != nil {
		return providers.QPStep{}, err
	}

	H := mat.NewDense(b.nz, b.nz, nil)
	h := make([]float64, b.nz)
	for i, c := range cost {
		b.addCostBlock(H, h, i, c)
	}

	hard := b.buildHardEqualities(deltaX0Init, dynamics)
	var ineqs []ineqRow
	if len(constraints) > 0 {
		var err error
		hard, ineqs, err = b.appendStageConstraints(hard, constraints)
		if err != nil {
			return providers.QPStep{}, err
		}
	}

	z, status, err := b.solveActiveSet(H, h, hard, ineqs)
	if err != nil {
		return providers.QPStep{}, err
	}
	if status != providers.QPSuccess {
		return providers.QPStep{Status: status}, nil
	}

	deltaX := make([]*mat.VecDense, len(b.stages))
	for i := range b.stages {
		deltaX[i] = extractVec(z, b.offsetDx[i], b.stages[i].Nx)
	}
	deltaU := make([]*mat.VecDense, n)
	for i := 0; i < n; i++ {
		deltaU[i] = extractVec(z, b.offsetDu[i], b.stages[i].Nu)
	}

	b.lastDynamics = dynamics
	b.lastCost = cost
	b.lastK = nil
	b.haveK = false

	return providers.QPStep{DeltaX: deltaX, DeltaU: deltaU, Status: providers.QPSuccess}, nil
}

// RiccatiFeedback implements providers.Backend by running an unconstrained backward
// Riccati pass over the cost/dynamics blocks of the most recent successful Solve.
func (b *Backend) RiccatiFeedback() ([]*mat.Dense, error) {
	if b.lastDynamics == nil {
		return nil, errors.New("dense qp backend: RiccatiFeedback called before a successful Solve")
	}
	if !b.haveK {
		k, err := riccatiBackwardPass(b.lastDynamics, b.lastCost)
		if err != nil {
			return nil, err
		}
		b.lastK = k
		b.haveK = true
	}
	return b.lastK, nil
}

func (b *Backend) addCostBlock(H *mat.Dense, h []float64, i int, c mpctypes.QuadraticApproximation) {
	nx := b.stages[i].Nx
	dx0 := b.offsetDx[i]
	if c.DfDxx != nil {
		addBlock(H, dx0, dx0, c.DfDxx)
	}
	if c.DfDx != nil {
		for k := 0; k < nx; k++ {
			h[dx0+k] += c.DfDx.AtVec(k)
		}
	}
	if i >= len(b.offsetDu) {
		return // terminal stage has no input block
	}
	nu := b.stages[i].Nu
	du0 := b.offsetDu[i]
	if c.DfDuu != nil && nu > 0 {
		addBlock(H, du0, du0, c.DfDuu)
	}
	if c.DfDu != nil {
		for k := 0; k < nu; k++ {
			h[du0+k] += c.DfDu.AtVec(k)
		}
	}
	if c.DfDux != nil && nu > 0 && nx > 0 {
		addBlock(H, du0, dx0, c.DfDux)
		addBlockT(H, dx0, du0, c.DfDux)
	}
}

// buildHardEqualities assembles the initial-state pin and the shooting-defect links, which
// must always hold: they are not subject to active-set removal.
func (b *Backend) buildHardEqualities(deltaX0Init *mat.VecDense, dynamics []mpctypes.LinearApproximation) []eqRow {
	var rows []eqRow
	nx0 := b.stages[0].Nx
	for k := 0; k < nx0; k++ {
		coeff := make([]float64, b.nz)
		coeff[b.offsetDx[0]+k] = 1
		v := 0.0
		if deltaX0Init != nil {
			v = deltaX0Init.AtVec(k)
		}
		rows = append(rows, eqRow{coeff: coeff, rhs: v})
	}
	for i, dyn := range dynamics {
		nxNext := b.stages[i+1].Nx
		for r := 0; r < nxNext; r++ {
			coeff := make([]float64, b.nz)
			if dyn.DfDx != nil {
				for c := 0; c < b.stages[i].Nx; c++ {
					coeff[b.offsetDx[i]+c] = dyn.DfDx.At(r, c)
				}
			}
			if dyn.DfDu != nil {
				_, cols := dyn.DfDu.Dims()
				for c := 0; c < cols; c++ {
					coeff[b.offsetDu[i]+c] = dyn.DfDu.At(r, c)
				}
			}
			coeff[b.offsetDx[i+1]+r] = -1
			rhs := 0.0
			if dyn.F != nil {
				rhs = dyn.F.AtVec(r)
			}
			rows = append(rows, eqRow{coeff: coeff, rhs: rhs})
		}
	}
	return rows
}

// appendStageConstraints splits each stage's stacked constraint block into hard equality
// rows (appended to hard) and an inequality-row pool for the active-set loop.
func (b *Backend) appendStageConstraints(hard []eqRow, constraints []mpctypes.StageConstraintSpec) ([]eqRow, []ineqRow, error) {
	if len(constraints) != len(b.stages) {
		return nil, nil, errors.Errorf("dense qp backend: expected %d constraint entries, got %d", len(b.stages), len(constraints))
	}
	var ineqs []ineqRow
	for i, spec := range constraints {
		c := spec.Constraint
		if c.Rows() == 0 {
			continue
		}
		nx := b.stages[i].Nx
		var nu int
		var du0 int
		if i < len(b.offsetDu) {
			nu = b.stages[i].Nu
			du0 = b.offsetDu[i]
		}
		for r := 0; r < c.Rows(); r++ {
			coeff := make([]float64, b.nz)
			if c.DfDx != nil {
				for col := 0; col < nx; col++ {
					coeff[b.offsetDx[i]+col] = c.DfDx.At(r, col)
				}
			}
			if c.DfDu != nil && nu > 0 {
				for col := 0; col < nu; col++ {
					coeff[du0+col] = c.DfDu.At(r, col)
				}
			}
			e := 0.0
			if c.F != nil {
				e = c.F.AtVec(r)
			}
			if r < spec.NumEquality {
				hard = append(hard, eqRow{coeff: coeff, rhs: -e})
			} else {
				ineqs = append(ineqs, ineqRow{coeff: coeff, e: e})
			}
		}
	}
	return hard, ineqs, nil
}

// solveActiveSet solves the QP min 1/2 z'Hz + h'z s.t. hard rows =0, ineqs <=0, via a
// single-row-at-a-time primal active-set method over the dense KKT system.
func (b *Backend) solveActiveSet(H *mat.Dense, h []float64, hard []eqRow, ineqs []ineqRow) (*mat.VecDense, providers.QPStatus, error) {
	active := make([]bool, len(ineqs))
	for iter := 0; iter < maxActiveSetIterations; iter++ {
		var activeIdx []int
		for j, on := range active {
			if on {
				activeIdx = append(activeIdx, j)
			}
		}
		z, lam, ok := solveKKT(H, h, hard, ineqs, activeIdx)
		if !ok {
			return nil, providers.QPNumericalFailure, nil
		}
		if !isFiniteSlice(z) {
			return nil, providers.QPNumericalFailure, nil
		}

		worstIdx, worstVal := -1, activeSetTol
		for j, row := range ineqs {
			if active[j] {
				continue
			}
			val := row.e + dot(row.coeff, z)
			if val > worstVal {
				worstVal = val
				worstIdx = j
			}
		}
		if worstIdx >= 0 {
			active[worstIdx] = true
			continue
		}

		dropIdx, mostNegative := -1, -activeSetTol
		for k, j := range activeIdx {
			if lam[len(hard)+k] < mostNegative {
				mostNegative = lam[len(hard)+k]
				dropIdx = j
			}
		}
		if dropIdx >= 0 {
			active[dropIdx] = false
			continue
		}

		return mat.NewVecDense(len(z), z), providers.QPSuccess, nil
	}
	return nil, providers.QPInfeasible, nil
}

// solveKKT assembles and factors [[H,A'],[A,0]] [z;lam] = [-h,beq] for the stacked hard and
// activeIdx-selected inequality rows, returning ok=false on a singular system.
func solveKKT(H *mat.Dense, h []float64, hard []eqRow, ineqs []ineqRow, activeIdx []int) ([]float64, []float64, bool) {
	nz, _ := H.Dims()
	m := len(hard) + len(activeIdx)
	dim := nz + m
	K := mat.NewDense(dim, dim, nil)
	rhs := mat.NewDense(dim, 1, nil)

	for i := 0; i < nz; i++ {
		for j := 0; j < nz; j++ {
			K.Set(i, j, H.At(i, j))
		}
	}
	for i := 0; i < nz; i++ {
		rhs.Set(i, 0, -h[i])
	}
	setRow := func(rowIdx int, coeff []float64, b float64) {
		for c := 0; c < nz; c++ {
			v := coeff[c]
			if v == 0 {
				continue
			}
			K.Set(nz+rowIdx, c, v)
			K.Set(c, nz+rowIdx, v)
		}
		rhs.Set(nz+rowIdx, 0, b)
	}
	for i, row := range hard {
		setRow(i, row.coeff, row.rhs)
	}
	for k, j := range activeIdx {
		row := ineqs[j]
		setRow(len(hard)+k, row.coeff, -row.e)
	}

	var sol mat.Dense
	if err := sol.Solve(K, rhs); err != nil {
		return nil, nil, false
	}
	z := make([]float64, nz)
	for i := 0; i < nz; i++ {
		z[i] = sol.At(i, 0)
	}
	lam := make([]float64, m)
	for i := 0; i < m; i++ {
		lam[i] = sol.At(nz+i, 0)
	}
	return z, lam, true
}

// riccatiBackwardPass runs the standard affine-LQR backward recursion over dynamics/cost
// alone (no hard stage constraint rows), returning the feedback gains K_i such that
// du_i = K_i*dx_i + k_i locally minimizes the unconstrained problem.
func riccatiBackwardPass(dynamics []mpctypes.LinearApproximation, cost []mpctypes.QuadraticApproximation) ([]*mat.Dense, error) {
	n := len(dynamics)
	P := cost[n].DfDxx
	p := vecOrZero(cost[n].DfDx, rows(P))
	K := make([]*mat.Dense, n)

	for i := n - 1; i >= 0; i-- {
		A := dynamics[i].DfDx
		B := dynamics[i].DfDu
		nu := cols(B)
		nx := rows(A)

		var atP, atPA, btP, btPB, btPA mat.Dense
		atP.Mul(A.T(), P)
		atPA.Mul(&atP, A)
		if nu > 0 {
			btP.Mul(B.T(), P)
			btPB.Mul(&btP, B)
			btPA.Mul(&btP, A)
		}

		Q := addDense(cost[i].DfDxx, &atPA)
		var q mat.VecDense
		q.MulVec(A.T(), p)
		c := dynamicsConstant(dynamics[i])
		var Pc mat.VecDense
		Pc.MulVec(P, c)
		var atPc mat.VecDense
		atPc.MulVec(A.T(), &Pc)
		q.AddVec(&q, &atPc)
		q.AddVec(&q, vecOrZero(cost[i].DfDx, nx))

		if nu == 0 {
			K[i] = mat.NewDense(0, nx, nil)
			P, p = Q, &q
			continue
		}

		R := addDense(cost[i].DfDuu, &btPB)
		S := addDense(cost[i].DfDux, &btPA)

		var r mat.VecDense
		r.MulVec(B.T(), p)
		var btPc mat.VecDense
		btPc.MulVec(B.T(), &Pc)
		r.AddVec(&r, &btPc)
		r.AddVec(&r, vecOrZero(cost[i].DfDu, nu))

		var Rinv mat.Dense
		if err := Rinv.Inverse(R); err != nil {
			return nil, errors.Wrapf(err, "riccati backward pass: singular R at stage %d", i)
		}
		var k mat.Dense
		k.Mul(&Rinv, S)
		k.Scale(-1, &k)
		K[i] = &k

		var kr mat.VecDense
		kr.MulVec(&Rinv, &r)
		kr.ScaleVec(-1, &kr)

		var stK mat.Dense
		stK.Mul(S.T(), &k)
		Pnext := addDense(Q, &stK)

		var stKr mat.VecDense
		stKr.MulVec(S.T(), &kr)
		var pnext mat.VecDense
		pnext.AddVec(&q, &stKr)

		P, p = Pnext, &pnext
	}
	return K, nil
}

func dynamicsConstant(dyn mpctypes.LinearApproximation) *mat.VecDense {
	if dyn.F == nil {
		return mat.NewVecDense(0, nil)
	}
	out := mat.NewVecDense(dyn.F.Len(), nil)
	out.ScaleVec(-1, dyn.F)
	return out
}

func vecOrZero(v *mat.VecDense, n int) *mat.VecDense {
	if v != nil {
		return v
	}
	return mat.NewVecDense(n, nil)
}

// addDense returns a+b, treating a Go-nil *mat.Dense as an all-zero block of b's shape (the
// zero-row/zero-col convention providers use for "absent" cost/dynamics blocks).
func addDense(a, b *mat.Dense) *mat.Dense {
	r, c := b.Dims()
	out := mat.NewDense(r, c, nil)
	if a != nil {
		out.Add(a, b)
	} else {
		out.Copy(b)
	}
	return out
}

func rows(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	r, _ := m.Dims()
	return r
}

func cols(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	_, c := m.Dims()
	return c
}

func addBlock(H *mat.Dense, rowOff, colOff int, block mat.Matrix) {
	r, c := block.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			H.Set(rowOff+i, colOff+j, H.At(rowOff+i, colOff+j)+block.At(i, j))
		}
	}
}

func addBlockT(H *mat.Dense, rowOff, colOff int, block mat.Matrix) {
	r, c := block.Dims() // block is (rows=colOff-axis-size x cols=rowOff-axis-size), i.e. nu x nx
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			H.Set(rowOff+j, colOff+i, H.At(rowOff+j, colOff+i)+block.At(i, j))
		}
	}
}

func extractVec(z *mat.VecDense, off, n int) *mat.VecDense {
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, z.AtVec(off+i))
	}
	return out
}

func dot(coeff []float64, z *mat.VecDense) float64 {
	sum := 0.0
	for i, v := range coeff {
		if v != 0 {
			sum += v * z.AtVec(i)
		}
	}
	return sum
}

func isFiniteSlice(z []float64) bool {
	for _, v := range z {
		if v != v || v > maxFloat || v < -maxFloat {
			return false
		}
	}
	return true
}

const maxFloat = 1e300

var _ providers.Backend = (*Backend)(nil)
