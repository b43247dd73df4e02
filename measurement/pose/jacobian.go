package pose

import (
	"github.com/milosgajdos/go-msf/matrix"
	"github.com/milosgajdos/go-msf/state"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// maskable are the state blocks the pose measurement honours in the fixed state mask.
var maskable = []state.Block{state.L, state.Pic, state.Qic, state.Qwv, state.Pwv}

// ApplyMask clears cross-covariance of every fixed state block of s.
// Calling it repeatedly with the same mask has no further effect.
func (m *Measurement) ApplyMask(s *state.State) {
	for _, b := range maskable {
		if m.cfg.FixedStates.Has(b) {
			s.ClearCrossCov(b)
		}
	}
}

// Jacobian returns the 7 x state.ErrorDim measurement Jacobian at state s.
// Columns of fixed state blocks are zero. Jacobian does not modify s.
func (m *Measurement) Jacobian(s *state.State) *mat.Dense {
	H := mat.NewDense(Dim, state.ErrorDim, nil)
	fixed := m.cfg.FixedStates

	Cwv := matrix.Rotation(s.Qwv)
	Cq := matrix.Rotation(s.Q)
	Cci := matrix.Rotation(quat.Conj(s.Qic))

	// lever arm of the camera scaled to vision frame
	arm := r3.Scale(s.L, r3.Add(s.P, Cq.MulVec(s.Pic)))
	CwvCq := matrix.Mul(Cwv, Cq)

	// position rows
	blk := r3.NewMat(nil)
	blk.Scale(s.L, Cwv)
	matrix.SetBlock(H, 0, state.P.Offset(), blk)

	blk = matrix.Mul(CwvCq, matrix.Skew(s.Pic))
	blk.Scale(-s.L, blk)
	matrix.SetBlock(H, 0, state.Q.Offset(), blk)

	if !fixed.Has(state.L) {
		col := r3.Add(CwvCq.MulVec(s.Pic), Cwv.MulVec(r3.Sub(s.P, s.Pwv)))
		matrix.SetVec(H, 0, state.L.Offset(), col)
	}

	if !fixed.Has(state.Qwv) {
		blk = matrix.Mul(Cwv, matrix.Skew(arm))
		blk.Scale(-1, blk)
		matrix.SetBlock(H, 0, state.Qwv.Offset(), blk)
	}

	if !fixed.Has(state.Pwv) {
		blk = r3.Eye()
		blk.Scale(-1, blk)
		matrix.SetBlock(H, 0, state.Pwv.Offset(), blk)
	}

	if !fixed.Has(state.Pic) {
		blk = r3.NewMat(nil)
		blk.Scale(s.L, CwvCq)
		matrix.SetBlock(H, 0, state.Pic.Offset(), blk)
	}

	// attitude rows
	matrix.SetBlock(H, 3, state.Q.Offset(), Cci)

	if !fixed.Has(state.Qwv) {
		matrix.SetBlock(H, 3, state.Qwv.Offset(), matrix.Mul(Cci, Cq.T()))
	}

	if !fixed.Has(state.Qic) {
		matrix.SetBlock(H, 3, state.Qic.Offset(), matrix.Eye(3))
	}

	// world yaw row pins the otherwise unobservable drift yaw
	if m.cfg.PinYawDrift && !fixed.Has(state.Qwv) {
		H.Set(Dim-1, state.Qwv.Offset()+2, 1)
	}

	return H
}

// Linearize clears cross-covariance of fixed state blocks of s and returns the Jacobian at s.
func (m *Measurement) Linearize(s *state.State) *mat.Dense {
	m.ApplyMask(s)

	return m.Jacobian(s)
}
