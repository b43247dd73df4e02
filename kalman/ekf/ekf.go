package ekf

import (
	"fmt"

	filter "github.com/milosgajdos/go-msf"
	"github.com/milosgajdos/go-msf/estimate"
	"github.com/milosgajdos/go-msf/kalman"
	"github.com/milosgajdos/go-msf/matrix"
	"github.com/milosgajdos/go-msf/state"
	"gonum.org/v1/gonum/mat"
)

// EKF is error-state Extended Kalman Filter correction step.
// It implements kalman.Kalman.
type EKF struct {
	// inn is the last innovation vector
	inn *mat.VecDense
	// k is the last Kalman gain
	k *mat.Dense
}

var _ kalman.Kalman = (*EKF)(nil)

// New creates new EKF and returns it.
func New() *EKF {
	return &EKF{
		inn: &mat.VecDense{},
		k:   &mat.Dense{},
	}
}

// ApplyAbsolute corrects state s using Jacobian H, residual r and measurement noise R
// and returns the applied error-state correction with the corrected covariance.
// It returns error if the dimensions do not match or if innovation covariance is singular.
func (k *EKF) ApplyAbsolute(s *state.State, H mat.Matrix, r mat.Vector, R mat.Symmetric) (filter.Estimate, error) {
	if err := checkDims(s, H, r, R); err != nil {
		return nil, err
	}

	// P*H'
	pxy := &mat.Dense{}
	pxy.Mul(s.Cov, H.T())

	// Note: pxy = P * H' so we reuse the result here
	// H*P*H' + R
	pyy := &mat.Dense{}
	pyy.Mul(H, pxy)
	pyy.Add(pyy, R)

	gain, err := kalmanGain(pxy, pyy)
	if err != nil {
		return nil, err
	}

	// correction
	dx := &mat.VecDense{}
	dx.MulVec(gain, r)

	// Joseph form update
	a := &mat.Dense{}
	// K*H
	a.Mul(gain, H)
	// eye - K*H
	a.Sub(matrix.Eye(state.ErrorDim), a)

	// K*R*K'
	krk := &mat.Dense{}
	krk.Product(gain, R, gain.T())

	pCorr := &mat.Dense{}
	pCorr.Product(a, s.Cov, a.T())
	pCorr.Add(pCorr, krk)

	return k.correct(s, dx, pCorr, r, gain)
}

// ApplyRelative corrects state sNew using a measurement relating sOld and sNew.
// HOld and HNew are Jacobians with respect to the old and new state.
// The cross-covariance of the two states is approximated by the covariance of sOld.
// Only sNew is corrected. It returns the applied error-state correction with the corrected covariance.
func (k *EKF) ApplyRelative(sOld, sNew *state.State, HOld, HNew mat.Matrix, r mat.Vector, R mat.Symmetric) (filter.Estimate, error) {
	if err := checkDims(sOld, HOld, r, R); err != nil {
		return nil, fmt.Errorf("invalid old state correction: %w", err)
	}
	if err := checkDims(sNew, HNew, r, R); err != nil {
		return nil, fmt.Errorf("invalid new state correction: %w", err)
	}

	// cross-covariance of old and new state
	pc := sOld.Cov

	// Pn*Hn' + Pc'*Ho'
	pxy := &mat.Dense{}
	pxy.Mul(sNew.Cov, HNew.T())
	tmp := &mat.Dense{}
	tmp.Mul(pc.T(), HOld.T())
	pxy.Add(pxy, tmp)

	// Ho*Po*Ho' + Hn*Pn*Hn' + Ho*Pc*Hn' + Hn*Pc'*Ho' + R
	pyy := &mat.Dense{}
	pyy.Product(HOld, sOld.Cov, HOld.T())
	tmp.Reset()
	tmp.Product(HNew, sNew.Cov, HNew.T())
	pyy.Add(pyy, tmp)
	cross := &mat.Dense{}
	cross.Product(HOld, pc, HNew.T())
	pyy.Add(pyy, cross)
	pyy.Add(pyy, cross.T())
	pyy.Add(pyy, R)

	gain, err := kalmanGain(pxy, pyy)
	if err != nil {
		return nil, err
	}

	dx := &mat.VecDense{}
	dx.MulVec(gain, r)

	// Pn - K*S*K'
	ksk := &mat.Dense{}
	ksk.Product(gain, pyy, gain.T())
	pCorr := &mat.Dense{}
	pCorr.Sub(sNew.Cov, ksk)

	return k.correct(sNew, dx, pCorr, r, gain)
}

// correct stores the correction in state s and returns it as an estimate.
func (k *EKF) correct(s *state.State, dx *mat.VecDense, pCorr *mat.Dense, inn mat.Vector, gain *mat.Dense) (filter.Estimate, error) {
	if err := s.Correct(dx); err != nil {
		return nil, err
	}

	// keep covariance symmetric
	n := state.ErrorDim
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.Cov.SetSym(i, j, 0.5*(pCorr.At(i, j)+pCorr.At(j, i)))
		}
	}

	k.inn.CloneFromVec(inn)
	k.k.CloneFrom(gain)

	est, err := estimate.NewCorrection(dx, s.Cov)
	if err != nil {
		return nil, err
	}

	return est, nil
}

// kalmanGain returns pxy * inv(pyy).
func kalmanGain(pxy, pyy *mat.Dense) (*mat.Dense, error) {
	pyyInv := &mat.Dense{}
	if err := pyyInv.Inverse(pyy); err != nil {
		return nil, fmt.Errorf("failed to calculate Pyy inverse: %v", err)
	}

	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	return gain, nil
}

func checkDims(s *state.State, H mat.Matrix, r mat.Vector, R mat.Symmetric) error {
	if !s.IsValid() {
		return fmt.Errorf("invalid state")
	}

	rows, cols := H.Dims()
	if cols != s.Cov.SymmetricDim() {
		return fmt.Errorf("invalid Jacobian dimensions: [%d x %d]", rows, cols)
	}

	if r.Len() != rows {
		return fmt.Errorf("invalid residual dimension: %d", r.Len())
	}

	if R.SymmetricDim() != rows {
		return fmt.Errorf("invalid measurement noise dimension: %d", R.SymmetricDim())
	}

	return nil
}

// Innovation returns the last innovation vector
func (k *EKF) Innovation() mat.Vector {
	inn := &mat.VecDense{}
	if !k.inn.IsEmpty() {
		inn.CloneFromVec(k.inn)
	}

	return inn
}

// Gain returns the last Kalman gain
func (k *EKF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	if !k.k.IsEmpty() {
		gain.CloneFrom(k.k)
	}

	return gain
}
