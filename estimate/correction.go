package estimate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Correction is an error-state correction estimate
type Correction struct {
	// dx is the applied error-state correction
	dx *mat.VecDense
	// cov is the corrected error-state covariance
	cov *mat.SymDense
}

// NewCorrection returns correction estimate given the correction dx and corrected covariance cov.
// It returns error if dx and cov dimensions do not match.
func NewCorrection(dx mat.Vector, cov mat.Symmetric) (*Correction, error) {
	if dx == nil || cov == nil {
		return nil, fmt.Errorf("invalid correction: %v, %v", dx, cov)
	}

	if dx.Len() != cov.SymmetricDim() {
		return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", dx.Len(), cov.SymmetricDim(), cov.SymmetricDim())
	}

	v := &mat.VecDense{}
	v.CloneFromVec(dx)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &Correction{
		dx:  v,
		cov: c,
	}, nil
}

// Val returns the applied error-state correction
func (c *Correction) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(c.dx)

	return v
}

// Cov returns the corrected covariance
func (c *Correction) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}

// Norm returns the Euclidean norm of the correction
func (c *Correction) Norm() float64 {
	return mat.Norm(c.dx, 2)
}
