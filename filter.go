package filter

import (
	"github.com/milosgajdos/go-msf/state"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind identifies the concrete type of a measurement.
type Kind string

// Linearizer linearizes a measurement function around a filter state.
type Linearizer interface {
	// Linearize returns measurement Jacobian at the given state
	Linearize(*state.State) *mat.Dense
	// Residual returns measurement residual at the given state
	Residual(*state.State) *mat.VecDense
}

// Measurement is a sensor measurement which can correct the filter state.
type Measurement interface {
	Linearizer
	// Kind returns measurement kind tag
	Kind() Kind
	// Time returns measurement timestamp; -1 marks an invalid measurement
	Time() float64
	// SensorID returns the id of the sensor which produced the measurement
	SensorID() int
	// Apply corrects the state using the measurement
	Apply(*state.State, Core) Status
}

// Corrector applies measurement corrections to filter states.
type Corrector interface {
	// ApplyAbsolute corrects state s given Jacobian H, residual r and measurement noise R
	ApplyAbsolute(s *state.State, H mat.Matrix, r mat.Vector, R mat.Symmetric) (Estimate, error)
	// ApplyRelative corrects state sNew given a relative measurement between sOld and sNew
	ApplyRelative(sOld, sNew *state.State, HOld, HNew mat.Matrix, r mat.Vector, R mat.Symmetric) (Estimate, error)
}

// History provides read-only access to the filter timelines.
type History interface {
	// PreviousMeasurement returns the measurement of sensor id immediately preceding time t.
	// It returns nil if there is no such measurement.
	PreviousMeasurement(t float64, id int) Measurement
	// ClosestState returns the state closest in time to t.
	// The returned state is invalid if the state buffer is empty.
	ClosestState(t float64) *state.State
}

// Core is the filter core measurements are applied through.
type Core interface {
	History
	Corrector
}

// Distorter perturbs a pose reading given elapsed time dt since its previous call.
type Distorter interface {
	Distort(p *r3.Vec, q *quat.Number, dt float64)
}

// Estimate is a filter correction estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}
