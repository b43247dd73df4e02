// Package pose implements the pose sensor measurement model:
// reading ingestion, Jacobian linearization and absolute or relative correction.
package pose

import (
	"log/slog"

	filter "github.com/milosgajdos/go-msf"
	"github.com/milosgajdos/go-msf/state"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// KindPose is the kind tag of pose measurements
	KindPose filter.Kind = "pose"
	// Dim is the residual dimension: position, attitude and world yaw
	Dim = 7
	// yawNoise is the fixed noise of the world yaw residual
	yawNoise = 1e-6
)

var _ filter.Measurement = (*Measurement)(nil)

var logger *slog.Logger

// SetLogger sets the logger used by the package.
// Passing nil restores the default logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

func log() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Diagnostic flags conditions found while ingesting a reading.
type Diagnostic uint8

const (
	// CovarianceChecked is set when the reading covariance determinant was checked
	CovarianceChecked Diagnostic = 1 << iota
	// CovarianceIllConditioned is set when the reading covariance is not positive definite
	CovarianceIllConditioned
)

// Has returns true if flag f is set.
func (d Diagnostic) Has(f Diagnostic) bool {
	return d&f != 0
}

// Measurement is a pose measurement.
type Measurement struct {
	// Position is position of the sensor in the vision frame
	Position r3.Vec
	// Orientation is attitude of the sensor in the vision frame
	Orientation quat.Number
	// R is measurement noise covariance
	R *mat.SymDense
	// Diagnostics are flags raised during ingestion
	Diagnostics Diagnostic

	cfg  Config
	seq  uint32
	time float64
}

// Kind returns KindPose.
func (m *Measurement) Kind() filter.Kind {
	return KindPose
}

// Time returns measurement timestamp.
func (m *Measurement) Time() float64 {
	return m.time
}

// Seq returns sequence number of the reading the measurement was made from.
func (m *Measurement) Seq() uint32 {
	return m.seq
}

// SensorID returns the id of the sensor.
func (m *Measurement) SensorID() int {
	return m.cfg.SensorID
}

// IsAbsolute returns true if the measurement is applied as an absolute correction.
func (m *Measurement) IsAbsolute() bool {
	return m.cfg.Absolute
}

// FixedStates returns the fixed state mask.
func (m *Measurement) FixedStates() state.Mask {
	return m.cfg.FixedStates
}

// FromMeasurement returns m as a pose measurement.
// It returns false if m is nil or not a pose measurement.
func FromMeasurement(m filter.Measurement) (*Measurement, bool) {
	if m == nil || m.Kind() != KindPose {
		return nil, false
	}
	p, ok := m.(*Measurement)

	return p, ok && p != nil
}
