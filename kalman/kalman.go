// Package kalman defines Kalman filter correction steps.
package kalman

import (
	filter "github.com/milosgajdos/go-msf"
	"gonum.org/v1/gonum/mat"
)

// Kalman is Kalman filter correction step
type Kalman interface {
	// filter.Corrector applies corrections
	filter.Corrector
	// Innovation returns the last innovation vector
	Innovation() mat.Vector
	// Gain returns the last Kalman gain
	Gain() mat.Matrix
}
