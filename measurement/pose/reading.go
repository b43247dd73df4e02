package pose

import (
	filter "github.com/milosgajdos/go-msf"
	"github.com/milosgajdos/go-msf/state"
)

// Reading is a raw 6-DOF pose reading with covariance.
type Reading struct {
	// Seq is monotonically increasing reading sequence number
	Seq uint32
	// Time is reading timestamp in seconds
	Time float64
	// Position is measured position
	Position [3]float64
	// Orientation is measured orientation quaternion as w, x, y, z
	Orientation [4]float64
	// Covariance is row-major 6x6 position and attitude covariance
	Covariance [36]float64
}

// Config configures pose measurements.
type Config struct {
	// NoisePosition is position noise standard deviation used with FixedCovariance
	NoisePosition float64
	// NoiseOrientation is orientation noise standard deviation used with FixedCovariance
	NoiseOrientation float64
	// WorldSensor is true if readings report sensor pose in world frame.
	// When false readings report world pose in sensor frame and are inverted.
	WorldSensor bool
	// FixedCovariance selects fixed noise over the reading covariance
	FixedCovariance bool
	// Absolute selects absolute over relative correction
	Absolute bool
	// SensorID keys the measurement history
	SensorID int
	// FixedStates marks state blocks held constant
	FixedStates state.Mask
	// PinYawDrift sets the world yaw row of the Jacobian.
	// It is off by default: pinning the drift yaw destabilizes the filter
	// when a global position sensor is present.
	PinYawDrift bool
	// Distorter optionally perturbs readings
	Distorter filter.Distorter
}
