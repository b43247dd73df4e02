package pose

import (
	"time"

	"github.com/milosgajdos/go-msf/matrix"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// covCheckEvery is the reading interval of the covariance determinant check
	covCheckEvery = 100
	// minCovDet is the smallest accepted covariance determinant
	minCovDet = -0.001
)

// Ingestor turns raw readings of one sensor into pose measurements.
// It owns the distorter and the time of its last invocation.
type Ingestor struct {
	cfg Config
	// lastDistort is the time of the last distorter invocation
	lastDistort float64
	// distorted is true once the distorter has been primed
	distorted bool
	// warn throttles covariance warnings
	warn rate.Sometimes
}

// NewIngestor creates new Ingestor with the given configuration and returns it.
func NewIngestor(cfg Config) *Ingestor {
	return &Ingestor{
		cfg:  cfg,
		warn: rate.Sometimes{Interval: time.Minute},
	}
}

// Config returns ingestor configuration.
func (in *Ingestor) Config() Config {
	return in.cfg
}

// Reset forgets the last distorter invocation time:
// the next reading primes the distorter without distorting.
func (in *Ingestor) Reset() {
	in.lastDistort = 0
	in.distorted = false
}

// Ingest converts reading r into a pose measurement.
// Ingest never rejects a reading: covariance which is not positive definite is only reported.
func (in *Ingestor) Ingest(r Reading) *Measurement {
	m := &Measurement{
		Position:    r3.Vec{X: r.Position[0], Y: r.Position[1], Z: r.Position[2]},
		Orientation: quat.Number{Real: r.Orientation[0], Imag: r.Orientation[1], Jmag: r.Orientation[2], Kmag: r.Orientation[3]},
		R:           mat.NewSymDense(Dim, nil),
		cfg:         in.cfg,
		seq:         r.Seq,
		time:        r.Time,
	}

	if in.cfg.Distorter != nil {
		if in.distorted {
			in.cfg.Distorter.Distort(&m.Position, &m.Orientation, r.Time-in.lastDistort)
		}
		in.lastDistort = r.Time
		in.distorted = true
	}

	if in.cfg.FixedCovariance {
		sp := in.cfg.NoisePosition * in.cfg.NoisePosition
		sq := in.cfg.NoiseOrientation * in.cfg.NoiseOrientation
		for i := 0; i < 3; i++ {
			m.R.SetSym(i, i, sp)
			m.R.SetSym(i+3, i+3, sq)
		}
	} else {
		in.sensorCov(m, r)
	}
	m.R.SetSym(Dim-1, Dim-1, yawNoise)

	if !in.cfg.WorldSensor {
		invert(m)
	}

	return m
}

// sensorCov copies reading covariance into m.R and drops position-attitude correlations.
func (in *Ingestor) sensorCov(m *Measurement, r Reading) {
	if r.Seq%covCheckEvery == 0 {
		m.Diagnostics |= CovarianceChecked
		if det := mat.Det(mat.NewDense(6, 6, r.Covariance[:])); det < minCovDet {
			m.Diagnostics |= CovarianceIllConditioned
			in.warn.Do(func() {
				log().Warn("pose covariance is not positive definite",
					"sensor", in.cfg.SensorID,
					"seq", r.Seq,
					"det", det,
					"cov", matrix.Format(mat.NewDense(6, 6, r.Covariance[:])))
			})
		}
	}

	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			if i < 3 && j >= 3 {
				continue
			}
			m.R.SetSym(i, j, r.Covariance[i*6+j])
		}
	}
}

// invert turns world pose in sensor frame into sensor pose in world frame.
// Position and attitude covariance blocks are rotated by the measured rotation C: R <- C'*R*C.
func invert(m *Measurement) {
	C := matrix.Rotation(m.Orientation)
	m.Orientation = quat.Conj(m.Orientation)
	m.Position = r3.Scale(-1, C.MulVecTrans(m.Position))

	for _, o := range []int{0, 3} {
		blk := mat.NewDense(3, 3, nil)
		blk.Product(C.T(), m.R.SliceSym(o, o+3), C)
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				m.R.SetSym(o+i, o+j, blk.At(i, j))
			}
		}
	}
}
