package sim

import (
	"fmt"
	"time"

	"github.com/milosgajdos/go-msf/matrix"
	"github.com/milosgajdos/go-msf/measurement/pose"
	"github.com/milosgajdos/go-msf/rand"
	"github.com/milosgajdos/go-msf/state"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// PoseSensor simulates a 6-DOF pose sensor observing the true state.
type PoseSensor struct {
	// WorldSensor is true if the sensor reports its pose in world frame.
	// When false it reports world pose in sensor frame.
	WorldSensor bool
	// cov is reading covariance; nil means noiseless readings
	cov *mat.SymDense
	// src is noise source
	src *xrand.Rand
}

// NewPoseSensor creates new PoseSensor with 6x6 position and attitude covariance cov and returns it.
// Readings are noiseless if cov is nil. Zero seed seeds the noise from the clock.
// It returns error if cov has invalid dimensions.
func NewPoseSensor(worldSensor bool, cov mat.Symmetric, seed uint64) (*PoseSensor, error) {
	var c *mat.SymDense
	if cov != nil {
		if cov.SymmetricDim() != 6 {
			return nil, fmt.Errorf("invalid pose sensor covariance dimension: %d", cov.SymmetricDim())
		}
		c = mat.NewSymDense(6, nil)
		c.CopySym(cov)
	}

	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &PoseSensor{
		WorldSensor: worldSensor,
		cov:         c,
		src:         xrand.New(xrand.NewSource(seed)),
	}, nil
}

// Read returns the pose reading of the sensor at true state s.
func (ps *PoseSensor) Read(s *state.State, seq uint32) (pose.Reading, error) {
	p, q := pose.Predict(s)
	cov := mat.NewSymDense(6, nil)

	if ps.cov != nil {
		n, err := rand.WithCovN(ps.cov, 1, ps.src)
		if err != nil {
			return pose.Reading{}, err
		}
		p = r3.Add(p, r3.Vec{X: n.At(0, 0), Y: n.At(1, 0), Z: n.At(2, 0)})
		q = quat.Mul(q, quat.Number{Real: 1, Imag: n.At(3, 0) / 2, Jmag: n.At(4, 0) / 2, Kmag: n.At(5, 0) / 2})
		q = matrix.Normalize(q)
		cov.CopySym(ps.cov)
	}

	if !ps.WorldSensor {
		// world pose in sensor frame: rotate the covariance with it
		C := matrix.Rotation(q)
		p = r3.Scale(-1, C.MulVecTrans(p))
		q = quat.Conj(q)

		T := mat.NewDense(6, 6, nil)
		matrix.SetBlock(T, 0, 0, C)
		matrix.SetBlock(T, 3, 3, C)
		rot := &mat.Dense{}
		rot.Product(T.T(), cov, T)
		for i := 0; i < 6; i++ {
			for j := i; j < 6; j++ {
				cov.SetSym(i, j, rot.At(i, j))
			}
		}
	}

	r := pose.Reading{
		Seq:         seq,
		Time:        s.Time,
		Position:    [3]float64{p.X, p.Y, p.Z},
		Orientation: [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
	}
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			r.Covariance[i*6+j] = cov.At(i, j)
		}
	}

	return r, nil
}
