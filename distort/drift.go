// Package distort provides synthetic pose reading distortions.
package distort

import (
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-msf"
	"github.com/milosgajdos/go-msf/noise"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Drift distorts pose readings with an accumulating position and yaw drift
// and an additive position noise.
// It implements filter.Distorter.
type Drift struct {
	// Velocity is position drift rate
	Velocity r3.Vec
	// YawRate is yaw drift rate in radians per second
	YawRate float64
	// noise is position noise
	noise filter.Noise
	// offset is accumulated position drift
	offset r3.Vec
	// yaw is accumulated yaw drift
	yaw float64
}

// NewDrift creates new Drift with given drift rates and position noise n and returns it.
// Zero noise is used if n is nil.
// It returns error if the noise is not 3-dimensional.
func NewDrift(vel r3.Vec, yawRate float64, n filter.Noise) (*Drift, error) {
	if n == nil {
		z, err := noise.NewZero(3)
		if err != nil {
			return nil, err
		}
		n = z
	}

	if len(n.Mean()) != 3 {
		return nil, fmt.Errorf("invalid position noise dimension: %d", len(n.Mean()))
	}

	return &Drift{
		Velocity: vel,
		YawRate:  yawRate,
		noise:    n,
	}, nil
}

// Distort accumulates drift over dt and applies it to position p and orientation q.
// Yaw drift rotates q about the world z axis.
func (d *Drift) Distort(p *r3.Vec, q *quat.Number, dt float64) {
	d.offset = r3.Add(d.offset, r3.Scale(dt, d.Velocity))
	d.yaw += d.YawRate * dt

	n := d.noise.Sample()
	*p = r3.Add(*p, r3.Add(d.offset, r3.Vec{X: n.AtVec(0), Y: n.AtVec(1), Z: n.AtVec(2)}))

	half := d.yaw / 2
	*q = quat.Mul(quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}, *q)
}

// Offset returns accumulated position drift.
func (d *Drift) Offset() r3.Vec {
	return d.offset
}

// Yaw returns accumulated yaw drift.
func (d *Drift) Yaw() float64 {
	return d.yaw
}

// Reset clears accumulated drift and resets the noise.
func (d *Drift) Reset() error {
	d.offset = r3.Vec{}
	d.yaw = 0

	return d.noise.Reset()
}
