package sim

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-msf/state"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Trajectory is ground-truth motion with constant velocity and constant yaw rate.
type Trajectory struct {
	// start is the true state at the start of the trajectory
	start *state.State
	// Velocity is constant world frame velocity
	Velocity r3.Vec
	// YawRate is constant yaw rate about the world z axis
	YawRate float64
}

// NewTrajectory creates new Trajectory starting at state start and returns it.
// It returns error if start is not a valid state.
func NewTrajectory(start *state.State, vel r3.Vec, yawRate float64) (*Trajectory, error) {
	if !start.IsValid() {
		return nil, fmt.Errorf("invalid trajectory start state")
	}

	s := start.Clone()
	s.V = vel

	return &Trajectory{
		start:    s,
		Velocity: vel,
		YawRate:  yawRate,
	}, nil
}

// At returns the true state at time t.
func (tr *Trajectory) At(t float64) *state.State {
	dt := t - tr.start.Time

	s := tr.start.Clone()
	s.Time = t
	s.P = r3.Add(s.P, r3.Scale(dt, tr.Velocity))
	s.Q = yaw(tr.YawRate*dt, s.Q)

	return s
}

// Propagate predicts estimate est forward to time t using the trajectory motion as known input.
// Position, velocity and attitude variances grow by q per second.
// It returns the new state; est is not modified.
func (tr *Trajectory) Propagate(est *state.State, t, q float64) *state.State {
	dt := t - est.Time

	s := est.Clone()
	s.Time = t
	s.V = tr.Velocity
	s.P = r3.Add(s.P, r3.Scale(dt, tr.Velocity))
	s.Q = yaw(tr.YawRate*dt, s.Q)

	for _, b := range []state.Block{state.P, state.V, state.Q} {
		for i := b.Offset(); i < b.Offset()+b.Width(); i++ {
			s.Cov.SetSym(i, i, s.Cov.At(i, i)+q*dt)
		}
	}

	return s
}

// yaw rotates q by angle about the world z axis.
func yaw(angle float64, q quat.Number) quat.Number {
	half := angle / 2
	return quat.Mul(quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)}, q)
}
