package state

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// InvalidTime marks a state or measurement which does not exist.
const InvalidTime = -1.0

// State is a snapshot of the filter state at a point in time.
type State struct {
	// Time is state timestamp
	Time float64
	// P is IMU position in world frame
	P r3.Vec
	// V is IMU velocity in world frame
	V r3.Vec
	// Q is IMU attitude in world frame
	Q quat.Number
	// Bw is gyroscope bias
	Bw r3.Vec
	// Ba is accelerometer bias
	Ba r3.Vec
	// L is visual scale
	L float64
	// Qwv is vision-world drift rotation
	Qwv quat.Number
	// Pwv is vision-world drift translation
	Pwv r3.Vec
	// Qic is IMU-camera rotation
	Qic quat.Number
	// Pic is IMU-camera translation
	Pic r3.Vec
	// Cov is error-state covariance
	Cov *mat.SymDense
}

// New creates new state at time t with identity rotations, unit scale and zero covariance.
func New(t float64) *State {
	return &State{
		Time: t,
		Q:    quat.Number{Real: 1},
		L:    1,
		Qwv:  quat.Number{Real: 1},
		Qic:  quat.Number{Real: 1},
		Cov:  mat.NewSymDense(ErrorDim, nil),
	}
}

// Invalid returns a state marked with InvalidTime.
func Invalid() *State {
	return New(InvalidTime)
}

// IsValid returns false if s is nil or carries InvalidTime.
func (s *State) IsValid() bool {
	return s != nil && s.Time != InvalidTime
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	c.Cov = mat.NewSymDense(ErrorDim, nil)
	if s.Cov != nil {
		c.Cov.CopySym(s.Cov)
	}

	return &c
}

// ClearCrossCov zeroes covariance entries coupling block b with every other block.
// The covariance of b itself is left untouched.
func (s *State) ClearCrossCov(b Block) {
	start, end := b.Offset(), b.Offset()+b.Width()
	for i := start; i < end; i++ {
		for j := 0; j < ErrorDim; j++ {
			if j >= start && j < end {
				continue
			}
			s.Cov.SetSym(i, j, 0)
		}
	}
}

// Correct applies error-state correction dx to s.
// Vector and scalar blocks are corrected additively, quaternions
// are corrected by right multiplication with the small rotation dx.
func (s *State) Correct(dx mat.Vector) error {
	if dx.Len() != ErrorDim {
		return fmt.Errorf("invalid correction dimension: %d", dx.Len())
	}

	vec := func(b Block) r3.Vec {
		o := b.Offset()
		return r3.Vec{X: dx.AtVec(o), Y: dx.AtVec(o + 1), Z: dx.AtVec(o + 2)}
	}

	s.P = r3.Add(s.P, vec(P))
	s.V = r3.Add(s.V, vec(V))
	s.Q = correctQuat(s.Q, vec(Q))
	s.Bw = r3.Add(s.Bw, vec(Bw))
	s.Ba = r3.Add(s.Ba, vec(Ba))
	s.L += dx.AtVec(L.Offset())
	s.Qwv = correctQuat(s.Qwv, vec(Qwv))
	s.Pwv = r3.Add(s.Pwv, vec(Pwv))
	s.Qic = correctQuat(s.Qic, vec(Qic))
	s.Pic = r3.Add(s.Pic, vec(Pic))

	return nil
}

func correctQuat(q quat.Number, dtheta r3.Vec) quat.Number {
	dq := quat.Number{Real: 1, Imag: dtheta.X / 2, Jmag: dtheta.Y / 2, Kmag: dtheta.Z / 2}
	dq = quat.Scale(1/quat.Abs(dq), dq)
	q = quat.Mul(q, dq)

	return quat.Scale(1/quat.Abs(q), q)
}

// Vector returns the nominal state as a vector:
// p, v, q(w,x,y,z), b_w, b_a, L, q_wv, p_wv, q_ic, p_ic.
func (s *State) Vector() *mat.VecDense {
	data := make([]float64, 0, 31)
	for _, v := range []interface{}{s.P, s.V, s.Q, s.Bw, s.Ba, s.L, s.Qwv, s.Pwv, s.Qic, s.Pic} {
		switch x := v.(type) {
		case r3.Vec:
			data = append(data, x.X, x.Y, x.Z)
		case quat.Number:
			data = append(data, x.Real, x.Imag, x.Jmag, x.Kmag)
		case float64:
			data = append(data, x)
		}
	}

	return mat.NewVecDense(len(data), data)
}

// String implements the Stringer interface.
func (s *State) String() string {
	return fmt.Sprintf("State{Time=%v\nVal=%v\n}", s.Time, mat.Formatted(s.Vector().T(), mat.Squeeze()))
}
