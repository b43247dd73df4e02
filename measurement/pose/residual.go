package pose

import (
	"github.com/milosgajdos/go-msf/matrix"
	"github.com/milosgajdos/go-msf/state"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Predict returns the sensor pose in vision frame predicted from state s.
func Predict(s *state.State) (r3.Vec, quat.Number) {
	Cwv := matrix.Rotation(s.Qwv)
	Cq := matrix.Rotation(s.Q)

	p := r3.Scale(s.L, Cwv.MulVec(r3.Add(r3.Sub(s.P, s.Pwv), Cq.MulVec(s.Pic))))
	q := quat.Mul(quat.Mul(s.Qwv, s.Q), s.Qic)

	return p, q
}

// AttitudeError returns the small angle approximation of the error quaternion q.
// It is undefined for errors close to 180 degrees.
func AttitudeError(q quat.Number) r3.Vec {
	return r3.Scale(2/q.Real, matrix.Imag(q))
}

// YawDrift returns the world yaw term of the vision-world drift rotation q.
func YawDrift(q quat.Number) float64 {
	return -2 * (q.Real*q.Kmag + q.Imag*q.Jmag) / (1 - 2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag))
}

// Residual returns absolute measurement residual at state s.
func (m *Measurement) Residual(s *state.State) *mat.VecDense {
	p, q := Predict(s)

	dp := r3.Sub(m.Position, p)
	dq := AttitudeError(quat.Mul(quat.Conj(q), m.Orientation))

	return residual(dp, dq, YawDrift(s.Qwv))
}

// RelativeResidual returns the residual of the motion between prev and m
// against the motion predicted between states sOld and sNew.
func (m *Measurement) RelativeResidual(prev *Measurement, sOld, sNew *state.State) *mat.VecDense {
	pOld, qOld := Predict(sOld)
	pNew, qNew := Predict(sNew)

	dp := r3.Sub(r3.Sub(m.Position, prev.Position), r3.Sub(pNew, pOld))

	predicted := quat.Mul(quat.Conj(qNew), qOld)
	measured := quat.Mul(quat.Conj(m.Orientation), prev.Orientation)
	dq := AttitudeError(quat.Mul(quat.Conj(predicted), measured))

	return residual(dp, dq, YawDrift(sNew.Qwv))
}

func residual(dp, dq r3.Vec, yaw float64) *mat.VecDense {
	return mat.NewVecDense(Dim, []float64{dp.X, dp.Y, dp.Z, dq.X, dq.Y, dq.Z, yaw})
}
