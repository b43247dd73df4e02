package matrix

import (
	"fmt"
	"math"

	mx "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rotation returns rotation matrix of the unit quaternion q.
func Rotation(q quat.Number) *r3.Mat {
	return r3.Rotation(q).Mat()
}

// Skew returns the skew symmetric matrix of v such that Skew(v)*x == v x x.
func Skew(v r3.Vec) *r3.Mat {
	m := r3.NewMat(nil)
	m.Skew(v)

	return m
}

// Mul returns the product of the 3x3 matrices ms.
// It panics if ms is empty or if any of the matrices is not 3x3.
func Mul(ms ...mat.Matrix) *r3.Mat {
	out := r3.NewMat(nil)
	out.CloneFrom(ms[0])
	for _, m := range ms[1:] {
		out.Mul(out, m)
	}

	return out
}

// Eye returns n x n identity matrix.
func Eye(n int) *mat.Dense {
	eye, err := mx.NewDenseValIdentity(n, 1.0)
	if err != nil {
		panic(err)
	}

	return eye
}

// SetBlock copies src into dst with its top left corner at [i, j].
// It panics if src does not fit into dst.
func SetBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	dst.Slice(i, i+r, j, j+c).(*mat.Dense).Copy(src)
}

// SetVec copies v into column j of dst starting at row i.
func SetVec(dst *mat.Dense, i, j int, v r3.Vec) {
	dst.Set(i, j, v.X)
	dst.Set(i+1, j, v.Y)
	dst.Set(i+2, j, v.Z)
}

// Imag returns the vector part of quaternion q.
func Imag(q quat.Number) r3.Vec {
	return r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// Normalize returns q scaled to unit length.
func Normalize(q quat.Number) quat.Number {
	return quat.Scale(1/quat.Abs(q), q)
}

// IsFinite returns false if m contains NaN or Inf values.
func IsFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

// Format returns m formatted for logging.
func Format(m mat.Matrix) string {
	return fmt.Sprintf("%v", mx.Format(m))
}
