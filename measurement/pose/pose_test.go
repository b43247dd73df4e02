package pose

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	filter "github.com/milosgajdos/go-msf"
	"github.com/milosgajdos/go-msf/core"
	"github.com/milosgajdos/go-msf/kalman/ekf"
	"github.com/milosgajdos/go-msf/matrix"
	"github.com/milosgajdos/go-msf/state"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	discard *slog.Logger
	// cov is a dense 6x6 sensor covariance with position-attitude correlations
	cov [36]float64
	// approx compares floats within numeric tolerance
	approx = cmpopts.EquateApprox(0, 1e-9)
)

func setup() {
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
	SetLogger(discard)

	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			cov[i*6+j] = 0.001
		}
		cov[i*6+i] = 0.01 * float64(i+1)
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func axisAngle(axis r3.Vec, angle float64) quat.Number {
	axis = r3.Scale(1/r3.Norm(axis), axis)
	s := math.Sin(angle / 2)
	return quat.Number{Real: math.Cos(angle / 2), Imag: s * axis.X, Jmag: s * axis.Y, Kmag: s * axis.Z}
}

// testState returns a state with every block observed by the pose sensor set.
// Drift rotation has no yaw so the world yaw term is zero.
func testState(t float64) *state.State {
	s := state.New(t)
	s.P = r3.Vec{X: 1, Y: -2, Z: 0.5}
	s.Q = axisAngle(r3.Vec{X: 1, Y: 2, Z: 3}, 0.7)
	s.L = 1.3
	s.Qwv = axisAngle(r3.Vec{X: 1}, 0.1)
	s.Pwv = r3.Vec{X: 0.2, Y: 0.1, Z: -0.3}
	s.Qic = axisAngle(r3.Vec{X: -1, Y: 0.5, Z: 2}, 0.3)
	s.Pic = r3.Vec{X: 0.05, Y: -0.02, Z: 0.1}
	for i := 0; i < state.ErrorDim; i++ {
		s.Cov.SetSym(i, i, 0.01)
	}

	return s
}

// readingAt returns noiseless world-frame reading of state s.
func readingAt(s *state.State, seq uint32) Reading {
	p, q := Predict(s)
	return Reading{
		Seq:         seq,
		Time:        s.Time,
		Position:    [3]float64{p.X, p.Y, p.Z},
		Orientation: [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
		Covariance:  cov,
	}
}

func fixedConfig() Config {
	return Config{
		NoisePosition:    0.1,
		NoiseOrientation: 0.05,
		WorldSensor:      true,
		FixedCovariance:  true,
		Absolute:         true,
	}
}

type recordDistorter struct {
	dts    []float64
	offset r3.Vec
}

func (d *recordDistorter) Distort(p *r3.Vec, q *quat.Number, dt float64) {
	d.dts = append(d.dts, dt)
	*p = r3.Add(*p, d.offset)
}

type otherMeasurement struct{ t float64 }

func (o otherMeasurement) Kind() filter.Kind { return "imu" }
func (o otherMeasurement) Time() float64 { return o.t }
func (o otherMeasurement) SensorID() int { return 0 }
func (o otherMeasurement) Linearize(*state.State) *mat.Dense { return nil }
func (o otherMeasurement) Residual(*state.State) *mat.VecDense { return nil }
func (o otherMeasurement) Apply(*state.State, filter.Core) filter.Status { return filter.Applied }

type fakeCore struct {
	prev  filter.Measurement
	state *state.State
	abs   int
	rel   int
	err   error
}

func (c *fakeCore) PreviousMeasurement(t float64, id int) filter.Measurement {
	return c.prev
}

func (c *fakeCore) ClosestState(t float64) *state.State {
	if c.state == nil {
		return state.Invalid()
	}
	return c.state
}

func (c *fakeCore) ApplyAbsolute(s *state.State, H mat.Matrix, r mat.Vector, R mat.Symmetric) (filter.Estimate, error) {
	c.abs++
	return nil, c.err
}

func (c *fakeCore) ApplyRelative(sOld, sNew *state.State, HOld, HNew mat.Matrix, r mat.Vector, R mat.Symmetric) (filter.Estimate, error) {
	c.rel++
	return nil, c.err
}

func TestIngestFixedCovariance(t *testing.T) {
	assert := assert.New(t)

	in := NewIngestor(fixedConfig())
	m := in.Ingest(Reading{
		Seq:         1,
		Time:        0.5,
		Position:    [3]float64{1, 2, 3},
		Orientation: [4]float64{1, 0, 0, 0},
	})

	R := mat.NewSymDense(Dim, nil)
	for i, v := range []float64{0.01, 0.01, 0.01, 0.0025, 0.0025, 0.0025, 1e-6} {
		R.SetSym(i, i, v)
	}
	assert.True(mat.EqualApprox(R, m.R, 1e-12))
	assert.True(cmp.Equal(r3.Vec{X: 1, Y: 2, Z: 3}, m.Position, approx))
	assert.True(cmp.Equal(quat.Number{Real: 1}, m.Orientation, approx))
	assert.Equal(0.5, m.Time())
	assert.Equal(uint32(1), m.Seq())
	assert.Equal(KindPose, m.Kind())
	assert.Equal(Diagnostic(0), m.Diagnostics)
}

func TestIngestCrossCovariance(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		name  string
		fixed bool
		world bool
	}{
		{"sensor covariance world", false, true},
		{"sensor covariance inverted", false, false},
		{"fixed covariance world", true, true},
		{"fixed covariance inverted", true, false},
	}

	for _, tc := range testCases {
		cfg := fixedConfig()
		cfg.FixedCovariance = tc.fixed
		cfg.WorldSensor = tc.world

		r := readingAt(testState(1.0), 7)
		m := NewIngestor(cfg).Ingest(r)

		for i := 0; i < 3; i++ {
			for j := 3; j < Dim; j++ {
				assert.Equal(0.0, m.R.At(i, j), tc.name)
				assert.Equal(0.0, m.R.At(j, i), tc.name)
			}
		}
		for j := 0; j < Dim-1; j++ {
			assert.Equal(0.0, m.R.At(Dim-1, j), tc.name)
		}
		assert.Equal(1e-6, m.R.At(Dim-1, Dim-1), tc.name)
	}
}

func TestIngestCovarianceCheck(t *testing.T) {
	assert := assert.New(t)

	bad := [36]float64{}
	for i := 0; i < 6; i++ {
		bad[i*6+i] = 1
	}
	bad[35] = -1

	good := [36]float64{}
	for i := 0; i < 6; i++ {
		good[i*6+i] = 1
	}

	cfg := fixedConfig()
	cfg.FixedCovariance = false
	in := NewIngestor(cfg)

	testCases := []struct {
		seq  uint32
		cov  [36]float64
		diag Diagnostic
	}{
		{0, good, CovarianceChecked},
		{99, bad, 0},
		{100, bad, CovarianceChecked | CovarianceIllConditioned},
		{101, bad, 0},
		{200, good, CovarianceChecked},
		{300, bad, CovarianceChecked | CovarianceIllConditioned},
	}

	for _, tc := range testCases {
		m := in.Ingest(Reading{Seq: tc.seq, Orientation: [4]float64{1, 0, 0, 0}, Covariance: tc.cov})
		assert.Equal(tc.diag, m.Diagnostics, "seq %d", tc.seq)
		assert.Equal(tc.diag.Has(CovarianceChecked), tc.seq%covCheckEvery == 0)
	}
}

func TestInvert(t *testing.T) {
	assert := assert.New(t)

	cfg := fixedConfig()
	cfg.FixedCovariance = false
	m := NewIngestor(cfg).Ingest(readingAt(testState(1.0), 1))

	p, q := m.Position, m.Orientation
	R := mat.NewSymDense(Dim, nil)
	R.CopySym(m.R)

	invert(m)
	assert.False(cmp.Equal(p, m.Position, approx))

	invert(m)
	assert.True(cmp.Equal(p, m.Position, approx))
	assert.True(cmp.Equal(q, m.Orientation, approx))
	assert.True(mat.EqualApprox(R, m.R, 1e-12))
}

func TestIngestDistorter(t *testing.T) {
	assert := assert.New(t)

	d := &recordDistorter{offset: r3.Vec{X: 1}}
	cfg := fixedConfig()
	cfg.Distorter = d
	in := NewIngestor(cfg)

	orient := [4]float64{1, 0, 0, 0}
	m := in.Ingest(Reading{Time: 1.0, Orientation: orient})
	assert.Equal(0.0, m.Position.X)
	assert.Empty(d.dts)

	m = in.Ingest(Reading{Time: 1.5, Orientation: orient})
	assert.Equal(1.0, m.Position.X)
	in.Ingest(Reading{Time: 2.5, Orientation: orient})
	assert.True(cmp.Equal([]float64{0.5, 1.0}, d.dts, approx))

	// reset primes the distorter again
	in.Reset()
	in.Ingest(Reading{Time: 4.0, Orientation: orient})
	assert.Len(d.dts, 2)
	in.Ingest(Reading{Time: 4.2, Orientation: orient})
	assert.Len(d.dts, 3)
	assert.InDelta(0.2, d.dts[2], 1e-12)
}

func TestLinearizeFixedStates(t *testing.T) {
	assert := assert.New(t)

	fixed := []state.Block{state.L, state.Qwv, state.Pic}
	cfg := fixedConfig()
	cfg.FixedStates = state.MaskOf(fixed...)
	cfg.PinYawDrift = true
	m := NewIngestor(cfg).Ingest(readingAt(testState(1.0), 1))

	s := testState(1.0)
	for i := 0; i < state.ErrorDim; i++ {
		for j := i + 1; j < state.ErrorDim; j++ {
			s.Cov.SetSym(i, j, 0.001)
		}
	}

	H := m.Linearize(s)
	for _, b := range fixed {
		o, w := b.Offset(), b.Width()
		assert.Equal(0.0, mat.Norm(H.Slice(0, Dim, o, o+w), 1), b.String())

		for i := o; i < o+w; i++ {
			for j := 0; j < state.ErrorDim; j++ {
				if j >= o && j < o+w {
					assert.NotEqual(0.0, s.Cov.At(i, j))
					continue
				}
				assert.Equal(0.0, s.Cov.At(i, j), "%s: %d, %d", b, i, j)
			}
		}
	}
	// cross-covariance of free blocks is kept
	assert.Equal(0.001, s.Cov.At(state.P.Offset(), state.Q.Offset()))
	// fixed drift rotation disables the yaw row
	assert.Equal(0.0, mat.Norm(H.RowView(Dim-1), 1))

	// repeated linearization changes nothing
	cov := mat.NewSymDense(state.ErrorDim, nil)
	cov.CopySym(s.Cov)
	H2 := m.Linearize(s)
	assert.True(mat.Equal(cov, s.Cov))
	assert.True(mat.Equal(H, H2))
}

func TestJacobianYawRow(t *testing.T) {
	assert := assert.New(t)

	s := testState(1.0)
	cfg := fixedConfig()
	m := NewIngestor(cfg).Ingest(readingAt(s, 1))
	assert.Equal(0.0, mat.Norm(m.Jacobian(s).RowView(Dim-1), 1))

	cfg.PinYawDrift = true
	m = NewIngestor(cfg).Ingest(readingAt(s, 1))
	H := m.Jacobian(s)
	assert.Equal(1.0, H.At(Dim-1, state.Qwv.Offset()+2))
	assert.Equal(1.0, mat.Norm(H.RowView(Dim-1), 1))
}

func TestJacobianFiniteDifference(t *testing.T) {
	assert := assert.New(t)

	s := testState(1.0)
	m := NewIngestor(fixedConfig()).Ingest(readingAt(s, 1))
	H := m.Jacobian(s)

	_, q0 := Predict(s)
	f := func(y, x []float64) {
		sx := s.Clone()
		dx := make([]float64, len(x))
		copy(dx, x)
		if err := sx.Correct(mat.NewVecDense(len(dx), dx)); err != nil {
			panic(err)
		}
		p, q := Predict(sx)
		dq := AttitudeError(quat.Mul(quat.Conj(q0), q))
		y[0], y[1], y[2] = p.X, p.Y, p.Z
		y[3], y[4], y[5] = dq.X, dq.Y, dq.Z
		y[6] = 0
	}

	J := mat.NewDense(Dim, state.ErrorDim, nil)
	fd.Jacobian(J, f, make([]float64, state.ErrorDim), &fd.JacobianSettings{Formula: fd.Central})

	testCases := []struct {
		row   int
		block state.Block
	}{
		{0, state.P},
		{0, state.Q},
		{0, state.L},
		{0, state.Pic},
		{3, state.Q},
		{3, state.Qwv},
		{3, state.Qic},
	}

	for _, tc := range testCases {
		o, w := tc.block.Offset(), tc.block.Width()
		want := J.Slice(tc.row, tc.row+3, o, o+w)
		got := H.Slice(tc.row, tc.row+3, o, o+w)
		assert.True(mat.EqualApprox(want, got, 1e-6), "rows %d, block %s:\nwant: %s\ngot: %s",
			tc.row, tc.block, matrix.Format(want), matrix.Format(got))
	}

	// attitude rows do not depend on positions, scale or biases
	for _, b := range []state.Block{state.P, state.V, state.Bw, state.Ba, state.L, state.Pwv, state.Pic} {
		o, w := b.Offset(), b.Width()
		assert.Equal(0.0, mat.Norm(H.Slice(3, 6, o, o+w), 1), b.String())
	}
}

func TestAttitudeError(t *testing.T) {
	assert := assert.New(t)

	assert.True(cmp.Equal(r3.Vec{}, AttitudeError(quat.Number{Real: 1})))

	q := testState(1.0).Q
	assert.True(cmp.Equal(r3.Vec{}, AttitudeError(quat.Mul(quat.Conj(q), q)), approx))

	// small rotation about z
	e := AttitudeError(axisAngle(r3.Vec{Z: 1}, 0.01))
	assert.InDelta(0.01, e.Z, 1e-6)
	assert.InDelta(0.0, e.X, 1e-12)
}

func TestYawDrift(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0.0, YawDrift(quat.Number{Real: 1}))
	assert.InDelta(0.0, YawDrift(axisAngle(r3.Vec{X: 1}, 0.3)), 1e-12)
	assert.NotEqual(0.0, YawDrift(axisAngle(r3.Vec{Z: 1}, 0.3)))
}

func TestResidualAtTrueState(t *testing.T) {
	assert := assert.New(t)

	s := testState(1.0)

	// world sensor
	m := NewIngestor(fixedConfig()).Ingest(readingAt(s, 1))
	r := m.Residual(s)
	assert.Equal(Dim, r.Len())
	assert.InDelta(0.0, mat.Norm(r, 2), 1e-9)

	// sensor reporting world pose in its own frame
	p, q := Predict(s)
	inv := quat.Conj(q)
	pInv := r3.Scale(-1, matrix.Rotation(q).MulVecTrans(p))
	reading := Reading{
		Time:        s.Time,
		Position:    [3]float64{pInv.X, pInv.Y, pInv.Z},
		Orientation: [4]float64{inv.Real, inv.Imag, inv.Jmag, inv.Kmag},
	}
	cfg := fixedConfig()
	cfg.WorldSensor = false
	m = NewIngestor(cfg).Ingest(reading)
	assert.True(cmp.Equal(p, m.Position, approx))
	assert.InDelta(0.0, mat.Norm(m.Residual(s), 2), 1e-9)

	// position offset shows in position rows only
	s.P = r3.Add(s.P, r3.Vec{X: 0.1})
	r = m.Residual(s)
	assert.NotEqual(0.0, r.AtVec(0))
	assert.InDelta(0.0, r.AtVec(3), 1e-9)
}

func TestRelativeResidual(t *testing.T) {
	assert := assert.New(t)

	sOld := testState(1.0)
	sNew := sOld.Clone()
	sNew.Time = 2.0

	cfg := fixedConfig()
	cfg.Absolute = false
	in := NewIngestor(cfg)
	prev := in.Ingest(readingAt(sOld, 1))
	m := in.Ingest(readingAt(sNew, 2))

	r := m.RelativeResidual(prev, sOld, sNew)
	assert.InDelta(0.0, mat.Norm(r, 2), 1e-9)

	// constant offset of both readings cancels out
	offset := func(r Reading) Reading {
		r.Position[0] += 5
		return r
	}
	prev = in.Ingest(offset(readingAt(sOld, 3)))
	m = in.Ingest(offset(readingAt(sNew, 4)))
	r = m.RelativeResidual(prev, sOld, sNew)
	assert.InDelta(0.0, mat.Norm(r, 2), 1e-9)

	// motion the states do not account for
	sMoved := testState(2.0)
	sMoved.P = r3.Add(sMoved.P, r3.Vec{Y: 0.2})
	m = in.Ingest(readingAt(sMoved, 5))
	r = m.RelativeResidual(prev, sOld, sNew)
	assert.Greater(math.Abs(r.AtVec(1)), 0.1)
}

func TestApplyRelativeSkips(t *testing.T) {
	assert := assert.New(t)

	cfg := fixedConfig()
	cfg.Absolute = false
	in := NewIngestor(cfg)
	s := testState(2.0)
	want := s.Clone()
	m := in.Ingest(readingAt(s, 2))

	invalidPrev := in.Ingest(Reading{Time: state.InvalidTime, Orientation: [4]float64{1, 0, 0, 0}})
	validPrev := in.Ingest(readingAt(testState(1.0), 1))

	testCases := []struct {
		name   string
		core   *fakeCore
		status filter.Status
	}{
		{"no previous measurement", &fakeCore{state: testState(1.0)}, filter.SkippedPreviousMeasurementMissing},
		{"invalid previous measurement", &fakeCore{prev: invalidPrev, state: testState(1.0)}, filter.SkippedPreviousMeasurementMissing},
		{"previous measurement kind", &fakeCore{prev: otherMeasurement{t: 1.0}, state: testState(1.0)}, filter.SkippedPreviousMeasurementKindMismatch},
		{"no previous state", &fakeCore{prev: validPrev}, filter.SkippedPreviousStateMissing},
	}

	for _, tc := range testCases {
		status := m.Apply(s, tc.core)
		assert.Equal(tc.status, status, tc.name)
		assert.True(status.Skipped(), tc.name)
		assert.Equal(0, tc.core.rel, tc.name)
		assert.True(cmp.Equal(want.Vector().RawVector().Data, s.Vector().RawVector().Data), tc.name)
	}

	c := &fakeCore{prev: validPrev, state: testState(1.0)}
	assert.Equal(filter.Applied, m.Apply(s, c))
	assert.Equal(1, c.rel)
	assert.Equal(0, c.abs)
}

func TestApplyAbsoluteStatus(t *testing.T) {
	assert := assert.New(t)

	s := testState(1.0)
	in := NewIngestor(fixedConfig())

	c := &fakeCore{}
	assert.Equal(filter.Applied, in.Ingest(readingAt(s, 1)).Apply(s, c))
	assert.Equal(1, c.abs)

	// non-finite reading is still applied
	r := readingAt(s, 2)
	r.Position[1] = math.NaN()
	assert.Equal(filter.AppliedNumericInvalid, in.Ingest(r).Apply(s, c))
	assert.Equal(2, c.abs)

	c.err = errors.New("singular")
	assert.Equal(filter.CorrectionFailed, in.Ingest(readingAt(s, 3)).Apply(s, c))
	assert.Equal(3, c.abs)
	assert.Equal(0, c.rel)
}

func TestApplyThroughCore(t *testing.T) {
	assert := assert.New(t)

	sOld := testState(1.0)
	sNew := sOld.Clone()
	sNew.Time = 2.0
	want := sNew.Clone()

	c := core.New(ekf.New(), core.WithLogger(discard))
	c.AddState(sOld)
	c.AddState(sNew)

	cfg := fixedConfig()
	cfg.Absolute = false
	cfg.SensorID = 3
	in := NewIngestor(cfg)

	// first relative reading has no predecessor
	assert.Equal(filter.SkippedPreviousMeasurementMissing, c.Process(in.Ingest(readingAt(sOld, 1))))
	// identical reading at unchanged state
	assert.Equal(filter.Applied, c.Process(in.Ingest(readingAt(sNew, 2))))
	assert.True(cmp.Equal(want.P, sNew.P, approx))
	assert.True(cmp.Equal(want.Q, sNew.Q, approx))
	assert.InDelta(want.L, sNew.L, 1e-9)

	// absolute reading at true state leaves the state in place
	cfg.Absolute = true
	cfg.SensorID = 4
	m := NewIngestor(cfg).Ingest(readingAt(sNew, 3))
	assert.Equal(filter.Applied, c.Process(m))
	assert.True(cmp.Equal(want.P, sNew.P, cmpopts.EquateApprox(0, 1e-6)))
	assert.Less(sNew.Cov.At(0, 0), want.Cov.At(0, 0))
}

func TestFromMeasurement(t *testing.T) {
	assert := assert.New(t)

	m := NewIngestor(fixedConfig()).Ingest(Reading{Orientation: [4]float64{1, 0, 0, 0}})
	p, ok := FromMeasurement(m)
	assert.True(ok)
	assert.Equal(m, p)

	p, ok = FromMeasurement(otherMeasurement{})
	assert.False(ok)
	assert.Nil(p)

	p, ok = FromMeasurement(nil)
	assert.False(ok)
	assert.Nil(p)
}
