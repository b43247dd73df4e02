package pose

import (
	filter "github.com/milosgajdos/go-msf"
	"github.com/milosgajdos/go-msf/matrix"
	"github.com/milosgajdos/go-msf/state"
	"gonum.org/v1/gonum/mat"
)

// Apply corrects state s using the measurement.
// Absolute measurements correct s directly. Relative measurements correct s with the motion
// since the previous measurement of the same sensor found in core history.
// Lookup failures skip the measurement and leave the state untouched.
// Corrections with NaN or Inf values are logged but still applied.
func (m *Measurement) Apply(s *state.State, core filter.Core) filter.Status {
	if m.cfg.Absolute {
		return m.applyAbsolute(s, core)
	}

	return m.applyRelative(s, core)
}

func (m *Measurement) applyAbsolute(s *state.State, core filter.Core) filter.Status {
	H := m.Linearize(s)
	r := m.Residual(s)

	status := filter.Applied
	if !m.checkNumeric(s, named{"r", r}, named{"H", H}, named{"R", m.R}) {
		status = filter.AppliedNumericInvalid
	}

	if _, err := core.ApplyAbsolute(s, H, r, m.R); err != nil {
		log().Error("failed to apply pose correction",
			"sensor", m.SensorID(), "time", m.time, "err", err)
		return filter.CorrectionFailed
	}

	return status
}

func (m *Measurement) applyRelative(sNew *state.State, core filter.Core) filter.Status {
	prevMeas := core.PreviousMeasurement(m.time, m.SensorID())
	if prevMeas == nil || prevMeas.Time() == state.InvalidTime {
		log().Warn("previous measurement is invalid, measurement not applied",
			"sensor", m.SensorID(), "time", m.time)
		return filter.SkippedPreviousMeasurementMissing
	}

	prev, ok := FromMeasurement(prevMeas)
	if !ok {
		log().Warn("previous measurement is not a pose measurement, measurement not applied",
			"sensor", m.SensorID(), "time", m.time, "kind", prevMeas.Kind())
		return filter.SkippedPreviousMeasurementKindMismatch
	}

	sOld := core.ClosestState(prev.Time())
	if !sOld.IsValid() {
		log().Warn("state at previous measurement is invalid, measurement not applied",
			"sensor", m.SensorID(), "time", m.time, "prev", prev.Time())
		return filter.SkippedPreviousStateMissing
	}

	// TODO: check prev was made with the same fixed states mask
	HOld := m.Linearize(sOld)
	HOld.Scale(-1, HOld)
	HNew := m.Linearize(sNew)

	r := m.RelativeResidual(prev, sOld, sNew)

	status := filter.Applied
	if !m.checkNumeric(sNew, named{"r", r}, named{"H_old", HOld}, named{"H_new", HNew}, named{"R", m.R}) {
		status = filter.AppliedNumericInvalid
	}

	if _, err := core.ApplyRelative(sOld, sNew, HOld, HNew, r, m.R); err != nil {
		log().Error("failed to apply relative pose correction",
			"sensor", m.SensorID(), "time", m.time, "err", err)
		return filter.CorrectionFailed
	}

	return status
}

type named struct {
	name string
	m    mat.Matrix
}

// checkNumeric logs every non-finite correction input together with state s.
// It returns false if any of them contains NaN or Inf values.
func (m *Measurement) checkNumeric(s *state.State, inputs ...named) bool {
	ok := true
	for _, in := range inputs {
		if matrix.IsFinite(in.m) {
			continue
		}
		ok = false
		log().Error("pose correction is not finite",
			"sensor", m.SensorID(), "time", m.time, "name", in.name, "value", matrix.Format(in.m))
		log().Warn("pose correction state",
			"sensor", m.SensorID(), "time", m.time, "state", matrix.Format(s.Vector().T()))
	}

	return ok
}
