package filter

// Status is the outcome of applying a measurement.
// None of the statuses is fatal: a skipped measurement leaves the state untouched.
type Status int

const (
	// Applied means the correction was handed to the corrector
	Applied Status = iota
	// AppliedNumericInvalid means the correction contained NaN or Inf values but was applied anyway
	AppliedNumericInvalid
	// SkippedNoState means there was no valid state to apply the measurement to
	SkippedNoState
	// SkippedPreviousMeasurementMissing means relative measurement had no valid predecessor
	SkippedPreviousMeasurementMissing
	// SkippedPreviousMeasurementKindMismatch means relative measurement predecessor is of different kind
	SkippedPreviousMeasurementKindMismatch
	// SkippedPreviousStateMissing means there was no valid state at the predecessor time
	SkippedPreviousStateMissing
	// CorrectionFailed means the corrector rejected the correction
	CorrectionFailed
)

var statusNames = [...]string{
	"Applied",
	"AppliedNumericInvalid",
	"SkippedNoState",
	"SkippedPreviousMeasurementMissing",
	"SkippedPreviousMeasurementKindMismatch",
	"SkippedPreviousStateMissing",
	"CorrectionFailed",
}

// String implements the Stringer interface.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}
	return statusNames[s]
}

// Skipped returns true if the measurement was dropped without touching the state.
func (s Status) Skipped() bool {
	switch s {
	case SkippedNoState, SkippedPreviousMeasurementMissing,
		SkippedPreviousMeasurementKindMismatch, SkippedPreviousStateMissing:
		return true
	}
	return false
}
