// Package sim simulates pose sensors observing a ground-truth trajectory
// and runs their readings through the filter core.
package sim

import (
	"fmt"

	filter "github.com/milosgajdos/go-msf"
	"github.com/milosgajdos/go-msf/core"
	"github.com/milosgajdos/go-msf/measurement/pose"
	"github.com/milosgajdos/go-msf/state"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Source is a simulated sensor together with the ingestor of its readings.
type Source struct {
	Sensor   *PoseSensor
	Ingestor *pose.Ingestor
}

// Config configures a simulation run.
type Config struct {
	// Steps is the number of filter steps
	Steps int
	// Dt is the time between steps
	Dt float64
	// ProcessNoise is the variance growth per second of propagated states
	ProcessNoise float64
}

// Result records a simulation run.
type Result struct {
	// Times are measurement timestamps
	Times []float64
	// Residuals are measurement residuals at the propagated state before correction
	Residuals []*mat.VecDense
	// Statuses are measurement outcomes
	Statuses []filter.Status
	// Errors are position estimation errors after correction
	Errors []float64
}

// Count returns the number of measurements with status s.
func (r *Result) Count(s filter.Status) int {
	n := 0
	for _, st := range r.Statuses {
		if st == s {
			n++
		}
	}

	return n
}

// Run propagates estimate est along trajectory tr and corrects it with readings of every source.
// Estimates are stored in core c. It returns the final estimate and the run record.
func Run(c *core.Core, tr *Trajectory, est *state.State, sources []Source, cfg Config) (*state.State, *Result, error) {
	if cfg.Steps <= 0 || cfg.Dt <= 0 {
		return nil, nil, fmt.Errorf("invalid simulation config: %d steps, dt %v", cfg.Steps, cfg.Dt)
	}

	if !est.IsValid() {
		return nil, nil, fmt.Errorf("invalid initial estimate")
	}

	res := &Result{}
	c.AddState(est)
	t0 := est.Time

	for k := 1; k <= cfg.Steps; k++ {
		t := t0 + float64(k)*cfg.Dt
		est = tr.Propagate(est, t, cfg.ProcessNoise)
		c.AddState(est)

		truth := tr.At(t)
		for _, src := range sources {
			r, err := src.Sensor.Read(truth, uint32(k))
			if err != nil {
				return nil, nil, err
			}
			m := src.Ingestor.Ingest(r)

			res.Times = append(res.Times, t)
			res.Residuals = append(res.Residuals, m.Residual(est))
			res.Statuses = append(res.Statuses, c.Process(m))
			res.Errors = append(res.Errors, r3.Norm(r3.Sub(est.P, truth.P)))
		}
	}

	return est, res, nil
}
