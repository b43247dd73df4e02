// Package core keeps the filter timelines and applies measurements to them.
package core

import (
	"log/slog"
	"math"

	filter "github.com/milosgajdos/go-msf"
	"github.com/milosgajdos/go-msf/state"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"
)

// DefaultCapacity is the default number of states and per-sensor measurements kept.
const DefaultCapacity = 100

// Core keeps time-ordered state and measurement buffers
// and applies measurements through a filter.Corrector.
// It implements filter.Core. Core is not safe for concurrent use.
type Core struct {
	// corrector applies corrections
	corrector filter.Corrector
	// states is state buffer sorted by time
	states []*state.State
	// meas are per-sensor measurement buffers sorted by time
	meas map[int][]filter.Measurement
	// capacity limits buffer lengths
	capacity int
	// logger logs skipped measurements
	logger *slog.Logger
}

// Option configures Core.
type Option func(*Core)

// WithCapacity sets the maximum number of states and per-sensor measurements kept.
func WithCapacity(n int) Option {
	return func(c *Core) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithLogger sets Core logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) {
		c.logger = l
	}
}

// New creates new Core which applies corrections using corrector and returns it.
func New(corrector filter.Corrector, opts ...Option) *Core {
	c := &Core{
		corrector: corrector,
		meas:      make(map[int][]filter.Measurement),
		capacity:  DefaultCapacity,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func byTime[T interface{ time() float64 }](a T, t float64) int {
	switch at := a.time(); {
	case at < t:
		return -1
	case at > t:
		return 1
	}
	return 0
}

type stateTime struct{ *state.State }

func (s stateTime) time() float64 { return s.Time }

// AddState inserts s into the state buffer keeping it ordered by time.
// A state with the same time as an existing one replaces it.
func (c *Core) AddState(s *state.State) {
	i, found := slices.BinarySearchFunc(c.states, s.Time, func(e *state.State, t float64) int {
		return byTime(stateTime{e}, t)
	})
	if found {
		c.states[i] = s
		return
	}

	c.states = slices.Insert(c.states, i, s)
	if len(c.states) > c.capacity {
		c.states = slices.Delete(c.states, 0, len(c.states)-c.capacity)
	}
}

// Latest returns the most recent state or an invalid state if the buffer is empty.
func (c *Core) Latest() *state.State {
	if len(c.states) == 0 {
		return state.Invalid()
	}

	return c.states[len(c.states)-1]
}

// ClosestState returns the state closest in time to t.
// It returns an invalid state if the state buffer is empty.
func (c *Core) ClosestState(t float64) *state.State {
	if len(c.states) == 0 {
		return state.Invalid()
	}

	i, _ := slices.BinarySearchFunc(c.states, t, func(e *state.State, t float64) int {
		return byTime(stateTime{e}, t)
	})

	switch {
	case i == 0:
		return c.states[0]
	case i == len(c.states):
		return c.states[i-1]
	}

	if math.Abs(c.states[i].Time-t) < math.Abs(t-c.states[i-1].Time) {
		return c.states[i]
	}

	return c.states[i-1]
}

// PreviousMeasurement returns the measurement of sensor id immediately preceding t.
// It returns nil if there is no such measurement.
func (c *Core) PreviousMeasurement(t float64, id int) filter.Measurement {
	buf := c.meas[id]
	i, _ := slices.BinarySearchFunc(buf, t, func(m filter.Measurement, t float64) int {
		return byTime(measTime{m}, t)
	})
	if i == 0 {
		return nil
	}

	return buf[i-1]
}

type measTime struct{ filter.Measurement }

func (m measTime) time() float64 { return m.Time() }

// Process applies measurement m to the state closest to it in time
// and stores m in the measurement history.
func (c *Core) Process(m filter.Measurement) filter.Status {
	s := c.ClosestState(m.Time())
	if !s.IsValid() {
		c.logger.Warn("no state to apply measurement to", "sensor", m.SensorID(), "time", m.Time())
		c.record(m)
		return filter.SkippedNoState
	}

	status := m.Apply(s, c)
	if status.Skipped() {
		c.logger.Debug("measurement skipped", "sensor", m.SensorID(), "time", m.Time(), "status", status)
	}
	c.record(m)

	return status
}

func (c *Core) record(m filter.Measurement) {
	buf := c.meas[m.SensorID()]
	i, _ := slices.BinarySearchFunc(buf, m.Time(), func(e filter.Measurement, t float64) int {
		return byTime(measTime{e}, t)
	})
	buf = slices.Insert(buf, i, m)
	if len(buf) > c.capacity {
		buf = slices.Delete(buf, 0, len(buf)-c.capacity)
	}
	c.meas[m.SensorID()] = buf
}

// ApplyAbsolute delegates absolute correction to the corrector.
func (c *Core) ApplyAbsolute(s *state.State, H mat.Matrix, r mat.Vector, R mat.Symmetric) (filter.Estimate, error) {
	return c.corrector.ApplyAbsolute(s, H, r, R)
}

// ApplyRelative delegates relative correction to the corrector.
func (c *Core) ApplyRelative(sOld, sNew *state.State, HOld, HNew mat.Matrix, r mat.Vector, R mat.Symmetric) (filter.Estimate, error) {
	return c.corrector.ApplyRelative(sOld, sNew, HOld, HNew, r, R)
}
