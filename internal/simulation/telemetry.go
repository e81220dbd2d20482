package simulation

import (
	"math"
	"math/rand"
	"time"

	"github.com/smukkama/pipeline-monitor/internal/model"
)

const (
	// FlowJitter is the full width of the flow noise band (±2.5 L/min)
	FlowJitter = 5.0
	// PressureJitter is the full width of the pressure noise band (±0.05 bar)
	PressureJitter = 0.1
	// LeakRateJitter is the full width of the leak-rate random walk step
	LeakRateJitter = 1.0
	// MinLeakRate keeps a leaking segment's rate strictly positive
	MinLeakRate = 0.01
)

// Simulator produces the next telemetry state from the current one.
// It is not safe for concurrent use; the engine serialises calls.
type Simulator struct {
	rng *rand.Rand
}

// NewSimulator creates a simulator drawing noise from rng
func NewSimulator(rng *rand.Rand) *Simulator {
	return &Simulator{rng: rng}
}

// TickSensors applies bounded symmetric jitter to every sensor's flow and
// pressure and stamps the tick time. The input slice is left untouched.
func (s *Simulator) TickSensors(sensors []model.Sensor, now time.Time) []model.Sensor {
	next := make([]model.Sensor, len(sensors))
	for i, sensor := range sensors {
		flowChange := (s.rng.Float64() - 0.5) * FlowJitter
		pressureChange := (s.rng.Float64() - 0.5) * PressureJitter

		sensor.Metrics.FlowRate = math.Max(0, sensor.Metrics.FlowRate+flowChange)
		sensor.Metrics.Pressure = math.Max(0, sensor.Metrics.Pressure+pressureChange)

		stamp := now
		if !stamp.After(sensor.LastUpdate) {
			stamp = sensor.LastUpdate.Add(time.Nanosecond)
		}
		sensor.LastUpdate = stamp

		next[i] = sensor
	}
	return next
}

// FluctuateLeaks nudges the estimated leak rate of every leaking segment by a
// small random walk step. Pressure drop is only ever set on transitions.
func (s *Simulator) FluctuateLeaks(segments []model.Segment) []model.Segment {
	next := make([]model.Segment, len(segments))
	for i, seg := range segments {
		if seg.Status.IsLeaking() {
			rate := seg.Metrics.EstimatedLeakRate + (s.rng.Float64()-0.5)*LeakRateJitter
			seg.Metrics.EstimatedLeakRate = math.Max(MinLeakRate, rate)
		}
		next[i] = seg
	}
	return next
}
