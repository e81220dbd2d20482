package simulation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/smukkama/pipeline-monitor/internal/model"
)

func testSensors(now time.Time) []model.Sensor {
	return []model.Sensor{
		{ID: "sensor-0", Metrics: model.SensorMetrics{FlowRate: 1000, Pressure: 50}, LastUpdate: now},
		{ID: "sensor-1", Metrics: model.SensorMetrics{FlowRate: 998, Pressure: 49.5}, LastUpdate: now},
		{ID: "sensor-2", Metrics: model.SensorMetrics{FlowRate: 0.5, Pressure: 0.01}, LastUpdate: now},
	}
}

func TestTickSensors_BoundedJitter(t *testing.T) {
	sim := NewSimulator(rand.New(rand.NewSource(42)))
	now := time.Now()
	before := testSensors(now)

	after := sim.TickSensors(before, now.Add(3*time.Second))

	for i := range before {
		flowDelta := math.Abs(after[i].Metrics.FlowRate - before[i].Metrics.FlowRate)
		if flowDelta > FlowJitter/2 {
			t.Errorf("%s: flow moved by %v", before[i].ID, flowDelta)
		}
		pressureDelta := math.Abs(after[i].Metrics.Pressure - before[i].Metrics.Pressure)
		if pressureDelta > PressureJitter/2 {
			t.Errorf("%s: pressure moved by %v", before[i].ID, pressureDelta)
		}
	}
}

func TestTickSensors_DoesNotMutateInput(t *testing.T) {
	sim := NewSimulator(rand.New(rand.NewSource(42)))
	now := time.Now()
	before := testSensors(now)
	original := testSensors(now)

	sim.TickSensors(before, now.Add(time.Second))

	for i := range before {
		if before[i] != original[i] {
			t.Errorf("Input sensor %d was mutated", i)
		}
	}
}

func TestTickSensors_NonNegativeAndMonotonicTimestamps(t *testing.T) {
	sim := NewSimulator(rand.New(rand.NewSource(9)))
	now := time.Now()
	sensors := testSensors(now)

	for n := 0; n < 500; n++ {
		// Same wall time on purpose: stamps must still advance
		next := sim.TickSensors(sensors, now)
		for i := range next {
			if next[i].Metrics.FlowRate < 0 || next[i].Metrics.Pressure < 0 {
				t.Fatalf("tick %d: negative reading on %s: %+v", n, next[i].ID, next[i].Metrics)
			}
			if !next[i].LastUpdate.After(sensors[i].LastUpdate) {
				t.Fatalf("tick %d: LastUpdate did not advance on %s", n, next[i].ID)
			}
		}
		sensors = next
	}
}

func TestFluctuateLeaks_OnlyLeakingSegments(t *testing.T) {
	sim := NewSimulator(rand.New(rand.NewSource(5)))
	segments := []model.Segment{
		{ID: "segment-0", Status: model.SegmentNormal},
		{ID: "segment-1", Status: model.SegmentMajorLeak, Metrics: model.SegmentMetrics{EstimatedLeakRate: 200, PressureDrop: 5}},
		{ID: "segment-2", Status: model.SegmentMinorLeak, Metrics: model.SegmentMetrics{EstimatedLeakRate: 0.02, PressureDrop: 2}},
	}

	next := sim.FluctuateLeaks(segments)

	if next[0] != segments[0] {
		t.Errorf("Normal segment changed: %+v", next[0])
	}
	if math.Abs(next[1].Metrics.EstimatedLeakRate-200) > LeakRateJitter/2 {
		t.Errorf("Leak rate step too large: %v", next[1].Metrics.EstimatedLeakRate)
	}
	if next[1].Metrics.PressureDrop != 5 {
		t.Errorf("Pressure drop should not fluctuate, got %v", next[1].Metrics.PressureDrop)
	}
	if next[2].Metrics.EstimatedLeakRate < MinLeakRate {
		t.Errorf("Leak rate fell below floor: %v", next[2].Metrics.EstimatedLeakRate)
	}
	if segments[1].Metrics.EstimatedLeakRate != 200 {
		t.Error("Input segments were mutated")
	}
}
