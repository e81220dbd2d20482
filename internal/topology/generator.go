package topology

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/smukkama/pipeline-monitor/internal/model"
)

const (
	DefaultStartLat   = 12.9716
	DefaultStartLng   = 77.5946
	DefaultLengthKm   = 20.0
	DefaultIntervalKm = 1.0

	baseFlowRate       = 1000.0
	flowLossPerKm      = 2.0
	basePressure       = 50.0
	pressureLossPerKm  = 0.5
	metersPerKm        = 1000.0
	stepEpsilon        = 1e-9
	curveDegreesPerKm  = 0.01
	curveAmplitude     = 0.002
	curveRadiansPerKm  = 0.5
	nominalTemperature = 25.0
	nominalBattery     = 90.0
	nominalSignal      = -60.0
)

// Origin is the geographic position of kilometre zero
type Origin struct {
	Lat float64
	Lng float64
}

// Layout describes the pipeline to generate
type Layout struct {
	LengthKm   float64
	IntervalKm float64
	Origin     Origin
}

// DefaultLayout is a 20 km pipeline with a sensor every kilometre
func DefaultLayout() Layout {
	return Layout{
		LengthKm:   DefaultLengthKm,
		IntervalKm: DefaultIntervalKm,
		Origin:     Origin{Lat: DefaultStartLat, Lng: DefaultStartLng},
	}
}

// Topology is the ordered sensor chain and the segments between neighbours
type Topology struct {
	Sensors  []model.Sensor
	Segments []model.Segment
}

var ErrInvalidLayout = errors.New("invalid pipeline layout")

// SensorCount returns how many sensors a layout produces
func (l Layout) SensorCount() int {
	return int(math.Floor(l.LengthKm/l.IntervalKm+stepEpsilon)) + 1
}

// Generate builds the sensor chain and its segments. Randomness only affects
// the nominal temperature, battery and signal readings.
func Generate(layout Layout, rng *rand.Rand, now time.Time) (*Topology, error) {
	if layout.IntervalKm <= 0 || math.IsNaN(layout.IntervalKm) {
		return nil, fmt.Errorf("%w: sensor interval must be positive, got %v", ErrInvalidLayout, layout.IntervalKm)
	}
	if layout.LengthKm < 0 || math.IsNaN(layout.LengthKm) {
		return nil, fmt.Errorf("%w: pipeline length must not be negative, got %v", ErrInvalidLayout, layout.LengthKm)
	}

	count := layout.SensorCount()
	sensors := make([]model.Sensor, 0, count)
	for i := 0; i < count; i++ {
		km := float64(i) * layout.IntervalKm
		sensors = append(sensors, model.Sensor{
			ID:   "sensor-" + strconv.Itoa(i),
			Name: "Sensor KM-" + strconv.FormatFloat(km, 'f', -1, 64),
			Location: model.Location{
				Lat: layout.Origin.Lat + km*curveDegreesPerKm + math.Sin(km*curveRadiansPerKm)*curveAmplitude,
				Lng: layout.Origin.Lng + km*curveDegreesPerKm + math.Cos(km*curveRadiansPerKm)*curveAmplitude,
				Km:  km,
			},
			Metrics: model.SensorMetrics{
				FlowRate:       BaselineFlow(km),
				Pressure:       BaselinePressure(km),
				Temperature:    nominalTemperature + rng.Float64(),
				Battery:        nominalBattery + rng.Float64()*10,
				SignalStrength: nominalSignal - rng.Float64()*20,
			},
			Status:     model.SensorNormal,
			LastUpdate: now,
		})
	}

	segments := make([]model.Segment, 0, count-1)
	for i := 0; i < len(sensors)-1; i++ {
		segments = append(segments, model.Segment{
			ID:            "segment-" + strconv.Itoa(i),
			StartSensorID: sensors[i].ID,
			EndSensorID:   sensors[i+1].ID,
			Distance:      layout.IntervalKm * metersPerKm,
			Status:        model.SegmentNormal,
		})
	}

	topo := &Topology{Sensors: sensors, Segments: segments}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	return topo, nil
}

// BaselineFlow is the undisturbed flow rate at a distance marker
func BaselineFlow(km float64) float64 {
	return math.Max(0, baseFlowRate-km*flowLossPerKm)
}

// BaselinePressure is the undisturbed pressure at a distance marker
func BaselinePressure(km float64) float64 {
	return math.Max(0, basePressure-km*pressureLossPerKm)
}

// Validate checks the structural invariants of the chain
func (t *Topology) Validate() error {
	if len(t.Sensors) == 0 {
		return errors.New("topology has no sensors")
	}
	if len(t.Segments) != len(t.Sensors)-1 {
		return fmt.Errorf("topology has %d segments for %d sensors", len(t.Segments), len(t.Sensors))
	}

	index := make(map[string]int, len(t.Sensors))
	for i, s := range t.Sensors {
		if _, dup := index[s.ID]; dup {
			return fmt.Errorf("duplicate sensor id %s", s.ID)
		}
		index[s.ID] = i
	}

	for i, seg := range t.Segments {
		start, ok := index[seg.StartSensorID]
		if !ok {
			return fmt.Errorf("segment %s references missing sensor %s", seg.ID, seg.StartSensorID)
		}
		end, ok := index[seg.EndSensorID]
		if !ok {
			return fmt.Errorf("segment %s references missing sensor %s", seg.ID, seg.EndSensorID)
		}
		if start != i || end != i+1 {
			return fmt.Errorf("segment %s does not join adjacent sensors", seg.ID)
		}
	}
	return nil
}
