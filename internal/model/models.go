package model

import (
	"fmt"
	"time"
)

// SensorStatus is the health of a single sensor
type SensorStatus string

const (
	SensorNormal     SensorStatus = "normal"
	SensorMinorError SensorStatus = "minor_error"
	SensorOffline    SensorStatus = "offline"
)

// SegmentStatus is the leak state of a pipeline segment
type SegmentStatus string

const (
	SegmentNormal    SegmentStatus = "normal"
	SegmentMinorLeak SegmentStatus = "minor_leak"
	SegmentMajorLeak SegmentStatus = "major_leak"
	SegmentCritical  SegmentStatus = "critical"
)

// IsLeaking reports whether the status is any of the leak states
func (s SegmentStatus) IsLeaking() bool {
	return s != SegmentNormal
}

// LeakSeverity is the severity requested when a leak is triggered
type LeakSeverity string

const (
	LeakMinor    LeakSeverity = "minor"
	LeakMajor    LeakSeverity = "major"
	LeakCritical LeakSeverity = "critical"
)

// ParseLeakSeverity validates a severity string
func ParseLeakSeverity(s string) (LeakSeverity, error) {
	switch LeakSeverity(s) {
	case LeakMinor, LeakMajor, LeakCritical:
		return LeakSeverity(s), nil
	default:
		return "", fmt.Errorf("unknown leak severity %q", s)
	}
}

// AlertType classifies an alert
type AlertType string

const (
	AlertLeak          AlertType = "leak"
	AlertSensorFailure AlertType = "sensor_failure"
	AlertBatteryLow    AlertType = "battery_low"
	AlertSystem        AlertType = "system"
)

// AlertSeverity is how loudly an alert should be shown
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Location is a fixed sensor position along the pipeline
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Km  float64 `json:"km"`
}

// SensorMetrics holds the live readings of a sensor
type SensorMetrics struct {
	FlowRate       float64 `json:"flowRate"`       // L/min
	Pressure       float64 `json:"pressure"`       // bar
	Temperature    float64 `json:"temperature"`    // celsius
	Battery        float64 `json:"battery"`        // percent
	SignalStrength float64 `json:"signalStrength"` // dBm
}

// Sensor is a measuring station on the pipeline
type Sensor struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Location   Location      `json:"location"`
	Metrics    SensorMetrics `json:"metrics"`
	Status     SensorStatus  `json:"status"`
	LastUpdate time.Time     `json:"lastUpdate"`
}

// SegmentMetrics holds the leak indicators of a segment
type SegmentMetrics struct {
	FlowDiff          float64 `json:"flowDiff"`
	EstimatedLeakRate float64 `json:"estimatedLeakRate"` // L/min
	PressureDrop      float64 `json:"pressureDrop"`      // bar
}

// Segment is the stretch of pipe between two adjacent sensors
type Segment struct {
	ID            string         `json:"id"`
	StartSensorID string         `json:"startSensorId"`
	EndSensorID   string         `json:"endSensorId"`
	Distance      float64        `json:"distance"` // meters
	Status        SegmentStatus  `json:"status"`
	Metrics       SegmentMetrics `json:"metrics"`
}

// Alert is an entry in the alert ledger.
// SegmentID is empty for alerts that do not concern a segment.
type Alert struct {
	ID        string        `json:"id"`
	Type      AlertType     `json:"type"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	SegmentID string        `json:"segmentId,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	IsRead    bool          `json:"isRead"`
}

// Snapshot is an immutable view of the whole engine state
type Snapshot struct {
	Version          uint64    `json:"version"`
	Sensors          []Sensor  `json:"sensors"`
	Segments         []Segment `json:"segments"`
	Alerts           []Alert   `json:"alerts"`
	SelectedSensorID *string   `json:"selectedSensorId"`
	Simulating       bool      `json:"isSimulating"`
	Ticks            uint64    `json:"ticks"`
	TakenAt          time.Time `json:"takenAt"`
}

// Clone returns a deep copy that shares nothing with s
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Sensors = CloneSensors(s.Sensors)
	c.Segments = CloneSegments(s.Segments)
	c.Alerts = CloneAlerts(s.Alerts)
	if s.SelectedSensorID != nil {
		id := *s.SelectedSensorID
		c.SelectedSensorID = &id
	}
	return &c
}

// FindSegment returns the segment with the given id
func (s *Snapshot) FindSegment(id string) (Segment, bool) {
	for _, seg := range s.Segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return Segment{}, false
}

func CloneSensors(in []Sensor) []Sensor {
	out := make([]Sensor, len(in))
	copy(out, in)
	return out
}

func CloneSegments(in []Segment) []Segment {
	out := make([]Segment, len(in))
	copy(out, in)
	return out
}

func CloneAlerts(in []Alert) []Alert {
	out := make([]Alert, len(in))
	copy(out, in)
	return out
}
