package stats

import (
	"math"
	"sync"
	"time"

	"github.com/smukkama/pipeline-monitor/internal/model"
)

const healthPenaltyPerLeak = 20.0

// Summary is the dashboard headline for one snapshot
type Summary struct {
	AvgPressure  float64 `json:"avgPressure"`
	InputFlow    float64 `json:"inputFlow"`
	ActiveLeaks  int     `json:"activeLeaks"`
	SystemHealth float64 `json:"systemHealth"`
	UnreadAlerts int     `json:"unreadAlerts"`
}

// Point is one sample of the rolling history
type Point struct {
	Time     time.Time `json:"time"`
	Pressure float64   `json:"pressure"`
	Flow     float64   `json:"flow"`
}

// Summarize computes the headline figures. Input flow is the reading of the
// first sensor on the chain.
func Summarize(snap *model.Snapshot) Summary {
	var s Summary
	if len(snap.Sensors) > 0 {
		total := 0.0
		for _, sensor := range snap.Sensors {
			total += sensor.Metrics.Pressure
		}
		s.AvgPressure = total / float64(len(snap.Sensors))
		s.InputFlow = snap.Sensors[0].Metrics.FlowRate
	}
	for _, seg := range snap.Segments {
		if seg.Status.IsLeaking() {
			s.ActiveLeaks++
		}
	}
	for _, a := range snap.Alerts {
		if !a.IsRead {
			s.UnreadAlerts++
		}
	}
	s.SystemHealth = math.Max(0, 100-float64(s.ActiveLeaks)*healthPenaltyPerLeak)
	return s
}

// Tracker keeps the latest summary and a bounded history of telemetry
// samples. It records a history point only when a tick has moved the sensors.
type Tracker struct {
	mu        sync.RWMutex
	latest    Summary
	history   []Point
	capacity  int
	lastTicks uint64
	seen      bool
}

// NewTracker creates a tracker keeping at most capacity history points
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = 1
	}
	return &Tracker{
		history:  make([]Point, 0, capacity),
		capacity: capacity,
	}
}

func (t *Tracker) OnSnapshot(snap *model.Snapshot) {
	summary := Summarize(snap)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.latest = summary
	if t.seen && snap.Ticks == t.lastTicks {
		return
	}
	t.seen = true
	t.lastTicks = snap.Ticks

	if len(t.history) >= t.capacity {
		// Remove the oldest point
		t.history = t.history[1:]
	}
	t.history = append(t.history, Point{
		Time:     snap.TakenAt,
		Pressure: math.Round(summary.AvgPressure*100) / 100,
		Flow:     math.Round(summary.InputFlow),
	})
}

func (t *Tracker) OnAlert(model.Alert) {}

// Latest returns the most recent summary
func (t *Tracker) Latest() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}

// History returns a copy of the history, oldest first
func (t *Tracker) History() []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]Point, len(t.history))
	copy(result, t.history)
	return result
}
