package engine

import (
	"io"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smukkama/pipeline-monitor/internal/leak"
	"github.com/smukkama/pipeline-monitor/internal/model"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type recorder struct {
	mu        sync.Mutex
	snapshots []*model.Snapshot
	alerts    []model.Alert
}

func (r *recorder) OnSnapshot(snap *model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
}

func (r *recorder) OnAlert(alert model.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEngine(t *testing.T, mutate func(*Options)) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Clock = (&stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}).Now
	opts.Rand = rand.New(rand.NewSource(11))
	opts.Logger = quietLogger()
	if mutate != nil {
		mutate(&opts)
	}

	e, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func findSegment(t *testing.T, e *Engine, id string) model.Segment {
	t.Helper()
	seg, ok := e.Snapshot().FindSegment(id)
	if !ok {
		t.Fatalf("segment %s not found", id)
	}
	return seg
}

func TestEngine_InitialTopology(t *testing.T) {
	e := newTestEngine(t, nil)

	if n := len(e.Sensors()); n != 21 {
		t.Errorf("Expected 21 sensors, got %d", n)
	}
	if n := len(e.Segments()); n != 20 {
		t.Errorf("Expected 20 segments, got %d", n)
	}
	if len(e.Alerts()) != 0 {
		t.Error("Expected no alerts at start")
	}
	if !e.IsSimulating() {
		t.Error("Expected simulation enabled by default")
	}
	if _, ok := e.SelectedSensorID(); ok {
		t.Error("Expected no selected sensor")
	}
}

func TestEngine_TriggerAndResolveScenario(t *testing.T) {
	e := newTestEngine(t, nil)

	if !e.TriggerLeak("segment-2", model.LeakMajor) {
		t.Fatal("TriggerLeak reported segment not found")
	}

	seg := findSegment(t, e, "segment-2")
	if seg.Status != model.SegmentMajorLeak {
		t.Errorf("Expected major_leak, got %s", seg.Status)
	}
	if seg.Metrics.EstimatedLeakRate != 200 || seg.Metrics.PressureDrop != 5 {
		t.Errorf("Unexpected leak metrics %+v", seg.Metrics)
	}

	alerts := e.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Severity != model.SeverityCritical || !strings.Contains(alerts[0].Message, "segment-2") {
		t.Errorf("Unexpected leak alert %+v", alerts[0])
	}

	if !e.ResolveLeak("segment-2") {
		t.Fatal("ResolveLeak reported segment not found")
	}

	seg = findSegment(t, e, "segment-2")
	if seg.Status != model.SegmentNormal {
		t.Errorf("Expected normal, got %s", seg.Status)
	}
	if seg.Metrics.EstimatedLeakRate != 0 || seg.Metrics.PressureDrop != 0 {
		t.Errorf("Expected zeroed metrics, got %+v", seg.Metrics)
	}

	alerts = e.Alerts()
	if len(alerts) != 2 {
		t.Fatalf("Expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].Severity != model.SeverityInfo || alerts[0].Type != model.AlertSystem {
		t.Errorf("Unexpected resolve alert %+v", alerts[0])
	}
	if alerts[0].SegmentID != "segment-2" {
		t.Errorf("Expected structured segment id, got %q", alerts[0].SegmentID)
	}
}

func TestEngine_MinorLeakRaisesWarning(t *testing.T) {
	e := newTestEngine(t, nil)
	e.TriggerLeak("segment-0", model.LeakMinor)

	if sev := e.Alerts()[0].Severity; sev != model.SeverityWarning {
		t.Errorf("Expected warning, got %s", sev)
	}
}

func TestEngine_UnknownSegmentIsNoOp(t *testing.T) {
	e := newTestEngine(t, nil)
	e.TriggerLeak("segment-1", model.LeakMinor)
	before := e.Snapshot()

	if e.TriggerLeak("segment-404", model.LeakCritical) {
		t.Error("TriggerLeak on unknown id reported success")
	}
	if e.ResolveLeak("segment-404") {
		t.Error("ResolveLeak on unknown id reported success")
	}
	if e.TriggerLeak("segment-1", model.LeakSeverity("huge")) {
		t.Error("TriggerLeak with unknown severity reported success")
	}

	after := e.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Error("State changed after commands on unknown ids")
	}
}

func TestEngine_TicksKeepReadingsValid(t *testing.T) {
	e := newTestEngine(t, nil)
	prev := e.Sensors()

	for n := 0; n < 200; n++ {
		if !e.Tick() {
			t.Fatal("Tick refused while simulating")
		}
		cur := e.Sensors()
		for i := range cur {
			if cur[i].Metrics.FlowRate < 0 || cur[i].Metrics.Pressure < 0 {
				t.Fatalf("tick %d: negative reading on %s", n, cur[i].ID)
			}
			if !cur[i].LastUpdate.After(prev[i].LastUpdate) {
				t.Fatalf("tick %d: LastUpdate not increasing on %s", n, cur[i].ID)
			}
		}
		prev = cur
	}

	if ticks := e.Snapshot().Ticks; ticks != 200 {
		t.Errorf("Expected 200 ticks, got %d", ticks)
	}
}

func TestEngine_TickFluctuatesOnlyLeakingSegments(t *testing.T) {
	e := newTestEngine(t, nil)
	e.TriggerLeak("segment-5", model.LeakCritical)

	for i := 0; i < 20; i++ {
		e.Tick()
	}

	for _, seg := range e.Segments() {
		if seg.ID == "segment-5" {
			if seg.Metrics.EstimatedLeakRate <= 0 || seg.Metrics.PressureDrop != 10 {
				t.Errorf("Unexpected leak metrics %+v", seg.Metrics)
			}
			continue
		}
		if seg.Metrics.EstimatedLeakRate != 0 || seg.Metrics.PressureDrop != 0 {
			t.Errorf("Normal segment %s has leak metrics %+v", seg.ID, seg.Metrics)
		}
	}
}

func TestEngine_ScheduledTicksAndDisable(t *testing.T) {
	e := newTestEngine(t, func(o *Options) {
		o.TickInterval = 5 * time.Millisecond
	})
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.Snapshot().Ticks < 3 {
		if time.Now().After(deadline) {
			t.Fatal("Scheduled ticks did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	e.SetSimulating(false)
	first := e.Sensors()
	time.Sleep(50 * time.Millisecond)
	second := e.Sensors()

	if !reflect.DeepEqual(first, second) {
		t.Error("Sensors changed after simulation was disabled")
	}
	if e.Tick() {
		t.Error("Tick should be refused while disabled")
	}

	// Manual commands still work while disabled
	if !e.TriggerLeak("segment-3", model.LeakMinor) {
		t.Error("TriggerLeak failed while simulation disabled")
	}
}

func TestEngine_ToggleResumesTicks(t *testing.T) {
	e := newTestEngine(t, func(o *Options) {
		o.TickInterval = 5 * time.Millisecond
		o.StartSimulating = false
	})
	e.Start()

	time.Sleep(30 * time.Millisecond)
	if ticks := e.Snapshot().Ticks; ticks != 0 {
		t.Fatalf("Expected no ticks while disabled, got %d", ticks)
	}

	if !e.ToggleSimulation() {
		t.Fatal("Toggle should enable simulation")
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.Snapshot().Ticks == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Ticks did not resume after toggle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_CloseStopsTicks(t *testing.T) {
	e := newTestEngine(t, func(o *Options) {
		o.TickInterval = 5 * time.Millisecond
	})
	e.Start()
	time.Sleep(20 * time.Millisecond)

	e.Close()
	ticks := e.Snapshot().Ticks
	time.Sleep(30 * time.Millisecond)

	if after := e.Snapshot().Ticks; after != ticks {
		t.Errorf("Ticks advanced after Close: %d -> %d", ticks, after)
	}
	if err := e.Start(); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestEngine_AlertsNewestFirst(t *testing.T) {
	e := newTestEngine(t, nil)
	e.TriggerLeak("segment-1", model.LeakMinor)
	e.TriggerLeak("segment-2", model.LeakMajor)
	e.ResolveLeak("segment-1")
	e.TriggerLeak("segment-3", model.LeakCritical)

	alerts := e.Alerts()
	if len(alerts) != 4 {
		t.Fatalf("Expected 4 alerts, got %d", len(alerts))
	}
	for i := 1; i < len(alerts); i++ {
		if !alerts[i-1].Timestamp.After(alerts[i].Timestamp) {
			t.Errorf("Alerts out of order at %d", i)
		}
	}
	if alerts[0].SegmentID != "segment-3" || alerts[3].SegmentID != "segment-1" {
		t.Errorf("Unexpected alert order: %v", alerts)
	}
}

func TestEngine_ResolveAlertAndMarkRead(t *testing.T) {
	e := newTestEngine(t, nil)
	e.TriggerLeak("segment-7", model.LeakMajor)
	alertID := e.Alerts()[0].ID

	if !e.MarkAlertRead(alertID) {
		t.Fatal("MarkAlertRead failed")
	}
	if !e.Alerts()[0].IsRead {
		t.Error("Alert not marked read")
	}
	if e.MarkAlertRead("missing") {
		t.Error("MarkAlertRead on unknown id reported success")
	}

	if !e.ResolveAlert(alertID) {
		t.Fatal("ResolveAlert failed")
	}
	if seg := findSegment(t, e, "segment-7"); seg.Status != model.SegmentNormal {
		t.Errorf("Expected normal after ResolveAlert, got %s", seg.Status)
	}
	if e.ResolveAlert("missing") {
		t.Error("ResolveAlert on unknown id reported success")
	}
}

func TestEngine_SelectSensor(t *testing.T) {
	e := newTestEngine(t, nil)

	if !e.SelectSensor("sensor-4") {
		t.Fatal("SelectSensor failed for existing sensor")
	}
	if id, ok := e.SelectedSensorID(); !ok || id != "sensor-4" {
		t.Errorf("Expected sensor-4 selected, got %q", id)
	}

	before := e.Snapshot()
	if e.SelectSensor("sensor-404") {
		t.Error("SelectSensor accepted unknown id")
	}
	if !reflect.DeepEqual(before, e.Snapshot()) {
		t.Error("Unknown selection changed state")
	}

	e.SelectSensor("")
	if _, ok := e.SelectedSensorID(); ok {
		t.Error("Expected selection cleared")
	}
}

func TestEngine_SnapshotsAreCopies(t *testing.T) {
	e := newTestEngine(t, nil)

	snap := e.Snapshot()
	snap.Sensors[0].Metrics.FlowRate = -1
	snap.Segments[0].Status = model.SegmentCritical

	sensors := e.Sensors()
	sensors[1].Name = "mutated"

	fresh := e.Snapshot()
	if fresh.Sensors[0].Metrics.FlowRate < 0 || fresh.Sensors[1].Name == "mutated" {
		t.Error("Caller mutation leaked into engine sensors")
	}
	if fresh.Segments[0].Status != model.SegmentNormal {
		t.Error("Caller mutation leaked into engine segments")
	}
}

func TestEngine_ListenersSeeCommitsInOrder(t *testing.T) {
	e := newTestEngine(t, nil)
	rec := &recorder{}
	e.AddListener(rec)

	e.TriggerLeak("segment-1", model.LeakMinor)
	e.Tick()
	e.ResolveLeak("segment-1")
	e.TriggerLeak("segment-404", model.LeakMinor)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if len(rec.snapshots) != 3 {
		t.Fatalf("Expected 3 snapshots, got %d", len(rec.snapshots))
	}
	for i := 1; i < len(rec.snapshots); i++ {
		if rec.snapshots[i].Version <= rec.snapshots[i-1].Version {
			t.Error("Snapshot versions not increasing")
		}
	}
	if len(rec.alerts) != 2 {
		t.Fatalf("Expected 2 alerts, got %d", len(rec.alerts))
	}
	if rec.alerts[0].Type != model.AlertLeak || rec.alerts[1].Type != model.AlertSystem {
		t.Errorf("Unexpected alert sequence %+v", rec.alerts)
	}
}

func TestEngine_FlowConservationDetector(t *testing.T) {
	e := newTestEngine(t, func(o *Options) {
		// Baseline loss is 2 L/min per km, so a tolerance below that flags every segment
		o.Detector = leak.FlowConservation{Tolerance: 0.5}
	})

	e.Tick()

	leaking := 0
	for _, seg := range e.Segments() {
		if seg.Status.IsLeaking() {
			leaking++
			if seg.Metrics.FlowDiff <= 0 || seg.Metrics.EstimatedLeakRate <= 0 {
				t.Errorf("Inferred leak on %s lacks metrics: %+v", seg.ID, seg.Metrics)
			}
		}
	}
	if leaking == 0 {
		t.Fatal("Expected inferred leaks")
	}
	if len(e.Alerts()) != leaking {
		t.Errorf("Expected one alert per inferred leak, got %d alerts for %d leaks", len(e.Alerts()), leaking)
	}
}

func TestEngine_DormantDetectorNeverChangesSegments(t *testing.T) {
	e := newTestEngine(t, nil)
	for i := 0; i < 50; i++ {
		e.Tick()
	}
	for _, seg := range e.Segments() {
		if seg.Status != model.SegmentNormal {
			t.Errorf("Segment %s changed without a command", seg.ID)
		}
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.TickInterval = 0
	if _, err := New(opts); err == nil {
		t.Error("Expected error for zero tick interval")
	}

	opts = DefaultOptions()
	opts.SensorIntervalKm = 0
	opts.Logger = quietLogger()
	if _, err := New(opts); err == nil {
		t.Error("Expected error for zero sensor interval")
	}
}
