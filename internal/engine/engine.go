package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smukkama/pipeline-monitor/internal/leak"
	"github.com/smukkama/pipeline-monitor/internal/ledger"
	"github.com/smukkama/pipeline-monitor/internal/model"
	"github.com/smukkama/pipeline-monitor/internal/simulation"
	"github.com/smukkama/pipeline-monitor/internal/timer"
	"github.com/smukkama/pipeline-monitor/internal/topology"
)

const (
	DefaultTickInterval = 3 * time.Second

	tickTaskID = "telemetry-tick"
)

// Options configures an Engine
type Options struct {
	PipelineLengthKm float64
	SensorIntervalKm float64
	TickInterval     time.Duration
	Origin           topology.Origin
	StartSimulating  bool

	// Detector infers leaks from adjacent sensor pairs on every tick.
	// Nil means leak.Dormant: only manual commands change segment state.
	Detector leak.Detector

	Clock  func() time.Time
	Rand   *rand.Rand
	Logger logrus.FieldLogger
}

// DefaultOptions is a 20 km pipeline, one sensor per km, ticking every 3s
func DefaultOptions() Options {
	layout := topology.DefaultLayout()
	return Options{
		PipelineLengthKm: layout.LengthKm,
		SensorIntervalKm: layout.IntervalKm,
		TickInterval:     DefaultTickInterval,
		Origin:           layout.Origin,
		StartSimulating:  true,
	}
}

// Listener observes every published snapshot and every new alert. Calls are
// made in commit order while the engine holds its write lock, so
// implementations must return quickly and must not call back into the
// engine's command methods. Values passed in are private copies.
type Listener interface {
	OnSnapshot(snap *model.Snapshot)
	OnAlert(alert model.Alert)
}

type state struct {
	sensors    []model.Sensor
	segments   []model.Segment
	alerts     ledger.Ledger
	selected   string
	simulating bool
	ticks      uint64
	version    uint64
}

// Engine owns the pipeline state, the tick schedule and the command surface.
// All mutations are serialised and published as whole immutable snapshots,
// so reads never wait for a writer.
type Engine struct {
	mu        sync.Mutex
	cur       state
	gen       uint64
	started   bool
	closed    bool
	listeners []Listener

	snap atomic.Pointer[model.Snapshot]

	interval  time.Duration
	sim       *simulation.Simulator
	detector  leak.Detector
	scheduler *timer.Scheduler
	clock     func() time.Time
	logger    logrus.FieldLogger
}

// New generates the topology and builds an engine around it. The engine is
// idle until Start is called.
func New(opts Options) (*Engine, error) {
	if opts.TickInterval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %v", opts.TickInterval)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Detector == nil {
		opts.Detector = leak.Dormant{}
	}

	layout := topology.Layout{
		LengthKm:   opts.PipelineLengthKm,
		IntervalKm: opts.SensorIntervalKm,
		Origin:     opts.Origin,
	}
	topo, err := topology.Generate(layout, opts.Rand, opts.Clock())
	if err != nil {
		return nil, fmt.Errorf("failed to generate topology: %w", err)
	}

	e := &Engine{
		interval:  opts.TickInterval,
		sim:       simulation.NewSimulator(opts.Rand),
		detector:  opts.Detector,
		scheduler: timer.NewScheduler(),
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	e.cur = state{
		sensors:    topo.Sensors,
		segments:   topo.Segments,
		simulating: opts.StartSimulating,
	}
	e.snap.Store(e.buildSnapshot(e.cur))

	e.logger.WithFields(logrus.Fields{
		"sensors":  len(topo.Sensors),
		"segments": len(topo.Segments),
		"interval": opts.TickInterval,
	}).Info("Pipeline topology generated")

	return e, nil
}

// ErrClosed is returned by Start after Close
var ErrClosed = errors.New("engine is closed")

// Start begins the tick schedule if simulation is enabled
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.started {
		return nil
	}
	e.started = true
	e.scheduler.Start()
	if e.cur.simulating {
		e.scheduleNextLocked()
	}
	return nil
}

// Close cancels the pending tick and stops the scheduler. A tick that has
// already fired but not yet applied is discarded.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.gen++
	e.mu.Unlock()

	e.scheduler.Stop()
	e.logger.Info("Engine stopped")
}

// AddListener registers l for subsequent snapshots and alerts
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Snapshot returns a private deep copy of the current state
func (e *Engine) Snapshot() *model.Snapshot {
	return e.snap.Load().Clone()
}

func (e *Engine) Sensors() []model.Sensor {
	return model.CloneSensors(e.snap.Load().Sensors)
}

func (e *Engine) Segments() []model.Segment {
	return model.CloneSegments(e.snap.Load().Segments)
}

// Alerts returns the alert ledger, newest first
func (e *Engine) Alerts() []model.Alert {
	return model.CloneAlerts(e.snap.Load().Alerts)
}

// SelectedSensorID returns the selected sensor, if any
func (e *Engine) SelectedSensorID() (string, bool) {
	id := e.snap.Load().SelectedSensorID
	if id == nil {
		return "", false
	}
	return *id, true
}

func (e *Engine) IsSimulating() bool {
	return e.snap.Load().Simulating
}

// SetSimulating enables or disables the telemetry tick. Disabling cancels
// the pending tick; manual commands keep working either way.
func (e *Engine) SetSimulating(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setSimulatingLocked(on)
}

// ToggleSimulation flips the simulation flag and returns the new value
func (e *Engine) ToggleSimulation() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	on := !e.cur.simulating
	e.setSimulatingLocked(on)
	return on
}

func (e *Engine) setSimulatingLocked(on bool) {
	if e.cur.simulating == on {
		return
	}

	e.gen++
	if on {
		if e.started && !e.closed {
			e.scheduleNextLocked()
		}
	} else {
		e.scheduler.Cancel(tickTaskID)
	}

	next := e.cur
	next.simulating = on
	e.commitLocked(next, nil)

	e.logger.WithField("simulating", on).Info("Simulation state changed")
}

// Tick runs one telemetry step immediately. It is a no-op returning false
// while simulation is disabled.
func (e *Engine) Tick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.cur.simulating {
		return false
	}
	e.tickLocked()
	return true
}

func (e *Engine) scheduleNextLocked() {
	gen := e.gen
	err := e.scheduler.Schedule(tickTaskID, time.Now().Add(e.interval), func() {
		e.scheduledTick(gen)
	})
	if err != nil {
		e.logger.WithError(err).Warn("Failed to schedule telemetry tick")
	}
}

func (e *Engine) scheduledTick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A tick issued before the last enable/disable/close is stale
	if e.closed || !e.cur.simulating || gen != e.gen {
		return
	}
	e.tickLocked()
	e.scheduleNextLocked()
}

func (e *Engine) tickLocked() {
	now := e.clock()

	next := e.cur
	next.sensors = e.sim.TickSensors(e.cur.sensors, now)
	next.segments = e.sim.FluctuateLeaks(e.cur.segments)
	next.ticks++

	var raised []model.Alert
	for _, f := range leak.Reconcile(e.detector, next.sensors, next.segments) {
		segments, ok := leak.Trigger(next.segments, f.SegmentID, f.Severity)
		if !ok {
			continue
		}
		for i := range segments {
			if segments[i].ID == f.SegmentID {
				segments[i].Metrics.FlowDiff = f.FlowDiff
			}
		}
		next.segments = segments

		alert := leak.LeakAlert(f.SegmentID, f.Severity, now)
		next.alerts = next.alerts.Prepend(alert)
		raised = append(raised, alert)

		e.logger.WithFields(logrus.Fields{
			"segment":   f.SegmentID,
			"severity":  f.Severity,
			"flow_diff": f.FlowDiff,
		}).Warn("Leak inferred from flow imbalance")
	}

	e.commitLocked(next, raised)
}

// TriggerLeak marks a segment as leaking. Unknown segments are ignored and
// reported as false.
func (e *Engine) TriggerLeak(segmentID string, severity model.LeakSeverity) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	segments, ok := leak.Trigger(e.cur.segments, segmentID, severity)
	if !ok {
		e.logger.WithField("segment", segmentID).Debug("Trigger ignored: unknown segment or severity")
		return false
	}

	alert := leak.LeakAlert(segmentID, severity, e.clock())
	next := e.cur
	next.segments = segments
	next.alerts = next.alerts.Prepend(alert)
	e.commitLocked(next, []model.Alert{alert})

	e.logger.WithFields(logrus.Fields{
		"segment":  segmentID,
		"severity": severity,
	}).Warn("Leak triggered")
	return true
}

// ResolveLeak returns a segment to normal. Unknown segments are ignored.
func (e *Engine) ResolveLeak(segmentID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked(segmentID)
}

// ResolveAlert resolves the segment an alert refers to
func (e *Engine) ResolveAlert(alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, ok := e.cur.alerts.Find(alertID)
	if !ok || alert.SegmentID == "" {
		return false
	}
	return e.resolveLocked(alert.SegmentID)
}

func (e *Engine) resolveLocked(segmentID string) bool {
	segments, ok := leak.Resolve(e.cur.segments, segmentID)
	if !ok {
		e.logger.WithField("segment", segmentID).Debug("Resolve ignored: unknown segment")
		return false
	}

	alert := leak.ResolvedAlert(segmentID, e.clock())
	next := e.cur
	next.segments = segments
	next.alerts = next.alerts.Prepend(alert)
	e.commitLocked(next, []model.Alert{alert})

	e.logger.WithField("segment", segmentID).Info("Leak resolved")
	return true
}

// MarkAlertRead flags an alert as read
func (e *Engine) MarkAlertRead(alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	alerts, ok := e.cur.alerts.MarkRead(alertID)
	if !ok {
		return false
	}
	next := e.cur
	next.alerts = alerts
	e.commitLocked(next, nil)
	return true
}

// SelectSensor sets the selected sensor; an empty id clears the selection.
// Unknown ids leave the selection unchanged and report false.
func (e *Engine) SelectSensor(sensorID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sensorID != "" && !containsSensor(e.cur.sensors, sensorID) {
		return false
	}
	if e.cur.selected == sensorID {
		return true
	}

	next := e.cur
	next.selected = sensorID
	e.commitLocked(next, nil)
	return true
}

func containsSensor(sensors []model.Sensor, id string) bool {
	for _, s := range sensors {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) commitLocked(next state, raised []model.Alert) {
	next.version = e.cur.version + 1
	e.cur = next

	snap := e.buildSnapshot(next)
	e.snap.Store(snap)

	for _, l := range e.listeners {
		l.OnSnapshot(snap.Clone())
		for _, a := range raised {
			l.OnAlert(a)
		}
	}
}

func (e *Engine) buildSnapshot(s state) *model.Snapshot {
	snap := &model.Snapshot{
		Version:    s.version,
		Sensors:    model.CloneSensors(s.sensors),
		Segments:   model.CloneSegments(s.segments),
		Alerts:     s.alerts.Alerts(),
		Simulating: s.simulating,
		Ticks:      s.ticks,
		TakenAt:    e.clock(),
	}
	if s.selected != "" {
		id := s.selected
		snap.SelectedSensorID = &id
	}
	return snap
}
