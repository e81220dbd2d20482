package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smukkama/pipeline-monitor/internal/model"
	"github.com/smukkama/pipeline-monitor/internal/stats"
)

// Collector exports engine state as Prometheus metrics
type Collector struct {
	ticks       prometheus.Counter
	alerts      *prometheus.CounterVec
	activeLeaks prometheus.Gauge
	avgPressure prometheus.Gauge
	inputFlow   prometheus.Gauge
	simulating  prometheus.Gauge
	leakRate    *prometheus.GaugeVec

	mu        sync.Mutex
	lastTicks uint64
}

// NewCollector registers the pipeline collectors with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "simulation",
			Name:      "ticks_total",
			Help:      "Telemetry ticks applied",
		}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "alerts",
			Name:      "raised_total",
			Help:      "Alerts raised by type and severity",
		}, []string{"type", "severity"}),
		activeLeaks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "segments",
			Name:      "active_leaks",
			Help:      "Segments currently in a leak state",
		}),
		avgPressure: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "sensors",
			Name:      "avg_pressure_bar",
			Help:      "Average pressure across all sensors",
		}),
		inputFlow: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "sensors",
			Name:      "input_flow_lpm",
			Help:      "Flow rate at the first sensor",
		}),
		simulating: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "simulation",
			Name:      "enabled",
			Help:      "1 while the telemetry simulation is running",
		}),
		leakRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "segments",
			Name:      "estimated_leak_rate_lpm",
			Help:      "Estimated leak rate per segment",
		}, []string{"segment"}),
	}
}

func (c *Collector) OnSnapshot(snap *model.Snapshot) {
	summary := stats.Summarize(snap)
	c.activeLeaks.Set(float64(summary.ActiveLeaks))
	c.avgPressure.Set(summary.AvgPressure)
	c.inputFlow.Set(summary.InputFlow)
	if snap.Simulating {
		c.simulating.Set(1)
	} else {
		c.simulating.Set(0)
	}
	for _, seg := range snap.Segments {
		c.leakRate.WithLabelValues(seg.ID).Set(seg.Metrics.EstimatedLeakRate)
	}

	c.mu.Lock()
	if snap.Ticks > c.lastTicks {
		c.ticks.Add(float64(snap.Ticks - c.lastTicks))
		c.lastTicks = snap.Ticks
	}
	c.mu.Unlock()
}

func (c *Collector) OnAlert(alert model.Alert) {
	c.alerts.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
}
