package leak

import (
	"github.com/smukkama/pipeline-monitor/internal/model"
)

// Finding is a leak inferred from a pair of adjacent sensors
type Finding struct {
	SegmentID string
	FlowDiff  float64
	Severity  model.LeakSeverity
}

// Detector inspects one segment together with the sensors at either end.
// It reports a finding only when it believes the segment is leaking.
type Detector interface {
	Inspect(upstream, downstream model.Sensor, seg model.Segment) (Finding, bool)
}

// Reconcile walks every adjacent sensor pair and collects findings for
// segments that are currently normal. Segments already leaking are left to
// the manual resolve path.
func Reconcile(d Detector, sensors []model.Sensor, segments []model.Segment) []Finding {
	if d == nil {
		return nil
	}

	var findings []Finding
	for i, seg := range segments {
		if i+1 >= len(sensors) || seg.Status.IsLeaking() {
			continue
		}
		if f, ok := d.Inspect(sensors[i], sensors[i+1], seg); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// Dormant is the default detector. It never infers a leak, so segment state
// only changes through explicit trigger and resolve commands.
type Dormant struct{}

func (Dormant) Inspect(model.Sensor, model.Sensor, model.Segment) (Finding, bool) {
	return Finding{}, false
}

// FlowConservation flags a segment when the flow leaving its upstream sensor
// exceeds the flow reaching its downstream sensor by more than Tolerance.
type FlowConservation struct {
	Tolerance float64
}

func (fc FlowConservation) Inspect(upstream, downstream model.Sensor, seg model.Segment) (Finding, bool) {
	diff := upstream.Metrics.FlowRate - downstream.Metrics.FlowRate
	if fc.Tolerance <= 0 || diff <= fc.Tolerance {
		return Finding{}, false
	}

	severity := model.LeakMinor
	switch {
	case diff > 10*fc.Tolerance:
		severity = model.LeakCritical
	case diff > 4*fc.Tolerance:
		severity = model.LeakMajor
	}

	return Finding{SegmentID: seg.ID, FlowDiff: diff, Severity: severity}, true
}
