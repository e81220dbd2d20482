package leak

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smukkama/pipeline-monitor/internal/model"
)

// Baseline holds the metrics a segment takes on when a leak is triggered
type Baseline struct {
	Status            model.SegmentStatus
	EstimatedLeakRate float64
	PressureDrop      float64
	AlertSeverity     model.AlertSeverity
}

var baselines = map[model.LeakSeverity]Baseline{
	model.LeakMinor:    {Status: model.SegmentMinorLeak, EstimatedLeakRate: 50, PressureDrop: 2, AlertSeverity: model.SeverityWarning},
	model.LeakMajor:    {Status: model.SegmentMajorLeak, EstimatedLeakRate: 200, PressureDrop: 5, AlertSeverity: model.SeverityCritical},
	model.LeakCritical: {Status: model.SegmentCritical, EstimatedLeakRate: 500, PressureDrop: 10, AlertSeverity: model.SeverityCritical},
}

// BaselineFor returns the fixed metrics for a severity
func BaselineFor(severity model.LeakSeverity) (Baseline, bool) {
	b, ok := baselines[severity]
	return b, ok
}

// Trigger puts a segment into the leak state for severity, overwriting any
// previous leak metrics. Unknown segments or severities leave the input
// untouched and report false.
func Trigger(segments []model.Segment, segmentID string, severity model.LeakSeverity) ([]model.Segment, bool) {
	b, ok := baselines[severity]
	if !ok {
		return segments, false
	}
	return update(segments, segmentID, func(seg *model.Segment) {
		seg.Status = b.Status
		seg.Metrics.EstimatedLeakRate = b.EstimatedLeakRate
		seg.Metrics.PressureDrop = b.PressureDrop
	})
}

// Resolve returns a segment to normal and clears its leak metrics
func Resolve(segments []model.Segment, segmentID string) ([]model.Segment, bool) {
	return update(segments, segmentID, func(seg *model.Segment) {
		seg.Status = model.SegmentNormal
		seg.Metrics.EstimatedLeakRate = 0
		seg.Metrics.PressureDrop = 0
	})
}

func update(segments []model.Segment, segmentID string, fn func(*model.Segment)) ([]model.Segment, bool) {
	idx := -1
	for i := range segments {
		if segments[i].ID == segmentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return segments, false
	}

	next := model.CloneSegments(segments)
	fn(&next[idx])
	return next, true
}

// LeakAlert builds the alert raised when a leak is triggered
func LeakAlert(segmentID string, severity model.LeakSeverity, now time.Time) model.Alert {
	b := baselines[severity]
	return model.Alert{
		ID:        newAlertID(),
		Type:      model.AlertLeak,
		Severity:  b.AlertSeverity,
		Message:   fmt.Sprintf("Leak detected in segment %s - Severity: %s", segmentID, severity),
		SegmentID: segmentID,
		Timestamp: now,
	}
}

// ResolvedAlert builds the alert raised when a leak is resolved
func ResolvedAlert(segmentID string, now time.Time) model.Alert {
	return model.Alert{
		ID:        newAlertID(),
		Type:      model.AlertSystem,
		Severity:  model.SeverityInfo,
		Message:   fmt.Sprintf("Leak resolved in segment %s", segmentID),
		SegmentID: segmentID,
		Timestamp: now,
	}
}

// UUIDv7 ids sort by creation time.
func newAlertID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
