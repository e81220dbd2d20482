package database

import (
	"time"
)

// LeakAlert is one row of the alert audit log
type LeakAlert struct {
	AlertID    string
	AlertType  string
	Severity   string
	SegmentID  *string
	Message    string
	OccurredAt time.Time
	RecordedAt time.Time
}

// LeakIncident spans a segment from its first leak alert to its resolution
type LeakIncident struct {
	IncidentID   int64
	SegmentID    string
	Severity     string
	StartAlertID string
	StartTime    time.Time
	EndTime      *time.Time
	Status       string
}

const (
	IncidentStatusOpen     = "OPEN"
	IncidentStatusResolved = "RESOLVED"
)
