package protocol

import (
	"encoding/json"
	"time"

	"github.com/smukkama/pipeline-monitor/internal/model"
)

// AlertEvent is the Kafka message format for ledger alerts
type AlertEvent struct {
	AlertID   string              `json:"alert_id"`
	Type      model.AlertType     `json:"type"`
	Severity  model.AlertSeverity `json:"severity"`
	SegmentID string              `json:"segment_id,omitempty"`
	Message   string              `json:"message"`
	Timestamp time.Time           `json:"timestamp"`
}

// FromAlert converts a ledger alert to its wire form
func FromAlert(a model.Alert) *AlertEvent {
	return &AlertEvent{
		AlertID:   a.ID,
		Type:      a.Type,
		Severity:  a.Severity,
		SegmentID: a.SegmentID,
		Message:   a.Message,
		Timestamp: a.Timestamp,
	}
}

// Key is the partition key: alerts for one segment stay ordered
func (e *AlertEvent) Key() string {
	if e.SegmentID == "" {
		return string(e.Type)
	}
	return e.SegmentID
}

// IsResolution reports whether the event announces a repaired segment
func (e *AlertEvent) IsResolution() bool {
	return e.Type == model.AlertSystem && e.Severity == model.SeverityInfo && e.SegmentID != ""
}

// EncodeAlertEvent encodes an AlertEvent to JSON
func EncodeAlertEvent(e *AlertEvent) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeAlertEvent decodes JSON to AlertEvent
func DecodeAlertEvent(data []byte) (*AlertEvent, error) {
	var e AlertEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
