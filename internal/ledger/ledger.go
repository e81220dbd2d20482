package ledger

import (
	"github.com/smukkama/pipeline-monitor/internal/model"
)

// Ledger is a copy-on-write, newest-first list of alerts. The zero value is
// an empty ledger. Every mutation returns a new Ledger and leaves the
// receiver untouched, so a Ledger can be shared freely between snapshots.
type Ledger struct {
	alerts []model.Alert
}

// Prepend returns a ledger with alert inserted at the head
func (l Ledger) Prepend(alert model.Alert) Ledger {
	next := make([]model.Alert, 0, len(l.alerts)+1)
	next = append(next, alert)
	next = append(next, l.alerts...)
	return Ledger{alerts: next}
}

// MarkRead returns a ledger with the alert flagged as read. Absent ids
// leave the ledger unchanged.
func (l Ledger) MarkRead(id string) (Ledger, bool) {
	for i := range l.alerts {
		if l.alerts[i].ID != id {
			continue
		}
		if l.alerts[i].IsRead {
			return l, true
		}
		next := model.CloneAlerts(l.alerts)
		next[i].IsRead = true
		return Ledger{alerts: next}, true
	}
	return l, false
}

// Find looks up an alert by id
func (l Ledger) Find(id string) (model.Alert, bool) {
	for _, a := range l.alerts {
		if a.ID == id {
			return a, true
		}
	}
	return model.Alert{}, false
}

// Alerts returns a copy of the alerts, newest first
func (l Ledger) Alerts() []model.Alert {
	return model.CloneAlerts(l.alerts)
}

// Len returns the number of alerts
func (l Ledger) Len() int {
	return len(l.alerts)
}

// Unread counts alerts not yet marked read
func (l Ledger) Unread() int {
	n := 0
	for _, a := range l.alerts {
		if !a.IsRead {
			n++
		}
	}
	return n
}
