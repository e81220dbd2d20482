package alarming

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smukkama/pipeline-monitor/internal/model"
)

const mirrorBuffer = 64

// Store persists leak states
type Store interface {
	SetState(ctx context.Context, segmentID string, state *LeakState) error
	DeleteState(ctx context.Context, segmentID string) error
	GetAllStates(ctx context.Context) (map[string]*LeakState, error)
}

type update struct {
	segments []model.Segment
	at       time.Time
}

// Mirror copies segment leak states from engine snapshots into a Store.
// Snapshots are queued without blocking and written by Run.
type Mirror struct {
	store   Store
	updates chan update
	known   map[string]LeakState
	refresh time.Duration
	logger  logrus.FieldLogger
}

// NewMirror creates a mirror. Every refresh interval the known states are
// written again so expiring keys of long-lived leaks stay alive; zero
// disables the rewrite.
func NewMirror(store Store, logger logrus.FieldLogger, refresh time.Duration) *Mirror {
	return &Mirror{
		store:   store,
		updates: make(chan update, mirrorBuffer),
		known:   make(map[string]LeakState),
		refresh: refresh,
		logger:  logger.WithField("component", "leak-mirror"),
	}
}

func (m *Mirror) OnSnapshot(snap *model.Snapshot) {
	select {
	case m.updates <- update{segments: snap.Segments, at: snap.TakenAt}:
	default:
		m.logger.Warn("Mirror queue full, dropping snapshot")
	}
}

func (m *Mirror) OnAlert(model.Alert) {}

// Run clears states left by a previous process and then applies queued
// snapshots until ctx is done
func (m *Mirror) Run(ctx context.Context) {
	if stale, err := m.store.GetAllStates(ctx); err != nil {
		m.logger.WithError(err).Warn("Failed to list stale leak states")
	} else {
		for id := range stale {
			if err := m.store.DeleteState(ctx, id); err != nil {
				m.logger.WithError(err).WithField("segment", id).Warn("Failed to clear stale leak state")
			}
		}
	}

	var tick <-chan time.Time
	if m.refresh > 0 {
		ticker := time.NewTicker(m.refresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-m.updates:
			m.apply(ctx, u)
		case <-tick:
			m.rewrite(ctx)
		}
	}
}

func (m *Mirror) rewrite(ctx context.Context) {
	for id, state := range m.known {
		st := state
		if err := m.store.SetState(ctx, id, &st); err != nil {
			m.logger.WithError(err).WithField("segment", id).Warn("Failed to refresh leak state")
		}
	}
}

func (m *Mirror) apply(ctx context.Context, u update) {
	upserts, deletes := Diff(m.known, u.segments, u.at)

	for id, state := range upserts {
		st := state
		if err := m.store.SetState(ctx, id, &st); err != nil {
			m.logger.WithError(err).WithField("segment", id).Error("Failed to store leak state")
			continue
		}
		m.known[id] = st
	}
	for _, id := range deletes {
		if err := m.store.DeleteState(ctx, id); err != nil {
			m.logger.WithError(err).WithField("segment", id).Error("Failed to delete leak state")
			continue
		}
		delete(m.known, id)
	}
}

// Diff compares the known leak states with the segments of a snapshot. It
// returns the states to write and the segment ids to delete. Since is kept
// while a segment stays in the same leak status.
func Diff(known map[string]LeakState, segments []model.Segment, at time.Time) (map[string]LeakState, []string) {
	upserts := make(map[string]LeakState)
	var deletes []string

	for _, seg := range segments {
		prev, had := known[seg.ID]
		if !seg.Status.IsLeaking() {
			if had {
				deletes = append(deletes, seg.ID)
			}
			continue
		}

		next := LeakState{
			Status:            seg.Status,
			EstimatedLeakRate: seg.Metrics.EstimatedLeakRate,
			PressureDrop:      seg.Metrics.PressureDrop,
			Since:             at,
		}
		if had && prev.Status == seg.Status {
			next.Since = prev.Since
			if next == prev {
				continue
			}
		}
		upserts[seg.ID] = next
	}
	return upserts, deletes
}
