package alarming

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/pipeline-monitor/internal/model"
)

const keyPrefix = "leak_state:"

// LeakState is the externally visible state of a leaking segment
type LeakState struct {
	Status            model.SegmentStatus `json:"status"`
	EstimatedLeakRate float64             `json:"estimated_leak_rate"`
	PressureDrop      float64             `json:"pressure_drop"`
	Since             time.Time           `json:"since"`
}

// StateKey returns the Redis key for a segment
func StateKey(segmentID string) string {
	return keyPrefix + segmentID
}

// StateManager manages segment leak states in Redis
type StateManager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStateManager creates a new state manager. Keys expire after ttl so a
// crashed monitor does not leave leaks behind forever; zero means no expiry.
func NewStateManager(redisClient *redis.Client, ttl time.Duration) *StateManager {
	return &StateManager{redis: redisClient, ttl: ttl}
}

// GetState returns the stored state for a segment, or nil when it is not leaking
func (sm *StateManager) GetState(ctx context.Context, segmentID string) (*LeakState, error) {
	data, err := sm.redis.Get(ctx, StateKey(segmentID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state from Redis: %w", err)
	}

	var state LeakState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// SetState saves the leak state for a segment
func (sm *StateManager) SetState(ctx context.Context, segmentID string, state *LeakState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := sm.redis.Set(ctx, StateKey(segmentID), data, sm.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set state in Redis: %w", err)
	}
	return nil
}

// DeleteState removes the state once a segment is back to normal
func (sm *StateManager) DeleteState(ctx context.Context, segmentID string) error {
	return sm.redis.Del(ctx, StateKey(segmentID)).Err()
}

// GetAllStates returns every stored leak state keyed by segment id
func (sm *StateManager) GetAllStates(ctx context.Context) (map[string]*LeakState, error) {
	keys, err := sm.redis.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}

	states := make(map[string]*LeakState)
	for _, key := range keys {
		data, err := sm.redis.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var state LeakState
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			continue
		}
		states[strings.TrimPrefix(key, keyPrefix)] = &state
	}
	return states, nil
}
