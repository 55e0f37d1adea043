// Package checkpoint persists conversation thread state as an immutable,
// time-ordered chain of snapshots. Each thread's checkpoints form a
// strictly ordered lineage; the latest checkpoint is always the one with
// the maximum timestamp, and updates append a new checkpoint rather than
// mutating an existing one.
package checkpoint

import (
	"fmt"
	"time"
)

// ChatHistoryKey is the reserved channel name for conversation history.
// Values written under this key merge into a thread's state; every other
// pending-write key lands in checkpoint metadata.
const ChatHistoryKey = "chat_history"

// Checkpoint is a point-in-time snapshot of one conversation thread.
type Checkpoint struct {
	ThreadID string `json:"thread_id"`

	// Timestamp is the checkpoint's version identifier, strictly
	// increasing within a thread (unix microseconds).
	Timestamp int64 `json:"timestamp"`

	// ParentTimestamp references the immediately preceding checkpoint in
	// the same thread; nil for the first checkpoint.
	ParentTimestamp *int64 `json:"parent_timestamp,omitempty"`

	State    State    `json:"state"`
	Metadata Metadata `json:"metadata"`
}

// State is the structured payload of a checkpoint.
type State struct {
	ChannelValues map[string]interface{} `json:"channel_values"`
	Step          int                    `json:"step"`
}

// Metadata is kept separate from State so stores can list checkpoints
// without deserializing the full payload.
type Metadata struct {
	Step  int                    `json:"step"`
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// History returns the bounded chat history stored under ChatHistoryKey,
// or a fresh empty history when the channel is absent.
func (c *Checkpoint) History() *BoundedHistory {
	if c != nil && c.State.ChannelValues != nil {
		if h, ok := c.State.ChannelValues[ChatHistoryKey].(*BoundedHistory); ok && h != nil {
			return h
		}
	}
	return NewBoundedHistory(0)
}

// NextTimestamp produces a strictly increasing version for a thread:
// wall-clock microseconds, bumped past the previous checkpoint when the
// clock has not advanced.
func NextTimestamp(prev int64) int64 {
	ts := time.Now().UnixMicro()
	if ts <= prev {
		ts = prev + 1
	}
	return ts
}

// ValidateState rejects a malformed state before anything is serialized.
// A silently corrupt write poisons every later read of the thread, so a
// bad payload here is a programmer error surfaced immediately.
func ValidateState(s State) error {
	if s.ChannelValues == nil {
		return fmt.Errorf("%w: nil channel_values", ErrMalformedState)
	}
	if s.Step < 0 {
		return fmt.Errorf("%w: negative step %d", ErrMalformedState, s.Step)
	}
	for key, value := range s.ChannelValues {
		if key == "" {
			return fmt.Errorf("%w: empty channel name", ErrMalformedState)
		}
		if err := validateValue(value); err != nil {
			return fmt.Errorf("%w: channel %q: %v", ErrMalformedState, key, err)
		}
	}
	return nil
}

// validateValue enforces the closed set of persistable shapes: primitive
// scalars, ordered sequences of those, and the bounded history type.
func validateValue(v interface{}) error {
	switch val := v.(type) {
	case nil, bool, string,
		int, int32, int64, float32, float64:
		return nil
	case []interface{}:
		for i, elem := range val {
			if err := validateValue(elem); err != nil {
				return fmt.Errorf("element %d: %v", i, err)
			}
		}
		return nil
	case *BoundedHistory:
		if val == nil {
			return fmt.Errorf("nil history")
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}
