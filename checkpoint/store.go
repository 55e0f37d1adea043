package checkpoint

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by GetLatest when a thread has no
	// checkpoints. List returns an empty slice instead.
	ErrNotFound = errors.New("checkpoint: thread not found")

	// ErrMalformedState is returned by Put when the state payload is not
	// well formed. Nothing is written.
	ErrMalformedState = errors.New("checkpoint: malformed state")
)

// Write is one staged key/value pair from a pending tool task. Writes
// under ChatHistoryKey merge into the next checkpoint's state; all other
// keys become metadata.
type Write struct {
	Key   string
	Value interface{}
}

// Store is the durable checkpoint persistence contract. Implementations
// must be safe for concurrent use across threads; callers serialize
// operations within one thread.
type Store interface {
	// GetLatest returns the checkpoint with the maximum timestamp for the
	// thread, or ErrNotFound.
	GetLatest(ctx context.Context, threadID string) (*Checkpoint, error)

	// List returns every checkpoint for the thread, newest first. A
	// thread with no checkpoints yields an empty slice, not an error.
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)

	// Put appends a new checkpoint. The step is computed as the previous
	// checkpoint's step plus one (zero for a new thread) and embedded in
	// both state and metadata. Malformed state is rejected before
	// anything is serialized.
	Put(ctx context.Context, threadID string, state State, extra map[string]interface{}) (*Checkpoint, error)

	// PutWrites merges a batch of staged writes into exactly one new
	// checkpoint, however many pairs the batch carries. ChatHistoryKey
	// values replace the state's history channel; everything else lands
	// in the new checkpoint's metadata under the task identifiers.
	PutWrites(ctx context.Context, threadID string, writes []Write, taskID, taskPath string) (*Checkpoint, error)

	// Delete removes the thread's entire checkpoint chain. Deleting a
	// thread with no checkpoints is a no-op.
	Delete(ctx context.Context, threadID string) error
}

// MergeWrites folds a batch of staged writes over the latest checkpoint
// (nil for a fresh thread) into the state and metadata-extra of the one
// checkpoint that will record the batch. Store implementations share it
// so batch semantics cannot drift between backends.
func MergeWrites(latest *Checkpoint, writes []Write, taskID, taskPath string) (State, map[string]interface{}) {
	state := State{ChannelValues: map[string]interface{}{}}
	if latest != nil {
		for k, v := range latest.State.ChannelValues {
			state.ChannelValues[k] = v
		}
	}

	extra := map[string]interface{}{
		"task_id":   taskID,
		"task_path": taskPath,
	}
	for _, w := range writes {
		if w.Key == ChatHistoryKey {
			state.ChannelValues[ChatHistoryKey] = w.Value
			continue
		}
		extra[w.Key] = w.Value
	}
	return state, extra
}
