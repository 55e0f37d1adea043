// Package inmem provides an in-memory checkpoint store with the same
// semantics as the durable SQLite store. It backs tests and local runs.
package inmem

import (
	"context"
	"sync"

	"github.com/applymate/agent-go/checkpoint"
)

type record struct {
	ts       int64
	parent   *int64
	state    []byte
	metadata []byte
}

// Store keeps each thread's checkpoint chain in memory. Safe for
// concurrent use across threads.
type Store struct {
	mu      sync.RWMutex
	threads map[string][]record
}

var _ checkpoint.Store = (*Store)(nil)

func New() *Store {
	return &Store{threads: make(map[string][]record)}
}

func (s *Store) GetLatest(ctx context.Context, threadID string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.threads[threadID]
	if len(chain) == 0 {
		return nil, checkpoint.ErrNotFound
	}
	return decode(threadID, chain[len(chain)-1])
}

func (s *Store) List(ctx context.Context, threadID string) ([]*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.threads[threadID]
	out := make([]*checkpoint.Checkpoint, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		cp, err := decode(threadID, chain[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, threadID string, state checkpoint.State, extra map[string]interface{}) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(threadID, state, extra)
}

func (s *Store) PutWrites(ctx context.Context, threadID string, writes []checkpoint.Write, taskID, taskPath string) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *checkpoint.Checkpoint
	if chain := s.threads[threadID]; len(chain) > 0 {
		cp, err := decode(threadID, chain[len(chain)-1])
		if err != nil {
			return nil, err
		}
		latest = cp
	}

	state, extra := checkpoint.MergeWrites(latest, writes, taskID, taskPath)
	return s.putLocked(threadID, state, extra)
}

func (s *Store) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// putLocked appends one checkpoint. The state round-trips through the
// serializer so stored snapshots never alias caller-owned values.
func (s *Store) putLocked(threadID string, state checkpoint.State, extra map[string]interface{}) (*checkpoint.Checkpoint, error) {
	chain := s.threads[threadID]

	step := 0
	var prevTS int64
	var parent *int64
	if len(chain) > 0 {
		prev := chain[len(chain)-1]
		meta, err := checkpoint.UnmarshalMetadata(prev.metadata)
		if err != nil {
			return nil, err
		}
		step = meta.Step + 1
		prevTS = prev.ts
		p := prev.ts
		parent = &p
	}

	state.Step = step
	stateJSON, err := checkpoint.MarshalState(state)
	if err != nil {
		return nil, err
	}
	metaJSON, err := checkpoint.MarshalMetadata(checkpoint.Metadata{Step: step, Extra: extra})
	if err != nil {
		return nil, err
	}

	rec := record{
		ts:       checkpoint.NextTimestamp(prevTS),
		parent:   parent,
		state:    stateJSON,
		metadata: metaJSON,
	}
	if s.threads == nil {
		s.threads = make(map[string][]record)
	}
	s.threads[threadID] = append(chain, rec)
	return decode(threadID, rec)
}

func decode(threadID string, rec record) (*checkpoint.Checkpoint, error) {
	state, err := checkpoint.UnmarshalState(rec.state)
	if err != nil {
		return nil, err
	}
	meta, err := checkpoint.UnmarshalMetadata(rec.metadata)
	if err != nil {
		return nil, err
	}
	cp := &checkpoint.Checkpoint{
		ThreadID:  threadID,
		Timestamp: rec.ts,
		State:     state,
		Metadata:  meta,
	}
	if rec.parent != nil {
		p := *rec.parent
		cp.ParentTimestamp = &p
	}
	return cp, nil
}
