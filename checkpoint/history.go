package checkpoint

import (
	"encoding/json"

	"github.com/applymate/agent-go/core"
)

// DefaultHistoryCap bounds how many conversation turns a thread retains.
const DefaultHistoryCap = 40

// BoundedHistory is an ordered, length-capped buffer of conversation
// turns. Appending past the cap evicts the oldest turn. It serializes as
// a plain JSON array; stores reconstruct the bounded form when they see
// the array under the reserved chat-history channel name.
type BoundedHistory struct {
	capacity int
	msgs     []core.Message
}

// NewBoundedHistory creates an empty history. A capacity of zero or less
// selects DefaultHistoryCap.
func NewBoundedHistory(capacity int) *BoundedHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &BoundedHistory{capacity: capacity}
}

// Append adds turns in order, evicting from the front once full.
func (h *BoundedHistory) Append(msgs ...core.Message) {
	h.msgs = append(h.msgs, msgs...)
	if over := len(h.msgs) - h.capacity; over > 0 {
		h.msgs = append(h.msgs[:0:0], h.msgs[over:]...)
	}
}

// Messages returns a copy of the buffered turns, oldest first.
func (h *BoundedHistory) Messages() []core.Message {
	out := make([]core.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func (h *BoundedHistory) Len() int { return len(h.msgs) }

func (h *BoundedHistory) Cap() int { return h.capacity }

// MarshalJSON writes the plain-sequence form.
func (h *BoundedHistory) MarshalJSON() ([]byte, error) {
	if h.msgs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.msgs)
}

// UnmarshalJSON reconstructs the bounded form from the plain-sequence
// form, preserving element order. The capacity is not part of the wire
// form: decoding keeps the receiver's capacity when one is set and
// falls back to DefaultHistoryCap otherwise, so a non-default cap must
// be re-applied by the caller after rehydration.
func (h *BoundedHistory) UnmarshalJSON(data []byte) error {
	var msgs []core.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return err
	}
	if h.capacity <= 0 {
		h.capacity = DefaultHistoryCap
	}
	h.msgs = nil
	h.Append(msgs...)
	return nil
}
