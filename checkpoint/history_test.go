package checkpoint

import (
	"encoding/json"
	"testing"

	"github.com/applymate/agent-go/core"
)

func TestBoundedHistoryEvictsOldest(t *testing.T) {
	h := NewBoundedHistory(3)
	h.Append(
		core.Message{Role: core.RoleUser, Text: "one"},
		core.Message{Role: core.RoleAssistant, Text: "two"},
		core.Message{Role: core.RoleUser, Text: "three"},
		core.Message{Role: core.RoleAssistant, Text: "four"},
	)

	msgs := h.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "two" || msgs[2].Text != "four" {
		t.Errorf("wrong retained window: %+v", msgs)
	}
}

func TestBoundedHistoryDefaultCap(t *testing.T) {
	h := NewBoundedHistory(0)
	if h.Cap() != DefaultHistoryCap {
		t.Fatalf("expected default cap %d, got %d", DefaultHistoryCap, h.Cap())
	}
	for i := 0; i < DefaultHistoryCap+5; i++ {
		h.Append(core.Message{Role: core.RoleUser, Text: "msg"})
	}
	if h.Len() != DefaultHistoryCap {
		t.Errorf("expected len %d after overflow, got %d", DefaultHistoryCap, h.Len())
	}
}

func TestBoundedHistorySerializesAsPlainArray(t *testing.T) {
	h := NewBoundedHistory(5)
	h.Append(
		core.Message{Role: core.RoleUser, Text: "hello"},
		core.Message{Role: core.RoleAssistant, Text: "hi"},
	)

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}

	// The wire form must be an ordinary array so other readers of the
	// checkpoint can consume it.
	var plain []core.Message
	if err := json.Unmarshal(data, &plain); err != nil {
		t.Fatalf("wire form is not a plain array: %v", err)
	}
	if len(plain) != 2 || plain[1].Text != "hi" {
		t.Errorf("unexpected wire content: %+v", plain)
	}

	restored := NewBoundedHistory(5)
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatal(err)
	}
	if restored.Len() != 2 || restored.Messages()[0].Text != "hello" {
		t.Errorf("round trip lost content: %+v", restored.Messages())
	}
}

func TestBoundedHistoryCapacityNotOnWire(t *testing.T) {
	h := NewBoundedHistory(3)
	h.Append(core.Message{Role: core.RoleUser, Text: "one"})

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}

	// A receiver with a cap keeps it; a fresh receiver falls back to the
	// default, which is what store rehydration produces.
	preset := NewBoundedHistory(3)
	if err := json.Unmarshal(data, preset); err != nil {
		t.Fatal(err)
	}
	if preset.Cap() != 3 {
		t.Errorf("preset capacity lost on decode: %d", preset.Cap())
	}

	fresh := NewBoundedHistory(0)
	if err := json.Unmarshal(data, fresh); err != nil {
		t.Fatal(err)
	}
	if fresh.Cap() != DefaultHistoryCap {
		t.Errorf("expected default cap %d after rehydration, got %d", DefaultHistoryCap, fresh.Cap())
	}
}

func TestBoundedHistoryEmptyMarshals(t *testing.T) {
	data, err := json.Marshal(NewBoundedHistory(0))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("expected [], got %s", data)
	}
}

func TestBoundedHistoryMessagesIsACopy(t *testing.T) {
	h := NewBoundedHistory(5)
	h.Append(core.Message{Role: core.RoleUser, Text: "original"})

	msgs := h.Messages()
	msgs[0].Text = "mutated"

	if h.Messages()[0].Text != "original" {
		t.Error("Messages must return a copy, not the backing slice")
	}
}
