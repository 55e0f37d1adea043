package checkpoint

import (
	"errors"
	"testing"

	"github.com/applymate/agent-go/core"
)

func TestValidateStateAcceptsClosedSet(t *testing.T) {
	state := State{
		ChannelValues: map[string]interface{}{
			"flag":         true,
			"name":         "thread",
			"count":        3,
			"score":        0.5,
			"tags":         []interface{}{"a", "b", []interface{}{1, 2}},
			"nothing":      nil,
			ChatHistoryKey: NewBoundedHistory(0),
		},
	}
	if err := ValidateState(state); err != nil {
		t.Fatalf("valid state rejected: %v", err)
	}
}

func TestValidateStateRejectsOpenTypes(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
	}{
		{"map", map[string]interface{}{"k": "v"}},
		{"struct", struct{ X int }{1}},
		{"nested bad element", []interface{}{"ok", map[string]int{}}},
		{"nil history", (*BoundedHistory)(nil)},
		{"channel", make(chan int)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := State{ChannelValues: map[string]interface{}{"v": tc.value}}
			err := ValidateState(state)
			if !errors.Is(err, ErrMalformedState) {
				t.Errorf("expected ErrMalformedState, got %v", err)
			}
		})
	}
}

func TestValidateStateRejectsNilChannels(t *testing.T) {
	if err := ValidateState(State{}); !errors.Is(err, ErrMalformedState) {
		t.Errorf("expected ErrMalformedState for nil channel_values, got %v", err)
	}
}

func TestNextTimestampStrictlyIncreases(t *testing.T) {
	prev := int64(0)
	for i := 0; i < 1000; i++ {
		ts := NextTimestamp(prev)
		if ts <= prev {
			t.Fatalf("timestamp %d not after %d", ts, prev)
		}
		prev = ts
	}
}

func TestNextTimestampBumpsPastFutureParent(t *testing.T) {
	future := NextTimestamp(0) + 1_000_000_000
	if ts := NextTimestamp(future); ts != future+1 {
		t.Errorf("expected %d, got %d", future+1, ts)
	}
}

func TestHistoryAccessor(t *testing.T) {
	var nilCP *Checkpoint
	if h := nilCP.History(); h == nil || h.Len() != 0 {
		t.Error("nil checkpoint must yield a fresh empty history")
	}

	cp := &Checkpoint{State: State{ChannelValues: map[string]interface{}{}}}
	if h := cp.History(); h.Len() != 0 {
		t.Error("missing channel must yield an empty history")
	}

	hist := NewBoundedHistory(0)
	hist.Append(core.Message{Role: core.RoleUser, Text: "hi"})
	cp = &Checkpoint{State: State{ChannelValues: map[string]interface{}{ChatHistoryKey: hist}}}
	if got := cp.History(); got.Len() != 1 {
		t.Errorf("expected stored history back, got %d messages", got.Len())
	}
}

func TestMergeWritesRoutesKeys(t *testing.T) {
	hist := NewBoundedHistory(0)
	hist.Append(core.Message{Role: core.RoleUser, Text: "hi"})

	latest := &Checkpoint{State: State{ChannelValues: map[string]interface{}{
		ChatHistoryKey: NewBoundedHistory(0),
		"other":        "kept",
	}}}

	state, extra := MergeWrites(latest, []Write{
		{Key: ChatHistoryKey, Value: hist},
		{Key: "observation", Value: "ok"},
	}, "task-1", "turn/2")

	if state.ChannelValues[ChatHistoryKey] != hist {
		t.Error("history write must replace the state channel")
	}
	if state.ChannelValues["other"] != "kept" {
		t.Error("untouched channels must carry forward")
	}
	if extra["observation"] != "ok" || extra["task_id"] != "task-1" || extra["task_path"] != "turn/2" {
		t.Errorf("unexpected extra: %+v", extra)
	}
	if _, inState := state.ChannelValues["observation"]; inState {
		t.Error("non-history writes must not reach state")
	}
}
