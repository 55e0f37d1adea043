package checkpoint

import (
	"encoding/json"
	"fmt"
)

// MarshalState validates and serializes a state payload. The bounded
// history channel serializes through its plain-sequence form.
func MarshalState(s State) ([]byte, error) {
	if err := ValidateState(s); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// UnmarshalState deserializes a state payload, reconstructing the bounded
// history type whenever the reserved channel name is encountered. The
// round trip through MarshalState is lossless for structural content.
func UnmarshalState(data []byte) (State, error) {
	var raw struct {
		ChannelValues map[string]json.RawMessage `json:"channel_values"`
		Step          int                        `json:"step"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}

	out := State{
		ChannelValues: make(map[string]interface{}, len(raw.ChannelValues)),
		Step:          raw.Step,
	}
	for key, val := range raw.ChannelValues {
		if key == ChatHistoryKey {
			hist := NewBoundedHistory(0)
			if err := json.Unmarshal(val, hist); err != nil {
				return State{}, fmt.Errorf("decode %s: %w", ChatHistoryKey, err)
			}
			out.ChannelValues[key] = hist
			continue
		}
		var generic interface{}
		if err := json.Unmarshal(val, &generic); err != nil {
			return State{}, fmt.Errorf("decode channel %q: %w", key, err)
		}
		out.ChannelValues[key] = generic
	}
	return out, nil
}

// MarshalMetadata serializes checkpoint metadata.
func MarshalMetadata(m Metadata) ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalMetadata deserializes checkpoint metadata.
func UnmarshalMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
