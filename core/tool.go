package core

import "encoding/json"

// ToolInvocation is a structured tool call produced by the model.
type ToolInvocation struct {
	// Name is the registered tool name the model is requesting.
	Name string `json:"tool"`

	// Arguments is the raw JSON argument object from the model.
	Arguments json.RawMessage `json:"arguments"`

	// CallID ties the eventual result back to this invocation.
	CallID string `json:"call_id"`
}

// ToolResult is the observation produced for a single invocation.
// Exactly one ToolResult is produced for every invocation dispatched,
// whether the handler succeeded or failed.
type ToolResult struct {
	CallID      string `json:"call_id"`
	Observation string `json:"observation"`
	IsError     bool   `json:"is_error"`
}
