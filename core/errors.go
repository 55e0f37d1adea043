package core

import "fmt"

// PersistenceError marks a checkpoint read or write failure. It is fatal
// for the current turn; the conversation remains resumable from its last
// good checkpoint and the caller may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ToolExecutionError marks a handler-level failure. It is recovered
// locally as an error observation and never terminates the agent loop.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ModelInvocationError marks a transport-level failure talking to the
// language model. The agent loop retries it with bounded backoff before
// surfacing it.
type ModelInvocationError struct {
	Err error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("model invocation failed: %v", e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// ModelProtocolError marks malformed or ambiguous model output, such as a
// completion that carries neither a final answer nor a tool call. The loop
// responds with a clarifying re-prompt rather than guessing.
type ModelProtocolError struct {
	Reason string
}

func (e *ModelProtocolError) Error() string {
	return fmt.Sprintf("model protocol violation: %s", e.Reason)
}
