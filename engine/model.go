package engine

import (
	"context"

	"github.com/applymate/agent-go/core"
	"github.com/applymate/agent-go/tools"
)

// ResponseKind discriminates the two legal shapes of a model decision.
type ResponseKind int

const (
	// KindFinish means the model produced a final answer for the user.
	KindFinish ResponseKind = iota

	// KindToolRequest means the model asked for one or more tool
	// invocations before it can answer.
	KindToolRequest
)

// Step is one completed tool round: the invocation the model requested
// and the result the registry produced for it.
type Step struct {
	Invocation core.ToolInvocation
	Result     core.ToolResult
}

// Request is everything the model sees for one decision: the system
// prompt, retrieved context, bounded history, the user's message, and
// the tool rounds completed so far this turn.
type Request struct {
	System      string
	Context     []core.RetrievedDocument
	History     []core.Message
	UserMessage string
	Steps       []Step
	Tools       []tools.Definition

	// Nudge is an optional corrective instruction appended after the tool
	// rounds, used to re-prompt the model without adding a tool step.
	Nudge string
}

// Response is the model's decision, exactly one of two variants. Kind
// selects which fields are meaningful: FinalAnswer for KindFinish,
// ToolCalls for KindToolRequest.
type Response struct {
	Kind        ResponseKind
	FinalAnswer string
	ToolCalls   []core.ToolInvocation
}

// ModelClient turns a request into a decision. Implementations return
// *core.ModelInvocationError for transport failures (which the loop
// retries) and *core.ModelProtocolError for output that fits neither
// variant (which the loop re-prompts).
type ModelClient interface {
	Decide(ctx context.Context, req Request) (*Response, error)
}
