// Package engine runs the checkpointed tool-calling agent loop: it
// hydrates a thread from its latest checkpoint, retrieves background
// context, asks the model to decide, executes requested tools, and
// persists a checkpoint for every tool round and every completed turn.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/applymate/agent-go/checkpoint"
	"github.com/applymate/agent-go/core"
	"github.com/applymate/agent-go/retriever"
	"github.com/applymate/agent-go/tools"
)

const (
	// DefaultMaxIterations caps model decisions per turn.
	DefaultMaxIterations = 6

	defaultStepTimeout  = 60 * time.Second
	defaultModelRetries = 2
	defaultRetrieveK    = 4
	retryBackoff        = 250 * time.Millisecond
)

// Engine drives one conversation turn at a time. Distinct threads run in
// parallel; turns within one thread are serialized by a per-thread lock.
type Engine struct {
	store     checkpoint.Store
	model     ModelClient
	registry  *tools.Registry
	retriever retriever.Retriever

	system        string
	maxIterations int
	stepTimeout   time.Duration
	modelRetries  int
	retrieveK     int

	locks sync.Map // threadID -> *sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetriever enables background retrieval before each turn.
func WithRetriever(r retriever.Retriever) Option {
	return func(e *Engine) { e.retriever = r }
}

// WithSystemPrompt overrides the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) { e.system = prompt }
}

// WithMaxIterations caps model decisions per turn.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithStepTimeout bounds each individual model call.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithModelRetries sets how many times a failed model call is retried.
func WithModelRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.modelRetries = n
		}
	}
}

// WithRetrieveK sets how many background snippets each turn retrieves.
func WithRetrieveK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.retrieveK = k
		}
	}
}

// New creates an engine over a checkpoint store, a model client, and a
// tool registry.
func New(store checkpoint.Store, model ModelClient, registry *tools.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		model:         model,
		registry:      registry,
		maxIterations: DefaultMaxIterations,
		stepTimeout:   defaultStepTimeout,
		modelRetries:  defaultModelRetries,
		retrieveK:     defaultRetrieveK,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input is one user turn.
type Input struct {
	// ThreadID identifies the conversation thread to resume or start.
	ThreadID string

	// Namespace scopes retrieval and tool access to one user.
	Namespace string

	// Message is the user's message for this turn.
	Message string
}

// Output is the completed turn.
type Output struct {
	// Answer is the assistant's final answer.
	Answer string

	// Steps are the tool rounds executed this turn, in order.
	Steps []Step

	// Iterations is how many model decisions the turn consumed.
	Iterations int

	// Incomplete is set when the iteration cap forced the turn to end
	// before the model produced a final answer.
	Incomplete bool
}

// Run executes one turn end to end. The thread's history and every tool
// round are checkpointed, so a thread survives process restarts and a
// failed turn resumes from its last good checkpoint.
func (e *Engine) Run(ctx context.Context, input Input) (*Output, error) {
	if strings.TrimSpace(input.ThreadID) == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	if strings.TrimSpace(input.Message) == "" {
		return nil, fmt.Errorf("message is required")
	}

	mu := e.lockFor(input.ThreadID)
	mu.Lock()
	defer mu.Unlock()

	latest, err := e.store.GetLatest(ctx, input.ThreadID)
	if err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		return nil, &core.PersistenceError{Op: "hydrate thread", Err: err}
	}

	history := latest.History()
	priorMessages := history.Messages()

	docs := e.retrieve(ctx, input)

	// Checkpoint the incoming message before any model work so a crash
	// mid-turn still leaves the user's message on the thread.
	history.Append(core.Message{Role: core.RoleUser, Text: input.Message})
	if _, err := e.putHistory(ctx, input.ThreadID, history, map[string]interface{}{
		"event": "turn_start",
	}); err != nil {
		return nil, &core.PersistenceError{Op: "checkpoint turn start", Err: err}
	}

	req := Request{
		System:      e.system,
		Context:     docs,
		History:     priorMessages,
		UserMessage: input.Message,
		Tools:       e.registry.Definitions(),
	}

	var steps []Step
	var answer string
	pendingError := false
	correctiveUsed := false
	clarified := false
	incomplete := false
	iterations := 0

decide:
	for iterations < e.maxIterations {
		// Cancellation is honored only here, at the decision boundary; a
		// dispatched tool batch always runs to completion and is
		// checkpointed before the next check.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations++

		req.Steps = steps
		resp, err := e.decideWithRetry(ctx, req)
		req.Nudge = ""
		if err != nil {
			var protoErr *core.ModelProtocolError
			if errors.As(err, &protoErr) && !clarified {
				clarified = true
				req.Nudge = clarifyingNudge
				log.Printf("[ENGINE] %s: re-prompting after protocol violation: %s", input.ThreadID, protoErr.Reason)
				continue
			}
			return nil, err
		}

		switch resp.Kind {
		case KindFinish:
			if pendingError && !acknowledgesFailure(resp.FinalAnswer) {
				if !correctiveUsed {
					correctiveUsed = true
					req.Nudge = correctiveNudge
					log.Printf("[ENGINE] %s: answer ignored a failed tool call, re-prompting", input.ThreadID)
					continue
				}
				failed, _ := lastFailedStep(steps)
				answer = failureFallback(failed)
				break decide
			}
			answer = resp.FinalAnswer
			break decide

		case KindToolRequest:
			batch, err := e.runToolBatch(ctx, input, resp.ToolCalls, iterations)
			if err != nil {
				return nil, err
			}
			// Recomputed per batch: a fully successful round means the
			// model corrected the earlier failure, so a plain success
			// answer is honest again.
			pendingError = false
			for _, step := range batch {
				if step.Result.IsError {
					pendingError = true
				}
			}
			if !pendingError {
				correctiveUsed = false
			}
			steps = append(steps, batch...)
		}
	}

	if answer == "" {
		incomplete = true
		answer = "I could not complete this request within the allowed number of steps. Here is where I stopped; ask me to continue if you want me to keep going."
		log.Printf("[ENGINE] %s: iteration cap reached after %d decisions", input.ThreadID, iterations)
	}

	history.Append(core.Message{Role: core.RoleAssistant, Text: answer})
	if _, err := e.putHistory(ctx, input.ThreadID, history, map[string]interface{}{
		"event":      "turn_end",
		"iterations": iterations,
		"incomplete": incomplete,
	}); err != nil {
		return nil, &core.PersistenceError{Op: "checkpoint turn end", Err: err}
	}

	return &Output{
		Answer:     answer,
		Steps:      steps,
		Iterations: iterations,
		Incomplete: incomplete,
	}, nil
}

// runToolBatch dispatches every invocation the model requested in one
// decision and records the whole batch as a single checkpoint.
func (e *Engine) runToolBatch(ctx context.Context, input Input, calls []core.ToolInvocation, iteration int) ([]Step, error) {
	batch := make([]Step, 0, len(calls))
	writes := make([]checkpoint.Write, 0, len(calls))

	for _, call := range calls {
		if call.CallID == "" {
			call.CallID = uuid.NewString()
		}
		result := e.registry.Dispatch(ctx, input.Namespace, call)
		log.Printf("[ENGINE] %s: tool %s (error=%t)", input.ThreadID, call.Name, result.IsError)
		batch = append(batch, Step{Invocation: call, Result: result})
		writes = append(writes,
			checkpoint.Write{Key: "tool:" + call.CallID, Value: call.Name},
			checkpoint.Write{Key: "observation:" + call.CallID, Value: result.Observation},
			checkpoint.Write{Key: "is_error:" + call.CallID, Value: result.IsError},
		)
	}

	taskID := uuid.NewString()
	taskPath := fmt.Sprintf("turn/%d", iteration)
	if _, err := e.store.PutWrites(ctx, input.ThreadID, writes, taskID, taskPath); err != nil {
		return nil, &core.PersistenceError{Op: "checkpoint tool round", Err: err}
	}
	return batch, nil
}

// decideWithRetry calls the model with the per-step timeout, retrying
// transport failures with linear backoff. Protocol violations are not
// retried here; the loop handles those with a clarifying re-prompt.
func (e *Engine) decideWithRetry(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= e.modelRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		resp, err := e.model.Decide(stepCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}

		var invErr *core.ModelInvocationError
		if !errors.As(err, &invErr) {
			return nil, err
		}
		lastErr = err
		log.Printf("[ENGINE] model attempt %d/%d failed: %v", attempt+1, e.modelRetries+1, err)
	}
	return nil, lastErr
}

// retrieve fetches background context for the turn. Retrieval is an
// enrichment: a failure is logged and the turn proceeds without context.
func (e *Engine) retrieve(ctx context.Context, input Input) []core.RetrievedDocument {
	if e.retriever == nil {
		return nil
	}
	docs, err := e.retriever.Search(ctx, input.Namespace, input.Message, e.retrieveK)
	if err != nil {
		log.Printf("[ENGINE] %s: retrieval failed, continuing without context: %v", input.ThreadID, err)
		return nil
	}
	return docs
}

func (e *Engine) putHistory(ctx context.Context, threadID string, history *checkpoint.BoundedHistory, extra map[string]interface{}) (*checkpoint.Checkpoint, error) {
	state := checkpoint.State{
		ChannelValues: map[string]interface{}{
			checkpoint.ChatHistoryKey: history,
		},
	}
	return e.store.Put(ctx, threadID, state, extra)
}

func (e *Engine) lockFor(threadID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(threadID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
