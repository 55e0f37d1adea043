// Package tools defines the agent's fixed set of named, schema-typed
// capabilities and the registry that dispatches model-requested
// invocations to their handlers.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/applymate/agent-go/core"
)

// Definition describes one tool to the language model.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Params carries per-invocation context into a handler.
type Params struct {
	// Namespace is the user namespace the current turn runs under.
	Namespace string

	// CallID is the model-assigned identifier for this invocation.
	CallID string

	// Arguments is the raw JSON argument object from the model.
	Arguments json.RawMessage
}

// HandlerFunc executes one invocation and returns the observation text.
type HandlerFunc func(ctx context.Context, p *Params) (string, error)

// Tool pairs a definition with its handler.
type Tool struct {
	def     Definition
	handler HandlerFunc
}

// New starts building a tool. Chain Handler to attach the implementation.
func New(name, description string, schema map[string]interface{}) *Tool {
	return &Tool{def: Definition{Name: name, Description: description, InputSchema: schema}}
}

// Handler attaches the implementation and returns the tool.
func (t *Tool) Handler(fn HandlerFunc) *Tool {
	t.handler = fn
	return t
}

func (t *Tool) Name() string           { return t.def.Name }
func (t *Tool) Definition() Definition { return t.def }

// Registry is a closed set of named capabilities. Registration happens at
// startup; dispatch is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...*Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Duplicate names and nil handlers are programmer
// errors rejected up front.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.def.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if t.handler == nil {
		return fmt.Errorf("tool %s has no handler", t.def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.def.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.def.Name)
	}
	r.tools[t.def.Name] = t
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns every tool definition, sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch executes one invocation and always returns a ToolResult: an
// unknown tool name, a handler error, or a handler panic all become error
// observations. The agent loop receives a result for every invocation it
// issued, no exceptions.
func (r *Registry) Dispatch(ctx context.Context, namespace string, inv core.ToolInvocation) (result core.ToolResult) {
	result = core.ToolResult{CallID: inv.CallID}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[TOOLS] panic in %s: %v", inv.Name, rec)
			result.Observation = fmt.Sprintf("tool %s panicked: %v", inv.Name, rec)
			result.IsError = true
		}
	}()

	tool, ok := r.Get(inv.Name)
	if !ok {
		result.Observation = fmt.Sprintf("unknown tool: %s", inv.Name)
		result.IsError = true
		return result
	}

	observation, err := tool.handler(ctx, &Params{
		Namespace: namespace,
		CallID:    inv.CallID,
		Arguments: inv.Arguments,
	})
	if err != nil {
		execErr := &core.ToolExecutionError{Tool: inv.Name, Err: err}
		log.Printf("[TOOLS] %v", execErr)
		result.Observation = err.Error()
		result.IsError = true
		return result
	}

	result.Observation = observation
	return result
}
