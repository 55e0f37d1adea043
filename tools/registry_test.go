package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/applymate/agent-go/core"
)

func echoTool(name string) *Tool {
	return New(name, "echoes its input", ObjectSchema(map[string]interface{}{
		"text": StringProperty("text to echo"),
	}, "text")).Handler(func(ctx context.Context, p *Params) (string, error) {
		var args struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(p.Arguments, &args); err != nil {
			return "", err
		}
		return args.Text, nil
	})
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r, err := NewRegistry(echoTool("echo"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register(echoTool("echo")); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegistryRejectsHandlerlessTool(t *testing.T) {
	if _, err := NewRegistry(New("bare", "no handler", nil)); err == nil {
		t.Fatal("expected registration without handler to fail")
	}
}

func TestDefinitionsAreSorted(t *testing.T) {
	r, err := NewRegistry(echoTool("zeta"), echoTool("alpha"), echoTool("mid"))
	if err != nil {
		t.Fatal(err)
	}
	defs := r.Definitions()
	if len(defs) != 3 || defs[0].Name != "alpha" || defs[2].Name != "zeta" {
		t.Errorf("definitions not sorted: %+v", defs)
	}
}

func TestDispatchSuccess(t *testing.T) {
	r, _ := NewRegistry(echoTool("echo"))
	result := r.Dispatch(context.Background(), "alice", core.ToolInvocation{
		Name:      "echo",
		Arguments: json.RawMessage(`{"text":"hello"}`),
		CallID:    "c1",
	})
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Observation)
	}
	if result.CallID != "c1" || result.Observation != "hello" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r, _ := NewRegistry(echoTool("echo"))
	result := r.Dispatch(context.Background(), "alice", core.ToolInvocation{
		Name:   "missing",
		CallID: "c1",
	})
	if !result.IsError {
		t.Fatal("unknown tool must produce an error result")
	}
	if !strings.Contains(result.Observation, "unknown tool") {
		t.Errorf("observation should name the failure: %s", result.Observation)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	failing := New("fail", "always fails", nil).Handler(func(ctx context.Context, p *Params) (string, error) {
		return "", errors.New("backend unavailable")
	})
	r, _ := NewRegistry(failing)

	result := r.Dispatch(context.Background(), "alice", core.ToolInvocation{Name: "fail", CallID: "c1"})
	if !result.IsError {
		t.Fatal("handler error must produce an error result")
	}
	if result.Observation != "backend unavailable" {
		t.Errorf("observation must carry the handler error, got %q", result.Observation)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	panicking := New("boom", "panics", nil).Handler(func(ctx context.Context, p *Params) (string, error) {
		panic("nil dereference somewhere deep")
	})
	r, _ := NewRegistry(panicking)

	result := r.Dispatch(context.Background(), "alice", core.ToolInvocation{Name: "boom", CallID: "c1"})
	if !result.IsError {
		t.Fatal("panic must surface as an error result, not crash the loop")
	}
	if !strings.Contains(result.Observation, "panicked") {
		t.Errorf("observation should mention the panic: %s", result.Observation)
	}
	if result.CallID != "c1" {
		t.Errorf("call id lost through recovery: %+v", result)
	}
}

func TestDispatchPassesNamespace(t *testing.T) {
	var seen string
	spy := New("spy", "records namespace", nil).Handler(func(ctx context.Context, p *Params) (string, error) {
		seen = p.Namespace
		return "ok", nil
	})
	r, _ := NewRegistry(spy)

	r.Dispatch(context.Background(), "user-42", core.ToolInvocation{Name: "spy", CallID: "c1"})
	if seen != "user-42" {
		t.Errorf("expected namespace user-42, got %q", seen)
	}
}
