package engine

import (
	"strings"
	"testing"

	"github.com/applymate/agent-go/core"
)

func TestRenderSystemDefaultsAndContext(t *testing.T) {
	plain := renderSystem(Request{})
	if plain != DefaultSystemPrompt {
		t.Error("empty request should render the default prompt unchanged")
	}

	withDocs := renderSystem(Request{
		System: "Custom prompt.",
		Context: []core.RetrievedDocument{
			{Text: "Go services at Meridian", SourceType: "experience", SourceID: "exp-1"},
		},
	})
	if !strings.HasPrefix(withDocs, "Custom prompt.") {
		t.Errorf("custom prompt lost: %q", withDocs)
	}
	if !strings.Contains(withDocs, "[experience/exp-1] Go services at Meridian") {
		t.Errorf("context snippet missing: %q", withDocs)
	}
}

func TestAcknowledgesFailure(t *testing.T) {
	cases := []struct {
		answer string
		want   bool
	}{
		{"The save failed because the service was down.", true},
		{"I could not reach the profile service.", true},
		{"Sorry, I wasn't able to save that listing.", true},
		{"There was an error saving the listing.", true},
		{"Done! Your listing is saved.", false},
		{"All set. I saved the listing and updated your tracker.", false},
	}
	for _, tc := range cases {
		if got := acknowledgesFailure(tc.answer); got != tc.want {
			t.Errorf("acknowledgesFailure(%q) = %t, want %t", tc.answer, got, tc.want)
		}
	}
}

func TestLastFailedStep(t *testing.T) {
	steps := []Step{
		{Result: core.ToolResult{CallID: "c1", IsError: true, Observation: "first failure"}},
		{Result: core.ToolResult{CallID: "c2"}},
		{Result: core.ToolResult{CallID: "c3", IsError: true, Observation: "second failure"}},
	}
	failed, ok := lastFailedStep(steps)
	if !ok || failed.Result.CallID != "c3" {
		t.Errorf("expected most recent failure, got %+v (ok=%t)", failed, ok)
	}

	if _, ok := lastFailedStep(steps[1:2]); ok {
		t.Error("no failures should report ok=false")
	}
}

func TestFailureFallbackNamesToolAndCause(t *testing.T) {
	msg := failureFallback(Step{
		Invocation: core.ToolInvocation{Name: "save_job_listing"},
		Result:     core.ToolResult{Observation: "profile service down", IsError: true},
	})
	if !strings.Contains(msg, "save_job_listing") || !strings.Contains(msg, "profile service down") {
		t.Errorf("fallback must name the tool and cause: %q", msg)
	}
}
