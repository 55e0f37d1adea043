package engine

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = `You are a job application assistant. You help the user find roles,
tailor applications to their background, and keep track of listings they
care about.

You have tools for searching the user's professional background, reading
work-history entries, and saving job listings. Use them when the answer
depends on the user's actual background; answer directly when it does not.

When a tool call fails you will see its error result. Never describe a
failed operation as if it succeeded. State plainly that it failed and
what you did or could not do instead.`

// correctiveNudge re-prompts a model that claimed success over a failed
// tool call. One corrective round is allowed before the loop surfaces
// the failure itself.
const correctiveNudge = `One of the tool calls above failed. Your answer must acknowledge the
failure honestly. Rewrite it: say what failed and do not present the
failed operation as done.`

// clarifyingNudge re-prompts a model whose completion fit neither
// response variant.
const clarifyingNudge = `Your last response was empty or ambiguous. Respond with either a final
answer for the user or a tool call, not neither.`

// renderSystem appends retrieved background snippets to the system
// prompt so the model sees them before deciding anything.
func renderSystem(req Request) string {
	system := req.System
	if system == "" {
		system = DefaultSystemPrompt
	}
	if len(req.Context) == 0 {
		return system
	}

	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\nRelevant background for this user:\n")
	for _, doc := range req.Context {
		fmt.Fprintf(&b, "- [%s/%s] %s\n", doc.SourceType, doc.SourceID, doc.Text)
	}
	return b.String()
}

// failureMarkers are the phrasings accepted as acknowledging a failed
// tool call. Deliberately loose: the point is catching answers that
// pretend nothing went wrong, not grading prose.
var failureMarkers = []string{
	"error",
	"fail",
	"could not",
	"couldn't",
	"unable",
	"wasn't able",
	"was not able",
	"did not work",
	"didn't work",
	"not saved",
	"problem",
	"issue",
}

// acknowledgesFailure reports whether an answer admits that something
// went wrong.
func acknowledgesFailure(answer string) bool {
	lower := strings.ToLower(answer)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// lastFailedStep returns the most recent error observation, if any.
func lastFailedStep(steps []Step) (Step, bool) {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Result.IsError {
			return steps[i], true
		}
	}
	return Step{}, false
}

// failureFallback is the answer surfaced when the model keeps claiming
// success over a failed tool call.
func failureFallback(step Step) string {
	return fmt.Sprintf("The %s tool call failed (%s), so I could not complete that part of your request.",
		step.Invocation.Name, strings.TrimSpace(step.Result.Observation))
}
