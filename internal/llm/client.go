// Package llm holds the language-model adapter: the Client interface the
// graph steps depend on, the Gemini REST implementation, and the structured
// prompt/response plumbing for the planner, analyst, critic, and
// synthesizer agents. Agents validate model output defensively; a malformed
// response surfaces as an error for the calling step to retry or absorb,
// never as a panic or a half-parsed struct.
package llm

import (
	"context"
	"strings"
)

// Client is the completion surface the agents program against.
type Client interface {
	// Complete sends a bare prompt and returns the completion text.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt under a system instruction.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// CompleteJSON requests a JSON response. The schema hint describes the
	// expected shape; it steers the model but is not enforced, so callers
	// must still parse defensively.
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt, schemaHint string) (string, error)
}

// CleanJSONResponse strips markdown code fences from a model response and,
// when prose surrounds the payload, slices out the outermost JSON value.
func CleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	if len(resp) > 0 && resp[0] != '{' && resp[0] != '[' {
		start := strings.IndexAny(resp, "{[")
		end := strings.LastIndexAny(resp, "}]")
		if start >= 0 && end > start {
			resp = resp[start : end+1]
		}
	}
	return resp
}

// CleanCodeResponse strips markdown code fences from a generated code
// snippet, tolerating a language tag on the opening fence.
func CleanCodeResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	if strings.HasPrefix(resp, "```") {
		if idx := strings.Index(resp, "\n"); idx >= 0 {
			resp = resp[idx+1:]
		} else {
			resp = strings.TrimPrefix(resp, "```")
		}
	}
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}
