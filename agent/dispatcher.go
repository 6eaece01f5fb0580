package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/okenlabs/foreman/llm"
)

// Control tool names the dispatcher recognizes.
const (
	ToolSequenceComplete = "sequenceComplete"
	ToolAgentDone        = "agentDone"
	ToolRespawn          = "respawn"
)

func isCompletionTool(name string) bool {
	return name == ToolSequenceComplete || name == ToolAgentDone
}

// Respawn is the conversation-reset directive extracted from a respawn call.
type Respawn struct {
	Context string
}

// DispatchResult summarizes one batch.
type DispatchResult struct {
	SequenceCompleted bool
	CompletionResult  string
	ToolResults       []llm.ToolResult
	Respawn           *Respawn
}

// Dispatcher executes tool call batches against a scope.
type Dispatcher struct {
	tools *ToolSet
}

func NewDispatcher(tools *ToolSet) *Dispatcher {
	return &Dispatcher{tools: tools}
}

// Dispatch runs one batch of tool calls. An empty batch returns immediately
// with nothing completed. A respawn call preempts the whole batch: no other
// call runs, nothing is appended to the conversation, and the caller
// restarts from the respawn context. Otherwise all calls run concurrently,
// their results are appended to the conversation in batch order, and the
// batch is scanned for a completion call.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []llm.ToolCall, conv *Conversation, tc *ToolContext) DispatchResult {
	if len(calls) == 0 {
		return DispatchResult{}
	}

	for _, call := range calls {
		if call.Name != ToolRespawn {
			continue
		}
		args, _ := ParseArgs(call.Arguments)
		return DispatchResult{
			Respawn: &Respawn{Context: StringArgOr(args, "respawnContext", "")},
			ToolResults: []llm.ToolResult{{
				ToolCallID: call.ID,
				Content:    `{"respawned":true}`,
			}},
		}
	}

	results := make([]llm.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			content, isErr := d.executeOne(ctx, call, tc)
			results[i] = llm.ToolResult{ToolCallID: call.ID, Content: content, IsError: isErr}
		}(i, call)
	}
	wg.Wait()

	for i, r := range results {
		conv.Append(llm.ToolResultMessage(r.ToolCallID, r.Content, r.IsError))
		if r.IsError {
			tc.Bus.emit(LevelWarn, tc.OwnerID, tc.Depth, "tool "+calls[i].Name+" returned error result")
		}
	}

	dr := DispatchResult{ToolResults: results}
	for i, call := range calls {
		if !isCompletionTool(call.Name) {
			continue
		}
		dr.SequenceCompleted = true
		dr.CompletionResult = completionResultFrom(results[i].Content)
		break
	}
	return dr
}

func (d *Dispatcher) executeOne(ctx context.Context, call llm.ToolCall, tc *ToolContext) (string, bool) {
	tool, ok := d.tools.Lookup(call.Name)
	if !ok {
		return errorPayload("unknown tool " + call.Name), true
	}

	tc.Bus.emit(LevelDebug, tc.OwnerID, tc.Depth, "executing tool "+call.Name)
	out, err := tool.Execute(ctx, call.Arguments, tc)
	if err != nil {
		execErr := &ToolExecutionError{Tool: call.Name, Err: err}
		return errorPayload(execErr.Error()), true
	}
	if json.Valid([]byte(out)) {
		return out, false
	}
	// Tools speak JSON; anything else is normalized into an error-shaped
	// payload so the model always sees structured output.
	return errorPayload(out), false
}

// completionResultFrom pulls the result string out of a completion call's
// executed payload, falling back to the raw payload.
func completionResultFrom(content string) string {
	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err == nil {
		if s, ok := payload["result"].(string); ok {
			return s
		}
	}
	return content
}

func errorPayload(msg string) string {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"unserializable error"}`
	}
	return string(b)
}
