package agent

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/okenlabs/foreman/llm"
)

func assistantCalls(calls ...llm.ToolCall) llm.Message {
	var content []llm.ContentPart
	for _, c := range calls {
		content = append(content, llm.ToolCallPart(c.ID, c.Name, c.Arguments))
	}
	return llm.Message{Role: llm.RoleAssistant, Content: content}
}

func TestCallSignature(t *testing.T) {
	a := callSignature("readFile", json.RawMessage(`{"path":"a.go"}`))
	b := callSignature("readFile", json.RawMessage(`{"path":"a.go"}`))
	c := callSignature("readFile", json.RawMessage(`{"path":"b.go"}`))

	if a != b {
		t.Error("identical calls must share a signature")
	}
	if a == c {
		t.Error("different arguments must produce different signatures")
	}
	if sig := callSignature("grep", json.RawMessage(`{"path":"a.go"}`)); sig == a {
		t.Error("different tool names must produce different signatures")
	}
}

func TestRecentCallSignaturesOrder(t *testing.T) {
	history := []llm.Message{
		llm.UserMessage("task"),
		assistantCalls(tcall("1", "readFile", `{"path":"one"}`)),
		llm.ToolResultMessage("1", "{}", false),
		assistantCalls(tcall("2", "readFile", `{"path":"two"}`)),
		llm.ToolResultMessage("2", "{}", false),
		assistantCalls(tcall("3", "readFile", `{"path":"three"}`)),
	}

	sigs := recentCallSignatures(history, 2)
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(sigs))
	}
	// Chronological order: second call first.
	if sigs[0] != callSignature("readFile", json.RawMessage(`{"path":"two"}`)) {
		t.Errorf("unexpected first signature: %s", sigs[0])
	}
	if sigs[1] != callSignature("readFile", json.RawMessage(`{"path":"three"}`)) {
		t.Errorf("unexpected second signature: %s", sigs[1])
	}
}

func TestDetectLoopSingleCall(t *testing.T) {
	var history []llm.Message
	for i := 0; i < 10; i++ {
		history = append(history, assistantCalls(tcall("x", "shellList", "{}")))
	}
	if !DetectLoop(history, 10) {
		t.Error("expected a single repeated call to be detected")
	}
}

func TestDetectLoopPairPattern(t *testing.T) {
	var history []llm.Message
	for i := 0; i < 3; i++ {
		history = append(history,
			assistantCalls(tcall("a", "readFile", `{"path":"a.go"}`)),
			assistantCalls(tcall("b", "grep", `{"pattern":"x"}`)),
		)
	}
	if !DetectLoop(history, 6) {
		t.Error("expected an alternating pair to be detected")
	}
}

func TestDetectLoopTriplePattern(t *testing.T) {
	var history []llm.Message
	for i := 0; i < 2; i++ {
		history = append(history,
			assistantCalls(tcall("a", "readFile", `{"path":"a.go"}`)),
			assistantCalls(tcall("b", "grep", `{"pattern":"x"}`)),
			assistantCalls(tcall("c", "glob", `{"pattern":"*.go"}`)),
		)
	}
	if !DetectLoop(history, 6) {
		t.Error("expected a repeating triple to be detected")
	}
}

func TestDetectLoopVariedCalls(t *testing.T) {
	var history []llm.Message
	for i := 0; i < 10; i++ {
		history = append(history,
			assistantCalls(tcall("x", "readFile", fmt.Sprintf(`{"path":"file%d.go"}`, i))))
	}
	if DetectLoop(history, 10) {
		t.Error("distinct calls must not be flagged as a loop")
	}
}

func TestDetectLoopInsufficientHistory(t *testing.T) {
	history := []llm.Message{
		assistantCalls(tcall("x", "shellList", "{}")),
		assistantCalls(tcall("x", "shellList", "{}")),
	}
	if DetectLoop(history, 10) {
		t.Error("a short history must not trip detection")
	}
}

func TestDetectLoopIgnoresNonAssistantTurns(t *testing.T) {
	var history []llm.Message
	for i := 0; i < 4; i++ {
		history = append(history,
			assistantCalls(tcall("x", "shellList", "{}")),
			llm.ToolResultMessage("x", "[]", false),
			llm.UserMessage("keep going"),
		)
	}
	if !DetectLoop(history, 4) {
		t.Error("interleaved tool and user turns must not mask the pattern")
	}
}
