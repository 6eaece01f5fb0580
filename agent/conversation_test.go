package agent

import (
	"testing"

	"github.com/okenlabs/foreman/llm"
)

func TestConversationSeedOnlyWhenEmpty(t *testing.T) {
	c := NewConversation()

	c.Seed(llm.UserMessage("first task"))
	if c.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", c.Len())
	}

	// A second seed is a no-op once history exists.
	c.Seed(llm.UserMessage("second task"))
	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected seed to be ignored, got %d messages", len(msgs))
	}
	if msgs[0].TextContent() != "first task" {
		t.Errorf("expected original seed, got %q", msgs[0].TextContent())
	}
}

func TestConversationAppend(t *testing.T) {
	c := NewConversation()
	c.Seed(llm.UserMessage("task"))
	c.Append(llm.AssistantMessage("thinking"), llm.ToolResultMessage("c1", `{"ok":true}`, false))

	msgs := c.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != llm.RoleAssistant || msgs[2].Role != llm.RoleTool {
		t.Errorf("unexpected roles: %s, %s", msgs[1].Role, msgs[2].Role)
	}
}

func TestConversationReplace(t *testing.T) {
	c := NewConversation()
	c.Seed(llm.UserMessage("task"))
	c.Append(llm.AssistantMessage("a"), llm.AssistantMessage("b"))

	c.Replace(llm.UserMessage("fresh context"))

	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after replace, got %d", len(msgs))
	}
	if msgs[0].TextContent() != "fresh context" {
		t.Errorf("expected replacement message, got %q", msgs[0].TextContent())
	}

	// Replace does not block a later append.
	c.Append(llm.AssistantMessage("continuing"))
	if c.Len() != 2 {
		t.Errorf("expected 2 messages, got %d", c.Len())
	}
}

func TestConversationMessagesIsCopy(t *testing.T) {
	c := NewConversation()
	c.Seed(llm.UserMessage("task"))

	msgs := c.Messages()
	msgs[0] = llm.UserMessage("tampered")

	if c.Messages()[0].TextContent() != "task" {
		t.Error("mutating the returned slice leaked into the conversation")
	}
}

func TestMailboxDrainOrder(t *testing.T) {
	m := NewMailbox()
	m.Push("one")
	m.Push("two")
	m.Push("three")

	if m.Len() != 3 {
		t.Fatalf("expected 3 queued, got %d", m.Len())
	}

	got := m.Drain()
	if len(got) != 3 || got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Errorf("expected arrival order, got %v", got)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty mailbox after drain, got %d", m.Len())
	}
	if again := m.Drain(); again != nil {
		t.Errorf("expected nil on empty drain, got %v", again)
	}
}
