package agent

import (
	"context"

	"github.com/okenlabs/foreman/llm"
)

// Completer is the slice of the LLM client the loop needs. *llm.Client
// satisfies it; tests substitute scripted fakes.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// ToolContext carries one agent scope's capabilities: its LLM client, event
// bus, resource registries, and guidance mailbox. Every tool execution
// receives the scope's context explicitly; there is no global state, so
// nested agents and tests each get a fully isolated set.
type ToolContext struct {
	Client     Completer
	Bus        *EventBus
	OwnerID    string
	Depth      int
	WorkingDir string

	Shell   *ShellSupervisor
	Browser *BrowserTracker
	Agents  *SubAgentManager
	Mailbox *Mailbox

	Tools *ToolSet

	// LoopCfg is the loop configuration for this scope, recorded by
	// NewLoop and inherited by nested agents.
	LoopCfg LoopConfig

	shellCfg ShellConfig
	driver   BrowserDriver
}

// NewToolContext builds the root scope with the default tool set. The driver
// may be nil when browser automation is not available; the browser tools are
// then left out. Callers replace Tools to customize.
func NewToolContext(client Completer, bus *EventBus, workingDir string, shellCfg ShellConfig, driver BrowserDriver) *ToolContext {
	tc := newScope(client, bus, "root", 0, workingDir, shellCfg, driver)
	tc.Tools = DefaultToolSet(ToolSetOptions{Browser: driver != nil})
	return tc
}

func newScope(client Completer, bus *EventBus, ownerID string, depth int, workingDir string, shellCfg ShellConfig, driver BrowserDriver) *ToolContext {
	tc := &ToolContext{
		Client:     client,
		Bus:        bus,
		OwnerID:    ownerID,
		Depth:      depth,
		WorkingDir: workingDir,
		Mailbox:    NewMailbox(),
		shellCfg:   shellCfg,
		driver:     driver,
	}
	tc.Shell = NewShellSupervisor(shellCfg, workingDir, NewRegistry(KindShell, ownerID, depth, bus), bus, depth)
	tc.Browser = NewBrowserTracker(driver, NewRegistry(KindBrowser, ownerID, depth, bus))
	tc.Agents = NewSubAgentManager(tc, NewRegistry(KindAgent, ownerID, depth, bus))
	return tc
}

// Child creates the scope for a nested agent: a child event bus that relays
// upward, one level deeper, and fresh registries of its own. An empty
// workingDir inherits the parent's. The tool set is shared by default;
// tools act on whichever scope they are handed.
func (t *ToolContext) Child(ownerID, workingDir string) *ToolContext {
	if workingDir == "" {
		workingDir = t.WorkingDir
	}
	child := newScope(t.Client, t.Bus.Child(), ownerID, t.Depth+1, workingDir, t.shellCfg, t.driver)
	child.Tools = t.Tools
	child.LoopCfg = t.LoopCfg
	return child
}

// CleanupAll releases everything this scope owns: nested agents first so
// their own cascades run, then browser sessions, then shell processes.
func (t *ToolContext) CleanupAll(ctx context.Context) {
	t.Agents.Cleanup(ctx)
	t.Browser.Cleanup(ctx)
	t.Shell.Cleanup(ctx)
}
