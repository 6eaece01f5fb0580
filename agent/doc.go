// Package agent implements an autonomous tool-calling agent loop with
// supervised background resources.
//
// Architecture:
//
//   - Loop: drives one agent. Each iteration sends the conversation to the
//     LLM, dispatches the returned tool calls, appends the results, and
//     repeats until a completion call or the iteration cap.
//   - Dispatcher: executes tool call batches concurrently, normalizes every
//     result to JSON, and recognizes the control calls (sequenceComplete,
//     agentDone, respawn).
//   - ToolContext: one agent scope. Carries the LLM client, event bus,
//     guidance mailbox, and the scope's resource supervisors. Nested agents
//     get child scopes with fresh registries; nothing is global.
//   - Registry: generic lifecycle tracking for background resources with
//     sticky terminal statuses and best-effort cleanup.
//   - ShellSupervisor, BrowserTracker, SubAgentManager: the three resource
//     supervisors. Shell commands race a timeout and fall back to background
//     tracking; browser sessions wrap an injected driver; sub-agents run
//     detached loops that cascade on termination.
//   - EventBus: typed log events flowing from child scopes to the root,
//     with per-subtree capture for sub-agent log collection.
//
// Quick start:
//
//	client := llm.NewClient(llm.WithAdapter(adapter))
//	bus := agent.NewEventBus()
//	tc := agent.NewToolContext(client, bus, workDir, agent.DefaultShellConfig(), nil)
//
//	loop := agent.NewLoop(agent.LoopConfig{Model: "claude-sonnet-4-5"}, tc)
//	res, err := loop.Run(ctx, "run the test suite and fix any failures")
//	defer tc.CleanupAll(context.Background())
package agent
