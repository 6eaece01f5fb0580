package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StartSpec describes one sub-agent launch. Goal is a short label for
// tracking; Prompt is the complete task text the child loop is seeded with.
// Zero-valued fields inherit the parent scope's settings.
type StartSpec struct {
	Goal       string
	Prompt     string
	WorkingDir string
	Tools      *ToolSet

	Model         string
	SystemPrompt  string
	MaxIterations int
}

// AgentMessageOptions configures one Message call against a sub-agent.
type AgentMessageOptions struct {
	Guidance  *string
	Terminate bool
}

// AgentMessageResult is the poll/interaction response for a sub-agent.
// Output carries the lines captured since the previous read (drain-on-read);
// Result carries the final result once the child loop has finished.
type AgentMessageResult struct {
	AgentID    string `json:"agentId"`
	Status     string `json:"status,omitempty"`
	Output     string `json:"output,omitempty"`
	Completed  bool   `json:"completed"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	Terminated bool   `json:"terminated,omitempty"`
}

// TerminateResult reports a sub-agent termination.
type TerminateResult struct {
	AgentID    string `json:"agentId"`
	Terminated bool   `json:"terminated"`
	Error      string `json:"error,omitempty"`
}

// SubAgentState tracks one running or finished sub-agent: its scope, its
// cancellation handle, and the captured output waiting to be read.
type SubAgentState struct {
	ID         string
	Goal       string
	WorkingDir string

	tc      *ToolContext
	cancel  context.CancelFunc
	capture *LogCapture
	unsub   func()
	done    chan struct{}

	mu        sync.Mutex
	aborted   bool
	completed bool
	err       string
	result    string
}

// Done is closed when the sub-agent's loop has returned.
func (s *SubAgentState) Done() <-chan struct{} { return s.done }

// markAborted flags the agent as terminated. Loop results that arrive after
// this point are discarded.
func (s *SubAgentState) markAborted() {
	s.mu.Lock()
	s.aborted = true
	s.completed = true
	s.mu.Unlock()
}

func (s *SubAgentState) snapshot() (completed bool, errText, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, s.err, s.result
}

// SubAgentManager launches and supervises nested agents for one scope. Each
// sub-agent runs a detached loop in its own child scope with fresh
// registries; terminating it cascades through everything the child owns.
type SubAgentManager struct {
	parent   *ToolContext
	registry *Registry

	mu     sync.Mutex
	agents map[string]*SubAgentState
}

// NewSubAgentManager creates a manager bound to its scope's registry.
func NewSubAgentManager(parent *ToolContext, registry *Registry) *SubAgentManager {
	m := &SubAgentManager{
		parent:   parent,
		registry: registry,
		agents:   make(map[string]*SubAgentState),
	}
	registry.OnCleanup(m.terminateRecord, StatusTerminated)
	return m
}

// Registry exposes the manager's lifecycle registry.
func (m *SubAgentManager) Registry() *Registry { return m.registry }

// Agent returns the tracked state for an agent id.
func (m *SubAgentManager) Agent(id string) (*SubAgentState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.agents[id]
	return st, ok
}

// Start launches a sub-agent in a detached loop and returns its id. The
// child gets its own scope with fresh registries and keeps running after
// the spawning tool call returns; the caller polls it with Message. The
// depth cap and an empty prompt are the only synchronous failures.
func (m *SubAgentManager) Start(ctx context.Context, spec StartSpec) (string, error) {
	cfg := m.parent.LoopCfg.withDefaults()
	childDepth := m.parent.Depth + 1
	if childDepth > cfg.MaxDepth {
		return "", fmt.Errorf("maximum agent depth %d exceeded", cfg.MaxDepth)
	}
	if spec.Prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	if spec.SystemPrompt != "" {
		cfg.SystemPrompt = spec.SystemPrompt
	}
	if spec.Model != "" {
		cfg.Model = spec.Model
	}
	if spec.MaxIterations > 0 {
		cfg.MaxIterations = spec.MaxIterations
	}

	rec := m.registry.Register(map[string]any{"goal": spec.Goal})
	id := rec.ID

	childTC := m.parent.Child(id, spec.WorkingDir)
	if spec.Tools != nil {
		childTC.Tools = spec.Tools
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = BuildSystemPrompt(childTC)
	}

	capture := NewLogCapture(childTC.Depth)
	unsub := childTC.Bus.Subscribe(capture)

	// Detached from the spawning call's context: the sub-agent outlives the
	// tool call that started it.
	runCtx, cancel := context.WithCancel(context.Background())

	st := &SubAgentState{
		ID:         id,
		Goal:       spec.Goal,
		WorkingDir: childTC.WorkingDir,
		tc:         childTC,
		cancel:     cancel,
		capture:    capture,
		unsub:      unsub,
		done:       make(chan struct{}),
	}
	m.mu.Lock()
	m.agents[id] = st
	m.mu.Unlock()

	loop := NewLoop(cfg, childTC)
	go m.run(runCtx, st, loop, spec.Prompt)

	return id, nil
}

func (m *SubAgentManager) run(ctx context.Context, st *SubAgentState, loop *Loop, prompt string) {
	defer close(st.done)
	result, err := loop.Run(ctx, prompt)

	st.mu.Lock()
	if st.aborted {
		// Terminated while running; whatever the loop produced is dropped.
		st.mu.Unlock()
		return
	}
	st.completed = true
	switch {
	case err != nil:
		st.err = err.Error()
	case result.Completed:
		st.result = result.Result
	default:
		st.err = result.Result
	}
	errText, resText := st.err, st.result
	st.mu.Unlock()

	if errText != "" {
		m.registry.UpdateStatus(st.ID, StatusError, map[string]any{
			"error":        errText,
			"interactions": result.Interactions,
		})
		return
	}
	m.registry.UpdateStatus(st.ID, StatusCompleted, map[string]any{
		"result":       resText,
		"interactions": result.Interactions,
	})
}

// Message polls a sub-agent and optionally queues guidance for it or
// terminates it. Output drains the lines captured from the child since the
// previous read. Guidance is consumed by the child loop at the top of its
// next iteration. Terminate aborts the child and cascades through its
// resources before replying.
func (m *SubAgentManager) Message(ctx context.Context, id string, opts AgentMessageOptions) AgentMessageResult {
	m.mu.Lock()
	st, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return AgentMessageResult{AgentID: id, Error: (&UnknownIDError{ID: id}).Error()}
	}

	if opts.Terminate {
		tr := m.Terminate(ctx, id)
		return AgentMessageResult{
			AgentID:    id,
			Status:     string(StatusTerminated),
			Output:     strings.Join(st.capture.Drain(), "\n"),
			Completed:  true,
			Terminated: tr.Terminated,
			Error:      tr.Error,
		}
	}

	if opts.Guidance != nil && *opts.Guidance != "" {
		st.tc.Mailbox.Push(*opts.Guidance)
	}

	completed, errText, result := st.snapshot()

	status := ""
	if rec, ok := m.registry.Get(id); ok {
		status = string(rec.Status)
	}

	return AgentMessageResult{
		AgentID:   id,
		Status:    status,
		Output:    strings.Join(st.capture.Drain(), "\n"),
		Completed: completed,
		Result:    result,
		Error:     errText,
	}
}

// Terminate aborts a sub-agent: cancel its loop, release everything its
// scope owns (nested agents included), and mark the record TERMINATED.
// Results arriving after termination are discarded.
func (m *SubAgentManager) Terminate(ctx context.Context, id string) TerminateResult {
	m.mu.Lock()
	st, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return TerminateResult{AgentID: id, Error: (&UnknownIDError{ID: id}).Error()}
	}

	st.markAborted()
	st.cancel()
	st.tc.CleanupAll(ctx)
	m.registry.UpdateStatus(id, StatusTerminated, map[string]any{"aborted": true})
	return TerminateResult{AgentID: id, Terminated: true}
}

// terminateRecord is the registry cleanup hook for still-running agents.
func (m *SubAgentManager) terminateRecord(ctx context.Context, rec Record) error {
	m.mu.Lock()
	st, ok := m.agents[rec.ID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	st.markAborted()
	st.cancel()
	st.tc.CleanupAll(ctx)
	return nil
}

// Cleanup terminates every RUNNING sub-agent, then sweeps the scopes of
// agents that already finished on their own, in case they left resources
// running.
func (m *SubAgentManager) Cleanup(ctx context.Context) {
	m.registry.Cleanup(ctx)

	m.mu.Lock()
	states := make([]*SubAgentState, 0, len(m.agents))
	for _, st := range m.agents {
		states = append(states, st)
	}
	m.mu.Unlock()

	for _, st := range states {
		st.cancel()
		st.tc.CleanupAll(ctx)
	}
}

// DropState forgets retained agent state for swept registry records and
// releases their log subscriptions.
func (m *SubAgentManager) DropState(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if st, ok := m.agents[id]; ok && st.unsub != nil {
			st.unsub()
		}
		delete(m.agents, id)
	}
}
