package agent

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ShellConfig holds shell supervisor settings.
type ShellConfig struct {
	DefaultTimeoutMs int    // sync-to-async switch when the caller names none
	MaxTimeoutMs     int    // upper clamp on caller-specified timeouts
	Shell            string // interpreter used for commands
}

// DefaultShellConfig returns the standard settings: 10s default timeout,
// 10m ceiling, /bin/sh.
func DefaultShellConfig() ShellConfig {
	return ShellConfig{
		DefaultTimeoutMs: 10000,
		MaxTimeoutMs:     600000,
		Shell:            "/bin/sh",
	}
}

// StartOptions configures one shell start.
type StartOptions struct {
	// TimeoutMs is how long to wait for the process before switching the
	// result to async mode. Nil means the configured default; zero forces
	// async mode immediately.
	TimeoutMs  *int
	ShowStdin  bool
	ShowStdout bool
	WorkingDir string
}

// StartResult is returned by Start in either sync or async mode.
type StartResult struct {
	Mode       string `json:"mode"` // "sync" or "async"
	InstanceID string `json:"instanceId"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   *int   `json:"exitCode,omitempty"` // sync mode only
	Error      string `json:"error,omitempty"`
}

// MessageOptions configures one Message call against a tracked process.
type MessageOptions struct {
	Stdin  *string
	Signal *string
}

// MessageResult is the poll/interaction response for a tracked process.
// Stdout and Stderr carry output produced since the previous read.
type MessageResult struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Completed bool   `json:"completed"`
	Signaled  bool   `json:"signaled"`
	ExitCode  *int   `json:"exitCode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// lineBuffer accumulates output lines with a drain cursor so reads return
// only what arrived since the previous read.
type lineBuffer struct {
	mu     sync.Mutex
	lines  []string
	cursor int
}

func (b *lineBuffer) append(line string) {
	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()
}

// drain returns all unread lines joined by newlines and advances the cursor.
func (b *lineBuffer) drain() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cursor >= len(b.lines) {
		return ""
	}
	out := strings.Join(b.lines[b.cursor:], "\n")
	b.cursor = len(b.lines)
	return out
}

// ProcessState tracks one supervised OS process. It is created at spawn,
// mutated by the exit monitor, and retained after completion for later
// polling.
type ProcessState struct {
	id         string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *lineBuffer
	stderr     *lineBuffer
	showStdin  bool
	showStdout bool
	done       chan struct{}

	mu          sync.Mutex
	completed   bool
	signaled    bool
	terminating bool
	exitCode    int
}

// Done is closed when the process has exited and its output is fully read.
func (p *ProcessState) Done() <-chan struct{} { return p.done }

func (p *ProcessState) snapshot() (completed, signaled bool, exitCode int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed, p.signaled, p.exitCode
}

// ShellSupervisor spawns and supervises OS subprocesses for one agent scope.
type ShellSupervisor struct {
	cfg        ShellConfig
	workingDir string
	registry   *Registry
	bus        *EventBus
	depth      int

	mu    sync.Mutex
	procs map[string]*ProcessState
}

// NewShellSupervisor creates a supervisor bound to its scope's registry.
func NewShellSupervisor(cfg ShellConfig, workingDir string, registry *Registry, bus *EventBus, depth int) *ShellSupervisor {
	if cfg.Shell == "" {
		cfg = DefaultShellConfig()
	}
	s := &ShellSupervisor{
		cfg:        cfg,
		workingDir: workingDir,
		registry:   registry,
		bus:        bus,
		depth:      depth,
		procs:      make(map[string]*ProcessState),
	}
	registry.OnCleanup(s.terminateRecord, StatusTerminated)
	return s
}

// Registry exposes the supervisor's lifecycle registry.
func (s *ShellSupervisor) Registry() *Registry { return s.registry }

// Process returns the tracked state for an instance id.
func (s *ShellSupervisor) Process(id string) (*ProcessState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.procs[id]
	return ps, ok
}

// Start spawns command under the configured shell and races process exit
// against the timeout. If the process exits first the result is sync mode
// with the accumulated output; otherwise it is async mode with the output so
// far, leaving the process running and tracked. A zero timeout forces async
// mode immediately. Spawn failures come back as a sync-mode error result.
func (s *ShellSupervisor) Start(ctx context.Context, command string, opts StartOptions) StartResult {
	timeoutMs := s.cfg.DefaultTimeoutMs
	if opts.TimeoutMs != nil {
		timeoutMs = *opts.TimeoutMs
		if timeoutMs < 0 {
			timeoutMs = 0
		}
		if timeoutMs > s.cfg.MaxTimeoutMs {
			timeoutMs = s.cfg.MaxTimeoutMs
		}
	}

	rec := s.registry.Register(map[string]any{"command": command})
	id := rec.ID

	cmd := exec.Command(s.cfg.Shell, "-c", command)
	cmd.Dir = opts.WorkingDir
	if cmd.Dir == "" {
		cmd.Dir = s.workingDir
	}
	// Own process group so signals and kills reach the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return s.spawnFailure(id, command, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return s.spawnFailure(id, command, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return s.spawnFailure(id, command, err)
	}

	if err := cmd.Start(); err != nil {
		return s.spawnFailure(id, command, err)
	}

	ps := &ProcessState{
		id:         id,
		cmd:        cmd,
		stdin:      stdinPipe,
		stdout:     &lineBuffer{},
		stderr:     &lineBuffer{},
		showStdin:  opts.ShowStdin,
		showStdout: opts.ShowStdout,
		done:       make(chan struct{}),
	}
	s.mu.Lock()
	s.procs[id] = ps
	s.mu.Unlock()

	var readers sync.WaitGroup
	readers.Add(2)
	go s.readLines(&readers, stdoutPipe, ps.stdout, ps, "")
	go s.readLines(&readers, stderrPipe, ps.stderr, ps, "stderr> ")
	go s.monitor(ps, &readers)

	if timeoutMs == 0 {
		return StartResult{
			Mode:       "async",
			InstanceID: id,
			Stdout:     ps.stdout.drain(),
			Stderr:     ps.stderr.drain(),
		}
	}

	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ps.done:
		_, _, exitCode := ps.snapshot()
		code := exitCode
		return StartResult{
			Mode:       "sync",
			InstanceID: id,
			Stdout:     ps.stdout.drain(),
			Stderr:     ps.stderr.drain(),
			ExitCode:   &code,
		}
	case <-timer.C:
	case <-ctx.Done():
	}

	return StartResult{
		Mode:       "async",
		InstanceID: id,
		Stdout:     ps.stdout.drain(),
		Stderr:     ps.stderr.drain(),
	}
}

func (s *ShellSupervisor) spawnFailure(id, command string, err error) StartResult {
	spawnErr := &ProcessSpawnError{Command: command, Err: err}
	s.registry.UpdateStatus(id, StatusError, map[string]any{"error": spawnErr.Error()})
	code := -1
	return StartResult{
		Mode:       "sync",
		InstanceID: id,
		ExitCode:   &code,
		Error:      spawnErr.Error(),
	}
}

// readLines scans one pipe into a buffer, echoing to the bus when the
// process was started with output visibility.
func (s *ShellSupervisor) readLines(wg *sync.WaitGroup, pipe io.Reader, buf *lineBuffer, ps *ProcessState, prefix string) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.append(line)
		if ps.showStdout {
			s.bus.emit(LevelLog, ps.id, s.depth, prefix+line)
		}
	}
}

// monitor waits for the readers and the process, records the outcome, and
// updates the registry: exit 0 is COMPLETED, anything else ERROR.
func (s *ShellSupervisor) monitor(ps *ProcessState, readers *sync.WaitGroup) {
	readers.Wait()
	err := ps.cmd.Wait()

	exitCode := 0
	killedBySignal := false
	if err != nil {
		exitCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				if ws.Signaled() {
					killedBySignal = true
					exitCode = 128 + int(ws.Signal())
				} else {
					exitCode = ws.ExitStatus()
				}
			} else {
				exitCode = exitErr.ExitCode()
			}
		}
	}

	ps.mu.Lock()
	ps.completed = true
	ps.exitCode = exitCode
	if killedBySignal {
		ps.signaled = true
	}
	signaled := ps.signaled
	terminating := ps.terminating
	ps.mu.Unlock()

	// A supervisor-initiated kill leaves the final status to cleanup, which
	// marks the record TERMINATED.
	if !terminating {
		status := StatusCompleted
		if exitCode != 0 {
			status = StatusError
		}
		s.registry.UpdateStatus(ps.id, status, map[string]any{
			"exitCode": exitCode,
			"signaled": signaled,
		})
	}
	close(ps.done)
}

// Message writes stdin and/or delivers a signal to a tracked process and
// returns its incremental output. Unknown ids yield a structured error
// result. Signaling an already-completed process is a no-op success.
func (s *ShellSupervisor) Message(ctx context.Context, id string, opts MessageOptions) MessageResult {
	s.mu.Lock()
	ps, ok := s.procs[id]
	s.mu.Unlock()
	if !ok {
		return MessageResult{Error: (&UnknownIDError{ID: id}).Error()}
	}

	var result MessageResult

	if opts.Stdin != nil {
		completed, _, _ := ps.snapshot()
		if !completed {
			data := *opts.Stdin
			if !strings.HasSuffix(data, "\n") {
				data += "\n"
			}
			if _, err := io.WriteString(ps.stdin, data); err != nil {
				result.Error = "stdin write failed: " + err.Error()
			} else if ps.showStdin {
				s.bus.emit(LevelLog, id, s.depth, "stdin> "+strings.TrimSuffix(data, "\n"))
			}
		}
	}

	if opts.Signal != nil {
		completed, _, _ := ps.snapshot()
		if completed {
			// Already gone; report the signal as delivered.
			result.Signaled = true
		} else if sig, ok := parseSignal(*opts.Signal); !ok {
			result.Error = "unknown signal " + *opts.Signal
		} else {
			ps.mu.Lock()
			ps.signaled = true
			ps.mu.Unlock()
			if err := syscall.Kill(-ps.cmd.Process.Pid, sig); err != nil && result.Error == "" {
				result.Error = "signal delivery failed: " + err.Error()
			}
			result.Signaled = true
		}
	}

	completed, signaled, exitCode := ps.snapshot()
	result.Stdout = ps.stdout.drain()
	result.Stderr = ps.stderr.drain()
	result.Completed = completed
	result.Signaled = result.Signaled || signaled
	if completed {
		code := exitCode
		result.ExitCode = &code
	}
	return result
}

// terminateRecord is the registry cleanup hook: kill the whole process
// group of a still-running record.
func (s *ShellSupervisor) terminateRecord(ctx context.Context, rec Record) error {
	s.mu.Lock()
	ps, ok := s.procs[rec.ID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	completed, _, _ := ps.snapshot()
	if completed {
		return nil
	}

	ps.mu.Lock()
	ps.signaled = true
	ps.terminating = true
	ps.mu.Unlock()

	if err := syscall.Kill(-ps.cmd.Process.Pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return err
	}

	// Give the exit monitor a moment so the record is settled when the
	// cascade returns; best-effort only.
	select {
	case <-ps.done:
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
	}
	return nil
}

// Cleanup terminates every RUNNING process in this scope.
func (s *ShellSupervisor) Cleanup(ctx context.Context) {
	s.registry.Cleanup(ctx)
}

// DropState forgets retained process state for swept registry records.
func (s *ShellSupervisor) DropState(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.procs, id)
	}
}

// parseSignal maps a signal name (with or without the SIG prefix) to the
// OS signal.
func parseSignal(name string) (syscall.Signal, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "SIG")
	switch key {
	case "TERM":
		return syscall.SIGTERM, true
	case "KILL":
		return syscall.SIGKILL, true
	case "INT":
		return syscall.SIGINT, true
	case "HUP":
		return syscall.SIGHUP, true
	case "QUIT":
		return syscall.SIGQUIT, true
	case "USR1":
		return syscall.SIGUSR1, true
	case "USR2":
		return syscall.SIGUSR2, true
	case "STOP":
		return syscall.SIGSTOP, true
	case "CONT":
		return syscall.SIGCONT, true
	default:
		return 0, false
	}
}
