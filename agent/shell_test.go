package agent

import (
	"context"
	"strings"
	"syscall"
	"testing"
	"time"
)

func newShellSupervisor(t *testing.T) *ShellSupervisor {
	t.Helper()
	return NewShellSupervisor(DefaultShellConfig(), t.TempDir(), newTestRegistry(KindShell), NewEventBus(), 0)
}

func msPtr(ms int) *int { return &ms }

func waitDone(t *testing.T, ps *ProcessState) {
	t.Helper()
	select {
	case <-ps.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not finish in time")
	}
}

func pollStdout(t *testing.T, sup *ShellSupervisor, id string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		res := sup.Message(context.Background(), id, MessageOptions{})
		if res.Stdout != "" {
			return res.Stdout
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no output before deadline")
	return ""
}

func TestShellStartSync(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "echo hello", StartOptions{})
	if res.Mode != "sync" {
		t.Fatalf("expected sync mode, got %s", res.Mode)
	}
	if res.Stdout != "hello" {
		t.Errorf("expected stdout %q, got %q", "hello", res.Stdout)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", res.ExitCode)
	}

	rec, ok := sup.Registry().Get(res.InstanceID)
	if !ok {
		t.Fatal("expected the process registered")
	}
	if rec.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", rec.Status)
	}
	if rec.Meta["exitCode"] != 0 {
		t.Errorf("expected exitCode meta, got %v", rec.Meta)
	}
}

func TestShellStartSyncNonZeroExit(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "exit 3", StartOptions{})
	if res.Mode != "sync" {
		t.Fatalf("expected sync mode, got %s", res.Mode)
	}
	if res.ExitCode == nil || *res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %v", res.ExitCode)
	}

	rec, _ := sup.Registry().Get(res.InstanceID)
	if rec.Status != StatusError {
		t.Errorf("expected ERROR for nonzero exit, got %s", rec.Status)
	}
}

func TestShellStartSwitchesToAsync(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "sleep 5", StartOptions{TimeoutMs: msPtr(50)})
	if res.Mode != "async" {
		t.Fatalf("expected async mode, got %s", res.Mode)
	}
	if res.InstanceID == "" {
		t.Fatal("expected an instance id")
	}
	if res.ExitCode != nil {
		t.Error("async results carry no exit code")
	}

	rec, _ := sup.Registry().Get(res.InstanceID)
	if rec.Status != StatusRunning {
		t.Errorf("expected RUNNING while backgrounded, got %s", rec.Status)
	}
	if _, ok := sup.Process(res.InstanceID); !ok {
		t.Error("expected the process tracked for later messages")
	}

	sup.Cleanup(context.Background())
}

func TestShellStartZeroTimeoutBackgroundsImmediately(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "echo fast", StartOptions{TimeoutMs: msPtr(0)})
	if res.Mode != "async" {
		t.Fatalf("expected async mode with zero timeout, got %s", res.Mode)
	}

	ps, _ := sup.Process(res.InstanceID)
	waitDone(t, ps)

	final := sup.Message(context.Background(), res.InstanceID, MessageOptions{})
	if !final.Completed {
		t.Error("expected completion on a later poll")
	}
	if final.ExitCode == nil || *final.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", final.ExitCode)
	}
	rec, _ := sup.Registry().Get(res.InstanceID)
	if rec.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", rec.Status)
	}
}

func TestShellStderrCaptured(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "echo oops 1>&2", StartOptions{})
	if res.Stderr != "oops" {
		t.Errorf("expected stderr %q, got %q", "oops", res.Stderr)
	}
	if res.Stdout != "" {
		t.Errorf("expected empty stdout, got %q", res.Stdout)
	}
}

func TestShellMessageStdinAndDrain(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "cat", StartOptions{TimeoutMs: msPtr(0)})
	id := res.InstanceID

	stdin := "hello cat"
	if w := sup.Message(context.Background(), id, MessageOptions{Stdin: &stdin}); w.Error != "" {
		t.Fatalf("unexpected stdin error: %s", w.Error)
	}

	if out := pollStdout(t, sup, id); out != "hello cat" {
		t.Errorf("expected the echoed line, got %q", out)
	}

	// Output is drain-on-read: the next poll returns nothing new.
	if again := sup.Message(context.Background(), id, MessageOptions{}); again.Stdout != "" {
		t.Errorf("expected empty second read, got %q", again.Stdout)
	}

	sig := "TERM"
	sup.Message(context.Background(), id, MessageOptions{Signal: &sig})

	ps, _ := sup.Process(id)
	waitDone(t, ps)

	final := sup.Message(context.Background(), id, MessageOptions{})
	if !final.Completed || !final.Signaled {
		t.Errorf("expected completed+signaled, got %+v", final)
	}
	if final.ExitCode == nil || *final.ExitCode != 128+int(syscall.SIGTERM) {
		t.Errorf("expected signal exit code, got %v", final.ExitCode)
	}
}

func TestShellSignalAfterCompletion(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "true", StartOptions{})
	if res.Mode != "sync" {
		t.Fatalf("expected sync mode, got %s", res.Mode)
	}

	// Signaling a finished process is a no-op success, not an error.
	sig := "TERM"
	msg := sup.Message(context.Background(), res.InstanceID, MessageOptions{Signal: &sig})
	if msg.Error != "" {
		t.Errorf("unexpected error: %s", msg.Error)
	}
	if !msg.Signaled || !msg.Completed {
		t.Errorf("expected signaled+completed, got %+v", msg)
	}
}

func TestShellMessageUnknownID(t *testing.T) {
	sup := newShellSupervisor(t)

	msg := sup.Message(context.Background(), "shell_nope", MessageOptions{})
	if msg.Error != "No resource found with ID shell_nope" {
		t.Errorf("unexpected error text: %q", msg.Error)
	}
}

func TestShellMessageUnknownSignal(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "sleep 5", StartOptions{TimeoutMs: msPtr(0)})
	sig := "NOSUCH"
	msg := sup.Message(context.Background(), res.InstanceID, MessageOptions{Signal: &sig})
	if !strings.Contains(msg.Error, "unknown signal") {
		t.Errorf("expected unknown signal error, got %q", msg.Error)
	}

	sup.Cleanup(context.Background())
}

func TestShellSpawnFailure(t *testing.T) {
	cfg := ShellConfig{DefaultTimeoutMs: 1000, MaxTimeoutMs: 10000, Shell: "/nonexistent-shell"}
	sup := NewShellSupervisor(cfg, t.TempDir(), newTestRegistry(KindShell), NewEventBus(), 0)

	res := sup.Start(context.Background(), "echo hi", StartOptions{})
	if res.Mode != "sync" {
		t.Fatalf("expected a sync error result, got %s", res.Mode)
	}
	if res.ExitCode == nil || *res.ExitCode != -1 {
		t.Errorf("expected exit code -1, got %v", res.ExitCode)
	}
	if !strings.Contains(res.Error, "failed to spawn process") {
		t.Errorf("unexpected error text: %q", res.Error)
	}

	rec, _ := sup.Registry().Get(res.InstanceID)
	if rec.Status != StatusError {
		t.Errorf("expected ERROR, got %s", rec.Status)
	}
}

func TestShellCleanupKillsRunning(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "sleep 30", StartOptions{TimeoutMs: msPtr(0)})
	id := res.InstanceID

	sup.Cleanup(context.Background())

	rec, _ := sup.Registry().Get(id)
	if rec.Status != StatusTerminated {
		t.Errorf("expected TERMINATED after cleanup, got %s", rec.Status)
	}

	ps, _ := sup.Process(id)
	waitDone(t, ps)
	completed, _, _ := ps.snapshot()
	if !completed {
		t.Error("expected the process reaped")
	}
}

func TestShellCleanupLeavesFinished(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "echo done", StartOptions{})
	sup.Cleanup(context.Background())

	rec, _ := sup.Registry().Get(res.InstanceID)
	if rec.Status != StatusCompleted {
		t.Errorf("cleanup must not rewrite finished records, got %s", rec.Status)
	}
}

func TestShellDropState(t *testing.T) {
	sup := newShellSupervisor(t)

	res := sup.Start(context.Background(), "true", StartOptions{})
	sup.DropState([]string{res.InstanceID})
	if _, ok := sup.Process(res.InstanceID); ok {
		t.Error("expected process state dropped")
	}
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		name string
		want syscall.Signal
		ok   bool
	}{
		{"TERM", syscall.SIGTERM, true},
		{"SIGKILL", syscall.SIGKILL, true},
		{"int", syscall.SIGINT, true},
		{" hup ", syscall.SIGHUP, true},
		{"usr1", syscall.SIGUSR1, true},
		{"NOSUCH", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseSignal(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseSignal(%q) = %v, %v; expected %v, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
