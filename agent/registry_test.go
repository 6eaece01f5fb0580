package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestRegistry(kind Kind) *Registry {
	return NewRegistry(kind, "root", 0, NewEventBus())
}

func TestRegistryRegister(t *testing.T) {
	r := newTestRegistry(KindShell)

	rec := r.Register(map[string]any{"command": "echo hi"})
	if !strings.HasPrefix(rec.ID, "shell_") {
		t.Errorf("expected shell_ id prefix, got %q", rec.ID)
	}
	if rec.Status != StatusRunning {
		t.Errorf("expected RUNNING, got %s", rec.Status)
	}
	if rec.StartTime.IsZero() {
		t.Error("expected StartTime to be set")
	}
	if rec.EndTime != nil {
		t.Error("expected no EndTime on a fresh record")
	}
	if rec.Meta["command"] != "echo hi" {
		t.Errorf("expected meta to carry the command, got %v", rec.Meta)
	}

	got, ok := r.Get(rec.ID)
	if !ok {
		t.Fatalf("expected record %s to be retrievable", rec.ID)
	}
	if got.Status != StatusRunning {
		t.Errorf("expected RUNNING, got %s", got.Status)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := newTestRegistry(KindShell)
	if _, ok := r.Get("shell_missing"); ok {
		t.Error("expected unknown id to report not found")
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := newTestRegistry(KindShell)
	rec := r.Register(map[string]any{"n": 1})

	got, _ := r.Get(rec.ID)
	got.Meta["n"] = 99

	again, _ := r.Get(rec.ID)
	if again.Meta["n"] != 1 {
		t.Errorf("mutating a returned record leaked into the registry: %v", again.Meta)
	}
}

func TestRegistryUpdateStatusUnknownID(t *testing.T) {
	r := newTestRegistry(KindAgent)
	if r.UpdateStatus("agent_missing", StatusCompleted, nil) {
		t.Error("expected false for an unknown id")
	}
}

func TestRegistryTerminalStatusSticky(t *testing.T) {
	r := newTestRegistry(KindShell)
	rec := r.Register(nil)

	if !r.UpdateStatus(rec.ID, StatusCompleted, map[string]any{"exitCode": 0}) {
		t.Fatal("expected update to succeed")
	}
	done, _ := r.Get(rec.ID)
	if done.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", done.Status)
	}
	if done.EndTime == nil {
		t.Fatal("expected EndTime on a terminal record")
	}
	firstEnd := *done.EndTime

	// A later transition attempt must not change status or EndTime, but the
	// metadata patch still merges and the id is still known.
	if !r.UpdateStatus(rec.ID, StatusError, map[string]any{"note": "late"}) {
		t.Error("expected true for a known id even when terminal")
	}
	again, _ := r.Get(rec.ID)
	if again.Status != StatusCompleted {
		t.Errorf("terminal status reverted to %s", again.Status)
	}
	if !again.EndTime.Equal(firstEnd) {
		t.Errorf("EndTime changed on a terminal record: %v -> %v", firstEnd, *again.EndTime)
	}
	if again.Meta["note"] != "late" {
		t.Errorf("expected patch to merge on a terminal record, got %v", again.Meta)
	}
	if again.Meta["exitCode"] != 0 {
		t.Errorf("expected earlier meta to survive, got %v", again.Meta)
	}
}

func TestRegistryList(t *testing.T) {
	r := newTestRegistry(KindBrowser)
	a := r.Register(nil)
	b := r.Register(nil)
	c := r.Register(nil)
	r.UpdateStatus(b.ID, StatusCompleted, nil)

	all := r.List()
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	// Registration order is preserved.
	if all[0].ID != a.ID || all[1].ID != b.ID || all[2].ID != c.ID {
		t.Errorf("expected registration order, got %s %s %s", all[0].ID, all[1].ID, all[2].ID)
	}

	running := r.List(StatusRunning)
	if len(running) != 2 {
		t.Fatalf("expected 2 RUNNING records, got %d", len(running))
	}
	if running[0].ID != a.ID || running[1].ID != c.ID {
		t.Errorf("unexpected filtered records: %s %s", running[0].ID, running[1].ID)
	}
}

func TestRegistryCleanupBestEffort(t *testing.T) {
	r := newTestRegistry(KindBrowser)

	bad := r.Register(map[string]any{"which": "bad"})
	var terminated []string
	r.OnCleanup(func(ctx context.Context, rec Record) error {
		if rec.ID == bad.ID {
			return errors.New("session hung")
		}
		terminated = append(terminated, rec.ID)
		return nil
	}, StatusCompleted)

	good2 := r.Register(map[string]any{"which": "good"})
	good3 := r.Register(map[string]any{"which": "good"})

	r.Cleanup(context.Background())

	// The failing record is marked ERROR with the captured message.
	rec, _ := r.Get(bad.ID)
	if rec.Status != StatusError {
		t.Errorf("expected failing record ERROR, got %s", rec.Status)
	}
	if rec.Meta["error"] != "session hung" {
		t.Errorf("expected captured error message, got %v", rec.Meta["error"])
	}

	// The siblings still reach the configured success status.
	for _, id := range []string{good2.ID, good3.ID} {
		rec, _ := r.Get(id)
		if rec.Status != StatusCompleted {
			t.Errorf("expected sibling %s COMPLETED, got %s", id, rec.Status)
		}
	}
	if len(terminated) != 2 {
		t.Errorf("expected terminator to run for both siblings, got %v", terminated)
	}
}

func TestRegistryCleanupSkipsTerminal(t *testing.T) {
	r := newTestRegistry(KindShell)

	done := r.Register(nil)
	r.UpdateStatus(done.ID, StatusError, nil)
	live := r.Register(nil)

	calls := 0
	r.OnCleanup(func(ctx context.Context, rec Record) error {
		calls++
		if rec.ID != live.ID {
			t.Errorf("terminator invoked for terminal record %s", rec.ID)
		}
		return nil
	}, StatusTerminated)

	r.Cleanup(context.Background())
	if calls != 1 {
		t.Errorf("expected 1 terminator call, got %d", calls)
	}
	rec, _ := r.Get(live.ID)
	if rec.Status != StatusTerminated {
		t.Errorf("expected TERMINATED, got %s", rec.Status)
	}
}

func TestRegistryCleanupWithoutTerminator(t *testing.T) {
	r := newTestRegistry(KindShell)
	rec := r.Register(nil)

	r.Cleanup(context.Background())

	got, _ := r.Get(rec.ID)
	if got.Status != StatusTerminated {
		t.Errorf("expected default TERMINATED, got %s", got.Status)
	}
}

func TestRegistrySweep(t *testing.T) {
	r := newTestRegistry(KindShell)

	old := r.Register(nil)
	r.UpdateStatus(old.ID, StatusCompleted, nil)
	running := r.Register(nil)

	time.Sleep(5 * time.Millisecond)

	removed := r.Sweep(0)
	if len(removed) != 1 || removed[0] != old.ID {
		t.Fatalf("expected [%s] removed, got %v", old.ID, removed)
	}
	if _, ok := r.Get(old.ID); ok {
		t.Error("expected swept record to be gone")
	}
	if _, ok := r.Get(running.ID); !ok {
		t.Error("expected RUNNING record to survive the sweep")
	}
	if len(r.List()) != 1 {
		t.Errorf("expected 1 record after sweep, got %d", len(r.List()))
	}
}

func TestRegistrySweepRespectsRetention(t *testing.T) {
	r := newTestRegistry(KindAgent)
	rec := r.Register(nil)
	r.UpdateStatus(rec.ID, StatusTerminated, nil)

	if removed := r.Sweep(time.Hour); len(removed) != 0 {
		t.Errorf("expected nothing removed inside the retention window, got %v", removed)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusRunning.Terminal() {
		t.Error("RUNNING must not be terminal")
	}
	for _, s := range []Status{StatusCompleted, StatusError, StatusTerminated} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
}
