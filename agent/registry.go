package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a supervised resource.
type Status string

const (
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusError      Status = "ERROR"
	StatusTerminated Status = "TERMINATED"
)

// Terminal reports whether the status is final. Terminal statuses are
// sticky: once entered they never revert.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusTerminated
}

// Kind discriminates the resource specializations sharing the registry
// contract.
type Kind string

const (
	KindShell   Kind = "shell"
	KindBrowser Kind = "browser"
	KindAgent   Kind = "agent"
)

// Record is the registry's view of one background resource.
type Record struct {
	ID        string
	Kind      Kind
	Status    Status
	StartTime time.Time
	EndTime   *time.Time
	OwnerID   string
	Meta      map[string]any
}

func (r *Record) clone() Record {
	out := *r
	out.Meta = make(map[string]any, len(r.Meta))
	for k, v := range r.Meta {
		out.Meta[k] = v
	}
	if r.EndTime != nil {
		end := *r.EndTime
		out.EndTime = &end
	}
	return out
}

// TerminateFunc tears down one RUNNING resource during Cleanup. An error
// marks that record ERROR; it never propagates further.
type TerminateFunc func(ctx context.Context, rec Record) error

// Registry tracks the lifecycle of one kind of resource for exactly one
// agent scope. Instances are constructed explicitly and composed
// parent-to-child by the owning ToolContext; nothing here is global.
type Registry struct {
	mu        sync.Mutex
	kind      Kind
	ownerID   string
	depth     int
	bus       *EventBus
	records   map[string]*Record
	order     []string
	terminate TerminateFunc
	doneAs    Status
}

// NewRegistry creates an empty registry for one resource kind owned by the
// given agent scope.
func NewRegistry(kind Kind, ownerID string, depth int, bus *EventBus) *Registry {
	return &Registry{
		kind:    kind,
		ownerID: ownerID,
		depth:   depth,
		bus:     bus,
		records: make(map[string]*Record),
		doneAs:  StatusTerminated,
	}
}

// OnCleanup installs the terminator invoked for each RUNNING record during
// Cleanup, and the status applied when it succeeds.
func (r *Registry) OnCleanup(fn TerminateFunc, success Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminate = fn
	r.doneAs = success
}

// Register creates a RUNNING record with a fresh id and returns a copy.
func (r *Registry) Register(meta map[string]any) Record {
	if meta == nil {
		meta = map[string]any{}
	}
	rec := &Record{
		Kind:      r.kind,
		Status:    StatusRunning,
		StartTime: time.Now(),
		OwnerID:   r.ownerID,
		Meta:      meta,
	}

	r.mu.Lock()
	for {
		rec.ID = string(r.kind) + "_" + uuid.New().String()[:8]
		if _, taken := r.records[rec.ID]; !taken {
			break
		}
	}
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	r.mu.Unlock()

	r.bus.emit(LevelDebug, rec.ID, r.depth, string(r.kind)+" resource registered")
	return rec.clone()
}

// UpdateStatus transitions a record and merges the metadata patch. It
// returns false iff the id is unknown. Terminal records keep their status
// and EndTime (the patch still merges); EndTime is set exactly once, on the
// transition into a terminal status.
func (r *Registry) UpdateStatus(id string, status Status, patch map[string]any) bool {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return false
	}

	for k, v := range patch {
		rec.Meta[k] = v
	}

	changed := false
	if !rec.Status.Terminal() && rec.Status != status {
		rec.Status = status
		changed = true
		if status.Terminal() {
			now := time.Now()
			rec.EndTime = &now
		}
	}
	r.mu.Unlock()

	if changed {
		level := LevelDebug
		if status == StatusError {
			level = LevelWarn
		}
		r.bus.emit(level, id, r.depth, string(r.kind)+" resource "+string(status))
	}
	return true
}

// Get returns a copy of the record, if present.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// List returns copies of records in registration order, optionally filtered
// to the given statuses.
func (r *Registry) List(filter ...Status) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record
	for _, id := range r.order {
		rec, ok := r.records[id]
		if !ok {
			continue
		}
		if len(filter) > 0 {
			match := false
			for _, s := range filter {
				if rec.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, rec.clone())
	}
	return out
}

// Cleanup terminates every RUNNING record, best-effort. A terminator
// failure marks that one record ERROR with the captured message; cleanup of
// the remaining records proceeds unconditionally. Cleanup never fails.
func (r *Registry) Cleanup(ctx context.Context) {
	running := r.List(StatusRunning)

	r.mu.Lock()
	fn := r.terminate
	success := r.doneAs
	r.mu.Unlock()

	for _, rec := range running {
		if fn == nil {
			r.UpdateStatus(rec.ID, success, nil)
			continue
		}
		if err := fn(ctx, rec); err != nil {
			cerr := &ResourceCleanupError{ID: rec.ID, Err: err}
			r.UpdateStatus(rec.ID, StatusError, map[string]any{"error": err.Error()})
			r.bus.emit(LevelWarn, rec.ID, r.depth, cerr.Error())
			continue
		}
		r.UpdateStatus(rec.ID, success, nil)
	}
}

// Sweep removes terminal records whose EndTime is older than the retention
// window and returns the removed ids so owners can drop associated state.
func (r *Registry) Sweep(retention time.Duration) []string {
	cutoff := time.Now().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	kept := r.order[:0]
	for _, id := range r.order {
		rec, ok := r.records[id]
		if ok && rec.Status.Terminal() && rec.EndTime != nil && rec.EndTime.Before(cutoff) {
			delete(r.records, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}
