package agent

import (
	"context"
	"sync"
)

// BrowserDriver opens browser sessions. The capability is injected so the
// tracker can run against any automation backend, including fakes in tests.
type BrowserDriver interface {
	Open(ctx context.Context, url string) (BrowserSession, error)
}

// BrowserSession is one live browser the tracker supervises.
type BrowserSession interface {
	// Act performs one named action (navigate, click, screenshot, ...) and
	// returns backend-specific output.
	Act(ctx context.Context, action string, params map[string]any) (string, error)
	Close(ctx context.Context) error
}

// OpenResult reports the outcome of opening a session.
type OpenResult struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error,omitempty"`
}

// ActResult reports the outcome of one session action.
type ActResult struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
	Output    string `json:"output,omitempty"`
	Closed    bool   `json:"closed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BrowserTracker supervises browser sessions for one agent scope. Every
// session lives in the scope's registry so cleanup can close stragglers.
type BrowserTracker struct {
	driver   BrowserDriver
	registry *Registry

	mu       sync.Mutex
	sessions map[string]BrowserSession
}

// NewBrowserTracker creates a tracker bound to its scope's registry.
func NewBrowserTracker(driver BrowserDriver, registry *Registry) *BrowserTracker {
	t := &BrowserTracker{
		driver:   driver,
		registry: registry,
		sessions: make(map[string]BrowserSession),
	}
	registry.OnCleanup(t.closeRecord, StatusCompleted)
	return t
}

// Registry exposes the tracker's lifecycle registry.
func (t *BrowserTracker) Registry() *Registry { return t.registry }

// Available reports whether a driver is configured for this scope.
func (t *BrowserTracker) Available() bool { return t.driver != nil }

// Open starts a new session, optionally at a url, and registers it. Driver
// failures mark the fresh record ERROR and come back as an error result.
func (t *BrowserTracker) Open(ctx context.Context, url string) OpenResult {
	if t.driver == nil {
		return OpenResult{Error: "no browser driver configured"}
	}

	rec := t.registry.Register(map[string]any{"url": url})
	sess, err := t.driver.Open(ctx, url)
	if err != nil {
		t.registry.UpdateStatus(rec.ID, StatusError, map[string]any{"error": err.Error()})
		return OpenResult{SessionID: rec.ID, Error: err.Error()}
	}

	t.mu.Lock()
	t.sessions[rec.ID] = sess
	t.mu.Unlock()
	return OpenResult{SessionID: rec.ID}
}

// Act performs one action against a tracked session. The "close" action
// shuts the session down and marks it COMPLETED with closedExplicitly set.
// Action failures mark the record ERROR and are reported back as data;
// nothing escapes the tracker boundary. Other sessions are unaffected.
func (t *BrowserTracker) Act(ctx context.Context, id, action string, params map[string]any) ActResult {
	t.mu.Lock()
	sess, ok := t.sessions[id]
	t.mu.Unlock()
	if !ok {
		return ActResult{SessionID: id, Action: action, Error: (&UnknownIDError{ID: id}).Error()}
	}

	if action == "close" {
		t.mu.Lock()
		delete(t.sessions, id)
		t.mu.Unlock()
		if err := sess.Close(ctx); err != nil {
			t.registry.UpdateStatus(id, StatusError, map[string]any{"error": err.Error()})
			return ActResult{SessionID: id, Action: action, Closed: true, Error: err.Error()}
		}
		t.registry.UpdateStatus(id, StatusCompleted, map[string]any{"closedExplicitly": true})
		return ActResult{SessionID: id, Action: action, Closed: true}
	}

	out, err := sess.Act(ctx, action, params)
	if err != nil {
		t.registry.UpdateStatus(id, StatusError, map[string]any{"error": err.Error()})
		return ActResult{SessionID: id, Action: action, Error: err.Error()}
	}
	return ActResult{SessionID: id, Action: action, Output: out}
}

// closeRecord is the registry cleanup hook: close the session behind a
// still-running record.
func (t *BrowserTracker) closeRecord(ctx context.Context, rec Record) error {
	t.mu.Lock()
	sess, ok := t.sessions[rec.ID]
	delete(t.sessions, rec.ID)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.Close(ctx)
}

// Cleanup closes every RUNNING session in this scope.
func (t *BrowserTracker) Cleanup(ctx context.Context) {
	t.registry.Cleanup(ctx)
}
