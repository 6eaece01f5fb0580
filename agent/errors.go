package agent

import "fmt"

// The error types below exist so failures can be classified; at component
// boundaries they are converted to data (structured payloads, result fields,
// ERROR status marks), never allowed to abort sibling operations or the loop.

// ToolExecutionError wraps a failure inside a single tool call. The
// dispatcher converts it into that call's error payload.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ProcessSpawnError reports that an OS process could not be started. It is
// surfaced synchronously as a sync-mode error result from shell start.
type ProcessSpawnError struct {
	Command string
	Err     error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("failed to spawn process %q: %v", e.Command, e.Err)
}

func (e *ProcessSpawnError) Unwrap() error { return e.Err }

// ResourceCleanupError reports a failure while terminating one resource
// during cleanup. The registry records it on that resource and proceeds
// with the rest.
type ResourceCleanupError struct {
	ID  string
	Err error
}

func (e *ResourceCleanupError) Error() string {
	return fmt.Sprintf("cleanup of %s failed: %v", e.ID, e.Err)
}

func (e *ResourceCleanupError) Unwrap() error { return e.Err }

// UnknownIDError reports an operation against a nonexistent resource id.
// Every supervisor returns its text as a structured error result.
type UnknownIDError struct {
	ID string
}

func (e *UnknownIDError) Error() string {
	return "No resource found with ID " + e.ID
}
