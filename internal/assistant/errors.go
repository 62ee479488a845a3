package assistant

import "fmt"

// RunStalledError reports an orchestration loop that could not converge:
// either the cycle ceiling was exceeded or the runtime paused twice with an
// empty tool-call batch.
type RunStalledError struct {
	ThreadID string
	RunID    string
	Cycles   int
	Reason   string
}

func (e *RunStalledError) Error() string {
	return fmt.Sprintf("assistant: run %s on thread %s stalled after %d cycles: %s",
		e.RunID, e.ThreadID, e.Cycles, e.Reason)
}

// RunFailedError reports a run that ended in a terminal status other than
// completed.
type RunFailedError struct {
	ThreadID string
	RunID    string
	Status   RunStatus
	Reason   string
}

func (e *RunFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("assistant: run %s on thread %s ended with status %s", e.RunID, e.ThreadID, e.Status)
	}
	return fmt.Sprintf("assistant: run %s on thread %s ended with status %s: %s", e.RunID, e.ThreadID, e.Status, e.Reason)
}

// UpstreamError wraps a transport failure talking to the assistant runtime.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("assistant: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
