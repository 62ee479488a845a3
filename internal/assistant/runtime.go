package assistant

import "context"

// RunStatus mirrors the remote run lifecycle. It is reported by the runtime,
// never computed locally.
type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCompleted      RunStatus = "completed"
	StatusFailed         RunStatus = "failed"
	StatusExpired        RunStatus = "expired"
	StatusCancelled      RunStatus = "cancelled"
)

// Terminal reports whether the run can make no further progress.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// ToolCall is one function the paused run wants executed. Arguments is the
// raw JSON-encoded argument object as received from the runtime.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolOutput is one executed call's result, echoed back under the call's id.
type ToolOutput struct {
	CallID string
	Output string
}

// Run is a snapshot of a remote run. ToolCalls is populated only when Status
// is StatusRequiresAction.
type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	ToolCalls []ToolCall
	LastError string
}

// Runtime abstracts the hosted assistant service behind thread and run
// operations. AwaitRun and StreamRun block until the run pauses for tool
// execution or reaches a terminal status; StreamRun additionally pushes
// answer text fragments, in order, as they become visible.
type Runtime interface {
	CreateThread(ctx context.Context) (string, error)
	AppendUserMessage(ctx context.Context, threadID, text string) error
	StartRun(ctx context.Context, threadID string) (Run, error)
	AwaitRun(ctx context.Context, threadID, runID string) (Run, error)
	StreamRun(ctx context.Context, threadID, runID string, fragments chan<- string) (Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error
	LatestAssistantMessage(ctx context.Context, threadID, runID string) (string, error)
}
