package assistant

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripdesk/concierge/internal/functions"
	"github.com/tripdesk/concierge/internal/observability/metrics"
	"github.com/tripdesk/concierge/internal/session"
	"github.com/tripdesk/concierge/pkg/logging"
)

const defaultMaxCycles = 5

// Orchestrator drives an assistant run from user message to final answer,
// executing tool-call batches whenever the run pauses. The polling and
// streaming strategies share one resolve/submit path and differ only in how
// run progress is observed.
type Orchestrator struct {
	runtime      Runtime
	registry     *functions.Registry
	maxCycles    int
	streamBuffer int
	logger       *logging.Logger
	tracer       trace.Tracer
	metrics      *metrics.ConversationMetrics
}

// NewOrchestrator wires an orchestrator. maxCycles bounds how many
// requires_action pauses a single run may serve before it is declared
// stalled; streamBuffer sizes the fragment channel handed to stream callers.
func NewOrchestrator(runtime Runtime, registry *functions.Registry, maxCycles, streamBuffer int, logger *logging.Logger, m *metrics.ConversationMetrics) *Orchestrator {
	if runtime == nil {
		panic("assistant: orchestrator requires a runtime")
	}
	if registry == nil {
		panic("assistant: orchestrator requires a function registry")
	}
	if maxCycles <= 0 {
		maxCycles = defaultMaxCycles
	}
	if streamBuffer <= 0 {
		streamBuffer = 32
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		runtime:      runtime,
		registry:     registry,
		maxCycles:    maxCycles,
		streamBuffer: streamBuffer,
		logger:       logger,
		tracer:       otel.Tracer("concierge.internal.assistant"),
		metrics:      m,
	}
}

// Execute appends the user message to the session's thread, runs the
// assistant to completion and returns the final answer text.
func (o *Orchestrator) Execute(ctx context.Context, sess *session.Session, channel, message string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "assistant.execute")
	defer span.End()

	run, err := o.begin(ctx, sess.ThreadID, message)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	cycles, emptyBatches := 0, 0
	for {
		run, err = o.runtime.AwaitRun(ctx, sess.ThreadID, run.ID)
		if err != nil {
			span.RecordError(err)
			o.metrics.ObserveRun("error", cycles)
			return "", err
		}

		switch {
		case run.Status == StatusCompleted:
			text, err := o.runtime.LatestAssistantMessage(ctx, sess.ThreadID, run.ID)
			if err != nil {
				span.RecordError(err)
				o.metrics.ObserveRun("error", cycles)
				return "", err
			}
			o.metrics.ObserveRun("completed", cycles)
			return text, nil

		case run.Status == StatusRequiresAction:
			if err := o.servePause(ctx, run, channel, sess, &cycles, &emptyBatches); err != nil {
				span.RecordError(err)
				o.metrics.ObserveRun("stalled", cycles)
				return "", err
			}

		default:
			err := &RunFailedError{ThreadID: sess.ThreadID, RunID: run.ID, Status: run.Status, Reason: run.LastError}
			span.RecordError(err)
			o.metrics.ObserveRun(string(run.Status), cycles)
			return "", err
		}
	}
}

// ExecuteStream is the streaming variant of Execute. Answer text arrives on
// the returned fragment channel as it is generated; the channel is closed
// when the run ends, after which exactly one value (nil on success) is
// available on the error channel. Fragments are in order, never duplicated
// across a tool-call pause, and concatenate to the same text Execute would
// return for an identical run.
func (o *Orchestrator) ExecuteStream(ctx context.Context, sess *session.Session, channel, message string) (<-chan string, <-chan error) {
	fragments := make(chan string, o.streamBuffer)
	errCh := make(chan error, 1)
	go func() {
		defer close(fragments)
		errCh <- o.streamLoop(ctx, sess, channel, message, fragments)
	}()
	return fragments, errCh
}

func (o *Orchestrator) streamLoop(ctx context.Context, sess *session.Session, channel, message string, fragments chan<- string) error {
	ctx, span := o.tracer.Start(ctx, "assistant.execute_stream")
	defer span.End()

	run, err := o.begin(ctx, sess.ThreadID, message)
	if err != nil {
		span.RecordError(err)
		return err
	}

	cycles, emptyBatches := 0, 0
	for {
		run, err = o.runtime.StreamRun(ctx, sess.ThreadID, run.ID, fragments)
		if err != nil {
			span.RecordError(err)
			o.metrics.ObserveRun("error", cycles)
			return err
		}

		switch {
		case run.Status == StatusCompleted:
			o.metrics.ObserveRun("completed", cycles)
			return nil

		case run.Status == StatusRequiresAction:
			if err := o.servePause(ctx, run, channel, sess, &cycles, &emptyBatches); err != nil {
				span.RecordError(err)
				o.metrics.ObserveRun("stalled", cycles)
				return err
			}

		default:
			err := &RunFailedError{ThreadID: sess.ThreadID, RunID: run.ID, Status: run.Status, Reason: run.LastError}
			span.RecordError(err)
			o.metrics.ObserveRun(string(run.Status), cycles)
			return err
		}
	}
}

func (o *Orchestrator) begin(ctx context.Context, threadID, message string) (Run, error) {
	if err := o.runtime.AppendUserMessage(ctx, threadID, message); err != nil {
		return Run{}, err
	}
	return o.runtime.StartRun(ctx, threadID)
}

// servePause resolves and submits one requires_action batch. A nil return
// means the loop should keep observing the run; a RunStalledError means it
// must give up.
func (o *Orchestrator) servePause(ctx context.Context, run Run, channel string, sess *session.Session, cycles, emptyBatches *int) error {
	if len(run.ToolCalls) == 0 {
		*emptyBatches++
		o.logger.Warn("run paused with an empty tool-call batch",
			"thread_id", sess.ThreadID, "run_id", run.ID, "occurrence", *emptyBatches)
		if *emptyBatches > 1 {
			return &RunStalledError{ThreadID: sess.ThreadID, RunID: run.ID, Cycles: *cycles, Reason: "empty tool-call batch repeated"}
		}
		return nil
	}
	if *cycles >= o.maxCycles {
		return &RunStalledError{ThreadID: sess.ThreadID, RunID: run.ID, Cycles: *cycles, Reason: "tool-call cycle ceiling reached"}
	}

	outputs := o.resolveBatch(ctx, run.ToolCalls, channel, sess)
	if err := o.runtime.SubmitToolOutputs(ctx, sess.ThreadID, run.ID, outputs); err != nil {
		return err
	}
	*cycles++
	return nil
}

// resolveBatch executes every call in the batch and returns exactly one
// output per call, same order, same ids. Per-call failures become error text
// in the output slot so the run can resume; they never shrink the batch.
func (o *Orchestrator) resolveBatch(ctx context.Context, calls []ToolCall, channel string, sess *session.Session) []ToolOutput {
	outputs := make([]ToolOutput, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, ToolOutput{
			CallID: call.ID,
			Output: o.resolveCall(ctx, call, channel, sess),
		})
	}
	return outputs
}

func (o *Orchestrator) resolveCall(ctx context.Context, call ToolCall, channel string, sess *session.Session) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		o.logger.Warn("tool call has undecodable arguments", "function", call.Name, "call_id", call.ID, "error", err)
		o.metrics.ObserveToolCall(call.Name, "decode_error")
		return fmt.Sprintf("Error: the arguments for %s could not be decoded.", call.Name)
	}

	// An unregistered function is a no-op: the call still gets its output
	// slot, just an empty one, so the run never waits on it.
	adapter, ok := o.registry.Resolve(call.Name)
	if !ok {
		o.logger.Warn("tool call names an unknown function", "function", call.Name, "call_id", call.ID)
		o.metrics.ObserveToolCall(call.Name, "unknown")
		return ""
	}

	out, err := adapter.Invoke(ctx, functions.Invocation{Args: args, Channel: channel, Session: sess})
	if err != nil {
		o.logger.Error("tool call failed", "function", call.Name, "call_id", call.ID, "error", err)
		o.metrics.ObserveToolCall(call.Name, "error")
		return fmt.Sprintf("Error: %s failed: %v", call.Name, err)
	}
	o.metrics.ObserveToolCall(call.Name, "ok")
	return out
}
