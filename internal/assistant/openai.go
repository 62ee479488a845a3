package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripdesk/concierge/pkg/logging"
)

// assistantClient is the slice of the OpenAI client the runtime needs.
type assistantClient interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID string, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

// OpenAIRuntime drives assistant runs on the OpenAI (or Azure OpenAI)
// Assistants API.
type OpenAIRuntime struct {
	client       assistantClient
	assistantID  string
	pollInterval time.Duration
	logger       *logging.Logger
	tracer       trace.Tracer

	// cursorMu guards streamCursors: bytes of run text already emitted, keyed
	// by run id. The cursor outlives a single StreamRun call because a run
	// pauses for tool outputs and is streamed again on resume.
	cursorMu      sync.Mutex
	streamCursors map[string]int
}

// NewOpenAIRuntime wires a runtime around an OpenAI client. The key/endpoint
// pair selects between the public API and an Azure deployment.
func NewOpenAIRuntime(apiKey, azureEndpoint, assistantID string, pollInterval time.Duration, logger *logging.Logger) *OpenAIRuntime {
	var client *openai.Client
	if azureEndpoint != "" {
		client = openai.NewClientWithConfig(openai.DefaultAzureConfig(apiKey, azureEndpoint))
	} else {
		client = openai.NewClient(apiKey)
	}
	return newOpenAIRuntime(client, assistantID, pollInterval, logger)
}

func newOpenAIRuntime(client assistantClient, assistantID string, pollInterval time.Duration, logger *logging.Logger) *OpenAIRuntime {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAIRuntime{
		client:        client,
		assistantID:   assistantID,
		pollInterval:  pollInterval,
		logger:        logger,
		tracer:        otel.Tracer("concierge.internal.assistant"),
		streamCursors: make(map[string]int),
	}
}

// CreateThread implements Runtime.
func (r *OpenAIRuntime) CreateThread(ctx context.Context) (string, error) {
	ctx, span := r.tracer.Start(ctx, "assistant.create_thread")
	defer span.End()

	thread, err := r.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		span.RecordError(err)
		return "", &UpstreamError{Op: "create thread", Err: err}
	}
	return thread.ID, nil
}

// AppendUserMessage implements Runtime.
func (r *OpenAIRuntime) AppendUserMessage(ctx context.Context, threadID, text string) error {
	ctx, span := r.tracer.Start(ctx, "assistant.append_message")
	defer span.End()

	_, err := r.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: text,
	})
	if err != nil {
		span.RecordError(err)
		return &UpstreamError{Op: "append message", Err: err}
	}
	return nil
}

// StartRun implements Runtime.
func (r *OpenAIRuntime) StartRun(ctx context.Context, threadID string) (Run, error) {
	ctx, span := r.tracer.Start(ctx, "assistant.start_run")
	defer span.End()

	run, err := r.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: r.assistantID})
	if err != nil {
		span.RecordError(err)
		return Run{}, &UpstreamError{Op: "start run", Err: err}
	}
	return convertRun(run), nil
}

// AwaitRun implements Runtime. It polls until the run pauses for tool
// execution or ends.
func (r *OpenAIRuntime) AwaitRun(ctx context.Context, threadID, runID string) (Run, error) {
	ctx, span := r.tracer.Start(ctx, "assistant.await_run")
	defer span.End()

	for {
		run, err := r.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			span.RecordError(err)
			return Run{}, &UpstreamError{Op: "retrieve run", Err: err}
		}
		snapshot := convertRun(run)
		if snapshot.Status == StatusRequiresAction || snapshot.Status.Terminal() {
			return snapshot, nil
		}
		if err := sleepCtx(ctx, r.pollInterval); err != nil {
			return Run{}, err
		}
	}
}

// StreamRun implements Runtime. The Assistants API offers no event stream
// for runs driven this way, so fragments are derived by diffing the run's
// message snapshot between polls. Ordering follows the runtime's own message
// order, so the concatenated fragments equal the final message text. The
// emit cursor is kept per run id: a run streamed again after a tool-call
// pause resumes from where the previous call stopped, never re-emitting
// pre-pause text.
func (r *OpenAIRuntime) StreamRun(ctx context.Context, threadID, runID string, fragments chan<- string) (Run, error) {
	ctx, span := r.tracer.Start(ctx, "assistant.stream_run")
	defer span.End()

	emitted := r.streamCursor(runID)
	for {
		run, err := r.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			span.RecordError(err)
			r.setStreamCursor(runID, emitted)
			return Run{}, &UpstreamError{Op: "retrieve run", Err: err}
		}
		snapshot := convertRun(run)

		text, err := r.runText(ctx, threadID, runID)
		if err != nil {
			span.RecordError(err)
			r.setStreamCursor(runID, emitted)
			return Run{}, err
		}
		if len(text) > emitted {
			select {
			case fragments <- text[emitted:]:
				emitted = len(text)
			case <-ctx.Done():
				r.setStreamCursor(runID, emitted)
				return Run{}, ctx.Err()
			}
		}

		if snapshot.Status == StatusRequiresAction {
			r.setStreamCursor(runID, emitted)
			return snapshot, nil
		}
		if snapshot.Status.Terminal() {
			r.clearStreamCursor(runID)
			return snapshot, nil
		}
		if err := sleepCtx(ctx, r.pollInterval); err != nil {
			r.setStreamCursor(runID, emitted)
			return Run{}, err
		}
	}
}

func (r *OpenAIRuntime) streamCursor(runID string) int {
	r.cursorMu.Lock()
	defer r.cursorMu.Unlock()
	return r.streamCursors[runID]
}

func (r *OpenAIRuntime) setStreamCursor(runID string, emitted int) {
	r.cursorMu.Lock()
	defer r.cursorMu.Unlock()
	r.streamCursors[runID] = emitted
}

func (r *OpenAIRuntime) clearStreamCursor(runID string) {
	r.cursorMu.Lock()
	defer r.cursorMu.Unlock()
	delete(r.streamCursors, runID)
}

// SubmitToolOutputs implements Runtime.
func (r *OpenAIRuntime) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	ctx, span := r.tracer.Start(ctx, "assistant.submit_tool_outputs")
	defer span.End()

	req := openai.SubmitToolOutputsRequest{
		ToolOutputs: make([]openai.ToolOutput, 0, len(outputs)),
	}
	for _, out := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, openai.ToolOutput{
			ToolCallID: out.CallID,
			Output:     out.Output,
		})
	}
	if _, err := r.client.SubmitToolOutputs(ctx, threadID, runID, req); err != nil {
		span.RecordError(err)
		return &UpstreamError{Op: "submit tool outputs", Err: err}
	}
	return nil
}

// LatestAssistantMessage implements Runtime. The lookup is scoped to the run
// so a concurrent exchange on the same thread cannot bleed in.
func (r *OpenAIRuntime) LatestAssistantMessage(ctx context.Context, threadID, runID string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "assistant.latest_message")
	defer span.End()

	limit := 1
	order := "desc"
	list, err := r.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		span.RecordError(err)
		return "", &UpstreamError{Op: "list messages", Err: err}
	}
	if len(list.Messages) == 0 {
		return "", nil
	}
	return messageText(list.Messages[0]), nil
}

// runText returns the concatenated assistant text produced by one run so far.
func (r *OpenAIRuntime) runText(ctx context.Context, threadID, runID string) (string, error) {
	order := "asc"
	list, err := r.client.ListMessage(ctx, threadID, nil, &order, nil, nil, &runID)
	if err != nil {
		return "", &UpstreamError{Op: "list messages", Err: err}
	}
	var b strings.Builder
	for _, msg := range list.Messages {
		if msg.Role != string(openai.ThreadMessageRoleAssistant) {
			continue
		}
		b.WriteString(messageText(msg))
	}
	return b.String(), nil
}

func messageText(msg openai.Message) string {
	var b strings.Builder
	for _, part := range msg.Content {
		if part.Text != nil {
			b.WriteString(part.Text.Value)
		}
	}
	return b.String()
}

func convertRun(run openai.Run) Run {
	snapshot := Run{
		ID:       run.ID,
		ThreadID: run.ThreadID,
		Status:   mapStatus(run.Status),
	}
	if run.LastError != nil {
		snapshot.LastError = run.LastError.Message
	}
	if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
		for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			snapshot.ToolCalls = append(snapshot.ToolCalls, ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}
	return snapshot
}

func mapStatus(status openai.RunStatus) RunStatus {
	switch status {
	case openai.RunStatusQueued:
		return StatusQueued
	case openai.RunStatusInProgress, openai.RunStatusCancelling:
		return StatusInProgress
	case openai.RunStatusRequiresAction:
		return StatusRequiresAction
	case openai.RunStatusCompleted:
		return StatusCompleted
	case openai.RunStatusFailed:
		return StatusFailed
	case openai.RunStatusExpired:
		return StatusExpired
	case openai.RunStatusCancelled:
		return StatusCancelled
	default:
		return RunStatus(fmt.Sprintf("unknown:%s", status))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
