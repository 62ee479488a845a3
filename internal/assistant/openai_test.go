package assistant

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// scriptedClient replays canned OpenAI responses. RetrieveRun and ListMessage
// each consume their own script; the last entry repeats when exhausted.
type scriptedClient struct {
	runs     []openai.Run
	runIdx   int
	lists    []openai.MessagesList
	listIdx  int
	lastSub  *openai.SubmitToolOutputsRequest
	appended []openai.MessageRequest
}

func (c *scriptedClient) CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error) {
	return openai.Thread{ID: "thread-1"}, nil
}

func (c *scriptedClient) CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error) {
	c.appended = append(c.appended, request)
	return openai.Message{ID: "msg-1"}, nil
}

func (c *scriptedClient) CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error) {
	return openai.Run{ID: "run-1", ThreadID: threadID, Status: openai.RunStatusQueued}, nil
}

func (c *scriptedClient) RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	idx := c.runIdx
	if idx >= len(c.runs) {
		idx = len(c.runs) - 1
	}
	c.runIdx++
	return c.runs[idx], nil
}

func (c *scriptedClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error) {
	c.lastSub = &request
	return openai.Run{ID: runID, ThreadID: threadID, Status: openai.RunStatusQueued}, nil
}

func (c *scriptedClient) ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error) {
	idx := c.listIdx
	if idx >= len(c.lists) {
		idx = len(c.lists) - 1
	}
	c.listIdx++
	return c.lists[idx], nil
}

func assistantMessage(text string) openai.Message {
	return openai.Message{
		Role: string(openai.ThreadMessageRoleAssistant),
		Content: []openai.MessageContent{
			{Type: "text", Text: &openai.MessageText{Value: text}},
		},
	}
}

func TestAwaitRunPollsUntilPause(t *testing.T) {
	client := &scriptedClient{
		runs: []openai.Run{
			{ID: "run-1", ThreadID: "thread-1", Status: openai.RunStatusQueued},
			{ID: "run-1", ThreadID: "thread-1", Status: openai.RunStatusInProgress},
			{
				ID:       "run-1",
				ThreadID: "thread-1",
				Status:   openai.RunStatusRequiresAction,
				RequiredAction: &openai.RunRequiredAction{
					SubmitToolOutputs: &openai.SubmitToolOutputs{
						ToolCalls: []openai.ToolCall{
							{ID: "c1", Function: openai.FunctionCall{Name: "get_itinerary", Arguments: `{"PNR":"X1"}`}},
						},
					},
				},
			},
		},
	}
	rt := newOpenAIRuntime(client, "asst-1", time.Millisecond, nil)

	run, err := rt.AwaitRun(context.Background(), "thread-1", "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != StatusRequiresAction {
		t.Fatalf("expected requires_action, got %s", run.Status)
	}
	if len(run.ToolCalls) != 1 || run.ToolCalls[0].ID != "c1" || run.ToolCalls[0].Name != "get_itinerary" {
		t.Fatalf("tool calls not converted: %+v", run.ToolCalls)
	}
	if run.ToolCalls[0].Arguments != `{"PNR":"X1"}` {
		t.Fatalf("arguments not preserved raw: %q", run.ToolCalls[0].Arguments)
	}
}

func TestStreamRunEmitsNewTextOnly(t *testing.T) {
	client := &scriptedClient{
		runs: []openai.Run{
			{ID: "run-1", ThreadID: "thread-1", Status: openai.RunStatusInProgress},
			{ID: "run-1", ThreadID: "thread-1", Status: openai.RunStatusInProgress},
			{ID: "run-1", ThreadID: "thread-1", Status: openai.RunStatusCompleted},
		},
		lists: []openai.MessagesList{
			{Messages: []openai.Message{assistantMessage("Hel")}},
			{Messages: []openai.Message{assistantMessage("Hel")}},
			{Messages: []openai.Message{assistantMessage("Hello world")}},
		},
	}
	rt := newOpenAIRuntime(client, "asst-1", time.Millisecond, nil)

	fragments := make(chan string, 8)
	run, err := rt.StreamRun(context.Background(), "thread-1", "run-1", fragments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(fragments)
	if run.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", run.Status)
	}
	var got []string
	for frag := range fragments {
		got = append(got, frag)
	}
	if len(got) != 2 || got[0] != "Hel" || got[1] != "lo world" {
		t.Fatalf("unexpected fragments: %v", got)
	}
}

func TestStreamRunResumesAfterPauseWithoutRepeatingText(t *testing.T) {
	pause := openai.Run{
		ID:       "run-1",
		ThreadID: "thread-1",
		Status:   openai.RunStatusRequiresAction,
		RequiredAction: &openai.RunRequiredAction{
			SubmitToolOutputs: &openai.SubmitToolOutputs{
				ToolCalls: []openai.ToolCall{
					{ID: "c1", Function: openai.FunctionCall{Name: "get_itinerary", Arguments: `{"PNR":"X1"}`}},
				},
			},
		},
	}
	client := &scriptedClient{
		runs: []openai.Run{
			pause,
			{ID: "run-1", ThreadID: "thread-1", Status: openai.RunStatusCompleted},
		},
		lists: []openai.MessagesList{
			{Messages: []openai.Message{assistantMessage("Checking your booking. ")}},
			{Messages: []openai.Message{assistantMessage("Checking your booking. Your trip is cancellable.")}},
		},
	}
	rt := newOpenAIRuntime(client, "asst-1", time.Millisecond, nil)

	fragments := make(chan string, 8)
	run, err := rt.StreamRun(context.Background(), "thread-1", "run-1", fragments)
	if err != nil {
		t.Fatalf("unexpected error before pause: %v", err)
	}
	if run.Status != StatusRequiresAction {
		t.Fatalf("expected requires_action, got %s", run.Status)
	}

	run, err = rt.StreamRun(context.Background(), "thread-1", "run-1", fragments)
	if err != nil {
		t.Fatalf("unexpected error after resume: %v", err)
	}
	close(fragments)
	if run.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", run.Status)
	}

	var got []string
	for frag := range fragments {
		got = append(got, frag)
	}
	if len(got) != 2 || got[0] != "Checking your booking. " || got[1] != "Your trip is cancellable." {
		t.Fatalf("unexpected fragments: %v", got)
	}
	if concat := got[0] + got[1]; concat != "Checking your booking. Your trip is cancellable." {
		t.Fatalf("fragments do not reassemble the final text: %q", concat)
	}
	if _, ok := rt.streamCursors["run-1"]; ok {
		t.Fatal("cursor not released after the run ended")
	}
}

func TestSubmitToolOutputsEchoesCallIDs(t *testing.T) {
	client := &scriptedClient{}
	rt := newOpenAIRuntime(client, "asst-1", time.Millisecond, nil)

	err := rt.SubmitToolOutputs(context.Background(), "thread-1", "run-1", []ToolOutput{
		{CallID: "c1", Output: "one"},
		{CallID: "c2", Output: "two"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.lastSub == nil || len(client.lastSub.ToolOutputs) != 2 {
		t.Fatalf("outputs not submitted: %+v", client.lastSub)
	}
	if client.lastSub.ToolOutputs[0].ToolCallID != "c1" || client.lastSub.ToolOutputs[1].ToolCallID != "c2" {
		t.Fatalf("call ids not echoed: %+v", client.lastSub.ToolOutputs)
	}
}

func TestLatestAssistantMessageJoinsContentParts(t *testing.T) {
	client := &scriptedClient{
		lists: []openai.MessagesList{
			{Messages: []openai.Message{{
				Role: string(openai.ThreadMessageRoleAssistant),
				Content: []openai.MessageContent{
					{Type: "text", Text: &openai.MessageText{Value: "part one "}},
					{Type: "text", Text: &openai.MessageText{Value: "part two"}},
				},
			}}},
		},
	}
	rt := newOpenAIRuntime(client, "asst-1", time.Millisecond, nil)

	got, err := rt.LatestAssistantMessage(context.Background(), "thread-1", "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "part one part two" {
		t.Fatalf("unexpected message text: %q", got)
	}
}

func TestMapStatusCoversLifecycle(t *testing.T) {
	cases := map[openai.RunStatus]RunStatus{
		openai.RunStatusQueued:         StatusQueued,
		openai.RunStatusInProgress:     StatusInProgress,
		openai.RunStatusRequiresAction: StatusRequiresAction,
		openai.RunStatusCompleted:      StatusCompleted,
		openai.RunStatusFailed:         StatusFailed,
		openai.RunStatusExpired:        StatusExpired,
		openai.RunStatusCancelled:      StatusCancelled,
	}
	for in, want := range cases {
		if got := mapStatus(in); got != want {
			t.Fatalf("mapStatus(%s) = %s, want %s", in, got, want)
		}
	}
	if !StatusCompleted.Terminal() || StatusRequiresAction.Terminal() {
		t.Fatal("terminal classification is wrong")
	}
}
