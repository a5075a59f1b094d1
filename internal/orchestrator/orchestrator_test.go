package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-copilot/internal/compliance"
	"compliance-copilot/internal/llm"
	"compliance-copilot/internal/session"
	"compliance-copilot/internal/toolbox"
)

// scriptedClient replays a fixed sequence of completion results and captures
// every call it receives.
type scriptedClient struct {
	steps []scriptStep
	calls []capturedCall
}

type scriptStep struct {
	resp llm.Response
	err  error
}

type capturedCall struct {
	messages []llm.Message
	choice   llm.ToolChoice
}

func (c *scriptedClient) Generate(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	return c.GenerateWithTools(ctx, messages, nil, llm.ToolChoiceAuto)
}

func (c *scriptedClient) GenerateWithTools(_ context.Context, messages []llm.Message, _ []llm.Tool, choice llm.ToolChoice) (llm.Response, error) {
	cp := make([]llm.Message, len(messages))
	copy(cp, messages)
	c.calls = append(c.calls, capturedCall{messages: cp, choice: choice})

	if len(c.steps) == 0 {
		return llm.Response{}, errors.New("script exhausted")
	}
	step := c.steps[0]
	c.steps = c.steps[1:]
	return step.resp, step.err
}

func textResponse(content string) llm.Response {
	return llm.Response{Content: content, FinishReason: llm.FinishStop}
}

func toolResponse(calls ...llm.ToolCall) llm.Response {
	return llm.Response{FinishReason: llm.FinishToolCalls, ToolCalls: calls}
}

func functionCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}
}

func newTestOrchestrator(t *testing.T, client llm.Client) (*Orchestrator, *session.Layered) {
	t.Helper()
	db, err := compliance.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`INSERT INTO frameworks (id, name, is_master) VALUES ('fw-1', 'Baseline', 1)`,
		`INSERT INTO controls (id, framework_id, code, title, domain) VALUES
			('c1', 'fw-1', 'AC-1', 'Account provisioning', 'Access Control')`,
		`INSERT INTO applications (id, name) VALUES ('app-1', 'Billing Portal')`,
		`INSERT INTO app_control_scores (app_id, control_id, score) VALUES ('app-1', 'c1', 85)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}

	sessions := session.NewLayered(nil)
	t.Cleanup(sessions.Close)

	dispatcher := toolbox.NewDispatcher(compliance.NewService(db))
	return New(client, sessions, dispatcher, "You are the compliance assistant.", nil), sessions
}

func TestHandleTurnPlainAnswer(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{{resp: textResponse("The overall score is 85.")}}}
	orch, sessions := newTestOrchestrator(t, client)

	reply := orch.HandleTurn(context.Background(), Request{SessionID: "s1", Message: "what is our score?"})
	assert.Equal(t, "The overall score is 85.", reply.Text)
	assert.Nil(t, reply.Chart)

	history := sessions.GetOrHydrate(context.Background(), "s1")
	require.Len(t, history, 2)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, llm.RoleAssistant, history[1].Role)

	// The completion call carries the system prompt ahead of the history.
	require.NotEmpty(t, client.calls)
	assert.Equal(t, llm.RoleSystem, client.calls[0].messages[0].Role)
}

func TestHandleTurnWithToolRoundTrip(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{resp: toolResponse(functionCall("call-1", "queryDatabase", `{"queryType":"overview_kpis"}`))},
		{resp: textResponse("Overall compliance is 85.0 with 1 application tracked.")},
	}}
	orch, sessions := newTestOrchestrator(t, client)

	reply := orch.HandleTurn(context.Background(), Request{SessionID: "s1", Message: "give me the overview"})
	assert.Contains(t, reply.Text, "85.0")

	// The second completion call must see the assistant tool call and a tool
	// message carrying a success envelope with the real query data.
	require.Len(t, client.calls, 2)
	msgs := client.calls[1].messages
	var toolMsg *llm.Message
	for i := range msgs {
		if msgs[i].Role == llm.RoleTool {
			toolMsg = &msgs[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call-1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, `"status":"success"`)
	assert.Contains(t, toolMsg.Content, `"masterFramework":"Baseline"`)

	// Persisted history keeps the full tool traffic: user, assistant tool
	// call, tool result, final assistant answer.
	history := sessions.GetOrHydrate(context.Background(), "s1")
	require.Len(t, history, 4)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	require.Len(t, history[1].ToolCalls, 1)
	assert.Equal(t, llm.RoleTool, history[2].Role)
	assert.Equal(t, llm.RoleAssistant, history[3].Role)
}

func TestHandleTurnEveryToolCallGetsAResult(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{resp: toolResponse(
			functionCall("call-1", "queryDatabase", `{"queryType":"applications_list"}`),
			functionCall("call-2", "queryDatabase", `{"queryType":"users_list"}`),
			functionCall("call-3", "noSuchTool", `{}`),
		)},
		{resp: textResponse("done")},
	}}
	orch, sessions := newTestOrchestrator(t, client)

	orch.HandleTurn(context.Background(), Request{SessionID: "s1", Message: "fetch things"})

	history := sessions.GetOrHydrate(context.Background(), "s1")
	var toolMsgs []llm.Message
	for _, m := range history {
		if m.Role == llm.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	// Failed and unknown tools still produce envelopes, one per call.
	require.Len(t, toolMsgs, 3)
	assert.Contains(t, toolMsgs[1].Content, "unknown_query")
	assert.Contains(t, toolMsgs[2].Content, "unknown_tool")
}

func TestHandleTurnChartSurfacesInReply(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{resp: toolResponse(functionCall("call-1", "generateChartSpec",
			`{"chartType":"Bar","xKey":"domain","yKeys":["score"],"data":[{"domain":"Access Control","score":85}]}`))},
		{resp: textResponse("Here is the chart.")},
	}}
	orch, _ := newTestOrchestrator(t, client)

	reply := orch.HandleTurn(context.Background(), Request{SessionID: "s1", Message: "chart it"})
	require.NotNil(t, reply.Chart)
	assert.Equal(t, "Bar", reply.Chart.ChartType)
}

func TestHandleTurnRetriesAfterFailure(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{err: errors.New("upstream timeout")},
		{resp: textResponse("second time lucky")},
	}}
	orch, _ := newTestOrchestrator(t, client)

	reply := orch.HandleTurn(context.Background(), Request{SessionID: "s1", Message: "hello"})
	assert.Equal(t, "second time lucky", reply.Text)

	// The retry call carries a hint about the previous failure.
	require.Len(t, client.calls, 2)
	last := client.calls[1].messages[len(client.calls[1].messages)-1]
	assert.Equal(t, llm.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "upstream timeout")
}

func TestHandleTurnGivesUpAfterMaxAttempts(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{err: errors.New("boom 1")},
		{err: errors.New("boom 2")},
		{err: errors.New("boom 3")},
	}}
	orch, sessions := newTestOrchestrator(t, client)

	reply := orch.HandleTurn(context.Background(), Request{SessionID: "s1", Message: "hello"})
	assert.Contains(t, reply.Text, fmt.Sprintf("%d attempts", MaxAttempts))
	assert.Contains(t, reply.Text, "boom 3")
	assert.Len(t, client.calls, MaxAttempts)

	// A failed turn leaves no trace in the session.
	history := sessions.GetOrHydrate(context.Background(), "s1")
	assert.Empty(t, history)
}

func TestHandleTurnBoundsToolLoopAndFinalizes(t *testing.T) {
	// The model keeps asking for tools forever; finalization forces an answer.
	steps := make([]scriptStep, 0, MaxToolLoops+2)
	for i := 0; i <= MaxToolLoops; i++ {
		steps = append(steps, scriptStep{resp: toolResponse(
			functionCall(fmt.Sprintf("call-%d", i), "queryDatabase", `{"queryType":"applications_list"}`))})
	}
	steps = append(steps, scriptStep{resp: textResponse("forced summary")})

	client := &scriptedClient{steps: steps}
	orch, _ := newTestOrchestrator(t, client)

	reply := orch.HandleTurn(context.Background(), Request{SessionID: "s1", Message: "loop forever"})
	assert.Equal(t, "forced summary", reply.Text)

	// Initial call, MaxToolLoops re-invocations, then one forced call that
	// disables tools and appends the finalize instruction.
	require.Len(t, client.calls, MaxToolLoops+2)
	last := client.calls[len(client.calls)-1]
	assert.Equal(t, llm.ToolChoiceNone, last.choice)
	assert.Equal(t, finalizeInstruction, last.messages[len(last.messages)-1].Content)
	for _, call := range client.calls[:len(client.calls)-1] {
		assert.Equal(t, llm.ToolChoiceAuto, call.choice)
	}
}

func TestHandleTurnFallbackWhenModelStaysSilent(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{resp: textResponse("")},
		{resp: textResponse("")},
	}}
	orch, _ := newTestOrchestrator(t, client)

	reply := orch.HandleTurn(context.Background(), Request{SessionID: "s1", Message: "hello"})
	assert.Equal(t, fallbackAnswer, reply.Text)
}

func TestHandleTurnTruncatedResponseIsFinalized(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{
		{resp: llm.Response{Content: "partial...", FinishReason: llm.FinishLength}},
		{resp: textResponse("complete answer")},
	}}
	orch, _ := newTestOrchestrator(t, client)

	reply := orch.HandleTurn(context.Background(), Request{SessionID: "s1", Message: "hello"})
	assert.Equal(t, "complete answer", reply.Text)
	assert.Equal(t, llm.ToolChoiceNone, client.calls[1].choice)
}

func TestHandleTurnPageContextPrefixesUserMessage(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{{resp: textResponse("ok")}}}
	orch, _ := newTestOrchestrator(t, client)

	orch.HandleTurn(context.Background(), Request{
		SessionID:   "s1",
		Message:     "what am I looking at?",
		PageContext: "application detail for Billing Portal",
	})

	var userMsg string
	for _, m := range client.calls[0].messages {
		if m.Role == llm.RoleUser {
			userMsg = m.Content
		}
	}
	assert.True(t, strings.HasPrefix(userMsg, "[Page context: application detail for Billing Portal]"),
		"user message %q lacks the page context prefix", userMsg)
	assert.Contains(t, userMsg, "what am I looking at?")
}

func TestHandleTurnTrimsPersistedHistory(t *testing.T) {
	client := &scriptedClient{steps: []scriptStep{{resp: textResponse("ok")}}}
	orch, sessions := newTestOrchestrator(t, client)

	long := make([]llm.Message, 0, session.HistoryLimit+10)
	for i := 0; i < session.HistoryLimit+10; i++ {
		long = append(long, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("old %d", i)})
	}
	sessions.Persist(context.Background(), "s1", long)

	orch.HandleTurn(context.Background(), Request{SessionID: "s1", Message: "latest"})

	history := sessions.GetOrHydrate(context.Background(), "s1")
	assert.Len(t, history, session.HistoryLimit)
	assert.Equal(t, "ok", history[len(history)-1].Content)
}

func TestHandleTurnCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{steps: []scriptStep{
		{err: context.Canceled},
		{resp: textResponse("should never be reached")},
	}}
	orch, sessions := newTestOrchestrator(t, client)

	reply := orch.HandleTurn(ctx, Request{SessionID: "s1", Message: "hello"})
	assert.Contains(t, reply.Text, "cancelled")
	assert.Len(t, client.calls, 1, "cancelled turns must not retry")
	assert.Empty(t, sessions.GetOrHydrate(context.Background(), "s1"))
}
