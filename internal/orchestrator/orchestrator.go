// Package orchestrator runs the conversational turn state machine: restore
// session history, call the completion service, execute requested tools,
// repeat until the model produces final text or a bound is hit, persist the
// updated history.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"compliance-copilot/internal/auditlog"
	"compliance-copilot/internal/chart"
	"compliance-copilot/internal/llm"
	"compliance-copilot/internal/session"
	"compliance-copilot/internal/toolbox"
)

const (
	// MaxAttempts bounds outer retries around a whole completion+tool sequence.
	MaxAttempts = 3
	// MaxToolLoops bounds completion re-invocations inside one attempt while
	// the model keeps requesting tools.
	MaxToolLoops = 10
)

const fallbackAnswer = "I wasn't able to put together an answer for that. Could you rephrase the question?"

const finalizeInstruction = "Stop calling tools now. Summarize what you found so far and answer the user's question directly."

// Request is one user turn.
type Request struct {
	SessionID   string
	Message     string
	PageContext string
}

// Reply is what the caller gets back. Irrecoverable failures surface as
// explanatory text, never as an error value.
type Reply struct {
	SessionID string      `json:"sessionId"`
	Text      string      `json:"text"`
	Chart     *chart.Spec `json:"chartSpec,omitempty"`
}

type Orchestrator struct {
	client       llm.Client
	sessions     *session.Layered
	dispatcher   *toolbox.Dispatcher
	systemPrompt string
	recorder     auditlog.Recorder
}

func New(client llm.Client, sessions *session.Layered, dispatcher *toolbox.Dispatcher, systemPrompt string, recorder auditlog.Recorder) *Orchestrator {
	return &Orchestrator{
		client:       client,
		sessions:     sessions,
		dispatcher:   dispatcher,
		systemPrompt: systemPrompt,
		recorder:     recorder,
	}
}

// HandleTurn runs one complete user-message-to-final-answer cycle.
func (o *Orchestrator) HandleTurn(ctx context.Context, req Request) Reply {
	history := o.sessions.GetOrHydrate(ctx, req.SessionID)

	userContent := req.Message
	if req.PageContext != "" {
		userContent = fmt.Sprintf("[Page context: %s]\n\n%s", req.PageContext, req.Message)
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Content: userContent})

	var lastFailure string
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		out, err := o.runAttempt(ctx, history, attempt, lastFailure)
		if err == nil {
			o.sessions.Persist(ctx, req.SessionID, out.messages)
			o.record(req, out, attempt)
			return Reply{SessionID: req.SessionID, Text: out.text, Chart: out.chart}
		}

		lastFailure = err.Error()
		log.Printf("❌ turn attempt %d/%d for session %s failed: %v", attempt, MaxAttempts, req.SessionID, err)

		// A cancelled request aborts the turn outright; nothing was persisted.
		if ctx.Err() != nil {
			return Reply{
				SessionID: req.SessionID,
				Text:      fmt.Sprintf("The request was cancelled before I could finish (attempt %d, last error: %s).", attempt, lastFailure),
			}
		}
		if attempt == MaxAttempts {
			return Reply{
				SessionID: req.SessionID,
				Text:      fmt.Sprintf("I ran into a problem and couldn't finish after %d attempts. Last error: %s.", MaxAttempts, lastFailure),
			}
		}
	}

	// Unreachable while the loop above returns on the last attempt.
	return Reply{SessionID: req.SessionID, Text: "I was unable to complete the request."}
}

// attemptResult is the outcome of one successful attempt: the full message
// history to persist (tool traffic included), the final text and the most
// recent chart produced during the tool loop.
type attemptResult struct {
	messages  []llm.Message
	text      string
	chart     *chart.Spec
	toolCalls []string
}

func (o *Orchestrator) runAttempt(ctx context.Context, base []llm.Message, attempt int, lastFailure string) (*attemptResult, error) {
	msgs := make([]llm.Message, len(base))
	copy(msgs, base)

	tools := llm.GetAssistantTools()
	cache := toolbox.NewRequestCache()
	out := &attemptResult{}

	resp, err := o.client.GenerateWithTools(ctx, o.compose(msgs, attempt, lastFailure), tools, llm.ToolChoiceAuto)
	if err != nil {
		return nil, err
	}

	for loop := 0; loop < MaxToolLoops && wantsTools(resp); loop++ {
		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			if tc.Type != "function" {
				continue
			}
			args := parseJSONArgs(tc.Function.Arguments)
			res := o.dispatcher.Dispatch(ctx, tc.Function.Name, args, cache)
			if res.ChartSpec != nil {
				out.chart = res.ChartSpec
			}
			out.toolCalls = append(out.toolCalls, tc.Function.Name)
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: tc.ID,
				Content:    res.JSON(),
			})
		}

		resp, err = o.client.GenerateWithTools(ctx, o.compose(msgs, attempt, lastFailure), tools, llm.ToolChoiceAuto)
		if err != nil {
			return nil, err
		}
	}
	// Hitting the loop bound is not an error: we degrade to finalization with
	// whatever the last response was.

	text := strings.TrimSpace(resp.Content)
	if text == "" || resp.FinishReason == llm.FinishLength {
		forced := append(o.compose(msgs, attempt, lastFailure),
			llm.Message{Role: llm.RoleSystem, Content: finalizeInstruction})
		fresp, ferr := o.client.GenerateWithTools(ctx, forced, tools, llm.ToolChoiceNone)
		if ferr != nil {
			return nil, ferr
		}
		text = strings.TrimSpace(fresp.Content)
	}
	if text == "" {
		text = fallbackAnswer
	}

	out.messages = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: text})
	out.text = text
	return out, nil
}

// compose builds the message list for a completion call: system prompt,
// history, and from the second attempt onward a one-line hint about the
// previous failure so the model can route around it.
func (o *Orchestrator) compose(history []llm.Message, attempt int, lastFailure string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if o.systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: o.systemPrompt})
	}
	msgs = append(msgs, history...)
	if attempt > 1 && lastFailure != "" {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleSystem,
			Content: fmt.Sprintf("Note: a previous tool attempt failed (%s). Prefer answering with data already retrieved.", lastFailure),
		})
	}
	return msgs
}

func (o *Orchestrator) record(req Request, out *attemptResult, attempts int) {
	if o.recorder == nil {
		return
	}
	err := o.recorder.AppendInteraction(auditlog.Event{
		Timestamp:         time.Now().UTC(),
		SessionID:         req.SessionID,
		UserMessage:       req.Message,
		AssistantResponse: out.text,
		ToolCalls:         out.toolCalls,
		Attempts:          attempts,
	})
	if err != nil {
		log.Printf("⚠️ failed to record interaction for session %s: %v", req.SessionID, err)
	}
}

func wantsTools(resp llm.Response) bool {
	return resp.FinishReason == llm.FinishToolCalls && len(resp.ToolCalls) > 0
}

// parseJSONArgs parses tool-call arguments, tolerating malformed JSON: a
// parse failure yields an empty argument set and the handler reports the
// missing parameters in its envelope.
func parseJSONArgs(raw string) map[string]interface{} {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return make(map[string]interface{})
	}
	return args
}
