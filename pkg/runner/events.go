package runner

import (
	"encoding/json"
	"log/slog"
)

// Event is a transient progress notification published to a session's live
// stream. Each kind is its own struct with a "type" discriminator so payload
// shapes are checked at compile time instead of living in loose maps.
type Event interface {
	eventType() string
}

// AssistantTextEvent carries conversational assistant output. The same text
// is persisted to the chat history.
type AssistantTextEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AssistantBlockEvent carries non-text assistant output (tool use, thinking,
// images). Published only, never persisted.
type AssistantBlockEvent struct {
	Type  string `json:"type"`
	Block any    `json:"block"`
}

// ToolResultEvent reports the outcome of one tool invocation.
type ToolResultEvent struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
}

// APIResponseEvent reports a successful underlying API call.
type APIResponseEvent struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// APIErrorEvent reports a failed underlying API call.
type APIErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// RunErrorEvent reports that the run itself failed.
type RunErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (AssistantTextEvent) eventType() string  { return "assistant_text" }
func (AssistantBlockEvent) eventType() string { return "assistant_block" }
func (ToolResultEvent) eventType() string     { return "tool_result" }
func (APIResponseEvent) eventType() string    { return "api_response" }
func (APIErrorEvent) eventType() string       { return "api_error" }
func (RunErrorEvent) eventType() string       { return "run_error" }

func NewAssistantText(text string) AssistantTextEvent {
	return AssistantTextEvent{Type: "assistant_text", Text: text}
}

func NewAssistantBlock(block any) AssistantBlockEvent {
	return AssistantBlockEvent{Type: "assistant_block", Block: block}
}

func NewToolResult(toolUseID, output, errText string) ToolResultEvent {
	return ToolResultEvent{Type: "tool_result", ToolUseID: toolUseID, Output: output, Error: errText}
}

func NewAPIResponse() APIResponseEvent {
	return APIResponseEvent{Type: "api_response", Status: "ok"}
}

func NewAPIError(errText string) APIErrorEvent {
	return APIErrorEvent{Type: "api_error", Error: errText}
}

func NewRunError(errText string) RunErrorEvent {
	return RunErrorEvent{Type: "run_error", Error: errText}
}

// encode serializes an event for the broker. Encoding these structs cannot
// realistically fail; when it does the event is dropped and logged rather
// than aborting the run.
func encode(ev Event) (string, bool) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode event", "type", ev.eventType(), "error", err)
		return "", false
	}
	return string(payload), true
}
