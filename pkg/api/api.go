// Package api holds the request and response shapes of the HTTP surface.
package api

import "time"

// SessionResponse is the wire form of a session record.
type SessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageResponse is the wire form of one chat history entry.
type MessageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Sequence  int64     `json:"sequence"`
}

// AddMessageRequest appends a turn to a session's history.
type AddMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StartRunRequest carries the run configuration.
type StartRunRequest struct {
	Model              string `json:"model"`
	Provider           string `json:"provider"`
	SystemPromptSuffix string `json:"system_prompt_suffix"`
	MaxTokens          int    `json:"max_tokens"`
	ToolVersion        string `json:"tool_version"`

	ThinkingBudget        *int `json:"thinking_budget,omitempty"`
	TokenEfficientTools   bool `json:"token_efficient_tools,omitempty"`
	OnlyNMostRecentImages *int `json:"only_n_most_recent_images,omitempty"`
}

// StartRunResponse reports whether a new run was started. Started is false
// when a run is already active for the session.
type StartRunResponse struct {
	Started bool `json:"started"`
}
