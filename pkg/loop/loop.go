// Package loop defines the contract between the run coordinator and the
// agent execution engine. The engine is handed the session's prior
// conversation plus three callbacks, runs to completion or failure, and
// reports everything it produces through the callbacks.
package loop

import "context"

// Block is one piece of assistant output. The engine emits text blocks for
// conversational content and non-text blocks (tool use, thinking, images)
// for everything else.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// Raw carries the provider-native form of non-text blocks.
	Raw any `json:"raw,omitempty"`
}

// ToolResult is the outcome of one tool invocation made by the engine.
type ToolResult struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Message is one prior conversation turn replayed to the engine.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything the engine needs for one run.
type Request struct {
	Model              string
	Provider           string
	SystemPromptSuffix string
	Messages           []Message

	MaxTokens             int
	ToolVersion           string
	ThinkingBudget        *int
	TokenEfficientTools   bool
	OnlyNMostRecentImages *int

	// OnOutput receives each assistant output block as it is produced.
	OnOutput func(Block)
	// OnToolResult receives the result of each tool invocation together
	// with the provider's tool use ID.
	OnToolResult func(result ToolResult, toolUseID string)
	// OnAPIResponse reports the transport-level outcome of each underlying
	// API call: nil on success, the transport error otherwise.
	OnAPIResponse func(err error)
}

// Loop executes one agent run. Run blocks until the engine finishes and
// returns an error when the run failed. Callbacks may be invoked zero or
// more times before Run returns.
type Loop interface {
	Run(ctx context.Context, req Request) error
}

// LoopFunc adapts a function to the Loop interface.
type LoopFunc func(ctx context.Context, req Request) error

func (f LoopFunc) Run(ctx context.Context, req Request) error {
	return f(ctx, req)
}
