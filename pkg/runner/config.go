package runner

// RunConfig carries the runtime parameters for one session run. It is
// passed through to the agent loop untouched.
type RunConfig struct {
	Model              string `json:"model"`
	Provider           string `json:"provider"`
	SystemPromptSuffix string `json:"system_prompt_suffix"`
	MaxTokens          int    `json:"max_tokens"`
	ToolVersion        string `json:"tool_version"`

	ThinkingBudget        *int `json:"thinking_budget,omitempty"`
	TokenEfficientTools   bool `json:"token_efficient_tools,omitempty"`
	OnlyNMostRecentImages *int `json:"only_n_most_recent_images,omitempty"`
}
