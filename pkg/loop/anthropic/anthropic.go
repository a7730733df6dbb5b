// Package anthropic implements the agent loop on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cudemo/agentd/pkg/loop"
)

const tokenEfficientToolsBeta = "token-efficient-tools-2025-02-19"

// Loop runs a single Messages API turn against the session history and
// reports each content block through the request callbacks.
type Loop struct {
	apiKeyEnv string
	baseURL   string
}

var _ loop.Loop = (*Loop)(nil)

// Option configures a Loop.
type Option func(*Loop)

// WithAPIKeyEnv overrides the environment variable the API key is read from.
func WithAPIKeyEnv(name string) Option {
	return func(l *Loop) { l.apiKeyEnv = name }
}

// WithBaseURL points the client at a non-default API endpoint.
func WithBaseURL(url string) Option {
	return func(l *Loop) { l.baseURL = url }
}

// New creates an Anthropic-backed loop.
func New(opts ...Option) *Loop {
	l := &Loop{apiKeyEnv: "ANTHROPIC_API_KEY"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) client() (anthropic.Client, error) {
	apiKey := os.Getenv(l.apiKeyEnv)
	if apiKey == "" {
		return anthropic.Client{}, fmt.Errorf("%s is not set", l.apiKeyEnv)
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if l.baseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(l.baseURL))
	}
	return anthropic.NewClient(requestOptions...), nil
}

// Run executes one agent turn: it replays the prior conversation, calls the
// Messages API and emits each response block through req.OnOutput.
func (l *Loop) Run(ctx context.Context, req loop.Request) error {
	client, err := l.client()
	if err != nil {
		return err
	}

	converted := convertMessages(req.Messages)
	if len(converted) == 0 {
		return errors.New("no messages to send: session history is empty")
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  converted,
	}
	if req.SystemPromptSuffix != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPromptSuffix}}
	}

	if req.ThinkingBudget != nil {
		if thinking, ok := thinkingConfig(int64(*req.ThinkingBudget), maxTokens); ok {
			params.Thinking = thinking
		}
	}

	var requestOptions []option.RequestOption
	if req.TokenEfficientTools {
		requestOptions = append(requestOptions, option.WithHeader("anthropic-beta", tokenEfficientToolsBeta))
	}

	slog.Debug("Anthropic message request",
		"model", params.Model,
		"max_tokens", maxTokens,
		"tool_version", req.ToolVersion,
		"message_count", len(params.Messages))

	message, err := client.Messages.New(ctx, params, requestOptions...)
	if req.OnAPIResponse != nil {
		req.OnAPIResponse(err)
	}
	if err != nil {
		return fmt.Errorf("anthropic message request failed: %w", err)
	}

	for _, block := range message.Content {
		emitBlock(req, block)
	}

	return nil
}

// thinkingConfig validates a requested thinking budget against the API's
// constraints: at least 1024 tokens and strictly below max_tokens. Budgets
// outside that range are logged and dropped rather than failing the run.
func thinkingConfig(thinkingTokens, maxTokens int64) (anthropic.ThinkingConfigParamUnion, bool) {
	switch {
	case thinkingTokens >= 1024 && thinkingTokens < maxTokens:
		return anthropic.ThinkingConfigParamOfEnabled(thinkingTokens), true
	case thinkingTokens >= maxTokens:
		slog.Warn("Anthropic thinking budget must be less than max_tokens, ignoring", "tokens", thinkingTokens, "max_tokens", maxTokens)
	default:
		slog.Warn("Anthropic thinking budget below minimum (1024), ignoring", "tokens", thinkingTokens)
	}
	return anthropic.ThinkingConfigParamUnion{}, false
}

func emitBlock(req loop.Request, block anthropic.ContentBlockUnion) {
	if req.OnOutput == nil {
		return
	}

	switch block.Type {
	case "text":
		req.OnOutput(loop.Block{Type: "text", Text: block.Text})
	default:
		req.OnOutput(loop.Block{Type: block.Type, Raw: block})
	}
}

// convertMessages maps stored turns onto Anthropic message params. Roles
// other than user and assistant were already filtered out by the caller,
// but skip them here too rather than send an invalid request.
func convertMessages(messages []loop.Message) []anthropic.MessageParam {
	converted := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return converted
}
