// Package runner coordinates background agent executions. It enforces the
// single-flight guarantee (at most one active run per session), bridges the
// loop's callbacks into the session store and the event broker, and tracks
// each run's lifecycle.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cudemo/agentd/pkg/broker"
	"github.com/cudemo/agentd/pkg/loop"
	"github.com/cudemo/agentd/pkg/session"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Run tracks one background execution for a session.
type Run struct {
	sessionID string
	status    Status
	done      chan struct{}
}

// Runner owns the session-to-run map and launches executions.
type Runner struct {
	store  session.Store
	broker *broker.Broker
	loop   loop.Loop

	mu   sync.Mutex
	runs map[string]*Run
}

// New creates a runner wired to the given store, broker and loop.
func New(store session.Store, b *broker.Broker, l loop.Loop) *Runner {
	return &Runner{
		store:  store,
		broker: b,
		loop:   l,
		runs:   make(map[string]*Run),
	}
}

// Start launches a background run for the session unless one is already
// active. It returns false (and no error) when a run is active, true when a
// new run was started. The execution proceeds after Start returns; its
// outcome is only observable through the event stream and Status.
func (r *Runner) Start(ctx context.Context, sessionID string, cfg RunConfig) (bool, error) {
	if _, err := r.store.GetSession(ctx, sessionID); err != nil {
		return false, fmt.Errorf("failed to get session: %w", err)
	}

	r.mu.Lock()
	if existing := r.runs[sessionID]; existing != nil && existing.status == StatusRunning {
		r.mu.Unlock()
		return false, nil
	}
	run := &Run{
		sessionID: sessionID,
		status:    StatusRunning,
		done:      make(chan struct{}),
	}
	r.runs[sessionID] = run
	r.mu.Unlock()

	go r.execute(run, cfg)

	return true, nil
}

// Status reports the state of the session's most recent run. The second
// return is false when the session never had a run.
func (r *Runner) Status(sessionID string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[sessionID]
	if !ok {
		return "", false
	}
	return run.status, true
}

// Wait blocks until the session's current run reaches a terminal state or
// the context is done. Sessions without a run return immediately.
func (r *Runner) Wait(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	run, ok := r.runs[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) finish(run *Run, status Status) {
	r.mu.Lock()
	run.status = status
	r.mu.Unlock()
	close(run.done)
}

// execute runs the loop to completion. It never panics out into the
// runtime: failures of any kind transition the run to failed and surface as
// a run_error notification.
func (r *Runner) execute(run *Run, cfg RunConfig) {
	ctx := context.Background()

	err := r.runLoop(ctx, run.sessionID, cfg)
	if err != nil {
		slog.Error("run failed", "session_id", run.sessionID, "error", err)
		r.publish(run.sessionID, NewRunError(err.Error()))
		r.finish(run, StatusFailed)
		return
	}

	r.finish(run, StatusFinished)
}

func (r *Runner) runLoop(ctx context.Context, sessionID string, cfg RunConfig) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	messages, err := r.buildMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session history: %w", err)
	}

	req := loop.Request{
		Model:              cfg.Model,
		Provider:           cfg.Provider,
		SystemPromptSuffix: cfg.SystemPromptSuffix,
		Messages:           messages,

		MaxTokens:             cfg.MaxTokens,
		ToolVersion:           cfg.ToolVersion,
		ThinkingBudget:        cfg.ThinkingBudget,
		TokenEfficientTools:   cfg.TokenEfficientTools,
		OnlyNMostRecentImages: cfg.OnlyNMostRecentImages,

		OnOutput:      r.outputSink(ctx, sessionID),
		OnToolResult:  r.toolResultSink(ctx, sessionID),
		OnAPIResponse: r.apiResponseSink(sessionID),
	}

	return r.loop.Run(ctx, req)
}

// buildMessages converts stored history into the loop's input form. Tool
// rows record side effects, not conversational turns, and are not replayed.
func (r *Runner) buildMessages(ctx context.Context, sessionID string) ([]loop.Message, error) {
	history, err := r.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messages := make([]loop.Message, 0, len(history))
	for _, msg := range history {
		if msg.Role != session.RoleUser && msg.Role != session.RoleAssistant {
			continue
		}
		messages = append(messages, loop.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return messages, nil
}

// outputSink persists textual assistant output and publishes a notification
// for every block. Non-text blocks are ephemeral: published, not stored.
func (r *Runner) outputSink(ctx context.Context, sessionID string) func(loop.Block) {
	return func(block loop.Block) {
		if block.Type != "text" {
			r.publish(sessionID, NewAssistantBlock(block))
			return
		}

		if block.Text != "" {
			r.appendMessage(ctx, sessionID, session.RoleAssistant, block.Text)
		}
		r.publish(sessionID, NewAssistantText(block.Text))
	}
}

func (r *Runner) toolResultSink(ctx context.Context, sessionID string) func(loop.ToolResult, string) {
	return func(result loop.ToolResult, toolUseID string) {
		text := result.Output
		if text == "" {
			text = result.Error
		}
		if text != "" {
			r.appendMessage(ctx, sessionID, session.RoleTool, text)
		}
		r.publish(sessionID, NewToolResult(toolUseID, result.Output, result.Error))
	}
}

func (r *Runner) apiResponseSink(sessionID string) func(error) {
	return func(err error) {
		if err != nil {
			r.publish(sessionID, NewAPIError(err.Error()))
			return
		}
		r.publish(sessionID, NewAPIResponse())
	}
}

// appendMessage persists a callback artifact. A storage failure here must
// not take down the run or leak into other sessions: it is logged and the
// live stream keeps flowing.
func (r *Runner) appendMessage(ctx context.Context, sessionID string, role session.Role, content string) {
	if _, err := r.store.AddMessage(ctx, sessionID, role, content); err != nil {
		slog.Error("failed to persist message", "session_id", sessionID, "role", role, "error", err)
	}
}

func (r *Runner) publish(sessionID string, ev Event) {
	payload, ok := encode(ev)
	if !ok {
		return
	}
	r.broker.Publish(sessionID, payload)
}
