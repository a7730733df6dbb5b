package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cudemo/agentd/pkg/api"
	"github.com/cudemo/agentd/pkg/broker"
	"github.com/cudemo/agentd/pkg/config"
	"github.com/cudemo/agentd/pkg/loop"
	"github.com/cudemo/agentd/pkg/runner"
	"github.com/cudemo/agentd/pkg/session"
)

type fixture struct {
	store  session.Store
	broker *broker.Broker
	runner *runner.Runner
	url    string
	client *http.Client
}

func startServer(t *testing.T, agentLoop loop.Loop) *fixture {
	t.Helper()
	return startServerWithDefaults(t, agentLoop, config.RunDefaults{})
}

func startServerWithDefaults(t *testing.T, agentLoop loop.Loop, defaults config.RunDefaults) *fixture {
	t.Helper()

	if agentLoop == nil {
		agentLoop = loop.LoopFunc(func(context.Context, loop.Request) error { return nil })
	}

	store := session.NewInMemoryStore()
	b := broker.New()
	r := runner.New(store, b, agentLoop)

	srv := httptest.NewServer(New(store, b, r, defaults).Handler())
	t.Cleanup(srv.Close)

	return &fixture{
		store:  store,
		broker: b,
		runner: r,
		url:    srv.URL,
		client: srv.Client(),
	}
}

func (f *fixture) postJSON(t *testing.T, path string, body, out any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := f.client.Post(f.url+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp
}

func (f *fixture) getJSON(t *testing.T, path string, out any) *http.Response {
	t.Helper()

	resp, err := f.client.Get(f.url + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp
}

func (f *fixture) createSession(t *testing.T) string {
	t.Helper()

	var created api.SessionResponse
	resp := f.postJSON(t, "/api/sessions", nil, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, created.ID)
	return created.ID
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)

	var status map[string]string
	resp := f.getJSON(t, "/health", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", status["status"])
}

func TestServer_CreateAndGetSession(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)
	id := f.createSession(t)

	var got api.SessionResponse
	resp := f.getJSON(t, "/api/sessions/"+id, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestServer_GetSession_NotFound(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)

	resp := f.getJSON(t, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Messages(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)
	id := f.createSession(t)

	var added api.MessageResponse
	resp := f.postJSON(t, "/api/sessions/"+id+"/messages",
		api.AddMessageRequest{Role: "user", Content: "hello"}, &added)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(1), added.Sequence)

	var messages []api.MessageResponse
	resp = f.getJSON(t, "/api/sessions/"+id+"/messages", &messages)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, int64(1), messages[0].Sequence)
}

func TestServer_Messages_EmptyListIsArray(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)
	id := f.createSession(t)

	resp, err := f.client.Get(f.url + "/api/sessions/" + id + "/messages")
	require.NoError(t, err)
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(buf)) // We don't want null, but an empty array
}

func TestServer_AddMessage_Validation(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)
	id := f.createSession(t)

	tests := []struct {
		name string
		req  api.AddMessageRequest
		want int
	}{
		{"unknown role", api.AddMessageRequest{Role: "system", Content: "x"}, http.StatusBadRequest},
		{"empty content", api.AddMessageRequest{Role: "user"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.postJSON(t, "/api/sessions/"+id+"/messages", tt.req, nil)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	resp := f.postJSON(t, "/api/sessions/nope/messages",
		api.AddMessageRequest{Role: "user", Content: "x"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StartRun(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := startServer(t, loop.LoopFunc(func(context.Context, loop.Request) error {
		<-release
		return nil
	}))
	defer close(release)

	id := f.createSession(t)
	f.postJSON(t, "/api/sessions/"+id+"/messages",
		api.AddMessageRequest{Role: "user", Content: "hello"}, nil)

	var started api.StartRunResponse
	resp := f.postJSON(t, "/api/sessions/"+id+"/run",
		api.StartRunRequest{Model: "claude-sonnet-4-5", Provider: "anthropic"}, &started)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, started.Started)

	resp = f.postJSON(t, "/api/sessions/"+id+"/run",
		api.StartRunRequest{Model: "claude-sonnet-4-5", Provider: "anthropic"}, &started)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, started.Started, "second start while running must be rejected")
}

func TestServer_StartRun_Validation(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)
	id := f.createSession(t)

	resp := f.postJSON(t, "/api/sessions/"+id+"/run", api.StartRunRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.postJSON(t, "/api/sessions/nope/run", api.StartRunRequest{Model: "m"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StartRun_AppliesConfiguredDefaults(t *testing.T) {
	t.Parallel()

	captured := make(chan loop.Request, 1)
	f := startServerWithDefaults(t, loop.LoopFunc(func(_ context.Context, req loop.Request) error {
		captured <- req
		return nil
	}), config.RunDefaults{
		Model:     "claude-sonnet-4-5",
		Provider:  "anthropic",
		MaxTokens: 2048,
	})

	id := f.createSession(t)

	var started api.StartRunResponse
	resp := f.postJSON(t, "/api/sessions/"+id+"/run", api.StartRunRequest{}, &started)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, started.Started)

	select {
	case req := <-captured:
		assert.Equal(t, "claude-sonnet-4-5", req.Model)
		assert.Equal(t, "anthropic", req.Provider)
		assert.Equal(t, 2048, req.MaxTokens)
	case <-time.After(5 * time.Second):
		t.Fatal("loop was not invoked")
	}
}

func TestServer_StartRun_RequestOverridesDefaults(t *testing.T) {
	t.Parallel()

	captured := make(chan loop.Request, 1)
	f := startServerWithDefaults(t, loop.LoopFunc(func(_ context.Context, req loop.Request) error {
		captured <- req
		return nil
	}), config.RunDefaults{
		Model:     "claude-sonnet-4-5",
		Provider:  "anthropic",
		MaxTokens: 2048,
	})

	id := f.createSession(t)

	var started api.StartRunResponse
	resp := f.postJSON(t, "/api/sessions/"+id+"/run",
		api.StartRunRequest{Model: "claude-opus-4-1", MaxTokens: 512}, &started)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, started.Started)

	select {
	case req := <-captured:
		assert.Equal(t, "claude-opus-4-1", req.Model)
		assert.Equal(t, "anthropic", req.Provider)
		assert.Equal(t, 512, req.MaxTokens)
	case <-time.After(5 * time.Second):
		t.Fatal("loop was not invoked")
	}
}

func TestServer_EventStream(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)
	id := f.createSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+"/api/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	// Wait for the subscription to be registered before publishing.
	require.Eventually(t, func() bool {
		return f.broker.SubscriberCount(id) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.broker.Publish(id, `{"type":"assistant_text","text":"hi"}`)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			assert.JSONEq(t, `{"type":"assistant_text","text":"hi"}`, strings.TrimPrefix(line, "data: "))
			return
		}
	}
	t.Fatal("no data frame received")
}

func TestServer_EventStream_UnknownSession(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)

	resp := f.getJSON(t, "/api/sessions/nope/events", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_EventStream_DisconnectUnsubscribes(t *testing.T) {
	t.Parallel()

	f := startServer(t, nil)
	id := f.createSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url+"/api/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		return f.broker.SubscriberCount(id) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	require.Eventually(t, func() bool {
		return f.broker.SubscriberCount(id) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_EndToEnd_RunPersistsAndStreams(t *testing.T) {
	t.Parallel()

	f := startServer(t, loop.LoopFunc(func(_ context.Context, req loop.Request) error {
		req.OnOutput(loop.Block{Type: "text", Text: "hi"})
		return nil
	}))

	id := f.createSession(t)
	f.postJSON(t, "/api/sessions/"+id+"/messages",
		api.AddMessageRequest{Role: "user", Content: "hello"}, nil)

	sub := f.broker.Subscribe(id)
	defer sub.Close()

	var started api.StartRunResponse
	resp := f.postJSON(t, "/api/sessions/"+id+"/run",
		api.StartRunRequest{Model: "claude-sonnet-4-5"}, &started)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, started.Started)

	select {
	case payload := <-sub.Events():
		assert.JSONEq(t, `{"type":"assistant_text","text":"hi"}`, payload)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	require.Eventually(t, func() bool {
		var messages []api.MessageResponse
		f.getJSON(t, "/api/sessions/"+id+"/messages", &messages)
		return len(messages) == 2
	}, 5*time.Second, 20*time.Millisecond)

	var messages []api.MessageResponse
	f.getJSON(t, "/api/sessions/"+id+"/messages", &messages)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, "hi", messages[1].Content)
	assert.Equal(t, int64(2), messages[1].Sequence)
}
