package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/chorus/internal/agent"
	"github.com/gosuda/chorus/internal/broadcast"
	"github.com/gosuda/chorus/internal/collab"
	"github.com/gosuda/chorus/internal/config"
	"github.com/gosuda/chorus/internal/server"
	"github.com/gosuda/chorus/internal/store/sqlite"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:           "127.0.0.1:0",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			CORSOrigins:    []string{"*"},
			RateLimitRPS:   1000,
			RateLimitBurst: 1000,
		},
	}
}

// newTestServer wires the full stack on a temporary sqlite database with an
// in-process broadcast hub and the zero-delay mock producer.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWithDelay(t, 0)
}

func newTestServerWithDelay(t *testing.T, producerDelay time.Duration) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "chorus.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := broadcast.NewHub()
	orchestrator := collab.NewOrchestrator(store, agent.NewMockProducer(producerDelay), broadcast.NewPubSub(hub, time.Second))

	srv := httptest.NewServer(server.New(ctx, testConfig(), store, orchestrator, hub).Handler())
	t.Cleanup(srv.Close)

	return srv
}

func doJSON(t *testing.T, method, url string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	status, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"Server is up!"}`, string(body))
}

func TestCollaborationOverHTTPAndWebSocket(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	api := srv.URL + "/api/v1"

	// Bootstrap: two agents, one session, two assignments.
	status, _ := doJSON(t, http.MethodPost, api+"/agents", map[string]any{"name": "researcher", "role": "Researcher"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, http.MethodPost, api+"/agents", map[string]any{"name": "writer", "role": "Writer"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, http.MethodPost, api+"/sessions", map[string]any{"session_id": "S1", "title": "Launch"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, http.MethodPost, api+"/sessions/S1/assignments", map[string]any{"agent": "writer", "order": 1})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, http.MethodPost, api+"/sessions/S1/assignments", map[string]any{"agent": "researcher", "order": 0})
	require.Equal(t, http.StatusCreated, status)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat/S1", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var hello map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	require.Equal(t, "connected", hello["event"])

	status, body := doJSON(t, http.MethodPost, api+"/sessions/S1/send", map[string]any{"content": "Plan the launch"})
	require.Equal(t, http.StatusOK, status, string(body))

	var created []map[string]any
	require.NoError(t, json.Unmarshal(body, &created))
	require.Len(t, created, 3)
	assert.Equal(t, "user", created[0]["role"])
	assert.Equal(t, "researcher", created[1]["agent_name"])
	assert.Equal(t, "writer", created[2]["agent_name"])
	assert.Equal(t, "researcher (Researcher) responding to: Plan the launch", created[1]["content"])

	var events []string
	for range 5 {
		var ev map[string]any
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		events = append(events, ev["event"].(string))
	}
	assert.Equal(t, []string{"run_started", "message_created", "agent_turn", "agent_turn", "run_completed"}, events)

	status, body = doJSON(t, http.MethodGet, api+"/sessions/S1/state", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{
		"session_id": "S1",
		"title": "Launch",
		"user_id": "",
		"message_count": 3,
		"assignments": [
			{"order": 0, "agent": "researcher", "role": "Researcher", "prompt_override": false},
			{"order": 1, "agent": "writer", "role": "Writer", "prompt_override": false}
		]
	}`, stripSchema(t, body))

	status, body = doJSON(t, http.MethodGet, api+"/sessions/S1/runs", nil)
	require.Equal(t, http.StatusOK, status)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "success", runs[0]["status"])
}

func TestSend_ClientDisconnectDoesNotCancelRun(t *testing.T) {
	t.Parallel()

	srv := newTestServerWithDelay(t, 300*time.Millisecond)
	api := srv.URL + "/api/v1"

	status, _ := doJSON(t, http.MethodPost, api+"/agents", map[string]any{"name": "researcher", "role": "Researcher"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, http.MethodPost, api+"/agents", map[string]any{"name": "writer", "role": "Writer"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, http.MethodPost, api+"/sessions", map[string]any{"session_id": "S1"})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, http.MethodPost, api+"/sessions/S1/assignments", map[string]any{"agent": "researcher", "order": 0})
	require.Equal(t, http.StatusCreated, status)
	status, _ = doJSON(t, http.MethodPost, api+"/sessions/S1/assignments", map[string]any{"agent": "writer", "order": 1})
	require.Equal(t, http.StatusCreated, status)

	// The client gives up long before the two 300ms turns finish.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+"/sessions/S1/send", strings.NewReader(`{"content":"Plan the launch"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)

	var runs []map[string]any
	require.Eventually(t, func() bool {
		status, body := doJSON(t, http.MethodGet, api+"/sessions/S1/runs", nil)
		if status != http.StatusOK || json.Unmarshal(body, &runs) != nil || len(runs) != 1 {
			return false
		}
		return runs[0]["status"] != "running"
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "success", runs[0]["status"])

	status, body := doJSON(t, http.MethodGet, api+"/sessions/S1/messages", nil)
	require.Equal(t, http.StatusOK, status)
	var messages []map[string]any
	require.NoError(t, json.Unmarshal(body, &messages))
	require.Len(t, messages, 3)
	assert.Equal(t, "user", messages[0]["role"])
	assert.Equal(t, "researcher", messages[1]["agent_name"])
	assert.Equal(t, "writer", messages[2]["agent_name"])
}

func TestSend_UnknownSession(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions/missing/send", map[string]any{"content": "hi"})

	assert.Equal(t, http.StatusNotFound, status)
}

// stripSchema drops the "$schema" link huma adds to response bodies.
func stripSchema(t *testing.T, body []byte) string {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	delete(m, "$schema")

	out, err := json.Marshal(m)
	require.NoError(t, err)

	return string(out)
}
