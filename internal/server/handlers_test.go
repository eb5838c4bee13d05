package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/procdeck/config"
	"github.com/ngenohkevin/procdeck/internal/events"
	"github.com/ngenohkevin/procdeck/internal/logbuf"
	"github.com/ngenohkevin/procdeck/internal/process"
	"github.com/ngenohkevin/procdeck/internal/store"
)

func newTestServer(t *testing.T) (*Server, *process.Manager) {
	t.Helper()
	cfg := config.LoadWithDefaults()
	cfg.RateLimitRPS = 0
	cfg.WorkDir = t.TempDir()

	opts := cfg.ProcessOptions()
	opts.DrainTimeout = 200 * time.Millisecond
	st := store.New(filepath.Join(t.TempDir(), "processes.json"), 20*time.Millisecond)
	m := process.NewManager(opts, st, events.NewBus())

	s := New(cfg, m)
	t.Cleanup(func() {
		s.Handlers().Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return s, m
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func startSleep(t *testing.T, s *Server) process.Record {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/processes", process.StartRequest{
		Command: "sleep",
		Args:    []string{"30"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec process.Record
	decode(t, w, &rec)
	return rec
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, Version, body["version"])
}

func TestGetInfo(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "procdeck", body["agent"])
	assert.NotEmpty(t, body["hostname"])
	assert.Contains(t, body, "processes")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	startSleep(t, s)

	w := doJSON(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "procdeck_process_starts_total")
}

func TestStartAndListProcesses(t *testing.T) {
	s, _ := newTestServer(t)

	rec := startSleep(t, s)
	assert.Equal(t, process.StatusRunning, rec.Status)
	assert.NotZero(t, rec.PID)

	w := doJSON(t, s, http.MethodGet, "/api/processes", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var list []process.Record
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	w = doJSON(t, s, http.MethodGet, "/api/processes/"+rec.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartProcess_Validation(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/processes", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/processes", map[string]string{"command": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProcess_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/processes/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStopProcess(t *testing.T) {
	s, m := newTestServer(t)
	rec := startSleep(t, s)

	w := doJSON(t, s, http.MethodPost, "/api/processes/"+rec.ID+"/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, true, body["success"])

	got, err := m.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusStopped, got.Status)

	// nothing left to stop
	w = doJSON(t, s, http.MethodPost, "/api/processes/"+rec.ID+"/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	decode(t, w, &body)
	assert.Equal(t, false, body["success"])
}

func TestRestartProcess(t *testing.T) {
	s, _ := newTestServer(t)
	rec := startSleep(t, s)

	w := doJSON(t, s, http.MethodPost, "/api/processes/"+rec.ID+"/restart", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool           `json:"success"`
		Process process.Record `json:"process"`
	}
	decode(t, w, &body)
	assert.True(t, body.Success)
	assert.Equal(t, process.StatusRunning, body.Process.Status)
	assert.NotEqual(t, rec.PID, body.Process.PID)

	w = doJSON(t, s, http.MethodPost, "/api/processes/nonexistent/restart", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveProcess(t *testing.T) {
	s, m := newTestServer(t)
	rec := startSleep(t, s)

	w := doJSON(t, s, http.MethodDelete, "/api/processes/"+rec.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, m.List())

	w = doJSON(t, s, http.MethodDelete, "/api/processes/"+rec.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, false, body["success"])
}

func TestUpdateProcess(t *testing.T) {
	s, _ := newTestServer(t)
	rec := startSleep(t, s)

	w := doJSON(t, s, http.MethodPut, "/api/processes/"+rec.ID, process.StartRequest{
		Command:    "sleep",
		Args:       []string{"60"},
		BeforeStop: "echo bye",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var updated process.Record
	decode(t, w, &updated)
	assert.Equal(t, []string{"60"}, updated.Args)
	assert.Equal(t, "echo bye", updated.BeforeStop)
	assert.Equal(t, rec.PID, updated.PID)

	w = doJSON(t, s, http.MethodPut, "/api/processes/nonexistent", process.StartRequest{Command: "ls"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, false, body["success"])
}

func TestLogsAndInput(t *testing.T) {
	s, m := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/processes", process.StartRequest{Command: "cat"})
	require.Equal(t, http.StatusCreated, w.Code)
	var rec process.Record
	decode(t, w, &rec)

	w = doJSON(t, s, http.MethodPost, "/api/processes/"+rec.ID+"/input", InputRequest{Data: "typed-line\n"})
	assert.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		w := doJSON(t, s, http.MethodGet, "/api/processes/"+rec.ID+"/logs", nil)
		if w.Code != http.StatusOK {
			return false
		}
		var entries []logbuf.Entry
		if json.Unmarshal(w.Body.Bytes(), &entries) != nil {
			return false
		}
		for _, e := range entries {
			if strings.Contains(e.Chunk, "typed-line") {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, m.Stop(rec.ID))
	w = doJSON(t, s, http.MethodPost, "/api/processes/"+rec.ID+"/input", InputRequest{Data: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/processes/nonexistent/logs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteHookInput_NoHook(t *testing.T) {
	s, _ := newTestServer(t)
	rec := startSleep(t, s)

	key := process.HookKey(rec.ID, process.PhaseBeforeStop)
	w := doJSON(t, s, http.MethodPost, "/api/hooks/"+key+"/input", InputRequest{Data: "y\n"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsAndSummary(t *testing.T) {
	s, _ := newTestServer(t)
	rec := startSleep(t, s)

	w := doJSON(t, s, http.MethodGet, "/api/processes/"+rec.ID+"/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var stats process.Stats
	decode(t, w, &stats)
	assert.Equal(t, int32(rec.PID), stats.PID)

	w = doJSON(t, s, http.MethodGet, "/api/summary", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var summary process.Summary
	decode(t, w, &summary)
	assert.Equal(t, process.Summary{Total: 1, Running: 1}, summary)
}

func TestStreamEvents(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event:list-changed\n", line)

	startSleep(t, s)

	sawLive := false
	for !sawLive {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data:") && strings.Contains(line, `"status":"running"`) {
			sawLive = true
		}
	}
}

func TestTerminalWebSocket(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	w := doJSON(t, s, http.MethodPost, "/api/processes", process.StartRequest{Command: "echo ready; cat"})
	require.Equal(t, http.StatusCreated, w.Code)
	var rec process.Record
	decode(t, w, &rec)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/processes/" + rec.ID + "/terminal"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(TerminalFrame{Type: frameInput, Data: "over-websocket\n"}))

	var output strings.Builder
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(output.String(), "over-websocket") {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type == string(events.TypeLog) {
			var entry logbuf.Entry
			require.NoError(t, json.Unmarshal(msg.Data, &entry))
			output.WriteString(entry.Chunk)
		}
	}
	assert.Contains(t, output.String(), "ready")

	require.NoError(t, ws.WriteJSON(TerminalFrame{Type: "resize"}))
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type == frameError {
			assert.Contains(t, string(msg.Data), "unknown frame type")
			break
		}
	}
}

func TestTerminalWebSocket_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/processes/nonexistent/terminal"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusLine(t *testing.T) {
	s, _ := newTestServer(t)
	startSleep(t, s)

	assert.Equal(t, "1 running, 0 stopped, 0 error", s.statusLine())
}
