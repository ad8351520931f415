package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentbridge/supervisor/internal/adapter"
	"github.com/agentbridge/supervisor/internal/hookdecoder"
	"github.com/agentbridge/supervisor/internal/supervisor"
	"github.com/agentbridge/supervisor/internal/terminalbridge"
	"github.com/agentbridge/supervisor/internal/tmuxdriver"
)

// fakeDriver is a minimal in-memory tmuxdriver.Driver so these tests
// never spawn a real tmux binary, mirroring the supervisor package's
// own fakeDriver test double.
type fakeDriver struct {
	sessions map[string]bool
}

func newFakeDriver() *fakeDriver { return &fakeDriver{sessions: map[string]bool{}} }

func (f *fakeDriver) CreateSession(name string, opts tmuxdriver.CreateSessionOptions) error {
	f.sessions[name] = true
	return nil
}
func (f *fakeDriver) KillSession(name string) bool {
	existed := f.sessions[name]
	delete(f.sessions, name)
	return existed
}
func (f *fakeDriver) SessionExists(name string) bool { return f.sessions[name] }
func (f *fakeDriver) ListSessions() ([]tmuxdriver.SessionInfo, error) {
	out := make([]tmuxdriver.SessionInfo, 0, len(f.sessions))
	for name := range f.sessions {
		out = append(out, tmuxdriver.SessionInfo{Name: name})
	}
	return out, nil
}
func (f *fakeDriver) SendKeys(opts tmuxdriver.SendKeysOptions) error    { return nil }
func (f *fakeDriver) SendInterrupt(target string) error                { return nil }
func (f *fakeDriver) PasteBuffer(opts tmuxdriver.PasteBufferOptions) error { return nil }
func (f *fakeDriver) CapturePane(target string, opts tmuxdriver.CapturePaneOptions) (string, error) {
	return "", nil
}
func (f *fakeDriver) PanePID(target string) (int, error) { return 0, nil }

func newTestServer(t *testing.T) (*Server, *supervisor.SessionSupervisor) {
	t.Helper()
	registry := adapter.NewRegistry(adapter.NewClaude(), adapter.NewCodex())
	cfg := supervisor.DefaultConfig()
	cfg.StateDir = t.TempDir()

	sup := supervisor.New(cfg, newFakeDriver(), registry)
	sup.Start()
	t.Cleanup(sup.Stop)

	decoder := hookdecoder.New(registry)
	terminals := terminalbridge.NewManager("/usr/bin/tmux", "")
	t.Cleanup(terminals.Close)

	s := New(sup, decoder, registry, terminals, []string{"*"})
	return s, sup
}

func TestHandleHealthReportsSessionCount(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, float64(0), body["sessions"])
}

func TestCreateAndGetSession(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.mux()

	createBody, _ := json.Marshal(map[string]any{
		"agent": "claude",
		"cwd":   t.TempDir(),
	})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(createBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	require.Equal(t, "working", created["status"])

	getReq := httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/sessions/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleEventIngestsPayload(t *testing.T) {
	s, sup := newTestServer(t)
	mux := s.mux()

	payload, _ := json.Marshal(map[string]any{
		"hook_event_name":  "SessionStart",
		"claude_session_id": "agent-session-1",
		"cwd":              t.TempDir(),
	})
	req := httptest.NewRequest(http.MethodPost, "/event", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return len(sup.List(supervisor.ListFilter{})) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWithAuthRejectsMissingBearerToken(t *testing.T) {
	s, _ := newTestServer(t)
	s.Token = "secret"

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader([]byte(`{"agent":"claude"}`)))
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWithAuthAcceptsCorrectBearerToken(t *testing.T) {
	s, _ := newTestServer(t)
	s.Token = "secret"

	createBody, _ := json.Marshal(map[string]any{"agent": "claude", "cwd": t.TempDir()})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(createBody))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}
