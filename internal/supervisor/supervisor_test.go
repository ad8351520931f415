package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentbridge/supervisor/internal/adapter"
	"github.com/agentbridge/supervisor/internal/hookdecoder"
	"github.com/agentbridge/supervisor/internal/tmuxdriver"
)

// fakeDriver is an in-memory tmuxdriver.Driver stand-in so supervisor
// tests never spawn a real tmux binary.
type fakeDriver struct {
	sessions map[string]bool
	pastes   []tmuxdriver.PasteBufferOptions
	interrupts []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{sessions: map[string]bool{}}
}

func (f *fakeDriver) CreateSession(name string, opts tmuxdriver.CreateSessionOptions) error {
	if f.sessions[name] {
		return &tmuxdriver.Error{Kind: tmuxdriver.KindAlreadyExists}
	}
	f.sessions[name] = true
	return nil
}
func (f *fakeDriver) KillSession(name string) bool {
	if !f.sessions[name] {
		return false
	}
	delete(f.sessions, name)
	return true
}
func (f *fakeDriver) SessionExists(name string) bool { return f.sessions[name] }
func (f *fakeDriver) ListSessions() ([]tmuxdriver.SessionInfo, error) {
	out := make([]tmuxdriver.SessionInfo, 0, len(f.sessions))
	for name := range f.sessions {
		out = append(out, tmuxdriver.SessionInfo{Name: name})
	}
	return out, nil
}
func (f *fakeDriver) SendKeys(opts tmuxdriver.SendKeysOptions) error { return nil }
func (f *fakeDriver) PasteBuffer(opts tmuxdriver.PasteBufferOptions) error {
	f.pastes = append(f.pastes, opts)
	return nil
}
func (f *fakeDriver) SendInterrupt(target string) error {
	f.interrupts = append(f.interrupts, target)
	return nil
}
func (f *fakeDriver) CapturePane(target string, opts tmuxdriver.CapturePaneOptions) (string, error) {
	return "", nil
}
func (f *fakeDriver) PanePID(target string) (int, error) { return 0, nil }

func newTestSupervisor(t *testing.T, driver *fakeDriver) *SessionSupervisor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.WorkingTimeout = 50 * time.Millisecond
	cfg.TmuxHealthInterval = 30 * time.Millisecond
	cfg.StaleCleanupInterval = 30 * time.Millisecond
	registry := adapter.NewRegistry(adapter.NewClaude(), adapter.NewCodex())
	s := New(cfg, driver, registry)
	require.NoError(t, s.Load())
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func TestCreateInsertsWorkingInternalSession(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	sess, err := s.Create(CreateOptions{Agent: "claude", Cwd: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, KindInternal, sess.Kind)
	require.Equal(t, StatusWorking, sess.Status)
	require.True(t, driver.sessions[sess.TmuxSession])

	got, ok := s.Get(sess.ID)
	require.True(t, ok)
	require.Equal(t, sess.ID, got.ID)
}

func TestCreateUnknownAgentFails(t *testing.T) {
	s := newTestSupervisor(t, newFakeDriver())
	_, err := s.Create(CreateOptions{Agent: "nonexistent"})
	require.ErrorIs(t, err, ErrNoAdapter)
}

func TestWorkingTimeoutTransitionsToIdle(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	sess, err := s.Create(CreateOptions{Agent: "claude", Cwd: t.TempDir()})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := s.Get(sess.ID)
		return got.Status == StatusIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTmuxHealthMarksOfflineWhenSessionDisappears(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	sess, err := s.Create(CreateOptions{Agent: "claude", Cwd: t.TempDir()})
	require.NoError(t, err)

	driver.KillSession(sess.TmuxSession)

	require.Eventually(t, func() bool {
		got, _ := s.Get(sess.ID)
		return got.Status == StatusOffline
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendPromptInternalPastesAndSetsWorking(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	sess, err := s.Create(CreateOptions{Agent: "claude", Cwd: t.TempDir()})
	require.NoError(t, err)

	result := s.SendPrompt(sess.ID, "hello")
	require.True(t, result.Ok)
	require.Len(t, driver.pastes, 1)
	require.Equal(t, sess.TmuxSession, driver.pastes[0].Target)

	got, ok := s.Get(sess.ID)
	require.True(t, ok)
	require.Equal(t, StatusWorking, got.Status)
}

func TestSendPromptOfflineInternalRejected(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	sess, err := s.Create(CreateOptions{Agent: "claude", Cwd: t.TempDir()})
	require.NoError(t, err)
	driver.KillSession(sess.TmuxSession)
	require.Eventually(t, func() bool {
		got, _ := s.Get(sess.ID)
		return got.Status == StatusOffline
	}, 2*time.Second, 10*time.Millisecond)

	result := s.SendPrompt(sess.ID, "hello")
	require.False(t, result.Ok)
}

func TestSendPromptExternalWithoutTerminalFails(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	sess := s.FindOrCreate("agent-sess-1", "claude", t.TempDir(), nil, "")
	require.Equal(t, KindExternal, sess.Kind)

	result := s.SendPrompt(sess.ID, "hi")
	require.False(t, result.Ok)
}

func TestRestartRequiresOfflineStatus(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	sess, err := s.Create(CreateOptions{Agent: "claude", Cwd: t.TempDir()})
	require.NoError(t, err)

	_, err = s.Restart(sess.ID)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRestartGeneratesFreshTmuxSessionAndClearsLinkage(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	sess, err := s.Create(CreateOptions{Agent: "claude", Cwd: t.TempDir()})
	require.NoError(t, err)
	oldTmuxSession := sess.TmuxSession

	pe := &hookdecoder.ProcessedEvent{
		Event:          &adapter.Event{Type: "session_start"},
		AgentSessionID: "claude-abc",
		Agent:          "claude",
		Cwd:            sess.Cwd,
	}
	_, err = s.IngestEvent(pe)
	require.NoError(t, err)

	driver.KillSession(oldTmuxSession)
	require.Eventually(t, func() bool {
		got, _ := s.Get(sess.ID)
		return got.Status == StatusOffline
	}, 2*time.Second, 10*time.Millisecond)

	restarted, err := s.Restart(sess.ID)
	require.NoError(t, err)
	require.NotEqual(t, oldTmuxSession, restarted.TmuxSession)
	require.Empty(t, restarted.AgentSessionID)
	require.Equal(t, StatusWorking, restarted.Status)
	require.True(t, driver.sessions[restarted.TmuxSession])
}

func TestDeleteRemovesSessionAndKillsTmux(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	sess, err := s.Create(CreateOptions{Agent: "claude", Cwd: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, s.Delete(sess.ID))
	_, ok := s.Get(sess.ID)
	require.False(t, ok)
	require.False(t, driver.sessions[sess.TmuxSession])
}

func TestPersistenceRoundTripForcesInternalSessionsOffline(t *testing.T) {
	driver := newFakeDriver()
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	registry := adapter.NewRegistry(adapter.NewClaude())
	s := New(cfg, driver, registry)
	require.NoError(t, s.Load())
	s.Start()

	sess, err := s.Create(CreateOptions{Agent: "claude", Cwd: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.ForceSave())
	s.Stop()

	s2 := New(cfg, driver, registry)
	require.NoError(t, s2.Load())
	s2.Start()
	t.Cleanup(s2.Stop)

	restored, ok := s2.Get(sess.ID)
	require.True(t, ok)
	require.Equal(t, StatusOffline, restored.Status)
	require.Nil(t, restored.Terminal)
}

func TestFindOrCreateLinksWithinWindowByAgentAndCwd(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	cwd := t.TempDir()
	sess, err := s.Create(CreateOptions{Agent: "claude", Cwd: cwd})
	require.NoError(t, err)

	linked := s.FindOrCreate("agent-sess-42", "claude", sess.Cwd, nil, "")
	require.Equal(t, sess.ID, linked.ID)
	require.Equal(t, "agent-sess-42", linked.AgentSessionID)

	// Second call for the same agent session ID must hit the
	// already-linked fast path and return the same session.
	again := s.FindOrCreate("agent-sess-42", "claude", sess.Cwd, nil, "")
	require.Equal(t, sess.ID, again.ID)
}

func TestFindOrCreateEphemeralWhenExternalTrackingDisabled(t *testing.T) {
	driver := newFakeDriver()
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.ExternalTracking = false
	registry := adapter.NewRegistry(adapter.NewClaude())
	s := New(cfg, driver, registry)
	require.NoError(t, s.Load())
	s.Start()
	t.Cleanup(s.Stop)

	sess := s.FindOrCreate("agent-sess-99", "claude", t.TempDir(), nil, "")
	require.NotNil(t, sess)

	_, ok := s.Get(sess.ID)
	require.False(t, ok)
}

func TestIngestEventPreToolUseSetsCurrentTool(t *testing.T) {
	driver := newFakeDriver()
	s := newTestSupervisor(t, driver)

	pe := &hookdecoder.ProcessedEvent{
		Event:          &adapter.Event{Type: "pre_tool_use", Extra: map[string]any{"tool": "Bash"}},
		AgentSessionID: "claude-tool-1",
		Agent:          "claude",
		Cwd:            t.TempDir(),
	}
	sess, err := s.IngestEvent(pe)
	require.NoError(t, err)
	require.Equal(t, StatusWorking, sess.Status)
	require.Equal(t, "Bash", sess.CurrentTool)

	post := &hookdecoder.ProcessedEvent{
		Event:          &adapter.Event{Type: "post_tool_use"},
		AgentSessionID: "claude-tool-1",
		Agent:          "claude",
		Cwd:            sess.Cwd,
	}
	sess, err = s.IngestEvent(post)
	require.NoError(t, err)
	require.Empty(t, sess.CurrentTool)
}
