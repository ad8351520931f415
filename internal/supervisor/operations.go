package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/agentbridge/supervisor/internal/tmuxdriver"
)

type CreateOptions struct {
	Name          string
	Cwd           string
	Agent         string
	Flags         map[string]string
	SpawnTerminal bool
}

type PromptResult struct {
	Ok    bool
	Error string
}

// Create spawns a new internal session: mints a tmux session name,
// resolves cwd, builds the adapter's command line, and creates the
// tmux session with that command.
func (s *SessionSupervisor) Create(opts CreateOptions) (*Session, error) {
	val, err := s.submit(func() (any, error) {
		ad, ok := s.adapters.Get(opts.Agent)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoAdapter, opts.Agent)
		}

		id := newSessionID()
		tmuxSession := "cab-" + id[:8]

		cwd := resolveCwd(opts.Cwd)

		name := opts.Name
		if name == "" {
			name = filepath.Base(cwd)
		}
		if name == "" || name == "." || name == "/" {
			s.counter++
			name = fmt.Sprintf("session-%d", s.counter)
		}

		command, err := ad.BuildCommand(opts.Flags)
		if err != nil {
			return nil, err
		}

		if err := s.tmux.CreateSession(tmuxSession, tmuxdriver.CreateSessionOptions{Cwd: cwd, Command: command}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTmuxFailure, err)
		}

		if opts.SpawnTerminal {
			spawnTerminalBestEffort(tmuxSession)
		}

		now := nowMs()
		sess := &Session{
			ID:           id,
			Name:         name,
			Kind:         KindInternal,
			Agent:        opts.Agent,
			Status:       StatusWorking,
			Cwd:          cwd,
			CreatedAt:    now,
			LastActivity: now,
			TmuxSession:  tmuxSession,
		}

		s.byId[sess.ID] = sess
		s.dirty = true
		s.emitMetrics()
		s.emitSignal(Signal{Kind: SignalSessionCreated, Session: sess.clone()})
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Session), nil
}

func resolveCwd(cwd string) string {
	if cwd != "" {
		if resolved, err := filepath.EvalSymlinks(cwd); err == nil {
			return resolved
		}
		return cwd
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return os.TempDir()
}

// spawnTerminalBestEffort fires-and-forgets a terminal emulator
// attached to the tmux session. Failures here never fail session
// creation.
func spawnTerminalBestEffort(tmuxSession string) {
	bin, err := exec.LookPath("x-terminal-emulator")
	if err != nil {
		return
	}
	cmd := exec.Command(bin, "-e", "tmux", "attach-session", "-t", tmuxSession)
	_ = cmd.Start()
}

func (s *SessionSupervisor) Get(id string) (*Session, bool) {
	val, err := s.submit(func() (any, error) {
		sess, ok := s.byId[id]
		if !ok {
			return (*Session)(nil), nil
		}
		return sess.clone(), nil
	})
	if err != nil {
		return nil, false
	}
	sess, _ := val.(*Session)
	return sess, sess != nil
}

type ListFilter struct {
	Kind   string
	Agent  string
	Status string
}

func (s *SessionSupervisor) List(filter ListFilter) []*Session {
	val, _ := s.submit(func() (any, error) {
		out := make([]*Session, 0, len(s.byId))
		for _, sess := range s.byId {
			if filter.Kind != "" && sess.Kind != filter.Kind {
				continue
			}
			if filter.Agent != "" && sess.Agent != filter.Agent {
				continue
			}
			if filter.Status != "" && sess.Status != filter.Status {
				continue
			}
			out = append(out, sess.clone())
		}
		return out, nil
	})
	sessions, _ := val.([]*Session)
	return sessions
}

func (s *SessionSupervisor) Update(id string, name string) (*Session, error) {
	val, err := s.submit(func() (any, error) {
		sess, ok := s.byId[id]
		if !ok {
			return nil, ErrNotFound
		}
		if name != "" {
			sess.Name = name
		}
		s.dirty = true
		s.emitSignal(Signal{Kind: SignalSessionUpdated, Session: sess.clone()})
		return sess.clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Session), nil
}

func (s *SessionSupervisor) Delete(id string) error {
	_, err := s.submit(func() (any, error) {
		if _, ok := s.byId[id]; !ok {
			return nil, ErrNotFound
		}
		s.deleteLocked(id)
		s.emitMetrics()
		return nil, nil
	})
	return err
}

// deleteLocked removes a session from byId/byAgentId, stops any
// transcript reader, and kills its tmux session if internal. Must
// only run on the command-loop goroutine.
func (s *SessionSupervisor) deleteLocked(id string) {
	sess, ok := s.byId[id]
	if !ok {
		return
	}

	if sess.Kind == KindInternal && sess.TmuxSession != "" {
		s.tmux.KillSession(sess.TmuxSession)
	}
	if sess.AgentSessionID != "" {
		delete(s.byAgentId, sess.AgentSessionID)
	}
	if reader, ok := s.readers[id]; ok {
		reader.Stop()
		delete(s.readers, id)
	}

	delete(s.byId, id)
	s.dirty = true
	s.emitSignal(Signal{Kind: SignalSessionDeleted, Session: sess.clone()})
}

// SendPrompt pastes text into the session's terminal: for external
// sessions via the reported pane/socket, for internal ones via the
// bridge-owned tmux session.
func (s *SessionSupervisor) SendPrompt(id, text string) PromptResult {
	val, _ := s.submit(func() (any, error) {
		sess, ok := s.byId[id]
		if !ok {
			return PromptResult{Ok: false, Error: ErrNotFound.Error()}, nil
		}

		var target, socket string
		isPaneId := false

		switch sess.Kind {
		case KindExternal:
			if sess.Terminal == nil || sess.Terminal.PaneId == "" || sess.Terminal.Socket == "" {
				return PromptResult{Ok: false, Error: ErrNoTerminal.Error()}, nil
			}
			target = sess.Terminal.PaneId
			socket = sess.Terminal.Socket
			isPaneId = true
		case KindInternal:
			if sess.TmuxSession == "" {
				return PromptResult{Ok: false, Error: ErrNoTerminal.Error()}, nil
			}
			if sess.Status == StatusOffline {
				return PromptResult{Ok: false, Error: ErrOffline.Error()}, nil
			}
			target = sess.TmuxSession
		}

		err := s.tmux.PasteBuffer(tmuxdriver.PasteBufferOptions{
			Target:    target,
			Text:      text,
			IsPaneId:  isPaneId,
			Socket:    socket,
			SendEnter: true,
		})
		if err != nil {
			return PromptResult{Ok: false, Error: err.Error()}, nil
		}

		s.applyStatusLocked(sess, StatusWorking)
		return PromptResult{Ok: true}, nil
	})
	result, _ := val.(PromptResult)
	return result
}

// Cancel sends an interrupt to an internal session's tmux session.
func (s *SessionSupervisor) Cancel(id string) bool {
	val, _ := s.submit(func() (any, error) {
		sess, ok := s.byId[id]
		if !ok || sess.Kind != KindInternal || sess.TmuxSession == "" {
			return false, nil
		}
		return s.tmux.SendInterrupt(sess.TmuxSession) == nil, nil
	})
	ok, _ := val.(bool)
	return ok
}

// Restart kills any lingering tmux session for an offline internal
// session, recreates it with a fresh tmux name, and clears its agent
// linkage.
func (s *SessionSupervisor) Restart(id string) (*Session, error) {
	val, err := s.submit(func() (any, error) {
		sess, ok := s.byId[id]
		if !ok {
			return nil, ErrNotFound
		}
		if sess.Kind != KindInternal {
			return nil, fmt.Errorf("%w: restart is internal-only", ErrInvalidInput)
		}
		if sess.Status != StatusOffline {
			return nil, fmt.Errorf("%w: session is not offline", ErrInvalidInput)
		}

		ad, ok := s.adapters.Get(sess.Agent)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoAdapter, sess.Agent)
		}

		if sess.TmuxSession != "" {
			s.tmux.KillSession(sess.TmuxSession)
		}

		s.counter++
		newTmuxSession := fmt.Sprintf("cab-%s-r%d", newSessionID()[:8], s.counter)

		command, err := ad.BuildCommand(nil)
		if err != nil {
			return nil, err
		}
		if err := s.tmux.CreateSession(newTmuxSession, tmuxdriver.CreateSessionOptions{Cwd: sess.Cwd, Command: command}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTmuxFailure, err)
		}

		if sess.AgentSessionID != "" {
			delete(s.byAgentId, sess.AgentSessionID)
		}
		sess.AgentSessionID = ""
		sess.TmuxSession = newTmuxSession
		sess.Status = StatusWorking
		sess.CurrentTool = ""
		sess.LastActivity = nowMs()
		s.dirty = true
		s.emitSignal(Signal{Kind: SignalSessionUpdated, Session: sess.clone()})
		return sess.clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Session), nil
}

// FindOrCreate exposes the session-linking algorithm as a public
// operation (used directly by tests; hook intake links through
// IngestEvent instead).
func (s *SessionSupervisor) FindOrCreate(agentSessionID, agent, cwd string, terminal *Terminal, transcriptPath string) *Session {
	val, _ := s.submit(func() (any, error) {
		return s.findOrCreateLocked(agentSessionID, agent, cwd, terminal, transcriptPath), nil
	})
	sess, _ := val.(*Session)
	return sess
}

func (s *SessionSupervisor) ApplyStatus(sess *Session, status string) {
	s.submit(func() (any, error) {
		if live, ok := s.byId[sess.ID]; ok {
			s.applyStatusLocked(live, status)
		}
		return nil, nil
	})
}

func (s *SessionSupervisor) ApplyTool(sess *Session, tool string) {
	s.submit(func() (any, error) {
		if live, ok := s.byId[sess.ID]; ok {
			s.applyToolLocked(live, tool)
		}
		return nil, nil
	})
}
