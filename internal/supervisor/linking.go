package supervisor

import (
	"path/filepath"

	"github.com/agentbridge/supervisor/internal/hookdecoder"
	"github.com/agentbridge/supervisor/internal/metrics"
	"github.com/agentbridge/supervisor/internal/transcript"
)

// canonicalize resolves symlinks the same way on both the incoming
// cwd and a session's stored cwd, per the spec's resolution of the
// string-equality-vs-canonicalized ambiguity: always canonicalized.
func canonicalize(path string) string {
	if path == "" {
		return ""
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}

// findOrCreateLocked is the session-linking algorithm. Must only run
// on the supervisor's own command-loop goroutine.
func (s *SessionSupervisor) findOrCreateLocked(agentSessionID, agentName, cwd string, terminal *Terminal, transcriptPath string) *Session {
	cwd = canonicalize(cwd)

	// Step 2: already linked?
	if sessID, ok := s.byAgentId[agentSessionID]; ok {
		if sess, ok := s.byId[sessID]; ok {
			s.applyLinkExtras(sess, terminal, transcriptPath)
			return sess
		}
		if sess, ok := s.ephemeral[sessID]; ok {
			s.applyLinkExtras(sess, terminal, transcriptPath)
			return sess
		}
	}

	// Step 3: unlinked internal candidate matching agent+cwd within window.
	now := nowMs()
	windowStart := now - s.cfg.LinkingWindow.Milliseconds()
	for _, sess := range s.byId {
		if sess.Kind != KindInternal {
			continue
		}
		if sess.AgentSessionID != "" {
			continue
		}
		if sess.Agent != agentName {
			continue
		}
		if canonicalize(sess.Cwd) != cwd {
			continue
		}
		if sess.CreatedAt < windowStart {
			continue
		}

		sess.AgentSessionID = agentSessionID
		s.byAgentId[agentSessionID] = sess.ID
		s.applyLinkExtras(sess, terminal, transcriptPath)
		s.dirty = true
		return sess
	}

	// Step 4: create a new external session.
	sess := &Session{
		ID:             newSessionID(),
		Name:           agentName + "-" + agentSessionID,
		Kind:           KindExternal,
		Agent:          agentName,
		Status:         StatusWorking,
		Cwd:            cwd,
		CreatedAt:      now,
		LastActivity:   now,
		AgentSessionID: agentSessionID,
		Terminal:       terminal,
		TranscriptPath: transcriptPath,
	}

	if !s.cfg.ExternalTracking {
		// Ephemeral: kept in ephemeral rather than byId, so it will not
		// persist or appear in List/Get, but is still linked by
		// agentSessionID so a later hook event for the same ID hits step
		// 2 instead of minting a second session and a second transcript
		// reader.
		s.ephemeral[sess.ID] = sess
		s.byAgentId[agentSessionID] = sess.ID
		s.startTranscriptReaderLocked(sess)
		return sess
	}

	s.byId[sess.ID] = sess
	s.byAgentId[agentSessionID] = sess.ID
	s.startTranscriptReaderLocked(sess)
	s.dirty = true
	s.emitSignal(Signal{Kind: SignalSessionCreated, Session: sess.clone()})
	return sess
}

func (s *SessionSupervisor) applyLinkExtras(sess *Session, terminal *Terminal, transcriptPath string) {
	if terminal != nil {
		sess.Terminal = terminal
		s.dirty = true
	}
	if transcriptPath != "" && sess.TranscriptPath == "" {
		sess.TranscriptPath = transcriptPath
		s.dirty = true
		s.startTranscriptReaderLocked(sess)
	}
}

func (s *SessionSupervisor) startTranscriptReaderLocked(sess *Session) {
	if sess.TranscriptPath == "" {
		return
	}
	if _, exists := s.readers[sess.ID]; exists {
		return
	}
	ad, ok := s.adapters.Get(sess.Agent)
	if !ok {
		return
	}
	reader := transcript.New(sess.ID, sess.TranscriptPath, ad)
	s.readers[sess.ID] = reader
	reader.Start()
	go s.pumpTranscriptReader(reader)
}

func (s *SessionSupervisor) pumpTranscriptReader(r *transcript.Reader) {
	for ev := range r.Messages {
		select {
		case s.Messages <- Message{SessionID: ev.SessionID, Message: ev.Message}:
		case <-s.ctx.Done():
			return
		}
	}
}

// IngestEvent applies the status/tool transitions an incoming
// ProcessedEvent implies, linking it to a session first via
// findOrCreate, and returns the resulting session.
func (s *SessionSupervisor) IngestEvent(pe *hookdecoder.ProcessedEvent) (*Session, error) {
	val, err := s.submit(func() (any, error) {
		var terminal *Terminal
		if pe.Terminal != nil {
			terminal = &Terminal{PaneId: pe.Terminal.PaneId, Socket: pe.Terminal.Socket, TTY: pe.Terminal.TTY}
		}

		sess := s.findOrCreateLocked(pe.AgentSessionID, pe.Agent, pe.Cwd, terminal, pe.TranscriptPath)
		s.applyEventLocked(sess, pe.Event.Type, pe.Event.Extra)
		metrics.HookEventsTotal.WithLabelValues(pe.Agent, pe.Event.Type).Inc()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Session), nil
}
