package supervisor

// transitionFor maps a canonical event kind to the status it forces,
// or "" if the event kind doesn't force a transition (lastActivity is
// still bumped for every event regardless).
func transitionFor(eventType string) string {
	switch eventType {
	case "session_start", "user_prompt_submit", "pre_tool_use":
		return StatusWorking
	case "stop", "subagent_stop":
		return StatusIdle
	case "session_end":
		return StatusOffline
	default:
		return ""
	}
}

// applyEventLocked runs the status state-machine transition a
// processed event implies. Must only run on the command-loop goroutine.
func (s *SessionSupervisor) applyEventLocked(sess *Session, eventType string, extra map[string]any) {
	switch eventType {
	case "pre_tool_use":
		tool, _ := extra["tool"].(string)
		s.applyStatusLocked(sess, StatusWorking)
		s.applyToolLocked(sess, tool)
	case "post_tool_use":
		s.applyToolLocked(sess, "")
		sess.LastActivity = nowMs()
		s.dirty = true
	default:
		if next := transitionFor(eventType); next != "" {
			s.applyStatusLocked(sess, next)
		} else {
			sess.LastActivity = nowMs()
			s.dirty = true
		}
	}
}

// applyStatusLocked implements the spec's applyStatus: if old==new,
// only bump lastActivity; otherwise transition, clear currentTool
// when the new status isn't working, mark dirty, emit session:status.
func (s *SessionSupervisor) applyStatusLocked(sess *Session, newStatus string) {
	old := sess.Status
	sess.LastActivity = nowMs()

	if old == newStatus {
		s.dirty = true
		return
	}

	sess.Status = newStatus
	if newStatus != StatusWorking {
		sess.CurrentTool = ""
	}
	s.dirty = true
	s.emitSignal(Signal{Kind: SignalSessionStatus, Session: sess.clone(), OldStatus: old, NewStatus: newStatus})
}

func (s *SessionSupervisor) applyToolLocked(sess *Session, tool string) {
	if sess.Status == StatusWorking {
		sess.CurrentTool = tool
	} else {
		sess.CurrentTool = ""
	}
	s.dirty = true
}

func (s *SessionSupervisor) emitSignal(sig Signal) {
	select {
	case s.Signals <- sig:
	default:
		log.WithField("kind", sig.Kind).Warn("signal channel full, dropping")
	}
}
