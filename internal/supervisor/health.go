package supervisor

import "time"

func (s *SessionSupervisor) tmuxHealthLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TmuxHealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkTmuxHealth()
		}
	}
}

func (s *SessionSupervisor) checkTmuxHealth() {
	s.submit(func() (any, error) {
		live, err := s.tmux.ListSessions()
		if err != nil {
			log.WithError(err).Warn("tmux health check failed to list sessions")
			return nil, nil
		}
		liveNames := make(map[string]bool, len(live))
		for _, info := range live {
			liveNames[info.Name] = true
		}

		for _, sess := range s.byId {
			if sess.Kind != KindInternal || sess.TmuxSession == "" {
				continue
			}
			present := liveNames[sess.TmuxSession]
			switch {
			case !present && sess.Status != StatusOffline:
				s.applyStatusLocked(sess, StatusOffline)
			case present && sess.Status == StatusOffline:
				s.applyStatusLocked(sess, StatusIdle)
			}
		}

		s.emitMetrics()
		return nil, nil
	})
}

func (s *SessionSupervisor) workingTimeoutLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.WorkingTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkWorkingTimeout()
		}
	}
}

func (s *SessionSupervisor) checkWorkingTimeout() {
	s.submit(func() (any, error) {
		now := nowMs()
		for _, sess := range s.byId {
			if sess.Status != StatusWorking {
				continue
			}
			if now-sess.LastActivity > s.cfg.WorkingTimeout.Milliseconds() {
				s.applyStatusLocked(sess, StatusIdle)
			}
		}
		return nil, nil
	})
}

func (s *SessionSupervisor) staleCleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.StaleCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runStaleCleanup()
		}
	}
}

func (s *SessionSupervisor) runStaleCleanup() {
	s.submit(func() (any, error) {
		now := nowMs()
		var toDelete []string

		for id, sess := range s.byId {
			if sess.Kind == KindInternal && sess.Status == StatusOffline &&
				now-sess.LastActivity > s.cfg.OfflineCleanup.Milliseconds() {
				toDelete = append(toDelete, id)
				continue
			}
			if now-sess.LastActivity > s.cfg.StaleCleanup.Milliseconds() {
				toDelete = append(toDelete, id)
			}
		}

		for _, id := range toDelete {
			s.deleteLocked(id)
		}
		if len(toDelete) > 0 {
			s.emitMetrics()
		}
		return nil, nil
	})
}
