package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// record is the stable on-disk persistence layout.
type record struct {
	Sessions          []*Session `json:"sessions"`
	AgentToManagedMap [][2]string `json:"agentToManagedMap"`
	SessionCounter    int        `json:"sessionCounter"`
}

func (s *SessionSupervisor) sessionsPath() string {
	return filepath.Join(s.cfg.StateDir, "sessions.json")
}

// Save writes the snapshot iff the dirty flag is set.
func (s *SessionSupervisor) Save() error {
	_, err := s.submit(func() (any, error) {
		if !s.dirty {
			return nil, nil
		}
		if err := s.writeSnapshotLocked(); err != nil {
			return nil, err
		}
		s.dirty = false
		return nil, nil
	})
	return err
}

// ForceSave writes the snapshot unconditionally.
func (s *SessionSupervisor) ForceSave() error {
	_, err := s.submit(func() (any, error) {
		if err := s.writeSnapshotLocked(); err != nil {
			return nil, err
		}
		s.dirty = false
		return nil, nil
	})
	return err
}

// writeSnapshotLocked writes atomically: temp file in the same
// directory, then rename.
func (s *SessionSupervisor) writeSnapshotLocked() error {
	rec := record{
		Sessions:       make([]*Session, 0, len(s.byId)),
		SessionCounter: s.counter,
	}
	for _, sess := range s.byId {
		rec.Sessions = append(rec.Sessions, sess)
	}
	for agentID, sessID := range s.byAgentId {
		rec.AgentToManagedMap = append(rec.AgentToManagedMap, [2]string{agentID, sessID})
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions snapshot: %w", err)
	}

	if err := os.MkdirAll(s.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	path := s.sessionsPath()
	tmp, err := os.CreateTemp(s.cfg.StateDir, ".sessions-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp snapshot file: %w", err)
	}
	return nil
}

// ReadSessionsFile reads a persisted sessions snapshot directly off
// disk, without a running SessionSupervisor, for callers like the
// doctor subcommand that only need a read-only look at last-known
// state.
func ReadSessionsFile(stateDir string) ([]*Session, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, "sessions.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions snapshot: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse sessions snapshot: %w", err)
	}
	return rec.Sessions, nil
}

// Load reads the snapshot, forcing every internal session offline
// with its terminal cleared (tmux state is not preserved across
// restarts), and rebuilds byAgentId from the persisted mapping. Load
// must be called before Start: no command loop is draining submit's
// channel yet, so it runs directly on the caller's goroutine.
func (s *SessionSupervisor) Load() error {
	load := func() (any, error) {
		data, err := os.ReadFile(s.sessionsPath())
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read sessions snapshot: %w", err)
		}

		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parse sessions snapshot: %w", err)
		}

		s.byId = make(map[string]*Session, len(rec.Sessions))
		s.byAgentId = make(map[string]string, len(rec.AgentToManagedMap))
		s.counter = rec.SessionCounter

		for _, sess := range rec.Sessions {
			if sess.Kind == KindInternal {
				sess.Status = StatusOffline
				sess.Terminal = nil
			}
			s.byId[sess.ID] = sess
		}
		for _, pair := range rec.AgentToManagedMap {
			agentID, sessID := pair[0], pair[1]
			if _, ok := s.byId[sessID]; ok {
				s.byAgentId[agentID] = sessID
			}
		}

		return nil, nil
	}
	_, err := load()
	return err
}
