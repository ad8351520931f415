package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/agentbridge/supervisor/internal/supervisor"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"clients":        s.hub.ClientCount(),
		"sessions":       len(s.Supervisor.List(supervisor.ListFilter{})),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	}
	if s.TmuxConnected != nil {
		body["tmux_connected"] = s.TmuxConnected()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := supervisor.ListFilter{
		Kind:   r.URL.Query().Get("type"),
		Agent:  r.URL.Query().Get("agent"),
		Status: r.URL.Query().Get("status"),
	}
	writeJSON(w, http.StatusOK, s.Supervisor.List(filter))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var opts supervisor.CreateOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.Supervisor.Create(opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.Supervisor.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.Supervisor.Update(r.PathValue("id"), body.Name)
	if err != nil {
		status := http.StatusBadRequest
		if err == supervisor.ErrNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Supervisor.Delete(r.PathValue("id")); err != nil {
		status := http.StatusBadRequest
		if err == supervisor.ErrNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSendPrompt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	result := s.Supervisor.SendPrompt(r.PathValue("id"), body.Prompt)
	if !result.Ok {
		writeError(w, http.StatusBadRequest, result.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.Supervisor.Cancel(r.PathValue("id")) {
		writeError(w, http.StatusBadRequest, "cancel failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Supervisor.Restart(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleEvent is the POST /event intake pipeline: the same
// decode-then-ingest path LineTailer drives when it tails
// events.jsonl, exposed over HTTP for hooks that POST directly.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	pe := s.Decoder.Decode(body)
	if pe == nil {
		var raw map[string]any
		if json.Unmarshal(body, &raw) == nil {
			s.hub.Broadcast("event", raw)
		}
		writeError(w, http.StatusBadRequest, "unrecognized event payload")
		return
	}

	if _, err := s.Supervisor.IngestEvent(pe); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.hub.Broadcast("event", pe.Event)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
