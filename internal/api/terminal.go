package api

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// channelOwners tracks which wsClient owns each terminal bridge
// channel, so PTY output and status changes route back to the one
// viewer that attached it rather than broadcasting to everyone.
type channelOwners struct {
	mu   sync.Mutex
	byID map[string]*wsClient
}

func newChannelOwners() *channelOwners {
	return &channelOwners{byID: make(map[string]*wsClient)}
}

func (c *channelOwners) set(channelID string, client *wsClient) {
	c.mu.Lock()
	c.byID[channelID] = client
	c.mu.Unlock()
}

func (c *channelOwners) get(channelID string) (*wsClient, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.byID[channelID]
	return client, ok
}

func (c *channelOwners) remove(channelID string) {
	c.mu.Lock()
	delete(c.byID, channelID)
	c.mu.Unlock()
}

// handleWSMessage dispatches every client->server message type this
// build recognizes beyond the hub's own ping/pong handling.
func (s *Server) handleWSMessage(client *wsClient, msgType string, raw json.RawMessage) {
	switch msgType {
	case "get_history":
		// Event history is not persisted (non-goal); always answer
		// empty rather than silently dropping the request.
		client.writeJSON(envelope{Type: "history", Data: []any{}})
	case "subscribe":
		// Subscription filtering is accepted but not yet enforced:
		// every viewer currently receives every broadcast.
	case "terminal.attach":
		s.handleTerminalAttach(client, raw)
	case "terminal.input":
		s.handleTerminalInput(raw)
	case "terminal.resize":
		s.handleTerminalResize(raw)
	case "terminal.detach":
		s.handleTerminalDetach(raw)
	default:
		log.WithField("type", msgType).Debug("unrecognized ws message type")
	}
}

func (s *Server) handleTerminalAttach(client *wsClient, raw json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.SessionID == "" {
		client.writeJSON(envelope{Type: "terminal:status", Data: map[string]string{"status": "error", "message": "sessionId is required"}})
		return
	}

	sess, ok := s.Supervisor.Get(req.SessionID)
	if !ok || sess.TmuxSession == "" {
		client.writeJSON(envelope{Type: "terminal:status", Data: map[string]string{"status": "error", "message": "session has no tmux pane to attach to"}})
		return
	}

	channelID := uuid.New().String()
	if err := s.Terminals.Attach(channelID, sess.TmuxSession); err != nil {
		client.writeJSON(envelope{Type: "terminal:status", Data: map[string]string{"status": "error", "message": err.Error()}})
		return
	}

	s.channels.set(channelID, client)
	client.writeJSON(envelope{Type: "terminal:status", Data: map[string]string{"channelId": channelID, "status": "attached"}})
}

func (s *Server) handleTerminalInput(raw json.RawMessage) {
	var req struct {
		ChannelID string `json:"channelId"`
		Data      string `json:"data"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.ChannelID == "" {
		return
	}
	if err := s.Terminals.SendInput(req.ChannelID, []byte(req.Data)); err != nil {
		log.WithError(err).Debug("terminal input failed")
	}
}

func (s *Server) handleTerminalResize(raw json.RawMessage) {
	var req struct {
		ChannelID string `json:"channelId"`
		Rows      int    `json:"rows"`
		Cols      int    `json:"cols"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.ChannelID == "" {
		return
	}
	if err := s.Terminals.Resize(req.ChannelID, uint16(req.Rows), uint16(req.Cols)); err != nil {
		log.WithError(err).Debug("terminal resize failed")
	}
}

func (s *Server) handleTerminalDetach(raw json.RawMessage) {
	var req struct {
		ChannelID string `json:"channelId"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.ChannelID == "" {
		return
	}
	s.Terminals.Detach(req.ChannelID)
	s.channels.remove(req.ChannelID)
}

func (s *Server) handleTerminalOutput(channelID string, data []byte) {
	client, ok := s.channels.get(channelID)
	if !ok {
		return
	}
	client.writeJSON(envelope{Type: "terminal:output", Data: map[string]any{"channelId": channelID, "bytes": data}})
}

func (s *Server) handleTerminalStatus(channelID, status, message string) {
	client, ok := s.channels.get(channelID)
	if !ok {
		return
	}
	client.writeJSON(envelope{Type: "terminal:status", Data: map[string]string{"channelId": channelID, "status": status, "message": message}})
	if status == "detached" {
		s.channels.remove(channelID)
	}
}
