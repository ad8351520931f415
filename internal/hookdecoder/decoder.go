// Package hookdecoder normalizes arbitrary hook payloads — whether
// tailed from the events.jsonl file or POSTed to the hooks HTTP
// endpoint — into typed ProcessedEvents, generalizing the daemon's
// extractHookName/extractToolName/handleClaudeHook free functions
// into an adapter-driven pipeline.
package hookdecoder

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/agentbridge/supervisor/internal/adapter"
	"github.com/agentbridge/supervisor/internal/logging"
)

var log = logging.For("hookdecoder")

// Terminal carries whichever pane/socket/tty fields a hook payload
// supplied.
type Terminal struct {
	PaneId string
	Socket string
	TTY    string
}

// ProcessedEvent is the output of Decode: the canonical event plus
// the routing metadata SessionSupervisor needs to link it.
type ProcessedEvent struct {
	Event          *adapter.Event
	AgentSessionID string
	Agent          string
	Terminal       *Terminal
	Cwd            string
	TranscriptPath string
}

type Decoder struct {
	Registry *adapter.Registry
}

func New(registry *adapter.Registry) *Decoder {
	return &Decoder{Registry: registry}
}

// Decode runs the 9-step normalization algorithm over one raw
// payload. It returns nil if the payload cannot be attributed to a
// registered adapter or otherwise fails validation; callers must drop
// the record silently in that case, per the "never let a bad input
// tear down the server" policy.
func (d *Decoder) Decode(raw []byte) *ProcessedEvent {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.WithError(err).Debug("dropping unparseable hook payload")
		return nil
	}
	return d.DecodePayload(payload)
}

func (d *Decoder) DecodePayload(payload map[string]any) *ProcessedEvent {
	ad := d.detectAgent(payload)
	if ad == nil {
		log.Debug("dropping hook payload: no adapter matched")
		return nil
	}

	hookName := resolveHookName(payload)
	if hookName == "" {
		return nil
	}

	ev := ad.ParseHookEvent(hookName, payload)
	if ev == nil {
		return nil
	}

	if ev.Agent == "" {
		ev.Agent = ad.Name()
	}
	if ev.Type == "" {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	agentSessionID := ev.AgentSessionID
	if agentSessionID == "" {
		agentSessionID = ad.ExtractSessionID(payload)
	}
	if agentSessionID == "" {
		agentSessionID = fallbackSessionID(ad.Name(), payload)
	}
	if agentSessionID == "" {
		log.Debug("dropping hook payload: no session identifier resolvable")
		return nil
	}
	ev.AgentSessionID = agentSessionID

	out := &ProcessedEvent{
		Event:          ev,
		AgentSessionID: agentSessionID,
		Agent:          ev.Agent,
	}

	if term := extractTerminal(payload); term != nil {
		out.Terminal = term
	}
	out.Cwd = extractCwd(payload)
	if v, ok := payload["transcript_path"].(string); ok && v != "" {
		out.TranscriptPath = v
	}

	return out
}

// detectAgent implements the four-step agent-detection cascade:
// explicit agent field, adapter-specific session key, hook-name
// membership, then each adapter's HasShape (tool-field shape).
func (d *Decoder) detectAgent(payload map[string]any) adapter.Adapter {
	if name, ok := payload["agent"].(string); ok {
		if ad, ok := d.Registry.Get(name); ok {
			return ad
		}
	}

	for _, k := range []struct{ key, agent string }{
		{"claude_session_id", "claude"},
		{"thread_id", "codex"},
	} {
		if _, ok := payload[k.key]; ok {
			if ad, ok := d.Registry.Get(k.agent); ok {
				return ad
			}
		}
	}

	hookName := resolveHookName(payload)
	if hookName != "" {
		for _, ad := range d.Registry.All() {
			for _, native := range ad.NativeHookNames() {
				if native == hookName {
					return ad
				}
			}
		}
	}

	for _, ad := range d.Registry.All() {
		if ad.HasShape(payload) {
			return ad
		}
	}

	return nil
}

func resolveHookName(payload map[string]any) string {
	for _, key := range []string{"hook_event_name", "hook_type", "type", "event_type"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func fallbackSessionID(agent string, payload map[string]any) string {
	if v, ok := payload["claude_session_id"].(string); ok && v != "" {
		return v
	}
	if v, ok := payload["session_id"].(string); ok && v != "" {
		return v
	}
	if agent == "codex" {
		if v, ok := payload["tmux_pane"].(string); ok && v != "" {
			return agent + "-" + v
		}
	}
	if v, ok := payload["tty"].(string); ok && v != "" {
		return agent + "-" + v
	}
	return ""
}

func extractTerminal(payload map[string]any) *Terminal {
	pane, hasPane := payload["tmux_pane"].(string)
	socket, hasSocket := payload["tmux_socket"].(string)
	tty, hasTTY := payload["tty"].(string)
	if !hasPane && !hasSocket && !hasTTY {
		return nil
	}
	return &Terminal{PaneId: pane, Socket: socket, TTY: tty}
}

func extractCwd(payload map[string]any) string {
	if v, ok := payload["cwd"].(string); ok && v != "" {
		return v
	}
	if v, ok := payload["working_directory"].(string); ok && v != "" {
		return v
	}
	return ""
}
