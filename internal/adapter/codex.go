package adapter

import (
	"os/exec"
	"path/filepath"
	"sort"
)

// Codex adapts the OpenAI Codex CLI: its hook payloads carry a
// thread_id and a "tool"/"input" shape rather than Claude's
// "tool_name"/"tool_input", and its hook name arrives under
// event_type.
type Codex struct {
	Bin string
}

func NewCodex() *Codex {
	return &Codex{Bin: "codex"}
}

func (c *Codex) Name() string        { return "codex" }
func (c *Codex) DisplayName() string { return "OpenAI Codex" }

func (c *Codex) BuildCommand(flags map[string]string) (string, error) {
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return buildFlaggedCommand("codex", flags, keys)
}

func (c *Codex) NativeHookNames() []string {
	return []string{
		"session_start", "session_end", "user_prompt_submit",
		"tool_start", "tool_end", "turn_end", "notification",
	}
}

func (c *Codex) HasShape(payload map[string]any) bool {
	if _, ok := payload["thread_id"]; ok {
		return true
	}
	_, hasTool := payload["tool"]
	_, hasInput := payload["input"]
	return hasTool && hasInput
}

func (c *Codex) ExtractSessionID(payload map[string]any) string {
	if v, ok := payload["thread_id"].(string); ok && v != "" {
		return v
	}
	if v, ok := payload["session_id"].(string); ok && v != "" {
		return v
	}
	return ""
}

func (c *Codex) ParseHookEvent(hookName string, payload map[string]any) *Event {
	ev := &Event{Agent: c.Name(), Extra: map[string]any{}}

	switch hookName {
	case "session_start":
		ev.Type = "session_start"
		if v, ok := payload["source"]; ok {
			ev.Extra["source"] = v
		}
	case "user_prompt_submit":
		ev.Type = "user_prompt_submit"
		if v, ok := payload["prompt"]; ok {
			ev.Extra["prompt"] = v
		}
	case "tool_start":
		ev.Type = "pre_tool_use"
		ev.Extra["tool"] = payload["tool"]
		ev.Extra["toolInput"] = payload["input"]
		ev.Extra["toolUseId"] = payload["call_id"]
	case "tool_end":
		ev.Type = "post_tool_use"
		ev.Extra["tool"] = payload["tool"]
		ev.Extra["toolInput"] = payload["input"]
		ev.Extra["toolResponse"] = payload["output"]
		ev.Extra["toolUseId"] = payload["call_id"]
		ev.Extra["success"] = payload["success"]
	case "turn_end":
		ev.Type = "stop"
	case "session_end":
		ev.Type = "session_end"
	case "notification":
		ev.Type = "notification"
		if v, ok := payload["message"]; ok {
			ev.Extra["message"] = v
		}
	default:
		return nil
	}

	ev.AgentSessionID = c.ExtractSessionID(payload)
	return ev
}

func (c *Codex) ParseTranscriptEntry(entry map[string]any) *TranscriptMessage {
	// Codex sessions are supervised without a transcript file in this
	// build; its status is derived entirely from hook events.
	return nil
}

func (c *Codex) GetSettingsPath(home string) string {
	return filepath.Join(home, ".codex", "config.toml")
}

func (c *Codex) InstallHooks(home string) error {
	return nil
}

func (c *Codex) UninstallHooks(home string) error {
	return nil
}

func (c *Codex) IsAvailable() bool {
	_, err := exec.LookPath(c.Bin)
	return err == nil
}
