package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Claude adapts the Claude Code CLI: its hook payloads carry
// hook_event_name and claude_session_id, and its transcript is a
// JSONL file of {type, message, requestId} records.
type Claude struct {
	Bin string
}

func NewClaude() *Claude {
	return &Claude{Bin: "claude"}
}

func (c *Claude) Name() string        { return "claude" }
func (c *Claude) DisplayName() string { return "Claude Code" }

func (c *Claude) BuildCommand(flags map[string]string) (string, error) {
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return buildFlaggedCommand("claude", flags, keys)
}

func (c *Claude) NativeHookNames() []string {
	return []string{
		"SessionStart", "SessionEnd", "UserPromptSubmit",
		"PreToolUse", "PostToolUse", "Stop", "SubagentStop", "Notification",
	}
}

func (c *Claude) HasShape(payload map[string]any) bool {
	if _, ok := payload["claude_session_id"]; ok {
		return true
	}
	_, hasToolName := payload["tool_name"]
	_, hasToolInput := payload["tool_input"]
	return hasToolName && hasToolInput
}

func (c *Claude) ExtractSessionID(payload map[string]any) string {
	if v, ok := payload["claude_session_id"].(string); ok && v != "" {
		return v
	}
	if v, ok := payload["session_id"].(string); ok && v != "" {
		return v
	}
	return ""
}

func (c *Claude) ParseHookEvent(hookName string, payload map[string]any) *Event {
	ev := &Event{Agent: c.Name(), Extra: map[string]any{}}

	switch hookName {
	case "SessionStart":
		ev.Type = "session_start"
		if v, ok := payload["source"]; ok {
			ev.Extra["source"] = v
		}
	case "UserPromptSubmit":
		ev.Type = "user_prompt_submit"
		if v, ok := payload["prompt"]; ok {
			ev.Extra["prompt"] = v
		}
	case "PreToolUse":
		ev.Type = "pre_tool_use"
		ev.Extra["tool"] = payload["tool_name"]
		ev.Extra["toolInput"] = payload["tool_input"]
		ev.Extra["toolUseId"] = payload["tool_use_id"]
	case "PostToolUse":
		ev.Type = "post_tool_use"
		ev.Extra["tool"] = payload["tool_name"]
		ev.Extra["toolInput"] = payload["tool_input"]
		ev.Extra["toolResponse"] = payload["tool_response"]
		ev.Extra["toolUseId"] = payload["tool_use_id"]
		if result, ok := payload["tool_response"].(map[string]any); ok {
			_, hasErr := result["error"]
			ev.Extra["success"] = !hasErr
		} else {
			ev.Extra["success"] = true
		}
	case "Stop":
		ev.Type = "stop"
		ev.Extra["stopHookActive"] = payload["stop_hook_active"]
		if v, ok := payload["response"]; ok {
			ev.Extra["response"] = v
		}
	case "SubagentStop":
		ev.Type = "subagent_stop"
	case "SessionEnd":
		ev.Type = "session_end"
	case "Notification":
		ev.Type = "notification"
		if v, ok := payload["message"]; ok {
			ev.Extra["message"] = v
		}
		if v, ok := payload["level"]; ok {
			ev.Extra["level"] = v
		}
	default:
		return nil
	}

	ev.AgentSessionID = c.ExtractSessionID(payload)
	return ev
}

func (c *Claude) ParseTranscriptEntry(entry map[string]any) *TranscriptMessage {
	if entry["type"] != "assistant" {
		return nil
	}
	message, _ := entry["message"].(map[string]any)
	if message == nil {
		return nil
	}
	rawContent, _ := message["content"].([]any)

	msg := &TranscriptMessage{}
	if v, ok := entry["requestId"].(string); ok {
		msg.RequestID = v
	}

	allEmpty := true
	for _, raw := range rawContent {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := block["type"].(string)
		switch kind {
		case "text":
			text, _ := block["text"].(string)
			msg.Content = append(msg.Content, ContentBlock{Kind: "text", Text: text})
			if strings.TrimSpace(text) != "" {
				allEmpty = false
			}
		case "thinking":
			text, _ := block["thinking"].(string)
			msg.Content = append(msg.Content, ContentBlock{Kind: "thinking", Text: text})
			allEmpty = false
		case "tool_use":
			name, _ := block["name"].(string)
			input, _ := block["input"].(map[string]any)
			id, _ := block["id"].(string)
			msg.Content = append(msg.Content, ContentBlock{Kind: "tool_use", ToolName: name, ToolInput: input, ToolUseID: id})
			allEmpty = false
		}
	}
	msg.IsPreamble = allEmpty
	return msg
}

func (c *Claude) GetSettingsPath(home string) string {
	return filepath.Join(home, ".claude", "settings.json")
}

const claudeHookMarker = "coding-agent-hook.sh"

func (c *Claude) InstallHooks(home string) error {
	return installMarkedHook(c.GetSettingsPath(home), claudeHookMarker)
}

func (c *Claude) UninstallHooks(home string) error {
	return uninstallMarkedHook(c.GetSettingsPath(home), claudeHookMarker)
}

func (c *Claude) IsAvailable() bool {
	_, err := exec.LookPath(c.Bin)
	return err == nil
}

// installMarkedHook adds a hook entry referencing marker to a JSON
// settings file at path, deduplicating so repeated calls converge on
// exactly one entry.
func installMarkedHook(path, marker string) error {
	settings, err := readSettings(path)
	if err != nil {
		return err
	}

	hooks, _ := settings["hooks"].([]any)
	for _, h := range hooks {
		if entry, ok := h.(map[string]any); ok {
			if cmd, ok := entry["command"].(string); ok && strings.Contains(cmd, marker) {
				return nil
			}
		}
	}

	hooks = append(hooks, map[string]any{"command": marker})
	settings["hooks"] = hooks
	return writeSettings(path, settings)
}

func uninstallMarkedHook(path, marker string) error {
	settings, err := readSettings(path)
	if err != nil {
		return err
	}
	hooks, _ := settings["hooks"].([]any)
	filtered := hooks[:0]
	for _, h := range hooks {
		if entry, ok := h.(map[string]any); ok {
			if cmd, ok := entry["command"].(string); ok && strings.Contains(cmd, marker) {
				continue
			}
		}
		filtered = append(filtered, h)
	}
	settings["hooks"] = filtered
	return writeSettings(path, settings)
}

func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return settings, nil
}

func writeSettings(path string, settings map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
