package adapter

import (
	"strings"
	"testing"
)

func TestClaudeBuildCommandQuotesShellMetacharacters(t *testing.T) {
	claude := NewClaude()
	cmd, err := claude.BuildCommand(map[string]string{"model": "x; touch /tmp/rce"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `claude --model='x; touch /tmp/rce'`
	if cmd != want {
		t.Errorf("BuildCommand() = %q, want %q", cmd, want)
	}
}

func TestClaudeBuildCommandEscapesEmbeddedSingleQuote(t *testing.T) {
	claude := NewClaude()
	cmd, err := claude.BuildCommand(map[string]string{"prompt": "it's a test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(cmd, `'\''`) {
		t.Errorf("expected escaped single quote in %q", cmd)
	}
}

func TestBuildCommandRejectsInvalidFlagKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"leading dash", "-model"},
		{"trailing dash", "model-"},
		{"space", "mo del"},
		{"underscore", "mo_del"},
		{"empty", ""},
	}

	claude := NewClaude()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := claude.BuildCommand(map[string]string{tt.key: "v"})
			if err == nil {
				t.Fatalf("expected InvalidFlagKey error for key %q", tt.key)
			}
			if _, ok := err.(*ErrInvalidFlagKey); !ok {
				t.Errorf("expected *ErrInvalidFlagKey, got %T", err)
			}
		})
	}
}

func TestClaudeParseHookEventPreToolUse(t *testing.T) {
	claude := NewClaude()
	ev := claude.ParseHookEvent("PreToolUse", map[string]any{
		"claude_session_id": "abc",
		"tool_name":         "Bash",
		"tool_input":        map[string]any{"command": "ls"},
		"tool_use_id":       "tu_1",
	})
	if ev == nil {
		t.Fatal("expected non-nil event")
	}
	if ev.Type != "pre_tool_use" {
		t.Errorf("Type = %q, want pre_tool_use", ev.Type)
	}
	if ev.AgentSessionID != "abc" {
		t.Errorf("AgentSessionID = %q, want abc", ev.AgentSessionID)
	}
	if ev.Extra["tool"] != "Bash" {
		t.Errorf("Extra[tool] = %v, want Bash", ev.Extra["tool"])
	}
}

func TestClaudeParseHookEventUnknownHookReturnsNil(t *testing.T) {
	claude := NewClaude()
	if ev := claude.ParseHookEvent("SomeUnknownHook", map[string]any{}); ev != nil {
		t.Errorf("expected nil for unrecognized hook, got %+v", ev)
	}
}

func TestCodexHasShapeDoesNotMatchClaudeFields(t *testing.T) {
	codex := NewCodex()
	if codex.HasShape(map[string]any{"tool_name": "Bash", "tool_input": map[string]any{}}) {
		t.Error("codex should not match claude's tool_name/tool_input shape")
	}
	if !codex.HasShape(map[string]any{"tool": "shell", "input": map[string]any{}}) {
		t.Error("codex should match its own tool/input shape")
	}
}

func TestClaudeParseTranscriptEntryClassifiesPreamble(t *testing.T) {
	claude := NewClaude()
	msg := claude.ParseTranscriptEntry(map[string]any{
		"type":      "assistant",
		"requestId": "req_1",
		"message": map[string]any{
			"content": []any{
				map[string]any{"type": "text", "text": "   "},
			},
		},
	})
	if msg == nil {
		t.Fatal("expected non-nil message")
	}
	if !msg.IsPreamble {
		t.Error("expected message to be classified as preamble")
	}
}

func TestClaudeParseTranscriptEntryIgnoresNonAssistant(t *testing.T) {
	claude := NewClaude()
	if msg := claude.ParseTranscriptEntry(map[string]any{"type": "user"}); msg != nil {
		t.Errorf("expected nil for non-assistant entry, got %+v", msg)
	}
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry(NewClaude(), NewCodex())

	if _, ok := reg.Get("claude"); !ok {
		t.Error("expected claude adapter registered")
	}
	if _, ok := reg.Get("codex"); !ok {
		t.Error("expected codex adapter registered")
	}
	if _, ok := reg.Get("gemini"); ok {
		t.Error("did not expect gemini adapter registered")
	}
	if len(reg.All()) != 2 {
		t.Errorf("All() len = %d, want 2", len(reg.All()))
	}
}
