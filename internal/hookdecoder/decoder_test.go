package hookdecoder

import (
	"testing"

	"github.com/agentbridge/supervisor/internal/adapter"
)

func newTestDecoder() *Decoder {
	return New(adapter.NewRegistry(adapter.NewClaude(), adapter.NewCodex()))
}

func TestDecodeClaudeSessionStart(t *testing.T) {
	d := newTestDecoder()
	out := d.Decode([]byte(`{"agent":"claude","hook_event_name":"SessionStart","claude_session_id":"A","cwd":"/tmp/proj"}`))
	if out == nil {
		t.Fatal("expected non-nil ProcessedEvent")
	}
	if out.Agent != "claude" {
		t.Errorf("Agent = %q, want claude", out.Agent)
	}
	if out.AgentSessionID != "A" {
		t.Errorf("AgentSessionID = %q, want A", out.AgentSessionID)
	}
	if out.Event.Type != "session_start" {
		t.Errorf("Type = %q, want session_start", out.Event.Type)
	}
	if out.Cwd != "/tmp/proj" {
		t.Errorf("Cwd = %q, want /tmp/proj", out.Cwd)
	}
}

func TestDecodeCodexDoesNotHijackClaudeShape(t *testing.T) {
	d := newTestDecoder()
	out := d.Decode([]byte(`{"agent":"codex","thread_id":"C","cwd":"/tmp/proj","event_type":"tool_start","tool":"shell","input":{}}`))
	if out == nil {
		t.Fatal("expected non-nil ProcessedEvent")
	}
	if out.Agent != "codex" {
		t.Errorf("Agent = %q, want codex", out.Agent)
	}
	if out.AgentSessionID != "C" {
		t.Errorf("AgentSessionID = %q, want C", out.AgentSessionID)
	}
	if out.Event.Type != "pre_tool_use" {
		t.Errorf("Type = %q, want pre_tool_use", out.Event.Type)
	}
}

func TestDecodeSameLineTwiceProducesDistinctIDs(t *testing.T) {
	d := newTestDecoder()
	line := []byte(`{"agent":"claude","hook_event_name":"Stop","claude_session_id":"A"}`)

	first := d.Decode(line)
	second := d.Decode(line)
	if first == nil || second == nil {
		t.Fatal("expected both decodes to succeed")
	}
	if first.Event.ID == second.Event.ID {
		t.Error("expected distinct event IDs for repeated decode of same line")
	}
	if first.Event.Type != second.Event.Type || first.Agent != second.Agent || first.AgentSessionID != second.AgentSessionID {
		t.Error("expected identical type/agent/agentSessionId across repeated decode")
	}
}

func TestDecodeDropsUnparseableJSON(t *testing.T) {
	d := newTestDecoder()
	if out := d.Decode([]byte(`not json`)); out != nil {
		t.Errorf("expected nil for unparseable payload, got %+v", out)
	}
}

func TestDecodeDropsUnknownAgent(t *testing.T) {
	d := newTestDecoder()
	if out := d.Decode([]byte(`{"foo":"bar"}`)); out != nil {
		t.Errorf("expected nil for payload with no attributable adapter, got %+v", out)
	}
}

func TestDecodeCodexFallbackSessionIDFromPane(t *testing.T) {
	d := newTestDecoder()
	out := d.Decode([]byte(`{"agent":"codex","event_type":"tool_start","tool":"shell","input":{},"tmux_pane":"%3"}`))
	if out == nil {
		t.Fatal("expected non-nil ProcessedEvent")
	}
	if out.AgentSessionID != "codex-%3" {
		t.Errorf("AgentSessionID = %q, want codex-%%3", out.AgentSessionID)
	}
}
