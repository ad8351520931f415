// Package adapter defines the per-assistant strategy contract and a
// registry of the adapters this build knows about (claude, codex),
// generalizing the daemon's ad hoc buildProviderCommand/provider
// switch statements into a pluggable interface.
package adapter

import (
	"fmt"
	"regexp"
	"strings"
)

// Event is a partial canonical event an adapter produces from a hook
// payload; HookDecoder fills in the fields the adapter leaves zero.
type Event struct {
	ID             string
	Timestamp      int64
	Type           string
	AgentSessionID string
	Agent          string
	Cwd            string
	Extra          map[string]any
}

// TranscriptMessage is a structured assistant turn extracted from a
// transcript record.
type TranscriptMessage struct {
	RequestID string
	Content   []ContentBlock
	IsPreamble bool
}

type ContentBlock struct {
	Kind      string // "text", "thinking", "tool_use"
	Text      string
	ToolName  string
	ToolInput map[string]any
	ToolUseID string
}

// Adapter is the per-assistant strategy tuple from the component
// design: build command, recognize hook payloads, parse transcript
// records, and name the on-disk settings location.
type Adapter interface {
	Name() string
	DisplayName() string

	// BuildCommand renders a shell-quoted command string to type into
	// tmux via send-keys. Never executed through a shell.
	BuildCommand(flags map[string]string) (string, error)

	// ParseHookEvent maps a native hook payload to a canonical event,
	// or returns nil if this hook name/payload isn't recognized.
	ParseHookEvent(hookName string, payload map[string]any) *Event

	// ExtractSessionID pulls the agent-native session identifier out
	// of a raw hook payload, or "" if not present.
	ExtractSessionID(payload map[string]any) string

	// ParseTranscriptEntry parses one transcript JSONL record into a
	// structured assistant message, or nil if the record isn't an
	// assistant turn this adapter recognizes.
	ParseTranscriptEntry(entry map[string]any) *TranscriptMessage

	// GetSettingsPath returns the on-disk path of this assistant's
	// hook configuration file for the given home directory.
	GetSettingsPath(home string) string

	// InstallHooks/UninstallHooks manage the bridge's hook entry in
	// the assistant's settings file; deduplicated on repeated calls.
	InstallHooks(home string) error
	UninstallHooks(home string) error

	// IsAvailable reports whether the underlying binary is on PATH.
	IsAvailable() bool

	// NativeHookNames lists this adapter's own hook vocabulary, used
	// by HookDecoder's agent-detection step (c).
	NativeHookNames() []string

	// HasShape reports whether payload's key shape looks like this
	// adapter's native tool-call fields, used by HookDecoder's
	// agent-detection step (d).
	HasShape(payload map[string]any) bool
}

var flagKeyRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

// ErrInvalidFlagKey is returned by BuildCommand when a flag key does
// not match ^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$.
type ErrInvalidFlagKey struct{ Key string }

func (e *ErrInvalidFlagKey) Error() string {
	return fmt.Sprintf("InvalidFlagKey: %q", e.Key)
}

// shellQuote single-quotes value, escaping embedded single quotes as
// '\'' so the resulting string is safe to type into a shell via
// send-keys without executing embedded metacharacters.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// buildFlaggedCommand renders "base --k1='v1' --k2='v2'" with flags in
// a stable order, validating every key first.
func buildFlaggedCommand(base string, flags map[string]string, order []string) (string, error) {
	for _, key := range order {
		if !flagKeyRe.MatchString(key) {
			return "", &ErrInvalidFlagKey{Key: key}
		}
	}

	var b strings.Builder
	b.WriteString(base)
	for _, key := range order {
		b.WriteString(" --")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(shellQuote(flags[key]))
	}
	return b.String(), nil
}

// Registry holds the adapters this build knows about, keyed by name.
// ordered preserves registration order so All() is deterministic
// rather than following Go's randomized map iteration.
type Registry struct {
	byName  map[string]Adapter
	ordered []Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byName: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, exists := r.byName[a.Name()]; exists {
			continue
		}
		r.byName[a.Name()] = a
		r.ordered = append(r.ordered, a)
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}

func (r *Registry) All() []Adapter {
	out := make([]Adapter, len(r.ordered))
	copy(out, r.ordered)
	return out
}
