// Package transcript tails a single assistant's transcript file,
// filters it down to assistant turns, and deduplicates by request
// identifier, generalizing the session-watcher's JSONL incremental
// parser to a per-session push model the supervisor can subscribe to.
package transcript

import (
	"encoding/json"

	"github.com/agentbridge/supervisor/internal/adapter"
	"github.com/agentbridge/supervisor/internal/linetail"
	"github.com/agentbridge/supervisor/internal/logging"
)

var log = logging.For("transcript")

// MessageEvent is what Reader emits for every new, non-duplicate
// assistant message.
type MessageEvent struct {
	SessionID string
	Message   *adapter.TranscriptMessage
}

// Reader tails one transcript file on behalf of one session.
type Reader struct {
	SessionID string
	Path      string
	Adapter   adapter.Adapter

	Messages chan MessageEvent

	tail *linetail.Tailer
	seen map[string]bool
}

func New(sessionID, path string, ad adapter.Adapter) *Reader {
	return &Reader{
		SessionID: sessionID,
		Path:      path,
		Adapter:   ad,
		Messages:  make(chan MessageEvent, 64),
		seen:      make(map[string]bool),
	}
}

// Start begins tailing the transcript from end-of-file and runs the
// parse loop in a background goroutine.
func (r *Reader) Start() {
	r.tail = linetail.New(r.Path)
	r.tail.Start()
	go r.loop()
}

func (r *Reader) Stop() {
	if r.tail != nil {
		r.tail.Stop()
	}
}

func (r *Reader) loop() {
	for line := range r.tail.Lines {
		r.handleLine(line)
	}
}

func (r *Reader) handleLine(line string) {
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		// Transcripts may interleave non-JSON lines; ignore silently.
		return
	}

	if entry["type"] != "assistant" {
		return
	}

	if r.Adapter == nil {
		return
	}
	msg := r.Adapter.ParseTranscriptEntry(entry)
	if msg == nil {
		return
	}

	if msg.RequestID != "" {
		if r.seen[msg.RequestID] {
			return
		}
		r.seen[msg.RequestID] = true
	}

	select {
	case r.Messages <- MessageEvent{SessionID: r.SessionID, Message: msg}:
	default:
		log.WithField("session", r.SessionID).Warn("transcript message channel full, dropping")
	}
}
