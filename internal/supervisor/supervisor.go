// Package supervisor implements the Session Supervisor: the state
// machine, session-linking algorithm, hook-event pipeline, transcript
// ingestion, and concurrent lifecycle/health loops that reconcile
// spawned tmux sessions, hook callbacks, and transcript files into a
// single coherent session model.
//
// All mutable state (byId, byAgentId, the dirty flag) is touched only
// from the single goroutine run() drains — every public method except
// Load (which runs before Start) builds a command closure and submits
// it over an unbuffered channel. This is
// the single-writer serialization the source's cooperative
// single-threaded model requires, expressed as message passing rather
// than a bolted-on mutex.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentbridge/supervisor/internal/adapter"
	"github.com/agentbridge/supervisor/internal/gitinfo"
	"github.com/agentbridge/supervisor/internal/logging"
	"github.com/agentbridge/supervisor/internal/metrics"
	"github.com/agentbridge/supervisor/internal/tmuxdriver"
	"github.com/agentbridge/supervisor/internal/transcript"
)

var log = logging.For("supervisor")

// SignalKind tags the outbound variant a Signal carries, standing in
// for the source's named event-emitter channels (session:created,
// session:updated, ...).
type SignalKind string

const (
	SignalSessionCreated SignalKind = "session:created"
	SignalSessionUpdated SignalKind = "session:updated"
	SignalSessionDeleted SignalKind = "session:deleted"
	SignalSessionStatus  SignalKind = "session:status"
)

// Signal is the single tagged-variant channel APIFrontEnd subscribes
// to for every session lifecycle broadcast.
type Signal struct {
	Kind      SignalKind
	Session   *Session
	OldStatus string
	NewStatus string
}

// Message is what TranscriptReaders and the transcript pipeline
// deliver to consumers; APIFrontEnd broadcasts it as an
// assistant_message event.
type Message struct {
	SessionID string
	Message   *adapter.TranscriptMessage
}

type Config struct {
	LinkingWindow        time.Duration
	WorkingTimeout       time.Duration
	TmuxHealthInterval   time.Duration
	StaleCleanupInterval time.Duration
	OfflineCleanup       time.Duration
	StaleCleanup         time.Duration
	ExternalTracking     bool
	StateDir             string
}

func DefaultConfig() Config {
	return Config{
		LinkingWindow:        5 * time.Minute,
		WorkingTimeout:       10 * time.Second,
		TmuxHealthInterval:   10 * time.Second,
		StaleCleanupInterval: 60 * time.Second,
		OfflineCleanup:       24 * time.Hour,
		StaleCleanup:         7 * 24 * time.Hour,
		ExternalTracking:     true,
	}
}

type supervisorCmd struct {
	fn    func() (any, error)
	reply chan cmdResult
}

type cmdResult struct {
	val any
	err error
}

// SessionSupervisor is the core state machine. Construct with New,
// call Load then Start, and Stop on shutdown.
type SessionSupervisor struct {
	cfg      Config
	tmux     tmuxdriver.Driver
	adapters *adapter.Registry
	git      *gitinfo.Cache

	byId      map[string]*Session
	byAgentId map[string]string
	// ephemeral holds sessions created while ExternalTracking is off:
	// linked by agentSessionID like any other session so repeat hook
	// events find them in step 2, but excluded from byId so they never
	// appear in List/Get, persistence, or the health/cleanup loops.
	ephemeral map[string]*Session
	dirty     bool
	counter   int

	readers map[string]*transcript.Reader

	Signals  chan Signal
	Messages chan Message

	cmds chan supervisorCmd
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func New(cfg Config, tmux tmuxdriver.Driver, adapters *adapter.Registry) *SessionSupervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionSupervisor{
		cfg:       cfg,
		tmux:      tmux,
		adapters:  adapters,
		git:       gitinfo.NewCache(60 * time.Second),
		byId:      make(map[string]*Session),
		byAgentId: make(map[string]string),
		ephemeral: make(map[string]*Session),
		readers:   make(map[string]*transcript.Reader),
		Signals:   make(chan Signal, 256),
		Messages:  make(chan Message, 256),
		cmds:      make(chan supervisorCmd),
		ctx:       ctx,
		stop:      cancel,
	}
}

// Start begins the command loop and the three health/cleanup tickers.
func (s *SessionSupervisor) Start() {
	s.wg.Add(1)
	go s.run()

	s.wg.Add(3)
	go s.tmuxHealthLoop()
	go s.workingTimeoutLoop()
	go s.staleCleanupLoop()
}

// Stop halts all TranscriptReaders (awaiting completion), cancels
// health loops, and forces a save.
func (s *SessionSupervisor) Stop() {
	s.ForceSave()

	s.stop()
	s.wg.Wait()

	for _, r := range s.readers {
		r.Stop()
	}
}

func (s *SessionSupervisor) run() {
	defer s.wg.Done()
	for {
		select {
		case cmd := <-s.cmds:
			val, err := cmd.fn()
			cmd.reply <- cmdResult{val: val, err: err}
		case <-s.ctx.Done():
			return
		}
	}
}

// submit runs fn serialized on the supervisor's single command-loop
// goroutine and returns its result.
func (s *SessionSupervisor) submit(fn func() (any, error)) (any, error) {
	reply := make(chan cmdResult, 1)
	select {
	case s.cmds <- supervisorCmd{fn: fn, reply: reply}:
	case <-s.ctx.Done():
		return nil, ErrStopped
	}

	select {
	case r := <-reply:
		return r.val, r.err
	case <-s.ctx.Done():
		return nil, ErrStopped
	}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func newSessionID() string {
	return uuid.New().String()
}

func (s *SessionSupervisor) emitMetrics() {
	counts := map[[2]string]int{}
	for _, sess := range s.byId {
		counts[[2]string{sess.Kind, sess.Status}]++
	}
	for key, n := range counts {
		metrics.Sessions.WithLabelValues(key[0], key[1]).Set(float64(n))
	}
}
