// Package linetail tails an append-only text file, emitting one event
// per newline-terminated record and surviving truncation, rotation,
// and delayed creation the way the session-watcher's fsnotify loop
// does, generalized to a single file rather than a whole directory
// tree.
package linetail

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentbridge/supervisor/internal/logging"
)

var log = logging.For("linetail")

const defaultPollInterval = 1 * time.Second

// Tailer tails a single absolute path from end-of-file (unless
// StartAtZero is set), delivering complete lines on Lines.
type Tailer struct {
	Path         string
	PollInterval time.Duration
	StartAtZero  bool

	Lines  chan string
	Errors chan error
	Ready  chan struct{}

	position int64
	carry    strings.Builder
	fh       *os.File

	watcher *fsnotify.Watcher

	inFlight sync.Mutex
	done     chan struct{}
	wg       sync.WaitGroup
}

func New(path string) *Tailer {
	return &Tailer{
		Path:         path,
		PollInterval: defaultPollInterval,
		Lines:        make(chan string, 256),
		Errors:       make(chan error, 16),
		Ready:        make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start begins tailing in background goroutines. Safe to call once.
func (t *Tailer) Start() {
	if t.PollInterval <= 0 {
		t.PollInterval = defaultPollInterval
	}

	if info, err := os.Stat(t.Path); err == nil {
		if !t.StartAtZero {
			t.position = info.Size()
		}
	}

	t.subscribe()

	close(t.Ready)

	t.wg.Add(1)
	go t.pollLoop()
}

// Stop halts the tailer, releases resources, and closes Lines so
// range-loop consumers see the close signal spec.md's `close` signal
// requires rather than blocking forever.
func (t *Tailer) Stop() {
	close(t.done)
	if t.watcher != nil {
		t.watcher.Close()
	}
	t.wg.Wait()
	if t.fh != nil {
		t.fh.Close()
	}
	close(t.Lines)
}

func (t *Tailer) subscribe() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("fsnotify unavailable, falling back to polling only")
		return
	}
	t.watcher = w

	dir := parentDir(t.Path)
	if err := w.Add(dir); err != nil {
		log.WithError(err).WithField("dir", dir).Warn("failed to watch directory")
	}

	t.wg.Add(1)
	go t.watchLoop()
}

func (t *Tailer) watchLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Name == t.Path {
				t.wake()
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.emitError(err)
			t.watcher.Close()
			time.Sleep(1 * time.Second)
			t.subscribe()
			return
		}
	}
}

func (t *Tailer) pollLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.wake()
		}
	}
}

// wake is the single read routine both the fsnotify path and the
// polling path funnel into; inFlight guards it against re-entrancy.
func (t *Tailer) wake() {
	if !t.inFlight.TryLock() {
		return
	}
	defer t.inFlight.Unlock()

	info, err := os.Stat(t.Path)
	if err != nil {
		if os.IsNotExist(err) {
			if t.fh != nil {
				t.fh.Close()
				t.fh = nil
			}
			t.position = 0
			t.carry.Reset()
		}
		return
	}

	size := info.Size()
	if size < t.position {
		// Truncation or rotation.
		if t.fh != nil {
			t.fh.Close()
			t.fh = nil
		}
		t.position = 0
		t.carry.Reset()
	}
	if size == t.position {
		return
	}

	if t.fh == nil {
		fh, err := os.Open(t.Path)
		if err != nil {
			t.emitError(err)
			return
		}
		t.fh = fh
	}

	if _, err := t.fh.Seek(t.position, io.SeekStart); err != nil {
		t.emitError(err)
		return
	}

	buf := make([]byte, size-t.position)
	n, err := io.ReadFull(t.fh, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		t.emitError(err)
		return
	}
	t.position += int64(n)

	t.carry.Write(buf[:n])
	t.drainCarry()
}

func (t *Tailer) drainCarry() {
	buffered := t.carry.String()
	t.carry.Reset()

	parts := strings.Split(buffered, "\n")
	for i, part := range parts {
		if i == len(parts)-1 {
			t.carry.WriteString(part)
			continue
		}
		line := strings.TrimSpace(part)
		if line == "" {
			continue
		}
		select {
		case t.Lines <- line:
		case <-t.done:
			return
		}
	}
}

func (t *Tailer) emitError(err error) {
	select {
	case t.Errors <- err:
	default:
	}
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			if i == 0 {
				return "/"
			}
			return path[:i]
		}
	}
	return "."
}
