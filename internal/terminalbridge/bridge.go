// Package terminalbridge attaches a real PTY to a tmux session so a
// WebSocket viewer gets full terminal semantics — input echo, cursor
// handling, line editing, signal propagation — instead of a raw
// capture-pane snapshot. It is a pure viewing surface: nothing in
// SessionSupervisor depends on it.
package terminalbridge

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/agentbridge/supervisor/internal/logging"
)

var log = logging.For("terminalbridge")

// Bridge is a single PTY attached to one tmux session, fanning its
// output out to every attached viewer channel.
type Bridge struct {
	tmuxBin     string
	socket      string
	tmuxSession string
	ptmx        *os.File
	cmd         *exec.Cmd

	channelsMu sync.RWMutex
	channels   map[string]bool

	onOutput func(channelID string, data []byte)
	onStatus func(channelID, status, message string)

	closeOnce sync.Once
	closed    chan struct{}
}

// New attaches to tmuxSession via `tmux attach-session` under a PTY
// and starts the read loop.
func New(tmuxBin, socket, tmuxSession string) (*Bridge, error) {
	var args []string
	if socket != "" {
		args = append(args, "-S", socket)
	}
	args = append(args, "attach-session", "-t", tmuxSession)

	cmd := exec.Command(tmuxBin, args...)
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
	)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start tmux attach under pty: %w", err)
	}
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: 24, Cols: 80})

	b := &Bridge{
		tmuxBin:     tmuxBin,
		socket:      socket,
		tmuxSession: tmuxSession,
		ptmx:        ptmx,
		cmd:         cmd,
		channels:    make(map[string]bool),
		closed:      make(chan struct{}),
	}

	go b.readLoop()
	go b.waitForExit()

	return b, nil
}

func (b *Bridge) SetOutputHandler(handler func(channelID string, data []byte)) {
	b.onOutput = handler
}

func (b *Bridge) SetStatusHandler(handler func(channelID, status, message string)) {
	b.onStatus = handler
}

func (b *Bridge) AttachChannel(channelID string) {
	b.channelsMu.Lock()
	defer b.channelsMu.Unlock()
	b.channels[channelID] = true
}

// DetachChannel removes a viewer; the return value tells the caller
// whether the bridge now has no viewers and should be closed.
func (b *Bridge) DetachChannel(channelID string) bool {
	b.channelsMu.Lock()
	defer b.channelsMu.Unlock()
	delete(b.channels, channelID)
	return len(b.channels) == 0
}

func (b *Bridge) ChannelCount() int {
	b.channelsMu.RLock()
	defer b.channelsMu.RUnlock()
	return len(b.channels)
}

func (b *Bridge) Write(data []byte) error {
	select {
	case <-b.closed:
		return fmt.Errorf("bridge is closed")
	default:
	}
	_, err := b.ptmx.Write(data)
	return err
}

func (b *Bridge) Resize(rows, cols uint16) error {
	select {
	case <-b.closed:
		return fmt.Errorf("bridge is closed")
	default:
	}
	return pty.Setsize(b.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		if b.ptmx != nil {
			_ = b.ptmx.Close()
		}
		if b.cmd != nil && b.cmd.Process != nil {
			_ = b.cmd.Process.Kill()
		}

		b.channelsMu.RLock()
		channels := make([]string, 0, len(b.channels))
		for id := range b.channels {
			channels = append(channels, id)
		}
		b.channelsMu.RUnlock()

		for _, ch := range channels {
			if b.onStatus != nil {
				b.onStatus(ch, "detached", "terminal bridge closed")
			}
		}
	})
}

func (b *Bridge) readLoop() {
	buf := make([]byte, 4096)
	for {
		select {
		case <-b.closed:
			return
		default:
		}

		n, err := b.ptmx.Read(buf)
		if err != nil {
			if err != io.EOF {
				select {
				case <-b.closed:
				default:
					log.WithError(err).WithField("session", b.tmuxSession).Warn("pty read error")
				}
			}
			b.Close()
			return
		}
		if n > 0 {
			b.broadcast(buf[:n])
		}
	}
}

func (b *Bridge) broadcast(data []byte) {
	if b.onOutput == nil {
		return
	}
	b.channelsMu.RLock()
	channels := make([]string, 0, len(b.channels))
	for id := range b.channels {
		channels = append(channels, id)
	}
	b.channelsMu.RUnlock()

	for _, ch := range channels {
		cp := make([]byte, len(data))
		copy(cp, data)
		b.onOutput(ch, cp)
	}
}

func (b *Bridge) waitForExit() {
	if b.cmd == nil {
		return
	}
	err := b.cmd.Wait()
	select {
	case <-b.closed:
	default:
		if err != nil {
			log.WithError(err).WithField("session", b.tmuxSession).Warn("tmux attach process exited")
		}
		b.Close()
	}
}
