package terminalbridge

import (
	"fmt"
	"sync"
)

// channelLink is the bridge a given viewer channel is currently
// attached to, so Detach/SendInput/Resize can find it by channelID
// alone.
type channelLink struct {
	tmuxSession string
}

// Manager multiplexes PTY bridges by tmux session: the first viewer
// to attach to a session starts a bridge; the last to detach closes
// it.
type Manager struct {
	tmuxBin string
	socket  string

	mu       sync.Mutex
	bridges  map[string]*Bridge // tmuxSession -> bridge
	channels map[string]*channelLink

	onOutput func(channelID string, data []byte)
	onStatus func(channelID, status, message string)
}

func NewManager(tmuxBin, socket string) *Manager {
	return &Manager{
		tmuxBin:  tmuxBin,
		socket:   socket,
		bridges:  make(map[string]*Bridge),
		channels: make(map[string]*channelLink),
	}
}

func (m *Manager) SetOutputHandler(handler func(channelID string, data []byte)) {
	m.onOutput = handler
}

func (m *Manager) SetStatusHandler(handler func(channelID, status, message string)) {
	m.onStatus = handler
}

// Attach attaches channelID as a viewer of tmuxSession, creating the
// underlying bridge on first attach.
func (m *Manager) Attach(channelID, tmuxSession string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bridge, ok := m.bridges[tmuxSession]
	if !ok {
		b, err := New(m.tmuxBin, m.socket, tmuxSession)
		if err != nil {
			return fmt.Errorf("attach terminal bridge: %w", err)
		}
		b.SetOutputHandler(m.onOutput)
		b.SetStatusHandler(m.onStatus)
		m.bridges[tmuxSession] = b
		bridge = b
	}

	bridge.AttachChannel(channelID)
	m.channels[channelID] = &channelLink{tmuxSession: tmuxSession}
	return nil
}

// Detach removes channelID from its bridge, closing the bridge if it
// was the last viewer.
func (m *Manager) Detach(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.channels[channelID]
	if !ok {
		return
	}
	delete(m.channels, channelID)

	bridge, ok := m.bridges[link.tmuxSession]
	if !ok {
		return
	}
	if bridge.DetachChannel(channelID) {
		bridge.Close()
		delete(m.bridges, link.tmuxSession)
	}
}

func (m *Manager) SendInput(channelID string, data []byte) error {
	m.mu.Lock()
	link, ok := m.channels[channelID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no bridge attached for channel %s", channelID)
	}
	bridge := m.bridges[link.tmuxSession]
	m.mu.Unlock()

	if bridge == nil {
		return fmt.Errorf("no bridge attached for channel %s", channelID)
	}
	return bridge.Write(data)
}

func (m *Manager) Resize(channelID string, rows, cols uint16) error {
	m.mu.Lock()
	link, ok := m.channels[channelID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no bridge attached for channel %s", channelID)
	}
	bridge := m.bridges[link.tmuxSession]
	m.mu.Unlock()

	if bridge == nil {
		return fmt.Errorf("no bridge attached for channel %s", channelID)
	}
	return bridge.Resize(rows, cols)
}

// Close tears down every bridge, disconnecting all viewers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bridges {
		b.Close()
	}
	m.bridges = make(map[string]*Bridge)
	m.channels = make(map[string]*channelLink)
}
