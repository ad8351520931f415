package terminalbridge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestBridge builds a Bridge with no underlying PTY, exercising the
// channel bookkeeping and broadcast fan-out in isolation from the real
// tmux/pty subprocess New() spawns.
func newTestBridge() *Bridge {
	return &Bridge{
		channels: make(map[string]bool),
		closed:   make(chan struct{}),
	}
}

func TestBridgeChannelLifecycle(t *testing.T) {
	b := newTestBridge()

	b.AttachChannel("a")
	b.AttachChannel("b")
	require.Equal(t, 2, b.ChannelCount())

	require.False(t, b.DetachChannel("a"))
	require.Equal(t, 1, b.ChannelCount())

	require.True(t, b.DetachChannel("b"))
	require.Equal(t, 0, b.ChannelCount())
}

func TestBridgeBroadcastFansOutToEveryChannel(t *testing.T) {
	b := newTestBridge()
	b.AttachChannel("a")
	b.AttachChannel("b")

	var mu sync.Mutex
	received := make(map[string][]byte)
	b.SetOutputHandler(func(channelID string, data []byte) {
		mu.Lock()
		defer mu.Unlock()
		received[channelID] = data
	})

	b.broadcast([]byte("hello"))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []byte("hello"), received["a"])
	require.Equal(t, []byte("hello"), received["b"])
}

func TestBridgeCloseNotifiesRemainingChannelsDetached(t *testing.T) {
	b := newTestBridge()
	b.AttachChannel("a")

	var statuses []string
	b.SetStatusHandler(func(channelID, status, message string) {
		statuses = append(statuses, status)
	})

	b.Close()
	require.Equal(t, []string{"detached"}, statuses)

	select {
	case <-b.closed:
	default:
		t.Fatal("expected closed channel to be closed")
	}
}
