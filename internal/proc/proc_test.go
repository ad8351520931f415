package proc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSnapshot() *Snapshot {
	return &Snapshot{
		entries: map[int]*Entry{
			1:   {Pid: 1, PPid: 0, Comm: "systemd"},
			100: {Pid: 100, PPid: 1, Comm: "tmux: server", Cmdline: "tmux: server"},
			101: {Pid: 101, PPid: 100, Comm: "bash", Cmdline: "bash"},
			102: {Pid: 102, PPid: 101, Comm: "claude", Cmdline: "claude --resume"},
			200: {Pid: 200, PPid: 100, Comm: "bash", Cmdline: "bash"},
		},
		children: map[int][]int{
			0:   {1},
			1:   {100},
			100: {101, 200},
			101: {102},
		},
	}
}

func TestHasDescendantCmdFindsNestedProcess(t *testing.T) {
	snap := newTestSnapshot()
	require.True(t, snap.HasDescendantCmd(101, []string{"claude"}))
	require.True(t, snap.HasDescendantCmd(100, []string{"claude"}))
	require.False(t, snap.HasDescendantCmd(200, []string{"claude"}))
}

func TestHasDescendantCmdReturnsFalseForUnknownPid(t *testing.T) {
	snap := newTestSnapshot()
	require.False(t, snap.HasDescendantCmd(9999, []string{"claude"}))
	require.False(t, snap.HasDescendantCmd(0, []string{"claude"}))
}

func TestFindTmuxServerPid(t *testing.T) {
	snap := newTestSnapshot()
	require.Equal(t, 100, snap.FindTmuxServerPid("tmux"))
	require.Equal(t, 0, snap.FindTmuxServerPid("nonexistent-binary"))
}

func TestOrphanedSessionsDetectsMissingAgent(t *testing.T) {
	snap := newTestSnapshot()
	roots := map[string]int{
		"cab-alive":   101, // descends into claude
		"cab-orphan":  200, // bash with no agent underneath
	}

	orphaned := snap.OrphanedSessions(roots, "claude")
	require.Equal(t, []string{"cab-orphan"}, orphaned)
}

func TestParseStatExtractsCommAndPPID(t *testing.T) {
	comm, ppid, ok := parseStat("102 (claude) S 101 100 100 0 -1 4194304 100 0 0 0 1 1 0 0 20 0 1 0")
	require.True(t, ok)
	require.Equal(t, "claude", comm)
	require.Equal(t, 101, ppid)
}

func TestParseStatHandlesParensInCommandName(t *testing.T) {
	comm, ppid, ok := parseStat("5 ((sd-pam)) S 1 1 1 0 -1 4194304 10 0 0 0 0 0 0 0 20 0 1 0")
	require.True(t, ok)
	require.Equal(t, "(sd-pam)", comm)
	require.Equal(t, 1, ppid)
}

func TestParsePID(t *testing.T) {
	pid, ok := parsePID("1234")
	require.True(t, ok)
	require.Equal(t, 1234, pid)

	_, ok = parsePID("self")
	require.False(t, ok)

	_, ok = parsePID("")
	require.False(t, ok)
}
