package linetail

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collectLines(t *testing.T, tail *Tailer, want int, timeout time.Duration) []string {
	t.Helper()
	lines := make([]string, 0, want)
	deadline := time.After(timeout)
	for len(lines) < want {
		select {
		case l := <-tail.Lines:
			lines = append(lines, l)
		case <-deadline:
			t.Fatalf("timed out waiting for %d lines, got %d: %v", want, len(lines), lines)
		}
	}
	return lines
}

func TestTailerEmitsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	tail := New(path)
	tail.PollInterval = 20 * time.Millisecond
	tail.Start()
	defer tail.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("line one\nline two\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lines := collectLines(t, tail, 2, 2*time.Second)
	require.Equal(t, []string{"line one", "line two"}, lines)
}

func TestTailerHandlesPartialLineThenCompletion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	tail := New(path)
	tail.PollInterval = 20 * time.Millisecond
	tail.Start()
	defer tail.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"partial":`)
	require.NoError(t, err)

	select {
	case l := <-tail.Lines:
		t.Fatalf("did not expect a line before the record completed, got %q", l)
	case <-time.After(100 * time.Millisecond):
	}

	_, err = f.WriteString("true}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lines := collectLines(t, tail, 1, 2*time.Second)
	require.Equal(t, []string{`{"partial":true}`}, lines)
}

func TestTailerHandlesTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("stale line\n"), 0o644))

	tail := New(path)
	tail.StartAtZero = true
	tail.PollInterval = 20 * time.Millisecond
	tail.Start()
	defer tail.Stop()

	collectLines(t, tail, 1, 2*time.Second)

	// Truncation is detected by the size dropping below the read
	// position, so let a poll see the empty file before rewriting it
	// with a line of the same length as the stale one.
	require.NoError(t, os.Truncate(path, 0))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("fresh line\n"), 0o644))

	lines := collectLines(t, tail, 1, 2*time.Second)
	require.Equal(t, []string{"fresh line"}, lines)
}

func TestTailerSurvivesFileCreatedAfterStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	tail := New(path)
	tail.PollInterval = 20 * time.Millisecond
	tail.Start()
	defer tail.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	lines := collectLines(t, tail, 1, 2*time.Second)
	require.Equal(t, []string{"first"}, lines)
}
