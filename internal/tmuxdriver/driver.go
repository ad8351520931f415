// Package tmuxdriver safely invokes tmux subcommands: it validates
// session names, paths, and pane IDs before ever spawning a
// subprocess, and never routes arguments through a shell.
package tmuxdriver

import (
	"bufio"
	"bytes"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/agentbridge/supervisor/internal/logging"
	"github.com/agentbridge/supervisor/internal/metrics"
)

var log = logging.For("tmuxdriver")

// Driver is the interface SessionSupervisor depends on; Client is the
// concrete tmux-backed implementation.
type Driver interface {
	CreateSession(name string, opts CreateSessionOptions) error
	KillSession(name string) bool
	SessionExists(name string) bool
	ListSessions() ([]SessionInfo, error)
	SendKeys(opts SendKeysOptions) error
	PasteBuffer(opts PasteBufferOptions) error
	SendInterrupt(target string) error
	CapturePane(target string, opts CapturePaneOptions) (string, error)
	PanePID(target string) (int, error)
}

type CreateSessionOptions struct {
	Cwd     string
	Command string
	Width   int
	Height  int
}

type SessionInfo struct {
	Name      string
	Windows   int
	CreatedAt time.Time
	Attached  bool
}

type SendKeysOptions struct {
	Target   string
	Keys     []string
	IsPaneId bool
	Socket   string
}

type PasteBufferOptions struct {
	Target    string
	Text      string
	IsPaneId  bool
	Socket    string
	SendEnter bool
}

type CapturePaneOptions struct {
	StartLine *int
	EndLine   *int
	Socket    string
}

// Client is the tmux-binary-backed Driver implementation.
type Client struct {
	Bin    string
	Socket string
}

func NewClient(bin, socket string) *Client {
	if bin == "" {
		bin = "tmux"
	}
	return &Client{Bin: bin, Socket: socket}
}

func (c *Client) args(socket string, rest ...string) []string {
	if socket == "" {
		socket = c.Socket
	}
	if socket != "" {
		return append([]string{"-S", socket}, rest...)
	}
	return rest
}

func (c *Client) run(command string, argv ...string) ([]byte, error) {
	start := time.Now()
	cmd := exec.Command(c.Bin, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	metrics.TmuxCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())

	if err != nil {
		if _, ok := err.(*exec.Error); ok {
			return nil, newErr(KindNotAvailable, "tmux binary not found: "+c.Bin)
		}
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return nil, subprocessErr(command, exitCode, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// CreateSession implements the two-step creation protocol: a detached
// new-session, a brief pause for the shell to initialize, and then an
// optional command typed in via send-keys (never exec'd directly).
func (c *Client) CreateSession(name string, opts CreateSessionOptions) error {
	if err := validateSessionName(name); err != nil {
		return err
	}
	if opts.Cwd != "" {
		if err := validatePath(opts.Cwd); err != nil {
			return err
		}
	}
	if c.SessionExists(name) {
		return newErr(KindAlreadyExists, "tmux session already exists: "+name)
	}

	argv := []string{"new-session", "-d", "-s", name}
	if opts.Cwd != "" {
		argv = append(argv, "-c", opts.Cwd)
	}
	if opts.Width > 0 && opts.Height > 0 {
		argv = append(argv, "-x", strconv.Itoa(opts.Width), "-y", strconv.Itoa(opts.Height))
	}

	if _, err := c.run("new-session", c.args("", argv...)...); err != nil {
		return err
	}

	time.Sleep(100 * time.Millisecond)

	if opts.Command != "" {
		if _, err := c.run("send-keys", c.args("", "send-keys", "-t", name, opts.Command)...); err != nil {
			return err
		}
		if _, err := c.run("send-keys", c.args("", "send-keys", "-t", name, "Enter")...); err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) KillSession(name string) bool {
	if err := validateSessionName(name); err != nil {
		return false
	}
	_, err := c.run("kill-session", c.args("", "kill-session", "-t", name)...)
	if err != nil {
		log.WithError(err).WithField("session", name).Warn("kill-session failed")
		return false
	}
	return true
}

func (c *Client) SessionExists(name string) bool {
	if err := validateSessionName(name); err != nil {
		return false
	}
	_, err := c.run("has-session", c.args("", "has-session", "-t", name)...)
	return err == nil
}

// ListSessions parses tmux's tab-separated list-sessions output.
func (c *Client) ListSessions() ([]SessionInfo, error) {
	format := "#{session_name}\t#{session_windows}\t#{session_created}\t#{session_attached}"
	out, err := c.run("list-sessions", c.args("", "list-sessions", "-F", format)...)
	if err != nil {
		if de, ok := err.(*Error); ok && de.Kind == KindSubprocessFailed &&
			strings.Contains(strings.ToLower(de.Stderr), "no server running") {
			return nil, nil
		}
		return nil, err
	}

	var sessions []SessionInfo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 4 {
			continue
		}
		var info SessionInfo
		info.Name = fields[0]
		windows, _ := strconv.Atoi(fields[1])
		info.Windows = windows
		if epoch, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
			info.CreatedAt = time.Unix(epoch, 0)
		}
		info.Attached = fields[3] == "1"
		sessions = append(sessions, info)
	}
	return sessions, scanner.Err()
}

func (c *Client) SendKeys(opts SendKeysOptions) error {
	if opts.IsPaneId {
		if err := validatePaneId(opts.Target); err != nil {
			return err
		}
	} else if err := validateSessionName(opts.Target); err != nil {
		return err
	}

	argv := append([]string{"send-keys", "-t", opts.Target}, opts.Keys...)
	_, err := c.run("send-keys", c.args(opts.Socket, argv...)...)
	return err
}

func (c *Client) SendInterrupt(target string) error {
	return c.SendKeys(SendKeysOptions{Target: target, Keys: []string{"C-c"}, IsPaneId: strings.HasPrefix(target, "%")})
}

// PasteBuffer implements the multi-line-safe paste protocol: the text
// is written to a temp file, loaded into tmux's paste buffer from that
// file, pasted, and the file and its directory are removed on every
// exit path. The 500ms pause before Enter is deliberate — a shorter
// pause races against terminal processing on long prompts.
func (c *Client) PasteBuffer(opts PasteBufferOptions) error {
	if opts.IsPaneId {
		if err := validatePaneId(opts.Target); err != nil {
			return err
		}
	} else if err := validateSessionName(opts.Target); err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "supervisor-paste-")
	if err != nil {
		return subprocessErr("mkdtemp", -1, err.Error())
	}
	defer os.RemoveAll(dir)

	file := dir + "/buffer"
	if err := os.WriteFile(file, []byte(opts.Text), 0o600); err != nil {
		return subprocessErr("write-buffer-file", -1, err.Error())
	}

	if _, err := c.run("load-buffer", c.args(opts.Socket, "load-buffer", file)...); err != nil {
		return err
	}

	if _, err := c.run("paste-buffer", c.args(opts.Socket, "paste-buffer", "-t", opts.Target)...); err != nil {
		return err
	}

	if opts.SendEnter {
		time.Sleep(500 * time.Millisecond)
		if err := c.SendKeys(SendKeysOptions{Target: opts.Target, Keys: []string{"Enter"}, IsPaneId: opts.IsPaneId, Socket: opts.Socket}); err != nil {
			return err
		}
	}

	return nil
}

// CapturePane returns the visible pane scrollback from startLine
// (default -100) to endLine (default current).
func (c *Client) CapturePane(target string, opts CapturePaneOptions) (string, error) {
	isPane := strings.HasPrefix(target, "%")
	if isPane {
		if err := validatePaneId(target); err != nil {
			return "", err
		}
	} else if err := validateSessionName(target); err != nil {
		return "", err
	}

	start := "-100"
	if opts.StartLine != nil {
		start = strconv.Itoa(*opts.StartLine)
	}
	argv := []string{"capture-pane", "-p", "-t", target, "-S", start}
	if opts.EndLine != nil {
		argv = append(argv, "-E", strconv.Itoa(*opts.EndLine))
	}

	out, err := c.run("capture-pane", c.args(opts.Socket, argv...)...)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// PanePID returns the PID of target's first pane's shell process, the
// root of whatever process tree is running inside it.
func (c *Client) PanePID(target string) (int, error) {
	if err := validateSessionName(target); err != nil {
		return 0, err
	}
	out, err := c.run("list-panes", c.args("", "list-panes", "-t", target, "-F", "#{pane_pid}")...)
	if err != nil {
		return 0, err
	}
	first := strings.SplitN(strings.TrimSpace(string(out)), "\n", 2)[0]
	pid, err := strconv.Atoi(first)
	if err != nil {
		return 0, subprocessErr("list-panes", -1, "unparseable pane_pid: "+first)
	}
	return pid, nil
}

var _ Driver = (*Client)(nil)
