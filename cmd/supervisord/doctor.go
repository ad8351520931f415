package main

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentbridge/supervisor/internal/config"
	"github.com/agentbridge/supervisor/internal/proc"
	"github.com/agentbridge/supervisor/internal/supervisor"
	"github.com/agentbridge/supervisor/internal/tmuxdriver"
)

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail"`
}

func newDoctorCommand(flags *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that tmux and the configured adapters are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			checks := runDoctorChecks(flags)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(checks)
			}
			printDoctorChecks(cmd, checks)
			for _, c := range checks {
				if !c.OK {
					return fmt.Errorf("one or more checks failed")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func runDoctorChecks(flags *rootFlags) []doctorCheck {
	var checks []doctorCheck

	cfg, err := loadConfig(flags)
	if err != nil {
		return []doctorCheck{{Name: "config", OK: false, Detail: err.Error()}}
	}
	checks = append(checks, doctorCheck{Name: "config", OK: true, Detail: "loaded"})

	tmuxPath, err := exec.LookPath(cfg.Tmux.Bin)
	if err != nil {
		tmuxPath, err = exec.LookPath("tmux")
	}
	if err != nil {
		checks = append(checks, doctorCheck{Name: "tmux", OK: false, Detail: "not found on PATH"})
	} else {
		checks = append(checks, doctorCheck{Name: "tmux", OK: true, Detail: tmuxPath})
	}

	snap := proc.TakeSnapshot()
	if pid := snap.FindTmuxServerPid(cfg.Tmux.Bin); pid > 0 {
		checks = append(checks, doctorCheck{Name: "tmux server", OK: true, Detail: fmt.Sprintf("running (pid %d)", pid)})
	} else {
		checks = append(checks, doctorCheck{Name: "tmux server", OK: true, Detail: "not running (will be started on first session)"})
	}

	registry := buildRegistry(flags.agents)
	for _, a := range registry.All() {
		if a.IsAvailable() {
			checks = append(checks, doctorCheck{Name: "adapter:" + a.Name(), OK: true, Detail: a.DisplayName() + " binary found"})
		} else {
			checks = append(checks, doctorCheck{Name: "adapter:" + a.Name(), OK: false, Detail: a.DisplayName() + " binary not found on PATH"})
		}
	}

	checks = append(checks, checkStateDir(cfg))
	checks = append(checks, checkOrphanedSessions(cfg))
	return checks
}

// checkOrphanedSessions cross-checks tmux's own process tree against
// the last persisted session snapshot: a tmux pane whose shell no
// longer has the agent binary running under it means the assistant
// exited or crashed without the hook stream telling the supervisor.
func checkOrphanedSessions(cfg *config.Config) doctorCheck {
	sessions, err := supervisor.ReadSessionsFile(cfg.Storage.StateDir)
	if err != nil {
		return doctorCheck{Name: "orphaned sessions", OK: false, Detail: err.Error()}
	}

	tmuxClient := tmuxdriver.NewClient(cfg.Tmux.Bin, cfg.Tmux.Socket)
	rootPidsByAgent := map[string]map[string]int{}
	checked := 0
	for _, sess := range sessions {
		if sess.TmuxSession == "" || sess.Status == supervisor.StatusOffline {
			continue
		}
		pid, err := tmuxClient.PanePID(sess.TmuxSession)
		if err != nil {
			continue
		}
		if rootPidsByAgent[sess.Agent] == nil {
			rootPidsByAgent[sess.Agent] = map[string]int{}
		}
		rootPidsByAgent[sess.Agent][sess.TmuxSession] = pid
		checked++
	}

	if checked == 0 {
		return doctorCheck{Name: "orphaned sessions", OK: true, Detail: "none tracked"}
	}

	snap := proc.TakeSnapshot()
	var stale []string
	for agentBin, rootPids := range rootPidsByAgent {
		for _, name := range snap.OrphanedSessions(rootPids, agentBin) {
			stale = append(stale, name+" ("+agentBin+")")
		}
	}

	if len(stale) == 0 {
		return doctorCheck{Name: "orphaned sessions", OK: true, Detail: fmt.Sprintf("%d tmux session(s) checked, none orphaned", checked)}
	}
	return doctorCheck{Name: "orphaned sessions", OK: false, Detail: "agent process missing in: " + strings.Join(stale, ", ")}
}

func checkStateDir(cfg *config.Config) doctorCheck {
	if cfg.Storage.StateDir == "" {
		return doctorCheck{Name: "state dir", OK: false, Detail: "storage.state_dir is empty"}
	}
	return doctorCheck{Name: "state dir", OK: true, Detail: cfg.Storage.StateDir}
}

func printDoctorChecks(cmd *cobra.Command, checks []doctorCheck) {
	out := cmd.OutOrStdout()
	for _, c := range checks {
		mark := "ok"
		if !c.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(out, "[%-4s] %-20s %s\n", mark, c.Name, c.Detail)
	}
}
