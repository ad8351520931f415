// Command supervisord runs the Session Supervisor daemon: it loads
// config, starts the SessionSupervisor state machine and the
// APIFrontEnd HTTP+WebSocket server, tails the hook event log, and
// serves until interrupted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped by the release build; unset in dev builds run
// straight from source.
var version = "dev"

type rootFlags struct {
	configPath string
	host       string
	port       int
	dataDir    string
	agents     []string
	debug      bool
}

func main() {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "supervisord",
		Short: "Session Supervisor daemon",
		Long:  "supervisord tracks tmux-hosted coding-assistant sessions, links hook events and transcripts to them, and exposes the result over a REST+WebSocket API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to config file (defaults to built-in config search)")
	pf.StringVar(&flags.host, "host", "", "override api.listen host")
	pf.IntVar(&flags.port, "port", 0, "override api.listen port")
	pf.StringVar(&flags.dataDir, "data-dir", "", "data directory; sets storage.state_dir to <dir>/data")
	pf.StringSliceVar(&flags.agents, "agent", nil, "restrict enabled adapters to this list (repeatable)")
	pf.BoolVar(&flags.debug, "debug", false, "force debug logging regardless of config")

	root.AddCommand(newDoctorCommand(flags))
	root.AddCommand(newSessionsCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
