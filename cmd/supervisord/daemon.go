package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/agentbridge/supervisor/internal/adapter"
	"github.com/agentbridge/supervisor/internal/api"
	"github.com/agentbridge/supervisor/internal/config"
	"github.com/agentbridge/supervisor/internal/hookdecoder"
	"github.com/agentbridge/supervisor/internal/linetail"
	"github.com/agentbridge/supervisor/internal/logging"
	"github.com/agentbridge/supervisor/internal/supervisor"
	"github.com/agentbridge/supervisor/internal/terminalbridge"
	"github.com/agentbridge/supervisor/internal/tmuxdriver"
)

var log = logging.For("main")

func runDaemon(flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Configure(cfg.Logging.Level, cfg.Logging.Format)

	registry := buildRegistry(flags.agents)

	tmuxClient := tmuxdriver.NewClient(cfg.Tmux.Bin, cfg.Tmux.Socket)

	supCfg := supervisorConfigFrom(cfg)
	sup := supervisor.New(supCfg, tmuxClient, registry)
	if err := sup.Load(); err != nil {
		log.WithError(err).Warn("no prior session snapshot loaded")
	}
	sup.Start()
	defer sup.Stop()

	decoder := hookdecoder.New(registry)
	terminals := terminalbridge.NewManager(cfg.Tmux.Bin, cfg.Tmux.Socket)
	defer terminals.Close()

	server := api.New(sup, decoder, registry, terminals, cfg.API.CORSOrigins)
	server.Token = cfg.API.Token
	server.TmuxConnected = func() bool {
		_, err := tmuxClient.ListSessions()
		return err == nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eventsPath := cfg.Storage.StateDir + "/events.jsonl"
	tailer := linetail.New(eventsPath)
	tailer.Start()
	defer tailer.Stop()
	go pumpEvents(ctx, tailer, decoder, sup)

	log.WithField("addr", cfg.API.Listen).Info("supervisord starting")
	return server.ListenAndServe(ctx, cfg.API.Listen)
}

// pumpEvents drives the LineTailer -> HookDecoder -> SessionSupervisor
// leg of the control flow independently of the /event HTTP intake, so
// hooks that only append to events.jsonl (rather than POSTing) are
// still ingested.
func pumpEvents(ctx context.Context, tailer *linetail.Tailer, decoder *hookdecoder.Decoder, sup *supervisor.SessionSupervisor) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-tailer.Lines:
			if !ok {
				return
			}
			pe := decoder.Decode([]byte(line))
			if pe == nil {
				continue
			}
			if _, err := sup.IngestEvent(pe); err != nil {
				log.WithError(err).Debug("dropped tailed event")
			}
		case err, ok := <-tailer.Errors:
			if !ok {
				continue
			}
			log.WithError(err).Warn("line tailer error")
		}
	}
}

func buildRegistry(only []string) *adapter.Registry {
	all := []adapter.Adapter{adapter.NewClaude(), adapter.NewCodex()}
	if len(only) == 0 {
		return adapter.NewRegistry(all...)
	}

	allowed := make(map[string]bool, len(only))
	for _, name := range only {
		allowed[name] = true
	}

	var filtered []adapter.Adapter
	for _, a := range all {
		if allowed[a.Name()] {
			filtered = append(filtered, a)
		}
	}
	return adapter.NewRegistry(filtered...)
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	path := flags.configPath
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.host != "" || flags.port != 0 {
		host, port := splitHostPort(cfg.API.Listen)
		if flags.host != "" {
			host = flags.host
		}
		if flags.port != 0 {
			port = strconv.Itoa(flags.port)
		}
		cfg.API.Listen = net.JoinHostPort(host, port)
	}
	if flags.dataDir != "" {
		cfg.Storage.StateDir = filepath.Join(flags.dataDir, "data")
	}
	if flags.debug {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}

func defaultConfigPath() string {
	if path := os.Getenv("SUPERVISOR_CONFIG"); path != "" {
		return path
	}
	return "/etc/session-supervisor/config.yaml"
}

func splitHostPort(listen string) (host, port string) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "127.0.0.1", "8787"
	}
	return host, port
}

func supervisorConfigFrom(cfg *config.Config) supervisor.Config {
	sc := supervisor.DefaultConfig()
	sc.StateDir = cfg.Storage.StateDir
	sc.ExternalTracking = cfg.Supervisor.ExternalTracking
	if cfg.Supervisor.LinkingWindowMs > 0 {
		sc.LinkingWindow = msToDuration(cfg.Supervisor.LinkingWindowMs)
	}
	if cfg.Supervisor.WorkingTimeoutMs > 0 {
		sc.WorkingTimeout = msToDuration(cfg.Supervisor.WorkingTimeoutMs)
	}
	if cfg.Supervisor.TmuxHealthIntervalMs > 0 {
		sc.TmuxHealthInterval = msToDuration(cfg.Supervisor.TmuxHealthIntervalMs)
	}
	if cfg.Supervisor.StaleCleanupIntervalMs > 0 {
		sc.StaleCleanupInterval = msToDuration(cfg.Supervisor.StaleCleanupIntervalMs)
	}
	if cfg.Supervisor.OfflineCleanupMs > 0 {
		sc.OfflineCleanup = msToDuration(cfg.Supervisor.OfflineCleanupMs)
	}
	if cfg.Supervisor.StaleCleanupMs > 0 {
		sc.StaleCleanup = msToDuration(cfg.Supervisor.StaleCleanupMs)
	}
	return sc
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
