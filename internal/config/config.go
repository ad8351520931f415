// Package config loads the supervisor's YAML configuration file and
// fills in defaults for anything left unset, generalizing the
// daemon's single-purpose control-plane/spawn blocks into the
// supervisor/adapters shape this service needs.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Host       HostConfig       `yaml:"host"`
	API        APIConfig        `yaml:"api"`
	Tmux       TmuxConfig       `yaml:"tmux"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Adapters   AdaptersConfig   `yaml:"adapters"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

type HostConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type APIConfig struct {
	Listen      string   `yaml:"listen"`
	CORSOrigins []string `yaml:"cors_origins"`
	Token       string   `yaml:"token"`
}

type TmuxConfig struct {
	Bin            string `yaml:"bin"`
	Socket         string `yaml:"socket"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

type SupervisorConfig struct {
	LinkingWindowMs        int  `yaml:"linking_window_ms"`
	WorkingTimeoutMs       int  `yaml:"working_timeout_ms"`
	TmuxHealthIntervalMs   int  `yaml:"tmux_health_interval_ms"`
	StaleCleanupIntervalMs int  `yaml:"stale_cleanup_interval_ms"`
	OfflineCleanupMs       int  `yaml:"offline_cleanup_ms"`
	StaleCleanupMs         int  `yaml:"stale_cleanup_ms"`
	ExternalTracking       bool `yaml:"external_tracking"`
}

type AdaptersConfig struct {
	Claude AdapterEndpoint `yaml:"claude"`
	Codex  AdapterEndpoint `yaml:"codex"`
}

type AdapterEndpoint struct {
	HooksHTTPListen string `yaml:"hooks_http_listen"`
	SettingsPath    string `yaml:"settings_path"`
}

type StorageConfig struct {
	StateDir string `yaml:"state_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SecurityConfig struct {
	AllowSpawn         bool `yaml:"allow_spawn"`
	AllowKill          bool `yaml:"allow_kill"`
	AllowConsoleStream bool `yaml:"allow_console_stream"`
}

// Load reads and parses the YAML config at path, filling in defaults
// for anything left unset. Values are not validated beyond parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// ExternalTracking defaults true, and false is also its zero value,
	// so applyDefaults' zero-check pattern can't distinguish "omitted"
	// from "explicitly disabled". Pre-seed before unmarshal so the YAML
	// key only overrides it when present.
	cfg := Config{Supervisor: SupervisorConfig{ExternalTracking: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Host.ID == "" {
		cfg.Host.ID = "local"
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = "127.0.0.1:8787"
	}
	if len(cfg.API.CORSOrigins) == 0 {
		cfg.API.CORSOrigins = []string{
			"http://localhost:*",
			"https://localhost:*",
			"http://127.0.0.1:*",
			"https://127.0.0.1:*",
		}
	}
	if cfg.Tmux.Bin == "" {
		cfg.Tmux.Bin = "/usr/bin/tmux"
	}
	if cfg.Tmux.PollIntervalMs == 0 {
		cfg.Tmux.PollIntervalMs = 2000
	}
	if cfg.Supervisor.LinkingWindowMs == 0 {
		cfg.Supervisor.LinkingWindowMs = 5 * 60 * 1000
	}
	if cfg.Supervisor.WorkingTimeoutMs == 0 {
		cfg.Supervisor.WorkingTimeoutMs = 10_000
	}
	if cfg.Supervisor.TmuxHealthIntervalMs == 0 {
		cfg.Supervisor.TmuxHealthIntervalMs = 10_000
	}
	if cfg.Supervisor.StaleCleanupIntervalMs == 0 {
		cfg.Supervisor.StaleCleanupIntervalMs = 60_000
	}
	if cfg.Supervisor.OfflineCleanupMs == 0 {
		cfg.Supervisor.OfflineCleanupMs = 24 * 60 * 60 * 1000
	}
	if cfg.Supervisor.StaleCleanupMs == 0 {
		cfg.Supervisor.StaleCleanupMs = 7 * 24 * 60 * 60 * 1000
	}
	if cfg.Adapters.Claude.HooksHTTPListen == "" {
		cfg.Adapters.Claude.HooksHTTPListen = "127.0.0.1:7777"
	}
	if cfg.Adapters.Codex.HooksHTTPListen == "" {
		cfg.Adapters.Codex.HooksHTTPListen = "127.0.0.1:7778"
	}
	if cfg.Storage.StateDir == "" {
		cfg.Storage.StateDir = "/var/lib/session-supervisor"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if envToken := os.Getenv("SUPERVISOR_API_TOKEN"); envToken != "" {
		cfg.API.Token = envToken
	}
}
