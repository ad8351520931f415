package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentbridge/supervisor/internal/config"
	"github.com/agentbridge/supervisor/internal/supervisor"
)

func TestSplitHostPort(t *testing.T) {
	host, port := splitHostPort("127.0.0.1:8787")
	require.Equal(t, "127.0.0.1", host)
	require.Equal(t, "8787", port)

	host, port = splitHostPort("not-a-valid-listen-address")
	require.Equal(t, "127.0.0.1", host)
	require.Equal(t, "8787", port)
}

func TestSupervisorConfigFromAppliesOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Supervisor.LinkingWindowMs = 1000
	cfg.Supervisor.WorkingTimeoutMs = 2000
	cfg.Storage.StateDir = "/tmp/state"
	cfg.Supervisor.ExternalTracking = true

	sc := supervisorConfigFrom(cfg)
	require.Equal(t, time.Second, sc.LinkingWindow)
	require.Equal(t, 2*time.Second, sc.WorkingTimeout)
	require.Equal(t, "/tmp/state", sc.StateDir)
	require.True(t, sc.ExternalTracking)
}

func TestSupervisorConfigFromKeepsDefaultsWhenUnset(t *testing.T) {
	cfg := &config.Config{}
	sc := supervisorConfigFrom(cfg)
	def := supervisor.DefaultConfig()
	require.Equal(t, def.LinkingWindow, sc.LinkingWindow)
	require.Equal(t, def.WorkingTimeout, sc.WorkingTimeout)
}

func TestBuildRegistryFiltersByAgentName(t *testing.T) {
	full := buildRegistry(nil)
	require.Len(t, full.All(), 2)

	claudeOnly := buildRegistry([]string{"claude"})
	require.Len(t, claudeOnly.All(), 1)
	_, ok := claudeOnly.Get("claude")
	require.True(t, ok)
	_, ok = claudeOnly.Get("codex")
	require.False(t, ok)
}
