package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-rt/server"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()
	assert.Equal(t, "hioload-http", cmd.Use)
	assert.Equal(t, Version, cmd.Version)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Use] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["version"])
}

func TestServeCommandFlags(t *testing.T) {
	cmd := buildServeCommand()
	assert.NotNil(t, cmd.RunE)

	for _, name := range []string{"config", "addr", "shutdown-timeout", "handler", "log-level", "log-format", "metrics-addr", "cpu"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "c", cmd.Flags().Lookup("config").Shorthand)
	assert.Equal(t, "127.0.0.1:3000", cmd.Flags().Lookup("addr").DefValue)
	assert.Equal(t, "state", cmd.Flags().Lookup("handler").DefValue)
}

func TestVersionCommand(t *testing.T) {
	root := BuildCLI()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "hioload-http "+Version)
}

func resolve(t *testing.T, args ...string) (*server.Config, error) {
	t.Helper()
	opts := &serveOptions{}
	cmd := newServeCommand(opts)
	require.NoError(t, cmd.ParseFlags(args))
	return resolveConfig(cmd, opts)
}

func TestResolveConfig_Defaults(t *testing.T) {
	cfg, err := resolve(t)
	require.NoError(t, err)
	assert.Equal(t, server.DefaultConfig(), cfg)
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: 127.0.0.1:4000\nhandler: chain\nshutdown_timeout: 3s\n"), 0o600))

	cfg, err := resolve(t, "--config", path, "--shutdown-timeout", "250ms", "--log-format", "console")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4000", cfg.ListenAddr, "file value kept when flag unset")
	assert.Equal(t, server.HandlerChain, cfg.Handler)
	assert.Equal(t, 250*time.Millisecond, cfg.ShutdownTimeout)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestResolveConfig_Invalid(t *testing.T) {
	_, err := resolve(t, "--handler", "threads")
	assert.Error(t, err)

	_, err = resolve(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestServe_RejectsBadLogLevel(t *testing.T) {
	root := BuildCLI()
	var stderr bytes.Buffer
	root.SetErr(&stderr)
	root.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--log-level", "loud"})
	assert.Error(t, root.Execute())
}
