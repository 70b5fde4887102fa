package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/ai-gateway/pkg/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "mcp", "seed", "check-dockerfile", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	for _, flag := range []string{"host", "port", "env-file", "log-level", "catalog"} {
		assert.NotNil(t, serve.Flags().Lookup(flag), flag)
	}
	assert.Equal(t, "0.0.0.0", serve.Flags().Lookup("host").DefValue)
	assert.Equal(t, "8000", serve.Flags().Lookup("port").DefValue)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "ai-gateway dev (commit: unknown, built: unknown)\n", out)
}

func TestCheckDockerfileCommand(t *testing.T) {
	out, err := run(t, "check-dockerfile", filepath.Join("..", "..", "Dockerfile"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "recipe cache-optimized")
	assert.True(t, strings.HasSuffix(out, "OK\n"))

	out, err = run(t, "check-dockerfile", "--json", filepath.Join("..", "..", "Dockerfile"))
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)

	_, err = run(t, "check-dockerfile", filepath.Join(t.TempDir(), "Dockerfile"))
	assert.Error(t, err)
}

func TestSeedCommand(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "missing.env")

	out, err := run(t, "seed", "--data-dir", dir, "--env-file", envFile)
	require.NoError(t, err)
	assert.Contains(t, out, "catalog holds")
	assert.Contains(t, out, filepath.Join(dir, "gateway.db"))

	out2, err := run(t, "seed", "--data-dir", dir, "--env-file", envFile, "--force")
	require.NoError(t, err)
	assert.Equal(t, out, out2, "reseeding upserts instead of duplicating")
}

func TestStartupHealthCheckFollowsDebug(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "info"
	assert.False(t, checkProvidersAtStartup(cfg))

	cfg.Debug = true
	assert.True(t, checkProvidersAtStartup(cfg))

	cfg.Debug = false
	cfg.LogLevel = "debug"
	assert.True(t, checkProvidersAtStartup(cfg))
}
