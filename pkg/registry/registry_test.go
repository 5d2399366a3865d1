package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noy2024/fast-agent/pkg/connmgr"
)

const settingsDoc = `
mcp_servers:
  fetch:
    transport: stdio
    command: npx
    args: ["@modelcontextprotocol/server-fetch"]
    env:
      FETCH_MODE: strict
    read_timeout_seconds: 15
  docs:
    transport: http
    url: https://docs.example.com/mcp
    headers:
      X-Team: core
  legacy:
    transport: sse
    url: https://legacy.example.com/sse
`

func writeSettings(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fastagent.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestLoadBuildsConfigs(t *testing.T) {
	t.Parallel()

	reg, err := Load(writeSettings(t, settingsDoc), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fetch", "docs", "legacy"}, reg.Names())

	cfg, ok := reg.Lookup("fetch")
	require.True(t, ok)
	stdio, ok := connmgr.AsStdio(cfg)
	require.True(t, ok, "fetch should be a stdio config")
	assert.Equal(t, "npx", stdio.Command)
	assert.Equal(t, []string{"@modelcontextprotocol/server-fetch"}, stdio.Args)
	assert.Equal(t, "strict", stdio.Env["FETCH_MODE"])

	httpCfg, ok := reg.Lookup("docs")
	require.True(t, ok)
	docs, ok := connmgr.AsHTTP(httpCfg)
	require.True(t, ok, "docs should be an http config")
	assert.Equal(t, "https://docs.example.com/mcp", docs.Endpoint)
	assert.Equal(t, "core", docs.Headers.Get("X-Team"))
	assert.Nil(t, docs.PreferSSE)

	sseCfg, ok := reg.Lookup("legacy")
	require.True(t, ok)
	legacy, ok := connmgr.AsHTTP(sseCfg)
	require.True(t, ok)
	require.NotNil(t, legacy.PreferSSE)
	assert.True(t, *legacy.PreferSSE)
}

func TestReadTimeoutConversion(t *testing.T) {
	t.Parallel()

	reg, err := Load(writeSettings(t, settingsDoc), nil)
	require.NoError(t, err)

	cfg, ok := reg.Lookup("fetch")
	require.True(t, ok)
	stdio, _ := connmgr.AsStdio(cfg)
	assert.Equal(t, 15*time.Second, stdio.ReadTimeout)
}

func TestLookupMissingServer(t *testing.T) {
	t.Parallel()

	reg, err := Load(writeSettings(t, settingsDoc), nil)
	require.NoError(t, err)

	_, ok := reg.Lookup("beta")
	assert.False(t, ok)
}

func TestUnknownTransportRejected(t *testing.T) {
	t.Parallel()

	doc := `
mcp_servers:
  bad:
    transport: carrier-pigeon
    command: coo
`
	_, err := Load(writeSettings(t, doc), nil)
	require.ErrorIs(t, err, connmgr.ErrUnsupportedTransport)
}

func TestStdioRequiresCommand(t *testing.T) {
	t.Parallel()

	doc := `
mcp_servers:
  bad:
    transport: stdio
`
	_, err := Load(writeSettings(t, doc), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command")
}

func TestTransportDefaultsToStdio(t *testing.T) {
	t.Parallel()

	doc := `
mcp_servers:
  fetch:
    command: npx
`
	reg, err := Load(writeSettings(t, doc), nil)
	require.NoError(t, err)
	cfg, ok := reg.Lookup("fetch")
	require.True(t, ok)
	assert.True(t, connmgr.IsStdio(cfg))
}

func TestEnvAndAuthExpansion(t *testing.T) {
	t.Setenv("FAST_AGENT_TEST_TOKEN", "tok-123")
	t.Setenv("FAST_AGENT_TEST_REGION", "eu-west")

	doc := `
mcp_servers:
  fetch:
    transport: stdio
    command: npx
    env:
      REGION: ${FAST_AGENT_TEST_REGION}
    auth:
      api_key: ${FAST_AGENT_TEST_TOKEN}
`
	reg, err := Load(writeSettings(t, doc), nil)
	require.NoError(t, err)

	cfg, ok := reg.Lookup("fetch")
	require.True(t, ok)
	stdio, _ := connmgr.AsStdio(cfg)
	assert.Equal(t, "eu-west", stdio.Env["REGION"])
	require.NotNil(t, stdio.Auth)
	assert.Equal(t, "tok-123", stdio.Auth.APIKey)
}

func TestInitHookRegistration(t *testing.T) {
	t.Parallel()

	reg, err := Load(writeSettings(t, settingsDoc), nil)
	require.NoError(t, err)

	_, ok := reg.InitHookFor("fetch")
	assert.False(t, ok)

	hook := func(ctx context.Context, session connmgr.Session, auth *connmgr.AuthConfig) error { return nil }
	reg.RegisterInitHook("fetch", hook)
	_, ok = reg.InitHookFor("fetch")
	assert.True(t, ok)

	reg.RegisterInitHook("fetch", nil)
	_, ok = reg.InitHookFor("fetch")
	assert.False(t, ok)
}

func TestReloadKeepsPreviousSnapshotOnError(t *testing.T) {
	t.Parallel()

	path := writeSettings(t, settingsDoc)
	reg, err := Load(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(":\n  not yaml: ["), 0o600))
	require.Error(t, reg.Reload())

	_, ok := reg.Lookup("fetch")
	assert.True(t, ok, "previous snapshot should survive a failed reload")
}

func TestWatchReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := writeSettings(t, settingsDoc)
	reg, err := Load(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- reg.Watch(ctx) }()

	// Give the watcher a moment to attach before rewriting the file.
	time.Sleep(100 * time.Millisecond)

	extended := settingsDoc + `
  extra:
    transport: http
    url: https://extra.example.com/mcp
`
	require.NoError(t, os.WriteFile(path, []byte(extended), 0o600))

	require.Eventually(t, func() bool {
		_, ok := reg.Lookup("extra")
		return ok
	}, 5*time.Second, 25*time.Millisecond, "watcher never picked up the new server")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}
