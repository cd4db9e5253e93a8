package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"local_server"
	"local_server/internal/config"
	"local_server/internal/logging"
)

func newTestConductor(t *testing.T, cfg *config.Config) *local_server.Conductor {
	t.Helper()
	table, err := buildRegistry(cfg)
	require.NoError(t, err)
	return local_server.NewConductor(table, local_server.WithLogger(logging.NewDiscardLogger()))
}

func TestBuiltinRoutes(t *testing.T) {
	c := newTestConductor(t, config.DefaultConfig())

	resp := c.Process(local_server.NewRequest(local_server.MethodGet, "/health", nil, nil))
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "ok", string(resp.Body))

	body := []byte(`{"hello":"world"}`)
	headers := local_server.NewHeaders("Content-Type", "application/json", "Content-Length", "17")
	resp = c.Process(local_server.NewRequest(local_server.MethodPost, "/api/v1/echo", headers, body))
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, body, resp.Body)
	assert.Equal(t, "application/json", resp.Headers.Get("Content-Type"))
}

func TestInfoRoute_ListsRoutesAndMounts(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Static = []config.StaticMount{{Prefix: "/ui", Dir: t.TempDir()}}
	c := newTestConductor(t, cfg)

	resp := c.Process(local_server.NewRequest(local_server.MethodGet, "/api/v1/info", nil, nil))
	require.Equal(t, 200, resp.Status)

	var info infoResponse
	require.NoError(t, json.Unmarshal(resp.Body, &info))
	assert.Equal(t, "local-server", info.Name)
	assert.Equal(t, []string{"/ui"}, info.Static)
	assert.Contains(t, info.Routes, routeInfo{Method: "POST", Path: "/api/v1/echo"})
	assert.Len(t, info.Routes, 4)
}

func TestStaticMount_ServesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Static = []config.StaticMount{{Prefix: "/", Dir: dir}}
	c := newTestConductor(t, cfg)

	resp := c.Process(local_server.NewRequest(local_server.MethodGet, "/", nil, nil))
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "<h1>hi</h1>", string(resp.Body))

	// registered routes still win over the root mount
	resp = c.Process(local_server.NewRequest(local_server.MethodGet, "/health", nil, nil))
	assert.Equal(t, "ok", string(resp.Body))
}

func TestBuildRegistry_DuplicateMount(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Static = []config.StaticMount{{Prefix: "/ui", Dir: "a"}, {Prefix: "/ui/", Dir: "b"}}
	_, err := buildRegistry(cfg)
	assert.ErrorIs(t, err, local_server.ErrDuplicateMount)
}

func TestNewServer_UsesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	srv, err := newServer(cfg, logging.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	assert.Equal(t, "tcp", srv.Network)
	assert.NotNil(t, srv.Conductor)
}

func TestConfigInit_WritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local-server.toml")
	var out bytes.Buffer
	configInitCmd.SetOut(&out)

	require.NoError(t, runConfigInit(configInitCmd, []string{path}))
	assert.Contains(t, out.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	err = runConfigInit(configInitCmd, []string{path})
	assert.ErrorContains(t, err, "already exists")
}
