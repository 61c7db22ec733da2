package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  addr: ":9090"
  debug: true
database:
  path: "/tmp/quizchain-test.db"
ledger:
  registry_address: "0xAA"
  admin_address: "0xAD"
  max_height_jump: 500
oracle:
  network_id: "0x0000000000000000000000000000000000000000000000000000000000000001"
  subscription_id: 42
  oracle_address: "0xE1"
  evaluation_script: "grade()"
  authorized_callers: ["0xAA"]
  enabled: true
  eval_timeout: 90s
  verify_timeout: 5m
grader:
  model: "gemini-2.0-flash"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "/tmp/quizchain-test.db", cfg.Database.Path)
	assert.Equal(t, uint64(500), cfg.Ledger.MaxHeightJump)
	assert.Equal(t, uint64(42), cfg.Oracle.SubscriptionID)
	assert.Equal(t, []string{"0xAA"}, cfg.Oracle.AuthorizedCallers)
	assert.True(t, cfg.Oracle.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Oracle.EvalTimeout.Std())
	assert.Equal(t, 5*time.Minute, cfg.Oracle.VerifyTimeout.Std())
	assert.Equal(t, "gemini-2.0-flash", cfg.Grader.Model)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "data/quizchain.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Minute, cfg.Oracle.VerifyTimeout.Std())
	assert.True(t, cfg.Oracle.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUIZCHAIN_ADDR", ":7070")
	t.Setenv("QUIZCHAIN_DB_PATH", "/tmp/override.db")
	t.Setenv("QUIZCHAIN_GRADER_API_KEY", "sekrit")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "sekrit", cfg.Grader.APIKey)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not a map"))
	assert.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	got := make(chan *Config, 4)
	stop, err := Watch(path, nil, func(c *Config) { got <- c })
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":6060\"\n"), 0o644))

	select {
	case cfg := <-got:
		assert.Equal(t, ":6060", cfg.Server.Addr)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
