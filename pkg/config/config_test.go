package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestBuildDefaults(t *testing.T) {
	cfg, err := Build("", nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Hierarchy.TTL)
	assert.Equal(t, 500, cfg.Classify.LargeBatchThreshold)
	assert.Equal(t, 100, cfg.Classify.ProgressEvery)
	assert.Equal(t, "@every 1h", cfg.Watch.Schedule)
	assert.Equal(t, "raw", cfg.Archive.Prefix)
}

func TestBuildPrecedence(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
company_id: from-file
server:
  addr: ":8080"
hierarchy:
  ttl: 30s
secrets:
  database_url: postgres://file
  ynab_token: file-token
`)
	t.Setenv("FINBR_SERVER_ADDR", ":9090")
	t.Setenv("YNAB_ACCESS_TOKEN", "env-token")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("company", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--company", "from-flag"}))

	cfg, err := Build(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.CompanyID)
	assert.Equal(t, "debug", cfg.LogLevel, "unset flags do not override the file")
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Hierarchy.TTL)
	assert.Equal(t, "env-token", cfg.Secrets.YNABToken)
	assert.Equal(t, "postgres://file", cfg.Secrets.DatabaseURL)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Build(writeConfig(t, "log_level: loud\n"), nil)
	assert.ErrorContains(t, err, "invalid log_level")
}

func TestLogger(t *testing.T) {
	cfg := &Config{LogLevel: "warn"}
	assert.Equal(t, log.WarnLevel, cfg.Logger("finbr").GetLevel())

	cfg.LogLevel = "bogus"
	assert.Equal(t, log.InfoLevel, cfg.Logger("finbr").GetLevel())
}
