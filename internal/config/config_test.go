package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/portal-client/v2/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.Equal(t, config.DefaultAPIURL, cfg.APIURL)
	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, config.DefaultDBFile, cfg.DBFile)
	require.Equal(t, 600*time.Millisecond, cfg.RedirectDelay)
	require.Equal(t, 5*time.Second, cfg.AddressCheckTimeout)
	require.Equal(t, "/api/auth/login/", cfg.Endpoints.Login)
	require.Equal(t, "/api/addresses/check/", cfg.Endpoints.AddressCheck)
	require.Equal(t, filepath.Join(dir, "logs", "client.log"), cfg.LogFile)
}

func TestLoadReadsEnvFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	env := "API_URL=https://portal.example.com/\nREDIRECT_DELAY=1s\nLOG_LEVEL=DEBUG\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	t.Setenv("DATA_DIR", dir)
	t.Setenv("ADDRESS_CHECK_TIMEOUT", "250ms")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.Equal(t, "https://portal.example.com", cfg.APIURL)
	require.Equal(t, time.Second, cfg.RedirectDelay)
	require.Equal(t, 250*time.Millisecond, cfg.AddressCheckTimeout)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestNewLoggerWritesToDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{LogLevel: "warn", LogFile: filepath.Join(dir, "logs", "client.log")}

	log := config.NewLogger(cfg)
	require.Equal(t, logrus.WarnLevel, log.GetLevel())
	log.Warn("hello")

	_, err := os.Stat(cfg.LogFile)
	require.NoError(t, err)
}
