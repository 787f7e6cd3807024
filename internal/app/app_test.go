package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pennylane/internal/config"
	"pennylane/internal/notifier"
	"pennylane/internal/relay"
	"pennylane/internal/sweeper"
	"pennylane/internal/transport/transporttest"
	"pennylane/pkg/logx"
)

const testToken = "123456789:AAH_abcdefghijklmnopqrstuvwxyz012"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Telegram.Token = testToken
	return &cfg
}

func TestMapRelayConfigDefaultsAndErrors(t *testing.T) {
	cfg := testConfig()
	rc, err := mapRelayConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, 300*time.Second, rc.TTL)
	require.Equal(t, 10*time.Second, rc.AttemptTimeout)
	require.Equal(t, 8, rc.FanoutWorkers)

	cfg.Relay.TTL = ""
	rc, err = mapRelayConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, relay.DefaultTTL, rc.TTL)

	cfg.Relay.TTL = "soon"
	_, err = mapRelayConfig(cfg)
	require.Error(t, err)
}

func TestMapLogConfigNeedsTarget(t *testing.T) {
	cfg := testConfig()
	cfg.Logging.Telegram.Enabled = true
	require.False(t, mapLogConfig(cfg).Telegram.Enabled)

	cfg.Telegram.LogChat = -100123
	cfg.Telegram.LogThread = 7
	lc := mapLogConfig(cfg)
	require.True(t, lc.Telegram.Enabled)
	require.Equal(t, int64(-100123), lc.Telegram.ChatID)
	require.Equal(t, 7, lc.Telegram.ThreadID)
}

func TestMapStorageConfig(t *testing.T) {
	cfg := testConfig()
	_, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	require.False(t, enabled)

	cfg.Storage = &config.StorageConfig{Driver: "none"}
	_, enabled, err = mapStorageConfig(cfg)
	require.NoError(t, err)
	require.False(t, enabled)

	cfg.Storage = &config.StorageConfig{Driver: "sqlite3"}
	_, _, err = mapStorageConfig(cfg)
	require.Error(t, err)

	cfg.Storage = &config.StorageConfig{Driver: "SQLite", Path: "x.db", BusyTimeout: "2s"}
	sc, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	require.True(t, enabled)
	require.Equal(t, "sqlite", sc.Driver)
	require.Equal(t, 2*time.Second, sc.BusyTimeout)

	cfg.Storage = &config.StorageConfig{Driver: "redis"}
	_, _, err = mapStorageConfig(cfg)
	require.Error(t, err)
}

func TestSelfCheck(t *testing.T) {
	dir := t.TempDir()
	gif := filepath.Join(dir, "success.gif")
	require.NoError(t, os.WriteFile(gif, []byte("GIF89a"), 0o600))

	cfg := testConfig()
	cfg.Relay.Animation = gif
	cfg.Storage = &config.StorageConfig{Driver: "file", Path: filepath.Join(dir, "counters.json")}

	lines, err := SelfCheck(cfg)
	require.NoError(t, err)
	require.Contains(t, lines, "token: ok ("+config.MaskToken(testToken)+")")
	require.Contains(t, lines, "animation: "+gif+" (6 bytes)")
	for _, l := range lines {
		require.NotContains(t, l, testToken)
	}
}

func TestSelfCheckReportsBadToken(t *testing.T) {
	cfg := testConfig()
	cfg.Telegram.Token = "nope"
	cfg.Relay.Animation = filepath.Join(t.TempDir(), "missing.gif")

	lines, err := SelfCheck(cfg)
	require.ErrorIs(t, err, config.ErrInvalidToken)
	require.Contains(t, lines, "storage: disabled")
}

func TestRestartRequired(t *testing.T) {
	oldCfg := testConfig()
	newCfg := testConfig()
	newCfg.Telegram.LogChat = -1001
	require.Empty(t, restartRequired(oldCfg, newCfg, []string{"telegram"}))

	newCfg.Telegram.PollTimeout = "30s"
	require.Equal(t, []string{"telegram"}, restartRequired(oldCfg, newCfg, []string{"telegram"}))
	require.Equal(t, []string{"storage"}, restartRequired(oldCfg, oldCfg, []string{"storage"}))
}

func TestApplyConfigUpdatesLiveComponents(t *testing.T) {
	cfg := testConfig()
	cfg.Logging.Console = false
	logs, log := logx.New(mapLogConfig(cfg), nil)
	t.Cleanup(func() { _ = logs.Close() })

	rc, err := mapRelayConfig(cfg)
	require.NoError(t, err)
	rel := relay.New(rc, log)
	sw, err := sweeper.New(cfg.Relay.Sweep, rel, nil, log)
	require.NoError(t, err)

	a := &App{
		log:     log,
		logs:    logs,
		relay:   rel,
		notif:   notifier.New(mapNotifierConfig(cfg), transporttest.New(), log),
		sweeper: sw,
	}

	next := testConfig()
	next.Relay.TTL = "120s"
	next.Relay.Sweep = "@every 30s"
	next.Logging.Level = "debug"
	a.applyConfig(cfg, next)

	require.Equal(t, 120*time.Second, rel.TTL())
	require.Equal(t, "debug", logs.Config().Level)

	bad := testConfig()
	bad.Relay.TTL = "120s"
	bad.Relay.Sweep = "every now and then"
	a.applyConfig(next, bad)
	require.Equal(t, 120*time.Second, rel.TTL())
}
