package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testToken = "123456789:AAH_abcdefghijklmnopqrstuvwxyz012"

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"BOT_TOKEN", "DEBUG", "TTL", "ANIMATION", "LOG_LEVEL", "STORAGE"} {
		t.Setenv(EnvPrefix+"_"+k, "")
		require.NoError(t, os.Unsetenv(EnvPrefix+"_"+k))
	}
}

func TestMissingFileUsesDefaultsAndEnvToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("PENNY_BOT_TOKEN", testToken)

	cfg, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	require.Equal(t, testToken, cfg.Telegram.Token)
	require.Equal(t, "300s", cfg.Relay.TTL)
	require.Equal(t, 8, cfg.Relay.FanoutWorkers)
	require.Equal(t, "@every 1m", cfg.Relay.Sweep)
}

func TestMissingTokenIsRejected(t *testing.T) {
	clearEnv(t)
	_, err := NewManager(filepath.Join(t.TempDir(), "absent.json")).Load()
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestYAMLOverlaysDefaults(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "pennylane.yaml", `
telegram:
  token: "`+testToken+`"
relay:
  ttl: 90s
  fanout_workers: 3
storage:
  driver: sqlite
  path: ./x.db
`)
	cfg, err := NewManager(p).Load()
	require.NoError(t, err)
	require.Equal(t, "90s", cfg.Relay.TTL)
	require.Equal(t, 3, cfg.Relay.FanoutWorkers)
	require.Equal(t, "10s", cfg.Relay.DeliverTimeout)
	require.NotNil(t, cfg.Storage)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestUnknownFieldsAndTrailingDataRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("PENNY_BOT_TOKEN", testToken)

	p := writeFile(t, "c.json", `{"relay":{"tll":"1s"}}`)
	_, err := NewManager(p).Parse()
	require.Error(t, err)

	p = writeFile(t, "c2.json", `{} {}`)
	_, err = NewManager(p).Parse()
	require.ErrorContains(t, err, "trailing data")
}

func TestEnvOverridesAndDebug(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, "c.json", `{"telegram":{"token":"1:short"},"relay":{"ttl":"60s"}}`)
	t.Setenv("PENNY_BOT_TOKEN", testToken)
	t.Setenv("PENNY_TTL", "120s")
	t.Setenv("PENNY_DEBUG", "true")
	t.Setenv("PENNY_STORAGE", "file:./counters.json")

	cfg, err := NewManager(p).Parse()
	require.NoError(t, err)
	require.Equal(t, testToken, cfg.Telegram.Token)
	require.Equal(t, "120s", cfg.Relay.TTL)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Logging.File.Enabled)
	require.Equal(t, &StorageConfig{Driver: "file", Path: "./counters.json"}, cfg.Storage)
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("PENNY_TTL", "30s")
	p := writeFile(t, ".env", "PENNY_TTL=45s\nPENNY_ANIMATION=party.gif\n")
	require.NoError(t, LoadDotEnv(p))
	t.Cleanup(func() { _ = os.Unsetenv("PENNY_ANIMATION") })

	e, err := ReadEnv()
	require.NoError(t, err)
	require.Equal(t, "30s", e.TTL)
	require.Equal(t, "party.gif", e.Animation)

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Default()
		c.Telegram.Token = testToken
		return c
	}

	c := base()
	require.NoError(t, Validate(&c))

	c = base()
	c.Relay.TTL = "soon"
	require.ErrorContains(t, Validate(&c), "relay.ttl")

	c = base()
	c.Relay.TTL = "0s"
	require.ErrorContains(t, Validate(&c), "relay.ttl")

	c = base()
	c.Relay.Sweep = "every minute"
	require.ErrorContains(t, Validate(&c), "relay.sweep")

	c = base()
	c.Relay.FanoutWorkers = 1000
	require.Error(t, Validate(&c))

	c = base()
	c.Storage = &StorageConfig{Driver: "postgres"}
	require.Error(t, Validate(&c))

	c = base()
	c.Logging.Telegram.Enabled = true
	require.ErrorContains(t, Validate(&c), "log_chat")

	c = base()
	c.Debug.Addr = "not an address"
	require.Error(t, Validate(&c))
}

func TestTokenHelpers(t *testing.T) {
	require.True(t, ValidToken(testToken))
	require.False(t, ValidToken("123:abc"))
	require.False(t, ValidToken(""))
	require.Equal(t, "123456789:****z012", MaskToken(testToken))
	require.Equal(t, "<unset>", MaskToken(""))
}

func TestDurations(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, d)

	d, err = ParseDurationField("x", " 2m ")
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, d)

	_, err = ParseDurationField("x", "-1s")
	require.Error(t, err)
}

func TestSummarizeConfigChangeHidesToken(t *testing.T) {
	a := Default()
	a.Telegram.Token = testToken
	b := a
	b.Telegram.Token = "987654321:BBH_abcdefghijklmnopqrstuvwxyz012"
	b.Relay.TTL = "60s"

	changed, attrs := SummarizeConfigChange(&a, &b)
	require.Equal(t, []string{"telegram", "relay"}, changed)
	require.NotEmpty(t, attrs)

	changed, _ = SummarizeConfigChange(&a, &a)
	require.Empty(t, changed)

	d := a
	d.Debug = DebugConfig{Enabled: true, Addr: "127.0.0.1:7070", Token: "s3cret"}
	changed, _ = SummarizeConfigChange(&a, &d)
	require.Equal(t, []string{"debug"}, changed)
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	clearEnv(t)
	t.Setenv("PENNY_BOT_TOKEN", testToken)
	p := writeFile(t, "c.json", `{"relay":{"ttl":"60s"}}`)
	m := NewManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	require.False(t, m.Reload())

	require.NoError(t, os.WriteFile(p, []byte(`{"relay":{"ttl":"30s"}}`), 0o600))
	require.True(t, m.Reload())
	got := <-ch
	require.Equal(t, "30s", got.Relay.TTL)

	require.NoError(t, os.WriteFile(p, []byte(`{"relay":{"ttl":"bad"}}`), 0o600))
	require.False(t, m.Reload())
	require.Equal(t, "30s", m.Get().Relay.TTL)
}
