package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, int64(750), cfg.Engine.MaxPosition)
	assert.Equal(t, int64(300), cfg.Engine.BasketHardLimit)
	assert.Equal(t, int64(250), cfg.Engine.BasketSoftLimit)
	assert.Equal(t, 2500*time.Millisecond, cfg.Engine.BreachPersistence.Duration)
	assert.Equal(t, []string{"SEMIS_ETF_US", "SEMIS_ETF_EU", "NVDA", "AMD", "ASML"}, cfg.Instruments.All())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"

[engine]
arb_threshold = 0.1
tick_interval = "20ms"

[instruments]
constituents = ["AAA", "BBB"]
`), 0o600))

	t.Setenv("BASKETBOT_ENGINE_ARB_THRESHOLD", "0.25")
	t.Setenv("BASKETBOT_SERVER_API_KEY", "k3y")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 0.25, cfg.Engine.ArbThreshold)
	assert.Equal(t, 20*time.Millisecond, cfg.Engine.TickInterval.Duration)
	assert.Equal(t, []string{"AAA", "BBB"}, cfg.Instruments.Constituents)
	assert.Equal(t, "SEMIS_ETF_US", cfg.Instruments.BasketUS)
	assert.Equal(t, "k3y", cfg.Server.APIKey)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Exchange.ApiKey = ""
	cfg.Engine.BasketSoftLimit = 400
	cfg.Engine.PressureRatio = 1.5
	cfg.Instruments.Constituents = append(cfg.Instruments.Constituents, "NVDA")

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "api_key and api_secret")
	assert.Contains(t, msg, "basket_soft_limit")
	assert.Contains(t, msg, "pressure_ratio")
	assert.Contains(t, msg, `"NVDA" listed twice`)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.ApiSecret = "shh"
	cfg.Server.APIKey = "k"
	cfg.Exchange.PaperPositions["NVDA"] = 5

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Exchange.ApiSecret)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Exchange.ApiKey)
	assert.Equal(t, "shh", cfg.Exchange.ApiSecret)

	out.Exchange.PaperPositions["NVDA"] = 99
	assert.Equal(t, int64(5), cfg.Exchange.PaperPositions["NVDA"])
}
