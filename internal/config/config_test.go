package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
database:
  driver: mysql
  host: localhost
  user: root
  dbname: depth_test
target:
  app_name: ChatGPT
  new_chat_per_sample: true
  response_region:
    x: 100
    y: 200
    w: 800
    h: 600
automation:
  poll_interval_ms: 500
  max_retries: 5
dataset:
  image_dir: data/rgb
prompt:
  default_template: colormap_depth
  modes:
    colormap_depth: colormap
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.True(t, cfg.Target.NewChatPerSample)
	assert.Equal(t, Region{X: 100, Y: 200, W: 800, H: 600}, cfg.Target.ResponseRegion)
	assert.Equal(t, 500, cfg.Automation.PollIntervalMS)
	assert.Equal(t, 5, cfg.Automation.MaxRetries)
	assert.Equal(t, "data/rgb", cfg.Dataset.ImageDir)

	// 未给出的字段回落到默认值
	assert.Equal(t, 120, cfg.Automation.MaxWaitSec)
	assert.Equal(t, 3, cfg.Automation.RetryBaseSec)
	assert.Equal(t, "utf8mb4", cfg.Database.Charset)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "ChatGPT", cfg.Target.AppName)
	assert.Equal(t, Offset{X: 30, Y: 0}, cfg.Target.CopyImageOffset)
	assert.Equal(t, 2000, cfg.Automation.PollIntervalMS)
	assert.Equal(t, 2, cfg.Automation.StablePolls)
	assert.Equal(t, 30, cfg.Automation.RetryCapSec)
	assert.Contains(t, cfg.Dataset.Extensions, ".bmp")
	assert.Equal(t, "grayscale_depth", cfg.Prompt.DefaultTemplate)
}

func TestApplyDefaults_DBPasswordFromEnv(t *testing.T) {
	t.Setenv("DEPTH_TEST_DB_PASSWORD", "secret")
	cfg := &Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, "secret", cfg.Database.Password)
}

func TestExpectedMode(t *testing.T) {
	cfg := &Config{}
	cfg.Prompt.Modes = map[string]string{"colormap_depth": "colormap"}

	assert.Equal(t, "colormap", cfg.ExpectedMode("colormap_depth"))
	assert.Equal(t, "grayscale", cfg.ExpectedMode("grayscale_depth"))
	assert.Equal(t, "grayscale", cfg.ExpectedMode("unknown"))
}
