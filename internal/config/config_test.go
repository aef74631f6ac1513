// Package config_test tests the configuration loading for the voice-clone-service.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullTOML = `
[server]
host = "127.0.0.1"
port = 8080
max_upload_mb = 20

[paths]
base_logs_dir = "/var/log/voice"
voices_dir = "/data/voices"
audio_dir = "/data/audio"
database_path = "/data/voice.db"

[checkpoints]
dir = "/models/checkpoints_v2"
url = "https://example.com/v2.zip"
base_v1_dir = "/models/checkpoints"

[model]
service_url = "http://model:9000"
timeout_seconds = 120
device = "cpu"
preprocess_text = true

[nats]
url = "nats://127.0.0.1:4222"
synthesis_subject = "synth.jobs"
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(fullTOML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Address())
	assert.Equal(t, 20, cfg.Server.MaxUploadMB)
	assert.Equal(t, "/data/voices", cfg.Paths.VoicesDir)
	assert.Equal(t, "/data/audio", cfg.Paths.AudioDir)
	assert.Equal(t, "/data/voice.db", cfg.Paths.DatabasePath)
	assert.Equal(t, "/models/checkpoints_v2", cfg.Checkpoints.Dir)
	assert.Equal(t, "https://example.com/v2.zip", cfg.Checkpoints.URL)
	assert.Equal(t, config.DefaultBaseV1URL, cfg.Checkpoints.BaseV1URL)
	assert.Equal(t, "http://model:9000", cfg.Model.ServiceURL)
	assert.Equal(t, 120, cfg.Model.TimeoutSeconds)
	assert.True(t, cfg.Model.PreprocessText)
	assert.True(t, cfg.NATS.Enabled())
	assert.Equal(t, "synth.jobs", cfg.NATS.SynthesisSubject)
	assert.Equal(t, config.DefaultAudioBucket, cfg.NATS.AudioObjectStoreBucket)
}

func TestParse_EmptyAppliesDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPort, cfg.Server.Port)
	assert.Equal(t, config.DefaultVoicesDir, cfg.Paths.VoicesDir)
	assert.Equal(t, config.DefaultAudioDir, cfg.Paths.AudioDir)
	assert.Equal(t, config.DefaultDatabasePath, cfg.Paths.DatabasePath)
	assert.Equal(t, config.DefaultCheckpointURL, cfg.Checkpoints.URL)
	assert.Equal(t, config.DefaultWatermark, cfg.Model.Watermark)
	assert.Equal(t, config.DefaultDevice, cfg.Model.Device)
	assert.False(t, cfg.NATS.Enabled())
}

func TestParse_CheckpointDirEnvOverride(t *testing.T) {
	t.Setenv(config.EnvCheckpointDir, "/override/ckpt")

	cfg, err := config.Parse([]byte(fullTOML))
	require.NoError(t, err)

	assert.Equal(t, "/override/ckpt", cfg.Checkpoints.Dir)
}

func TestParse_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		toml string
	}{
		{name: "port out of range", toml: "[server]\nport = 70000\n"},
		{name: "negative upload limit", toml: "[server]\nmax_upload_mb = -1\n"},
		{name: "bad model url", toml: "[model]\nservice_url = \"model:9000\"\n"},
		{name: "negative model timeout", toml: "[model]\ntimeout_seconds = -5\n"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Parse([]byte(testCase.toml))
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestParse_MalformedTOML(t *testing.T) {
	t.Parallel()

	_, err := config.Parse([]byte("[server\nport = "))
	require.Error(t, err)
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte(fullTOML), 0o600))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"), nil)
	require.Error(t, err)
}
