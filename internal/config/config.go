// Package config provides the configuration structure for the voice-clone-service.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// EnvCheckpointDir overrides the converter checkpoint directory.
const EnvCheckpointDir = "OPENVOICE_CHECKPOINT_DIR"

// Default values applied to a loaded configuration.
const (
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 8000
	DefaultReadTimeout        = 60
	DefaultWriteTimeout       = 600
	DefaultMaxUploadMB        = 50
	DefaultLogsDir            = "logs"
	DefaultVoicesDir          = "voices"
	DefaultAudioDir           = "audio_files"
	DefaultDatabasePath       = "voice_database.db"
	DefaultCheckpointDir      = "checkpoints_v2"
	DefaultCheckpointURL      = "https://myshell-public-repo-host.s3.amazonaws.com/openvoice/checkpoints_v2_0417.zip"
	DefaultBaseV1Dir          = "checkpoints"
	DefaultBaseV1URL          = "https://myshell-public-repo-host.s3.amazonaws.com/openvoice/checkpoints_1226.zip"
	DefaultDownloadTimeout    = 1800
	DefaultModelServiceURL    = "http://127.0.0.1:9000"
	DefaultModelTimeout       = 300
	DefaultDevice             = "cpu"
	DefaultLanguage           = "English"
	DefaultWatermark          = "@MyShell"
	DefaultSynthesisSubject   = "voice.synthesis.requested"
	DefaultTextBucket         = "TEXT_FILES"
	DefaultAudioBucket        = "AUDIO_FILES"
	maxPort                   = 65535
	errFmtInvalidSetting      = "%w: %s"
	errFmtConfigFileRead      = "failed to read config file %s: %w"
	errFmtConfigFileParse     = "failed to parse config file %s: %w"
	errFmtConfiguratorFailure = "failed to load configuration from configurator: %w"
)

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	MaxUploadMB         int    `toml:"max_upload_mb"`
}

// Address returns the host:port pair the server listens on.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir  string `toml:"base_logs_dir"`
	VoicesDir    string `toml:"voices_dir"`
	AudioDir     string `toml:"audio_dir"`
	DatabasePath string `toml:"database_path"`
}

// CheckpointsConfig describes where model artifacts live and where to fetch them.
type CheckpointsConfig struct {
	Dir                    string `toml:"dir"`
	URL                    string `toml:"url"`
	SHA256                 string `toml:"sha256"`
	BaseV1Dir              string `toml:"base_v1_dir"`
	BaseV1URL              string `toml:"base_v1_url"`
	BaseV1SHA256           string `toml:"base_v1_sha256"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// ModelConfig holds the settings for the external model backend.
type ModelConfig struct {
	ServiceURL     string `toml:"service_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Device         string `toml:"device"`
	Language       string `toml:"language"`
	Watermark      string `toml:"watermark"`
	PreprocessText bool   `toml:"preprocess_text"`
}

// NATSConfig holds the configuration for the optional NATS job ingress.
type NATSConfig struct {
	URL                    string `toml:"url"`
	SynthesisSubject       string `toml:"synthesis_subject"`
	TextObjectStoreBucket  string `toml:"text_object_store_bucket"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// Enabled reports whether the NATS worker should be started.
func (n NATSConfig) Enabled() bool {
	return strings.TrimSpace(n.URL) != ""
}

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Paths       PathsConfig       `toml:"paths"`
	Checkpoints CheckpointsConfig `toml:"checkpoints"`
	Model       ModelConfig       `toml:"model"`
	NATS        NATSConfig        `toml:"nats"`
}

// Load loads the configuration for the voice-clone-service through the central
// configurator. An explicit path bypasses the configurator and reads that TOML file.
func Load(path string, log *logger.Logger) (*Config, error) {
	var cfg Config

	if path != "" {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf(errFmtConfigFileRead, path, readErr)
		}

		parsed, parseErr := Parse(data)
		if parseErr != nil {
			return nil, fmt.Errorf(errFmtConfigFileParse, path, parseErr)
		}

		return parsed, nil
	}

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf(errFmtConfiguratorFailure, err)
	}

	return finalize(&cfg)
}

// Parse decodes TOML data, applies defaults and environment overrides, and validates
// the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal TOML: %w", err)
	}

	return finalize(&cfg)
}

func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()
	cfg.applyEnv()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.Host, DefaultHost)
	setInt(&c.Server.Port, DefaultPort)
	setInt(&c.Server.ReadTimeoutSeconds, DefaultReadTimeout)
	setInt(&c.Server.WriteTimeoutSeconds, DefaultWriteTimeout)
	setInt(&c.Server.MaxUploadMB, DefaultMaxUploadMB)

	setString(&c.Paths.BaseLogsDir, DefaultLogsDir)
	setString(&c.Paths.VoicesDir, DefaultVoicesDir)
	setString(&c.Paths.AudioDir, DefaultAudioDir)
	setString(&c.Paths.DatabasePath, DefaultDatabasePath)

	setString(&c.Checkpoints.Dir, DefaultCheckpointDir)
	setString(&c.Checkpoints.URL, DefaultCheckpointURL)
	setString(&c.Checkpoints.BaseV1Dir, DefaultBaseV1Dir)
	setString(&c.Checkpoints.BaseV1URL, DefaultBaseV1URL)
	setInt(&c.Checkpoints.DownloadTimeoutSeconds, DefaultDownloadTimeout)

	setString(&c.Model.ServiceURL, DefaultModelServiceURL)
	setInt(&c.Model.TimeoutSeconds, DefaultModelTimeout)
	setString(&c.Model.Device, DefaultDevice)
	setString(&c.Model.Language, DefaultLanguage)
	setString(&c.Model.Watermark, DefaultWatermark)

	setString(&c.NATS.SynthesisSubject, DefaultSynthesisSubject)
	setString(&c.NATS.TextObjectStoreBucket, DefaultTextBucket)
	setString(&c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)
}

func (c *Config) applyEnv() {
	if dir := os.Getenv(EnvCheckpointDir); dir != "" {
		c.Checkpoints.Dir = dir
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > maxPort {
		return fmt.Errorf(errFmtInvalidSetting, ErrInvalidConfig, "server.port must be between 1 and 65535")
	}

	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf(errFmtInvalidSetting, ErrInvalidConfig, "server.max_upload_mb must be positive")
	}

	if c.Model.TimeoutSeconds <= 0 {
		return fmt.Errorf(errFmtInvalidSetting, ErrInvalidConfig, "model.timeout_seconds must be positive")
	}

	if c.Checkpoints.DownloadTimeoutSeconds <= 0 {
		return fmt.Errorf(errFmtInvalidSetting, ErrInvalidConfig,
			"checkpoints.download_timeout_seconds must be positive")
	}

	if !strings.HasPrefix(c.Model.ServiceURL, "http://") && !strings.HasPrefix(c.Model.ServiceURL, "https://") {
		return fmt.Errorf(errFmtInvalidSetting, ErrInvalidConfig, "model.service_url must be an http(s) URL")
	}

	return nil
}

func setString(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}
