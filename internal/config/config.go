package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livecapd/livecap/internal/deepgram"
)

// EnvPrefix is the namespace prefix for all LiveCap environment variables.
const EnvPrefix = "LIVECAP_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr      string `yaml:"listen_addr"`
	TokenURL        string `yaml:"token_url"`
	DeepgramHost    string `yaml:"deepgram_host"`
	Model           string `yaml:"model"`
	Language        string `yaml:"language"`
	SmartFormat     bool   `yaml:"smart_format"`
	InterimResults  bool   `yaml:"interim_results"`
	Diarize         bool   `yaml:"diarize"`
	Punctuate       bool   `yaml:"punctuate"`
	EndpointingMs   int    `yaml:"endpointing_ms"`
	SampleRate      int    `yaml:"sample_rate"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
	ChunkInterval   string `yaml:"chunk_interval"`

	// Secret — env var only, never serialized to YAML.
	DeepgramAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8080",
		DeepgramHost:    "api.deepgram.com",
		Model:           "nova-2",
		Language:        "en-US",
		SmartFormat:     true,
		InterimResults:  true,
		Diarize:         true,
		Punctuate:       true,
		EndpointingMs:   300,
		SampleRate:      16000,
		FramesPerBuffer: 512,
		ChunkInterval:   "250ms",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedChunkInterval returns ChunkInterval as a time.Duration,
// falling back to 250ms if the value is invalid.
func (c *Config) ParsedChunkInterval() time.Duration {
	d, err := time.ParseDuration(c.ChunkInterval)
	if err != nil || d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}

// TransportOptions maps the recognition settings onto the streaming
// transport's option set.
func (c *Config) TransportOptions() deepgram.Options {
	return deepgram.Options{
		Host:           c.DeepgramHost,
		Model:          c.Model,
		Language:       c.Language,
		SmartFormat:    c.SmartFormat,
		InterimResults: c.InterimResults,
		Diarize:        c.Diarize,
		Punctuate:      c.Punctuate,
		EndpointingMs:  c.EndpointingMs,
		SampleRate:     c.SampleRate,
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "TOKEN_URL"); v != "" {
		cfg.TokenURL = v
	}
	if v := os.Getenv(EnvPrefix + "DEEPGRAM_HOST"); v != "" {
		cfg.DeepgramHost = v
	}
	if v := os.Getenv(EnvPrefix + "MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(EnvPrefix + "LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv(EnvPrefix + "DIARIZE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Diarize = b
		}
	}
	if v := os.Getenv(EnvPrefix + "INTERIM_RESULTS"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.InterimResults = b
		}
	}
	if v := os.Getenv(EnvPrefix + "SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.SampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_INTERVAL"); v != "" {
		cfg.ChunkInterval = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" && cfg.TokenURL == "" {
		warnings = append(warnings, "No recognition credential configured. Set "+EnvPrefix+"DEEPGRAM_API_KEY or token_url.")
	}
	if _, err := time.ParseDuration(cfg.ChunkInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid chunk_interval %q, using default 250ms.", cfg.ChunkInterval))
	}
	if cfg.SampleRate <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid sample_rate %d, using default 16000.", cfg.SampleRate))
		cfg.SampleRate = 16000
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = 512
	}

	return warnings
}
