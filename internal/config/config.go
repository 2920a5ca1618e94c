package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"vodscribe/internal/models"
)

// EnvPrefix is prepended to every environment override (VODSCRIBE_SERVER_ADDR, ...).
const EnvPrefix = "VODSCRIBE"

// Config holds all configuration for the server and CLI.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Data       DataConfig       `mapstructure:"data"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Sources    []models.Source  `mapstructure:"sources"`
	Transcribe TranscribeConfig `mapstructure:"transcribe"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

type DataConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	StateDir  string `mapstructure:"state_dir"`
	TempDir   string `mapstructure:"temp_dir"`
}

type PipelineConfig struct {
	Mode string `mapstructure:"mode"` // local or remote
}

type TranscribeConfig struct {
	Engine     string `mapstructure:"engine"`
	ModelDir   string `mapstructure:"model_dir"`
	Language   string `mapstructure:"language"`
	NumThreads int    `mapstructure:"num_threads"`
	ChunkSec   int    `mapstructure:"chunk_sec"`
}

type LLMConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	Temperature  float32 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
}

type RemoteConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIToken        string        `mapstructure:"api_token"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxWait         time.Duration `mapstructure:"max_wait"`
	ProgressHorizon time.Duration `mapstructure:"progress_horizon"`
}

type WorkerConfig struct {
	TerminateWait     time.Duration `mapstructure:"terminate_wait"`
	HeartbeatTick     time.Duration `mapstructure:"heartbeat_tick"`
	HeartbeatLogEvery time.Duration `mapstructure:"heartbeat_log_every"`
	HangAfter         time.Duration `mapstructure:"hang_after"`
	HistoryLimit      int           `mapstructure:"history_limit"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var validModes = map[string]bool{
	"local":  true,
	"remote": true,
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.api_key", "")

	v.SetDefault("data.output_dir", "output")
	v.SetDefault("data.state_dir", "data")
	v.SetDefault("data.temp_dir", "temp")

	v.SetDefault("pipeline.mode", "local")

	v.SetDefault("transcribe.engine", "whisper")
	v.SetDefault("transcribe.model_dir", "models/sherpa-onnx-whisper-turbo")
	v.SetDefault("transcribe.language", "ja")
	v.SetDefault("transcribe.num_threads", 4)
	v.SetDefault("transcribe.chunk_sec", 30)

	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 4096)

	v.SetDefault("remote.base_url", "https://api.bibigpt.co/api")
	v.SetDefault("remote.api_token", "")
	v.SetDefault("remote.poll_interval", "3s")
	v.SetDefault("remote.max_wait", "30m")
	v.SetDefault("remote.progress_horizon", "15m")

	v.SetDefault("worker.terminate_wait", "15s")
	v.SetDefault("worker.heartbeat_tick", "1s")
	v.SetDefault("worker.heartbeat_log_every", "12s")
	v.SetDefault("worker.hang_after", "30m")
	v.SetDefault("worker.history_limit", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// Load reads .env (if present), the optional YAML file at path and VODSCRIBE_* overrides,
// then validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if !validModes[c.Pipeline.Mode] {
		errs = append(errs, fmt.Errorf("pipeline.mode must be local or remote, got %q", c.Pipeline.Mode))
	}
	if strings.TrimSpace(c.Data.OutputDir) == "" {
		errs = append(errs, errors.New("data.output_dir is required"))
	}
	if strings.TrimSpace(c.Data.StateDir) == "" {
		errs = append(errs, errors.New("data.state_dir is required"))
	}
	if c.Pipeline.Mode == "remote" && strings.TrimSpace(c.Remote.BaseURL) == "" {
		errs = append(errs, errors.New("remote.base_url is required in remote mode"))
	}

	durations := map[string]time.Duration{
		"remote.poll_interval":       c.Remote.PollInterval,
		"remote.max_wait":            c.Remote.MaxWait,
		"remote.progress_horizon":    c.Remote.ProgressHorizon,
		"worker.terminate_wait":      c.Worker.TerminateWait,
		"worker.heartbeat_tick":      c.Worker.HeartbeatTick,
		"worker.heartbeat_log_every": c.Worker.HeartbeatLogEvery,
		"worker.hang_after":          c.Worker.HangAfter,
	}
	keys := make([]string, 0, len(durations))
	for k := range durations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if durations[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.Worker.HistoryLimit <= 0 {
		errs = append(errs, errors.New("worker.history_limit must be positive"))
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if strings.TrimSpace(s.ID) == "" {
			errs = append(errs, fmt.Errorf("sources[%d].id is required", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate id %s", i, s.ID))
		}
		seen[s.ID] = true
	}
	return errors.Join(errs...)
}
