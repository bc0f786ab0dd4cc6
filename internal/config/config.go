package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"gpnscribe/internal/errs"
)

const (
	DefaultProfile        = "base"
	defaultWindowMS       = 30000
	defaultTimeoutSec     = 600
	defaultSettleMS       = 500
	defaultStateDirLinux  = ".local/state/gpnscribe"
	defaultConfigDir      = ".config/gpnscribe"
	defaultDataDir        = "data"
	defaultMetricsAddr    = "127.0.0.1:9318"
	defaultFFmpegBinary   = "ffmpeg"
	defaultSampleRate     = 16000
	defaultEngineEndpoint = "https://api.openai.com/v1/audio/transcriptions"
)

// Profiles lists the quality/speed profiles from fastest to most accurate.
var Profiles = []string{"tiny", "base", "small", "medium", "large"}

// ModelFiles maps a profile to its ggml model file name.
var ModelFiles = map[string]string{
	"tiny":   "ggml-tiny.bin",
	"base":   "ggml-base.bin",
	"small":  "ggml-small.bin",
	"medium": "ggml-medium.bin",
	"large":  "ggml-large-v3.bin",
}

var (
	engineBackends = []string{"whisper", "exec", "http"}
	codecBackends  = []string{"ffmpeg", "wav"}
	logLevels      = []string{"debug", "info", "warn", "warning", "error", "critical"}
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Paths struct {
		DataDir    string `toml:"data_dir"`
		InputDir   string `toml:"input_dir"`  // default <data_dir>/audio/input
		OutputDir  string `toml:"output_dir"` // default <data_dir>/audio/output/<profile>
		ScratchDir string `toml:"scratch_dir"`
		StateDir   string `toml:"state_dir"`
		LogPath    string `toml:"log_path"`
		ModelDir   string `toml:"model_dir"`
		ConfigPath string `toml:"-"`
	} `toml:"paths"`

	Inventory struct {
		Extensions []string `toml:"extensions"`
	} `toml:"inventory"`

	Segment struct {
		WindowMS int64  `toml:"window_ms"`
		Format   string `toml:"format"`
	} `toml:"segment"`

	Workers struct {
		Max               int     `toml:"max"` // 0 = three quarters of the CPUs
		SegmentTimeoutSec float64 `toml:"segment_timeout_sec"`
	} `toml:"workers"`

	Engine struct {
		Backend   string            `toml:"backend"` // whisper, exec, http
		Profile   string            `toml:"profile"` // tiny, base, small, medium, large
		ModelPath string            `toml:"model_path"`
		Language  string            `toml:"language"`
		Command   string            `toml:"command"`
		Args      string            `toml:"args"`
		Env       map[string]string `toml:"env"`
		Endpoint  string            `toml:"endpoint"`
		APIModel  string            `toml:"api_model"`
		APIKeyEnv string            `toml:"api_key_env"`
	} `toml:"engine"`

	Codec struct {
		Backend    string `toml:"backend"` // ffmpeg, or wav for short PCM files held in memory
		FFmpegPath string `toml:"ffmpeg_path"`
		SampleRate int    `toml:"sample_rate"`
	} `toml:"codec"`

	VAD struct {
		Enabled        bool    `toml:"enabled"`
		Aggressiveness int     `toml:"aggressiveness"`
		FrameMS        int     `toml:"frame_ms"`
		MinVoicedRatio float64 `toml:"min_voiced_ratio"`
	} `toml:"vad"`

	Run struct {
		Overwrite bool `toml:"overwrite"`
	} `toml:"run"`

	Watch struct {
		SettleMS int `toml:"settle_ms"`
	} `toml:"watch"`

	Logging struct {
		Level   string `toml:"level"`  // debug, info, warning, error, critical
		Format  string `toml:"format"` // text, json
		Console bool   `toml:"console"`
	} `toml:"logging"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "gpnscribe")
	}

	cfg := &Config{}

	cfg.Paths.DataDir = defaultDataDir
	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "gpnscribe.log")
	cfg.Paths.ModelDir = filepath.Join(stateDir, "models")

	cfg.Inventory.Extensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg", ".opus"}

	cfg.Segment.WindowMS = defaultWindowMS
	cfg.Segment.Format = "wav"

	cfg.Workers.SegmentTimeoutSec = defaultTimeoutSec

	cfg.Engine.Backend = "whisper"
	cfg.Engine.Profile = DefaultProfile
	cfg.Engine.Args = "-m {model} -f {input} -nt -np"
	cfg.Engine.Env = map[string]string{}
	cfg.Engine.Endpoint = defaultEngineEndpoint
	cfg.Engine.APIModel = "whisper-1"
	cfg.Engine.APIKeyEnv = "OPENAI_API_KEY"

	cfg.Codec.Backend = "ffmpeg"
	cfg.Codec.FFmpegPath = defaultFFmpegBinary
	cfg.Codec.SampleRate = defaultSampleRate

	cfg.VAD.Enabled = false
	cfg.VAD.Aggressiveness = 2
	cfg.VAD.FrameMS = 20
	cfg.VAD.MinVoicedRatio = 0.02

	cfg.Watch.SettleMS = defaultSettleMS

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.Console = true

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = defaultMetricsAddr

	return cfg, nil
}

// Load loads config from file, applying defaults, .env and environment overrides.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Save(cfg, path); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errs.Wrap(errs.ErrConfiguration, "parse config", err)
		}
	}
	cfg.Paths.ConfigPath = path
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath)} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// InputPath is the directory scanned for audio.
func (c *Config) InputPath() string {
	if c.Paths.InputDir != "" {
		return os.ExpandEnv(c.Paths.InputDir)
	}
	return filepath.Join(os.ExpandEnv(c.Paths.DataDir), "audio", "input")
}

// OutputPath is the directory transcripts are written to.
func (c *Config) OutputPath() string {
	if c.Paths.OutputDir != "" {
		return os.ExpandEnv(c.Paths.OutputDir)
	}
	return filepath.Join(os.ExpandEnv(c.Paths.DataDir), "audio", "output", c.Engine.Profile)
}

// ScratchPath is the root under which per-run scratch directories are created.
func (c *Config) ScratchPath() string {
	if c.Paths.ScratchDir != "" {
		return os.ExpandEnv(c.Paths.ScratchDir)
	}
	return os.TempDir()
}

// ModelFile returns the ggml model used by the whisper and exec engines.
func (c *Config) ModelFile() string {
	if c.Engine.ModelPath != "" {
		return os.ExpandEnv(c.Engine.ModelPath)
	}
	return filepath.Join(os.ExpandEnv(c.Paths.ModelDir), ModelFiles[c.Engine.Profile])
}

// SegmentTimeout bounds a single segment job; zero disables the bound.
func (c *Config) SegmentTimeout() time.Duration {
	return time.Duration(c.Workers.SegmentTimeoutSec * float64(time.Second))
}

// Workers resolves the worker count for a machine with numCPU CPUs.
func Workers(cfg *Config, numCPU int) int {
	if cfg.Workers.Max > 0 {
		return cfg.Workers.Max
	}
	return max(1, numCPU*3/4)
}

// Validate reports every invalid setting as a configuration error.
func Validate(cfg *Config, numCPU int) error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, errs.Config(format, args...))
	}

	if cfg.Segment.WindowMS <= 0 {
		add("segment.window_ms must be positive (got %d)", cfg.Segment.WindowMS)
	}
	if cfg.Segment.Format != "wav" {
		add("segment.format %q unsupported; engines accept wav", cfg.Segment.Format)
	}
	if cfg.Workers.Max < 0 {
		add("workers.max must not be negative (got %d)", cfg.Workers.Max)
	}
	if cfg.Workers.Max > numCPU {
		add("workers.max %d exceeds available CPUs (%d)", cfg.Workers.Max, numCPU)
	}
	if cfg.Workers.SegmentTimeoutSec < 0 {
		add("workers.segment_timeout_sec must not be negative")
	}
	if !slices.Contains(Profiles, cfg.Engine.Profile) {
		add("engine.profile %q unknown; choose one of %s", cfg.Engine.Profile, strings.Join(Profiles, ", "))
	}
	if !slices.Contains(engineBackends, cfg.Engine.Backend) {
		add("engine.backend %q unknown; choose one of %s", cfg.Engine.Backend, strings.Join(engineBackends, ", "))
	}
	if cfg.Engine.Backend == "exec" && strings.TrimSpace(cfg.Engine.Command) == "" {
		add("engine.command is required for the exec backend")
	}
	if cfg.Engine.Backend == "http" && strings.TrimSpace(cfg.Engine.Endpoint) == "" {
		add("engine.endpoint is required for the http backend")
	}
	if !slices.Contains(codecBackends, cfg.Codec.Backend) {
		add("codec.backend %q unknown; choose one of %s", cfg.Codec.Backend, strings.Join(codecBackends, ", "))
	}
	if cfg.Codec.SampleRate <= 0 {
		add("codec.sample_rate must be positive")
	}
	if len(cfg.Inventory.Extensions) == 0 {
		add("inventory.extensions must list at least one extension")
	}
	if cfg.VAD.Enabled {
		if cfg.VAD.Aggressiveness < 0 || cfg.VAD.Aggressiveness > 3 {
			add("vad.aggressiveness must be 0-3 (got %d)", cfg.VAD.Aggressiveness)
		}
		if cfg.VAD.FrameMS != 10 && cfg.VAD.FrameMS != 20 && cfg.VAD.FrameMS != 30 {
			add("vad.frame_ms must be 10, 20, or 30 (got %d)", cfg.VAD.FrameMS)
		}
	}
	if !slices.Contains(logLevels, strings.ToLower(cfg.Logging.Level)) {
		add("logging.level %q unknown", cfg.Logging.Level)
	}
	return errors.Join(problems...)
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errs.Wrap(errs.ErrConfiguration, "load "+path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	// Names used by the original python tooling.
	if v := os.Getenv("DATA_DIRECTORY"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("TRANSCRIBER_MODEL"); v != "" {
		cfg.Engine.Profile = strings.ToLower(v)
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv("GPNSCRIBE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GPNSCRIBE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GPNSCRIBE_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("GPNSCRIBE_MAX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.Config("GPNSCRIBE_MAX_WORKERS=%q is not a number", v)
		}
		cfg.Workers.Max = n
	}
	if v := os.Getenv("GPNSCRIBE_OVERWRITE"); v != "" {
		cfg.Run.Overwrite = v != "0" && strings.ToLower(v) != "false"
	}
	if v := os.Getenv("GPNSCRIBE_ENGINE"); v != "" {
		cfg.Engine.Backend = v
	}
	if v := os.Getenv("GPNSCRIBE_CODEC"); v != "" {
		cfg.Codec.Backend = v
	}
	return nil
}

// Describe renders the effective configuration as TOML.
func Describe(cfg *Config) (string, error) {
	out, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return string(out), nil
}
