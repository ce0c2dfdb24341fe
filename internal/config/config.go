// Package config layers defaults, a JSON file, a .env file and DATAVIZ_*
// environment variables into one Config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	Storage  StorageConfig
	Memory   MemoryConfig
	Executor ExecutorConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	MaxConnections int
	MaxUploadMB    int
	// Token enables bearer auth on the HTTP API when set.
	Token string
}

type LLMConfig struct {
	Backend          string
	OllamaBaseURL    string
	APIBaseURL       string
	APIKey           string
	Model            string
	Temperature      float64
	ClassifyTimeout  time.Duration
	MaxContextTokens int
}

type StorageConfig struct {
	DataDir   string
	UploadDir string
}

type MemoryConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ReapInterval  time.Duration
}

type ExecutorConfig struct {
	Timeout    time.Duration
	MaxFigures int
	MaxPoints  int
}

type LogConfig struct {
	Level string
}

// Memory backends.
const (
	MemoryInProcess = "memory"
	MemorySQLite    = "sqlite"
	MemoryRedis     = "redis"
)

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			MaxConnections: 256,
			MaxUploadMB:    50,
		},
		LLM: LLMConfig{
			OllamaBaseURL:    "http://localhost:11434",
			APIBaseURL:       "https://openrouter.ai/api/v1",
			Model:            "llama3.1",
			Temperature:      0.1,
			ClassifyTimeout:  20 * time.Second,
			MaxContextTokens: 4096,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Memory: MemoryConfig{
			Backend:      MemoryInProcess,
			RedisAddr:    "localhost:6379",
			ReapInterval: 10 * time.Minute,
		},
		Executor: ExecutorConfig{
			Timeout:    10 * time.Second,
			MaxFigures: 8,
			MaxPoints:  100_000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads $XDG_CONFIG_HOME/dataviz/config.json, then .env, then DATAVIZ_*
// environment variables. Later layers win; variables already set in the
// process environment are never replaced by .env.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), DefaultEnvFile)
}

func loadWith(b Backend, envFiles ...string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	applyEnvOverrides(&cfg)

	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = filepath.Join(cfg.Storage.DataDir, "uploads")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Memory.Backend {
	case MemoryInProcess, MemorySQLite, MemoryRedis:
	default:
		return fmt.Errorf("invalid memory.backend %q (want memory, sqlite or redis)", c.Memory.Backend)
	}
	if strings.EqualFold(c.LLM.Backend, "openrouter") && c.LLM.APIKey == "" {
		return errors.New("missing required config: llm.backend is openrouter but no API key is set; " +
			"set DATAVIZ_LLM_API_KEY in the environment or .env")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	return nil
}

// LogLevel maps log.level onto a slog level; unknown names mean info.
func (c Config) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
