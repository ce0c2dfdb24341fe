package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kFloat:
		return "float"
	case kDuration:
		return "duration"
	}
	return "string"
}

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "DATAVIZ_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "DATAVIZ_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_connections", typ: kInt, env: "DATAVIZ_SERVER_MAX_CONNECTIONS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConnections = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConnections },
	},
	{
		key: "server.max_upload_mb", typ: kInt, env: "DATAVIZ_SERVER_MAX_UPLOAD_MB",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxUploadMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxUploadMB },
	},
	{
		key: "server.token", typ: kString, env: "DATAVIZ_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "llm.backend", typ: kString, env: "DATAVIZ_LLM_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.LLM.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Backend },
	},
	{
		key: "llm.ollama_base_url", typ: kString, env: "DATAVIZ_LLM_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.OllamaBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.OllamaBaseURL },
	},
	{
		key: "llm.api_base_url", typ: kString, env: "DATAVIZ_LLM_API_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.APIBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIBaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "DATAVIZ_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.model", typ: kString, env: "DATAVIZ_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "DATAVIZ_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.classify_timeout", typ: kDuration, env: "DATAVIZ_LLM_CLASSIFY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.ClassifyTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.LLM.ClassifyTimeout },
	},
	{
		key: "llm.max_context_tokens", typ: kInt, env: "DATAVIZ_LLM_MAX_CONTEXT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxContextTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxContextTokens },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DATAVIZ_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.upload_dir", typ: kString, env: "DATAVIZ_STORAGE_UPLOAD_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.UploadDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.UploadDir },
	},
	{
		key: "memory.backend", typ: kString, env: "DATAVIZ_MEMORY_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Memory.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.Backend },
	},
	{
		key: "memory.redis_addr", typ: kString, env: "DATAVIZ_MEMORY_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Memory.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.RedisAddr },
	},
	{
		key: "memory.redis_password", typ: kString, env: "DATAVIZ_MEMORY_REDIS_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Memory.RedisPassword = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.RedisPassword },
	},
	{
		key: "memory.redis_db", typ: kInt, env: "DATAVIZ_MEMORY_REDIS_DB",
		apply:   func(cfg *Config, v any) { cfg.Memory.RedisDB = v.(int) },
		extract: func(cfg Config) any { return cfg.Memory.RedisDB },
	},
	{
		key: "memory.reap_interval", typ: kDuration, env: "DATAVIZ_MEMORY_REAP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Memory.ReapInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Memory.ReapInterval },
	},
	{
		key: "executor.timeout", typ: kDuration, env: "DATAVIZ_EXECUTOR_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Executor.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Executor.Timeout },
	},
	{
		key: "executor.max_figures", typ: kInt, env: "DATAVIZ_EXECUTOR_MAX_FIGURES",
		apply:   func(cfg *Config, v any) { cfg.Executor.MaxFigures = v.(int) },
		extract: func(cfg Config) any { return cfg.Executor.MaxFigures },
	},
	{
		key: "executor.max_points", typ: kInt, env: "DATAVIZ_EXECUTOR_MAX_POINTS",
		apply:   func(cfg *Config, v any) { cfg.Executor.MaxPoints = v.(int) },
		extract: func(cfg Config) any { return cfg.Executor.MaxPoints },
	},
	{
		key: "log.level", typ: kString, env: "DATAVIZ_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts raw into the Go value for t.
func (t keyType) parse(raw string) (any, error) {
	switch t {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	}
	return raw, nil
}

// applyBackend reads every non-secret key from b. A value of the wrong type
// is an error: the file is under the user's control and should be fixed.
func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := b.Get(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok {
			continue
		}
		v, err := s.typ.parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s for %s: %w", s.typ, s.key, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

// applyEnvOverrides applies DATAVIZ_* variables. Unparseable values are
// logged and skipped.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.typ.parse(raw)
		if err != nil {
			slog.Warn("ignoring unparseable environment variable", "env", s.env, "value", raw, "type", s.typ.String(), "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
