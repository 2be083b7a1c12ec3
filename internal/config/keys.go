package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

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
		key: "server.port", typ: kInt, env: "LORATK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "LORATK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.exports_dir", typ: kString, env: "LORATK_STORAGE_EXPORTS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.ExportsDir = v.(string) },
		extract: func(cfg Config) any { return cfg.ExportsPath() },
	},
	{
		key: "log.level", typ: kString, env: "LORATK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "export.default_format", typ: kString, env: "LORATK_EXPORT_DEFAULT_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Export.DefaultFormat = v.(string) },
		extract: func(cfg Config) any { return cfg.Export.DefaultFormat },
	},
	{
		key: "export.system_prompt", typ: kString, env: "LORATK_EXPORT_SYSTEM_PROMPT",
		apply:   func(cfg *Config, v any) { cfg.Export.SystemPrompt = v.(string) },
		extract: func(cfg Config) any { return cfg.Export.SystemPrompt },
	},
	{
		key: "export.instruction_style", typ: kString, env: "LORATK_EXPORT_INSTRUCTION_STYLE",
		apply:   func(cfg *Config, v any) { cfg.Export.InstructionStyle = v.(string) },
		extract: func(cfg Config) any { return cfg.Export.InstructionStyle },
	},
	{
		key: "export.chunk_size", typ: kInt, env: "LORATK_EXPORT_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Export.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Export.ChunkSize },
	},
	{
		key: "export.chunk_overlap", typ: kInt, env: "LORATK_EXPORT_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Export.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Export.ChunkOverlap },
	},
	{
		key: "export.min_score", typ: kInt, env: "LORATK_EXPORT_MIN_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Export.MinScore = v.(int) },
		extract: func(cfg Config) any { return cfg.Export.MinScore },
	},
	{
		key: "dedup.title_threshold", typ: kFloat, env: "LORATK_DEDUP_TITLE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Dedup.TitleThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Dedup.TitleThreshold },
	},
	{
		key: "dedup.content_threshold", typ: kFloat, env: "LORATK_DEDUP_CONTENT_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Dedup.ContentThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Dedup.ContentThreshold },
	},
	{
		key: "ingest.skip_duplicates", typ: kBool, env: "LORATK_INGEST_SKIP_DUPLICATES",
		apply:   func(cfg *Config, v any) { cfg.Ingest.SkipDuplicates = v.(bool) },
		extract: func(cfg Config) any { return cfg.Ingest.SkipDuplicates },
	},
	{
		key: "api.token", typ: kString, env: "LORATK_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

// parseValue converts a raw string into the Go type a key of typ holds.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			slog.Warn("ignoring config value, using default", "key", s.key, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if s.env == "" || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			slog.Warn("ignoring environment override", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
