package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kalambet/loratk/internal/export"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Export  ExportConfig
	Dedup   DedupConfig
	Ingest  IngestConfig
	API     APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir    string
	ExportsDir string // empty means <DataDir>/exports
}

type LogConfig struct {
	Level string
}

type ExportConfig struct {
	DefaultFormat    string
	SystemPrompt     string
	InstructionStyle string
	ChunkSize        int
	ChunkOverlap     int
	MinScore         int
}

type DedupConfig struct {
	TitleThreshold   float64
	ContentThreshold float64
}

type IngestConfig struct {
	SkipDuplicates bool
}

type APIConfig struct {
	Token string
}

// DefaultSystemPrompt is written into chat-style exports unless overridden.
const DefaultSystemPrompt = "You are a knowledgeable assistant. Answer accurately and in detail using what you learned during training."

const (
	secretService = "loratk"
	tokenAccount  = "api_token"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Export: ExportConfig{
			DefaultFormat:    string(export.FormatAlpaca),
			SystemPrompt:     DefaultSystemPrompt,
			InstructionStyle: export.DefaultTemplate,
			ChunkOverlap:     50,
		},
		Dedup: DedupConfig{
			TitleThreshold:   0.8,
			ContentThreshold: 0.85,
		},
		Ingest: IngestConfig{
			SkipDuplicates: true,
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.loratk.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/loratk/config.json.
//
// Environment variables (LORATK_*) override backend values on all platforms.
// The API token is not loaded here; see GetAPIToken.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := export.ParseFormat(c.Export.DefaultFormat); err != nil {
		return fmt.Errorf("export.default_format: %w", err)
	}
	if c.Export.ChunkSize < 0 || c.Export.ChunkOverlap < 0 {
		return fmt.Errorf("export.chunk_size and export.chunk_overlap must not be negative")
	}
	if c.Export.MinScore < 0 || c.Export.MinScore > 100 {
		return fmt.Errorf("export.min_score %d outside [0,100]", c.Export.MinScore)
	}
	if v := c.Dedup.TitleThreshold; v <= 0 || v > 1 {
		return fmt.Errorf("dedup.title_threshold %v outside (0,1]", v)
	}
	if v := c.Dedup.ContentThreshold; v <= 0 || v > 1 {
		return fmt.Errorf("dedup.content_threshold %v outside (0,1]", v)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is not a valid port", c.Server.Port)
	}
	return nil
}

// ExportsPath is the directory exports land in when no path is given.
func (c Config) ExportsPath() string {
	if c.Storage.ExportsDir != "" {
		return c.Storage.ExportsDir
	}
	return filepath.Join(c.Storage.DataDir, "exports")
}

// ExportOptions maps the export section onto export.Options.
func (c Config) ExportOptions() export.Options {
	return export.Options{
		SystemPrompt:     c.Export.SystemPrompt,
		InstructionStyle: c.Export.InstructionStyle,
		ChunkSize:        c.Export.ChunkSize,
		ChunkOverlap:     c.Export.ChunkOverlap,
	}
}

// SlogLevel parses Log.Level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// secretStore abstracts Keychain access for testing.
type secretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// GetAPIToken returns the bearer token guarding the local HTTP API. It is
// taken from LORATK_API_TOKEN, then the platform secret store; when neither
// has one, a new token is generated and saved.
func GetAPIToken(cfg Config) (string, error) {
	return apiToken(cfg, keychainStore{})
}

func apiToken(cfg Config, ss secretStore) (string, error) {
	if cfg.API.Token != "" {
		return cfg.API.Token, nil
	}
	if tok, err := ss.Get(secretService, tokenAccount); err == nil && tok != "" {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := ss.Set(secretService, tokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}

// keychainStore reads and writes the platform secret store.
type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
