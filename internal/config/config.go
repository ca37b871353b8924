// Package config provides the configuration schema, loader, provider
// registry and hot reload of the tutorvoz service.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unknown levels map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StorageBackend selects where the voice profile is persisted.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageFile     StorageBackend = "file"
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageMemory, StorageFile, StorageSQLite, StoragePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
	Phrases   PhrasesConfig   `yaml:"phrases"`
	Activity  ActivityConfig  `yaml:"activity"`
}

// ServerConfig holds the local HTTP server and logging settings.
type ServerConfig struct {
	// ListenAddr is the address of the health and metrics server
	// (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It can be changed while running.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the platform capabilities. Each entry names a
// provider registered in the [Registry]; an empty name leaves the
// capability unavailable and the matching engine degrades to a no-op.
type ProvidersConfig struct {
	Synth     ProviderEntry `yaml:"synth"`
	Recognize ProviderEntry `yaml:"recognize"`
	Audio     ProviderEntry `yaml:"audio"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "espeak", "deepgram").
	Name string `yaml:"name"`

	// APIKey authenticates against hosted providers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// StorageConfig selects the key-value backend of the voice profile.
type StorageConfig struct {
	// Backend defaults to memory.
	Backend StorageBackend `yaml:"backend"`

	// Path is the file or SQLite database path.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// Key overrides the key the profile is stored under.
	Key string `yaml:"key"`
}

// PhrasesConfig points at the TEA backend serving avatar phrases.
type PhrasesConfig struct {
	// BaseURL of the backend. Empty disables backend phrases.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each request. Default: 5s.
	Timeout time.Duration `yaml:"timeout"`

	// Breaker tunes the circuit breaker in front of the backend.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// ActivityConfig configures the quiz loop.
type ActivityConfig struct {
	// Kind is colores, numeros, lenguaje, mixed or descanso. Default:
	// mixed. A descanso session is a single rest activity.
	Kind string `yaml:"kind"`

	// Rounds is the number of rounds per session. Default: 5.
	Rounds int `yaml:"rounds"`

	// ChildID identifies the child towards the phrase backend.
	ChildID int64 `yaml:"child_id"`

	// Vocabulary replaces the word list of language rounds. It can be
	// changed while running.
	Vocabulary []string `yaml:"vocabulary"`

	// ProgressLog is a JSON lines file each finished round is appended to.
	// Empty disables the log.
	ProgressLog string `yaml:"progress_log"`

	// Rest is the rest activity: respiracion, estiramiento or musica.
	// Default: respiracion.
	Rest string `yaml:"rest"`

	// RestEvery inserts a rest after every RestEvery rounds. Zero never
	// rests during a quiz.
	RestEvery int `yaml:"rest_every"`

	// MusicLength is how long music plays during a musica rest.
	MusicLength time.Duration `yaml:"music_length"`
}

// ActivityRest is the [ActivityConfig.Kind] that runs only a rest activity.
const ActivityRest = "descanso"

// Activity kinds accepted in [ActivityConfig.Kind].
var ActivityKinds = []string{"colores", "numeros", "lenguaje", "mixed", ActivityRest}

// Rest activities accepted in [ActivityConfig.Rest].
var RestKinds = []string{"respiracion", "estiramiento", "musica"}
