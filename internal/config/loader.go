package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [LoadFromReader] to unset fields.
const (
	DefaultListenAddr     = ":9090"
	DefaultRounds         = 5
	DefaultActivityKind   = "mixed"
	DefaultRestKind       = "respiracion"
	DefaultPhrasesTimeout = 5 * time.Second
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"synth":     {"espeak"},
	"recognize": {"deepgram"},
	"audio":     {"malgo"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageMemory
	}
	if cfg.Phrases.Timeout == 0 {
		cfg.Phrases.Timeout = DefaultPhrasesTimeout
	}
	if cfg.Activity.Kind == "" {
		cfg.Activity.Kind = DefaultActivityKind
	}
	if cfg.Activity.Rounds == 0 {
		cfg.Activity.Rounds = DefaultRounds
	}
	if cfg.Activity.Rest == "" {
		cfg.Activity.Rest = DefaultRestKind
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("synth", cfg.Providers.Synth.Name)
	validateProviderName("recognize", cfg.Providers.Recognize.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	if cfg.Providers.Synth.Name == "" {
		slog.Warn("providers.synth is not configured; the tutor will stay silent")
	}
	if cfg.Providers.Recognize.Name == "" {
		slog.Warn("providers.recognize is not configured; spoken answers are unavailable")
	}
	if cfg.Providers.Recognize.Name != "" && cfg.Providers.Audio.Name == "" {
		errs = append(errs, fmt.Errorf("providers.recognize %q requires providers.audio for microphone capture", cfg.Providers.Recognize.Name))
	}

	switch st := cfg.Storage; {
	case st.Backend != "" && !st.Backend.IsValid():
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, file, sqlite, postgres", st.Backend))
	case (st.Backend == StorageFile || st.Backend == StorageSQLite) && st.Path == "":
		errs = append(errs, fmt.Errorf("storage.path is required for backend %q", st.Backend))
	case st.Backend == StoragePostgres && st.DSN == "":
		errs = append(errs, fmt.Errorf("storage.dsn is required for backend %q", st.Backend))
	}

	if u := cfg.Phrases.BaseURL; u != "" {
		if parsed, err := url.Parse(u); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("phrases.base_url %q is not an absolute URL", u))
		}
	}
	if cfg.Phrases.Timeout < 0 {
		errs = append(errs, fmt.Errorf("phrases.timeout %v must not be negative", cfg.Phrases.Timeout))
	}
	if cfg.Phrases.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("phrases.breaker.max_failures %d must not be negative", cfg.Phrases.Breaker.MaxFailures))
	}

	if k := cfg.Activity.Kind; k != "" && !slices.Contains(ActivityKinds, k) {
		errs = append(errs, fmt.Errorf("activity.kind %q is invalid; valid values: %s", k, strings.Join(ActivityKinds, ", ")))
	}
	if cfg.Activity.Rounds < 0 {
		errs = append(errs, fmt.Errorf("activity.rounds %d must not be negative", cfg.Activity.Rounds))
	}
	if k := cfg.Activity.Rest; k != "" && !slices.Contains(RestKinds, k) {
		errs = append(errs, fmt.Errorf("activity.rest %q is invalid; valid values: %s", k, strings.Join(RestKinds, ", ")))
	}
	if cfg.Activity.RestEvery < 0 {
		errs = append(errs, fmt.Errorf("activity.rest_every %d must not be negative", cfg.Activity.RestEvery))
	}
	if cfg.Activity.MusicLength < 0 {
		errs = append(errs, fmt.Errorf("activity.music_length %v must not be negative", cfg.Activity.MusicLength))
	}
	for i, w := range cfg.Activity.Vocabulary {
		if strings.TrimSpace(w) == "" {
			errs = append(errs, fmt.Errorf("activity.vocabulary[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
