package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes the hot-reloadable changes between two configs.
// Providers, storage and the server address need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VocabularyChanged bool
	NewVocabulary     []string

	// RestartRequired lists sections that changed but are only read at
	// startup.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.VocabularyChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !slices.Equal(old.Activity.Vocabulary, new.Activity.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = slices.Clone(new.Activity.Vocabulary)
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameEntry(old.Providers.Synth, new.Providers.Synth) ||
		!sameEntry(old.Providers.Recognize, new.Providers.Recognize) ||
		!sameEntry(old.Providers.Audio, new.Providers.Audio) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Phrases != new.Phrases {
		d.RestartRequired = append(d.RestartRequired, "phrases")
	}
	if old.Activity.ProgressLog != new.Activity.ProgressLog {
		d.RestartRequired = append(d.RestartRequired, "activity.progress_log")
	}
	if old.Activity.Rest != new.Activity.Rest || old.Activity.RestEvery != new.Activity.RestEvery ||
		old.Activity.MusicLength != new.Activity.MusicLength {
		d.RestartRequired = append(d.RestartRequired, "activity.rest")
	}
	return d
}

// sameEntry compares two provider entries, including their options.
func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	return maps.EqualFunc(a.Options, b.Options, func(x, y any) bool {
		return reflect.DeepEqual(x, y)
	})
}
