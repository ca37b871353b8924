package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultPollInterval is how often a [Reloader] looks at the config file.
const DefaultPollInterval = 5 * time.Second

// Reloader follows the config file while the tutor runs. Each edit that
// still validates is compared with the config in effect; when the two
// differ, apply receives the [ConfigDiff]. The log level and the
// vocabulary take effect there, everything else is reported as needing a
// restart. An edit that fails to load is logged once and the config in
// effect is kept.
type Reloader struct {
	path  string
	every time.Duration
	apply func(ConfigDiff)
	log   *slog.Logger

	mu      sync.Mutex
	current *Config
	stamp   fileStamp

	done     chan struct{}
	stopOnce sync.Once
}

// fileStamp identifies one version of the file on disk.
type fileStamp struct {
	size    int64
	modTime time.Time
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{size: info.Size(), modTime: info.ModTime()}
}

func (s fileStamp) same(o fileStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

// ReloadOption configures a [Reloader].
type ReloadOption func(*Reloader)

// WithPollInterval sets how often the file is checked. Default:
// [DefaultPollInterval].
func WithPollInterval(d time.Duration) ReloadOption {
	return func(r *Reloader) {
		if d > 0 {
			r.every = d
		}
	}
}

// WithReloadLogger sets the reloader's logger.
func WithReloadLogger(l *slog.Logger) ReloadOption {
	return func(r *Reloader) {
		if l != nil {
			r.log = l
		}
	}
}

// NewReloader loads path as the config in effect and follows it in the
// background until [Reloader.Stop].
func NewReloader(path string, apply func(ConfigDiff), opts ...ReloadOption) (*Reloader, error) {
	r := &Reloader{
		path:  path,
		every: DefaultPollInterval,
		apply: apply,
		log:   slog.Default(),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: reload: %w", err)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: reload: %w", err)
	}
	r.current, r.stamp = cfg, stampOf(info)

	go r.follow()
	return r, nil
}

// Current returns the config in effect.
func (r *Reloader) Current() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Stop ends following the file. It is safe to call more than once.
func (r *Reloader) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Reloader) follow() {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.check()
		}
	}
}

// check loads the file if it was edited since the last look and applies
// what changed.
func (r *Reloader) check() {
	info, err := os.Stat(r.path)
	if err != nil {
		r.log.Warn("config file unavailable, keeping current config", "path", r.path, "err", err)
		return
	}
	stamp := stampOf(info)
	r.mu.Lock()
	seen := stamp.same(r.stamp)
	r.mu.Unlock()
	if seen {
		return
	}

	next, err := Load(r.path)

	r.mu.Lock()
	r.stamp = stamp
	if err != nil {
		r.mu.Unlock()
		r.log.Warn("config edit rejected, keeping current config", "path", r.path, "err", err)
		return
	}
	d := Diff(r.current, next)
	r.current = next
	r.mu.Unlock()

	if !d.Changed() {
		r.log.Debug("config edit changes nothing", "path", r.path)
		return
	}
	r.log.Info("config edit picked up",
		"path", r.path,
		"log_level", d.LogLevelChanged,
		"vocabulary", d.VocabularyChanged,
		"restart_required", d.RestartRequired,
	)
	if r.apply != nil {
		r.apply(d)
	}
}
