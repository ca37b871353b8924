// Package app wires the tutorvoz subsystems into a running application.
//
// The App owns the full lifecycle: New builds the voice profile store, the
// speech engines, the interaction controller and the tutor; Run serves the
// health and metrics endpoints while the quiz plays; Shutdown tears
// everything down.
//
// For testing, inject doubles through [Providers] and the functional
// options. When an option is not given, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tutorvoz/internal/activity"
	"github.com/MrWong99/tutorvoz/internal/answer"
	"github.com/MrWong99/tutorvoz/internal/config"
	"github.com/MrWong99/tutorvoz/internal/health"
	"github.com/MrWong99/tutorvoz/internal/interaction"
	"github.com/MrWong99/tutorvoz/internal/listener"
	"github.com/MrWong99/tutorvoz/internal/observe"
	"github.com/MrWong99/tutorvoz/internal/phrases"
	"github.com/MrWong99/tutorvoz/internal/profile"
	"github.com/MrWong99/tutorvoz/internal/progress"
	"github.com/MrWong99/tutorvoz/internal/resilience"
	"github.com/MrWong99/tutorvoz/internal/rest"
	"github.com/MrWong99/tutorvoz/internal/speaker"
	"github.com/MrWong99/tutorvoz/internal/tutor"
	"github.com/MrWong99/tutorvoz/pkg/audio"
	"github.com/MrWong99/tutorvoz/pkg/kv"
	"github.com/MrWong99/tutorvoz/pkg/provider/recognize"
	"github.com/MrWong99/tutorvoz/pkg/provider/synth"
)

// shutdownTimeout bounds the graceful stop of the HTTP server.
const shutdownTimeout = 5 * time.Second

// Providers holds one platform capability per slot. Nil means the capability
// is absent and the matching engine degrades to a no-op. Populated by main
// through the config registry.
type Providers struct {
	Synth     synth.Provider
	Recognize recognize.Provider
	Audio     audio.Device
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	level     *slog.LevelVar
	metrics   *observe.Metrics
	promHTTP  http.Handler
	store     kv.Store
	rng       *rand.Rand

	profiles   *profile.Store
	speaker    *speaker.Engine
	listener   *listener.Engine
	controller *interaction.Controller
	phrases    *phrases.Client
	tutor      *tutor.Tutor
	session    *activity.Session
	rest       *rest.Guide
	restTimer  func(time.Duration) <-chan time.Time
	progress   *progress.FileLog
	health     *health.Handler

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects the preference store instead of opening one from
// config.
func WithStore(s kv.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLogger sets the logger handed to every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithLevel lets [App.Reload] change the log level of the running process.
func WithLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promHTTP = h }
}

// WithRand sets the random source of the quiz.
func WithRand(r *rand.Rand) Option {
	return func(a *App) { a.rng = r }
}

// WithRestTimer replaces time.After for the phases of rest activities.
func WithRestTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(a *App) { a.restTimer = after }
}

// New creates an App by wiring all subsystems together. ctx bounds the
// background work of the speech engine, such as following catalogue
// changes.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	if a.store == nil {
		store, closer, err := openStore(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("app: open storage: %w", err)
		}
		a.store = store
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	profileOpts := []profile.Option{profile.WithLogger(a.log)}
	if cfg.Storage.Key != "" {
		profileOpts = append(profileOpts, profile.WithKey(cfg.Storage.Key))
	}
	a.profiles = profile.NewStore(a.store, profileOpts...)

	a.speaker = speaker.New(ctx, providers.Synth, a.profiles,
		speaker.WithLogger(a.log),
		speaker.WithMetrics(a.metrics),
	)
	a.listener = listener.New(providers.Recognize, a.profiles,
		listener.WithLogger(a.log),
		listener.WithMetrics(a.metrics),
	)
	a.controller = interaction.New(a.listener, answer.New(),
		interaction.WithLogger(a.log),
		interaction.WithMetrics(a.metrics),
	)

	if err := a.initPhrases(); err != nil {
		return nil, fmt.Errorf("app: init phrases: %w", err)
	}
	a.initTutor()
	if path := cfg.Activity.ProgressLog; path != "" {
		a.progress = progress.NewFileLog(path)
	}

	checkers := []health.Checker{health.Storage(a.store)}
	if a.speaker.Supported() {
		checkers = append(checkers, health.Voices(func(ctx context.Context) int {
			return len(a.speaker.ListVoices(ctx))
		}))
	}
	a.health = health.New(checkers...)

	if providers.Audio != nil {
		a.closers = append(a.closers, providers.Audio.Close)
	}

	a.log.Info("voice subsystem ready",
		"synth", a.speaker.Supported(),
		"recognize", a.listener.Supported(),
		"storage", string(cfg.Storage.Backend),
		"phrases", a.phrases != nil,
	)
	return a, nil
}

func (a *App) initPhrases() error {
	pc := a.cfg.Phrases
	if pc.BaseURL == "" {
		return nil
	}
	breaker := resilience.New(resilience.Config{
		Name:        "phrases",
		MaxFailures: pc.Breaker.MaxFailures,
		Cooldown:    pc.Breaker.Cooldown,
	}, resilience.WithLogger(a.log))

	c, err := phrases.New(pc.BaseURL,
		phrases.WithTimeout(pc.Timeout),
		phrases.WithBreaker(breaker),
		phrases.WithLogger(a.log),
		phrases.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.phrases = c
	return nil
}

func (a *App) initTutor() {
	opts := []tutor.Option{tutor.WithLogger(a.log)}
	if a.providers.Audio != nil {
		opts = append(opts, tutor.WithPlayer(a.providers.Audio))
	}
	if a.phrases != nil {
		opts = append(opts, tutor.WithPhrases(a.phrases))
	}
	if a.rng != nil {
		opts = append(opts, tutor.WithRand(rand.New(rand.NewPCG(a.rng.Uint64(), a.rng.Uint64()))))
	}
	voice := &turnSpeaker{engine: a.speaker, log: a.log}
	a.tutor = tutor.New(voice, opts...)

	restOpts := []rest.Option{
		rest.WithLogger(a.log),
		rest.WithTimer(a.restTimer),
		rest.WithMusicLength(a.cfg.Activity.MusicLength),
	}
	if a.providers.Audio != nil {
		restOpts = append(restOpts, rest.WithPlayer(a.providers.Audio))
	}
	a.rest = rest.New(voice, restOpts...)

	sessionOpts := []activity.Option{
		activity.WithLogger(a.log),
		activity.WithVocabulary(a.cfg.Activity.Vocabulary),
	}
	if a.rng != nil {
		sessionOpts = append(sessionOpts, activity.WithRand(a.rng))
	}
	a.session = activity.NewSession(a.tutor, a.controller, sessionOpts...)
}

// Handler returns the HTTP handler of the local server: the health probes
// and, when configured, the Prometheus metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	if a.promHTTP != nil {
		mux.Handle("GET /metrics", a.promHTTP)
	}
	return observe.Middleware(a.metrics, a.log)(mux)
}

// Run serves HTTP on server.listen_addr and plays the quiz. It returns once
// the quiz is over or ctx is cancelled, after the server has stopped.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info("http server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		_, err := a.RunActivity(gctx)
		return err
	})
	return g.Wait()
}

// Reload applies the hot-reloadable part of a config change. It is meant
// as the callback of a [config.Reloader].
func (a *App) Reload(d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", "level", string(d.NewLogLevel))
	}
	if d.VocabularyChanged {
		a.session.SetVocabulary(d.NewVocabulary)
		a.log.Info("vocabulary updated", "words", len(d.NewVocabulary))
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart to apply", "sections", d.RestartRequired)
	}
}

// Shutdown stops speech and listening, then runs the closers in order. If
// ctx expires first, the remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		a.controller.Cancel()
		a.speaker.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
