// Command tutorvoz runs the spoken quiz of the TEA tutor with a local
// health and metrics server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/tutorvoz/internal/app"
	"github.com/MrWong99/tutorvoz/internal/config"
	"github.com/MrWong99/tutorvoz/internal/observe"
	"github.com/MrWong99/tutorvoz/pkg/audio"
	"github.com/MrWong99/tutorvoz/pkg/audio/malgo"
	"github.com/MrWong99/tutorvoz/pkg/provider/recognize"
	"github.com/MrWong99/tutorvoz/pkg/provider/recognize/deepgram"
	"github.com/MrWong99/tutorvoz/pkg/provider/synth"
	"github.com/MrWong99/tutorvoz/pkg/provider/synth/espeak"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "tutorvoz.yaml", "path to the YAML configuration file")
	kind := flag.String("activity", "", "activity to play: colores, numeros, lenguaje, mixed or descanso (overrides config)")
	restKind := flag.String("rest", "", "rest activity: respiracion, estiramiento or musica (overrides config)")
	rounds := flag.Int("rounds", 0, "number of quiz rounds (overrides config)")
	child := flag.Int64("child", 0, "child id sent to the phrase service (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tutorvoz: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tutorvoz: %v\n", err)
		}
		return 1
	}
	if err := applyFlags(cfg, *kind, *restKind, *rounds, *child); err != nil {
		fmt.Fprintf(os.Stderr, "tutorvoz: %v\n", err)
		return 2
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("tutorvoz starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"activity", cfg.Activity.Kind,
		"rounds", cfg.Activity.Rounds,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "tutorvoz", ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithLevel(level),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithMetricsHandler(tel.Handler),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		if providers.Audio != nil {
			_ = providers.Audio.Close()
		}
		return 1
	}

	reloader, err := config.NewReloader(*configPath, application.Reload)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer reloader.Stop()
	}

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("adiós")
	return 0
}

// applyFlags overrides the activity section with non-zero flag values and
// validates the result.
func applyFlags(cfg *config.Config, kind, rest string, rounds int, child int64) error {
	if kind != "" {
		cfg.Activity.Kind = kind
	}
	if rest != "" {
		cfg.Activity.Rest = rest
	}
	if rounds != 0 {
		cfg.Activity.Rounds = rounds
	}
	if child != 0 {
		cfg.Activity.ChildID = child
	}
	return config.Validate(cfg)
}

// registerBuiltinProviders wires the built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSynth("espeak", func(entry config.ProviderEntry) (synth.Provider, error) {
		var opts []espeak.Option
		if cmd := entry.Option("command"); cmd != "" {
			opts = append(opts, espeak.WithCommand(cmd))
		}
		if _, ok := entry.Options["female_variant"]; ok {
			opts = append(opts, espeak.WithFemaleVariant(entry.Option("female_variant")))
		}
		return espeak.New(opts...)
	})

	reg.RegisterRecognize("deepgram", func(entry config.ProviderEntry, mic audio.Capturer) (recognize.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if s := entry.Option("no_speech_timeout"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("deepgram: no_speech_timeout: %w", err)
			}
			opts = append(opts, deepgram.WithNoSpeechTimeout(d))
		}
		return deepgram.New(entry.APIKey, mic, opts...)
	})

	reg.RegisterAudio("malgo", func(entry config.ProviderEntry) (audio.Device, error) {
		var opts []malgo.Option
		if n, ok := entry.Options["period"].(int); ok && n > 0 {
			opts = append(opts, malgo.WithPeriod(uint32(n)))
		}
		if n, ok := entry.Options["buffer"].(int); ok {
			opts = append(opts, malgo.WithBuffer(n))
		}
		return malgo.New(opts...)
	})
}

// buildProviders instantiates the providers named in cfg. The sound card is
// created first because speech recognition captures from it.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Audio.Name; name != "" {
		d, err := reg.CreateAudio(cfg.Providers.Audio)
		if err != nil {
			return nil, fmt.Errorf("create audio provider %q: %w", name, err)
		}
		ps.Audio = d
		slog.Info("provider created", "kind", "audio", "name", name)
	}

	if name := cfg.Providers.Synth.Name; name != "" {
		p, err := reg.CreateSynth(cfg.Providers.Synth)
		if err != nil {
			closeAudio(ps)
			return nil, fmt.Errorf("create synth provider %q: %w", name, err)
		}
		ps.Synth = p
		slog.Info("provider created", "kind", "synth", "name", name)
	}

	if name := cfg.Providers.Recognize.Name; name != "" {
		var mic audio.Capturer
		if ps.Audio != nil {
			mic = ps.Audio
		}
		p, err := reg.CreateRecognize(cfg.Providers.Recognize, mic)
		if err != nil {
			closeAudio(ps)
			return nil, fmt.Errorf("create recognize provider %q: %w", name, err)
		}
		ps.Recognize = p
		slog.Info("provider created", "kind", "recognize", "name", name)
	}

	return ps, nil
}

func closeAudio(ps *app.Providers) {
	if ps.Audio == nil {
		return
	}
	if err := ps.Audio.Close(); err != nil {
		slog.Warn("failed to close audio device", "err", err)
	}
}
