package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/tutorvoz/internal/config"
	"github.com/MrWong99/tutorvoz/pkg/audio"
	audiomock "github.com/MrWong99/tutorvoz/pkg/audio/mock"
	"github.com/MrWong99/tutorvoz/pkg/provider/recognize"
	recognizemock "github.com/MrWong99/tutorvoz/pkg/provider/recognize/mock"
	"github.com/MrWong99/tutorvoz/pkg/provider/synth"
	synthmock "github.com/MrWong99/tutorvoz/pkg/provider/synth/mock"
)

type device struct {
	*audiomock.Capturer
	*audiomock.Player
	closed bool
}

func (d *device) Close() error {
	d.closed = true
	return nil
}

func TestApplyFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    string
		rest    string
		rounds  int
		child   int64
		want    config.ActivityConfig
		wantErr string
	}{
		{"no overrides", "", "", 0, 0, config.ActivityConfig{Kind: "mixed", Rest: "respiracion", Rounds: 5}, ""},
		{"all overrides", "numeros", "musica", 3, 42, config.ActivityConfig{Kind: "numeros", Rest: "musica", Rounds: 3, ChildID: 42}, ""},
		{"rest only", "descanso", "estiramiento", 0, 0, config.ActivityConfig{Kind: "descanso", Rest: "estiramiento", Rounds: 5}, ""},
		{"bad activity", "animales", "", 0, 0, config.ActivityConfig{}, "activity.kind"},
		{"bad rest", "", "yoga", 0, 0, config.ActivityConfig{}, "activity.rest"},
		{"negative rounds", "", "", -1, 0, config.ActivityConfig{}, "activity.rounds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)

			err := applyFlags(cfg, tt.kind, tt.rest, tt.rounds, tt.child)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("applyFlags() error = %v, want it to mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("applyFlags() error = %v", err)
			}
			got := cfg.Activity
			if got.Kind != tt.want.Kind || got.Rest != tt.want.Rest || got.Rounds != tt.want.Rounds || got.ChildID != tt.want.ChildID {
				t.Errorf("activity = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	dev := &device{Capturer: &audiomock.Capturer{}, Player: &audiomock.Player{}}
	var gotMic audio.Capturer
	reg := config.NewRegistry()
	reg.RegisterAudio("fake", func(config.ProviderEntry) (audio.Device, error) { return dev, nil })
	reg.RegisterSynth("fake", func(config.ProviderEntry) (synth.Provider, error) { return &synthmock.Provider{}, nil })
	reg.RegisterRecognize("fake", func(_ config.ProviderEntry, mic audio.Capturer) (recognize.Provider, error) {
		gotMic = mic
		return &recognizemock.Provider{}, nil
	})

	cfg := &config.Config{Providers: config.ProvidersConfig{
		Synth:     config.ProviderEntry{Name: "fake"},
		Recognize: config.ProviderEntry{Name: "fake"},
		Audio:     config.ProviderEntry{Name: "fake"},
	}}
	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders() error = %v", err)
	}
	if ps.Synth == nil || ps.Recognize == nil || ps.Audio == nil {
		t.Errorf("providers = %+v, want all set", ps)
	}
	if gotMic != audio.Capturer(dev) {
		t.Error("recognition does not capture from the sound card")
	}
}

func TestBuildProviders_ClosesAudioOnFailure(t *testing.T) {
	t.Parallel()

	dev := &device{Capturer: &audiomock.Capturer{}, Player: &audiomock.Player{}}
	reg := config.NewRegistry()
	reg.RegisterAudio("fake", func(config.ProviderEntry) (audio.Device, error) { return dev, nil })

	cfg := &config.Config{Providers: config.ProvidersConfig{
		Synth: config.ProviderEntry{Name: "missing"},
		Audio: config.ProviderEntry{Name: "fake"},
	}}
	_, err := buildProviders(cfg, reg)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("buildProviders() error = %v, want ErrProviderNotRegistered", err)
	}
	if !dev.closed {
		t.Error("audio device left open after a failed build")
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if _, err := reg.CreateSynth(config.ProviderEntry{Name: "espeak", Options: map[string]any{"command": "espeak-ng -g 2"}}); err != nil {
		t.Errorf("CreateSynth(espeak) error = %v", err)
	}
	mic := &audiomock.Capturer{}
	if _, err := reg.CreateRecognize(config.ProviderEntry{Name: "deepgram", APIKey: "k", Model: "nova-3"}, mic); err != nil {
		t.Errorf("CreateRecognize(deepgram) error = %v", err)
	}
	if _, err := reg.CreateRecognize(config.ProviderEntry{Name: "deepgram"}, mic); err == nil {
		t.Error("CreateRecognize(deepgram) without api key: want error")
	}
	_, err := reg.CreateRecognize(config.ProviderEntry{Name: "deepgram", APIKey: "k", Options: map[string]any{"no_speech_timeout": "soon"}}, mic)
	if err == nil {
		t.Error("CreateRecognize(deepgram) with bad timeout: want error")
	}
}
