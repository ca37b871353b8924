// Package rest guides the child through short voice-led breaks between
// quiz rounds: a breathing exercise, a stretching sequence and relaxing
// music with spoken play, pause and stop announcements.
//
// Every cue is spoken through the tutor's [tutor.Speaker]; phase timing
// uses an injectable timer so tests run without real waits.
package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/tutorvoz/internal/speaker"
	"github.com/MrWong99/tutorvoz/internal/tutor"
	"github.com/MrWong99/tutorvoz/pkg/audio"
	"github.com/MrWong99/tutorvoz/pkg/audio/tone"
)

// Kind names a rest activity.
type Kind string

const (
	KindBreathing  Kind = "respiracion"
	KindStretching Kind = "estiramiento"
	KindMusic      Kind = "musica"
)

// ErrUnknownKind is returned by [Guide.Run] for an unknown rest activity.
var ErrUnknownKind = errors.New("rest: unknown rest activity")

// Breathing phase lengths.
const (
	PhaseLength = 4 * time.Second
	PauseLength = 2 * time.Second

	// BreathingCycles is the number of inhale-hold-exhale cycles.
	BreathingCycles = 3
)

// StretchLength is how long each stretch is held.
const StretchLength = 5 * time.Second

// closeDelay separates an exercise's closing line from the end of the
// break.
const closeDelay = 5 * time.Second

// musicGap separates repetitions of the melody.
const musicGap = time.Second

// DefaultMusicLength is how long music plays during a music rest.
const DefaultMusicLength = time.Minute

// Stretches are the exercises of the stretching sequence, in order.
var Stretches = []string{
	"Estira los brazos hacia arriba y mantén por 5 segundos",
	"Toca los dedos de los pies manteniendo las piernas rectas",
	"Abre los brazos en cruz y respira profundo",
	"Gira suavemente el cuello hacia la derecha e izquierda",
	"Siéntate y relaja todo el cuerpo",
}

const (
	breathingIntro = "Vamos a hacer un ejercicio de respiración. Inhala cuando el círculo crezca, exhala cuando se encoja."
	breathingDone  = "¡Excelente! Has completado el ejercicio de respiración. Te sientes más relajado ahora."
	cueInhale      = "Inhala"
	cueHold        = "Mantén"
	cueExhale      = "Exhala"

	stretchingIntro = "Vamos a hacer ejercicios de estiramiento. Sigue las instrucciones y haz los movimientos suavemente."
	stretchingDone  = "¡Muy bien! Has completado todos los ejercicios de estiramiento. Tu cuerpo se siente más relajado ahora."

	musicOffer   = "Aquí tienes música relajante. Puedes reproducirla o detenerla cuando quieras."
	musicPlaying = "Reproduciendo música relajante."
	musicPaused  = "Música pausada."
	musicStopped = "Música detenida."

	restOver = "Actividad de descanso terminada. Puedes continuar con tus actividades de aprendizaje."
)

// Voice settings of every rest cue: calm and slightly slow.
var (
	cueRate  = 0.8
	cuePitch = 1.0
)

// Option is a functional option for [New].
type Option func(*Guide)

// WithTimer replaces time.After for phase timing.
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(g *Guide) {
		if after != nil {
			g.after = after
		}
	}
}

// WithPlayer sets the audio output for music. Without one the music rest
// only announces itself.
func WithPlayer(p audio.Player) Option {
	return func(g *Guide) { g.player = p }
}

// WithMusicFormat sets the PCM format the melody is rendered in.
func WithMusicFormat(f audio.Format) Option {
	return func(g *Guide) {
		if f.SampleRate > 0 && f.Channels > 0 {
			g.format = f
		}
	}
}

// WithMusicLength sets how long [Guide.Run] plays music. Default:
// [DefaultMusicLength].
func WithMusicLength(d time.Duration) Option {
	return func(g *Guide) {
		if d > 0 {
			g.musicLength = d
		}
	}
}

// WithLogger sets the guide's logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guide) {
		if l != nil {
			g.log = l
		}
	}
}

// Guide runs rest activities. Exercises must not run concurrently; the
// music controls are safe to call from any goroutine.
type Guide struct {
	speaker     tutor.Speaker
	player      audio.Player
	format      audio.Format
	after       func(time.Duration) <-chan time.Time
	musicLength time.Duration
	log         *slog.Logger

	melodyOnce sync.Once
	melody     []byte

	mu    sync.Mutex
	music *playback
}

// playback is one running melody loop.
type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Guide speaking through s.
func New(s tutor.Speaker, opts ...Option) *Guide {
	g := &Guide{
		speaker:     s,
		format:      tutor.ChimeFormat,
		after:       time.After,
		musicLength: DefaultMusicLength,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Guide) say(ctx context.Context, text string) {
	g.speaker.Speak(ctx, text, speaker.Options{Rate: &cueRate, Pitch: &cuePitch})
}

// wait blocks for d or until ctx is done.
func (g *Guide) wait(ctx context.Context, d time.Duration) error {
	return until(ctx, g.after(d))
}

func until(ctx context.Context, c <-chan time.Time) error {
	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run plays rest activity kind from introduction to the closing line.
func (g *Guide) Run(ctx context.Context, kind Kind) error {
	g.log.Info("rest activity started", "rest", string(kind))
	var err error
	switch kind {
	case KindBreathing:
		err = g.Breathe(ctx, BreathingCycles)
	case KindStretching:
		err = g.Stretch(ctx)
	case KindMusic:
		err = g.listen(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err == nil && kind != KindMusic {
		err = g.wait(ctx, closeDelay)
	}
	if err != nil {
		g.StopMusic(context.WithoutCancel(ctx), false)
		return fmt.Errorf("rest: %s: %w", kind, err)
	}
	g.Close(ctx)
	return nil
}

// Breathe guides cycles of inhale, hold and exhale, each cued by voice and
// lasting [PhaseLength], with a silent [PauseLength] after every cycle.
// Each phase is timed from its cue, not from the end of the spoken word.
func (g *Guide) Breathe(ctx context.Context, cycles int) error {
	g.say(ctx, breathingIntro)
	for range max(cycles, 1) {
		for _, cue := range []string{cueInhale, cueHold, cueExhale} {
			timer := g.after(PhaseLength)
			g.say(ctx, cue)
			if err := until(ctx, timer); err != nil {
				return err
			}
		}
		if err := g.wait(ctx, PauseLength); err != nil {
			return err
		}
	}
	g.say(ctx, breathingDone)
	return nil
}

// Stretch speaks each of [Stretches] and holds it for [StretchLength].
func (g *Guide) Stretch(ctx context.Context) error {
	g.say(ctx, stretchingIntro)
	for i, s := range Stretches {
		timer := g.after(StretchLength)
		g.log.Debug("stretch", "exercise", i+1, "of", len(Stretches))
		g.say(ctx, s)
		if err := until(ctx, timer); err != nil {
			return err
		}
	}
	g.say(ctx, stretchingDone)
	return nil
}

// listen offers music, plays it for the configured length and stops it.
func (g *Guide) listen(ctx context.Context) error {
	g.OfferMusic(ctx)
	g.PlayMusic(ctx)
	if err := g.wait(ctx, g.musicLength); err != nil {
		return err
	}
	g.StopMusic(ctx, true)
	return nil
}

// Close ends a break: music still playing is stopped and the child is
// invited back to learning.
func (g *Guide) Close(ctx context.Context) {
	if g.MusicPlaying() {
		g.StopMusic(ctx, true)
	}
	g.say(ctx, restOver)
	g.log.Info("rest activity finished")
}

// OfferMusic introduces the music rest.
func (g *Guide) OfferMusic(ctx context.Context) {
	g.say(ctx, musicOffer)
}

// MusicPlaying reports whether the melody loop is running.
func (g *Guide) MusicPlaying() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.music != nil
}

// ToggleMusic pauses playing music or starts it. It reports whether music
// is playing afterwards.
func (g *Guide) ToggleMusic(ctx context.Context) bool {
	if g.MusicPlaying() {
		g.PauseMusic(ctx)
		return false
	}
	g.PlayMusic(ctx)
	return true
}

// PlayMusic announces the music and loops the melody until it is paused,
// stopped or ctx is done. It is a no-op while music is already playing.
func (g *Guide) PlayMusic(ctx context.Context) {
	if g.MusicPlaying() {
		return
	}
	g.say(ctx, musicPlaying)

	mctx, cancel := context.WithCancel(ctx)
	p := &playback{cancel: cancel, done: make(chan struct{})}
	g.mu.Lock()
	if g.music != nil {
		g.mu.Unlock()
		cancel()
		return
	}
	g.music = p
	g.mu.Unlock()

	go g.loop(mctx, p)
}

// loop repeats the melody with a short gap until mctx is done.
func (g *Guide) loop(mctx context.Context, p *playback) {
	defer close(p.done)
	if g.player == nil {
		<-mctx.Done()
		return
	}
	g.melodyOnce.Do(func() { g.melody = tone.Lullaby().Render(g.format) })
	for {
		if err := g.player.Play(mctx, g.melody, g.format); err != nil {
			if mctx.Err() == nil {
				g.log.Warn("failed to play music", "err", err)
			}
			return
		}
		if until(mctx, g.after(musicGap)) != nil {
			return
		}
	}
}

// PauseMusic halts the melody and says so.
func (g *Guide) PauseMusic(ctx context.Context) {
	if g.halt() {
		g.say(ctx, musicPaused)
	}
}

// StopMusic halts the melody. announce says "music stopped" even when
// nothing was playing, the way the stop control always answers.
func (g *Guide) StopMusic(ctx context.Context, announce bool) {
	g.halt()
	if announce {
		g.say(ctx, musicStopped)
	}
}

// halt stops the melody loop and waits for it to exit. It reports whether
// anything was playing.
func (g *Guide) halt() bool {
	g.mu.Lock()
	p := g.music
	g.music = nil
	g.mu.Unlock()
	if p == nil {
		return false
	}
	p.cancel()
	<-p.done
	return true
}
