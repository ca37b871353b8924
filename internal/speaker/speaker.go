// Package speaker is the speech output engine of the tutor avatar.
//
// The engine selects a platform voice that matches the voice profile,
// speaks text with the profile's rate, pitch and volume, and reports the
// lifecycle of each utterance to subscribers. Only one utterance plays at a
// time: a new utterance preempts the one in flight, and a preempted
// utterance never reports its end.
//
// Capability failures never reach callers. A missing provider turns every
// operation into a logged no-op, and provider errors are logged, counted
// and emitted as [EventError].
package speaker

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/tutorvoz/internal/notify"
	"github.com/MrWong99/tutorvoz/internal/observe"
	"github.com/MrWong99/tutorvoz/internal/profile"
	"github.com/MrWong99/tutorvoz/pkg/provider/synth"
)

// EventType identifies the kind of [Event].
type EventType int

const (
	EventStart EventType = iota + 1
	EventEnd
	EventError
)

// String implements [fmt.Stringer].
func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event reports the lifecycle of one utterance.
type Event struct {
	Type EventType
	Text string
	Err  error
}

// Options overrides profile settings for one utterance. Nil fields and an
// empty Language use the profile.
type Options struct {
	Rate     *float64
	Pitch    *float64
	Volume   *float64
	Language string

	// Effect labels the utterance in metrics.
	Effect Effect
}

var (
	errUnavailable = errors.New("speaker: speech synthesis unavailable")
	errSkipped     = errors.New("speaker: nothing to speak")
	errPreempted   = errors.New("speaker: utterance preempted")
)

// Option is a functional option for [New].
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Engine speaks through a [synth.Provider]. It is safe for concurrent use.
type Engine struct {
	provider synth.Provider
	profiles *profile.Store
	log      *slog.Logger
	metrics  *observe.Metrics
	events   notify.Hub[Event]

	mu       sync.Mutex
	voices   []Candidate
	selected Candidate
	hasVoice bool

	gen      uint64
	cancel   context.CancelFunc
	speaking bool
	paused   bool

	chainGen    uint64
	chainCancel context.CancelFunc
}

// New creates an Engine. It loads the voice catalogue and selects a voice,
// then reselects whenever the provider reports a catalogue change (until ctx
// is cancelled) or the profile changes.
//
// provider may be nil when the platform has no speech synthesis.
func New(ctx context.Context, provider synth.Provider, profiles *profile.Store, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		profiles: profiles,
		log:      slog.Default(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(e)
	}

	if provider == nil {
		e.log.Warn("speech synthesis unavailable, speaker disabled")
		return e
	}

	e.refresh(ctx)
	profiles.Subscribe(func(profile.Profile) { e.reselect() })
	if n, ok := provider.(synth.CatalogNotifier); ok {
		go e.watchCatalog(ctx, n.VoicesChanged())
	}
	return e
}

// Supported reports whether a synthesis provider is present.
func (e *Engine) Supported() bool { return e.provider != nil }

func (e *Engine) watchCatalog(ctx context.Context, changed <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changed:
			if !ok {
				return
			}
			e.refresh(ctx)
		}
	}
}

// refresh reloads the catalogue and reselects.
func (e *Engine) refresh(ctx context.Context) {
	voices, err := e.provider.Voices(ctx)
	if err != nil {
		e.log.Warn("failed to load voice catalogue", "err", err)
		return
	}
	e.mu.Lock()
	e.voices = Candidates(voices)
	e.mu.Unlock()
	e.log.Debug("voice catalogue loaded", "voices", len(voices))
	e.reselect()
}

func (e *Engine) reselect() {
	p := e.profiles.Current()
	e.mu.Lock()
	c, ok := SelectVoice(e.voices, p)
	changed := ok != e.hasVoice || c != e.selected
	e.selected, e.hasVoice = c, ok
	e.mu.Unlock()

	if changed && ok {
		e.log.Info("voice selected", "voice", c.Name, "language", c.Language, "gender", c.Gender)
	}
}

// ListVoices returns the annotated catalogue in platform order. It may be
// empty before the platform has loaded its voices.
func (e *Engine) ListVoices(context.Context) []Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Candidate, len(e.voices))
	copy(out, e.voices)
	return out
}

// Selected returns the voice used for speaking.
func (e *Engine) Selected() (Candidate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected, e.hasVoice
}

// Subscribe registers fn for utterance events. Events of preempted or
// stopped utterances are never delivered.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	return e.events.Subscribe(fn)
}

// Speaking reports whether an utterance is in flight.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

// Speak speaks text, preempting any utterance or segment chain in flight.
// It returns once the utterance has been handed to the provider. Nothing is
// spoken when speech is disabled, text is blank or no provider is present.
func (e *Engine) Speak(ctx context.Context, text string, opts Options) {
	if e.canSpeak() && strings.TrimSpace(text) != "" {
		e.Stop()
	}
	e.utter(ctx, text, opts)
}

// SpeakAndWait is Speak that blocks until the utterance is over. It returns
// nil after a normal end, the provider's error, or a non-nil error when
// nothing was spoken or the utterance was preempted.
func (e *Engine) SpeakAndWait(ctx context.Context, text string, opts Options) error {
	if e.canSpeak() && strings.TrimSpace(text) != "" {
		e.Stop()
	}
	select {
	case err := <-e.utter(ctx, text, opts):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SpeakWithEffect speaks text with the rate and pitch of effect.
func (e *Engine) SpeakWithEffect(ctx context.Context, text string, effect Effect) {
	rate, pitch := effect.Params()
	e.Speak(ctx, text, Options{Rate: &rate, Pitch: &pitch, Effect: effect})
}

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// Segments splits text at runs of '.', '!' and '?' and drops blank pieces.
func Segments(text string) []string {
	var out []string
	for _, s := range sentenceEnd.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SpeakSegmented speaks text one sentence at a time. Each sentence starts
// pause after the previous one has finished. It returns immediately; Stop,
// a new Speak, cancelling ctx or a failed sentence ends the chain.
func (e *Engine) SpeakSegmented(ctx context.Context, text string, pause time.Duration) {
	e.segmented(ctx, text, pause)
}

// SpeakSegmentedAndWait is SpeakSegmented that blocks until the last
// sentence is over. It returns nil when every sentence was spoken, and the
// reason otherwise.
func (e *Engine) SpeakSegmentedAndWait(ctx context.Context, text string, pause time.Duration) error {
	select {
	case err := <-e.segmented(ctx, text, pause):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// segmented starts a segment chain. The returned channel yields the chain's
// result once it is over.
func (e *Engine) segmented(ctx context.Context, text string, pause time.Duration) <-chan error {
	done := make(chan error, 1)
	segments := Segments(text)
	if len(segments) == 0 || !e.canSpeak() {
		done <- errSkipped
		return done
	}

	e.Stop()
	cctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.chainGen++
	gen := e.chainGen
	e.chainCancel = cancel
	e.mu.Unlock()

	go func() {
		var result error
		defer func() {
			cancel()
			e.mu.Lock()
			if e.chainGen == gen {
				e.chainCancel = nil
			}
			e.mu.Unlock()
			done <- result
		}()

		for i, seg := range segments {
			if i > 0 && !sleep(cctx, pause) {
				result = errPreempted
				return
			}
			if err := <-e.utter(cctx, seg, Options{}); err != nil {
				e.log.Debug("segmented speech ended early", "segment", i, "of", len(segments), "err", err)
				result = err
				return
			}
		}
	}()
	return done
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop cancels the utterance in flight and any segment chain. The stopped
// utterance reports no further events. Stop is idempotent.
func (e *Engine) Stop() {
	// The utterance goes stale before the chain is cancelled so the chain's
	// current segment cannot report a cancellation error.
	e.mu.Lock()
	e.preemptLocked()
	cancel := e.chainCancel
	e.chainCancel = nil
	e.chainGen++
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// preemptLocked makes the utterance in flight stale and cancels it.
func (e *Engine) preemptLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.speaking = false
	e.paused = false
}

// Pause suspends the utterance in flight. It is a no-op when nothing is
// speaking or the provider cannot pause.
func (e *Engine) Pause() {
	e.setPaused(true)
}

// Resume continues a paused utterance.
func (e *Engine) Resume() {
	e.setPaused(false)
}

func (e *Engine) setPaused(pause bool) {
	p, ok := e.provider.(synth.Pauser)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.speaking || e.paused == pause {
		return
	}
	var err error
	if pause {
		err = p.Pause()
	} else {
		err = p.Resume()
	}
	if err != nil {
		e.log.Warn("failed to pause or resume speech", "pause", pause, "err", err)
		return
	}
	e.paused = pause
}

// SetEnabled persists the master switch. Disabling stops speech in flight.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) {
	e.profiles.SetEnabled(ctx, enabled)
	if !enabled {
		e.Stop()
	}
}

func (e *Engine) canSpeak() bool {
	if e.provider == nil {
		return false
	}
	return e.profiles.Current().Enabled
}

// utter starts one utterance, preempting the one in flight. The returned
// channel yields nil once the utterance ends normally, or the reason it did
// not.
func (e *Engine) utter(ctx context.Context, text string, o Options) <-chan error {
	done := make(chan error, 1)
	if e.provider == nil {
		e.log.Debug("speech synthesis unavailable, not speaking", "text", text)
		e.metrics.RecordSpeechError(ctx, "unavailable")
		done <- errUnavailable
		return done
	}
	p := e.profiles.Current()
	if !p.Enabled || strings.TrimSpace(text) == "" {
		done <- errSkipped
		return done
	}

	u := synth.Utterance{
		Text:     text,
		Language: profile.LanguageTag(p.Language),
		Rate:     p.Rate,
		Pitch:    p.Pitch,
		Volume:   p.Volume,
	}
	if o.Language != "" {
		u.Language = o.Language
	}
	if o.Rate != nil {
		u.Rate = max(profile.MinRate, min(profile.MaxRate, *o.Rate))
	}
	if o.Pitch != nil {
		u.Pitch = max(profile.MinPitch, min(profile.MaxPitch, *o.Pitch))
	}
	if o.Volume != nil {
		u.Volume = max(profile.MinVolume, min(profile.MaxVolume, *o.Volume))
	}
	effect := o.Effect
	if effect == "" {
		effect = EffectNormal
	}

	uctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.preemptLocked()
	gen := e.gen
	e.cancel = cancel
	e.speaking = true
	if e.hasVoice {
		u.Voice = e.selected.Name
	}
	e.mu.Unlock()

	events, err := e.provider.Speak(uctx, u)
	if err != nil {
		e.finish(ctx, gen, text, err)
		cancel()
		done <- err
		return done
	}
	e.metrics.RecordUtterance(ctx, string(effect))
	e.log.Debug("speaking", "text", text, "voice", u.Voice, "rate", u.Rate, "pitch", u.Pitch)

	go func() {
		defer cancel()
		result := errPreempted
		for ev := range events {
			switch ev.Type {
			case synth.EventStart:
				e.emit(gen, Event{Type: EventStart, Text: text})
			case synth.EventEnd:
				if e.finish(ctx, gen, text, nil) {
					result = nil
				}
			case synth.EventError:
				if e.finish(ctx, gen, text, ev.Err) {
					result = ev.Err
				}
			}
		}
		done <- result
	}()
	return done
}

// emit publishes ev if gen is still the current utterance.
func (e *Engine) emit(gen uint64, ev Event) {
	e.mu.Lock()
	current := gen == e.gen
	e.mu.Unlock()
	if current {
		e.events.Publish(ev)
	}
}

// finish closes out utterance gen. It reports false when the utterance was
// already preempted, in which case nothing is emitted.
func (e *Engine) finish(ctx context.Context, gen uint64, text string, err error) bool {
	e.mu.Lock()
	if gen != e.gen || !e.speaking {
		e.mu.Unlock()
		return false
	}
	e.speaking = false
	e.paused = false
	e.cancel = nil
	e.mu.Unlock()

	if err != nil {
		e.log.Warn("speech synthesis failed", "text", text, "err", err)
		e.metrics.RecordSpeechError(ctx, "provider")
		e.events.Publish(Event{Type: EventError, Text: text, Err: err})
		return true
	}
	e.events.Publish(Event{Type: EventEnd, Text: text})
	return true
}
