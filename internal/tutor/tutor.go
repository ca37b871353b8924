// Package tutor is the spoken avatar of the TEA tutor. It picks phrases
// from fixed Spanish banks or from the phrase backend, speaks them through
// the speech output engine and plays short feedback chimes.
package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MrWong99/tutorvoz/internal/phrases"
	"github.com/MrWong99/tutorvoz/internal/speaker"
	"github.com/MrWong99/tutorvoz/pkg/audio"
	"github.com/MrWong99/tutorvoz/pkg/audio/tone"
)

// wordRate is the speaking rate used to model a single word.
const wordRate = 0.7

// dailyPause separates the sentences of the daily message.
const dailyPause = 1500 * time.Millisecond

// ChimeFormat is the default PCM format of feedback chimes.
var ChimeFormat = audio.Format{SampleRate: 44100, Channels: 1}

// Speaker is the subset of [speaker.Engine] the tutor uses.
type Speaker interface {
	Speak(ctx context.Context, text string, opts speaker.Options)
	SpeakWithEffect(ctx context.Context, text string, effect speaker.Effect)
	SpeakSegmented(ctx context.Context, text string, pause time.Duration)
}

// PhraseSource is the subset of [phrases.Client] the tutor uses.
type PhraseSource interface {
	Phrase(ctx context.Context, phraseCtx string, childID int64) (string, error)
	DailyMessage(ctx context.Context, childID int64) (string, error)
	Recommendation(ctx context.Context, childID int64) (phrases.Recommendation, error)
}

var _ Speaker = (*speaker.Engine)(nil)
var _ PhraseSource = (*phrases.Client)(nil)

// Option is a functional option for [New].
type Option func(*Tutor)

// WithPlayer sets the audio output for chimes. Without one the chimes are
// skipped.
func WithPlayer(p audio.Player) Option {
	return func(t *Tutor) { t.player = p }
}

// WithChimeFormat sets the PCM format chimes are rendered in.
func WithChimeFormat(f audio.Format) Option {
	return func(t *Tutor) {
		if f.SampleRate > 0 && f.Channels > 0 {
			t.chimeFormat = f
		}
	}
}

// WithPhrases sets the phrase backend. Without one the backend-driven
// utterances are skipped.
func WithPhrases(p PhraseSource) Option {
	return func(t *Tutor) { t.phrases = p }
}

// WithRand sets the random source used to pick phrases.
func WithRand(r *rand.Rand) Option {
	return func(t *Tutor) {
		if r != nil {
			t.rng = r
		}
	}
}

// WithLogger sets the tutor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tutor) {
		if l != nil {
			t.log = l
		}
	}
}

// Tutor is safe for concurrent use.
type Tutor struct {
	speaker     Speaker
	phrases     PhraseSource
	player      audio.Player
	chimeFormat audio.Format
	log         *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	chimeOnce sync.Once
	success   []byte
	failure   []byte
}

// New creates a Tutor speaking through s.
func New(s Speaker, opts ...Option) *Tutor {
	t := &Tutor{
		speaker:     s,
		chimeFormat: ChimeFormat,
		log:         slog.Default(),
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tutor) pick(lines []string) string {
	t.rngMu.Lock()
	defer t.rngMu.Unlock()
	return lines[t.rng.IntN(len(lines))]
}

// Greet says a random greeting.
func (t *Tutor) Greet(ctx context.Context) {
	t.speaker.Speak(ctx, t.pick(greetings), speaker.Options{})
}

// Encourage praises a correct answer.
func (t *Tutor) Encourage(ctx context.Context) {
	t.speaker.Speak(ctx, t.pick(encouragements), speaker.Options{})
}

// Correct comforts the child after a wrong answer.
func (t *Tutor) Correct(ctx context.Context) {
	t.speaker.Speak(ctx, t.pick(corrections), speaker.Options{})
}

// GiveInstruction explains activity a.
func (t *Tutor) GiveInstruction(ctx context.Context, a Activity) {
	t.speaker.Speak(ctx, t.pick(Instructions(a)), speaker.Options{})
}

// AskToRepeat asks the child to say the answer again.
func (t *Tutor) AskToRepeat(ctx context.Context) {
	t.speaker.Speak(ctx, repeatPrompt, speaker.Options{})
}

// SayWord models word slowly.
func (t *Tutor) SayWord(ctx context.Context, word string) {
	rate := wordRate
	t.speaker.Speak(ctx, fmt.Sprintf(wordPrompt, word), speaker.Options{Rate: &rate})
}

// Celebrate announces the final score of a session.
func (t *Tutor) Celebrate(ctx context.Context, score int) {
	t.speaker.Speak(ctx, fmt.Sprintf(celebrationFmt, score), speaker.Options{})
}

// SpeakContextual asks the backend for a phrase for phraseCtx and says it
// excitedly. Failures are logged and nothing is said.
func (t *Tutor) SpeakContextual(ctx context.Context, phraseCtx string, childID int64) {
	if t.phrases == nil {
		return
	}
	text, err := t.phrases.Phrase(ctx, phraseCtx, childID)
	if err != nil {
		t.log.Warn("failed to fetch avatar phrase", "context", phraseCtx, "err", err)
		return
	}
	t.speaker.SpeakWithEffect(ctx, text, speaker.EffectExcited)
}

// SpeakDailyMessage says the child's daily message sentence by sentence.
func (t *Tutor) SpeakDailyMessage(ctx context.Context, childID int64) {
	if t.phrases == nil {
		return
	}
	text, err := t.phrases.DailyMessage(ctx, childID)
	if err != nil {
		t.log.Warn("failed to fetch daily message", "child_id", childID, "err", err)
		return
	}
	t.speaker.SpeakSegmented(ctx, text, dailyPause)
}

// SpeakRecommendation says the backend's suggested activity.
func (t *Tutor) SpeakRecommendation(ctx context.Context, childID int64) {
	if t.phrases == nil {
		return
	}
	rec, err := t.phrases.Recommendation(ctx, childID)
	if err != nil {
		t.log.Warn("failed to fetch activity recommendation", "child_id", childID, "err", err)
		return
	}
	t.log.Debug("activity recommended", "category", rec.Category, "percent", rec.Percent)
	t.speaker.SpeakWithEffect(ctx, rec.Phrase, speaker.EffectExcited)
}

// PlaySuccess plays the rising success chime and blocks until it is done.
func (t *Tutor) PlaySuccess(ctx context.Context) error {
	t.renderChimes()
	return t.play(ctx, "success", t.success)
}

// PlayError plays the low error buzz and blocks until it is done.
func (t *Tutor) PlayError(ctx context.Context) error {
	t.renderChimes()
	return t.play(ctx, "error", t.failure)
}

func (t *Tutor) renderChimes() {
	t.chimeOnce.Do(func() {
		t.success = tone.Success().Render(t.chimeFormat)
		t.failure = tone.Error().Render(t.chimeFormat)
	})
}

func (t *Tutor) play(ctx context.Context, name string, pcm []byte) error {
	if t.player == nil {
		return nil
	}
	if err := t.player.Play(ctx, pcm, t.chimeFormat); err != nil {
		t.log.Warn("failed to play chime", "chime", name, "err", err)
		return fmt.Errorf("tutor: play %s chime: %w", name, err)
	}
	return nil
}
