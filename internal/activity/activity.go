// Package activity runs the spoken quiz rounds of a tutoring session: the
// tutor explains the exercise, the child answers out loud and the score is
// kept.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"

	"github.com/MrWong99/tutorvoz/internal/answer"
	"github.com/MrWong99/tutorvoz/internal/interaction"
	"github.com/MrWong99/tutorvoz/internal/tutor"
)

// Kind is the exercise of a round.
type Kind = tutor.Activity

const (
	KindColors   = tutor.ActivityColors
	KindNumbers  = tutor.ActivityNumbers
	KindLanguage = tutor.ActivityLanguage
)

// DefaultVocabulary is the word list of language rounds.
var DefaultVocabulary = []string{"casa", "perro", "gato", "sol", "luna", "agua", "árbol", "flor"}

// roundColors are the colours asked for in colour rounds.
var roundColors = []string{"rojo", "azul", "verde", "amarillo", "naranja", "morado", "rosa", "marrón"}

// Points awarded for a correct answer.
const (
	ColorPoints  = 10
	NumberPoints = 15
	WordPoints   = 20
)

// ErrUnknownKind is returned by Round for an unsupported exercise.
var ErrUnknownKind = errors.New("activity: unknown activity")

// Result is how a round ended.
type Result int

const (
	ResultCorrect Result = iota + 1
	ResultIncorrect
	// ResultNoAnswer means the session ended or failed without a verdict.
	ResultNoAnswer
)

// String implements [fmt.Stringer].
func (r Result) String() string {
	switch r {
	case ResultCorrect:
		return "correct"
	case ResultIncorrect:
		return "incorrect"
	case ResultNoAnswer:
		return "no_answer"
	default:
		return "unknown"
	}
}

// Outcome describes one finished round.
type Outcome struct {
	Kind       Kind
	Target     string
	Result     Result
	Transcript string
	Points     int

	// Repeats counts how often the child was asked to repeat.
	Repeats int
}

// Stats is the running progress of a session.
type Stats struct {
	Score      int
	Streak     int
	BestStreak int
	Attempts   int
	Correct    int
}

// Coach is the subset of [tutor.Tutor] a session talks through.
type Coach interface {
	GiveInstruction(ctx context.Context, a tutor.Activity)
	SayWord(ctx context.Context, word string)
	AskToRepeat(ctx context.Context)
	Encourage(ctx context.Context)
	Correct(ctx context.Context)
	Celebrate(ctx context.Context, score int)
	PlaySuccess(ctx context.Context) error
	PlayError(ctx context.Context) error
}

// Answers is the subset of [interaction.Controller] a session listens
// through.
type Answers interface {
	BeginListening(ctx context.Context, domain answer.Domain, expected string, onVerdict func(interaction.Verdict), onFeedback func(interaction.Feedback)) error
	Cancel()
}

var (
	_ Coach   = (*tutor.Tutor)(nil)
	_ Answers = (*interaction.Controller)(nil)
)

// Option is a functional option for [NewSession].
type Option func(*Session)

// WithVocabulary sets the words of language rounds.
func WithVocabulary(words []string) Option {
	return func(s *Session) {
		if len(words) > 0 {
			s.vocabulary = words
		}
	}
}

// WithRand sets the random source used to pick targets.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithLogger sets the session's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// Session plays rounds one after another. Round must not be called
// concurrently.
type Session struct {
	coach      Coach
	answers    Answers
	vocabulary []string
	rng        *rand.Rand
	log        *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewSession creates a Session.
func NewSession(coach Coach, answers Answers, opts ...Option) *Session {
	s := &Session{
		coach:      coach,
		answers:    answers,
		vocabulary: DefaultVocabulary,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stats returns the progress so far.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SetVocabulary replaces the words of language rounds. An empty list keeps
// the current one. Safe to call while a round is running; the next language
// round picks from the new list.
func (s *Session) SetVocabulary(words []string) {
	if len(words) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vocabulary = slices.Clone(words)
}

// target picks the expected answer, its matching domain and its points.
func (s *Session) target(kind Kind) (string, answer.Domain, int, error) {
	switch kind {
	case KindColors:
		return roundColors[s.rng.IntN(len(roundColors))], answer.DomainColor, ColorPoints, nil
	case KindNumbers:
		return strconv.Itoa(s.rng.IntN(10) + 1), answer.DomainNumber, NumberPoints, nil
	case KindLanguage:
		s.mu.Lock()
		words := s.vocabulary
		s.mu.Unlock()
		return words[s.rng.IntN(len(words))], answer.DomainWord, WordPoints, nil
	default:
		return "", "", 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Round plays one attempt of kind with a random target and blocks until it
// is judged, ends without an answer or ctx is done. A listening session
// that cannot be opened yields a [ResultNoAnswer] outcome that does not
// count as an attempt; only unsupported recognition, unknown kinds and ctx
// errors are returned.
func (s *Session) Round(ctx context.Context, kind Kind) (Outcome, error) {
	expected, domain, points, err := s.target(kind)
	if err != nil {
		return Outcome{}, err
	}
	return s.play(ctx, kind, domain, expected, points)
}

func (s *Session) play(ctx context.Context, kind Kind, domain answer.Domain, expected string, points int) (Outcome, error) {
	out := Outcome{Kind: kind, Target: expected, Result: ResultNoAnswer}
	log := s.log.With("activity", string(kind), "target", expected)

	s.coach.GiveInstruction(ctx, kind)
	if kind == KindLanguage {
		s.coach.SayWord(ctx, expected)
	}

	verdicts := make(chan interaction.Verdict, 1)
	ended := make(chan interaction.Feedback, 1)
	repeats := make(chan string, 8)
	onVerdict := func(v interaction.Verdict) { verdicts <- v }
	onFeedback := func(f interaction.Feedback) {
		switch f.Kind {
		case interaction.FeedbackListening:
			log.Debug("hearing", "transcript", f.Transcript)
		case interaction.FeedbackRepeat:
			select {
			case repeats <- f.Transcript:
			default:
			}
		case interaction.FeedbackError, interaction.FeedbackEnded:
			ended <- f
		}
	}
	if err := s.answers.BeginListening(ctx, domain, expected, onVerdict, onFeedback); err != nil {
		switch {
		case errors.Is(err, interaction.ErrStartFailed):
			log.Warn("could not start listening, round skipped", "err", err)
			return out, nil
		case errors.Is(err, interaction.ErrBusy):
			// A stale attempt is still open; drop it so the next round can listen.
			log.Warn("previous attempt still open, round skipped", "err", err)
			s.answers.Cancel()
			return out, nil
		}
		return out, fmt.Errorf("activity: %s round: %w", kind, err)
	}

	for {
		select {
		case <-ctx.Done():
			s.answers.Cancel()
			return out, ctx.Err()

		case heard := <-repeats:
			out.Repeats++
			log.Debug("asking to repeat", "transcript", heard)
			s.coach.AskToRepeat(ctx)

		case f := <-ended:
			if f.Kind == interaction.FeedbackError {
				log.Warn("round ended by recognition error", "code", f.Code, "err", f.Err)
			} else {
				log.Info("round ended without an answer")
			}
			s.mu.Lock()
			s.stats.Attempts++
			s.stats.Streak = 0
			s.mu.Unlock()
			return out, nil

		case v := <-verdicts:
			out.Transcript = v.Transcript
			if v.Correct {
				out.Result = ResultCorrect
				out.Points = points
			} else {
				out.Result = ResultIncorrect
			}
			s.score(out)
			s.feedback(ctx, v.Correct)
			log.Info("round judged", "transcript", v.Transcript, "result", out.Result.String())
			return out, nil
		}
	}
}

func (s *Session) score(out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Attempts++
	if out.Result != ResultCorrect {
		s.stats.Streak = 0
		return
	}
	s.stats.Correct++
	s.stats.Score += out.Points
	s.stats.Streak++
	s.stats.BestStreak = max(s.stats.BestStreak, s.stats.Streak)
}

func (s *Session) feedback(ctx context.Context, correct bool) {
	if correct {
		s.coach.Encourage(ctx)
		if err := s.coach.PlaySuccess(ctx); err != nil {
			s.log.Debug("success chime not played", "err", err)
		}
		return
	}
	s.coach.Correct(ctx)
	if err := s.coach.PlayError(ctx); err != nil {
		s.log.Debug("error chime not played", "err", err)
	}
}

// Finish celebrates the final score and returns the session's stats.
func (s *Session) Finish(ctx context.Context) Stats {
	st := s.Stats()
	s.coach.Celebrate(ctx, st.Score)
	return st
}
