package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/tutorvoz/internal/speaker"
	"github.com/MrWong99/tutorvoz/internal/tutor"
)

// turnSpeaker makes the tutor wait for its own words. Each call returns
// once the utterance is over, so an instruction is not cut off by the next
// line and the microphone only opens after the tutor has finished.
type turnSpeaker struct {
	engine *speaker.Engine
	log    *slog.Logger
}

var _ tutor.Speaker = (*turnSpeaker)(nil)

func (s *turnSpeaker) Speak(ctx context.Context, text string, opts speaker.Options) {
	if err := s.engine.SpeakAndWait(ctx, text, opts); err != nil {
		s.log.Debug("utterance not completed", "text", text, "err", err)
	}
}

func (s *turnSpeaker) SpeakWithEffect(ctx context.Context, text string, effect speaker.Effect) {
	rate, pitch := effect.Params()
	s.Speak(ctx, text, speaker.Options{Rate: &rate, Pitch: &pitch, Effect: effect})
}

func (s *turnSpeaker) SpeakSegmented(ctx context.Context, text string, pause time.Duration) {
	if err := s.engine.SpeakSegmentedAndWait(ctx, text, pause); err != nil {
		s.log.Debug("segmented speech not completed", "err", err)
	}
}
