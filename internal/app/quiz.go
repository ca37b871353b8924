package app

import (
	"context"
	"fmt"

	"github.com/MrWong99/tutorvoz/internal/activity"
	"github.com/MrWong99/tutorvoz/internal/config"
	"github.com/MrWong99/tutorvoz/internal/phrases"
	"github.com/MrWong99/tutorvoz/internal/progress"
	"github.com/MrWong99/tutorvoz/internal/rest"
)

// streakCheer is the streak length after which the tutor cheers.
const streakCheer = 3

// categoryContexts maps an activity to its phrase service context.
var categoryContexts = map[activity.Kind]string{
	activity.KindColors:   phrases.ContextCategoryCol,
	activity.KindNumbers:  phrases.ContextCategoryNum,
	activity.KindLanguage: phrases.ContextCategoryWord,
}

// kinds returns the activities played in rotation for the configured kind.
func kinds(kind string) []activity.Kind {
	if kind == "" || kind == "mixed" {
		return []activity.Kind{activity.KindColors, activity.KindNumbers, activity.KindLanguage}
	}
	return []activity.Kind{activity.Kind(kind)}
}

// RunActivity plays one tutoring session: a greeting and the daily message,
// activity.rounds quiz rounds and a final celebration. It returns the
// session's stats. Backend phrases are spoken when the phrase service is
// configured.
//
// With activity.rest_every set, the configured rest activity runs after
// every rest_every rounds, but not after the last one. The descanso kind
// plays only the rest activity and needs no speech recognition.
func (a *App) RunActivity(ctx context.Context) (activity.Stats, error) {
	ac := a.cfg.Activity
	log := a.log.With("child_id", ac.ChildID)

	if ac.Kind == config.ActivityRest {
		if err := a.runRest(ctx); err != nil {
			return a.session.Stats(), err
		}
		return a.session.Stats(), nil
	}

	if !a.controller.Supported() {
		log.Warn("speech recognition unavailable, no rounds can be played")
		return a.session.Stats(), nil
	}

	a.tutor.Greet(ctx)
	a.tutor.SpeakDailyMessage(ctx, ac.ChildID)
	a.tutor.SpeakRecommendation(ctx, ac.ChildID)

	rotation := kinds(ac.Kind)
	var last activity.Kind
	for i := range ac.Rounds {
		kind := rotation[i%len(rotation)]
		if kind != last {
			a.tutor.SpeakContextual(ctx, categoryContexts[kind], ac.ChildID)
			last = kind
		}

		out, err := a.session.Round(ctx, kind)
		if err != nil {
			return a.session.Stats(), fmt.Errorf("app: round %d: %w", i+1, err)
		}
		stats := a.session.Stats()
		log.Info("round finished",
			"round", i+1,
			"activity", string(kind),
			"result", out.Result.String(),
			"points", out.Points,
			"score", stats.Score,
		)
		if a.progress != nil {
			if err := a.progress.Append(progress.FromOutcome(ac.ChildID, out)); err != nil {
				log.Warn("failed to record progress", "err", err)
			}
		}
		if out.Result == activity.ResultCorrect && stats.Streak%streakCheer == 0 {
			a.tutor.SpeakContextual(ctx, phrases.ContextMotivation, ac.ChildID)
		}
		if n := ac.RestEvery; n > 0 && (i+1)%n == 0 && i+1 < ac.Rounds {
			if err := a.runRest(ctx); err != nil {
				return a.session.Stats(), err
			}
			last = ""
		}
	}

	stats := a.session.Finish(ctx)
	a.tutor.SpeakContextual(ctx, phrases.ContextCongrats, ac.ChildID)
	log.Info("session finished", "score", stats.Score, "correct", stats.Correct, "attempts", stats.Attempts, "best_streak", stats.BestStreak)
	return stats, nil
}

// runRest plays the configured rest activity.
func (a *App) runRest(ctx context.Context) error {
	kind := rest.Kind(a.cfg.Activity.Rest)
	if kind == "" {
		kind = rest.Kind(config.DefaultRestKind)
	}
	if err := a.rest.Run(ctx, kind); err != nil {
		return fmt.Errorf("app: rest: %w", err)
	}
	return nil
}
