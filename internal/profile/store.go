package profile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/tutorvoz/internal/notify"
	"github.com/MrWong99/tutorvoz/pkg/kv"
)

// DefaultKey is the fixed key under which the profile is persisted.
const DefaultKey = "tutorvoz_voice_profile"

// Option is a functional option for [NewStore].
type Option func(*Store)

// WithKey overrides the persistence key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store owns the current [Profile] and persists it to a [kv.Store].
// It is safe for concurrent use.
type Store struct {
	backend kv.Store
	key     string
	log     *slog.Logger

	mu      sync.Mutex
	current Profile

	changes notify.Hub[Profile]
}

// NewStore creates a Store over backend. The profile starts at [Defaults]
// until [Store.Load] is called. A nil backend keeps the profile in memory
// only.
func NewStore(backend kv.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		log:     slog.Default(),
		current: Defaults(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load reads the persisted profile, merges it over the defaults, clamps it
// and makes it current. Absent or malformed data yields the defaults; the
// failure is logged, never returned.
func (s *Store) Load(ctx context.Context) Profile {
	p := s.read(ctx)

	s.mu.Lock()
	s.current = p
	s.mu.Unlock()

	s.changes.Publish(p)
	return p
}

func (s *Store) read(ctx context.Context) Profile {
	p := Defaults()
	if s.backend == nil {
		return p
	}
	raw, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		s.log.Debug("no persisted voice profile, using defaults", "key", s.key)
		return p
	}
	if err != nil {
		s.log.Warn("failed to read voice profile, using defaults", "key", s.key, "err", err)
		return p
	}
	// Decoding into the defaults keeps any field the record omits.
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.log.Warn("malformed voice profile discarded, using defaults", "key", s.key, "err", err)
		return Defaults()
	}
	return p.Clamp()
}

// Save clamps p, makes it current and persists it. A persistence failure is
// logged and swallowed.
func (s *Store) Save(ctx context.Context, p Profile) {
	s.update(ctx, func(cur *Profile) { *cur = p })
}

// Current returns a copy of the current profile.
func (s *Store) Current() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetGender updates the gender preference. Unknown values fall back to the
// default.
func (s *Store) SetGender(ctx context.Context, g Gender) Profile {
	return s.update(ctx, func(p *Profile) { p.Gender = g })
}

// SetLanguage updates the language preference.
func (s *Store) SetLanguage(ctx context.Context, lang string) Profile {
	return s.update(ctx, func(p *Profile) { p.Language = lang })
}

// SetRate updates the speaking rate, clamped to [MinRate, MaxRate].
func (s *Store) SetRate(ctx context.Context, rate float64) Profile {
	return s.update(ctx, func(p *Profile) { p.Rate = rate })
}

// SetPitch updates the pitch, clamped to [MinPitch, MaxPitch].
func (s *Store) SetPitch(ctx context.Context, pitch float64) Profile {
	return s.update(ctx, func(p *Profile) { p.Pitch = pitch })
}

// SetVolume updates the volume, clamped to [MinVolume, MaxVolume].
func (s *Store) SetVolume(ctx context.Context, volume float64) Profile {
	return s.update(ctx, func(p *Profile) { p.Volume = volume })
}

// SetConfidence updates the recognition threshold, clamped to
// [MinConfidence, MaxConfidence].
func (s *Store) SetConfidence(ctx context.Context, c float64) Profile {
	return s.update(ctx, func(p *Profile) { p.Confidence = c })
}

// SetEnabled toggles speech output.
func (s *Store) SetEnabled(ctx context.Context, enabled bool) Profile {
	return s.update(ctx, func(p *Profile) { p.Enabled = enabled })
}

// Subscribe registers fn to be called after every change of the current
// profile, in registration order. The returned function unregisters it.
// Callbacks run synchronously on the mutating goroutine.
func (s *Store) Subscribe(fn func(Profile)) (unsubscribe func()) {
	return s.changes.Subscribe(fn)
}

// update applies fn, clamps, persists and notifies subscribers.
func (s *Store) update(ctx context.Context, fn func(*Profile)) Profile {
	s.mu.Lock()
	p := s.current
	fn(&p)
	p = p.Clamp()
	s.current = p
	s.persist(ctx, p)
	s.mu.Unlock()

	s.changes.Publish(p)
	return p
}

// persist writes p to the backend. Must be called with s.mu held so that
// writes reach the backend in mutation order.
func (s *Store) persist(ctx context.Context, p Profile) {
	if s.backend == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		s.log.Warn("failed to encode voice profile", "err", err)
		return
	}
	if err := s.backend.Set(ctx, s.key, string(raw)); err != nil {
		s.log.Warn("failed to persist voice profile, keeping in-memory copy", "key", s.key, "err", err)
		return
	}
	s.log.Debug("voice profile saved",
		"gender", p.Gender,
		"language", p.Language,
		"rate", p.Rate,
		"pitch", p.Pitch,
		"volume", p.Volume,
		"confidence", p.Confidence,
		"enabled", p.Enabled,
	)
}
