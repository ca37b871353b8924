// Package profile holds the persisted voice preferences shared by speech
// output and speech input: preferred voice gender and language, rate, pitch,
// volume, the minimum recognition confidence and the master enable switch.
//
// The profile is a single JSON record in a [kv.Store] under a fixed key. It
// is loaded once, mutated through setters and re-saved synchronously on every
// mutation. Persistence is best-effort: load and save failures are logged and
// the in-memory profile stays authoritative.
package profile

import "strings"

// Gender is the preferred synthetic voice gender.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
	GenderAny    Gender = "any"
)

// IsValid reports whether g is a recognised gender preference.
func (g Gender) IsValid() bool {
	switch g {
	case GenderFemale, GenderMale, GenderAny:
		return true
	}
	return false
}

// LanguageAny disables language filtering during voice selection.
const LanguageAny = "any"

// Numeric ranges. Every write clamps into these bounds.
const (
	MinRate       = 0.1
	MaxRate       = 2.0
	MinPitch      = 0.0
	MaxPitch      = 2.0
	MinVolume     = 0.0
	MaxVolume     = 1.0
	MinConfidence = 0.1
	MaxConfidence = 1.0
)

// Profile is the persisted voice configuration.
type Profile struct {
	// Gender is the preferred voice gender for speech output.
	Gender Gender `json:"gender"`

	// Language is a short code ("es", "en"), [LanguageAny], or a BCP-47 tag
	// such as "es-MX".
	Language string `json:"language"`

	// Rate is the speaking rate, 1.0 being the platform default.
	Rate float64 `json:"speed"`

	// Pitch is the voice pitch, 1.0 being the platform default.
	Pitch float64 `json:"pitch"`

	// Volume is the output volume in [0, 1].
	Volume float64 `json:"volume"`

	// Confidence is the minimum recognition confidence for final results.
	Confidence float64 `json:"confidence"`

	// Enabled is the master switch for speech output.
	Enabled bool `json:"enabled"`
}

// Defaults returns the profile used on first run.
func Defaults() Profile {
	return Profile{
		Gender:     GenderFemale,
		Language:   "es",
		Rate:       0.9,
		Pitch:      1.1,
		Volume:     0.8,
		Confidence: 0.7,
		Enabled:    true,
	}
}

// Clamp returns p with every numeric field forced into its range and
// unknown enumerations reset to their defaults.
func (p Profile) Clamp() Profile {
	d := Defaults()
	p.Rate = clamp(p.Rate, MinRate, MaxRate)
	p.Pitch = clamp(p.Pitch, MinPitch, MaxPitch)
	p.Volume = clamp(p.Volume, MinVolume, MaxVolume)
	p.Confidence = clamp(p.Confidence, MinConfidence, MaxConfidence)
	if !p.Gender.IsValid() {
		p.Gender = d.Gender
	}
	p.Language = strings.TrimSpace(p.Language)
	if p.Language == "" {
		p.Language = d.Language
	}
	return p
}

// RecognitionLanguage returns the BCP-47 tag used for speech input and
// output. Short codes map to the regional tag the tutor ships with.
func (p Profile) RecognitionLanguage() string {
	return LanguageTag(p.Language)
}

// LanguageTag maps a short language code to a full BCP-47 tag. Tags that
// already carry a region pass through; "any" and "" map to "es-ES".
func LanguageTag(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "", LanguageAny, "es":
		return "es-ES"
	case "en":
		return "en-US"
	}
	return lang
}

// ClampConfidence forces c into [MinConfidence, MaxConfidence].
func ClampConfidence(c float64) float64 {
	return clamp(c, MinConfidence, MaxConfidence)
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	return max(lo, min(hi, v))
}
