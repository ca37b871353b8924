package answer

import (
	"strconv"
	"strings"
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithWordThreshold sets the similarity a word answer must exceed when it is
// neither an exact nor a substring match. Default: 0.7.
func WithWordThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.wordThreshold = threshold
	}
}

// Matcher judges transcripts per [Domain]. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	wordThreshold float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{wordThreshold: DefaultWordThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Judge compares transcript with expected for the given domain.
//
// For colours and numbers the result is [Indeterminate] when the transcript
// names no recognisable value. A numeric expected answer may be written as
// digits ("3") or as the Spanish word ("tres"). For words the result is
// [Indeterminate] when the transcript or the target is blank.
func (m *Matcher) Judge(domain Domain, transcript, expected string) MatchResult {
	switch domain {
	case DomainColor:
		got, ok := Color(transcript)
		if !ok {
			return Indeterminate
		}
		want, ok := Color(expected)
		if !ok {
			want = Normalize(expected)
		}
		return verdict(got == want)

	case DomainNumber:
		got, ok := Number(transcript)
		if !ok {
			return Indeterminate
		}
		want, ok := parseExpectedNumber(expected)
		if !ok {
			return NoMatch
		}
		return verdict(got == want)

	default:
		said, target := Normalize(transcript), Normalize(expected)
		if said == "" || target == "" {
			return Indeterminate
		}
		return verdict(wordMatch(said, target, m.wordThreshold))
	}
}

func parseExpectedNumber(s string) (int, bool) {
	s = Normalize(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	for i, w := range numberWords {
		if strings.EqualFold(s, w) {
			return i + 1, true
		}
	}
	return 0, false
}

func verdict(ok bool) MatchResult {
	if ok {
		return Match
	}
	return NoMatch
}
