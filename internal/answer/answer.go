// Package answer judges a child's spoken transcript against the expected
// answer of a quiz activity.
//
// Three domains are supported:
//
//  1. Colours: the transcript is searched for any alias from a fixed Spanish
//     colour table ("café" counts as "marrón").
//
//  2. Numbers: the transcript is searched for a Spanish number word
//     ("uno".."diez") or a digit string ("1".."10").
//
//  3. Words: the transcript must equal the target, contain it, or reach a
//     Levenshtein similarity above [DefaultWordThreshold].
//
// Colour and number extraction is deterministic: the alias occurring earliest
// in the transcript wins and ties at the same position go to the longer
// alias, so "10" reads as ten and never as one.
package answer

import (
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"
)

// MatchResult is the outcome of judging one transcript.
type MatchResult int

const (
	// Indeterminate means nothing recognisable was said; the caller should
	// ask the child to repeat.
	Indeterminate MatchResult = iota

	// Match means the recognised answer equals the expected one.
	Match

	// NoMatch means an answer was recognised but it is wrong.
	NoMatch
)

// String implements [fmt.Stringer].
func (r MatchResult) String() string {
	switch r {
	case Match:
		return "match"
	case NoMatch:
		return "no_match"
	default:
		return "indeterminate"
	}
}

// Domain is the kind of answer an activity expects.
type Domain string

const (
	DomainColor  Domain = "color"
	DomainNumber Domain = "number"
	DomainWord   Domain = "word"
)

// DefaultWordThreshold is the similarity a word answer must exceed when it
// is neither an exact nor a substring match.
const DefaultWordThreshold = 0.7

type alias struct {
	text      string
	canonical string
}

// colorAliases maps every accepted spelling to its canonical colour.
var colorAliases = []alias{
	{"rojo", "rojo"},
	{"azul", "azul"},
	{"verde", "verde"},
	{"amarillo", "amarillo"},
	{"naranja", "naranja"},
	{"morado", "morado"},
	{"rosa", "rosa"},
	{"marrón", "marrón"},
	{"marron", "marrón"},
	{"café", "marrón"},
	{"cafe", "marrón"},
	{"negro", "negro"},
	{"blanco", "blanco"},
}

var numberWords = []string{"uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve", "diez"}

// numberAliases holds both the Spanish word and the digit string for 1..10.
var numberAliases = func() []alias {
	out := make([]alias, 0, 2*len(numberWords))
	for i, w := range numberWords {
		n := strconv.Itoa(i + 1)
		out = append(out, alias{w, n}, alias{n, n})
	}
	return out
}()

// Colors returns the canonical colour names in table order.
func Colors() []string {
	var out []string
	seen := make(map[string]bool)
	for _, a := range colorAliases {
		if !seen[a.canonical] {
			seen[a.canonical] = true
			out = append(out, a.canonical)
		}
	}
	return out
}

// NumberWord returns the Spanish word for n in 1..10, or "" otherwise.
func NumberWord(n int) string {
	if n < 1 || n > len(numberWords) {
		return ""
	}
	return numberWords[n-1]
}

// Normalize lower-cases and trims s.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Color extracts the canonical colour mentioned in transcript.
func Color(transcript string) (string, bool) {
	return earliest(Normalize(transcript), colorAliases)
}

// Number extracts the number 1..10 mentioned in transcript.
func Number(transcript string) (int, bool) {
	s, ok := earliest(Normalize(transcript), numberAliases)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// earliest returns the canonical value of the alias that occurs first in s,
// preferring the longer alias when two start at the same index.
func earliest(s string, aliases []alias) (string, bool) {
	bestIdx, bestLen := -1, 0
	var best string
	for _, a := range aliases {
		idx := strings.Index(s, a.text)
		if idx < 0 {
			continue
		}
		if bestIdx < 0 || idx < bestIdx || (idx == bestIdx && len(a.text) > bestLen) {
			bestIdx, bestLen, best = idx, len(a.text), a.canonical
		}
	}
	return best, bestIdx >= 0
}

// Word reports whether transcript names target: an exact match after
// normalisation, a substring match, or a similarity above
// [DefaultWordThreshold].
func Word(transcript, target string) bool {
	return wordMatch(Normalize(transcript), Normalize(target), DefaultWordThreshold)
}

func wordMatch(said, target string, threshold float64) bool {
	if said == target {
		return true
	}
	if target != "" && strings.Contains(said, target) {
		return true
	}
	return similarity(said, target) > threshold
}

// Distance returns the Levenshtein edit distance between the normalised a
// and b, counted in runes. Case and surrounding whitespace do not count as
// edits.
func Distance(a, b string) int {
	return matchr.Levenshtein(Normalize(a), Normalize(b))
}

// Similarity returns (longer - distance) / longer over the normalised inputs,
// where longer is the rune length of the longer string. Two empty strings are
// identical.
func Similarity(a, b string) float64 {
	return similarity(Normalize(a), Normalize(b))
}

func similarity(a, b string) float64 {
	longer := max(len([]rune(a)), len([]rune(b)))
	if longer == 0 {
		return 1.0
	}
	return float64(longer-matchr.Levenshtein(a, b)) / float64(longer)
}
