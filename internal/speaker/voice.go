package speaker

import (
	"strings"

	"github.com/MrWong99/tutorvoz/internal/profile"
	"github.com/MrWong99/tutorvoz/pkg/provider/synth"
)

// Gender is the gender guessed for a platform voice.
type Gender string

const (
	GenderFemale  Gender = "female"
	GenderMale    Gender = "male"
	GenderUnknown Gender = "unknown"
)

// Candidate is a platform voice annotated with its guessed gender.
type Candidate struct {
	Name     string
	Language string
	Gender   Gender
}

// Platform voices rarely report gender, so it is guessed from keywords and
// common Spanish and English first names in the display name.
var (
	femaleHints = []string{
		"female", "mujer", "woman",
		"maria", "carmen", "lucia", "sofia", "ana", "elena", "isabel", "paula",
		"laura", "andrea", "monica", "patricia", "sandra", "natalia", "beatriz",
		"cristina", "raquel", "marta", "silvia", "alicia", "claudia", "diana",
		"fernanda", "gabriela", "helena", "irene", "julia", "karen", "lorena",
		"miriam", "nuria", "olga", "pilar", "rosa", "sara", "teresa", "ursula",
		"valeria", "wendy", "ximena", "yolanda", "zoe",
	}
	maleHints = []string{
		"male", "hombre", "man",
		"carlos", "juan", "pedro", "luis", "miguel", "antonio", "francisco",
		"david", "jose", "manuel", "rafael", "daniel", "alejandro", "fernando",
		"sergio", "roberto", "javier", "alberto", "eduardo", "victor", "pablo",
		"oscar", "ruben", "adrian", "raul", "enrique", "ignacio", "arturo",
		"ricardo", "sebastian", "gonzalo",
	}
)

// GuessGender classifies a voice by case-insensitive substring search of
// its name. Female hints are checked first, so "female" never reads as
// "male".
func GuessGender(name string) Gender {
	n := strings.ToLower(name)
	for _, h := range femaleHints {
		if strings.Contains(n, h) {
			return GenderFemale
		}
	}
	for _, h := range maleHints {
		if strings.Contains(n, h) {
			return GenderMale
		}
	}
	return GenderUnknown
}

// Candidates annotates a platform catalogue, keeping its order.
func Candidates(voices []synth.Voice) []Candidate {
	out := make([]Candidate, 0, len(voices))
	for _, v := range voices {
		out = append(out, Candidate{Name: v.Name, Language: v.Language, Gender: GuessGender(v.Name)})
	}
	return out
}

// languageNames holds the localised names a voice's display name may carry
// instead of a language tag.
var languageNames = map[string][]string{
	"es": {"spanish", "español", "espanol"},
	"en": {"english", "inglés", "ingles"},
}

// SelectVoice picks the voice to speak with:
//
//  1. keep candidates whose language tag starts with the preferred language,
//     or whose name contains its localised name; "any" keeps all, and an
//     empty result falls back to the full catalogue;
//  2. for a female or male preference keep candidates of that gender; an
//     empty result falls back to step 1's set;
//  3. take the first remaining candidate in platform order.
//
// It reports false only when candidates is empty.
func SelectVoice(candidates []Candidate, p profile.Profile) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}

	pool := candidates
	if lang := strings.ToLower(strings.TrimSpace(p.Language)); lang != "" && lang != profile.LanguageAny {
		if byLang := filter(candidates, func(c Candidate) bool { return matchesLanguage(c, lang) }); len(byLang) > 0 {
			pool = byLang
		}
	}

	if want := Gender(p.Gender); want == GenderFemale || want == GenderMale {
		if byGender := filter(pool, func(c Candidate) bool { return c.Gender == want }); len(byGender) > 0 {
			pool = byGender
		}
	}
	return pool[0], true
}

func matchesLanguage(c Candidate, lang string) bool {
	if strings.HasPrefix(strings.ToLower(c.Language), lang) {
		return true
	}
	primary, _, _ := strings.Cut(lang, "-")
	name := strings.ToLower(c.Name)
	for _, n := range languageNames[primary] {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

func filter(in []Candidate, keep func(Candidate) bool) []Candidate {
	var out []Candidate
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
