// Package language detects the spoken language of a transcript.
package language

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Default is used when nothing better is known.
const Default = "en"

// Supported lists the languages the detector can return, in tie-break order.
var Supported = []string{"en", "es", "fr", "de", "it", "pt"}

// minLetters is the shortest transcript, in letters, worth classifying.
const minLetters = 4

type profile struct {
	code  string
	words map[string]int
	marks *regexp.Regexp
}

var profiles = []profile{
	{
		code: "en",
		words: weights(
			"the", "and", "you", "is", "are", "i", "want", "need", "looking", "for",
			"hello", "hi", "thanks", "thank", "please", "what", "how", "show", "me",
			"can", "do", "have", "with", "this", "that", "my", "it", "of",
		),
	},
	{
		code: "es",
		words: weights(
			"el", "la", "los", "las", "que", "de", "y", "es", "hola", "gracias",
			"quiero", "necesito", "busco", "por", "favor", "cómo", "como", "qué",
			"tienes", "tienen", "para", "una", "un", "muéstrame", "puedes", "con", "mi",
		),
		marks: regexp.MustCompile(`[¿¡ñ]`),
	},
	{
		code: "fr",
		words: weights(
			"le", "la", "les", "et", "est", "je", "vous", "bonjour", "merci",
			"voudrais", "cherche", "pour", "avec", "une", "des", "pouvez", "montrez",
			"moi", "est-ce", "s'il", "plaît", "quoi", "comment", "mon", "ma",
		),
		marks: regexp.MustCompile(`[çœêèàù]`),
	},
	{
		code: "de",
		words: weights(
			"der", "die", "das", "und", "ist", "ich", "sie", "hallo", "danke",
			"bitte", "möchte", "suche", "für", "mit", "ein", "eine", "zeigen",
			"mir", "können", "haben", "wie", "was", "mein",
		),
		marks: regexp.MustCompile(`[ßäöü]`),
	},
	{
		code: "it",
		words: weights(
			"il", "lo", "gli", "che", "di", "e", "è", "ciao", "grazie", "vorrei",
			"cerco", "per", "con", "una", "mostrami", "puoi", "come", "cosa",
			"sono", "mio", "favore",
		),
		marks: regexp.MustCompile(`[ìò]`),
	},
	{
		code: "pt",
		words: weights(
			"o", "os", "as", "que", "de", "e", "olá", "obrigado", "obrigada",
			"quero", "preciso", "procuro", "para", "com", "uma", "um", "você",
			"mostre", "pode", "meu", "minha", "não",
		),
		marks: regexp.MustCompile(`[ãõ]`),
	},
}

var tokenPattern = regexp.MustCompile(`[\p{L}']+(?:-[\p{L}]+)?`)

func weights(words ...string) map[string]int {
	m := make(map[string]int, len(words))
	for _, w := range words {
		m[w] = 1
	}
	return m
}

// Detect guesses the language of text. ok is false when the text is too
// short or no language clearly wins.
func Detect(text string) (code string, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if countLetters(lower) < minLetters {
		return "", false
	}

	tokens := tokenPattern.FindAllString(lower, -1)
	scores := make(map[string]int, len(profiles))
	for _, p := range profiles {
		score := 0
		for _, tok := range tokens {
			score += p.words[tok]
		}
		if p.marks != nil {
			// orthographic marks are strong evidence
			score += 2 * len(p.marks.FindAllStringIndex(lower, -1))
		}
		scores[p.code] = score
	}

	best, second := "", 0
	bestScore := 0
	for _, c := range Supported {
		s := scores[c]
		if s > bestScore {
			second = bestScore
			best, bestScore = c, s
		} else if s > second {
			second = s
		}
	}
	if bestScore == 0 || bestScore == second {
		return "", false
	}
	return best, true
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

var matcher = language.NewMatcher(supportedTags())

func supportedTags() []language.Tag {
	tags := make([]language.Tag, 0, len(Supported))
	for _, c := range Supported {
		tags = append(tags, language.Make(c))
	}
	return tags
}

// Normalize reduces a browser language tag or Accept-Language header value
// (for example "es-ES", "pt_BR" or "fr-CA,fr;q=0.9") to a supported base
// language, falling back to Default.
func Normalize(tag string) string {
	tag = strings.TrimSpace(strings.ReplaceAll(tag, "_", "-"))
	if tag == "" {
		return Default
	}
	prefs, _, err := language.ParseAcceptLanguage(tag)
	if err != nil || len(prefs) == 0 {
		return Default
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return Default
	}
	return Supported[idx]
}

// IsSupported reports whether code is one of the supported base languages.
func IsSupported(code string) bool {
	for _, c := range Supported {
		if c == code {
			return true
		}
	}
	return false
}
