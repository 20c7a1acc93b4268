package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const defaultSnippetRunes = 420

var stopwords = map[string]struct{}{
	"que": {}, "los": {}, "las": {}, "del": {}, "por": {}, "para": {}, "con": {}, "una": {},
	"uno": {}, "cual": {}, "como": {}, "sobre": {}, "segun": {}, "dice": {}, "esta": {}, "este": {},
	"son": {}, "hay": {}, "cuales": {}, "cuando": {}, "donde": {},
	"the": {}, "and": {}, "for": {}, "what": {}, "how": {}, "which": {}, "with": {}, "from": {},
}

// Snippet cleans s for terminal display and cuts it at a word boundary.
func Snippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = defaultSnippetRunes
	}
	s = strings.Join(strings.Fields(SanitizeText(s)), " ")
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	cut := string(r[:maxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > maxRunes/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "..."
}

// EvidenceSnippet returns the sentence of text that mentions the most question
// terms, followed by the next sentence when that one matches too. Matching
// ignores case and accents.
func EvidenceSnippet(text, question string, maxRunes int) string {
	terms := QueryTerms(question)
	sentences := sentencesOf(text)
	if len(terms) == 0 || len(sentences) < 2 {
		return Snippet(text, maxRunes)
	}
	scores := make([]int, len(sentences))
	for i, s := range sentences {
		folded := Fold(s)
		for _, t := range terms {
			if strings.Contains(folded, t) {
				scores[i]++
			}
		}
	}
	best := 0
	for i := range scores {
		if scores[i] > scores[best] {
			best = i
		}
	}
	if scores[best] == 0 {
		return Snippet(text, maxRunes)
	}
	out := sentences[best]
	if best+1 < len(sentences) && scores[best+1] > 0 {
		out += " " + sentences[best+1]
	}
	return Snippet(out, maxRunes)
}

// QueryTerms lowercases and accent-folds the words of q, dropping short words and stopwords.
func QueryTerms(q string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range strings.FieldsFunc(Fold(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Fold lowercases s and strips combining marks ("Constitución" -> "constitucion").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func sentencesOf(s string) []string {
	var out []string
	start := 0
	rs := []rune(s)
	for i, r := range rs {
		if r != '.' && r != '!' && r != '?' && r != ';' {
			continue
		}
		if i+1 < len(rs) && !unicode.IsSpace(rs[i+1]) {
			continue
		}
		if x := strings.TrimSpace(string(rs[start : i+1])); x != "" {
			out = append(out, x)
		}
		start = i + 1
	}
	if x := strings.TrimSpace(string(rs[start:])); x != "" {
		out = append(out, x)
	}
	return out
}
