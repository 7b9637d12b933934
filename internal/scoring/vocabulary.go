package scoring

import (
	"sort"
	"strings"
	"unicode"
)

// categoryVocabulary is the fixed word list used to recognize an expense
// category in raw text. Order matters: GuessCategory returns the first hit.
var categoryVocabulary = []struct {
	category string
	words    []string
}{
	{"rent", []string{"rent", "lease", "accommodation", "premises", "rental"}},
	{"consultancy", []string{"consult", "professional", "consulting", "fees", "services", "advice"}},
	{"salary", []string{"salary", "wages", "remuneration", "compensation", "payroll"}},
	{"contract", []string{"contract", "catering", "supply", "maintenance", "repair"}},
}

// GuessCategory returns the first category whose vocabulary appears in text,
// or "" when none does.
func GuessCategory(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range categoryVocabulary {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				return entry.category
			}
		}
	}
	return ""
}

// CategoryWords returns the vocabulary for a category.
func CategoryWords(category string) []string {
	for _, entry := range categoryVocabulary {
		if entry.category == strings.ToLower(category) {
			return append([]string(nil), entry.words...)
		}
	}
	return nil
}

// ExtractKeywords picks the words a learned rule should look for in future
// documents: the category vocabulary found in text, then the remaining
// alphabetic words longer than two characters, de-duplicated and capped at limit.
func ExtractKeywords(text, category string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	lower := strings.ToLower(text)
	seen := make(map[string]struct{})
	var vocab, words []string

	for _, w := range CategoryWords(category) {
		if strings.Contains(lower, w) {
			if _, dup := seen[w]; !dup {
				seen[w] = struct{}{}
				vocab = append(vocab, w)
			}
		}
	}

	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if len(w) <= 2 || stopWords[w] {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}

	// Longer words are more distinctive; ties break alphabetically so the
	// result is stable for identical input.
	sort.SliceStable(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})

	out := append(vocab, words...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "from": true, "with": true,
	"invoice": true, "date": true, "amount": true, "total": true, "number": true,
	"bill": true, "net": true, "tds": true, "gst": true, "inr": true,
	"vendor": true, "category": true, "deduction": true,
}
