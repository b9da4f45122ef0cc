// Package textnorm provides deterministic text normalization for book
// titles and author strings. All functions are pure.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const tokenKeyLimit = 10

// stopwordsByLang covers articles and conjunctions per language so that
// translated titles tokenize comparably and language can be guessed from
// stopword density.
var stopwordsByLang = map[string]map[string]bool{
	"en": {
		"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	},
	"de": {
		"der": true, "die": true, "das": true, "ein": true, "eine": true,
		"einen": true, "und": true, "oder": true, "von": true, "dem": true,
	},
	"fr": {
		"le": true, "la": true, "les": true, "un": true, "une": true,
		"des": true, "et": true, "ou": true, "du": true, "de": true,
	},
	"es": {
		"el": true, "los": true, "las": true, "uno": true, "una": true,
		"y": true, "o": true, "del": true,
	},
	"it": {
		"il": true, "lo": true, "gli": true, "i": true, "e": true,
		"ed": true, "di": true,
	},
}

// stopwords is the union across languages.
var stopwords = func() map[string]bool {
	all := make(map[string]bool)
	for _, set := range stopwordsByLang {
		for word := range set {
			all[word] = true
		}
	}
	return all
}()

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics and punctuation, and collapses
// whitespace.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	folded, _, err := transform.String(stripMarks, text)
	if err != nil {
		// Transform failures only happen on invalid UTF-8; fall back to
		// the raw input rather than dropping the text.
		folded = text
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace && b.Len() > 0:
			b.WriteRune(' ')
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

// TitleTokens normalizes a title and splits it into tokens with stopwords
// removed.
func TitleTokens(title string) []string {
	fields := strings.Fields(Normalize(title))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if !stopwords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TitleTokenKey joins the first ten filtered title tokens into a
// near-duplicate fingerprint.
func TitleTokenKey(title string) string {
	tokens := TitleTokens(title)
	if len(tokens) > tokenKeyLimit {
		tokens = tokens[:tokenKeyLimit]
	}
	return strings.Join(tokens, " ")
}

// PrimaryAuthor returns the first comma-separated segment of an authors
// field, trimmed.
func PrimaryAuthor(authors string) string {
	if authors == "" {
		return ""
	}
	first, _, _ := strings.Cut(authors, ",")
	return strings.TrimSpace(first)
}

// PrimaryAuthorKey is the normalized form of the primary author, used as a
// grouping key.
func PrimaryAuthorKey(authors string) string {
	return Normalize(PrimaryAuthor(authors))
}

// AuthorLastToken returns the normalized last name token of the primary
// author, the author component of the weakest canonical-key fallback.
func AuthorLastToken(authors string) string {
	fields := strings.Fields(PrimaryAuthorKey(authors))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// SplitAuthors splits a comma-joined authors field into trimmed names.
func SplitAuthors(authors string) []string {
	parts := strings.Split(authors, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsStopword reports whether the normalized token is in the multilingual
// stopword set.
func IsStopword(token string) bool {
	return stopwords[token]
}

// IsStopwordIn reports whether the normalized token is a stopword of the
// given language. Unknown languages match nothing.
func IsStopwordIn(token, lang string) bool {
	set, ok := stopwordsByLang[lang]
	return ok && set[token]
}
