// Package analysis turns raw text into normalized terms for indexing and querying.
package analysis

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Options control term normalization. Changing any of these invalidates
// previously indexed terms; callers must rebuild the index.
type Options struct {
	FoldAccents    bool
	EnableStemming bool
}

// Tokenizer is a pure, stateless text normalizer.
type Tokenizer struct {
	opts     Options
	unaccent transform.Transformer
}

// NewTokenizer creates a tokenizer with the given options.
func NewTokenizer(opts Options) *Tokenizer {
	t := &Tokenizer{opts: opts}
	if opts.FoldAccents {
		// NFD decompose, drop combining marks, recompose.
		t.unaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	}
	return t
}

// Tokenize converts text into a sequence of normalized terms. Markdown
// punctuation and URLs are stripped first, then the text is split on
// non-letter/digit/apostrophe/hyphen boundaries.
func (t *Tokenizer) Tokenize(text string) []string {
	text = stripURLs(text)

	var terms []string
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		if term := t.NormalizeTerm(current.String()); term != "" {
			terms = append(terms, term)
		}
		current.Reset()
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return terms
}

// NormalizeTerm lowercases, optionally folds accents and stems one term.
// Returns "" for terms shorter than 2 characters after normalization.
func (t *Tokenizer) NormalizeTerm(term string) string {
	term = strings.ToLower(strings.Trim(term, "'-"))
	if t.unaccent != nil {
		if folded, _, err := transform.String(t.unaccent, term); err == nil {
			term = folded
		}
	}
	if t.opts.EnableStemming {
		term = stem(term)
	}
	if len([]rune(term)) < 2 {
		return ""
	}
	return term
}

// stem is a light suffix-stripping heuristic, not a real stemmer: trailing
// 's is dropped, then "es" after a sibilant (boxes, branches) or a plain "s"
// (notes) when enough of the word remains. Words ending in "ss" are left alone.
func stem(term string) string {
	term = strings.TrimSuffix(term, "'s")
	if len(term) <= 3 || !strings.HasSuffix(term, "s") || strings.HasSuffix(term, "ss") {
		return term
	}
	if strings.HasSuffix(term, "es") {
		stemmed := term[:len(term)-2]
		for _, sibilant := range []string{"s", "x", "z", "ch", "sh"} {
			if strings.HasSuffix(stemmed, sibilant) {
				return stemmed
			}
		}
	}
	return term[:len(term)-1]
}

// stripURLs removes http(s) URLs so their fragments do not pollute the term set.
func stripURLs(text string) string {
	for {
		i := strings.Index(text, "http://")
		if j := strings.Index(text, "https://"); j != -1 && (i == -1 || j < i) {
			i = j
		}
		if i == -1 {
			return text
		}
		end := i
		for end < len(text) && !unicode.IsSpace(rune(text[end])) {
			end++
		}
		text = text[:i] + " " + text[end:]
	}
}
