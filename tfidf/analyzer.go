package tfidf

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultTokenPattern is the token pattern scikit-learn vectorizers are fitted with
// unless told otherwise.
const DefaultTokenPattern = `(?u)\b\w\w+\b`

// unicodeWordPattern matches the same maximal runs as DefaultTokenPattern. RE2 only knows
// ASCII \w and \b, so the default is rewritten with explicit Unicode classes.
const unicodeWordPattern = `[\p{L}\p{N}_]{2,}`

const (
	accentsNone    = ""
	accentsUnicode = "unicode"
	accentsASCII   = "ascii"
)

// analyzer turns a raw document into the list of terms looked up in the vocabulary
type analyzer struct {
	lowercase    bool
	stripAccents string
	token        *regexp.Regexp
	useGroup     bool
	stopWords    map[string]struct{}
	minN, maxN   int
}

// preprocess lowercases then strips accents, in that order
func (a *analyzer) preprocess(doc string) string {
	if a.lowercase {
		// cases.Caser keeps state and must not be shared between goroutines
		doc = cases.Lower(language.Und).String(doc)
	}

	switch a.stripAccents {
	case accentsUnicode:
		t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
		doc, _, _ = transform.String(t, doc)
	case accentsASCII:
		t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
			return r > unicode.MaxASCII
		})))
		doc, _, _ = transform.String(t, doc)
	}

	return doc
}

func (a *analyzer) tokenize(doc string) []string {
	if !a.useGroup {
		return a.token.FindAllString(doc, -1)
	}

	matches := a.token.FindAllStringSubmatch(doc, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, m[1])
	}
	return tokens
}

// ngrams expands tokens into the configured n-gram range, unigrams first, then each
// larger n in document order
func (a *analyzer) ngrams(tokens []string) []string {
	if len(a.stopWords) > 0 {
		kept := tokens[:0:0]
		for _, tok := range tokens {
			if _, stop := a.stopWords[tok]; !stop {
				kept = append(kept, tok)
			}
		}
		tokens = kept
	}

	if a.maxN == 1 {
		return tokens
	}

	minN := a.minN
	var terms []string
	if minN == 1 {
		terms = append(terms, tokens...)
		minN++
	}

	for n := minN; n <= a.maxN && n <= len(tokens); n++ {
		for i := 0; i+n <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+n], " "))
		}
	}

	return terms
}

// Analyze returns the terms produced for doc, before vocabulary lookup
func (a *analyzer) Analyze(doc string) []string {
	return a.ngrams(a.tokenize(a.preprocess(doc)))
}
