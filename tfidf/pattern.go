package tfidf

import (
	"fmt"
	"regexp"
	"strings"
)

// Unicode classes for the Python escapes RE2 only implements for ASCII
const (
	wordClass  = `\p{L}\p{N}_`
	digitClass = `\p{Nd}`
	spaceClass = `\s\p{Z}`
)

// wordRunPattern matches patterns of the form \b<word atoms>\b, for example \b\w+\b
// or \b\w{3,}\b
var wordRunPattern = regexp.MustCompile(`^\\b((?:\\w(?:\+|\*|\{\d+(?:,\d*)?\})?)+)\\b$`)

// unboundedQuantifier reports whether a word-run body can grow without limit
var unboundedQuantifier = regexp.MustCompile(`\+|\*|\{\d+,\}`)

func compileTokenPattern(pattern string) (*regexp.Regexp, bool, error) {
	if pattern == "" || pattern == DefaultTokenPattern {
		return regexp.MustCompile(unicodeWordPattern), false, nil
	}

	expr := strings.TrimPrefix(pattern, "(?u)")

	// Leftmost-first matching of an unbounded word run already starts and stops at word
	// boundaries, so the \b anchors can be dropped.
	if m := wordRunPattern.FindStringSubmatch(expr); m != nil && unboundedQuantifier.MatchString(m[1]) {
		expr = m[1]
	}

	translated, err := unicodeEscapes(expr)
	if err != nil {
		return nil, false, fmt.Errorf("invalid token_pattern %q: %w", pattern, err)
	}

	re, err := regexp.Compile(translated)
	if err != nil {
		return nil, false, fmt.Errorf("invalid token_pattern %q: %w", pattern, err)
	}

	switch re.NumSubexp() {
	case 0:
		return re, false, nil
	case 1:
		return re, true, nil
	default:
		return nil, false, fmt.Errorf("token_pattern %q has %d capturing groups, at most 1 allowed", pattern, re.NumSubexp())
	}
}

// unicodeEscapes rewrites \w \W \d \D \s \S into Unicode classes. Word boundaries
// cannot be expressed in RE2 with Unicode semantics and are rejected.
func unicodeEscapes(expr string) (string, error) {
	var b strings.Builder
	inClass := false
	classStart := -1

	for i := 0; i < len(expr); i++ {
		c := expr[i]

		if c == '\\' && i+1 < len(expr) {
			next := expr[i+1]
			i++
			switch next {
			case 'w', 'd', 's':
				class := map[byte]string{'w': wordClass, 'd': digitClass, 's': spaceClass}[next]
				if inClass {
					b.WriteString(class)
				} else {
					b.WriteString("[" + class + "]")
				}
			case 'W', 'D', 'S':
				if inClass {
					return "", fmt.Errorf(`\%c inside a character class is not supported`, next)
				}
				class := map[byte]string{'W': wordClass, 'D': digitClass, 'S': spaceClass}[next]
				b.WriteString("[^" + class + "]")
			case 'b', 'B':
				if inClass {
					b.WriteByte('\\')
					b.WriteByte(next)
					continue
				}
				return "", fmt.Errorf(`\%c only matches ASCII word boundaries here`, next)
			default:
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			continue
		}

		switch {
		case c == '[' && !inClass:
			inClass = true
			classStart = b.Len()
		case c == ']' && inClass:
			// a ] right after [ or [^ is a literal
			body := b.String()[classStart+1:]
			if body != "" && body != "^" {
				inClass = false
			}
		}
		b.WriteByte(c)
	}

	return b.String(), nil
}
