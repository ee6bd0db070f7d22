// Package textnorm holds the string folding used to compare free-text
// upstream values: diacritic removal, whitespace collapsing, title casing
// and URL slugs.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes combining marks. Polish ł/Ł carries no combining
// mark under NFD and is mapped explicitly.
func StripDiacritics(s string) string {
	// transform.Chain keeps state, so a fresh chain is built per call.
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			switch r {
			case 'ł':
				return 'l'
			case 'Ł':
				return 'L'
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CollapseSpaces trims s and replaces every whitespace run with one space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fold lowercases, strips diacritics and collapses whitespace.
func Fold(s string) string {
	return CollapseSpaces(strings.ToLower(StripDiacritics(s)))
}

// Title applies Polish title casing after collapsing whitespace.
func Title(s string) string {
	s = CollapseSpaces(s)
	if s == "" {
		return ""
	}
	return cases.Title(language.Polish).String(s)
}

// Slug joins the folded words of parts with hyphens, keeping only ASCII
// letters and digits.
func Slug(parts ...string) string {
	var words []string
	for _, p := range parts {
		folded := Fold(p)
		words = append(words, strings.FieldsFunc(folded, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		})...)
	}
	return strings.Join(words, "-")
}
