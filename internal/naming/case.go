// Package naming derives file paths, exported symbols and route constants for
// generated code from operation tags and identifiers.
package naming

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Words splits an identifier into its words. Any non-alphanumeric rune is a
// separator, and case transitions start new words while keeping acronyms
// together: "getHTTPStatus" -> ["get", "HTTP", "Status"].
func Words(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 && unicode.IsUpper(r) {
			prev := cur[len(cur)-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// ToPascalCase joins words with their first letter upper-cased. Acronyms are
// preserved: "get_user_by_id" -> "GetUserById", "HTTPStatus" -> "HTTPStatus".
func ToPascalCase(s string) string {
	// Casers keep internal state, so one per call.
	title := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, w := range Words(s) {
		b.WriteString(title.String(w))
	}
	return b.String()
}

// ToCamelCase is ToPascalCase with the first word lower-cased.
func ToCamelCase(s string) string {
	words := Words(s)
	if len(words) == 0 {
		return ""
	}
	title := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	b.WriteString(strings.ToLower(words[0]))
	for _, w := range words[1:] {
		b.WriteString(title.String(w))
	}
	return b.String()
}

// ToKebabCase lower-cases every word and joins them with hyphens.
func ToKebabCase(s string) string { return joinLower(s, "-") }

// ToSnakeCase lower-cases every word and joins them with underscores.
func ToSnakeCase(s string) string { return joinLower(s, "_") }

// ToScreamingSnake upper-cases every word and joins them with underscores.
func ToScreamingSnake(s string) string { return strings.ToUpper(joinLower(s, "_")) }

func joinLower(s, sep string) string {
	words := Words(s)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, sep)
}
