package wardrobe

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Categories is the fixed set the image classifier must choose from.
var Categories = []string{
	"ВЕРХНЯЯ ОДЕЖДА",
	"ПИДЖАК",
	"ЮБКА",
	"ПЛАТЬЕ",
	"ШТАНЫ",
	"КОФТА",
	"ЖИЛЕТ",
	"РУБАШКА",
	"ТОПЫ",
	"ФУТБОЛКА",
	"СУМКА",
	"ОБУВЬ",
	"УКРАШЕНИЯ И АКСЕССУАРЫ",
}

// Casers keep state between calls, so each call builds its own.
func toUpper(s string) string { return cases.Upper(language.Russian).String(s) }
func toLower(s string) string { return cases.Lower(language.Russian).String(s) }

// NormalizeCategory trims s and capitalises it: first letter upper, the rest lower.
func NormalizeCategory(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(s)
	return toUpper(string(first)) + toLower(s[size:])
}

// IsKnownCategory reports whether s names one of Categories, ignoring case.
func IsKnownCategory(s string) bool {
	fold := cases.Fold()
	key := fold.String(strings.TrimSpace(s))
	for _, c := range Categories {
		if fold.String(c) == key {
			return true
		}
	}
	return false
}

// SanitizeDescription removes NUL bytes and control characters, turns line
// breaks and tabs into spaces, and trims the result.
func SanitizeDescription(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0:
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// FormatListing renders a user's wardrobe as a Markdown message grouped by
// category, categories in sorted order.
func FormatListing(items map[string][]string) string {
	if len(items) == 0 {
		return "🧥 Гардероб пока пуст."
	}

	cats := make([]string, 0, len(items))
	for c := range items {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	var b strings.Builder
	b.WriteString("👗 *Твой гардероб:*\n")
	for _, c := range cats {
		b.WriteString("\n*" + c + "*\n")
		for _, item := range items[c] {
			b.WriteString("• " + item + "\n")
		}
	}
	return b.String()
}
