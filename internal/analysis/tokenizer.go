package analysis

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var quotes = strings.NewReplacer("\u2019", "'", "\u2018", "'")

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s'\-]+`)
)

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CleanText decodes HTML entities, drops URLs and punctuation (apostrophes and
// hyphens are kept for contractions and compounds) and squeezes whitespace.
// Typographic single quotes become plain apostrophes.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := quotes.Replace(html.UnescapeString(input))
	decoded = RemoveURLs(decoded)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// Tokenize splits text into terms in their original order and case.
// Leading and trailing hyphens or apostrophes are stripped from every term.
func Tokenize(text string) []string {
	clean := CleanText(text)
	if clean == "" {
		return nil
	}

	fields := strings.Fields(clean)
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
