package lexical

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenRegex matches alphanumeric sequences (including underscores for initial split).
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Tokenize splits text into lowercase search tokens. It strips punctuation,
// splits snake_case and camelCase identifiers (knowledge bases carry plenty of
// code-flavored text), and filters tokens shorter than 2 characters.
func Tokenize(text string) []string {
	var tokens []string

	words := tokenRegex.FindAllString(text, -1)
	for _, word := range words {
		for _, t := range splitToken(word) {
			lower := strings.ToLower(t)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// ExtractKeywords tokenizes a query and drops stop words. If stop-word
// filtering leaves nothing, it falls back to the plain token stream so that
// queries made up entirely of common words still search.
func ExtractKeywords(query string) []string {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	keywords := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := stopWordSet[t]; !stop {
			keywords = append(keywords, t)
		}
	}

	if len(keywords) == 0 {
		return tokens
	}
	return keywords
}

// splitToken splits snake_case first, then camelCase within each part.
func splitToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

// splitCamelCase splits camelCase and PascalCase identifiers, keeping
// acronym runs together ("HTTPHandler" -> ["HTTP", "Handler"]).
func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// DefaultStopWords contains common English words excluded from keyword
// extraction. The list is intentionally short: over-aggressive filtering
// hurts recall more than an occasional noisy term hurts precision.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "do", "for",
	"from", "has", "have", "how", "in", "is", "it", "its", "of", "on",
	"or", "that", "the", "this", "to", "was", "what", "when", "where",
	"which", "who", "why", "will", "with",
}

var stopWordSet = buildStopWordSet(DefaultStopWords)

func buildStopWordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
