package prompt

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{[A-Z][A-Z0-9_]*\}`)

// ExtractPlaceholders returns the distinct {UPPER_SNAKE_CASE} tokens found in
// content, in order of first appearance.
func ExtractPlaceholders(content string) []string {
	matches := placeholderPattern.FindAllString(content, -1)
	seen := make(map[string]bool, len(matches))
	var tokens []string
	for _, m := range matches {
		if !seen[m] {
			tokens = append(tokens, m)
			seen[m] = true
		}
	}
	return tokens
}

// MissingPlaceholders reports every token of required that does not occur
// literally in content, preserving the order of required.
func MissingPlaceholders(content string, required []string) []string {
	var missing []string
	for _, token := range required {
		if !strings.Contains(content, token) {
			missing = append(missing, token)
		}
	}
	return missing
}

// Render substitutes placeholder tokens with values keyed by token name
// without braces (KEYWORD, not {KEYWORD}). Unknown tokens are left as is.
func Render(content string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		if v, ok := values[match[1:len(match)-1]]; ok {
			return v
		}
		return match
	})
}
