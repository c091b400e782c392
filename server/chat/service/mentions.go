package service

import (
	"strings"
	"unicode"
)

// ExtractMentions returns the distinct @tokens of content in order of first
// appearance, without the leading '@'.
func ExtractMentions(content string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, field := range strings.Fields(content) {
		idx := strings.IndexByte(field, '@')
		if idx < 0 {
			continue
		}
		// addresses such as ann@example.com are not mentions
		if idx > 0 {
			if prev := rune(field[idx-1]); unicode.IsLetter(prev) || unicode.IsDigit(prev) {
				continue
			}
		}
		token := strings.TrimRightFunc(field[idx+1:], func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.'
		})
		token = strings.TrimRight(token, ".")
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}
