package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

var (
	fencedJSONRe    = regexp.MustCompile("(?s)```json\\s*(.+?)\\s*```")
	fencedAnyRe     = regexp.MustCompile("(?s)```\\s*(.+?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)(\w+)(\s*:)`)
	controlCharsRe  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// ExtractAIJSON pulls a JSON document out of model output that may be:
//   - pure JSON
//   - wrapped in a markdown code fence
//   - surrounded by prose
//   - slightly malformed (trailing commas, unquoted keys, single quotes)
//
// It returns the first candidate that is valid JSON.
func ExtractAIJSON(input string) ([]byte, error) {
	input = strings.TrimSpace(strings.TrimPrefix(input, "\ufeff"))
	if input == "" {
		return nil, fmt.Errorf("empty input")
	}

	candidates := []func(string) string{
		func(s string) string { return s },
		extractFromMarkdown,
		extractJSONFromText,
		func(s string) string { return cleanAndFixJSON(extractJSONFromText(s)) },
		cleanAndFixJSON,
	}
	for _, extract := range candidates {
		c := extract(input)
		if c != "" && json.Valid([]byte(c)) {
			return []byte(c), nil
		}
	}

	return nil, fmt.Errorf("failed to parse JSON from input: %s", Truncate(input, 100))
}

// ParseAIJSON extracts JSON from model output and decodes it into target.
func ParseAIJSON(input string, target interface{}) error {
	raw, err := ExtractAIJSON(input)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decoding JSON: %w", err)
	}
	return nil
}

// extractFromMarkdown returns the body of the first ```json or ``` fence
func extractFromMarkdown(input string) string {
	if m := fencedJSONRe.FindStringSubmatch(input); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if m := fencedAnyRe.FindStringSubmatch(input); len(m) > 1 {
		content := strings.TrimSpace(m[1])
		if strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[") {
			return content
		}
	}
	return ""
}

// extractJSONFromText finds the first balanced object, or failing that array
func extractJSONFromText(input string) string {
	if start := strings.Index(input, "{"); start >= 0 {
		if extracted := extractBalanced(input[start:], '{', '}'); extracted != "" {
			return extracted
		}
	}
	if start := strings.Index(input, "["); start >= 0 {
		if extracted := extractBalanced(input[start:], '[', ']'); extracted != "" {
			return extracted
		}
	}
	return ""
}

// extractBalanced returns the prefix of input up to the matching close
// delimiter, ignoring delimiters inside string literals
func extractBalanced(input string, open, close rune) string {
	depth := 0
	inString := false
	escape := false

	for i, ch := range input {
		switch {
		case escape:
			escape = false
		case ch == '\\':
			escape = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return input[:i+1]
			}
		}
	}
	return ""
}

// cleanAndFixJSON repairs the mistakes models commonly make
func cleanAndFixJSON(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = fixSingleQuotes(s)
	return controlCharsRe.ReplaceAllString(s, "")
}

// fixSingleQuotes turns single-quoted tokens into double-quoted ones.
// Apostrophes inside words and inside double-quoted strings are kept.
func fixSingleQuotes(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	inDouble := false
	inSingle := false
	escape := false
	var prev rune

	for _, ch := range input {
		switch {
		case escape:
			escape = false
		case ch == '\\':
			escape = true
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case ch == '\'' && !inDouble:
			if inSingle {
				inSingle = false
				ch = '"'
			} else if prev == 0 || strings.ContainsRune(":,[{ ", prev) {
				inSingle = true
				ch = '"'
			}
		}
		b.WriteRune(ch)
		prev = ch
	}
	return b.String()
}

// Truncate shortens s to at most maxLen bytes plus an ellipsis, cutting on
// a rune boundary.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
