package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// maxReplySize bounds what parseReply will look at.
const maxReplySize = 10 << 20

var fenceRegex = regexp.MustCompile("(?s)```(?:json|javascript|js)?\\s*\\n?(.*?)\\n?```")

// parseReply unmarshals a model reply into T. The raw text is tried first,
// then progressively repaired forms of it: fences removed, the first
// balanced JSON value cut out of surrounding prose, and comments, trailing
// commas and bare keys fixed.
func parseReply[T any](text string) (T, error) {
	var zero T
	if len(text) > maxReplySize {
		return zero, fmt.Errorf("reply exceeds size limit (%d > %d bytes)", len(text), maxReplySize)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return zero, errors.New("empty reply")
	}

	var firstErr error
	for i, candidate := range replyCandidates(trimmed) {
		var v T
		err := json.Unmarshal([]byte(candidate), &v)
		if err == nil {
			if i > 0 {
				slog.Debug("model reply needed repair", "attempt", i, "preview", truncate(trimmed, 80))
			}
			return v, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return zero, fmt.Errorf("no parseable JSON in reply: %w", firstErr)
}

// replyCandidates lists the texts parseReply tries, in order, without
// duplicates or empty entries.
func replyCandidates(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(text)
	unfenced := stripFences(text)
	add(unfenced)
	extracted := extractBalanced(unfenced)
	add(extracted)
	add(repairJSON(extracted))
	add(extractBalanced(repairJSON(unfenced)))
	return out
}

// stripFences returns the body of the first markdown code fence, or text
// itself without a wrapping pair of single backticks.
func stripFences(text string) string {
	if m := fenceRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if len(text) >= 2 && text[0] == '`' && text[len(text)-1] == '`' {
		return strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}

// extractBalanced returns the first complete JSON object or array in text.
// Brackets inside string literals are ignored. It returns "" when no
// balanced value is found.
func extractBalanced(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// repairJSON fixes the quirks models put into otherwise valid JSON: // and
// /* */ comments, trailing commas and unquoted object keys. String literals
// are copied untouched, so URLs and apostrophes survive.
func repairJSON(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	var last byte // last significant byte written outside a string
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				last = c
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)

		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			for i < len(text) && text[i] != '\n' {
				i++
			}
			if i < len(text) {
				b.WriteByte('\n')
			}

		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = len(text)
			} else {
				i += end + 3
			}

		case c == ',':
			if next := nextSignificant(text, i+1); next == '}' || next == ']' {
				continue
			}
			b.WriteByte(c)
			last = c

		case isIdentStart(c) && (last == '{' || last == ','):
			j := i
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			ident := text[i:j]
			if nextSignificant(text, j) == ':' {
				b.WriteString(`"` + ident + `"`)
			} else {
				b.WriteString(ident)
			}
			last = 'a'
			i = j - 1

		default:
			b.WriteByte(c)
			if !isSpace(c) {
				last = c
			}
		}
	}
	return b.String()
}

// nextSignificant returns the first non-space byte at or after i, skipping
// comments, or 0 at the end of text.
func nextSignificant(text string, i int) byte {
	for i < len(text) {
		switch {
		case isSpace(text[i]):
			i++
		case strings.HasPrefix(text[i:], "//"):
			nl := strings.IndexByte(text[i:], '\n')
			if nl < 0 {
				return 0
			}
			i += nl
		case strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				return 0
			}
			i += end + 4
		default:
			return text[i]
		}
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
