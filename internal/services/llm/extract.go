package llm

import (
	"regexp"
	"strconv"
	"strings"
)

// fencePattern matches a fenced code block with optional json language hint
var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\n?(.*?)\n?\\s*```")

// ExtractJSON pulls a JSON object out of a model response. A fenced
// code block wins; otherwise the first balanced top-level {...} span
// is returned. Clean JSON input passes through unchanged, so the
// function is safe to apply twice.
func ExtractJSON(response string) string {
	s := strings.TrimSpace(response)
	if s == "" {
		return ""
	}

	if matches := fencePattern.FindStringSubmatch(s); len(matches) > 1 {
		s = strings.TrimSpace(matches[1])
	}

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}

	// First balanced top-level object, brace counting skips string literals
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}

	return ""
}

// percentPattern matches the first integer or decimal followed by a
// percent sign or the word "percent"
var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:%|percent)`)

// ExtractPercent parses the first percentage figure from a model
// response, clamped to [0,100]. Returns the fallback when no
// percentage appears.
func ExtractPercent(response string, fallback float64) float64 {
	matches := percentPattern.FindStringSubmatch(response)
	if len(matches) < 2 {
		return fallback
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return fallback
	}

	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
