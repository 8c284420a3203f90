package application

import (
	"encoding/json"
	"strings"
)

// findJSONCandidates returns every balanced top-level {...} block in s.
// Braces inside JSON strings are ignored, so prose around the object and
// fenced code blocks do not confuse it.
func findJSONCandidates(s string) []string {
	var (
		candidates []string
		depth      int
		start      = -1
		inString   bool
		escape     bool
	)

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				candidates = append(candidates, s[start:i+1])
				start = -1
			}
		}
	}
	return candidates
}

// firstJSONObject decodes the first candidate that unmarshals into v and
// satisfies accept. accept may be nil.
func firstJSONObject[T any](s string, accept func(T) bool) (T, bool) {
	var zero T
	for _, c := range findJSONCandidates(s) {
		var v T
		if err := json.Unmarshal([]byte(c), &v); err != nil {
			continue
		}
		if accept == nil || accept(v) {
			return v, true
		}
	}
	return zero, false
}

// looksLikeJSON reports whether text contains a decodable JSON object or
// starts like a JSON array.
func looksLikeJSON(text string) bool {
	for _, c := range findJSONCandidates(text) {
		if json.Valid([]byte(c)) {
			return true
		}
	}
	return strings.HasPrefix(strings.TrimSpace(text), "[")
}
