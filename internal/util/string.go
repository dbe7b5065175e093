package util

import (
	"strings"
	"unicode"
)

// TruncateString truncates a string to maxRunes characters (rune-based, not byte-based)
// If truncated, appends "..." to the result
func TruncateString(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// Normalize performs basic string normalization (lowercase + trim)
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Slugify converts a persona name to the lowercase, hyphen-separated form used
// in artifact file names. Runs of non-alphanumeric characters collapse into one
// hyphen; an empty result becomes "persona".
func Slugify(name string) string {
	var builder strings.Builder
	pendingHyphen := false
	for _, r := range Normalize(name) {
		switch {
		case r == '\'' || r == '.' || r == '!':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingHyphen && builder.Len() > 0 {
				builder.WriteByte('-')
			}
			pendingHyphen = false
			builder.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	if builder.Len() == 0 {
		return "persona"
	}
	return builder.String()
}

// ContainsAny reports whether s contains any of the keywords. Both sides are
// compared in lower case.
func ContainsAny(s string, keywords []string) bool {
	return FirstMatch(s, keywords) != ""
}

// FirstMatch returns the first keyword contained in s (case-insensitive), or "".
func FirstMatch(s string, keywords []string) string {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// FirstNonEmpty returns the first value that is not blank after trimming.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
