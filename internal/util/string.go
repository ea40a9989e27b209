package util

import (
	"strconv"
	"strings"
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

// Preview shortens payloads for log fields. Data URIs are reduced to their header
// so base64 image bodies never land in the logs.
func Preview(s string, maxRunes int) string {
	if strings.HasPrefix(s, "data:") {
		if idx := strings.IndexByte(s, ','); idx >= 0 {
			return s[:idx+1] + "<" + strconv.Itoa(len(s)-idx-1) + " bytes>"
		}
	}
	return TruncateString(s, maxRunes)
}
