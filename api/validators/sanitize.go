package validators

import (
	"path/filepath"
	"strings"
)

func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// SanitizeFilename strips any directory part from an uploaded name.
func SanitizeFilename(input string, maxLen int) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(input), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return SanitizeString(name, maxLen)
}
