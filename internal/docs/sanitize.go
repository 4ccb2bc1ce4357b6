package docs

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const invalidFilenameChars = `<>:"/\|?*`

// Sanitize strips characters that are invalid in filenames on common
// filesystems. Spaces become underscores unless preserveSpaces is set. An
// empty result falls back to document_<unix seconds>.
func Sanitize(name string, preserveSpaces bool) string {
	safe := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidFilenameChars, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	safe = strings.TrimSpace(safe)
	if !preserveSpaces {
		safe = strings.ReplaceAll(safe, " ", "_")
	}
	if safe == "" {
		return fmt.Sprintf("document_%d", time.Now().Unix())
	}
	return safe
}
