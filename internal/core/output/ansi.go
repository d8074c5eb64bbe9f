package output

import (
	"regexp"
	"strings"
)

// csiRe matches a CSI control sequence: ESC '[', parameter bytes,
// intermediate bytes and one final byte. Colour (m) and erase (K) codes are
// the common case in tool output.
var csiRe = regexp.MustCompile("\x1b\\[[0-?]*[ -/]*[@-~]")

// StripANSI removes CSI sequences and keeps every other byte in order.
func StripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	return csiRe.ReplaceAllLiteralString(s, "")
}

// Slug derives a filesystem-safe name: lowercase, runs of anything other
// than [a-z0-9] collapsed to one underscore, no leading or trailing
// underscores.
func Slug(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	sep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
			continue
		}
		sep = true
	}
	return b.String()
}
