package absa

import "strings"

// Reserved delimiter characters per paradigm. Raw span text containing one of
// these would corrupt the target grammar, so the serializer backslash-escapes
// them and the parser splits only on unescaped occurrences. This keeps the
// grammar a bijection even for colliding input (see DESIGN.md for the policy
// decision).
const (
	extractionReserved = `;,\`
	annotationReserved = `[]|\`
)

// escape backslash-escapes every reserved character in s. The second result
// reports whether any escaping took place, so callers can log the collision.
func escape(s, reserved string) (string, bool) {
	if !strings.ContainsAny(s, reserved) {
		return s, false
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(reserved, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String(), true
}

// unescape removes backslash escapes. A trailing lone backslash is kept
// literal rather than dropped.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitUnescaped splits s on every unescaped occurrence of sep.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// indexUnescaped returns the index of the first unescaped occurrence of c in
// s at or after from, or -1.
func indexUnescaped(s string, c byte, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case c:
			return i
		}
	}
	return -1
}
