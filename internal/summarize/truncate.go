package summarize

import (
	"strings"
	"unicode/utf8"
)

// Marker is appended to a truncated digest when content was dropped.
const Marker = " ..."

// Truncate shortens text to at most budget characters without calling out to
// anything. Whole sentences are kept in order until the next one would not
// fit; when even the first sentence is too long the text is cut at the last
// word boundary instead. Marker is appended whenever content was dropped.
//
// Lengths are counted in runes.
func Truncate(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= budget {
		return text
	}

	markerLen := utf8.RuneCountInString(Marker)
	if budget <= markerLen {
		return string([]rune(text)[:budget])
	}
	limit := budget - markerLen

	parts := sentences(text)
	var kept []string
	used := 0
	for _, s := range parts {
		n := utf8.RuneCountInString(s)
		if len(kept) > 0 {
			n++ // joining space
		}
		if used+n > limit {
			break
		}
		kept = append(kept, s)
		used += n
	}

	switch {
	case len(kept) == len(parts):
		// Only whitespace was dropped.
		return strings.Join(kept, " ")
	case len(kept) > 0:
		return strings.Join(kept, " ") + Marker
	default:
		return cutAtWord(text, limit) + Marker
	}
}

// sentences splits text after '.', '!' or '?' followed by whitespace and at
// blank lines. Segments are trimmed and empty ones dropped.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		end := -1
		switch c := text[i]; {
		case (c == '.' || c == '!' || c == '?') && i+1 < len(text) && isSpace(text[i+1]):
			end = i + 1
		case c == '\n' && i+1 < len(text) && text[i+1] == '\n':
			end = i
		}
		if end < 0 {
			continue
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func cutAtWord(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	cut := runes[:limit]
	for i := len(cut) - 1; i > limit/2; i-- {
		if cut[i] == ' ' || cut[i] == '\n' || cut[i] == '\t' {
			return strings.TrimRight(string(cut[:i]), " \n\t")
		}
	}
	return string(cut)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
