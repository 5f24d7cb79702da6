package media

import (
	"strings"
	"unicode/utf8"

	"github.com/grafana/regexp"
)

// maxNameLen is the longest file name most filesystems accept.
const maxNameLen = 255

var (
	unsafeRunes = regexp.MustCompile(`[/\x00-\x1f\x7f]+`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// FileName builds the listed name of an item: the sanitized title, the
// item id in brackets and the extension. The result never contains a
// slash and never starts with a space, so it cannot be mistaken for a
// control file.
func FileName(title, id, ext string) string {
	suffix := "[" + strings.ReplaceAll(id, "/", "_") + "]." + ext

	t := unsafeRunes.ReplaceAllString(title, " ")
	t = whitespace.ReplaceAllString(t, " ")
	t = strings.TrimLeft(t, " .")
	t = strings.TrimRight(t, " ")

	if t == "" {
		return suffix
	}

	budget := maxNameLen - len(suffix) - 1
	if len(t) > budget {
		t = truncate(t, budget)
		t = strings.TrimRight(t, " ")
	}
	return t + " " + suffix
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
