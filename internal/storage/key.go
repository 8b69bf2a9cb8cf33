package storage

import (
	"strings"
	"unicode"

	"dahdouh-ai/internal/pkg/chatid"
)

const (
	maxNameRunes    = 100
	placeholderName = "upload"
)

// SanitizeName keeps letters and digits of any script plus '.', '-' and '_'.
// Everything else, including path separators and whitespace, is dropped.
func SanitizeName(name string) string {
	var b strings.Builder
	n := 0
	for _, r := range name {
		if n >= maxNameRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
			n++
		}
	}
	return strings.Trim(b.String(), ".")
}

// NewKey builds "<ULID>-<sanitized name>". ULIDs are time ordered and unique per
// process, so two uploads of the same name never collide. ext is used for the
// placeholder name when nothing survives sanitization.
func NewKey(suggestedName, ext string) string {
	name := SanitizeName(suggestedName)
	if name == "" {
		if ext == "" {
			ext = ".jpg"
		}
		name = placeholderName + ext
	}
	return chatid.New() + "-" + name
}
