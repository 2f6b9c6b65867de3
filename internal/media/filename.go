package media

import (
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"tgarchive/internal/constants"
	"tgarchive/pkg/telegram"
)

var (
	invalidChars  = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Windows device names are invalid as bare filenames even with an extension,
// so sanitized names matching one get a trailing underscore.
var windowsReserved = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename normalizes a user-supplied filename into something safe to
// write on any filesystem the archive volume may be mounted with.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)
	name = invalidChars.ReplaceAllString(name, "-")
	name = whitespaceRun.ReplaceAllString(name, " ")
	name = strings.Trim(name, " .")
	if name == "" {
		name = "file"
	}

	ext := filepath.Ext(name)
	if len(ext) > constants.MaxExtensionLength {
		ext = ""
	}
	base := strings.TrimSuffix(name, ext)

	maxBase := constants.MaxFilenameLength - len(ext)
	base = truncateOnRuneBoundary(base, maxBase)
	base = strings.Trim(base, " .")
	if base == "" {
		base = "file"
	}

	if _, reserved := windowsReserved[strings.ToUpper(base)]; reserved {
		base += "_"
	}

	return base + ext
}

// truncateOnRuneBoundary cuts s to at most max bytes without splitting a
// UTF-8 sequence.
func truncateOnRuneBoundary(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// InferFilename picks a filename for a media attachment: the original name
// when the platform supplied one, otherwise a synthetic name derived from the
// media kind and the file's unique id.
func InferFilename(m *telegram.Media) string {
	if m == nil {
		return "file"
	}
	if m.FileName != "" {
		return SanitizeFilename(m.FileName)
	}

	ext := ""
	switch m.Kind {
	case telegram.MediaKindVoice:
		ext = ".ogg"
	case telegram.MediaKindSticker:
		ext = ".webp"
	default:
		if m.MimeType != "" {
			if exts, err := mime.ExtensionsByType(m.MimeType); err == nil && len(exts) > 0 {
				ext = exts[0]
			}
		}
	}

	uniqueID := m.FileUniqueID
	if uniqueID == "" {
		uniqueID = "media"
	}

	kind := string(m.Kind)
	if kind == "" {
		kind = string(telegram.MediaKindOther)
	}

	return SanitizeFilename(fmt.Sprintf("%s_%s%s", kind, uniqueID, ext))
}
