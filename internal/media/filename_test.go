package media

import (
	"path/filepath"
	"strings"
	"testing"

	"tgarchive/pkg/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain name passes through",
			input:    "report.pdf",
			expected: "report.pdf",
		},
		{
			name:     "path separators replaced",
			input:    "a/b\\c.txt",
			expected: "a-b-c.txt",
		},
		{
			name:     "invalid characters replaced",
			input:    `what<is>this:"file"?.jpg`,
			expected: "what-is-this--file--.jpg",
		},
		{
			name:     "control characters replaced",
			input:    "bad\x00\x1fname.png",
			expected: "bad--name.png",
		},
		{
			name:     "whitespace runs collapsed",
			input:    "my   holiday\t\tphoto.jpg",
			expected: "my holiday photo.jpg",
		},
		{
			name:     "leading and trailing dots trimmed",
			input:    "..hidden..",
			expected: "hidden",
		},
		{
			name:     "empty input falls back",
			input:    "",
			expected: "file",
		},
		{
			name:     "only invalid characters falls back",
			input:    "   ...   ",
			expected: "file",
		},
		{
			name:     "windows reserved name suffixed",
			input:    "CON.txt",
			expected: "CON_.txt",
		},
		{
			name:     "windows reserved name case insensitive",
			input:    "nul",
			expected: "nul_",
		},
		{
			name:     "overlong extension dropped",
			input:    "archive." + strings.Repeat("x", 30),
			expected: "archive." + strings.Repeat("x", 30),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilenameTruncatesLongNames(t *testing.T) {
	long := strings.Repeat("a", 300) + ".txt"
	got := SanitizeFilename(long)

	assert.LessOrEqual(t, len(got), 180)
	assert.Equal(t, ".txt", filepath.Ext(got))
}

func TestSanitizeFilenameTruncatesOnRuneBoundary(t *testing.T) {
	// Multibyte runes must not be split mid-sequence
	long := strings.Repeat("ü", 200) + ".txt"
	got := SanitizeFilename(long)

	assert.LessOrEqual(t, len(got), 180)
	assert.True(t, strings.HasSuffix(got, ".txt"))
	for _, r := range got {
		assert.NotEqual(t, '�', r, "truncation produced an invalid rune")
	}
}

func TestInferFilename(t *testing.T) {
	size := int64(100)

	tests := []struct {
		name     string
		media    *telegram.Media
		expected string
	}{
		{
			name:     "nil media",
			media:    nil,
			expected: "file",
		},
		{
			name: "original name wins",
			media: &telegram.Media{
				Kind:     telegram.MediaKindDocument,
				FileName: "Invoice 2025.pdf",
				FileSize: &size,
			},
			expected: "Invoice 2025.pdf",
		},
		{
			name: "original name sanitized",
			media: &telegram.Media{
				Kind:     telegram.MediaKindDocument,
				FileName: "notes/today.txt",
			},
			expected: "notes-today.txt",
		},
		{
			name: "voice gets ogg",
			media: &telegram.Media{
				Kind:         telegram.MediaKindVoice,
				FileUniqueID: "abc123",
			},
			expected: "voice_abc123.ogg",
		},
		{
			name: "sticker gets webp",
			media: &telegram.Media{
				Kind:         telegram.MediaKindSticker,
				FileUniqueID: "abc123",
			},
			expected: "sticker_abc123.webp",
		},
		{
			name: "unique id missing falls back",
			media: &telegram.Media{
				Kind: telegram.MediaKindVoice,
			},
			expected: "voice_media.ogg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InferFilename(tt.media))
		})
	}
}

func TestInferFilenameUsesMimeExtension(t *testing.T) {
	got := InferFilename(&telegram.Media{
		Kind:         telegram.MediaKindPhoto,
		MimeType:     "image/jpeg",
		FileUniqueID: "abc123",
	})

	require.True(t, strings.HasPrefix(got, "photo_abc123."))
	ext := filepath.Ext(got)
	assert.Contains(t, []string{".jpe", ".jpeg", ".jpg"}, ext)
}
