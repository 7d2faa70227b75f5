package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "episode.srt", "episode.srt"},
		{"spaces kept", "my show s01e01.mkv", "my show s01e01.mkv"},
		{"unicode kept", "épisode 動画.srt", "épisode 動画.srt"},
		{"quote", `evil".srt`, "evil_.srt"},
		{"slash", "../../etc/passwd", ".._.._etc_passwd"},
		{"backslash", `C:\Users\x.srt`, "C__Users_x.srt"},
		{"header injection", "a\r\nX-Bad: 1.srt", "a__X-Bad_ 1.srt"},
		{"control chars", "a\x00b\x7f.srt", "a_b_.srt"},
		{"surrounding space", "  clip.mp4  ", "clip.mp4"},
		{"empty", "", "upload"},
		{"only separators", "///", "upload"},
		{"only dots", "..", "upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	t.Run("keeps extension", func(t *testing.T) {
		got := SanitizeFilename(strings.Repeat("a", 300) + ".srt")
		assert.Len(t, got, maxFilenameLength)
		assert.True(t, strings.HasSuffix(got, ".srt"))
	})

	t.Run("never splits a rune", func(t *testing.T) {
		got := SanitizeFilename(strings.Repeat("é", 200) + ".vtt")
		assert.LessOrEqual(t, len(got), maxFilenameLength)
		assert.True(t, strings.HasSuffix(got, ".vtt"))
		assert.True(t, strings.HasPrefix(got, "é"))
		assert.NotContains(t, got, "\uFFFD")
	})

	t.Run("no extension", func(t *testing.T) {
		got := SanitizeFilename(strings.Repeat("b", 400))
		assert.Len(t, got, maxFilenameLength)
	})
}

func TestCleanBackendPath(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", "/", false},
		{"/", "/", false},
		{"media/shows", "/media/shows", false},
		{"/media//shows/", "/media/shows", false},
		{"/media/./shows", "/media/shows", false},
		{"/media/../etc", "", true},
		{"..", "", true},
		{"a\\b", "", true},
		{"a\x00b", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := CleanBackendPath(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
