package validation

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const maxFilenameLength = 255

var ErrInvalidPath = errors.New("invalid path")

// SanitizeFilename makes a client-supplied upload name safe to forward in a
// multipart header. Separators, quotes and control characters become "_",
// Unicode is kept, and the result is cut to 255 bytes with its extension
// preserved. Empty results become "upload".
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 32 || r == 127:
			return '_'
		case strings.ContainsRune(`"\/:`, r):
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if strings.Trim(name, "_.") == "" {
		return "upload"
	}
	if len(name) <= maxFilenameLength {
		return name
	}

	ext := filepath.Ext(name)
	if ext == "" || len(ext) >= maxFilenameLength/2 {
		return truncateUTF8(name, maxFilenameLength)
	}
	return truncateUTF8(strings.TrimSuffix(name, ext), maxFilenameLength-len(ext)) + ext
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// CleanBackendPath normalizes a path inside the backend's media root. It
// always returns an absolute slash path and rejects traversal or NUL bytes.
func CleanBackendPath(p string) (string, error) {
	if strings.ContainsRune(p, 0) || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return path.Clean("/" + p), nil
}
