// Package validation checks user-supplied uploads and paths before they are
// forwarded to the job backend.
package validation

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/bnema/mediadesk/internal/domain"
)

var (
	ErrDisallowedFileType = errors.New("file type not allowed")
	ErrEmptyFile          = errors.New("file is empty")
)

const sniffLen = 512

var mediaTypes = map[string]bool{
	"video/mp4":        true,
	"video/webm":       true,
	"video/quicktime":  true,
	"video/x-matroska": true,
	"video/avi":        true,
	"audio/mpeg":       true,
	"audio/ogg":        true,
	"application/ogg":  true,
	"audio/wave":       true,
	"audio/flac":       true,
	"audio/aac":        true,
}

// Sniffed is an upload whose leading bytes have been inspected. Reader still
// yields the complete content.
type Sniffed struct {
	Reader io.Reader
	MIME   string
}

// SniffUpload peeks at the first bytes of r and checks them against what the
// job kind accepts: text subtitles for translation, audio or video otherwise.
// The upload is never buffered beyond the peeked bytes.
func SniffUpload(r io.Reader, kind domain.JobKind) (Sniffed, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Sniffed{}, fmt.Errorf("read upload header: %w", err)
	}
	if len(head) == 0 {
		return Sniffed{}, ErrEmptyFile
	}

	mime := detect(head)
	allowed := false
	switch kind {
	case domain.JobKindSubtitleTranslation:
		allowed = isSubtitle(mime)
	case domain.JobKindDubbing:
		allowed = mediaTypes[mime]
	default:
		return Sniffed{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedKind, kind)
	}
	if !allowed {
		return Sniffed{}, fmt.Errorf("%w: %s", ErrDisallowedFileType, mime)
	}
	return Sniffed{Reader: br, MIME: mime}, nil
}

func isSubtitle(mime string) bool {
	switch mime {
	case "text/vtt", "text/x-ssa", "application/x-subrip":
		return true
	}
	return false
}

func detect(head []byte) string {
	if m := detectContainer(head); m != "" {
		return m
	}
	if m := detectSubtitle(head); m != "" {
		return m
	}
	m := http.DetectContentType(head)
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return m
}

func detectContainer(b []byte) string {
	switch {
	case len(b) >= 4 && bytes.Equal(b[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		if bytes.Contains(b, []byte("webm")) {
			return "video/webm"
		}
		return "video/x-matroska"
	case len(b) >= 4 && string(b[:4]) == "fLaC":
		return "audio/flac"
	case len(b) >= 3 && string(b[:3]) == "ID3":
		return "audio/mpeg"
	case len(b) >= 2 && b[0] == 0xFF && (b[1]&0xF6) == 0xF0:
		return "audio/aac"
	case len(b) >= 2 && b[0] == 0xFF && (b[1]&0xE0) == 0xE0:
		return "audio/mpeg"
	case len(b) >= 12 && string(b[4:8]) == "ftyp":
		if string(b[8:12]) == "qt  " {
			return "video/quicktime"
		}
		return "video/mp4"
	}
	return ""
}

// detectSubtitle recognises WebVTT, SSA/ASS and SubRip from their first
// non-blank line. Binary or non-UTF-8 content never matches.
func detectSubtitle(b []byte) string {
	b = bytes.TrimPrefix(b, []byte("\xEF\xBB\xBF"))
	if !utf8.Valid(trimPartialRune(b)) || bytes.IndexByte(b, 0) >= 0 {
		return ""
	}
	text := strings.TrimLeft(string(b), " \t\r\n")
	first, _, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)

	switch {
	case strings.HasPrefix(first, "WEBVTT"):
		return "text/vtt"
	case strings.EqualFold(first, "[Script Info]"):
		return "text/x-ssa"
	case isCounter(first) && strings.Contains(text, "-->"):
		return "application/x-subrip"
	}
	return ""
}

func isCounter(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// trimPartialRune drops a multi-byte sequence cut off by the peek window.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && i < len(b); i++ {
		if utf8.Valid(b[:len(b)-i]) {
			return b[:len(b)-i]
		}
	}
	return b
}
