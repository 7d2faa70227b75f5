package domain

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// AutoLanguage is the source-language value that asks the backend to detect it.
const AutoLanguage = "auto"

// FormatBytes renders a byte count with binary units ("1.5 MiB").
func FormatBytes(size int64) string {
	if size <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(size))
}

// FormatDate renders a timestamp for listings. Zero times render as "-".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// FormatAge renders how long ago t was ("3 minutes ago").
func FormatAge(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.Time(t)
}

// NormalizeLanguageCode canonicalizes user or backend codes: "pt_br" -> "pt-BR".
// Unparseable codes are returned trimmed and lower-cased.
func NormalizeLanguageCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, AutoLanguage) {
		return strings.ToLower(code)
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return strings.ToLower(code)
	}
	return tag.String()
}

// LanguageLabel returns the English display name for a language code.
func LanguageLabel(code string) string {
	norm := NormalizeLanguageCode(code)
	switch norm {
	case "":
		return ""
	case AutoLanguage:
		return "Auto-detect"
	}
	tag, err := language.Parse(norm)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return norm
}

func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
