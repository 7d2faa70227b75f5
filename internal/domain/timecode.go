package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// maxLeadingDigits bounds the first timecode group so totals stay well inside int range.
const maxLeadingDigits = 6

// Timecode is a parsed user-supplied position or offset.
type Timecode struct {
	Raw        string
	Seconds    int
	Normalized string
}

// NormalizeOptions controls how NormalizeInput treats empty and "+"-prefixed input.
type NormalizeOptions struct {
	AllowRelative bool
	EmptyValue    string
}

// ParseAbsolute parses "M:SS" or "H:MM:SS". Minutes and seconds after the
// leading group must be below 60. The normalized form zero-pads every group
// to two digits and keeps the hours group only when it was supplied.
func ParseAbsolute(text string) (Timecode, bool) {
	parts := strings.Split(text, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Timecode{}, false
	}

	values := make([]int, len(parts))
	for i, p := range parts {
		limit := 2
		if i == 0 {
			limit = maxLeadingDigits
		}
		v, ok := parseDigits(p, limit)
		if !ok {
			return Timecode{}, false
		}
		values[i] = v
	}

	var seconds int
	padded := make([]string, len(values))
	if len(values) == 3 {
		h, m, s := values[0], values[1], values[2]
		if m >= 60 || s >= 60 {
			return Timecode{}, false
		}
		seconds = h*3600 + m*60 + s
	} else {
		m, s := values[0], values[1]
		if s >= 60 {
			return Timecode{}, false
		}
		seconds = m*60 + s
	}
	for i, v := range values {
		padded[i] = fmt.Sprintf("%02d", v)
	}

	return Timecode{
		Raw:        text,
		Seconds:    seconds,
		Normalized: strings.Join(padded, ":"),
	}, true
}

// ParseRelative parses a duration. A bare integer counts whole minutes;
// anything else must be a valid absolute timecode. The normalized form comes
// from FormatRelativeDuration so "75:00" becomes "01:15:00".
func ParseRelative(text string) (Timecode, bool) {
	if minutes, ok := parseDigits(text, maxLeadingDigits); ok {
		seconds := minutes * 60
		return Timecode{Raw: text, Seconds: seconds, Normalized: FormatRelativeDuration(seconds)}, true
	}

	abs, ok := ParseAbsolute(text)
	if !ok {
		return Timecode{}, false
	}
	return Timecode{Raw: text, Seconds: abs.Seconds, Normalized: FormatRelativeDuration(abs.Seconds)}, true
}

// FormatRelativeDuration renders MM:SS under one hour and HH:MM:SS otherwise.
func FormatRelativeDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// NormalizeInput turns form text into the canonical token sent to the backend.
// Blank input yields opts.EmptyValue. Anything unparseable yields ErrInvalidTimecode.
func NormalizeInput(text string, opts NormalizeOptions) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return opts.EmptyValue, nil
	}

	if opts.AllowRelative && strings.HasPrefix(trimmed, "+") {
		// Whitespace between the sign and the offset is allowed: "+ 2:5".
		rel, ok := ParseRelative(strings.TrimSpace(trimmed[1:]))
		if !ok {
			return "", ErrInvalidTimecode
		}
		return "+" + rel.Normalized, nil
	}

	abs, ok := ParseAbsolute(trimmed)
	if !ok {
		return "", ErrInvalidTimecode
	}
	return abs.Normalized, nil
}

// parseDigits accepts 1..limit ASCII digits and nothing else.
func parseDigits(s string, limit int) (int, bool) {
	if s == "" || len(s) > limit {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
