package logger

import (
	"fmt"
	"strings"
)

// maxLoggedValue caps how much of a user-supplied value ends up in a log line.
const maxLoggedValue = 256

// Sanitize escapes control characters in user-supplied text (filenames, form
// values, backend error bodies) so they cannot forge log lines or drive the
// terminal. Printable Unicode is kept. Long values are cut with an ellipsis.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	n := 0
	for _, r := range s {
		if n >= maxLoggedValue {
			b.WriteString("…")
			break
		}
		n++
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 32 || r == 127 {
				fmt.Fprintf(&b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
