package rover

import "strings"

// MaxPendingFragment bounds the bytes a LineFramer holds while waiting for
// the rest of a line
const MaxPendingFragment = 512

// LineFramer turns arbitrarily chunked reads into protocol lines. The peer
// sends no terminator, so a read may hold part of a line, one line, or
// several lines merged together.
//
// Lines are split on \n and \r. An unterminated tail is emitted at once if
// it already parses as a command, and buffered otherwise. A buffered tail
// becomes its own line when the next chunk opens with a known tag.
type LineFramer struct {
	pending strings.Builder
}

// Feed consumes one chunk and returns the complete lines it yields
func (f *LineFramer) Feed(chunk []byte) []string {
	text := string(chunk)
	var lines []string

	if f.pending.Len() > 0 && hasKnownTag(text) {
		lines = appendLine(lines, f.pending.String())
		f.pending.Reset()
	}

	f.pending.WriteString(text)
	data := f.pending.String()
	f.pending.Reset()

	for {
		i := strings.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		lines = appendLine(lines, data[:i])
		data = data[i+1:]
	}

	if strings.TrimSpace(data) == "" {
		return lines
	}
	if _, err := ParseLine(data); err == nil || len(data) > MaxPendingFragment {
		return appendLine(lines, data)
	}
	f.pending.WriteString(data)
	return lines
}

// Flush returns whatever fragment is buffered and resets the framer
func (f *LineFramer) Flush() []string {
	data := f.pending.String()
	f.pending.Reset()
	return appendLine(nil, data)
}

// Pending returns the buffered fragment
func (f *LineFramer) Pending() string {
	return f.pending.String()
}

func appendLine(lines []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		lines = append(lines, s)
	}
	return lines
}
