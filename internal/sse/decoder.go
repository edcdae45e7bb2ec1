package sse

import (
	"bytes"
	"strings"
)

// Decoder splits an event stream into messages incrementally. Reads may end
// anywhere, including inside the blank-line delimiter; the unterminated tail
// is retained until a later Feed completes it or Finish drains it.
type Decoder struct {
	buf []byte
	// scanned is how far buf has been searched without finding a delimiter.
	scanned int
}

// Feed appends p and returns every message completed by it, in order.
func (d *Decoder) Feed(p []byte) []string {
	if len(p) == 0 {
		return nil
	}
	d.buf = append(d.buf, p...)

	var out []string
	start := 0
	from := d.scanned
	for {
		// A delimiter may straddle the previous scan boundary.
		if from > start {
			from--
		}
		idx := bytes.Index(d.buf[from:], []byte(delimiter))
		if idx < 0 {
			break
		}
		end := from + idx
		out = append(out, string(d.buf[start:end]))
		start = end + len(delimiter)
		from = start
	}

	if start > 0 {
		n := copy(d.buf, d.buf[start:])
		d.buf = d.buf[:n]
	}
	d.scanned = len(d.buf)
	return out
}

// Finish returns the buffered tail left at end of stream, if any, and
// resets the decoder.
func (d *Decoder) Finish() (string, bool) {
	tail := string(d.buf)
	d.Reset()
	if strings.TrimSpace(tail) == "" {
		return "", false
	}
	return tail, true
}

func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.scanned = 0
}

// Buffered reports the number of bytes held in the unterminated tail.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Payload extracts the data carried by one message. Multiple data lines are
// joined with newlines; comment and other field lines are ignored. ok is
// false when the message carries no data line.
func Payload(message string) (string, bool) {
	var (
		parts []string
		found bool
	)
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		found = true
		v := strings.TrimPrefix(line, "data:")
		v = strings.TrimPrefix(v, " ")
		parts = append(parts, v)
	}
	if !found {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}
