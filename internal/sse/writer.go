// Package sse implements the server-sent-events framing used by the token
// stream: one `data: <payload>\n\n` message per token and a `[DONE]`
// terminator.
package sse

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ent0n29/streambench/internal/protocol"
)

const (
	dataPrefix = "data: "
	delimiter  = "\n\n"
)

type flusher interface {
	Flush()
}

// Writer frames payloads onto an event stream and flushes after every
// message when the underlying writer supports it.
type Writer struct {
	w       io.Writer
	flusher flusher
	buf     []byte
}

func NewWriter(w io.Writer) *Writer {
	f, _ := w.(flusher)
	return &Writer{w: w, flusher: f}
}

// WriteData writes one message. The payload must not contain a blank line.
func (w *Writer) WriteData(payload []byte) error {
	w.buf = w.buf[:0]
	w.buf = append(w.buf, dataPrefix...)
	w.buf = append(w.buf, payload...)
	w.buf = append(w.buf, delimiter...)
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

func (w *Writer) WriteJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return w.WriteData(payload)
}

func (w *Writer) WriteDone() error {
	return w.WriteData([]byte(protocol.DoneSentinel))
}
