package render

import (
	"io"
	"sync"

	"github.com/ent0n29/streambench/internal/scheduler"
)

// Printer writes a stream to a line-oriented terminal. In raw mode new text
// is written as it is shown. Otherwise a segment is printed once the parser
// commits it and the rest is printed by Finish.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	r       *Renderer
	raw     bool
	printed int
	// rawLen is how much of the shown text raw mode has written.
	rawLen int
	last   string
}

// NewPrinter returns a raw printer when r is nil.
func NewPrinter(out io.Writer, r *Renderer) *Printer {
	return &Printer{out: out, r: r, raw: r == nil}
}

// Apply is a scheduler.Options.Apply callback.
func (p *Printer) Apply(ev scheduler.ApplyEvent) {
	p.Show(ev.Text)
}

// Show displays text, the full view the host wants on screen. It is the
// scheduler.Options.Settled callback for lagging policies.
func (p *Printer) Show(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = text
	if p.raw {
		if len(text) > p.rawLen {
			_, _ = io.WriteString(p.out, text[p.rawLen:])
			p.rawLen = len(text)
		}
		return
	}

	segs := p.r.Parse(text)
	committed := p.r.Committed()
	if committed < p.printed {
		p.printed = 0
	}
	for ; p.printed < committed; p.printed++ {
		_, _ = io.WriteString(p.out, p.r.committedSegment(p.printed, segs[p.printed]))
	}
}

// Finish prints whatever the stream left uncommitted.
func (p *Printer) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.raw {
		_, _ = io.WriteString(p.out, "\n")
		return
	}
	segs := p.r.Parse(p.last)
	for ; p.printed < len(segs); p.printed++ {
		_, _ = io.WriteString(p.out, p.r.Segment(segs[p.printed]))
	}
}
