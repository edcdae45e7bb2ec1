package segments

// Parser re-parses a growing text while reusing every segment that ended at
// or before the last closing delimiter. Only the suffix after that boundary
// is rescanned, so provisional segments are recomputed on each call and the
// output is identical to Delimiters.Parse.
//
// Parser is not safe for concurrent use.
type Parser struct {
	delims    Delimiters
	committed []Segment
	// cursor is the offset just past the last consumed closing delimiter.
	cursor int
	// anchor is text[cursor-len(anchor):cursor] at the time of commit; it
	// detects callers that replaced the text instead of appending to it.
	anchor string
}

func NewParser(d Delimiters) *Parser {
	return &Parser{delims: d}
}

// Parse returns the full segment partition of text. text is expected to
// extend the text of the previous call; anything else resets the parser.
func (p *Parser) Parse(text string) []Segment {
	if !p.extends(text) {
		p.Reset()
	}

	tail, committedEnd := p.delims.scan(text, p.cursor, nil)

	if committedEnd > p.cursor {
		n := 0
		for n < len(tail) && tail[n].End <= committedEnd && !tail[n].Open {
			n++
		}
		p.committed = append(p.committed, tail[:n]...)
		tail = tail[n:]
		p.cursor = committedEnd
		p.anchor = text[max(0, committedEnd-16):committedEnd]
	}

	out := make([]Segment, 0, len(p.committed)+len(tail))
	out = append(out, p.committed...)
	return append(out, tail...)
}

// Committed reports how many leading segments are final.
func (p *Parser) Committed() int {
	return len(p.committed)
}

func (p *Parser) Reset() {
	p.committed = p.committed[:0]
	p.cursor = 0
	p.anchor = ""
}

func (p *Parser) extends(text string) bool {
	if p.cursor == 0 {
		return true
	}
	if len(text) < p.cursor {
		return false
	}
	return text[p.cursor-len(p.anchor):p.cursor] == p.anchor
}
