// Package segments partitions streamed text into typed regions so each can be
// rendered by its own display logic.
package segments

import "strings"

// Kind is the classification of a segment.
type Kind string

const (
	KindText     Kind = "text"
	KindMarkdown Kind = "markdown"
	KindTool     Kind = "tool"
)

// Segment is a contiguous typed slice of the accumulated text. Start and End
// are byte offsets of the region inside the delimiters. Content equals
// text[Start:End], except for tool segments where it is whitespace-trimmed.
type Segment struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	// Open marks a tagged region whose closing delimiter has not arrived yet.
	Open bool `json:"open,omitempty"`
}

// Delimiters are the open/close markup pairs for tagged regions.
type Delimiters struct {
	MarkdownOpen  string
	MarkdownClose string
	ToolOpen      string
	ToolClose     string
}

var DefaultDelimiters = Delimiters{
	MarkdownOpen:  "<markdown>",
	MarkdownClose: "</markdown>",
	ToolOpen:      "<use_tool>",
	ToolClose:     "</use_tool>",
}

// Parse classifies text with the default delimiters.
func Parse(text string) []Segment {
	return DefaultDelimiters.Parse(text)
}

// Parse scans text left to right. The earliest opening delimiter wins; text
// before it becomes a text segment; the region up to the matching close
// becomes a markdown or tool segment. A region without a close extends to
// the end of text and is marked Open.
func (d Delimiters) Parse(text string) []Segment {
	segs, _ := d.scan(text, 0, nil)
	return segs
}

// scan parses text[from:] appending to out. It also returns the offset just
// past the last closing delimiter it consumed, or from if none.
func (d Delimiters) scan(text string, from int, out []Segment) ([]Segment, int) {
	committed := from
	cursor := from
	for cursor < len(text) {
		idx, kind := d.nextOpen(text, cursor)
		if idx < 0 {
			out = appendText(out, text, cursor, len(text))
			break
		}
		out = appendText(out, text, cursor, idx)

		open, closeTag := d.MarkdownOpen, d.MarkdownClose
		if kind == KindTool {
			open, closeTag = d.ToolOpen, d.ToolClose
		}
		contentStart := idx + len(open)
		closeIdx := strings.Index(text[contentStart:], closeTag)
		contentEnd := len(text)
		if closeIdx >= 0 {
			contentEnd = contentStart + closeIdx
		}

		content := text[contentStart:contentEnd]
		if kind == KindTool {
			content = strings.TrimSpace(content)
		}
		out = append(out, Segment{
			Kind:    kind,
			Content: content,
			Start:   contentStart,
			End:     contentEnd,
			Open:    closeIdx < 0,
		})

		if closeIdx < 0 {
			break
		}
		cursor = contentEnd + len(closeTag)
		committed = cursor
	}
	return out, committed
}

func (d Delimiters) nextOpen(text string, from int) (int, Kind) {
	rest := text[from:]
	md := indexNonEmpty(rest, d.MarkdownOpen)
	tool := indexNonEmpty(rest, d.ToolOpen)
	switch {
	case md < 0 && tool < 0:
		return -1, ""
	case md < 0:
		return from + tool, KindTool
	case tool < 0:
		return from + md, KindMarkdown
	case md <= tool:
		return from + md, KindMarkdown
	default:
		return from + tool, KindTool
	}
}

func indexNonEmpty(s, sub string) int {
	if sub == "" {
		return -1
	}
	return strings.Index(s, sub)
}

func appendText(out []Segment, text string, from, to int) []Segment {
	if to <= from {
		return out
	}
	return append(out, Segment{
		Kind:    KindText,
		Content: text[from:to],
		Start:   from,
		End:     to,
	})
}

// Reconstruct concatenates the raw regions covered by segs. For a parse of
// text this equals text with the delimiter markup removed.
func Reconstruct(text string, segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(text[s.Start:s.End])
	}
	return b.String()
}

// Merge joins adjacent segments of the same kind for display grouping.
// Segments of different kinds are never combined.
func Merge(segs []Segment) []Segment {
	if len(segs) < 2 {
		return segs
	}
	out := make([]Segment, 0, len(segs))
	out = append(out, segs[0])
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if s.Kind != last.Kind {
			out = append(out, s)
			continue
		}
		sep := ""
		if s.Kind == KindTool && last.Content != "" && s.Content != "" {
			sep = "\n"
		}
		last.Content += sep + s.Content
		last.End = s.End
		last.Open = s.Open
	}
	return out
}
