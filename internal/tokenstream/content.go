package tokenstream

import (
	"fmt"
	"strings"

	"github.com/ent0n29/streambench/internal/segments"
)

// SectionKind selects how a section body is wrapped on the wire.
type SectionKind string

const (
	SectionProse    SectionKind = "prose"
	SectionMarkdown SectionKind = "markdown"
	SectionTool     SectionKind = "tool"
)

// Section is one entry of the replayed content cycle.
type Section struct {
	Kind SectionKind
	Body string
}

// DefaultSections is the cycle replayed until the token budget is met.
var DefaultSections = []Section{
	{
		Kind: SectionProse,
		Body: "Streaming interfaces render text as it arrives, one token at a time. " +
			"Every fragment is appended to the transcript without reflowing what came before, " +
			"so the cost of each update should stay flat as the output grows.",
	},
	{
		Kind: SectionMarkdown,
		Body: "## Rendering checklist\n\n" +
			"- Batch token updates into one commit per frame\n" +
			"- Mark large re-renders as interruptible work\n" +
			"- Let the visible text lag when the main thread is busy\n\n" +
			"```go\nfor tok := range tokens {\n\tbuf.WriteString(tok)\n}\n```",
	},
	{
		Kind: SectionTool,
		Body: `{"name": "measure_frame", "arguments": {"target_fps": 60, "budget_ms": 16}}`,
	},
	{
		Kind: SectionProse,
		Body: "The measurement came back within budget. " +
			"Parsing the accumulated text again on every frame keeps segment boundaries exact " +
			"while tagged regions are still open.",
	},
}

// Render returns the section text for the given 1-based pass, wrapped in the
// delimiters of its kind and followed by a paragraph break.
func (s Section) Render(pass int, delims segments.Delimiters) string {
	var b strings.Builder
	switch s.Kind {
	case SectionMarkdown:
		b.WriteString(delims.MarkdownOpen)
		b.WriteString("\n")
		b.WriteString(s.Body)
		b.WriteString("\n")
		b.WriteString(delims.MarkdownClose)
	case SectionTool:
		b.WriteString(delims.ToolOpen)
		b.WriteString("\n")
		b.WriteString(s.Body)
		b.WriteString("\n")
		b.WriteString(delims.ToolClose)
	default:
		b.WriteString(s.Body)
	}
	if pass > 1 {
		fmt.Fprintf(&b, " (pass %d)", pass)
	}
	b.WriteString("\n\n")
	return b.String()
}

// Tokenize splits s into maximal runs of whitespace and non-whitespace.
// Concatenating the result yields s.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	var (
		out   []string
		start int
	)
	prevSpace := isSpace(s[0])
	for i := 1; i < len(s); i++ {
		sp := isSpace(s[i])
		if sp != prevSpace {
			out = append(out, s[start:i])
			start = i
			prevSpace = sp
		}
	}
	return append(out, s[start:])
}

// Only ASCII whitespace splits tokens, so multi-byte runes stay whole.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
