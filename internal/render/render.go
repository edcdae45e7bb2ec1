// Package render turns accumulated stream text into terminal output, one
// display style per segment kind.
package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/ent0n29/streambench/internal/segments"
)

const (
	defaultWidth = 80
	// maxCachedBlocks bounds the rendered block cache used by Window.
	maxCachedBlocks = 4096
)

type Options struct {
	// Width wraps text and markdown. Zero detects the terminal width.
	Width int
	// Style is a glamour style name ("dark", "light", "notty", ...) or
	// "auto".
	Style      string
	Delimiters segments.Delimiters
}

// Renderer renders segment partitions. Segments the incremental parser has
// committed are rendered once and reused on later frames.
type Renderer struct {
	width  int
	md     *glamour.TermRenderer
	delims segments.Delimiters
	parser *segments.Parser

	cache  []cachedSegment
	blocks map[segments.Block]string

	textStyle lipgloss.Style
	toolStyle lipgloss.Style
	toolLabel lipgloss.Style
}

func New(opts Options) (*Renderer, error) {
	width := opts.Width
	if width <= 0 {
		width = TerminalWidth(os.Stdout)
	}
	delims := opts.Delimiters
	if delims == (segments.Delimiters{}) {
		delims = segments.DefaultDelimiters
	}

	styleOpt := glamour.WithAutoStyle()
	if s := strings.TrimSpace(opts.Style); s != "" && s != "auto" {
		styleOpt = glamour.WithStandardStyle(s)
	}
	md, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("markdown renderer: %w", err)
	}

	return &Renderer{
		width:     width,
		md:        md,
		delims:    delims,
		parser:    segments.NewParser(delims),
		blocks:    make(map[segments.Block]string),
		textStyle: lipgloss.NewStyle().Width(width),
		toolStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("13")).
			Padding(0, 1),
		toolLabel: lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
	}, nil
}

// TerminalWidth returns the column count of f, or 80 when f is not a
// terminal.
func TerminalWidth(f *os.File) int {
	if f == nil {
		return defaultWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

func (r *Renderer) Width() int {
	return r.width
}

type cachedSegment struct {
	seg segments.Segment
	out string
}

// Parse runs the incremental parser over the accumulated text.
func (r *Renderer) Parse(text string) []segments.Segment {
	return r.parser.Parse(text)
}

// Committed reports how many leading segments of the last Parse are final.
func (r *Renderer) Committed() int {
	return r.parser.Committed()
}

// Frame renders the full text as it should appear right now.
func (r *Renderer) Frame(text string) string {
	segs := r.Parse(text)
	committed := r.parser.Committed()

	parts := make([]string, 0, len(segs))
	for i, seg := range segs {
		if i < committed {
			parts = append(parts, r.committedSegment(i, seg))
			continue
		}
		parts = append(parts, r.Segment(seg))
	}
	return strings.Join(parts, "")
}

// Window renders the trailing n render blocks of text, so the cost of a
// frame follows the visible tail rather than the whole transcript. Blocks
// are cached by value; only the growing last block is rendered again on
// most frames. n <= 0 renders every block.
func (r *Renderer) Window(text string, n int) string {
	blocks := r.delims.SplitBlocks(text, segments.ModeMixed)
	if n > 0 && len(blocks) > n {
		blocks = blocks[len(blocks)-n:]
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, strings.TrimRight(r.block(b), "\n"))
	}
	return strings.Join(parts, "\n")
}

func (r *Renderer) block(b segments.Block) string {
	if out, ok := r.blocks[b]; ok {
		return out
	}
	var out string
	switch b.Kind {
	case segments.BlockMarkdown, segments.BlockCode:
		out = r.markdown(b.Content)
	case segments.BlockTool:
		out = r.tool(segments.Segment{Kind: segments.KindTool, Content: b.Content, Open: b.Open})
	default:
		out = r.text(b.Content)
	}
	if len(r.blocks) >= maxCachedBlocks {
		clear(r.blocks)
	}
	r.blocks[b] = out
	return out
}

// Reset drops cached output and parser state.
func (r *Renderer) Reset() {
	r.parser.Reset()
	r.cache = r.cache[:0]
	clear(r.blocks)
}

// committedSegment renders a final segment once. An entry is reused only for
// the identical segment, so a parser reset cannot serve stale output.
func (r *Renderer) committedSegment(i int, seg segments.Segment) string {
	for len(r.cache) <= i {
		r.cache = append(r.cache, cachedSegment{})
	}
	if c := r.cache[i]; c.out != "" && c.seg == seg {
		return c.out
	}
	out := r.Segment(seg)
	r.cache[i] = cachedSegment{seg: seg, out: out}
	return out
}

// Segment renders one segment without caching.
func (r *Renderer) Segment(seg segments.Segment) string {
	switch seg.Kind {
	case segments.KindMarkdown:
		return r.markdown(seg.Content)
	case segments.KindTool:
		return r.tool(seg)
	default:
		return r.text(seg.Content)
	}
}

func (r *Renderer) text(s string) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	return r.textStyle.Render(s)
}

func (r *Renderer) markdown(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	out, err := r.md.Render(s)
	if err != nil {
		return s
	}
	return out
}

func (r *Renderer) tool(seg segments.Segment) string {
	label := "tool call"
	if seg.Open {
		label += " (streaming)"
	}
	body := seg.Content
	if body == "" {
		body = "..."
	}
	box := r.toolStyle.Width(max(r.width-2, 10)).Render(
		lipgloss.JoinVertical(lipgloss.Left, r.toolLabel.Render(label), body),
	)
	return box + "\n"
}
