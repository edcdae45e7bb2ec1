package segments

import "strings"

// Mode selects how SplitBlocks divides text into render blocks.
type Mode string

const (
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeMixed    Mode = "mixed"
)

// BlockKind labels a render block.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockMarkdown BlockKind = "markdown"
	BlockCode     BlockKind = "code"
	BlockTool     BlockKind = "tool"
)

type Block struct {
	Kind    BlockKind `json:"kind"`
	Content string    `json:"content"`
	// Open marks a tagged region still waiting for its closing delimiter.
	Open bool `json:"open,omitempty"`
}

const fence = "```"

// SplitBlocks divides text into independently renderable blocks for
// windowed display:
//   - ModeText: one block per line.
//   - ModeMarkdown: fenced code blocks stay whole; prose splits on blank lines.
//   - ModeMixed: each tagged region is one block; prose becomes one block per
//     non-empty line.
func SplitBlocks(text string, mode Mode) []Block {
	return DefaultDelimiters.SplitBlocks(text, mode)
}

// SplitBlocks is SplitBlocks with d locating tagged regions in ModeMixed.
func (d Delimiters) SplitBlocks(text string, mode Mode) []Block {
	if text == "" {
		return nil
	}
	switch mode {
	case ModeText:
		lines := strings.Split(text, "\n")
		out := make([]Block, 0, len(lines))
		for _, l := range lines {
			out = append(out, Block{Kind: BlockText, Content: l})
		}
		return out
	case ModeMarkdown:
		out := splitMarkdown(text)
		if len(out) == 0 {
			return []Block{{Kind: BlockMarkdown, Content: text}}
		}
		return out
	case ModeMixed:
		var out []Block
		for _, s := range d.Parse(text) {
			switch s.Kind {
			case KindMarkdown:
				out = append(out, Block{Kind: BlockMarkdown, Content: s.Content, Open: s.Open})
			case KindTool:
				out = append(out, Block{Kind: BlockTool, Content: s.Content, Open: s.Open})
			default:
				out = append(out, nonEmptyLines(s.Content)...)
			}
		}
		if len(out) == 0 {
			return []Block{{Kind: BlockText, Content: text}}
		}
		return out
	default:
		return []Block{{Kind: BlockText, Content: text}}
	}
}

func splitMarkdown(text string) []Block {
	var out []Block
	rest := text
	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			break
		}
		closeIdx := strings.Index(rest[open+len(fence):], fence)
		if closeIdx < 0 {
			break
		}
		end := open + len(fence) + closeIdx + len(fence)
		out = append(out, paragraphs(rest[:open])...)
		out = append(out, Block{Kind: BlockCode, Content: rest[open:end]})
		rest = rest[end:]
	}
	return append(out, paragraphs(rest)...)
}

func paragraphs(s string) []Block {
	var out []Block
	for _, p := range splitBlankLines(s) {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, Block{Kind: BlockMarkdown, Content: p})
	}
	return out
}

// splitBlankLines splits on runs of two or more newlines.
func splitBlankLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); {
		if s[i] == '\n' && i+1 < len(s) && s[i+1] == '\n' {
			out = append(out, s[start:i])
			j := i
			for j < len(s) && s[j] == '\n' {
				j++
			}
			start = j
			i = j
			continue
		}
		i++
	}
	return append(out, s[start:])
}

func nonEmptyLines(s string) []Block {
	var out []Block
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, Block{Kind: BlockText, Content: l})
	}
	return out
}
