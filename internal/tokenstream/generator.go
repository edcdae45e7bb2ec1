package tokenstream

import "github.com/ent0n29/streambench/internal/segments"

// Generator yields exactly budget tokens from a repeating section cycle
// without materializing the full sequence.
type Generator struct {
	sections []Section
	delims   segments.Delimiters
	budget   int
	emitted  int

	pass    int
	next    int
	pending []string
}

func NewGenerator(budget int) *Generator {
	return NewGeneratorWithSections(budget, DefaultSections, segments.DefaultDelimiters)
}

func NewGeneratorWithSections(budget int, sections []Section, delims segments.Delimiters) *Generator {
	if len(sections) == 0 {
		sections = DefaultSections
	}
	if budget < 0 {
		budget = 0
	}
	return &Generator{
		sections: sections,
		delims:   delims,
		budget:   budget,
		pass:     1,
	}
}

// Next returns the next token, or false once the budget is spent.
func (g *Generator) Next() (string, bool) {
	if g.emitted >= g.budget {
		return "", false
	}
	for len(g.pending) == 0 {
		g.pending = Tokenize(g.sections[g.next].Render(g.pass, g.delims))
		g.next++
		if g.next == len(g.sections) {
			g.next = 0
			g.pass++
		}
	}
	tok := g.pending[0]
	g.pending = g.pending[1:]
	g.emitted++
	return tok, true
}

func (g *Generator) Emitted() int {
	return g.emitted
}

func (g *Generator) Remaining() int {
	return g.budget - g.emitted
}
