package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ent0n29/streambench/internal/scheduler"
	"github.com/ent0n29/streambench/internal/segments"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(Options{Width: 60, Style: "notty"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestFrameRendersEachSegmentKind(t *testing.T) {
	r := newTestRenderer(t)
	text := "Intro line.\n<markdown>\n# Title\n\n- item one\n</markdown>\n<use_tool>\n{\"name\": \"measure_frame\"}\n</use_tool>\nOutro."

	frame := r.Frame(text)
	for _, want := range []string{"Intro line.", "Title", "item one", "tool call", "measure_frame", "Outro."} {
		if !strings.Contains(frame, want) {
			t.Fatalf("frame missing %q:\n%s", want, frame)
		}
	}
	if strings.Contains(frame, "<markdown>") || strings.Contains(frame, "<use_tool>") {
		t.Fatalf("frame leaked delimiter markup:\n%s", frame)
	}
}

func TestFrameMarksOpenToolSegment(t *testing.T) {
	r := newTestRenderer(t)
	frame := r.Frame("Calling <use_tool>{\"name\":")
	if !strings.Contains(frame, "tool call (streaming)") {
		t.Fatalf("open tool segment not marked:\n%s", frame)
	}

	frame = r.Frame("Calling <use_tool>{\"name\": \"x\"}</use_tool> done")
	if strings.Contains(frame, "(streaming)") {
		t.Fatalf("closed tool segment still marked streaming:\n%s", frame)
	}
	if r.Committed() != 2 {
		t.Fatalf("Committed() = %d, want 2", r.Committed())
	}
}

func TestFrameDropsCommittedOutputAfterReset(t *testing.T) {
	r := newTestRenderer(t)
	first := r.Frame("<use_tool>alpha</use_tool>")
	if !strings.Contains(first, "alpha") {
		t.Fatalf("first frame = %q", first)
	}
	// A text that does not extend the previous one resets the parser.
	second := r.Frame("<use_tool>bravo</use_tool>")
	if strings.Contains(second, "alpha") || !strings.Contains(second, "bravo") {
		t.Fatalf("stale committed output reused:\n%s", second)
	}
}

func TestPrinterRawWritesDeltas(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, nil)
	p.Apply(scheduler.ApplyEvent{Delta: "Hello ", Text: "Hello "})
	p.Apply(scheduler.ApplyEvent{Delta: "<markdown>x", Text: "Hello <markdown>x"})
	p.Finish()
	if out.String() != "Hello <markdown>x\n" {
		t.Fatalf("raw output = %q", out.String())
	}
}

func TestPrinterPrintsCommittedSegmentsOnce(t *testing.T) {
	var out bytes.Buffer
	r := newTestRenderer(t)
	p := NewPrinter(&out, r)

	p.Apply(scheduler.ApplyEvent{Text: "Before <use_tool>{}"})
	if out.Len() != 0 {
		t.Fatalf("printed before any segment committed: %q", out.String())
	}
	p.Apply(scheduler.ApplyEvent{Text: "Before <use_tool>{}</use_tool> after"})
	afterCommit := out.String()
	if !strings.Contains(afterCommit, "Before") || !strings.Contains(afterCommit, "tool call") {
		t.Fatalf("committed segments not printed: %q", afterCommit)
	}
	if strings.Contains(afterCommit, "after") {
		t.Fatalf("uncommitted trailing text printed early: %q", afterCommit)
	}

	p.Finish()
	if !strings.Contains(out.String(), "after") {
		t.Fatalf("Finish did not print trailing text: %q", out.String())
	}
	if strings.Count(out.String(), "Before") != 1 {
		t.Fatalf("segment printed more than once: %q", out.String())
	}
}

func TestModelRendersAppliesAndQuits(t *testing.T) {
	r := newTestRenderer(t)
	quit := false
	m := NewModel(r, "preset: batched", func() { quit = true })

	m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	m.Update(ApplyMsg{
		Event:   scheduler.ApplyEvent{Seq: 3, Text: "plain words"},
		Stats:   scheduler.Stats{Tokens: 5, Applies: 3},
		Pending: true,
	})
	view := m.View()
	for _, want := range []string{"preset: batched", "plain words", "tokens:5", "applies:3", "pending"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	m.Update(DoneMsg{Err: errors.New("boom")})
	if !strings.Contains(m.View(), "error: boom") {
		t.Fatalf("view missing error:\n%s", m.View())
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !quit {
		t.Fatalf("quit key: cmd = %v quit = %v", cmd, quit)
	}
}

func TestRendererHonoursCustomDelimiters(t *testing.T) {
	r, err := New(Options{
		Width: 40,
		Style: "notty",
		Delimiters: segments.Delimiters{
			MarkdownOpen: "[md]", MarkdownClose: "[/md]",
			ToolOpen: "[tool]", ToolClose: "[/tool]",
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	frame := r.Frame("a [tool]x[/tool]")
	if !strings.Contains(frame, "tool call") || strings.Contains(frame, "[tool]") {
		t.Fatalf("custom delimiters not applied:\n%s", frame)
	}
}

func TestWindowKeepsTrailingBlocks(t *testing.T) {
	r := newTestRenderer(t)
	text := "line one\nline two\nline three\n<use_tool>{\"name\": \"measure_frame\"}"

	out := r.Window(text, 2)
	if strings.Contains(out, "line one") || strings.Contains(out, "line two") {
		t.Fatalf("window kept leading blocks:\n%s", out)
	}
	for _, want := range []string{"line three", "tool call (streaming)", "measure_frame"} {
		if !strings.Contains(out, want) {
			t.Fatalf("window missing %q:\n%s", want, out)
		}
	}

	all := r.Window(text, 0)
	if !strings.Contains(all, "line one") {
		t.Fatalf("unbounded window dropped blocks:\n%s", all)
	}
	if len(r.blocks) != 4 {
		t.Fatalf("cached blocks = %d, want 4", len(r.blocks))
	}
	r.Reset()
	if len(r.blocks) != 0 {
		t.Fatalf("cached blocks after Reset = %d, want 0", len(r.blocks))
	}
}

func TestModelRedrawsLaggingViewOnSettle(t *testing.T) {
	r := newTestRenderer(t)
	m := NewModel(r, "preset: deferred", nil)
	m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})

	m.Update(ApplyMsg{
		Event:   scheduler.ApplyEvent{Seq: 1, Text: "fresh words"},
		Stats:   scheduler.Stats{Tokens: 2, Applies: 1},
		Stale:   true,
		Lagging: true,
	})
	view := m.View()
	if strings.Contains(view, "fresh words") {
		t.Fatalf("lagging apply redrew the text:\n%s", view)
	}
	if !strings.Contains(view, "stale") || !strings.Contains(view, "applies:1") {
		t.Fatalf("status not updated:\n%s", view)
	}

	m.Update(SettleMsg{Text: "fresh words"})
	view = m.View()
	if !strings.Contains(view, "fresh words") || strings.Contains(view, "stale") {
		t.Fatalf("settle did not redraw:\n%s", view)
	}
}

func TestModelWindowLimitsBlocks(t *testing.T) {
	r := newTestRenderer(t)
	m := NewModel(r, "t", nil)
	m.SetWindow(1)
	m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	m.Update(ApplyMsg{Event: scheduler.ApplyEvent{Seq: 1, Text: "first\nsecond"}})
	view := m.View()
	if strings.Contains(view, "first") || !strings.Contains(view, "second") {
		t.Fatalf("window of 1 block:\n%s", view)
	}
}

func TestPrinterShowsLaggingViewInRawMode(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, nil)
	p.Show("ab")
	p.Show("ab")
	p.Show("abcd")
	p.Finish()
	if out.String() != "abcd\n" {
		t.Fatalf("raw output = %q, want %q", out.String(), "abcd\n")
	}
}
