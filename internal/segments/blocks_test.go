package segments

import (
	"reflect"
	"testing"
)

func TestSplitBlocksText(t *testing.T) {
	got := SplitBlocks("a\nb\n", ModeText)
	want := []Block{{Kind: BlockText, Content: "a"}, {Kind: BlockText, Content: "b"}, {Kind: BlockText, Content: ""}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitBlocks() = %+v, want %+v", got, want)
	}
	if SplitBlocks("", ModeText) != nil {
		t.Fatalf("SplitBlocks(\"\") should be nil")
	}
}

func TestSplitBlocksMarkdownKeepsCodeFencesWhole(t *testing.T) {
	text := "# Title\n\nPara one.\n\n\n```go\nx := 1\n\ny := 2\n```\nAfter"
	got := SplitBlocks(text, ModeMarkdown)
	want := []Block{
		{Kind: BlockMarkdown, Content: "# Title"},
		{Kind: BlockMarkdown, Content: "Para one."},
		{Kind: BlockCode, Content: "```go\nx := 1\n\ny := 2\n```"},
		{Kind: BlockMarkdown, Content: "\nAfter"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitBlocks() = %+v, want %+v", got, want)
	}
}

func TestSplitBlocksMarkdownUnclosedFenceIsProse(t *testing.T) {
	got := SplitBlocks("```go\nopen", ModeMarkdown)
	if len(got) != 1 || got[0].Kind != BlockMarkdown {
		t.Fatalf("SplitBlocks() = %+v", got)
	}
}

func TestSplitBlocksMixed(t *testing.T) {
	text := "line one\n\nline two\n<markdown>**bold**</markdown>\n<use_tool> {} </use_tool>"
	got := SplitBlocks(text, ModeMixed)
	want := []Block{
		{Kind: BlockText, Content: "line one"},
		{Kind: BlockText, Content: "line two"},
		{Kind: BlockMarkdown, Content: "**bold**"},
		{Kind: BlockTool, Content: "{}"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitBlocks() = %+v, want %+v", got, want)
	}
}

func TestSplitBlocksMixedWhitespaceOnly(t *testing.T) {
	got := SplitBlocks("\n\n", ModeMixed)
	if len(got) != 1 || got[0].Content != "\n\n" {
		t.Fatalf("SplitBlocks() = %+v, want the raw text as one block", got)
	}
}

func TestSplitBlocksMixedMarksOpenRegion(t *testing.T) {
	got := SplitBlocks("intro\n<use_tool>{\"name\":", ModeMixed)
	want := []Block{
		{Kind: BlockText, Content: "intro"},
		{Kind: BlockTool, Content: `{"name":`, Open: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitBlocks() = %+v, want %+v", got, want)
	}
}

func TestDelimitersSplitBlocksUsesOwnMarkup(t *testing.T) {
	d := Delimiters{MarkdownOpen: "[md]", MarkdownClose: "[/md]", ToolOpen: "[t]", ToolClose: "[/t]"}
	got := d.SplitBlocks("a\n[md]# h[/md]<markdown>x</markdown>", ModeMixed)
	want := []Block{
		{Kind: BlockText, Content: "a"},
		{Kind: BlockMarkdown, Content: "# h"},
		{Kind: BlockText, Content: "<markdown>x</markdown>"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitBlocks() = %+v, want %+v", got, want)
	}
}
