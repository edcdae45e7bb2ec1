package segments

import (
	"reflect"
	"testing"
)

func TestParsePlainText(t *testing.T) {
	got := Parse("just words")
	want := []Segment{{Kind: KindText, Content: "just words", Start: 0, End: 10}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse() = %+v, want %+v", got, want)
	}
	if got := Parse(""); len(got) != 0 {
		t.Fatalf("Parse(\"\") = %+v, want empty", got)
	}
}

func TestParseMixedRegions(t *testing.T) {
	text := "Intro <markdown># Title</markdown> mid <use_tool> {\"a\":1} </use_tool> tail"
	got := Parse(text)
	if len(got) != 5 {
		t.Fatalf("len(Parse()) = %d, want 5: %+v", len(got), got)
	}
	wantKinds := []Kind{KindText, KindMarkdown, KindText, KindTool, KindText}
	for i, k := range wantKinds {
		if got[i].Kind != k {
			t.Fatalf("segment[%d].Kind = %q, want %q", i, got[i].Kind, k)
		}
	}
	if got[1].Content != "# Title" {
		t.Fatalf("markdown content = %q", got[1].Content)
	}
	if got[3].Content != `{"a":1}` {
		t.Fatalf("tool content = %q, want trimmed payload", got[3].Content)
	}
	if raw := text[got[3].Start:got[3].End]; raw != ` {"a":1} ` {
		t.Fatalf("tool raw region = %q", raw)
	}
	if got[4].Content != " tail" {
		t.Fatalf("tail content = %q", got[4].Content)
	}
	if Reconstruct(text, got) != "Intro # Title mid  {\"a\":1}  tail" {
		t.Fatalf("Reconstruct() = %q", Reconstruct(text, got))
	}
}

func TestParseEarliestOpeningDelimiterWins(t *testing.T) {
	got := Parse("<use_tool>x <markdown> y</use_tool>")
	if len(got) != 1 || got[0].Kind != KindTool {
		t.Fatalf("Parse() = %+v, want a single tool segment", got)
	}
	if got[0].Content != "x <markdown> y" {
		t.Fatalf("tool content = %q", got[0].Content)
	}
}

func TestParseProvisionalToolSegment(t *testing.T) {
	partial := "Calling <use_tool>{\"name\": \"se"
	got := Parse(partial)
	if len(got) != 2 {
		t.Fatalf("len(Parse()) = %d, want 2: %+v", len(got), got)
	}
	tool := got[1]
	if tool.Kind != KindTool || !tool.Open {
		t.Fatalf("segment = %+v, want open tool segment", tool)
	}
	if tool.End != len(partial) {
		t.Fatalf("tool.End = %d, want end of text %d", tool.End, len(partial))
	}

	complete := partial + "arch\"}</use_tool> done"
	got = Parse(complete)
	if len(got) != 3 {
		t.Fatalf("len(Parse()) = %d, want 3: %+v", len(got), got)
	}
	tool = got[1]
	closeAt := len(partial) + len("arch\"}")
	if tool.Open || tool.End != closeAt {
		t.Fatalf("tool = %+v, want closed at %d", tool, closeAt)
	}
	if tool.Content != `{"name": "search"}` {
		t.Fatalf("tool content = %q", tool.Content)
	}
	if got[2].Kind != KindText || got[2].Content != " done" {
		t.Fatalf("trailing segment = %+v, want text \" done\"", got[2])
	}
}

func TestParseUnmatchedCloseIsText(t *testing.T) {
	got := Parse("a </markdown> b")
	if len(got) != 1 || got[0].Kind != KindText {
		t.Fatalf("Parse() = %+v, want one text segment", got)
	}
}

func TestParsePartialOpeningDelimiterIsText(t *testing.T) {
	got := Parse("hello <mark")
	if len(got) != 1 || got[0].Kind != KindText || got[0].Content != "hello <mark" {
		t.Fatalf("Parse() = %+v", got)
	}
	got = Parse("hello <markdown>**b")
	if len(got) != 2 || got[1].Kind != KindMarkdown || !got[1].Open {
		t.Fatalf("Parse() = %+v, want provisional markdown", got)
	}
}

func TestParseCustomDelimiters(t *testing.T) {
	d := Delimiters{MarkdownOpen: "[[md]]", MarkdownClose: "[[/md]]", ToolOpen: "[[tool]]", ToolClose: "[[/tool]]"}
	got := d.Parse("x[[tool]] run [[/tool]]y")
	if len(got) != 3 || got[1].Kind != KindTool || got[1].Content != "run" {
		t.Fatalf("Parse() = %+v", got)
	}
}

func TestMergeJoinsSameKindOnly(t *testing.T) {
	text := "<markdown>a</markdown><markdown>b</markdown>c"
	merged := Merge(Parse(text))
	if len(merged) != 2 {
		t.Fatalf("len(Merge()) = %d, want 2: %+v", len(merged), merged)
	}
	if merged[0].Kind != KindMarkdown || merged[0].Content != "ab" {
		t.Fatalf("merged[0] = %+v", merged[0])
	}
	if merged[1].Kind != KindText {
		t.Fatalf("merged[1] = %+v, want text", merged[1])
	}
}

func TestIncrementalParserMatchesParse(t *testing.T) {
	text := "Intro <markdown>## H\n- a</markdown> then <use_tool>{\"k\":1}</use_tool> end <markdown>open"
	p := NewParser(DefaultDelimiters)
	for i := 0; i <= len(text); i++ {
		prefix := text[:i]
		got := p.Parse(prefix)
		want := Parse(prefix)
		if len(want) == 0 {
			want = []Segment{}
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("prefix %q:\n got  %+v\n want %+v", prefix, got, want)
		}
	}
	if p.Committed() != 4 {
		t.Fatalf("Committed() = %d, want 4", p.Committed())
	}
}

func TestIncrementalParserResetsOnReplacedText(t *testing.T) {
	p := NewParser(DefaultDelimiters)
	p.Parse("<use_tool>one</use_tool> rest")
	got := p.Parse("fresh text")
	want := Parse("fresh text")
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse() after replace = %+v, want %+v", got, want)
	}
	got = p.Parse("<markdown>zz</markdown>xxxxxxxxxxxxxxxxxxxxx")
	if !reflect.DeepEqual(got, Parse("<markdown>zz</markdown>xxxxxxxxxxxxxxxxxxxxx")) {
		t.Fatalf("Parse() after second replace = %+v", got)
	}
}
