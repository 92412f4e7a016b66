package cleaning

import (
	"strings"
	"testing"
)

func TestHTMLToTextDropsMarkupAndImages(t *testing.T) {
	raw := `<p>Use <code>uv run</code> to start.</p><img src="x.png" alt="shot"><p>See <a href="https://x">docs</a></p><script>alert(1)</script>`
	got := HTMLToText(raw)
	if strings.Contains(got, "<") || strings.Contains(got, "alert") {
		t.Fatalf("markup leaked: %q", got)
	}
	if !strings.Contains(got, "Use uv run to start.") || !strings.Contains(got, "See docs") {
		t.Fatalf("text missing: %q", got)
	}
}

func TestHTMLToTextPlainPassthrough(t *testing.T) {
	if got := HTMLToText("  plain   text  "); got != "plain text" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestNormalizeMarkdown(t *testing.T) {
	raw := "#Title##\n\n\n\n<!-- hidden -->Body   text\n\n\n## Section"
	got := NormalizeMarkdown(raw)
	if strings.Contains(got, "hidden") {
		t.Fatalf("comment not removed: %q", got)
	}
	if !strings.HasPrefix(got, "# Title\n\nBody text") {
		t.Fatalf("unexpected normalization: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Fatalf("blank lines not collapsed: %q", got)
	}
}

func TestCleanDispatchesByFormat(t *testing.T) {
	c := New()
	if got := c.Clean("html", "<b>x</b>"); got != "x" {
		t.Fatalf("html clean = %q", got)
	}
	if got := c.Clean("jsonl", " a \r\n b "); got != "a\nb" {
		t.Fatalf("default clean = %q", got)
	}
}
