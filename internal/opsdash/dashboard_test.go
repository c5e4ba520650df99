package opsdash

import (
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	got := renderMarkdown("**bold** text")
	if !strings.Contains(string(got), "<strong>bold</strong>") {
		t.Errorf("renderMarkdown = %q, want rendered <strong>", got)
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	if got := renderMarkdown(""); got != "" {
		t.Errorf("renderMarkdown(\"\") = %q, want empty", got)
	}
}
