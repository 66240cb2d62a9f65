package tools

import (
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Release Notes</title></head>
<body>
<nav>Home | About</nav>
<article>
<h1>Version 2.0</h1>
<p>This release adds a new storage engine.</p>
<h2>Changes</h2>
<ul>
<li>Faster writes</li>
<li>Smaller index files</li>
</ul>
<pre>go get example.com/pkg@v2</pre>
</article>
<footer>Copyright 2026</footer>
<script>track();</script>
</body>
</html>`

func TestExtractPageContent(t *testing.T) {
	content, title, err := extractPageContent(samplePage, "")
	if err != nil {
		t.Fatalf("extractPageContent() error = %v", err)
	}
	if title != "Release Notes" {
		t.Errorf("title = %q", title)
	}
	for _, want := range []string{
		"# Version 2.0",
		"This release adds a new storage engine.",
		"## Changes",
		"- Faster writes",
		"```\ngo get example.com/pkg@v2\n```",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q in:\n%s", want, content)
		}
	}
	for _, banned := range []string{"Home | About", "Copyright 2026", "track()"} {
		if strings.Contains(content, banned) {
			t.Errorf("content includes stripped element %q", banned)
		}
	}
}

func TestExtractPageContentSelector(t *testing.T) {
	content, _, err := extractPageContent(samplePage, "h2")
	if err != nil {
		t.Fatalf("extractPageContent() error = %v", err)
	}
	if content != "Changes" {
		t.Errorf("selector content = %q, want Changes", content)
	}

	content, _, err = extractPageContent(samplePage, ".missing")
	if err != nil {
		t.Fatalf("extractPageContent() error = %v", err)
	}
	if !strings.Contains(content, "no elements match") {
		t.Errorf("selector miss = %q", content)
	}
}

func TestExtractPageContentFallback(t *testing.T) {
	content, _, err := extractPageContent("<html><body>just   some\n text</body></html>", "")
	if err != nil {
		t.Fatalf("extractPageContent() error = %v", err)
	}
	if content != "just some text" {
		t.Errorf("fallback content = %q", content)
	}
}

func TestRenderMarkdownOrderedList(t *testing.T) {
	content, _, err := extractPageContent("<html><body><ol><li>first</li><li>second</li></ol></body></html>", "")
	if err != nil {
		t.Fatalf("extractPageContent() error = %v", err)
	}
	if !strings.Contains(content, "1. first") || !strings.Contains(content, "2. second") {
		t.Errorf("ordered list = %q", content)
	}
}

func TestShellQuoteArg(t *testing.T) {
	if got := shellQuoteArg("https://example.com/a?b=c&d=e"); got != "'https://example.com/a?b=c&d=e'" {
		t.Errorf("shellQuoteArg() = %q", got)
	}
	if got := shellQuoteArg("it's"); got != `'it'\''s'` {
		t.Errorf("shellQuoteArg() = %q", got)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	if got := collapseWhitespace("  a\n\tb   c "); got != "a b c" {
		t.Errorf("collapseWhitespace() = %q", got)
	}
}
