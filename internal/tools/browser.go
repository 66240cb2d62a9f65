package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hkuds/runbox/internal/sandbox"
)

// fetchScript runs inside the sandbox and prints the page HTML. Fetching
// in the sandbox keeps untrusted page content away from the host network
// stack; only the returned HTML is parsed host-side.
const fetchScript = `import sys, urllib.request
req = urllib.request.Request(sys.argv[1], headers={"User-Agent": "Mozilla/5.0 (compatible; runbox/1.0)"})
with urllib.request.urlopen(req, timeout=%d) as resp:
    sys.stdout.write(resp.read().decode("utf-8", errors="replace"))
`

// browsePagePath is where fetched pages are staged for extraction.
const browsePagePath = sandbox.TempDir + "/_page.html"

// WebBrowseTool fetches a page from inside the sandbox and extracts its
// readable content with goquery on the host.
type WebBrowseTool struct {
	BaseTool
	session  *sandbox.Session
	maxChars int
}

// NewWebBrowseTool creates a WebBrowseTool bound to the run's session.
func NewWebBrowseTool(session *sandbox.Session, maxChars int) *WebBrowseTool {
	if maxChars <= 0 {
		maxChars = 50000
	}

	return &WebBrowseTool{
		BaseTool: NewBaseTool(
			"web_browse",
			"Fetch a web page and return its readable content as markdown. Optionally target specific elements with a CSS selector. Requires a sandbox with network access.",
			LocationSandbox,
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type":        "string",
						"description": "The URL to fetch (http or https).",
					},
					"selector": map[string]interface{}{
						"type":        "string",
						"description": "Optional CSS selector; only matching elements are returned.",
					},
				},
				"required": []string{"url"},
			},
		),
		session:  session,
		maxChars: maxChars,
	}
}

// Execute fetches the page through the sandbox and extracts its content.
func (t *WebBrowseTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	rawURL, err := GetStringParam(params, "url")
	if err != nil {
		return "", fmt.Errorf("web_browse: %w", err)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("web_browse: invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("web_browse: only http and https URLs are supported")
	}

	timeoutSecs := int(t.session.Config().ExecTimeout.Seconds())
	script := fmt.Sprintf(fetchScript, timeoutSecs)
	if err := t.session.WriteFile(ctx, sandbox.ScriptPath, []byte(script)); err != nil {
		return "", fmt.Errorf("web_browse: staging fetch script: %w", err)
	}

	// Stdout goes to a file so the HTML is not subject to the
	// observation budget before extraction.
	command := fmt.Sprintf("python3 %s %s > %s", sandbox.ScriptPath, shellQuoteArg(rawURL), browsePagePath)
	res, err := t.session.Execute(ctx, sandbox.ExecRequest{Command: command, Kind: sandbox.ExecShell})
	if err != nil {
		return "", fmt.Errorf("web_browse: %w", err)
	}
	if res.TimedOut() {
		return "", fmt.Errorf("web_browse: fetching %s timed out", rawURL)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("web_browse: fetching %s failed: %s", rawURL, strings.TrimSpace(res.Stderr))
	}

	html, err := t.session.ReadFile(ctx, browsePagePath)
	if err != nil {
		return "", fmt.Errorf("web_browse: reading fetched page: %w", err)
	}

	content, title, err := extractPageContent(string(html), GetStringParamOr(params, "selector", ""))
	if err != nil {
		return "", fmt.Errorf("web_browse: parsing page: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", rawURL)
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	b.WriteString("\n")
	if len(content) > t.maxChars {
		b.WriteString(content[:t.maxChars])
		b.WriteString("\n\n[content truncated]")
	} else {
		b.WriteString(content)
	}
	return b.String(), nil
}

// shellQuoteArg single-quotes an argument for POSIX sh.
func shellQuoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// extractPageContent pulls readable text out of an HTML document. With a
// selector, only matching elements are rendered; otherwise the main
// content region is located and converted to markdown.
func extractPageContent(html, selector string) (content, title string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	if selector != "" {
		matches := doc.Find(selector)
		if matches.Length() == 0 {
			return fmt.Sprintf("(no elements match selector %q)", selector), title, nil
		}
		var parts []string
		matches.Each(func(_ int, sel *goquery.Selection) {
			if text := collapseWhitespace(sel.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		return strings.Join(parts, "\n\n"), title, nil
	}

	doc.Find("script, style, nav, footer, header, aside, noscript, iframe, form").Remove()

	main := doc.Find("body")
	for _, candidate := range []string{"article", "main", "[role=main]", "#content", ".content"} {
		if sel := doc.Find(candidate); sel.Length() > 0 {
			main = sel.First()
			break
		}
	}

	return renderMarkdown(main), title, nil
}

// headingPrefixes maps heading tags to their markdown markers.
var headingPrefixes = map[string]string{
	"h1": "# ", "h2": "## ", "h3": "### ",
	"h4": "#### ", "h5": "##### ", "h6": "###### ",
}

// renderMarkdown converts the block elements of a selection to a
// markdown-like text form.
func renderMarkdown(root *goquery.Selection) string {
	var b strings.Builder

	root.Find("h1, h2, h3, h4, h5, h6, p, ul, ol, pre, blockquote").Each(func(_ int, el *goquery.Selection) {
		tag := goquery.NodeName(el)
		switch {
		case headingPrefixes[tag] != "":
			if text := collapseWhitespace(el.Text()); text != "" {
				b.WriteString(headingPrefixes[tag] + text + "\n\n")
			}
		case tag == "p":
			if text := collapseWhitespace(el.Text()); text != "" {
				b.WriteString(text + "\n\n")
			}
		case tag == "ul" || tag == "ol":
			el.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
				text := collapseWhitespace(li.Text())
				if text == "" {
					return
				}
				if tag == "ol" {
					fmt.Fprintf(&b, "%d. %s\n", i+1, text)
				} else {
					b.WriteString("- " + text + "\n")
				}
			})
			b.WriteString("\n")
		case tag == "pre":
			if text := strings.TrimSpace(el.Text()); text != "" {
				b.WriteString("```\n" + text + "\n```\n\n")
			}
		case tag == "blockquote":
			for _, line := range strings.Split(strings.TrimSpace(el.Text()), "\n") {
				b.WriteString("> " + strings.TrimSpace(line) + "\n")
			}
			b.WriteString("\n")
		}
	})

	if b.Len() == 0 {
		return collapseWhitespace(root.Text())
	}
	return strings.TrimSpace(b.String())
}

// collapseWhitespace squeezes runs of whitespace down to single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
