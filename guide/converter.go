package guide

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var (
	scriptRe      = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe       = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	blankRunRe    = regexp.MustCompile(`\n{4,}`)
	imageLineRe   = regexp.MustCompile(`(?m)^\s*!\[[^\]]*\]\([^)]*\)\s*$`)
	contentMarks  = []string{"main", "article", "[role=main]"}
	chromeTags    = []string{"nav", "header", "footer", "aside", "script", "style", "noscript", "iframe", "object", "embed", "form", "input", "button"}
	chromeClasses = []string{
		"nav", "navbar", "navigation", "sidebar", "menu", "toc", "footer", "header",
		"ad", "ads", "advertisement", "banner", "social", "share", "comments",
		"comment", "related", "breadcrumb", "recommend", "download-app",
	}
)

// Page is a converted guide page.
type Page struct {
	Title    string
	Markdown string
}

// Converter turns travel guide HTML into markdown, keeping the main
// article and dropping site chrome.
type Converter struct {
	md *md.Converter
}

// NewConverter creates a converter with GitHub-flavored tables and lists.
func NewConverter() *Converter {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	return &Converter{md: conv}
}

// Convert converts an HTML document.
func (c *Converter) Convert(content []byte) (*Page, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	var body string
	title := ""
	if err != nil {
		body = stripScripts(string(content))
	} else {
		title = documentTitle(doc)
		body = mainContent(doc)
	}

	markdown, err := c.md.ConvertString(body)
	if err != nil {
		return nil, err
	}
	markdown = tidy(markdown)
	if title == "" {
		title = firstHeading(markdown)
	}
	return &Page{Title: title, Markdown: markdown}, nil
}

func documentTitle(doc *html.Node) string {
	if n := find(doc, "title"); n != nil && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	return ""
}

// mainContent renders the first main/article element, or the body with
// navigation, ads and other chrome removed.
func mainContent(doc *html.Node) string {
	for _, sel := range contentMarks {
		if n := find(doc, sel); n != nil {
			return render(n)
		}
	}
	removeMatching(doc, func(n *html.Node) bool {
		for _, tag := range chromeTags {
			if n.Data == tag {
				return true
			}
		}
		return hasClass(n, chromeClasses)
	})
	if body := find(doc, "body"); body != nil {
		return render(body)
	}
	return render(doc)
}

// find returns the first element matching a tag name or an [attr=value]
// selector, in document order.
func find(n *html.Node, selector string) *html.Node {
	if n.Type == html.ElementNode && matches(n, selector) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, selector); found != nil {
			return found
		}
	}
	return nil
}

func matches(n *html.Node, selector string) bool {
	if !strings.HasPrefix(selector, "[") || !strings.HasSuffix(selector, "]") {
		return n.Data == selector
	}
	key, val, ok := strings.Cut(selector[1:len(selector)-1], "=")
	if !ok {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == key && a.Val == val {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, classes []string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, have := range strings.Fields(strings.ToLower(a.Val)) {
			for _, want := range classes {
				if have == want {
					return true
				}
			}
		}
	}
	return false
}

// removeMatching detaches every element for which drop returns true. The
// subtree of a dropped element is not visited.
func removeMatching(n *html.Node, drop func(*html.Node) bool) {
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && drop(node) {
			doomed = append(doomed, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	for _, node := range doomed {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func render(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

func stripScripts(content string) string {
	return styleRe.ReplaceAllString(scriptRe.ReplaceAllString(content, ""), "")
}

// tidy drops image-only lines, collapses blank runs and trailing spaces.
func tidy(markdown string) string {
	markdown = imageLineRe.ReplaceAllString(markdown, "")
	markdown = blankRunRe.ReplaceAllString(markdown, "\n\n\n")
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func firstHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// Excerpt shortens markdown to at most maxRunes runes, cutting at the last
// paragraph break that fits when there is one.
func Excerpt(markdown string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(markdown) <= maxRunes {
		return markdown
	}
	cut := string([]rune(markdown)[:maxRunes])
	if i := strings.LastIndex(cut, "\n\n"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "\n..."
}
