package local

import (
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// pageInfo is what the crawler keeps of a visited page.
type pageInfo struct {
	URL         string
	Title       string
	Description string
	Links       []string
}

// analyze extracts the title, meta description and absolute http(s) links
// of a page. Fragments are dropped and links deduplicated.
func analyze(pageURL, raw string) (*pageInfo, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}

	info := &pageInfo{URL: pageURL}
	seen := map[string]bool{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if info.Title == "" {
					info.Title = strings.Join(strings.Fields(textOf(n)), " ")
				}
			case atom.Meta:
				if strings.EqualFold(attr(n, "name"), "description") && info.Description == "" {
					info.Description = strings.TrimSpace(attr(n, "content"))
				}
			case atom.A:
				if link := resolveLink(base, attr(n, "href")); link != "" && !seen[link] {
					seen[link] = true
					info.Links = append(info.Links, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return info, nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := base.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// sameSite reports whether link points at domain or one of its www/sub
// hosts.
func sameSite(link, domain string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return host == domain
}

// markdownConverter turns sanitized page HTML into markdown.
type markdownConverter struct {
	policy *bluemonday.Policy
	conv   *htmltomarkdown.Converter
}

func newMarkdownConverter() *markdownConverter {
	return &markdownConverter{
		policy: bluemonday.UGCPolicy(),
		conv: htmltomarkdown.NewConverter(
			htmltomarkdown.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// convert sanitizes raw and converts it, truncating the result to max
// bytes on a line boundary.
func (m *markdownConverter) convert(raw, pageURL string, max int) string {
	clean := m.policy.Sanitize(raw)
	md, err := m.conv.ConvertString(clean, htmltomarkdown.WithDomain(pageURL))
	if err != nil {
		return ""
	}
	md = strings.TrimSpace(md)
	if len(md) > max {
		cut := md[:max]
		if i := strings.LastIndexByte(cut, '\n'); i > 0 {
			cut = cut[:i]
		}
		md = strings.ToValidUTF8(cut, "") + "\n\n…"
	}
	return md
}
