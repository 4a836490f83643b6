package sns

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractText flattens an HTML fragment into whitespace-normalized plain
// text. Script and style contents are dropped.
func ExtractText(fragment string) string {
	if fragment == "" {
		return ""
	}
	node, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(node)

	return strings.Join(strings.Fields(sb.String()), " ")
}
