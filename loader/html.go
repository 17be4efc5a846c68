package loader

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements end a line of text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Blockquote: true, atom.Tr: true, atom.Aside: true,
}

// HTMLToText extracts the visible text of an HTML fragment such as a
// Discourse post's cooked body. Scripts and styles are dropped, images
// contribute their alt text and block elements end a line.
func HTMLToText(fragment string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, n := range nodes {
		writeText(&sb, n)
	}
	return strings.TrimSpace(sb.String()), nil
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style:
			return
		case atom.Img:
			for _, a := range n.Attr {
				if a.Key == "alt" && a.Val != "" {
					sb.WriteString(a.Val)
				}
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
	if n.Type == html.ElementNode && blockElements[n.DataAtom] {
		sb.WriteByte('\n')
	}
}
