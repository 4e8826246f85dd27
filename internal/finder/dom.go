package finder

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// textContent mirrors the DOM textContent of an element: every descendant
// text node concatenated in document order.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// parentElement returns the parent of n if it is an element, nil otherwise.
func parentElement(n *html.Node) *html.Node {
	if n.Parent == nil || n.Parent.Type != html.ElementNode {
		return nil
	}
	return n.Parent
}

// elementIndex returns the 1-based position of n among its parent's element
// children, or 0 when n has no parent.
func elementIndex(n *html.Node) int {
	if n.Parent == nil {
		return 0
	}
	i := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			i++
		}
		if c == n {
			return i
		}
	}
	return 0
}

// getAttr returns the value of the first attribute named key.
func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// classList splits the class attribute on ASCII whitespace, dropping
// duplicates like DOMTokenList does.
func classList(n *html.Node) []string {
	val, ok := getAttr(n, "class")
	if !ok {
		return nil
	}
	tokens := strings.FieldsFunc(val, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			return true
		}
		return false
	})
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// treeRoot returns the topmost ancestor of n (the document for parsed pages).
func treeRoot(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// findBody returns the first body element under top, or nil.
func findBody(top *html.Node) *html.Node {
	if top.Type == html.ElementNode && top.DataAtom == atom.Body {
		return top
	}
	for c := top.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// isAncestor reports whether a is a strict ancestor of n.
func isAncestor(a, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}

func isHTMLRoot(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Namespace == "" && n.DataAtom == atom.Html
}
