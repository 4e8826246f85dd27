package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/v0xg/nodepath/internal/config"
	"github.com/v0xg/nodepath/internal/finder"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// elementGroup is one family of interactive elements, collected in page order.
type elementGroup struct {
	query  cascadia.Selector
	kind   func(n *html.Node) string
	accept func(n *html.Node) bool
}

var elementGroups = []elementGroup{
	// Buttons
	{
		query: cascadia.MustCompile(`button, [role="button"], input[type="submit"], input[type="button"]`),
		kind:  func(*html.Node) string { return "button" },
	},
	// Input fields
	{
		query: cascadia.MustCompile(`input:not([type="hidden"]):not([type="submit"]):not([type="button"]), textarea`),
		kind:  inputType,
	},
	// Links (skip in-page anchors and scripts)
	{
		query:  cascadia.MustCompile(`a[href]`),
		kind:   func(*html.Node) string { return "link" },
		accept: func(n *html.Node) bool { return isNavigable(attr(n, "href")) },
	},
	// Select dropdowns
	{
		query: cascadia.MustCompile(`select`),
		kind:  func(*html.Node) string { return "select" },
	},
	// Checkboxes and radios
	{
		query: cascadia.MustCompile(`input[type="checkbox"], input[type="radio"]`),
		kind:  inputType,
	},
}

var (
	navQuery   = cascadia.MustCompile(`nav a, header a, [role="navigation"] a`)
	titleQuery = cascadia.MustCompile(`title`)
	spaQuery   = cascadia.MustCompile(`[data-reactroot], #__next, [ng-version], app-root, [class*="svelte-"]`)
)

// Analyze builds a PageMap from a static HTML snapshot, computing a node path
// for every interactive element.
func Analyze(rawHTML []byte, url string, opts Options) (*PageMap, error) {
	opts.defaults()

	doc, err := html.Parse(bytes.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	rules := opts.Rules
	if rules == nil {
		rules = config.Default()
	}
	fopts, err := rules.Options(doc, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("finder options: %w", err)
	}

	a := &analyzer{opts: fopts, log: opts.Logger}

	elements, err := a.elements(doc)
	if err != nil {
		return nil, err
	}
	navigation, err := a.navigation(doc)
	if err != nil {
		return nil, err
	}

	return &PageMap{
		URL:        url,
		Title:      title(doc),
		Elements:   elements,
		Navigation: navigation,
		IsSPA:      hasSPAMarkers(doc),
	}, nil
}

type analyzer struct {
	opts *finder.Options
	log  *zap.Logger
}

// locate computes the path for n. Nodes the finder cannot pin down are
// skipped; only an internal invariant failure aborts the analysis.
func (a *analyzer) locate(n *html.Node) (*finder.Result, error) {
	res, err := finder.Find(n, a.opts)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, finder.ErrInvariant) {
		return nil, err
	}
	a.log.Warn("skipping element", zap.String("tag", n.Data), zap.Error(err))
	return nil, nil
}

func (a *analyzer) elements(doc *html.Node) ([]Element, error) {
	var elements []Element
	seen := make(map[string]struct{})

	for _, g := range elementGroups {
		for _, n := range cascadia.QueryAll(doc, g.query) {
			if !visible(n) || (g.accept != nil && !g.accept(n)) {
				continue
			}
			res, err := a.locate(n)
			if err != nil {
				return nil, err
			}
			if res == nil {
				continue
			}
			key := resultKey(res)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			el := Element{
				Selector:    res.Query,
				Fragments:   res.Fragments,
				Combinators: res.Combinators,
				Type:        g.kind(n),
				Name:        attr(n, "name"),
				ID:          attr(n, "id"),
			}
			switch el.Type {
			case "button", "link":
				text := strings.TrimSpace(textOf(n))
				if text == "" {
					text = attr(n, "value")
				}
				el.Text = truncate(text, 50)
			default:
				el.Placeholder = attr(n, "placeholder")
			}
			elements = append(elements, el)
		}
	}
	return elements, nil
}

func (a *analyzer) navigation(doc *html.Node) ([]NavItem, error) {
	var items []NavItem
	seen := make(map[string]struct{})

	for _, n := range cascadia.QueryAll(doc, navQuery) {
		href := attr(n, "href")
		if !visible(n) || href == "" || !isNavigable(href) {
			continue
		}
		if _, ok := seen[href]; ok {
			continue
		}
		seen[href] = struct{}{}

		res, err := a.locate(n)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		items = append(items, NavItem{
			Selector:    res.Query,
			Fragments:   res.Fragments,
			Combinators: res.Combinators,
			Text:        truncate(strings.TrimSpace(textOf(n)), 30),
			Href:        href,
		})
	}
	return items, nil
}

// resultKey tells apart results whose queries collide but whose contents differ.
func resultKey(res *finder.Result) string {
	var sb strings.Builder
	sb.WriteString(res.Query)
	for _, f := range res.Fragments {
		sb.WriteByte(0)
		sb.WriteString(f.Content)
	}
	return sb.String()
}

func title(doc *html.Node) string {
	n := cascadia.Query(doc, titleQuery)
	if n == nil {
		return ""
	}
	return strings.TrimSpace(textOf(n))
}

// hasSPAMarkers looks for the DOM traces common SPA frameworks leave behind.
func hasSPAMarkers(doc *html.Node) bool {
	if cascadia.Query(doc, spaQuery) != nil {
		return true
	}
	// Vue scoped styles tag elements with data-v-<hash>.
	var found bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for _, a := range n.Attr {
			if strings.HasPrefix(a.Key, "data-v-") {
				found = true
				return
			}
		}
		for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// visible approximates the browser's offsetParent check on a static tree.
func visible(n *html.Node) bool {
	if n.Data == "input" && strings.EqualFold(attr(n, "type"), "hidden") {
		return false
	}
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if _, ok := hasAttr(p, "hidden"); ok {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(attr(p, "style")), " ", "")
		if strings.Contains(style, "display:none") {
			return false
		}
		if p.Data == "template" {
			return false
		}
	}
	return true
}

func inputType(n *html.Node) string {
	if t := strings.ToLower(attr(n, "type")); t != "" {
		return t
	}
	if n.Data == "textarea" {
		return "textarea"
	}
	return "text"
}

func isNavigable(href string) bool {
	return !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:")
}

func attr(n *html.Node, key string) string {
	v, _ := hasAttr(n, key)
	return v
}

func hasAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
