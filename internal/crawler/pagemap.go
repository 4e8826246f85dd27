package crawler

import "github.com/v0xg/nodepath/internal/finder"

// PageMap represents the analyzed structure of a web page
type PageMap struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Elements   []Element `json:"elements"`
	Navigation []NavItem `json:"navigation"`
	IsSPA      bool      `json:"isSPA"`
}

// Element represents an interactive element on the page
type Element struct {
	Selector    string            `json:"selector"`    // structural query, combinators included
	Fragments   []finder.Fragment `json:"fragments"`   // path as computed, content where needed
	Combinators []string          `json:"combinators"` // joins between consecutive fragments
	Type        string            `json:"type"`        // button, input type, link, select, checkbox, radio
	Text        string            `json:"text,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Name        string            `json:"name,omitempty"`
	ID          string            `json:"id,omitempty"`
}

// NavItem represents a navigation link
type NavItem struct {
	Selector    string            `json:"selector"`
	Fragments   []finder.Fragment `json:"fragments"`
	Combinators []string          `json:"combinators"`
	Text        string            `json:"text"`
	Href        string            `json:"href"`
}

// Result rebuilds the finder result the element was reported with.
func (el Element) Result() *finder.Result {
	return &finder.Result{Fragments: el.Fragments, Query: el.Selector, Combinators: el.Combinators}
}

// Result rebuilds the finder result the link was reported with.
func (n NavItem) Result() *finder.Result {
	return &finder.Result{Fragments: n.Fragments, Query: n.Selector, Combinators: n.Combinators}
}
