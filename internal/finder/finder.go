// Package finder computes a short, unique selector path for a node of an HTML
// tree, falling back on text content where structure alone is ambiguous.
//
// The search walks from the target up to the root, collecting candidate
// fragments (id, attribute, class, tag, wildcard, optionally nth-child
// qualified) per ancestor. Combinations are tried in penalty order until one
// selects the target alone; the winner is then shortened where possible.
// Three richness levels are tried in turn, each cheaper than the last.
package finder

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Options configures a search. Zero values take the defaults listed in
// DefaultOptions.
type Options struct {
	// Root bounds the ancestor walk. Defaults to the document's body.
	Root *html.Node

	IDName    func(name string) bool
	ClassName func(name string) bool
	TagName   func(name string) bool
	Attr      func(name, value string) bool

	SeedMinLength      int // levels stacked before the first resolution
	OptimizedMinLength int // shortest path the optimizer will touch
	Threshold          int // max combinations per resolution

	Logger *zap.Logger
}

// DefaultOptions returns the options every search starts from: all ids,
// classes and tags accepted, attributes rejected.
func DefaultOptions() Options {
	return Options{
		IDName:             func(string) bool { return true },
		ClassName:          func(string) bool { return true },
		TagName:            func(string) bool { return true },
		Attr:               func(string, string) bool { return false },
		SeedMinLength:      1,
		OptimizedMinLength: 2,
		Threshold:          1000,
		Logger:             zap.NewNop(),
	}
}

// merged returns o with its zero fields taken from DefaultOptions.
func (o *Options) merged() Options {
	d := DefaultOptions()
	if o == nil {
		return d
	}
	m := *o
	if m.IDName == nil {
		m.IDName = d.IDName
	}
	if m.ClassName == nil {
		m.ClassName = d.ClassName
	}
	if m.TagName == nil {
		m.TagName = d.TagName
	}
	if m.Attr == nil {
		m.Attr = d.Attr
	}
	if m.SeedMinLength <= 0 {
		m.SeedMinLength = d.SeedMinLength
	}
	if m.OptimizedMinLength <= 0 {
		m.OptimizedMinLength = d.OptimizedMinLength
	}
	if m.Threshold <= 0 {
		m.Threshold = d.Threshold
	}
	if m.Logger == nil {
		m.Logger = d.Logger
	}
	return m
}

// Fragment is one step of a computed path. Content is set only when the
// fragment needed its text to be told apart from structurally identical nodes.
type Fragment struct {
	Name    string
	Content string
}

type fragmentJSON struct {
	Name    string  `json:"name"`
	Content *string `json:"content"`
}

// MarshalJSON encodes an empty Content as null.
func (f Fragment) MarshalJSON() ([]byte, error) {
	v := fragmentJSON{Name: f.Name}
	if f.Content != "" {
		v.Content = &f.Content
	}
	return json.Marshal(v)
}

// UnmarshalJSON accepts null or a string for content.
func (f *Fragment) UnmarshalJSON(data []byte) error {
	var v fragmentJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.Name = v.Name
	f.Content = ""
	if v.Content != nil {
		f.Content = *v.Content
	}
	return nil
}

// Result is a computed path together with its structural query.
type Result struct {
	// Fragments run from the outermost ancestor down to the target.
	Fragments []Fragment `json:"fragments"`
	// Query is the structural selector, combinators included. When a
	// fragment carries content, Query alone matches more than one node.
	Query string `json:"query"`
	// Combinators[i] joins Fragments[i] and Fragments[i+1]: " > " for a
	// direct child, " " for any descendant.
	Combinators []string `json:"combinators"`
	Penalty     float64  `json:"penalty"`
}

// Subquery joins Fragments[from:to] with their combinators. Subquery(0,
// len(Fragments)) equals Query.
func (r *Result) Subquery(from, to int) string {
	var sb strings.Builder
	for i := from; i < to; i++ {
		if i > from {
			if i-1 < len(r.Combinators) {
				sb.WriteString(r.Combinators[i-1])
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(r.Fragments[i].Name)
	}
	return sb.String()
}

// HasContent reports whether any fragment relies on text content.
func (r *Result) HasContent() bool {
	for _, f := range r.Fragments {
		if f.Content != "" {
			return true
		}
	}
	return false
}

// Compute returns the fragment path for target.
func Compute(target *html.Node, opts *Options) ([]Fragment, error) {
	res, err := Find(target, opts)
	if err != nil {
		return nil, err
	}
	return res.Fragments, nil
}

// Find computes the optimized path for target. A nil opts uses the defaults.
func Find(target *html.Node, opts *Options) (*Result, error) {
	if target == nil || target.Type != html.ElementNode {
		return nil, fmt.Errorf("%w: can't generate a selector for a non-element node", ErrInvalidInput)
	}
	if isHTMLRoot(target) {
		return &Result{Fragments: []Fragment{{Name: "html"}}, Query: "html", Combinators: []string{}}, nil
	}

	s, err := newSearch(target, opts.merged())
	if err != nil {
		return nil, err
	}

	p, err := s.ladder()
	if err != nil {
		return nil, err
	}
	p, err = s.optimize(p)
	if err != nil {
		return nil, err
	}
	return toResult(p), nil
}

// toResult reverses p into outermost-first fragments.
func toResult(p path) *Result {
	res := &Result{
		Fragments:   make([]Fragment, len(p)),
		Query:       selector(p),
		Combinators: make([]string, 0, len(p)-1),
		Penalty:     p.penalty(),
	}
	for i, c := range p {
		f := Fragment{Name: c.name}
		if c.contentUnique {
			f.Content = c.content
		}
		res.Fragments[len(p)-1-i] = f
	}
	// p runs nearest first, so p[i+1] is the outer side of each join.
	for i := len(p) - 2; i >= 0; i-- {
		comb := " "
		if p[i].level == p[i+1].level-1 {
			comb = " > "
		}
		res.Combinators = append(res.Combinators, comb)
	}
	return res
}
