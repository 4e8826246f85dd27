package finder

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Resolve returns the nodes under scope that r selects. Fragment contents are
// applied the way the search applied them: the target's own content filters
// the query matches by text, and an ancestor's content keeps only the single
// match of the inner chain inside each ancestor carrying that text.
//
// For a Result produced by Find with the default root, Resolve(document, r)
// yields exactly the target.
func Resolve(scope *html.Node, r *Result) ([]*html.Node, error) {
	n := len(r.Fragments)
	if scope == nil || n == 0 {
		return nil, fmt.Errorf("%w: nothing to resolve", ErrInvalidInput)
	}

	nodes, err := matchAll(scope, r.Subquery(0, n))
	if err != nil {
		return nil, err
	}
	if c := r.Fragments[n-1].Content; c != "" {
		nodes = filterContent(nodes, c)
	}

	for i := n - 2; i >= 0 && len(nodes) > 0; i-- {
		content := r.Fragments[i].Content
		if content == "" {
			continue
		}
		outer, err := matchAll(scope, r.Subquery(0, i+1))
		if err != nil {
			return nil, err
		}
		innerSel, err := compileQuery(r.Subquery(i+1, n))
		if err != nil {
			return nil, err
		}

		hits := make(map[*html.Node]struct{})
		for _, o := range filterContent(outer, content) {
			if found := cascadia.QueryAll(o, innerSel); len(found) == 1 {
				hits[found[0]] = struct{}{}
			}
		}

		var kept []*html.Node
		for _, el := range nodes {
			if _, ok := hits[el]; ok {
				kept = append(kept, el)
			}
		}
		nodes = kept
	}
	return nodes, nil
}

func compileQuery(query string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", ErrInvalidInput, query, err)
	}
	return sel, nil
}

func matchAll(scope *html.Node, query string) ([]*html.Node, error) {
	sel, err := compileQuery(query)
	if err != nil {
		return nil, err
	}
	return cascadia.QueryAll(scope, sel), nil
}
