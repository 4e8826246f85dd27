package finder

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// path is an ordered list of candidates, nearest to the target first.
type path []*candidate

func (p path) penalty() float64 {
	var total float64
	for _, c := range p {
		total += c.penalty
	}
	return total
}

// selector builds the structural query for p. Adjacent depths are joined with
// the child combinator, anything else with the descendant combinator.
func selector(p path) string {
	if len(p) == 0 {
		return ""
	}
	prev := p[0]
	query := prev.name
	for _, c := range p[1:] {
		if prev.level == c.level-1 {
			query = c.name + " > " + query
		} else {
			query = c.name + " " + query
		}
		prev = c
	}
	return query
}

// compile returns the cached matcher for query.
func (s *search) compile(query string) (cascadia.Selector, error) {
	if sel, ok := s.compiled[query]; ok {
		return sel, nil
	}
	sel, err := cascadia.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", ErrInvariant, query, err)
	}
	s.compiled[query] = sel
	return sel, nil
}

// queryAll evaluates query against the descendants of within.
func (s *search) queryAll(within *html.Node, query string) ([]*html.Node, error) {
	sel, err := s.compile(query)
	if err != nil {
		return nil, err
	}
	return cascadia.QueryAll(within, sel), nil
}

// unique reports whether p identifies exactly one node, falling back on text
// content when the structure alone is ambiguous.
func (s *search) unique(p path) (bool, error) {
	query := selector(p)
	matches, err := s.queryAll(s.scope, query)
	if err != nil {
		return false, err
	}

	if len(matches) > 1 && p[0].content != "" {
		matches = filterContent(matches, p[0].content)
		if len(matches) == 1 {
			p[0].contentUnique = true
		}
	}

	switch len(matches) {
	case 0:
		return false, fmt.Errorf("%w: %q selects no node", ErrInvariant, query)
	case 1:
		return true, nil
	default:
		return s.uniqueInAncestorContent(p)
	}
}

// uniqueInAncestorContent drops fragments from the near end of p until an
// ancestor fragment, narrowed by its own text content, pins down a single
// subtree holding exactly one match of the dropped fragments: the target.
func (s *search) uniqueInAncestorContent(p path) (bool, error) {
	stack := p
	for len(stack) > 1 {
		dropped := p[:len(p)-len(stack)+1]
		ancestor := stack[1]
		stack = stack[1:]

		if ancestor.content == "" {
			continue
		}
		outer, err := s.queryAll(s.scope, selector(stack))
		if err != nil {
			return false, err
		}
		if len(outer) <= 1 {
			continue
		}

		inner := selector(dropped)
		var survivors []*html.Node
		var hit *html.Node
		for _, el := range outer {
			if !strings.Contains(textContent(el), ancestor.content) {
				continue
			}
			found, err := s.queryAll(el, inner)
			if err != nil {
				return false, err
			}
			if len(found) == 1 {
				survivors = append(survivors, el)
				hit = found[0]
			}
		}

		if len(survivors) == 1 && survivors[0] == ancestor.node && hit == s.target {
			ancestor.contentUnique = true
			s.log.Debug("ancestor content disambiguated",
				zap.String("query", selector(p)),
				zap.String("ancestor", ancestor.name))
			return true, nil
		}
	}
	return false, nil
}

// same reports whether the first node selected by p is the target.
func (s *search) same(p path) (bool, error) {
	sel, err := s.compile(selector(p))
	if err != nil {
		return false, err
	}
	return cascadia.Query(s.scope, sel) == s.target, nil
}

func filterContent(nodes []*html.Node, content string) []*html.Node {
	var out []*html.Node
	for _, n := range nodes {
		if strings.Contains(textContent(n), content) {
			out = append(out, n)
		}
	}
	return out
}
