package finder

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Penalties rank candidate kinds; lower is preferred.
const (
	penaltyID    = 0
	penaltyAttr  = 0.5
	penaltyClass = 1
	penaltyTag   = 2
	penaltyAny   = 3
	penaltyNth   = 1
)

// richness selects how many candidates a level keeps.
type richness int

const (
	// richAll keeps every candidate plus an nth-child twin of each.
	richAll richness = iota
	// richSingleNth keeps the best candidate and its nth-child twin.
	richSingleNth
	// richNthOnly keeps only the nth-child form of the best candidate.
	richNthOnly
)

func (r richness) String() string {
	switch r {
	case richAll:
		return "all"
	case richSingleNth:
		return "single+nth"
	case richNthOnly:
		return "nth-only"
	default:
		return "richness(" + strconv.Itoa(int(r)) + ")"
	}
}

// candidate is one selector fragment for one ancestor of the target.
type candidate struct {
	name          string
	content       string // empty means none
	contentUnique bool
	penalty       float64
	level         int
	node          *html.Node // the ancestor this fragment was generated from
}

// level builds the ranked candidates for node n at the given depth.
func (s *search) level(n *html.Node, rich richness, depth int) []*candidate {
	level := s.idCandidates(n)
	if len(level) == 0 {
		level = s.attrCandidates(n)
	}
	if len(level) == 0 {
		level = s.classCandidates(n)
	}
	if len(level) == 0 {
		level = s.tagCandidates(n)
	}
	if len(level) == 0 {
		level = []*candidate{{name: "*", penalty: penaltyAny, node: n}}
	}

	nth := elementIndex(n)

	switch rich {
	case richAll:
		if nth > 0 {
			level = appendNth(level, level, nth)
		}
	case richSingleNth:
		level = level[:1]
		if nth > 0 {
			level = appendNth(level, level, nth)
		}
	case richNthOnly:
		level = level[:1]
		if nth > 0 && dispensableNth(level[0]) {
			level = []*candidate{nthChild(level[0], nth)}
		}
	}

	for _, c := range level {
		c.level = depth
	}
	return level
}

func (s *search) idCandidates(n *html.Node) []*candidate {
	id, ok := getAttr(n, "id")
	if !ok || id == "" || !s.opts.IDName(id) {
		return nil
	}
	return []*candidate{{
		name:    "#" + EscapeIdent(id),
		penalty: penaltyID,
		content: textContent(n),
		node:    n,
	}}
}

func (s *search) attrCandidates(n *html.Node) []*candidate {
	var out []*candidate
	for _, a := range n.Attr {
		if a.Namespace != "" || !s.opts.Attr(a.Key, a.Val) {
			continue
		}
		out = append(out, &candidate{
			name:    "[" + EscapeIdent(a.Key) + `="` + EscapeString(a.Val) + `"]`,
			penalty: penaltyAttr,
			content: textContent(n),
			node:    n,
		})
	}
	return out
}

func (s *search) classCandidates(n *html.Node) []*candidate {
	var out []*candidate
	for _, class := range classList(n) {
		if !s.opts.ClassName(class) {
			continue
		}
		out = append(out, &candidate{
			name:    "." + EscapeIdent(class),
			penalty: penaltyClass,
			content: textContent(n),
			node:    n,
		})
	}
	return out
}

func (s *search) tagCandidates(n *html.Node) []*candidate {
	name := n.Data
	// Foreign elements keep camelCase names that lower-cased type selectors
	// can never match.
	if name != strings.ToLower(name) || !s.opts.TagName(name) {
		return nil
	}
	return []*candidate{{
		name:    EscapeIdent(name),
		penalty: penaltyTag,
		content: textContent(n),
		node:    n,
	}}
}

// appendNth appends to dst an nth-child twin of every eligible candidate in src.
func appendNth(dst, src []*candidate, nth int) []*candidate {
	out := make([]*candidate, len(dst), len(dst)+len(src))
	copy(out, dst)
	for _, c := range src {
		if dispensableNth(c) {
			out = append(out, nthChild(c, nth))
		}
	}
	return out
}

func nthChild(c *candidate, nth int) *candidate {
	return &candidate{
		name:    c.name + ":nth-child(" + strconv.Itoa(nth) + ")",
		penalty: c.penalty + penaltyNth,
		content: c.content,
		node:    c.node,
	}
}

// dispensableNth reports whether c may be qualified with :nth-child. Ids are
// already unique by contract and the html element has no siblings.
func dispensableNth(c *candidate) bool {
	return c.name != "html" && !strings.HasPrefix(c.name, "#")
}
