package finder

import (
	"errors"
	"fmt"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// search holds everything one Find call needs. It is built per call and never
// shared, so concurrent calls on the same tree do not interfere.
type search struct {
	opts   Options
	target *html.Node
	// root bounds the ancestor walk; scope is the node queries run under.
	root  *html.Node
	scope *html.Node

	compiled map[string]cascadia.Selector
	log      *zap.Logger
}

func newSearch(target *html.Node, opts Options) (*search, error) {
	s := &search{
		opts:     opts,
		target:   target,
		compiled: make(map[string]cascadia.Selector),
		log:      opts.Logger,
	}

	top := treeRoot(target)
	body := findBody(top)

	switch {
	case opts.Root == nil || opts.Root == body:
		s.root = body
		if s.root == nil {
			s.root = top
		}
		s.scope = top
	case opts.Root.Type == html.DocumentNode:
		s.root, s.scope = opts.Root, opts.Root
	default:
		if !isAncestor(opts.Root, target) {
			return nil, fmt.Errorf("%w: target is not inside root <%s>", ErrInvalidInput, opts.Root.Data)
		}
		s.root, s.scope = opts.Root, opts.Root
	}

	if s.scope == target {
		return nil, fmt.Errorf("%w: target is the query root", ErrInvalidInput)
	}
	return s, nil
}

// ladder runs the assembler at decreasing richness until one succeeds.
func (s *search) ladder() (path, error) {
	for _, rich := range []richness{richAll, richSingleNth, richNthOnly} {
		p, err := s.bottomUp(rich)
		if err == nil {
			s.log.Debug("unique path assembled",
				zap.Stringer("richness", rich),
				zap.String("query", selector(p)),
				zap.Float64("penalty", p.penalty()))
			return p, nil
		}
		if errors.Is(err, ErrInvariant) {
			return nil, err
		}
		s.log.Debug("richness level failed", zap.Stringer("richness", rich), zap.Error(err))
	}
	return nil, fmt.Errorf("%w: <%s> after all richness levels", ErrNotFound, s.target.Data)
}

// bottomUp walks from the target towards the root, stacking one candidate
// level per ancestor and resolving once enough levels are collected.
func (s *search) bottomUp(rich richness) (path, error) {
	var stop *html.Node
	if s.root.Type == html.ElementNode {
		stop = parentElement(s.root)
	}

	var stack [][]*candidate
	depth := 0
	for cur := s.target; cur != nil && cur != stop; cur = parentElement(cur) {
		stack = append(stack, s.level(cur, rich, depth))
		depth++

		if len(stack) < s.opts.SeedMinLength {
			continue
		}
		p, err := s.findUnique(stack)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}

	p, err := s.findUnique(stack)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errExhausted
	}
	return p, nil
}

// findUnique tries the combinations of stack in penalty order and returns the
// first unique one, or nil if there is none.
func (s *search) findUnique(stack [][]*candidate) (path, error) {
	if n, ok := combinationCount(stack, s.opts.Threshold); !ok {
		s.log.Debug("threshold exceeded",
			zap.Int("depth", len(stack)),
			zap.Int("combinations", n),
			zap.Int("threshold", s.opts.Threshold))
		return nil, errThreshold
	}

	it := newCombinations(stack)
	for p, ok := it.Next(); ok; p, ok = it.Next() {
		found, err := s.unique(p)
		if err != nil {
			return nil, err
		}
		if found {
			return p, nil
		}
	}
	return nil, nil
}
