package finder

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// optimize shortens a unique path by removing interior fragments. Every
// reduction that stays unique and still selects the target is collected, and
// the cheapest of those and the unreduced path wins.
func (s *search) optimize(p path) (path, error) {
	var found []path
	seen := make(map[string]struct{})
	if err := s.reduce(p, &found, seen); err != nil {
		return nil, err
	}

	all := append(found, p)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].penalty() < all[j].penalty()
	})

	if len(all[0]) < len(p) {
		s.log.Debug("path shortened",
			zap.String("from", selector(p)),
			zap.String("to", selector(all[0])),
			zap.Int("reductions", len(found)))
	}
	return all[0], nil
}

func (s *search) reduce(p path, found *[]path, seen map[string]struct{}) error {
	if len(p) <= 2 || len(p) <= s.opts.OptimizedMinLength {
		return nil
	}
	for i := 1; i < len(p)-1; i++ {
		next := without(p, i)
		key := levelKey(next)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		ok, err := s.unique(next)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		ok, err = s.same(next)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		*found = append(*found, next)
		if err := s.reduce(next, found, seen); err != nil {
			return err
		}
	}
	return nil
}

// without returns a copy of p minus the fragment at i. Candidates are copied
// with contentUnique cleared, so a flag only ever reflects the path that set it.
func without(p path, i int) path {
	out := make(path, 0, len(p)-1)
	for j, c := range p {
		if j == i {
			continue
		}
		cp := *c
		cp.contentUnique = false
		out = append(out, &cp)
	}
	return out
}

// levelKey identifies a reduction by the depths it keeps; within one search
// every depth holds a single fixed fragment.
func levelKey(p path) string {
	var sb strings.Builder
	for i, c := range p {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(strconv.Itoa(c.level))
	}
	return sb.String()
}
