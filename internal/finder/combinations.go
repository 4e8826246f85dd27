package finder

import (
	"container/heap"
	"sort"
	"strconv"
	"strings"
)

// combinationCount returns the size of the cross product of levels, stopping
// early once it passes limit. The second result is false in that case.
func combinationCount(levels [][]*candidate, limit int) (int, bool) {
	total := 1
	for _, l := range levels {
		total *= len(l)
		if total > limit {
			return total, false
		}
	}
	return total, true
}

// combinations yields one-candidate-per-level paths in ascending total
// penalty. Paths of equal penalty come out in enumeration order: nearest level
// most significant, farthest level varying fastest. The result is the same as
// a stable sort of the full cross product, without materializing it.
type combinations struct {
	levels [][]*candidate
	// ranks[l] lists the indices of levels[l] ordered by (penalty, index).
	ranks [][]int
	queue comboQueue
	seen  map[string]struct{}
}

func newCombinations(levels [][]*candidate) *combinations {
	c := &combinations{
		levels: levels,
		ranks:  make([][]int, len(levels)),
		seen:   make(map[string]struct{}),
	}
	for l, level := range levels {
		order := make([]int, len(level))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return level[order[a]].penalty < level[order[b]].penalty
		})
		c.ranks[l] = order
	}
	for _, level := range levels {
		if len(level) == 0 {
			return c
		}
	}
	c.push(make([]int, len(levels)))
	return c
}

// Next returns the next path, or false when the product is exhausted.
func (c *combinations) Next() (path, bool) {
	if c.queue.Len() == 0 {
		return nil, false
	}
	top := heap.Pop(&c.queue).(*combo)
	for l := range top.rank {
		if top.rank[l]+1 >= len(c.levels[l]) {
			continue
		}
		next := make([]int, len(top.rank))
		copy(next, top.rank)
		next[l]++
		c.push(next)
	}

	p := make(path, len(top.index))
	for l, i := range top.index {
		p[l] = c.levels[l][i]
	}
	return p, true
}

func (c *combinations) push(rank []int) {
	key := rankKey(rank)
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}

	cb := &combo{rank: rank, index: make([]int, len(rank))}
	for l, r := range rank {
		i := c.ranks[l][r]
		cb.index[l] = i
		cb.penalty += c.levels[l][i].penalty
	}
	heap.Push(&c.queue, cb)
}

func rankKey(rank []int) string {
	var sb strings.Builder
	for i, r := range rank {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(r))
	}
	return sb.String()
}

type combo struct {
	rank    []int
	index   []int
	penalty float64
}

// comboQueue orders combos by penalty, then by index tuple.
type comboQueue []*combo

func (q comboQueue) Len() int { return len(q) }

func (q comboQueue) Less(i, j int) bool {
	if q[i].penalty != q[j].penalty {
		return q[i].penalty < q[j].penalty
	}
	for l := range q[i].index {
		if q[i].index[l] != q[j].index[l] {
			return q[i].index[l] < q[j].index[l]
		}
	}
	return false
}

func (q comboQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *comboQueue) Push(x any) { *q = append(*q, x.(*combo)) }

func (q *comboQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return x
}
