// Package grammar implements pairwise rule induction over symbol sequences.
//
// The inducer repeatedly contracts the most frequent adjacent symbol pair
// into a new binary rule until no pair reaches the frequency threshold. The
// selection policy is fixed for cross-implementation reproducibility: the
// pair with the highest non-overlapping occurrence count wins, ties break to
// the lexicographically smallest (first, second), and replacement is leftmost
// non-overlapping (a run of k equal symbols yields k/2 replacements).
//
// Pair frequencies are maintained incrementally: the sequence lives in a
// doubly linked list, each substitution adjusts only the counts of pairs
// adjacent to its site, and candidates are drawn from a priority queue with
// lazily invalidated entries. No full rescan happens after a substitution.
package grammar

import (
	"container/heap"
	"fmt"
	"slices"

	"github.com/arloliu/templar/errs"
	"github.com/arloliu/templar/template"
)

type pair struct {
	first  uint32
	second uint32
}

// heapEntry is a candidate snapshot. ver ties the entry to the pair state it
// was pushed under; a mismatch means the entry is stale. prio is an upper
// bound on the pair's non-overlapping count (exact for unequal pairs, and
// for equal pairs once the exact flag is set).
type heapEntry struct {
	p     pair
	prio  int
	ver   uint64
	exact bool
}

type pairHeap []heapEntry

func (h pairHeap) Len() int { return len(h) }

func (h pairHeap) Less(i, j int) bool {
	if h[i].prio != h[j].prio {
		return h[i].prio > h[j].prio
	}
	if h[i].p.first != h[j].p.first {
		return h[i].p.first < h[j].p.first
	}

	return h[i].p.second < h[j].p.second
}

func (h pairHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pairHeap) Push(x any) { *h = append(*h, x.(heapEntry)) }

func (h *pairHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]

	return e
}

// inducer holds the mutable induction state. Nodes never move: the i-th node
// corresponds to the i-th symbol of the input sequence, replacements rewrite
// the left node in place and unlink the right one, so node index order always
// matches sequence order.
type inducer struct {
	syms  []uint32
	next  []int32
	prev  []int32
	alive []bool

	adj     map[pair]int     // exact adjacency counts
	ver     map[pair]uint64  // bumped on every adjacency change
	occ     map[pair][]int32 // left-node indices, may contain stale entries
	h       pairHeap
	minFreq int
}

// Induce runs pairwise rule induction on sequence.
//
// New rules are assigned ids firstRuleID, firstRuleID+1, ... in creation
// order; every rule references only strictly smaller ids. The input sequence
// is not modified.
//
// Parameters:
//   - sequence: Symbol sequence to contract; every reference must be
//     smaller than firstRuleID
//   - firstRuleID: Id assigned to the first created rule, normally the
//     dictionary size
//   - minPairFrequency: Threshold a pair count must reach for a rule to be
//     created (must be at least 2)
//
// Returns:
//   - []template.Rule: Created rules in id order
//   - []uint32: The shortened top-level sequence
//   - error: ErrInvalidPairFrequency or ErrInvalidGrammar
func Induce(sequence []uint32, firstRuleID uint32, minPairFrequency int) ([]template.Rule, []uint32, error) {
	if minPairFrequency < 2 {
		return nil, nil, fmt.Errorf("%w: got %d", errs.ErrInvalidPairFrequency, minPairFrequency)
	}
	for i, ref := range sequence {
		if ref >= firstRuleID {
			return nil, nil, fmt.Errorf("%w: sequence position %d references %d, first rule id is %d",
				errs.ErrInvalidGrammar, i, ref, firstRuleID)
		}
	}

	if len(sequence) < 2 {
		return nil, slices.Clone(sequence), nil
	}

	x := newInducer(sequence, minPairFrequency)

	var rules []template.Rule
	for x.h.Len() > 0 {
		e := heap.Pop(&x.h).(heapEntry)
		if e.ver != x.ver[e.p] {
			continue // stale snapshot
		}

		if e.p.first == e.p.second && !e.exact {
			// Adjacency count over-counts overlapping occurrences in runs
			// of equal symbols. Requeue with the exact count; upper-bound
			// ordering keeps the heap maximum correct.
			count := x.exactCount(e.p)
			if count != e.prio {
				if count >= x.minFreq {
					heap.Push(&x.h, heapEntry{p: e.p, prio: count, ver: x.ver[e.p], exact: true})
				}

				continue
			}
		}

		newID := firstRuleID + uint32(len(rules)) //nolint:gosec
		x.replace(e.p, newID)
		rules = append(rules, template.Rule{Left: e.p.first, Right: e.p.second})
	}

	return rules, x.sequence(), nil
}

func newInducer(sequence []uint32, minFreq int) *inducer {
	n := len(sequence)
	x := &inducer{
		syms:    slices.Clone(sequence),
		next:    make([]int32, n),
		prev:    make([]int32, n),
		alive:   make([]bool, n),
		adj:     make(map[pair]int),
		ver:     make(map[pair]uint64),
		occ:     make(map[pair][]int32),
		minFreq: minFreq,
	}

	for i := range n {
		x.alive[i] = true
		x.prev[i] = int32(i) - 1
		x.next[i] = int32(i) + 1
	}
	x.next[n-1] = -1

	for i := range n - 1 {
		p := pair{sequence[i], sequence[i+1]}
		x.adj[p]++
		x.occ[p] = append(x.occ[p], int32(i))
	}

	for p, count := range x.adj {
		if count >= minFreq {
			x.h = append(x.h, heapEntry{p: p, prio: count, ver: 0})
		}
	}
	heap.Init(&x.h)

	return x
}

// dec removes one adjacency of p.
func (x *inducer) dec(p pair) {
	x.adj[p]--
	x.ver[p]++
	if x.adj[p] >= x.minFreq {
		heap.Push(&x.h, heapEntry{p: p, prio: x.adj[p], ver: x.ver[p]})
	}
}

// inc records a new adjacency of p whose left node is i.
func (x *inducer) inc(p pair, i int32) {
	x.adj[p]++
	x.ver[p]++
	x.occ[p] = append(x.occ[p], i)
	if x.adj[p] >= x.minFreq {
		heap.Push(&x.h, heapEntry{p: p, prio: x.adj[p], ver: x.ver[p]})
	}
}

// valid reports whether node i currently starts an occurrence of p, and
// returns the right node.
func (x *inducer) valid(i int32, p pair) (int32, bool) {
	if !x.alive[i] || x.syms[i] != p.first {
		return -1, false
	}
	j := x.next[i]
	if j < 0 || x.syms[j] != p.second {
		return -1, false
	}

	return j, true
}

// exactCount computes the current non-overlapping occurrence count of an
// equal-symbol pair, compacting its occurrence list as a side effect.
func (x *inducer) exactCount(p pair) int {
	list := x.occ[p]
	slices.Sort(list)

	valid := list[:0]
	count := 0
	lastRight := int32(-1)
	prevSeen := int32(-1)
	for _, i := range list {
		if i == prevSeen {
			continue // duplicate occurrence record
		}
		prevSeen = i

		j, ok := x.valid(i, p)
		if !ok {
			continue
		}
		valid = append(valid, i)

		if i == lastRight {
			continue // overlaps the previously counted occurrence
		}
		count++
		lastRight = j
	}
	x.occ[p] = valid

	return count
}

// replace substitutes every non-overlapping occurrence of p, left to right,
// with the new symbol c, adjusting the counts of all adjacent pairs.
func (x *inducer) replace(p pair, c uint32) {
	list := x.occ[p]
	delete(x.occ, p)
	slices.Sort(list)

	prevSeen := int32(-1)
	for _, i := range list {
		if i == prevSeen {
			continue
		}
		prevSeen = i

		j, ok := x.valid(i, p)
		if !ok {
			continue // stale, or consumed by the previous replacement
		}

		pn := x.prev[i]
		qn := x.next[j]

		if pn >= 0 {
			x.dec(pair{x.syms[pn], p.first})
		}
		x.dec(p)
		if qn >= 0 {
			x.dec(pair{p.second, x.syms[qn]})
		}

		// Rewrite the left node as c and unlink the right node.
		x.alive[j] = false
		x.syms[i] = c
		x.next[i] = qn
		if qn >= 0 {
			x.prev[qn] = i
		}

		if pn >= 0 {
			x.inc(pair{x.syms[pn], c}, pn)
		}
		if qn >= 0 {
			x.inc(pair{c, x.syms[qn]}, i)
		}
	}
}

// sequence collects the surviving symbols in order.
func (x *inducer) sequence() []uint32 {
	out := make([]uint32, 0, len(x.syms))
	for i := int32(0); i >= 0; i = x.next[i] {
		out = append(out, x.syms[i])
	}

	return out
}
