package search

// entry is a heap item pointing at a path node in the arena.
type entry struct {
	f    float64
	seq  uint64
	node int32
}

// queue is a min-heap on (f, seq) for container/heap. seq is the insertion
// counter, so among equal f the first-inserted entry pops first.
type queue []entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(entry)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// pathNode is one step of a partial path. Paths share prefixes through
// parent indices instead of copying growing slices.
type pathNode struct {
	parent int32 // -1 at the start location
	loc    int32
	link   int32 // -1 at the start location
	depth  int32
	g      float64
}

type arena []pathNode

// contains reports whether loc appears on the path ending at node.
func (a arena) contains(node, loc int32) bool {
	for i := node; i >= 0; i = a[i].parent {
		if a[i].loc == loc {
			return true
		}
	}
	return false
}
