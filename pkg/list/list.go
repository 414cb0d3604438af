package list

import "fmt"

// Nil is the handle returned when there is no element.
const Nil = -1

const (
	head = 0 // sentinel, head.next is the front
	tail = 1 // sentinel, tail.prev is the back
)

// List is a doubly linked list whose elements live in a slice arena and are
// addressed by stable integer handles. Handles stay valid until the element
// is removed. Freed slots are reused by later pushes.
type List[V any] struct {
	nodes  []node[V]
	free   []int
	length int
}

type node[V any] struct {
	prev, next int
	inUse      bool
	v          V
}

func New[V any](sizeHint int) *List[V] {
	if sizeHint < 0 {
		sizeHint = 0
	}
	l := &List[V]{nodes: make([]node[V], 2, sizeHint+2)}
	l.reset()
	return l
}

func (l *List[V]) reset() {
	l.nodes = l.nodes[:2]
	l.nodes[head] = node[V]{prev: Nil, next: tail}
	l.nodes[tail] = node[V]{prev: head, next: Nil}
	l.free = l.free[:0]
	l.length = 0
}

// Init drops all elements. Every outstanding handle becomes invalid.
func (l *List[V]) Init() {
	clear(l.nodes[2:])
	l.reset()
}

func (l *List[V]) Len() int {
	return l.length
}

// Front returns the first element or Nil.
func (l *List[V]) Front() int {
	return l.handle(l.nodes[head].next)
}

// Back returns the last element or Nil.
func (l *List[V]) Back() int {
	return l.handle(l.nodes[tail].prev)
}

func (l *List[V]) Next(h int) int {
	l.mustInUse(h)
	return l.handle(l.nodes[h].next)
}

func (l *List[V]) Prev(h int) int {
	l.mustInUse(h)
	return l.handle(l.nodes[h].prev)
}

// Value returns a pointer to the element's value. The pointer is only valid
// until the next push, which may grow the arena.
func (l *List[V]) Value(h int) *V {
	l.mustInUse(h)
	return &l.nodes[h].v
}

func (l *List[V]) PushBack(v V) int {
	h := l.alloc(v)
	l.insertBefore(tail, h)
	return h
}

// MoveToBack moves an existing element to the back in O(1).
// Does not change length.
func (l *List[V]) MoveToBack(h int) {
	l.mustInUse(h)
	if l.nodes[tail].prev == h {
		return
	}
	l.unlink(h)
	l.insertBefore(tail, h)
}

// Remove unlinks the element, releases its slot and returns its value.
func (l *List[V]) Remove(h int) V {
	l.mustInUse(h)
	l.unlink(h)
	n := &l.nodes[h]
	v := n.v
	*n = node[V]{prev: Nil, next: Nil}
	l.free = append(l.free, h)
	l.length--
	return v
}

func (l *List[V]) alloc(v V) int {
	l.length++
	if k := len(l.free); k > 0 {
		h := l.free[k-1]
		l.free = l.free[:k-1]
		l.nodes[h] = node[V]{inUse: true, v: v}
		return h
	}
	l.nodes = append(l.nodes, node[V]{inUse: true, v: v})
	return len(l.nodes) - 1
}

// insertBefore links the detached element h in front of at.
func (l *List[V]) insertBefore(at, h int) {
	p := l.nodes[at].prev
	l.nodes[h].prev = p
	l.nodes[h].next = at
	l.nodes[p].next = h
	l.nodes[at].prev = h
}

func (l *List[V]) unlink(h int) {
	p, n := l.nodes[h].prev, l.nodes[h].next
	l.nodes[p].next = n
	l.nodes[n].prev = p
}

func (l *List[V]) handle(h int) int {
	if h == head || h == tail {
		return Nil
	}
	return h
}

func (l *List[V]) mustInUse(h int) {
	if h <= tail || h >= len(l.nodes) || !l.nodes[h].inUse {
		panic(fmt.Sprintf("list: invalid element handle %d", h))
	}
}
