// Package trie implements the authoritative name store: a prefix tree with
// one edge per character of a normalized name.
package trie

import (
	"errors"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmptyName   = errors.New("empty name")
	ErrInvalidName = errors.New("name is not valid utf-8")
)

// Record is a name and its address.
type Record struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
}

type node struct {
	children map[rune]*node
	terminal bool
	addr     string
}

func (n *node) child(c rune) *node {
	return n.children[c] // nil map read is fine
}

// Trie is not concurrent safe.
type Trie struct {
	root  *node
	count int
}

func New() *Trie {
	return &Trie{root: new(node)}
}

// Normalize trims spaces and lower-cases name. Invalid utf-8 bytes come
// out as U+FFFD, so callers must check Valid first.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Valid reports whether name is valid utf-8. Names that are not are
// never stored or found.
func Valid(name string) bool {
	return utf8.ValidString(name)
}

// Insert stores addr for name, overwriting a previous address.
func (t *Trie) Insert(name, addr string) error {
	if !Valid(name) {
		return ErrInvalidName
	}
	name = Normalize(name)
	if len(name) == 0 {
		return ErrEmptyName
	}

	n := t.root
	for _, c := range name {
		next := n.child(c)
		if next == nil {
			if n.children == nil {
				n.children = make(map[rune]*node, 1)
			}
			next = new(node)
			n.children[c] = next
		}
		n = next
	}

	if !n.terminal {
		n.terminal = true
		t.count++
	}
	n.addr = addr
	return nil
}

// Search returns the address of name. A name that is only a prefix of
// stored names is not found.
func (t *Trie) Search(name string) (string, bool) {
	if !Valid(name) {
		return "", false
	}
	n := t.find(Normalize(name))
	if n == nil || !n.terminal {
		return "", false
	}
	return n.addr, true
}

func (t *Trie) Contains(name string) bool {
	_, ok := t.Search(name)
	return ok
}

func (t *Trie) find(name string) *node {
	if len(name) == 0 {
		return nil
	}
	n := t.root
	for _, c := range name {
		if n = n.child(c); n == nil {
			return nil
		}
	}
	return n
}

type edge struct {
	parent *node
	c      rune
}

// Remove deletes name and prunes every node on its path that is left with
// no children and no terminal marker. It returns false if name was not stored.
func (t *Trie) Remove(name string) bool {
	if !Valid(name) {
		return false
	}
	name = Normalize(name)
	if len(name) == 0 {
		return false
	}

	path := make([]edge, 0, len(name))
	n := t.root
	for _, c := range name {
		next := n.child(c)
		if next == nil {
			return false
		}
		path = append(path, edge{parent: n, c: c})
		n = next
	}
	if !n.terminal {
		return false
	}

	n.terminal = false
	n.addr = ""
	t.count--

	for i := len(path) - 1; i >= 0; i-- {
		if n.terminal || len(n.children) > 0 {
			break
		}
		e := path[i]
		delete(e.parent.children, e.c)
		n = e.parent
	}
	return true
}

// Walk visits all records depth first, children in ascending character
// order. It stops when fn returns false.
func (t *Trie) Walk(fn func(name, addr string) bool) {
	var buf []rune
	walk(t.root, &buf, fn)
}

func walk(n *node, buf *[]rune, fn func(name, addr string) bool) bool {
	if n.terminal && !fn(string(*buf), n.addr) {
		return false
	}
	keys := make([]rune, 0, len(n.children))
	for c := range n.children {
		keys = append(keys, c)
	}
	slices.Sort(keys)
	for _, c := range keys {
		*buf = append(*buf, c)
		ok := walk(n.children[c], buf, fn)
		*buf = (*buf)[:len(*buf)-1]
		if !ok {
			return false
		}
	}
	return true
}

// Records returns all stored records in Walk order.
func (t *Trie) Records() []Record {
	rs := make([]Record, 0, t.count)
	t.Walk(func(name, addr string) bool {
		rs = append(rs, Record{Name: name, Addr: addr})
		return true
	})
	return rs
}

// Len returns the number of stored names.
func (t *Trie) Len() int {
	return t.count
}

// Nodes returns the number of nodes in the tree, root excluded.
func (t *Trie) Nodes() int {
	total := 0
	stack := []*node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total += len(n.children)
		for _, c := range n.children {
			stack = append(stack, c)
		}
	}
	return total
}
