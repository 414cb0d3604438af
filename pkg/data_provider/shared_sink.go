package data_provider

import (
	"sync"

	"github.com/pmkol/quickdns/pkg/trie"
)

// SharedSink lets several record sources feed one RecordSink. Each source
// writes through its own view from Source. A name is removed from the
// underlying sink only once no source lists it anymore. When the source
// that wrote the current address drops a name that others still list,
// the address of the most recently registered remaining source is
// restored.
type SharedSink struct {
	mu      sync.Mutex
	sink    RecordSink
	sources []*sourceSink
	refs    map[string]int
}

func NewSharedSink(sink RecordSink) *SharedSink {
	return &SharedSink{
		sink: sink,
		refs: make(map[string]int),
	}
}

// Source registers a new record source and returns its view.
func (s *SharedSink) Source() RecordSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss := &sourceSink{s: s, names: make(map[string]string)}
	s.sources = append(s.sources, ss)
	return ss
}

// Refs returns the number of sources listing name.
func (s *SharedSink) Refs(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[trie.Normalize(name)]
}

type sourceSink struct {
	s     *SharedSink
	names map[string]string // normalized name -> addr, guarded by s.mu
}

func (ss *sourceSink) AddDomain(name, addr string) error {
	s := ss.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sink.AddDomain(name, addr); err != nil {
		return err
	}
	key := trie.Normalize(name)
	if _, ok := ss.names[key]; !ok {
		s.refs[key]++
	}
	ss.names[key] = addr
	return nil
}

func (ss *sourceSink) RemoveDomain(name string) bool {
	s := ss.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := trie.Normalize(name)
	if _, ok := ss.names[key]; !ok {
		return false
	}
	delete(ss.names, key)
	s.refs[key]--
	if s.refs[key] > 0 {
		for i := len(s.sources) - 1; i >= 0; i-- {
			if addr, ok := s.sources[i].names[key]; ok {
				_ = s.sink.AddDomain(key, addr) // accepted once already
				break
			}
		}
		return false
	}
	delete(s.refs, key)
	return s.sink.RemoveDomain(key)
}
