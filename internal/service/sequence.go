package service

import (
	"sync"
	"sync/atomic"
)

// RequestSequence hands out increasing request numbers and remembers the
// newest one whose response was applied. Responses that arrive out of
// order are discarded instead of overwriting fresher state.
type RequestSequence struct {
	issued  atomic.Uint64
	applied atomic.Uint64
}

func (s *RequestSequence) Next() uint64 {
	return s.issued.Add(1)
}

// IsLatest reports whether no request was issued after seq.
func (s *RequestSequence) IsLatest(seq uint64) bool {
	return s.issued.Load() == seq
}

// Apply marks seq as applied. It returns false when a newer response won.
func (s *RequestSequence) Apply(seq uint64) bool {
	for {
		cur := s.applied.Load()
		if seq <= cur {
			return false
		}
		if s.applied.CompareAndSwap(cur, seq) {
			return true
		}
	}
}

// KeyedSequence keeps one RequestSequence per key, e.g. per user for typeahead.
type KeyedSequence struct {
	mu   sync.Mutex
	seqs map[string]*RequestSequence
}

func NewKeyedSequence() *KeyedSequence {
	return &KeyedSequence{seqs: make(map[string]*RequestSequence)}
}

func (k *KeyedSequence) For(key string) *RequestSequence {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.seqs[key]
	if !ok {
		s = &RequestSequence{}
		k.seqs[key] = s
	}
	return s
}
