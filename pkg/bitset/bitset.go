// Package bitset implements fixed-size packed bitsets.
// The register allocator keys liveness sets and interference adjacency
// by virtual register id, so sets are dense and word-packed.
package bitset

import "math/bits"

// Set is a fixed-size bitset backed by 64-bit words.
type Set struct {
	words []uint64
	n     int
}

// New returns a zeroed set holding n bits.
func New(n int) Set {
	return Set{words: make([]uint64, (n+63)/64), n: n}
}

// Len returns the number of bits the set holds.
func (s *Set) Len() int { return s.n }

// Test reports whether bit i is set. Out-of-range bits read as false.
func (s *Set) Test(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	return s.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Set sets bit i and reports whether it was already set.
func (s *Set) Set(i int) bool {
	w, m := i/64, uint64(1)<<(uint(i)%64)
	prev := s.words[w]&m != 0
	s.words[w] |= m
	return prev
}

// Clear clears bit i.
func (s *Set) Clear(i int) {
	s.words[i/64] &^= 1 << (uint(i) % 64)
}

// Popcount returns the number of set bits.
func (s *Set) Popcount() int {
	c := 0
	for _, w := range s.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Union ors o into s. The sets must be the same length.
func (s *Set) Union(o Set) {
	for i, w := range o.words {
		s.words[i] |= w
	}
}

// Difference clears every bit of s that is set in o.
func (s *Set) Difference(o Set) {
	for i, w := range o.words {
		s.words[i] &^= w
	}
}

// Equal reports whether the two sets have identical contents.
func (s *Set) Equal(o Set) bool {
	if s.n != o.n {
		return false
	}
	for i, w := range s.words {
		if w != o.words[i] {
			return false
		}
	}
	return true
}

// Copy returns an independent copy of the set.
func (s *Set) Copy() Set {
	w := make([]uint64, len(s.words))
	copy(w, s.words)
	return Set{words: w, n: s.n}
}

// Swap exchanges the contents of s and o.
func (s *Set) Swap(o *Set) {
	s.words, o.words = o.words, s.words
	s.n, o.n = o.n, s.n
}

// Reset clears every bit.
func (s *Set) Reset() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// ForEach calls fn for each set bit in ascending order.
func (s *Set) ForEach(fn func(i int)) {
	for wi, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			fn(wi*64 + b)
			w &= w - 1
		}
	}
}
