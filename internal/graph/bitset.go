package graph

import "math/bits"

// bitset is a fixed-size set of node indices.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) set(i int) {
	b[i/64] |= 1 << (uint(i) % 64)
}

func (b bitset) get(i int) bool {
	return b[i/64]&(1<<(uint(i)%64)) != 0
}

// union merges other into b. Both must have the same length.
func (b bitset) union(other bitset) {
	for i := range b {
		b[i] |= other[i]
	}
}

// members returns the set elements in ascending order.
func (b bitset) members() []int {
	var out []int
	for word, w := range b {
		for w != 0 {
			out = append(out, word*64+bits.TrailingZeros64(w))
			w &= w - 1
		}
	}
	return out
}
