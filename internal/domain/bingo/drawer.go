package bingo

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// Drawer draws numbers 1..MaxNumber without replacement by sampling the
// explicit remaining set.
type Drawer struct {
	rng       *rand.Rand
	remaining []int
	called    []int
}

// NewDrawer returns a drawer with the full domain available.
func NewDrawer(seed uint64) *Drawer {
	return RestoreDrawer(seed, nil)
}

// RestoreDrawer returns a drawer that has already called the given numbers.
// Out-of-range and repeated entries in called are ignored.
func RestoreDrawer(seed uint64, called []int) *Drawer {
	d := &Drawer{
		rng:    rand.New(rand.NewPCG(seed, ^seed)),
		called: make([]int, 0, MaxNumber),
	}

	seen := make(map[int]bool, len(called))
	for _, n := range called {
		if n < 1 || n > MaxNumber || seen[n] {
			continue
		}
		seen[n] = true
		d.called = append(d.called, n)
	}

	d.remaining = make([]int, 0, MaxNumber-len(d.called))
	for n := 1; n <= MaxNumber; n++ {
		if !seen[n] {
			d.remaining = append(d.remaining, n)
		}
	}
	return d
}

// Next draws the next number. ok is false once the domain is exhausted.
func (d *Drawer) Next() (n int, ok bool) {
	if len(d.remaining) == 0 {
		return 0, false
	}
	i := d.rng.IntN(len(d.remaining))
	n = d.remaining[i]
	last := len(d.remaining) - 1
	d.remaining[i] = d.remaining[last]
	d.remaining = d.remaining[:last]
	d.called = append(d.called, n)
	return n, true
}

// Called returns a copy of the called sequence in draw order.
func (d *Drawer) Called() []int {
	out := make([]int, len(d.called))
	copy(out, d.called)
	return out
}

// Remaining returns how many numbers can still be drawn.
func (d *Drawer) Remaining() int {
	return len(d.remaining)
}
