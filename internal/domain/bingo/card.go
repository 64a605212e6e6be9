package bingo

import (
	"fmt"
	"math/rand/v2"
)

const (
	// MaxNumber is the highest number that can be called.
	MaxNumber = 75
	// FreeCell marks the centre cell, which counts as called.
	FreeCell = 0

	gridSize  = 5
	bandWidth = MaxNumber / gridSize
)

// DefaultDeckSeed keeps card layouts identical across restarts.
const DefaultDeckSeed uint64 = 0x52_6f_79_61_6c

var letters = [gridSize]string{"B", "I", "N", "G", "O"}

// Letter returns the column letter for a called number, or "" when out of range.
func Letter(n int) string {
	if n < 1 || n > MaxNumber {
		return ""
	}
	return letters[(n-1)/bandWidth]
}

// Card is a 5x5 bingo card indexed as Grid[row][col].
type Card struct {
	ID   int                     `json:"id"`
	Grid [gridSize][gridSize]int `json:"grid"`
}

// Deck is the fixed set of cards players pick from, numbered from 1.
type Deck struct {
	cards []Card
}

// NewDeck builds count unique cards deterministically from seed.
func NewDeck(count int, seed uint64) *Deck {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	seen := make(map[[gridSize][gridSize]int]struct{}, count)
	cards := make([]Card, 0, count)

	for len(cards) < count {
		grid := randomGrid(rng)
		if _, dup := seen[grid]; dup {
			continue
		}
		seen[grid] = struct{}{}
		cards = append(cards, Card{ID: len(cards) + 1, Grid: grid})
	}

	return &Deck{cards: cards}
}

func randomGrid(rng *rand.Rand) [gridSize][gridSize]int {
	var grid [gridSize][gridSize]int
	for col := 0; col < gridSize; col++ {
		base := col*bandWidth + 1
		perm := rng.Perm(bandWidth)
		for row := 0; row < gridSize; row++ {
			grid[row][col] = base + perm[row]
		}
	}
	grid[gridSize/2][gridSize/2] = FreeCell
	return grid
}

// Cards returns a copy of every card in id order.
func (d *Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Size returns the number of cards in the deck.
func (d *Deck) Size() int {
	return len(d.cards)
}

// Card looks up a card by its 1-based id.
func (d *Deck) Card(id int) (Card, bool) {
	if id < 1 || id > len(d.cards) {
		return Card{}, false
	}
	return d.cards[id-1], true
}

// Verify checks every card has one free cell, 24 distinct numbers in their
// column bands, and that no two cards share a layout.
func (d *Deck) Verify() error {
	seen := make(map[[gridSize][gridSize]int]int, len(d.cards))
	for _, c := range d.cards {
		if other, dup := seen[c.Grid]; dup {
			return fmt.Errorf("card %d duplicates card %d", c.ID, other)
		}
		seen[c.Grid] = c.ID

		zeros := 0
		nums := make(map[int]struct{}, gridSize*gridSize)
		for row := 0; row < gridSize; row++ {
			for col := 0; col < gridSize; col++ {
				n := c.Grid[row][col]
				if n == FreeCell {
					zeros++
					continue
				}
				if Letter(n) != letters[col] {
					return fmt.Errorf("card %d: %d outside column %s", c.ID, n, letters[col])
				}
				nums[n] = struct{}{}
			}
		}
		if zeros != 1 {
			return fmt.Errorf("card %d has %d free cells", c.ID, zeros)
		}
		if len(nums) != gridSize*gridSize-1 {
			return fmt.Errorf("card %d has %d distinct numbers", c.ID, len(nums))
		}
	}
	return nil
}
