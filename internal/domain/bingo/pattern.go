package bingo

// Pattern names a winning shape on a card.
type Pattern string

const (
	PatternRow      Pattern = "row"
	PatternColumn   Pattern = "column"
	PatternDiagonal Pattern = "diagonal"
	PatternCorners  Pattern = "corners"
)

// Win describes the first winning pattern found on a card.
// Index is the row, column or diagonal (0 main, 1 anti) number.
type Win struct {
	Pattern Pattern `json:"pattern"`
	Index   int     `json:"index"`
}

// Marks computes which cells are covered by the called numbers.
// Marks are always derived server side; clients never submit them.
func Marks(card Card, called []int) [gridSize][gridSize]bool {
	set := make(map[int]struct{}, len(called))
	for _, n := range called {
		set[n] = struct{}{}
	}

	var marks [gridSize][gridSize]bool
	for row := 0; row < gridSize; row++ {
		for col := 0; col < gridSize; col++ {
			n := card.Grid[row][col]
			if n == FreeCell {
				marks[row][col] = true
				continue
			}
			_, marks[row][col] = set[n]
		}
	}
	return marks
}

// CheckWin reports whether card holds a winning pattern against called.
func CheckWin(card Card, called []int) (Win, bool) {
	m := Marks(card, called)

	for row := 0; row < gridSize; row++ {
		if m[row][0] && m[row][1] && m[row][2] && m[row][3] && m[row][4] {
			return Win{Pattern: PatternRow, Index: row}, true
		}
	}
	for col := 0; col < gridSize; col++ {
		if m[0][col] && m[1][col] && m[2][col] && m[3][col] && m[4][col] {
			return Win{Pattern: PatternColumn, Index: col}, true
		}
	}

	main, anti := true, true
	for i := 0; i < gridSize; i++ {
		main = main && m[i][i]
		anti = anti && m[i][gridSize-1-i]
	}
	if main {
		return Win{Pattern: PatternDiagonal, Index: 0}, true
	}
	if anti {
		return Win{Pattern: PatternDiagonal, Index: 1}, true
	}

	last := gridSize - 1
	if m[0][0] && m[0][last] && m[last][0] && m[last][last] {
		return Win{Pattern: PatternCorners}, true
	}

	return Win{}, false
}
