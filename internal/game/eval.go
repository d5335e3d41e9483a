package game

import "math"

const (
	// WinScore is the contribution of each anchored four-in-a-row.
	WinScore = 10000.0
	// ResolvedThreshold separates decided games from positional advantage.
	// Positional sums stay well below it; any single run exceeds it.
	ResolvedThreshold = 1000.0
)

// positionalWeight is the chance of a square taking part in a winning
// line, normalized so the centre scores highest. Indexed [row][col].
var positionalWeight = [Rows][Columns]float64{
	{0.917, 1.000, 1.050, 1.107, 1.050, 1.000, 0.917},
	{1.000, 1.083, 1.125, 1.150, 1.125, 1.083, 1.000},
	{1.050, 1.125, 1.159, 1.173, 1.159, 1.125, 1.050},
	{1.050, 1.125, 1.159, 1.173, 1.159, 1.125, 1.050},
	{1.000, 1.083, 1.125, 1.150, 1.125, 1.083, 1.000},
	{0.917, 1.000, 1.050, 1.107, 1.050, 1.000, 0.917},
}

// PositionalWeight returns the table weight for (row, col).
func PositionalWeight(row, col int) float64 {
	return positionalWeight[row][col]
}

// Evaluate scores b from Red's perspective. Anchored runs add ±WinScore
// each, so overlapping runs stack; other pieces add their positional weight.
func Evaluate(b Board) float64 {
	score := 0.0
	for c := 0; c < Columns; c++ {
		for r := 0; r < int(b.heights[c]); r++ {
			piece := b.grid[r][c]
			if b.IsWinningCell(r, c) {
				score += WinScore * piece.Sign()
			} else {
				score += positionalWeight[r][c] * piece.Sign()
			}
		}
	}
	return score
}

// Score is Evaluate(b).
func (b Board) Score() float64 { return Evaluate(b) }

// IsResolved reports whether b already holds a four-in-a-row.
func (b Board) IsResolved() bool { return IsResolvedScore(b.Score()) }

// IsResolvedScore applies the decided-game threshold to a score.
func IsResolvedScore(score float64) bool {
	return math.Abs(score) > ResolvedThreshold
}
