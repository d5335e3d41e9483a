package game

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Columns = 7
	Rows    = 6
	// Cells is the number of squares on the board; a game with this many
	// moves played is over.
	Cells = Rows * Columns
)

// Color is the content of a cell and also names the side to move.
type Color int8

const (
	Empty Color = iota
	Red
	Yellow
)

var (
	ErrInvalidColumn = errors.New("invalid column")
	ErrColumnFull    = fmt.Errorf("%w: column is full", ErrInvalidColumn)
	ErrCorruptState  = errors.New("corrupt board state")
)

// Opponent returns the other side. Empty has no opponent.
func (c Color) Opponent() Color {
	switch c {
	case Red:
		return Yellow
	case Yellow:
		return Red
	}
	return Empty
}

// Sign is +1 for Red and -1 for Yellow: scores are from Red's perspective.
func (c Color) Sign() float64 {
	switch c {
	case Red:
		return 1
	case Yellow:
		return -1
	}
	return 0
}

// Maximizing reports whether c is the side that maximizes the score.
func (c Color) Maximizing() bool { return c == Red }

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Yellow:
		return "yellow"
	}
	return "empty"
}

// ParseColor accepts "red"/"r" and "yellow"/"y" in any case.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red", "r":
		return Red, nil
	case "yellow", "y":
		return Yellow, nil
	}
	return Empty, fmt.Errorf("unknown color %q", s)
}

// Board is an immutable Connect Four position. Row 0 is the bottom row.
// The zero value is not a valid board; use NewBoard.
type Board struct {
	grid    [Rows][Columns]Color
	heights [Columns]int8
	turn    Color
}

// NewBoard returns the empty board with Red to move.
func NewBoard() Board {
	return Board{turn: Red}
}

// FromGrid builds a board from explicit cell contents. Every column must be
// filled contiguously from row 0. The turn is taken as given so analysis
// callers can set up positions that are not reachable by alternation.
func FromGrid(grid [Rows][Columns]Color, turn Color) (Board, error) {
	if turn != Red && turn != Yellow {
		return Board{}, fmt.Errorf("%w: turn %d", ErrCorruptState, turn)
	}
	b := Board{grid: grid, turn: turn}
	for c := 0; c < Columns; c++ {
		h := 0
		for r := 0; r < Rows; r++ {
			switch grid[r][c] {
			case Empty:
			case Red, Yellow:
				if h != r {
					return Board{}, fmt.Errorf("%w: floating piece at row %d column %d", ErrCorruptState, r, c)
				}
				h++
			default:
				return Board{}, fmt.Errorf("%w: cell value %d at row %d column %d", ErrCorruptState, grid[r][c], r, c)
			}
		}
		b.heights[c] = int8(h)
	}
	return b, nil
}

// Turn returns the side to move.
func (b Board) Turn() Color { return b.turn }

// WithTurn returns a copy of b with the side to move overridden. Callers are
// responsible for keeping the result meaningful.
func (b Board) WithTurn(turn Color) Board {
	b.turn = turn
	return b
}

// Cell returns the piece at (row, col), or Empty when out of range.
func (b Board) Cell(row, col int) Color {
	if row < 0 || row >= Rows || col < 0 || col >= Columns {
		return Empty
	}
	return b.grid[row][col]
}

// Height returns the number of pieces in column col.
func (b Board) Height(col int) int {
	if col < 0 || col >= Columns {
		return 0
	}
	return int(b.heights[col])
}

// MoveCount returns the number of pieces on the board.
func (b Board) MoveCount() int {
	n := 0
	for _, h := range b.heights {
		n += int(h)
	}
	return n
}

// IsFull reports whether no column accepts another piece.
func (b Board) IsFull() bool { return b.MoveCount() == Cells }

// CanPlay reports whether col is on the board and not full.
func (b Board) CanPlay(col int) bool {
	return col >= 0 && col < Columns && b.heights[col] < Rows
}

// LegalMoves returns the playable columns in ascending order. Search relies
// on this order for its tie-break.
func (b Board) LegalMoves() []int {
	moves := make([]int, 0, Columns)
	for c := 0; c < Columns; c++ {
		if b.heights[c] < Rows {
			moves = append(moves, c)
		}
	}
	return moves
}

// ApplyMove drops the side to move's piece into col and returns the new
// position with the turn flipped. b itself is unchanged.
func (b Board) ApplyMove(col int) (Board, error) {
	if col < 0 || col >= Columns {
		return Board{}, fmt.Errorf("%w: %d", ErrInvalidColumn, col)
	}
	if b.heights[col] >= Rows {
		return Board{}, fmt.Errorf("%w: %d", ErrColumnFull, col)
	}
	next := b
	next.grid[next.heights[col]][col] = b.turn
	next.heights[col]++
	next.turn = b.turn.Opponent()
	return next, nil
}

// directions scan strictly forward from an anchor so that each physical run
// is found once: right, up, up-right and up-left.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// IsWinningCell reports whether the piece at (row, col) anchors four
// identical pieces in one of the forward directions.
func (b Board) IsWinningCell(row, col int) bool {
	piece := b.Cell(row, col)
	if piece == Empty {
		return false
	}
	for _, d := range directions {
		if b.runFrom(row, col, d[0], d[1], piece) {
			return true
		}
	}
	return false
}

func (b Board) runFrom(row, col, dr, dc int, piece Color) bool {
	for i := 1; i < 4; i++ {
		r, c := row+i*dr, col+i*dc
		if r < 0 || r >= Rows || c < 0 || c >= Columns || b.grid[r][c] != piece {
			return false
		}
	}
	return true
}

// WinningRuns returns every four-in-a-row on the board as its four cells,
// anchor first. Each physical run appears once.
func (b Board) WinningRuns() [][4][2]int {
	var runs [][4][2]int
	for r := 0; r < Rows; r++ {
		for c := 0; c < Columns; c++ {
			piece := b.grid[r][c]
			if piece == Empty {
				continue
			}
			for _, d := range directions {
				if b.runFrom(r, c, d[0], d[1], piece) {
					var run [4][2]int
					for i := range run {
						run[i] = [2]int{r + i*d[0], c + i*d[1]}
					}
					runs = append(runs, run)
				}
			}
		}
	}
	return runs
}

// Winner returns the color owning a four-in-a-row, or Empty. Legal play
// never produces runs for both sides; if a hand-built board has both, the
// sign of the score decides.
func (b Board) Winner() Color {
	score := b.Score()
	switch {
	case score > ResolvedThreshold:
		return Red
	case score < -ResolvedThreshold:
		return Yellow
	}
	return Empty
}

// IsOver reports whether the game has ended by a win or a full board.
func (b Board) IsOver() bool {
	return b.IsResolved() || b.IsFull()
}

// String renders the board top row first, as the console shows it.
func (b Board) String() string {
	const labels = "  0    1    2    3    4    5    6\n"
	const rule = "+----+----+----+----+----+----+----+\n"
	var sb strings.Builder
	sb.WriteString(labels)
	sb.WriteString(rule)
	for r := Rows - 1; r >= 0; r-- {
		for c := 0; c < Columns; c++ {
			sb.WriteString("| ")
			switch b.grid[r][c] {
			case Red:
				sb.WriteString("RR ")
			case Yellow:
				sb.WriteString("YY ")
			default:
				sb.WriteString("   ")
			}
		}
		sb.WriteString("|\n")
		sb.WriteString(rule)
	}
	sb.WriteString(labels)
	return sb.String()
}

// MarshalText encodes c as its name.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (c *Color) UnmarshalText(text []byte) error {
	if string(text) == "empty" {
		*c = Empty
		return nil
	}
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
