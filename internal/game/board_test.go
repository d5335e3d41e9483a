package game

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

// play applies moves from the empty board, failing the test on error.
func play(t *testing.T, cols ...int) Board {
	t.Helper()
	b := NewBoard()
	for i, col := range cols {
		next, err := b.ApplyMove(col)
		if err != nil {
			t.Fatalf("move %d (column %d): %v", i, col, err)
		}
		b = next
	}
	return b
}

func countAnchors(b Board) int {
	n := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < Columns; c++ {
			if b.IsWinningCell(r, c) {
				n++
			}
		}
	}
	return n
}

func TestEmptyBoardLegalMoves(t *testing.T) {
	b := NewBoard()
	if b.Turn() != Red {
		t.Fatalf("turn = %v, want red", b.Turn())
	}
	got := b.LegalMoves()
	want := []int{0, 1, 2, 3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("LegalMoves() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("LegalMoves() = %v, want %v", got, want)
		}
	}
}

func TestApplyMoveFullColumn(t *testing.T) {
	b := play(t, 0, 0, 0, 0, 0, 0)
	if h := b.Height(0); h != Rows {
		t.Fatalf("height = %d, want %d", h, Rows)
	}
	for r := 0; r < Rows; r++ {
		want := Red
		if r%2 == 1 {
			want = Yellow
		}
		if got := b.Cell(r, 0); got != want {
			t.Errorf("cell (%d,0) = %v, want %v", r, got, want)
		}
	}
	_, err := b.ApplyMove(0)
	if !errors.Is(err, ErrInvalidColumn) {
		t.Fatalf("ApplyMove on full column: err = %v, want ErrInvalidColumn", err)
	}
	if !errors.Is(err, ErrColumnFull) {
		t.Errorf("ApplyMove on full column: err = %v, want ErrColumnFull", err)
	}
	if h := b.Height(0); h != Rows {
		t.Errorf("height changed to %d after failed move", h)
	}
	for _, m := range b.LegalMoves() {
		if m == 0 {
			t.Errorf("full column 0 still listed as legal")
		}
	}
}

func TestApplyMoveOutOfRange(t *testing.T) {
	b := NewBoard()
	for _, col := range []int{-1, Columns, 100} {
		if _, err := b.ApplyMove(col); !errors.Is(err, ErrInvalidColumn) {
			t.Errorf("ApplyMove(%d): err = %v, want ErrInvalidColumn", col, err)
		}
	}
}

func TestApplyMoveIsImmutable(t *testing.T) {
	b := play(t, 3)
	before := b
	next, err := b.ApplyMove(3)
	if err != nil {
		t.Fatal(err)
	}
	if b != before {
		t.Fatalf("ApplyMove mutated its receiver")
	}
	if next.Turn() != Red || b.Turn() != Yellow {
		t.Errorf("turns: receiver %v, next %v", b.Turn(), next.Turn())
	}
	if next.Cell(1, 3) != Yellow {
		t.Errorf("cell (1,3) = %v, want yellow", next.Cell(1, 3))
	}
}

func TestLegalMovesNonIncreasing(t *testing.T) {
	for col := 0; col < Columns; col++ {
		b := NewBoard()
		prev := len(b.LegalMoves())
		for i := 0; i < Rows; i++ {
			next, err := b.ApplyMove(col)
			if err != nil {
				t.Fatalf("column %d move %d: %v", col, i, err)
			}
			b = next
			n := len(b.LegalMoves())
			if n > prev {
				t.Fatalf("column %d: legal moves grew from %d to %d", col, prev, n)
			}
			prev = n
		}
		if prev != Columns-1 {
			t.Errorf("column %d: %d legal moves after filling, want %d", col, prev, Columns-1)
		}
	}
}

func TestLegalMovesEmptyOnlyWhenFull(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := NewBoard()
	for !b.IsFull() {
		moves := b.LegalMoves()
		if len(moves) == 0 {
			t.Fatalf("no legal moves on a board with %d pieces", b.MoveCount())
		}
		next, err := b.ApplyMove(moves[rng.Intn(len(moves))])
		if err != nil {
			t.Fatal(err)
		}
		b = next
	}
	if n := len(b.LegalMoves()); n != 0 {
		t.Errorf("full board has %d legal moves", n)
	}
	for c := 0; c < Columns; c++ {
		if b.Height(c) != Rows {
			t.Errorf("column %d height %d on a full board", c, b.Height(c))
		}
	}
}

func TestIsWinningCellAnchorsOnce(t *testing.T) {
	tests := []struct {
		name   string
		moves  []int
		anchor [2]int
	}{
		{"horizontal", []int{0, 0, 1, 1, 2, 2, 3}, [2]int{0, 0}},
		{"vertical", []int{0, 1, 0, 1, 0, 1, 0}, [2]int{0, 0}},
		{"diagonal up-right", []int{0, 1, 1, 2, 2, 3, 2, 3, 3, 6, 3}, [2]int{0, 0}},
		{"diagonal up-left", []int{6, 5, 5, 4, 4, 3, 4, 3, 3, 0, 3}, [2]int{0, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := play(t, tt.moves...)
			if !b.IsWinningCell(tt.anchor[0], tt.anchor[1]) {
				t.Fatalf("anchor %v not detected\n%s", tt.anchor, b)
			}
			if n := countAnchors(b); n != 1 {
				t.Errorf("found %d anchors, want 1\n%s", n, b)
			}
			if runs := b.WinningRuns(); len(runs) != 1 || runs[0][0] != tt.anchor {
				t.Errorf("WinningRuns() = %v", runs)
			}
			if b.Winner() != Red {
				t.Errorf("Winner() = %v, want red", b.Winner())
			}
		})
	}
}

func TestIsWinningCellFiveInARow(t *testing.T) {
	var grid [Rows][Columns]Color
	for c := 0; c < 5; c++ {
		grid[0][c] = Yellow
	}
	b, err := FromGrid(grid, Red)
	if err != nil {
		t.Fatal(err)
	}
	// Five in a row holds two overlapping runs.
	if n := countAnchors(b); n != 2 {
		t.Fatalf("found %d anchors, want 2", n)
	}
	if !b.IsWinningCell(0, 0) || !b.IsWinningCell(0, 1) {
		t.Errorf("expected anchors at (0,0) and (0,1)")
	}
	if b.IsWinningCell(0, 2) {
		t.Errorf("(0,2) does not start four in a row")
	}
}

func TestIsWinningCellEmptyAndOutOfRange(t *testing.T) {
	b := NewBoard()
	if b.IsWinningCell(0, 0) || b.IsWinningCell(-1, 3) || b.IsWinningCell(Rows, 0) {
		t.Errorf("empty or out-of-range cell reported as winning")
	}
}

func TestFromGridRejectsFloatingPiece(t *testing.T) {
	var grid [Rows][Columns]Color
	grid[2][4] = Red
	if _, err := FromGrid(grid, Red); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("err = %v, want ErrCorruptState", err)
	}
	if _, err := FromGrid([Rows][Columns]Color{}, Empty); !errors.Is(err, ErrCorruptState) {
		t.Errorf("empty turn: err = %v, want ErrCorruptState", err)
	}
}

func TestWithTurnOverride(t *testing.T) {
	b := play(t, 3).WithTurn(Red)
	next, err := b.ApplyMove(3)
	if err != nil {
		t.Fatal(err)
	}
	if next.Cell(1, 3) != Red {
		t.Errorf("override ignored: cell (1,3) = %v", next.Cell(1, 3))
	}
}

func TestIsOverOnFullBoardWithoutWinner(t *testing.T) {
	// Columns filled in pairs with a shifted pattern never line up four.
	order := []int{0, 1, 0, 1, 0, 1, 1, 0, 1, 0, 1, 0,
		2, 3, 2, 3, 2, 3, 3, 2, 3, 2, 3, 2,
		4, 5, 4, 5, 4, 5, 5, 4, 5, 4, 5, 4,
		6, 6, 6, 6, 6, 6}
	b := play(t, order...)
	if !b.IsFull() {
		t.Fatalf("board not full: %d pieces", b.MoveCount())
	}
	if !b.IsOver() {
		t.Errorf("full board not over")
	}
}

func TestStringRendersTopRowFirst(t *testing.T) {
	s := play(t, 2).String()
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	bottom := lines[len(lines)-3]
	if !strings.Contains(bottom, "RR") {
		t.Errorf("bottom row %q lacks the red piece\n%s", bottom, s)
	}
	if strings.Contains(lines[2], "RR") {
		t.Errorf("top row %q shows a piece", lines[2])
	}
}

func TestParseColor(t *testing.T) {
	for in, want := range map[string]Color{"red": Red, "R": Red, " Yellow ": Yellow, "y": Yellow} {
		got, err := ParseColor(in)
		if err != nil || got != want {
			t.Errorf("ParseColor(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseColor("green"); err == nil {
		t.Errorf("ParseColor(green) succeeded")
	}
}
