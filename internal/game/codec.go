package game

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Snapshot is the canonical in-memory shape of a board for persistence
// code: explicit cells, column heights and side to move.
type Snapshot struct {
	Grid    [Rows][Columns]Color `json:"grid"`
	Heights [Columns]int         `json:"heights"`
	Turn    Color                `json:"turn"`
}

// Snapshot exports b.
func (b Board) Snapshot() Snapshot {
	s := Snapshot{Grid: b.grid, Turn: b.turn}
	for c, h := range b.heights {
		s.Heights[c] = int(h)
	}
	return s
}

// FromSnapshot rebuilds a board, rejecting snapshots whose heights disagree
// with their cells.
func FromSnapshot(s Snapshot) (Board, error) {
	b, err := FromGrid(s.Grid, s.Turn)
	if err != nil {
		return Board{}, err
	}
	for c := 0; c < Columns; c++ {
		if s.Heights[c] != int(b.heights[c]) {
			return Board{}, fmt.Errorf("%w: column %d height %d, cells say %d", ErrCorruptState, c, s.Heights[c], b.heights[c])
		}
	}
	return b, nil
}

// Encode returns the canonical text form: six rows bottom first separated
// by '/', each of seven cells '.', 'R' or 'Y', then a space and the side
// to move ("R" or "Y").
func (b Board) Encode() string {
	var sb strings.Builder
	sb.Grow(Rows*(Columns+1) + 2)
	for r := 0; r < Rows; r++ {
		if r > 0 {
			sb.WriteByte('/')
		}
		for c := 0; c < Columns; c++ {
			sb.WriteByte(cellRune(b.grid[r][c]))
		}
	}
	sb.WriteByte(' ')
	sb.WriteByte(cellRune(b.turn))
	return sb.String()
}

// Decode parses the Encode form.
func Decode(s string) (Board, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Board{}, fmt.Errorf("%w: want \"<rows> <turn>\", got %q", ErrCorruptState, s)
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != Rows {
		return Board{}, fmt.Errorf("%w: %d rows", ErrCorruptState, len(rows))
	}
	var grid [Rows][Columns]Color
	for r, row := range rows {
		if len(row) != Columns {
			return Board{}, fmt.Errorf("%w: row %d has %d cells", ErrCorruptState, r, len(row))
		}
		for c := 0; c < Columns; c++ {
			cell, ok := runeCell(row[c])
			if !ok {
				return Board{}, fmt.Errorf("%w: cell %q at row %d column %d", ErrCorruptState, row[c], r, c)
			}
			grid[r][c] = cell
		}
	}
	if len(fields[1]) != 1 {
		return Board{}, fmt.Errorf("%w: turn %q", ErrCorruptState, fields[1])
	}
	turn, ok := runeCell(fields[1][0])
	if !ok || turn == Empty {
		return Board{}, fmt.Errorf("%w: turn %q", ErrCorruptState, fields[1])
	}
	return FromGrid(grid, turn)
}

func cellRune(c Color) byte {
	switch c {
	case Red:
		return 'R'
	case Yellow:
		return 'Y'
	}
	return '.'
}

func runeCell(ch byte) (Color, bool) {
	switch ch {
	case '.':
		return Empty, true
	case 'R', 'r':
		return Red, true
	case 'Y', 'y':
		return Yellow, true
	}
	return Empty, false
}

// MarshalText implements encoding.TextMarshaler with the canonical form.
func (b Board) MarshalText() ([]byte, error) {
	return []byte(b.Encode()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Board) UnmarshalText(text []byte) error {
	decoded, err := Decode(string(text))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// Packed is the compressed board: one word per row, two bits per cell with
// column 0 in the highest pair (bits 13-12). Cell codes are 0 empty, 1 red,
// 2 yellow. Bit 15 of row 0 is set when Yellow is to move. Heights are
// implied by the cells.
type Packed [Rows]uint16

const (
	packedTurnBit  = 1 << 15
	packedCellMask = 1<<(2*Columns) - 1
	// PackedSize is the length of Packed.MarshalBinary output.
	PackedSize = 2 * Rows
)

// Pack compresses b.
func (b Board) Pack() Packed {
	var p Packed
	for r := 0; r < Rows; r++ {
		var word uint16
		for c := 0; c < Columns; c++ {
			word <<= 2
			switch b.grid[r][c] {
			case Red:
				word |= 1
			case Yellow:
				word |= 2
			}
		}
		p[r] = word
	}
	if b.turn == Yellow {
		p[0] |= packedTurnBit
	}
	return p
}

// Unpack restores the board. Unused bits, the reserved cell code 3 and
// floating pieces are reported as ErrCorruptState.
func (p Packed) Unpack() (Board, error) {
	turn := Red
	if p[0]&packedTurnBit != 0 {
		turn = Yellow
	}
	var grid [Rows][Columns]Color
	for r := 0; r < Rows; r++ {
		word := p[r]
		if r == 0 {
			word &^= packedTurnBit
		}
		if word&^packedCellMask != 0 {
			return Board{}, fmt.Errorf("%w: stray bits in packed row %d", ErrCorruptState, r)
		}
		for c := Columns - 1; c >= 0; c-- {
			switch word & 3 {
			case 1:
				grid[r][c] = Red
			case 2:
				grid[r][c] = Yellow
			case 3:
				return Board{}, fmt.Errorf("%w: reserved cell code at row %d column %d", ErrCorruptState, r, c)
			}
			word >>= 2
		}
	}
	return FromGrid(grid, turn)
}

// MarshalBinary writes the rows big-endian, row 0 first.
func (p Packed) MarshalBinary() ([]byte, error) {
	out := make([]byte, PackedSize)
	for r, word := range p {
		binary.BigEndian.PutUint16(out[2*r:], word)
	}
	return out, nil
}

// UnmarshalBinary reads the MarshalBinary form. It checks length only; use
// Unpack to validate contents.
func (p *Packed) UnmarshalBinary(data []byte) error {
	if len(data) != PackedSize {
		return fmt.Errorf("%w: packed board is %d bytes, want %d", ErrCorruptState, len(data), PackedSize)
	}
	for r := range p {
		p[r] = binary.BigEndian.Uint16(data[2*r:])
	}
	return nil
}
