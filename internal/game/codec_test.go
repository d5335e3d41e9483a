package game

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
)

// randomGames yields every position of n random playouts.
func randomGames(n int, seed int64, visit func(Board)) {
	rng := rand.New(rand.NewSource(seed))
	for g := 0; g < n; g++ {
		b := NewBoard()
		visit(b)
		for !b.IsOver() {
			moves := b.LegalMoves()
			b, _ = b.ApplyMove(moves[rng.Intn(len(moves))])
			visit(b)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	randomGames(50, 1, func(b Board) {
		got, err := Decode(b.Encode())
		if err != nil {
			t.Fatalf("Decode(%q): %v", b.Encode(), err)
		}
		if got != b {
			t.Fatalf("round trip changed board:\nin  %s\nout %s", b.Encode(), got.Encode())
		}
	})
}

func TestPackUnpackRoundTrip(t *testing.T) {
	randomGames(50, 2, func(b Board) {
		p := b.Pack()
		data, err := p.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		var q Packed
		if err := q.UnmarshalBinary(data); err != nil {
			t.Fatal(err)
		}
		got, err := q.Unpack()
		if err != nil {
			t.Fatalf("Unpack(%v): %v", q, err)
		}
		if got != b {
			t.Fatalf("packed round trip changed board %s -> %s", b.Encode(), got.Encode())
		}
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	randomGames(20, 3, func(b Board) {
		got, err := FromSnapshot(b.Snapshot())
		if err != nil {
			t.Fatal(err)
		}
		if got != b {
			t.Fatalf("snapshot round trip changed board %s", b.Encode())
		}
	})
}

func TestEncodeLayout(t *testing.T) {
	b := play(t, 0, 6, 0)
	want := "R.....Y/R....../......./......./......./....... Y"
	if got := b.Encode(); got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"floating piece", "......./R....../......./......./......./....... Y"},
		{"bad cell", "X....../......./......./......./......./....... R"},
		{"short row", "....../......./......./......./......./....... R"},
		{"missing row", "......./......./......./......./....... R"},
		{"missing turn", "......./......./......./......./......./......."},
		{"empty turn", "......./......./......./......./......./....... ."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.in); !errors.Is(err, ErrCorruptState) {
				t.Errorf("Decode(%q) err = %v, want ErrCorruptState", tt.in, err)
			}
		})
	}
}

func TestUnpackCorrupt(t *testing.T) {
	tests := []struct {
		name string
		p    Packed
	}{
		{"reserved code", Packed{3 << 12}},
		{"floating piece", Packed{0, 1 << 12}},
		{"stray bit", Packed{0, 1 << 14}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.p.Unpack(); !errors.Is(err, ErrCorruptState) {
				t.Errorf("Unpack() err = %v, want ErrCorruptState", err)
			}
		})
	}
	var p Packed
	if err := p.UnmarshalBinary([]byte{1, 2, 3}); !errors.Is(err, ErrCorruptState) {
		t.Errorf("short input: err = %v", err)
	}
}

func TestPackLayout(t *testing.T) {
	b := play(t, 0, 6)
	p := b.Pack()
	// Red in column 0 is the top pair, yellow in column 6 the bottom pair.
	if want := uint16(1<<12 | 2); p[0] != want {
		t.Errorf("row 0 = %#x, want %#x", p[0], want)
	}
	b = play(t, 0)
	if p := b.Pack(); p[0]&packedTurnBit == 0 {
		t.Errorf("yellow to move not flagged")
	}
}

func TestFromSnapshotHeightMismatch(t *testing.T) {
	s := play(t, 2, 2).Snapshot()
	s.Heights[2] = 1
	if _, err := FromSnapshot(s); !errors.Is(err, ErrCorruptState) {
		t.Errorf("err = %v, want ErrCorruptState", err)
	}
}

func TestBoardJSON(t *testing.T) {
	type payload struct {
		Board Board `json:"board"`
		Turn  Color `json:"turn"`
	}
	in := payload{Board: play(t, 3, 4), Turn: Yellow}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out payload
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if out != in {
		t.Errorf("JSON round trip: %+v != %+v", out, in)
	}
}
