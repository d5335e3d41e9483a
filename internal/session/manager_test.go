package session

import (
	"errors"
	"testing"
	"time"

	"connectfour/internal/game"
	"connectfour/internal/player"
	"connectfour/internal/search"
)

func humans() (Seat, Seat) {
	return Seat{Name: "alice"}, Seat{Name: "bob"}
}

func mustMove(t *testing.T, m *Manager, id, name string, col int) MoveResult {
	t.Helper()
	res, _, err := m.Move(id, name, col)
	if err != nil {
		t.Fatalf("%s plays %d: %v", name, col, err)
	}
	return res
}

func TestHumanAgainstComputer(t *testing.T) {
	m := NewManager(time.Minute, nil, nil)
	s, err := m.Create(Seat{Name: "alice"}, Seat{Name: "engine", Computer: true}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if s.Seats[game.Yellow].Kind != player.KindAlphaBeta {
		t.Errorf("computer kind defaulted to %q", s.Seats[game.Yellow].Kind)
	}
	if _, _, err := m.PlayComputer(s.ID); !errors.Is(err, ErrNotComputerTurn) {
		t.Fatalf("computer moved on red's turn: %v", err)
	}
	mustMove(t, m, s.ID, "alice", 3)

	res, got, err := m.PlayComputer(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Color != game.Yellow || res.Search == nil || res.Search.Nodes == 0 {
		t.Errorf("computer result = %+v", res)
	}
	if len(got.Moves) != 2 || got.Board.Turn() != game.Red {
		t.Errorf("after computer move: moves %v, turn %v", got.Moves, got.Board.Turn())
	}
}

func TestMoveValidation(t *testing.T) {
	m := NewManager(time.Minute, nil, nil)
	red, yellow := humans()
	s, err := m.Create(red, yellow, 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Move(s.ID, "bob", 0); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("yellow moved first: %v", err)
	}
	if _, _, err := m.Move(s.ID, "mallory", 0); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("stranger moved: %v", err)
	}
	if _, _, err := m.Move(s.ID, "alice", 9); !errors.Is(err, game.ErrInvalidColumn) {
		t.Errorf("column 9: %v", err)
	}
	if _, _, err := m.Move("nope", "alice", 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown session: %v", err)
	}
	res := mustMove(t, m, s.ID, "alice", 2)
	if res.Row != 0 || res.Column != 2 || res.Color != game.Red {
		t.Errorf("result = %+v", res)
	}
}

func TestWinFinishesSession(t *testing.T) {
	finished := make(chan Session, 1)
	m := NewManager(time.Minute, nil, func(s Session) { finished <- s })
	red, yellow := humans()
	s, err := m.Create(red, yellow, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		mustMove(t, m, s.ID, "alice", 0)
		mustMove(t, m, s.ID, "bob", 1)
	}
	res := mustMove(t, m, s.ID, "alice", 0)
	if res.Winner != game.Red || len(res.Winning) != 1 {
		t.Fatalf("result = %+v", res)
	}

	got, ok := m.Get(s.ID)
	if !ok {
		t.Fatal("session vanished")
	}
	if got.Status != StatusFinished || got.Reason != ReasonWin || got.Winner != game.Red {
		t.Errorf("session = %+v", got)
	}
	if _, _, err := m.Move(s.ID, "bob", 1); !errors.Is(err, ErrFinished) {
		t.Errorf("move after win: %v", err)
	}

	select {
	case done := <-finished:
		if done.ID != s.ID || done.Winner != game.Red {
			t.Errorf("finish callback got %+v", done)
		}
	case <-time.After(time.Second):
		t.Fatal("finish callback not called")
	}
}

func TestResign(t *testing.T) {
	m := NewManager(time.Minute, nil, nil)
	red, yellow := humans()
	s, _ := m.Create(red, yellow, 4)
	got, err := m.Resign(s.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Winner != game.Yellow || got.Reason != ReasonResign {
		t.Errorf("after resign: %+v", got)
	}
	if _, err := m.Resign(s.ID, "bob"); !errors.Is(err, ErrFinished) {
		t.Errorf("second resign: %v", err)
	}
}

func TestSweepIdle(t *testing.T) {
	m := NewManager(time.Millisecond, nil, nil)
	red, yellow := humans()
	s, _ := m.Create(red, yellow, 4)
	time.Sleep(5 * time.Millisecond)
	if n := m.SweepIdle(); n != 1 {
		t.Fatalf("SweepIdle() = %d, want 1", n)
	}
	got, _ := m.Get(s.ID)
	if got.Status != StatusFinished || got.Reason != ReasonAbandoned || got.Winner != game.Empty {
		t.Errorf("after sweep: %+v", got)
	}
	if n := m.SweepIdle(); n != 0 {
		t.Errorf("second sweep abandoned %d", n)
	}
	m.Forget(s.ID)
	if _, ok := m.Get(s.ID); ok {
		t.Errorf("forgotten session still present")
	}
}

func TestPlyBounds(t *testing.T) {
	m := NewManager(time.Minute, nil, nil)
	red, yellow := humans()
	if _, err := m.Create(red, yellow, 0); !errors.Is(err, search.ErrInvalidPly) {
		t.Errorf("ply 0: %v", err)
	}
	s, _ := m.Create(red, yellow, 4)
	if _, err := m.SetPly(s.ID, 11); !errors.Is(err, search.ErrInvalidPly) {
		t.Errorf("ply 11: %v", err)
	}
	got, err := m.SetPly(s.ID, 2)
	if err != nil || got.Ply != 2 {
		t.Errorf("SetPly(2) = %+v, %v", got, err)
	}
}

func TestRestoreDecidedBoard(t *testing.T) {
	m := NewManager(time.Minute, nil, nil)
	b, err := game.Decode("RY...../RY...../RY...../R....../......./....... Y")
	if err != nil {
		t.Fatal(err)
	}
	red, yellow := humans()
	s, err := m.Restore("saved-1", b, []int{0, 1, 0, 1, 0, 1, 0}, red, yellow, 5)
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "saved-1" || s.Status != StatusFinished || s.Winner != game.Red {
		t.Errorf("restored = %+v", s)
	}
}

func TestHint(t *testing.T) {
	m := NewManager(time.Minute, nil, nil)
	red, yellow := humans()
	s, _ := m.Create(red, yellow, 3)
	// Yellow stacks three in column 4; red to move must block.
	for i, col := range []int{0, 4, 1, 4, 6, 4} {
		name := red.Name
		if i%2 == 1 {
			name = yellow.Name
		}
		mustMove(t, m, s.ID, name, col)
	}
	res, err := m.Hint(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Column != 4 {
		t.Errorf("hint column %d, want 4", res.Column)
	}
}

func TestComputerAgainstComputerFinishes(t *testing.T) {
	m := NewManager(time.Minute, nil, nil)
	s, err := m.Create(
		Seat{Name: "r", Computer: true, Kind: player.KindGreedy},
		Seat{Name: "y", Computer: true, Kind: player.KindRandom},
		1,
	)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < game.Cells; i++ {
		_, got, err := m.PlayComputer(s.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == StatusFinished {
			return
		}
	}
	t.Fatal("game did not finish within 42 moves")
}
