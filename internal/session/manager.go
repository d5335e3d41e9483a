// Package session keeps games in progress. A Session owns one board and
// the seats playing it; the engine itself never holds game state.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"connectfour/internal/game"
	"connectfour/internal/player"
	"connectfour/internal/search"
)

const (
	StatusActive   = "active"
	StatusFinished = "finished"
)

// Reasons a session finished.
const (
	ReasonWin       = "win"
	ReasonDraw      = "draw"
	ReasonResign    = "resign"
	ReasonAbandoned = "abandoned"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrFinished        = errors.New("session already finished")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrNotComputerTurn = errors.New("side to move is not a computer")
	ErrBusy            = errors.New("session changed during computer move")
)

// Seat is one side of a session.
type Seat struct {
	Name     string `json:"name"`
	Computer bool   `json:"computer"`
	// Kind is the computer's strategy; empty for humans.
	Kind player.Kind `json:"kind,omitempty"`
}

// Session is a game in progress or finished. Values returned by the
// Manager are copies.
type Session struct {
	ID         string              `json:"id"`
	Board      game.Board          `json:"board"`
	Moves      []int               `json:"moves"`
	Status     string              `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	Winner     game.Color          `json:"winner"`
	Seats      map[game.Color]Seat `json:"seats"`
	Ply        int                 `json:"ply"`
	StartedAt  time.Time           `json:"startedAt"`
	EndedAt    time.Time           `json:"endedAt,omitempty"`
	LastMoveAt time.Time           `json:"lastMoveAt"`
}

// SeatOf returns the color seated under name among human seats.
func (s *Session) SeatOf(name string) (game.Color, bool) {
	for color, seat := range s.Seats {
		if seat.Name == name && !seat.Computer {
			return color, true
		}
	}
	return game.Empty, false
}

// ComputerToMove reports whether the side to move is a computer seat.
func (s *Session) ComputerToMove() bool {
	return s.Status == StatusActive && s.Seats[s.Board.Turn()].Computer
}

func (s *Session) clone() Session {
	out := *s
	out.Moves = append([]int(nil), s.Moves...)
	out.Seats = make(map[game.Color]Seat, len(s.Seats))
	for k, v := range s.Seats {
		out.Seats[k] = v
	}
	return out
}

// MoveResult describes one applied move.
type MoveResult struct {
	Column  int           `json:"column"`
	Row     int           `json:"row"`
	Color   game.Color    `json:"color"`
	Board   game.Board    `json:"board"`
	Score   float64       `json:"score"`
	Winner  game.Color    `json:"winner"`
	IsDraw  bool          `json:"isDraw"`
	Winning [][4][2]int   `json:"winning,omitempty"`
	Search  *search.Stats `json:"search,omitempty"`
}

// Manager holds sessions in memory.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	idleAfter time.Duration
	onFinish  func(Session)
	onMove    func(Session, MoveResult)
}

// NewManager returns a manager that abandons sessions idle for longer than
// idleAfter. The callbacks may be nil; they run on their own goroutine.
func NewManager(idleAfter time.Duration, onMove func(Session, MoveResult), onFinish func(Session)) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		idleAfter: idleAfter,
		onFinish:  onFinish,
		onMove:    onMove,
	}
}

func validPly(ply int) error {
	if ply < player.MinPly || ply > player.MaxPly {
		return fmt.Errorf("%w: %d outside %d..%d", search.ErrInvalidPly, ply, player.MinPly, player.MaxPly)
	}
	return nil
}

// Create starts a new game from the empty board.
func (m *Manager) Create(red, yellow Seat, ply int) (Session, error) {
	return m.Restore("", game.NewBoard(), nil, red, yellow, ply)
}

// Restore reopens a saved game. An empty id gets a fresh one; the moves
// are kept for the record and not replayed.
func (m *Manager) Restore(id string, b game.Board, moves []int, red, yellow Seat, ply int) (Session, error) {
	if err := validPly(ply); err != nil {
		return Session{}, err
	}
	for _, seat := range []*Seat{&red, &yellow} {
		if seat.Computer && seat.Kind == "" {
			seat.Kind = player.KindAlphaBeta
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	s := &Session{
		ID:         id,
		Board:      b,
		Moves:      append([]int(nil), moves...),
		Status:     StatusActive,
		Seats:      map[game.Color]Seat{game.Red: red, game.Yellow: yellow},
		Ply:        ply,
		StartedAt:  now,
		LastMoveAt: now,
	}
	m.settle(s, now)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	log.Info().Str("session", s.ID).Str("red", red.Name).Str("yellow", yellow.Name).Int("ply", ply).Msg("session-opened")
	return s.clone(), nil
}

// Get returns a copy of the session.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// List returns copies of all sessions, newest first.
func (m *Manager) List() []Session {
	m.mu.RLock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Move plays col for the human seated as name.
func (m *Manager) Move(id, name string, col int) (MoveResult, Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.active(id)
	if err != nil {
		return MoveResult{}, Session{}, err
	}
	color, ok := s.SeatOf(name)
	if !ok || color != s.Board.Turn() {
		return MoveResult{}, s.clone(), ErrNotYourTurn
	}
	res, err := m.apply(s, col)
	if err != nil {
		return MoveResult{}, s.clone(), err
	}
	return res, s.clone(), nil
}

// PlayComputer lets the computer seated on the side to move choose and
// play its move. The search runs without holding the manager lock.
func (m *Manager) PlayComputer(id string) (MoveResult, Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.RUnlock()
		return MoveResult{}, Session{}, ErrNotFound
	}
	if !s.ComputerToMove() {
		snap := s.clone()
		m.mu.RUnlock()
		if snap.Status != StatusActive {
			return MoveResult{}, snap, ErrFinished
		}
		return MoveResult{}, snap, ErrNotComputerTurn
	}
	b, played := s.Board, len(s.Moves)
	seat := s.Seats[b.Turn()]
	p := player.New(b.Turn(), player.WithKind(seat.Kind), player.WithPly(s.Ply))
	m.mu.RUnlock()

	var (
		col   int
		stats *search.Stats
		err   error
	)
	switch p.Kind {
	case player.KindMinimax, player.KindAlphaBeta:
		var res search.Result
		res, err = p.Search(b)
		col, stats = res.Column, &res.Stats
	default:
		col, err = p.BestMove(b)
	}
	if err != nil {
		return MoveResult{}, Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, err = m.active(id)
	if err != nil {
		return MoveResult{}, Session{}, err
	}
	if len(s.Moves) != played {
		return MoveResult{}, s.clone(), ErrBusy
	}
	res, err := m.apply(s, col)
	if err != nil {
		return MoveResult{}, s.clone(), err
	}
	res.Search = stats
	return res, s.clone(), nil
}

// SetPly changes the search depth used by the session's computer seats.
func (m *Manager) SetPly(id string, ply int) (Session, error) {
	if err := validPly(ply); err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	s.Ply = ply
	return s.clone(), nil
}

// Hint suggests a move for the side to move.
func (m *Manager) Hint(id string) (search.Result, error) {
	s, ok := m.Get(id)
	if !ok {
		return search.Result{}, ErrNotFound
	}
	if s.Status != StatusActive {
		return search.Result{}, ErrFinished
	}
	return player.Hint(s.Board, s.Ply)
}

// Resign ends the session in favour of the opponent of name's seat.
func (m *Manager) Resign(id, name string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.active(id)
	if err != nil {
		return Session{}, err
	}
	color, ok := s.SeatOf(name)
	if !ok {
		return s.clone(), ErrNotYourTurn
	}
	m.finish(s, color.Opponent(), ReasonResign, time.Now())
	return s.clone(), nil
}

// SweepIdle abandons active sessions with no move inside the idle window.
func (m *Manager) SweepIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	n := 0
	for id, s := range m.sessions {
		if s.Status == StatusActive && now.Sub(s.LastMoveAt) > m.idleAfter {
			m.finish(s, game.Empty, ReasonAbandoned, now)
			log.Info().Str("session", id).Dur("idle", now.Sub(s.LastMoveAt)).Msg("session-abandoned")
			n++
		}
	}
	return n
}

// Forget drops a finished session from memory.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.Status == StatusFinished {
		delete(m.sessions, id)
	}
}

func (m *Manager) active(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != StatusActive {
		return s, ErrFinished
	}
	return s, nil
}

// apply plays col on s. Callers hold m.mu.
func (m *Manager) apply(s *Session, col int) (MoveResult, error) {
	mover := s.Board.Turn()
	next, err := s.Board.ApplyMove(col)
	if err != nil {
		return MoveResult{}, err
	}
	now := time.Now()
	s.Board = next
	s.Moves = append(s.Moves, col)
	s.LastMoveAt = now

	res := MoveResult{
		Column: col,
		Row:    next.Height(col) - 1,
		Color:  mover,
		Board:  next,
		Score:  next.Score(),
	}
	m.settle(s, now)
	res.Winner = s.Winner
	res.IsDraw = s.Status == StatusFinished && s.Reason == ReasonDraw
	if res.Winner != game.Empty {
		res.Winning = next.WinningRuns()
	}
	if m.onMove != nil {
		go m.onMove(s.clone(), res)
	}
	return res, nil
}

// settle finishes s when its board is decided.
func (m *Manager) settle(s *Session, now time.Time) {
	switch {
	case s.Board.IsResolved():
		m.finish(s, s.Board.Winner(), ReasonWin, now)
	case s.Board.IsFull():
		m.finish(s, game.Empty, ReasonDraw, now)
	}
}

func (m *Manager) finish(s *Session, winner game.Color, reason string, now time.Time) {
	s.Status = StatusFinished
	s.Winner = winner
	s.Reason = reason
	s.EndedAt = now
	if m.onFinish != nil {
		go m.onFinish(s.clone())
	}
}
