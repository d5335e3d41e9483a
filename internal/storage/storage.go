package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"connectfour/internal/game"
	"connectfour/internal/player"
	"connectfour/internal/session"
)

var ErrNoRecord = errors.New("no saved game")

// Record is a saved session. The board is kept both as canonical text and
// packed bytes; the packed form is authoritative.
type Record struct {
	ID         string
	RedName    string
	YellowName string
	RedKind    string
	YellowKind string
	Board      string
	Packed     []byte
	Moves      []int
	Ply        int
	Status     string
	Reason     string
	Winner     string
	WinnerName string
	StartedAt  time.Time
	EndedAt    time.Time
	UpdatedAt  time.Time
}

// FromSession captures a session for storage.
func FromSession(s session.Session) Record {
	packed, _ := s.Board.Pack().MarshalBinary()
	red, yellow := s.Seats[game.Red], s.Seats[game.Yellow]
	rec := Record{
		ID:         s.ID,
		RedName:    red.Name,
		YellowName: yellow.Name,
		RedKind:    computerKind(red),
		YellowKind: computerKind(yellow),
		Board:      s.Board.Encode(),
		Packed:     packed,
		Moves:      append([]int(nil), s.Moves...),
		Ply:        s.Ply,
		Status:     s.Status,
		Reason:     s.Reason,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		UpdatedAt:  s.LastMoveAt,
	}
	if s.Winner != game.Empty {
		rec.Winner = s.Winner.String()
		rec.WinnerName = s.Seats[s.Winner].Name
	}
	return rec
}

func computerKind(seat session.Seat) string {
	if !seat.Computer {
		return ""
	}
	return string(seat.Kind)
}

// DecodeBoard restores the board, cross-checking both encodings.
func (r Record) DecodeBoard() (game.Board, error) {
	var p game.Packed
	if err := p.UnmarshalBinary(r.Packed); err != nil {
		return game.Board{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	b, err := p.Unpack()
	if err != nil {
		return game.Board{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	if r.Board != "" && r.Board != b.Encode() {
		return game.Board{}, fmt.Errorf("record %s: %w: text and packed boards differ", r.ID, game.ErrCorruptState)
	}
	return b, nil
}

// Seats rebuilds the session seats.
func (r Record) Seats() (session.Seat, session.Seat) {
	seat := func(name, kind string) session.Seat {
		s := session.Seat{Name: name}
		if kind != "" {
			s.Computer = true
			s.Kind = player.Kind(kind)
		}
		return s
	}
	return seat(r.RedName, r.RedKind), seat(r.YellowName, r.YellowKind)
}

// Session rebuilds the saved session as it stood when written.
func (r Record) Session() (session.Session, error) {
	b, err := r.DecodeBoard()
	if err != nil {
		return session.Session{}, err
	}
	winner := game.Empty
	if r.Winner != "" {
		if winner, err = game.ParseColor(r.Winner); err != nil {
			return session.Session{}, fmt.Errorf("record %s: %w: %v", r.ID, game.ErrCorruptState, err)
		}
	}
	red, yellow := r.Seats()
	return session.Session{
		ID:         r.ID,
		Board:      b,
		Moves:      append([]int(nil), r.Moves...),
		Status:     r.Status,
		Reason:     r.Reason,
		Winner:     winner,
		Seats:      map[game.Color]session.Seat{game.Red: red, game.Yellow: yellow},
		Ply:        r.Ply,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		LastMoveAt: r.UpdatedAt,
	}, nil
}

type LeaderboardRow struct {
	Username string `json:"username"`
	Wins     int    `json:"wins"`
}

type Store interface {
	SaveSession(ctx context.Context, rec Record) error
	LoadSession(ctx context.Context, id string) (Record, error)
	GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) EnsureTables(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	red_name TEXT NOT NULL,
	yellow_name TEXT NOT NULL,
	red_kind TEXT NOT NULL DEFAULT '',
	yellow_kind TEXT NOT NULL DEFAULT '',
	board TEXT NOT NULL,
	packed BYTEA NOT NULL,
	moves INTEGER[] NOT NULL DEFAULT '{}',
	ply INTEGER NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	winner TEXT NOT NULL DEFAULT '',
	winner_name TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);
`)
	return err
}

func (p *PostgresStore) SaveSession(ctx context.Context, rec Record) error {
	if p == nil || p.pool == nil {
		return nil
	}
	var ended *time.Time
	if !rec.EndedAt.IsZero() {
		ended = &rec.EndedAt
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO sessions (id, red_name, yellow_name, red_kind, yellow_kind, board, packed, moves, ply,
	status, reason, winner, winner_name, started_at, ended_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id) DO UPDATE SET
	board = EXCLUDED.board, packed = EXCLUDED.packed, moves = EXCLUDED.moves, ply = EXCLUDED.ply,
	status = EXCLUDED.status, reason = EXCLUDED.reason, winner = EXCLUDED.winner,
	winner_name = EXCLUDED.winner_name, ended_at = EXCLUDED.ended_at, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.RedName, rec.YellowName, rec.RedKind, rec.YellowKind, rec.Board, rec.Packed, rec.Moves, rec.Ply,
		rec.Status, rec.Reason, rec.Winner, rec.WinnerName, rec.StartedAt, ended, rec.UpdatedAt)
	if err != nil {
		log.Warn().Err(err).Str("session", rec.ID).Msg("save-session-failed")
	}
	return err
}

func (p *PostgresStore) LoadSession(ctx context.Context, id string) (Record, error) {
	var (
		rec   Record
		ended *time.Time
	)
	err := p.pool.QueryRow(ctx, `
SELECT id, red_name, yellow_name, red_kind, yellow_kind, board, packed, moves, ply,
	status, reason, winner, winner_name, started_at, ended_at, updated_at
FROM sessions WHERE id = $1`, id).Scan(
		&rec.ID, &rec.RedName, &rec.YellowName, &rec.RedKind, &rec.YellowKind, &rec.Board, &rec.Packed, &rec.Moves, &rec.Ply,
		&rec.Status, &rec.Reason, &rec.Winner, &rec.WinnerName, &rec.StartedAt, &ended, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNoRecord
	}
	if err != nil {
		return Record{}, err
	}
	if ended != nil {
		rec.EndedAt = *ended
	}
	return rec, nil
}

func (p *PostgresStore) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	rows, err := p.pool.Query(ctx, `
SELECT winner_name, COUNT(*) AS wins
FROM sessions
WHERE status = 'finished' AND winner_name <> ''
GROUP BY winner_name
ORDER BY wins DESC, winner_name
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LeaderboardRow
	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(&row.Username, &row.Wins); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// MemoryStore keeps records in process. It backs the service when no
// database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) SaveSession(_ context.Context, rec Record) error {
	rec.Moves = append([]int(nil), rec.Moves...)
	rec.Packed = append([]byte(nil), rec.Packed...)
	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LoadSession(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNoRecord
	}
	return rec, nil
}

func (m *MemoryStore) GetLeaderboard(_ context.Context, limit int) ([]LeaderboardRow, error) {
	wins := make(map[string]int)
	m.mu.RLock()
	for _, rec := range m.records {
		if rec.Status == session.StatusFinished && rec.WinnerName != "" {
			wins[rec.WinnerName]++
		}
	}
	m.mu.RUnlock()
	res := make([]LeaderboardRow, 0, len(wins))
	for name, n := range wins {
		res = append(res, LeaderboardRow{Username: name, Wins: n})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Wins != res[j].Wins {
			return res[i].Wins > res[j].Wins
		}
		return res[i].Username < res[j].Username
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
