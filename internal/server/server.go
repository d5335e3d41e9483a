package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"connectfour/internal/analytics"
	"connectfour/internal/game"
	"connectfour/internal/player"
	"connectfour/internal/search"
	"connectfour/internal/session"
	"connectfour/internal/storage"
)

type Server struct {
	router     *gin.Engine
	manager    *session.Manager
	store      storage.Store
	analytics  *analytics.Producer
	pool       *searchPool
	hub        *hub
	defaultPly int
	maxPly     int
	idleWindow time.Duration

	loadMu sync.Mutex
	saveMu sync.Mutex
	saved  map[string]int
}

type Config struct {
	DefaultPly    int
	MaxPly        int
	SearchWorkers int
	IdleWindow    time.Duration
	Store         storage.Store
	Analytics     *analytics.Producer
}

func New(cfg Config) *Server {
	if cfg.MaxPly <= 0 || cfg.MaxPly > player.MaxPly {
		cfg.MaxPly = player.MaxPly
	}
	if cfg.DefaultPly <= 0 {
		cfg.DefaultPly = player.DefaultPly
	}
	if cfg.DefaultPly > cfg.MaxPly {
		cfg.DefaultPly = cfg.MaxPly
	}
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = 10 * time.Minute
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	s := &Server{
		router:     router,
		store:      cfg.Store,
		analytics:  cfg.Analytics,
		pool:       newSearchPool(cfg.SearchWorkers),
		hub:        newHub(),
		defaultPly: cfg.DefaultPly,
		maxPly:     cfg.MaxPly,
		idleWindow: cfg.IdleWindow,
		saved:      make(map[string]int),
	}
	s.manager = session.NewManager(cfg.IdleWindow, s.onMove, s.onFinish)

	router.GET("/health", s.handleHealth)
	router.POST("/evaluate", s.handleEvaluate)
	router.POST("/analyze", s.handleAnalyze)
	router.POST("/analyze/batch", s.handleAnalyzeBatch)

	sessions := router.Group("/sessions")
	sessions.POST("", s.handleCreateSession)
	sessions.GET("/:id", s.handleGetSession)
	sessions.POST("/:id/moves", s.handleMove)
	sessions.POST("/:id/hint", s.handleHint)
	sessions.PUT("/:id/ply", s.handleSetPly)
	sessions.POST("/:id/resign", s.handleResign)

	router.GET("/leaderboard", s.handleLeaderboard)
	router.GET("/ws", s.handleWS)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(addr string) error {
	go s.sweeper()
	return s.router.Run(addr)
}

func (s *Server) sweeper() {
	ticker := time.NewTicker(30 * time.Second)
	for range ticker.C {
		s.sweep()
	}
}

// sweep abandons idle sessions and drops finished ones that have been
// saved and left alone for a full idle window.
func (s *Server) sweep() {
	abandoned := s.manager.SweepIdle()
	forgotten := 0
	for _, sess := range s.manager.List() {
		if sess.Status != session.StatusFinished || time.Since(sess.EndedAt) <= s.idleWindow {
			continue
		}
		s.manager.Forget(sess.ID)
		s.saveMu.Lock()
		delete(s.saved, sess.ID)
		s.saveMu.Unlock()
		forgotten++
	}
	if abandoned > 0 || forgotten > 0 {
		log.Info().Int("abandoned", abandoned).Int("forgotten", forgotten).Msg("sessions-swept")
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http-request")
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, game.ErrInvalidColumn),
		errors.Is(err, game.ErrCorruptState),
		errors.Is(err, search.ErrInvalidPly):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound), errors.Is(err, storage.ErrNoRecord):
		return http.StatusNotFound
	case errors.Is(err, session.ErrFinished),
		errors.Is(err, session.ErrNotYourTurn),
		errors.Is(err, session.ErrNotComputerTurn),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, search.ErrNoLegalMoves):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request-failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": len(s.manager.List()),
		"search":   s.pool.stats(),
	})
}

type boardRequest struct {
	Board string `json:"board" binding:"required"`
}

type evaluation struct {
	Board      string      `json:"board"`
	Turn       game.Color  `json:"turn"`
	Score      float64     `json:"score"`
	Resolved   bool        `json:"resolved"`
	Winner     game.Color  `json:"winner"`
	Over       bool        `json:"over"`
	MoveCount  int         `json:"moveCount"`
	LegalMoves []int       `json:"legalMoves"`
	Winning    [][4][2]int `json:"winning,omitempty"`
}

func evaluate(b game.Board) evaluation {
	e := evaluation{
		Board:      b.Encode(),
		Turn:       b.Turn(),
		Score:      b.Score(),
		Resolved:   b.IsResolved(),
		Winner:     b.Winner(),
		Over:       b.IsOver(),
		MoveCount:  b.MoveCount(),
		LegalMoves: b.LegalMoves(),
	}
	if e.Resolved {
		e.Winning = b.WinningRuns()
	}
	return e
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var req boardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, badRequest(err))
		return
	}
	b, err := game.Decode(req.Board)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, evaluate(b))
}

type analyzeRequest struct {
	Board    string `json:"board"`
	Ply      int    `json:"ply"`
	Strategy string `json:"strategy"`
	// Side overrides the searching side; empty means the side to move.
	Side string `json:"side"`
	Tree bool   `json:"tree"`
}

type analysis struct {
	Column   int           `json:"column"`
	Value    float64       `json:"value"`
	Strategy player.Kind   `json:"strategy"`
	Side     game.Color    `json:"side"`
	Ply      int           `json:"ply"`
	Lines    []search.Line `json:"lines,omitempty"`
	Stats    search.Stats  `json:"stats"`
	Route    string        `json:"route,omitempty"`
	TreeSize int           `json:"treeSize,omitempty"`
	Millis   float64       `json:"millis"`
}

func (s *Server) checkPly(ply int) error {
	if ply < player.MinPly || ply > s.maxPly {
		return fmt.Errorf("%w: %d outside %d..%d", search.ErrInvalidPly, ply, player.MinPly, s.maxPly)
	}
	return nil
}

func (s *Server) analyze(ctx context.Context, req analyzeRequest) (analysis, error) {
	b, err := game.Decode(req.Board)
	if err != nil {
		return analysis{}, err
	}
	ply := req.Ply
	if ply == 0 {
		ply = s.defaultPly
	}
	if err := s.checkPly(ply); err != nil {
		return analysis{}, err
	}
	kind, err := player.ParseKind(req.Strategy)
	if err != nil {
		return analysis{}, badRequest(err)
	}
	side := b.Turn()
	if req.Side != "" {
		if side, err = game.ParseColor(req.Side); err != nil {
			return analysis{}, badRequest(err)
		}
	}

	out := analysis{Strategy: kind, Side: side, Ply: ply}
	start := time.Now()
	err = s.pool.run(ctx, func() error {
		if kind == player.KindRandom || kind == player.KindGreedy {
			col, err := player.New(side, player.WithKind(kind), player.WithPly(ply)).BestMove(b)
			if err != nil {
				return err
			}
			next, err := b.ApplyMove(col)
			if err != nil {
				return err
			}
			out.Column, out.Value = col, next.Score()
			return nil
		}
		res, err := search.Search(b, search.Config{
			Ply:      ply,
			Pruning:  kind == player.KindAlphaBeta,
			Side:     side,
			KeepTree: req.Tree,
		})
		if err != nil {
			return err
		}
		out.Column, out.Value, out.Lines, out.Stats = res.Column, res.Value, res.Lines, res.Stats
		if res.Tree != nil {
			out.TreeSize = res.Tree.Len()
			for _, id := range res.Tree.Children(res.Tree.Root()) {
				if res.Tree.Node(id).Move == res.Column {
					out.Route = res.Tree.Route(id)
				}
			}
		}
		return nil
	})
	if err != nil {
		return analysis{}, err
	}
	out.Millis = float64(time.Since(start).Microseconds()) / 1000

	go s.analytics.Decided(context.Background(), analytics.Decision{
		Board:    b.Encode(),
		Side:     side.String(),
		Strategy: string(kind),
		Ply:      ply,
		Column:   out.Column,
		Value:    out.Value,
		Nodes:    out.Stats.Nodes,
		Leaves:   out.Stats.Leaves,
		Cutoffs:  out.Stats.Cutoffs,
		Millis:   out.Millis,
	})
	return out, nil
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, badRequest(err))
		return
	}
	res, err := s.analyze(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

const maxBatch = 64

type batchRequest struct {
	Requests []analyzeRequest `json:"requests"`
}

// handleAnalyzeBatch searches independent positions concurrently. The
// first failure cancels the rest.
func (s *Server) handleAnalyzeBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, badRequest(err))
		return
	}
	if len(req.Requests) == 0 || len(req.Requests) > maxBatch {
		fail(c, badRequest(fmt.Errorf("batch of %d outside 1..%d", len(req.Requests), maxBatch)))
		return
	}
	results := make([]analysis, len(req.Requests))
	g, ctx := errgroup.WithContext(c.Request.Context())
	for i, r := range req.Requests {
		i, r := i, r
		g.Go(func() error {
			res, err := s.analyze(ctx, r)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type createRequest struct {
	Red    seatRequest `json:"red"`
	Yellow seatRequest `json:"yellow"`
	Ply    int         `json:"ply"`
	// Board optionally starts from a position in canonical text.
	Board string `json:"board"`
}

type seatRequest struct {
	Name     string `json:"name"`
	Computer bool   `json:"computer"`
	Kind     string `json:"kind"`
}

func (r seatRequest) seat(fallback string) (session.Seat, error) {
	seat := session.Seat{Name: r.Name, Computer: r.Computer}
	if seat.Name == "" {
		seat.Name = fallback
	}
	if r.Computer || r.Kind != "" {
		kind, err := player.ParseKind(r.Kind)
		if err != nil {
			return session.Seat{}, badRequest(err)
		}
		seat.Computer, seat.Kind = true, kind
	}
	return seat, nil
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, badRequest(err))
		return
	}
	red, err := req.Red.seat(game.Red.String())
	if err != nil {
		fail(c, err)
		return
	}
	yellow, err := req.Yellow.seat(game.Yellow.String())
	if err != nil {
		fail(c, err)
		return
	}
	if !red.Computer && !yellow.Computer && red.Name == yellow.Name {
		fail(c, badRequest(errors.New("human seats need distinct names")))
		return
	}
	if req.Ply == 0 {
		req.Ply = s.defaultPly
	}
	if err := s.checkPly(req.Ply); err != nil {
		fail(c, err)
		return
	}
	b := game.NewBoard()
	if req.Board != "" {
		if b, err = game.Decode(req.Board); err != nil {
			fail(c, err)
			return
		}
	}
	sess, err := s.manager.Restore("", b, nil, red, yellow, req.Ply)
	if err != nil {
		fail(c, err)
		return
	}
	s.persist(sess)

	moves, err := s.advance(c.Request.Context(), sess.ID)
	if err != nil {
		fail(c, err)
		return
	}
	sess, _ = s.manager.Get(sess.ID)
	c.JSON(http.StatusCreated, gin.H{"session": sess, "moves": moves})
}

// lookup finds a session in memory or resumes it from the store. Finished
// saved sessions are returned as they were without being reopened.
func (s *Server) lookup(ctx context.Context, id string) (session.Session, error) {
	if sess, ok := s.manager.Get(id); ok {
		return sess, nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if sess, ok := s.manager.Get(id); ok {
		return sess, nil
	}
	rec, err := s.store.LoadSession(ctx, id)
	if errors.Is(err, storage.ErrNoRecord) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, err
	}
	saved, err := rec.Session()
	if err != nil {
		return session.Session{}, err
	}
	if saved.Status != session.StatusActive {
		return saved, nil
	}
	sess, err := s.manager.Restore(saved.ID, saved.Board, saved.Moves, saved.Seats[game.Red], saved.Seats[game.Yellow], saved.Ply)
	if err != nil {
		return session.Session{}, err
	}
	log.Info().Str("session", id).Int("moves", len(sess.Moves)).Msg("session-resumed")
	return sess, nil
}

// active is lookup for calls that change the session.
func (s *Server) active(ctx context.Context, id string) (session.Session, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return session.Session{}, err
	}
	if sess.Status != session.StatusActive {
		return sess, session.ErrFinished
	}
	return sess, nil
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type moveRequest struct {
	Name   string `json:"name" binding:"required"`
	Column *int   `json:"column" binding:"required"`
}

func (s *Server) handleMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, badRequest(err))
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.active(ctx, id); err != nil {
		fail(c, err)
		return
	}
	res, sess, err := s.manager.Move(id, req.Name, *req.Column)
	if err != nil {
		fail(c, err)
		return
	}
	s.broadcast(sess, &res)

	replies, err := s.advance(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	sess, _ = s.manager.Get(id)
	c.JSON(http.StatusOK, gin.H{"session": sess, "moves": append([]session.MoveResult{res}, replies...)})
}

// advance lets computer seats play until a human is to move or the game
// is over.
func (s *Server) advance(ctx context.Context, id string) ([]session.MoveResult, error) {
	played := []session.MoveResult{}
	for {
		before, ok := s.manager.Get(id)
		if !ok {
			return played, session.ErrNotFound
		}
		if !before.ComputerToMove() {
			return played, nil
		}
		var (
			res  session.MoveResult
			sess session.Session
		)
		start := time.Now()
		err := s.pool.run(ctx, func() error {
			var err error
			res, sess, err = s.manager.PlayComputer(id)
			return err
		})
		switch {
		case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNotComputerTurn):
			continue
		case errors.Is(err, session.ErrFinished):
			return played, nil
		case err != nil:
			return played, err
		}
		played = append(played, res)
		s.broadcast(sess, &res)

		seat := before.Seats[before.Board.Turn()]
		d := analytics.Decision{
			SessionID: id,
			Board:     before.Board.Encode(),
			Side:      res.Color.String(),
			Strategy:  string(seat.Kind),
			Ply:       before.Ply,
			Column:    res.Column,
			Value:     res.Score,
			Millis:    float64(time.Since(start).Microseconds()) / 1000,
		}
		if res.Search != nil {
			d.Nodes, d.Leaves, d.Cutoffs = res.Search.Nodes, res.Search.Leaves, res.Search.Cutoffs
		}
		go s.analytics.Decided(context.Background(), d)
	}
}

func (s *Server) hint(ctx context.Context, id string) (search.Result, error) {
	if _, err := s.active(ctx, id); err != nil {
		return search.Result{}, err
	}
	var res search.Result
	err := s.pool.run(ctx, func() error {
		var err error
		res, err = s.manager.Hint(id)
		return err
	})
	return res, err
}

func (s *Server) handleHint(c *gin.Context) {
	res, err := s.hint(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type plyRequest struct {
	Ply int `json:"ply" binding:"required"`
}

func (s *Server) handleSetPly(c *gin.Context) {
	var req plyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, badRequest(err))
		return
	}
	if err := s.checkPly(req.Ply); err != nil {
		fail(c, err)
		return
	}
	id := c.Param("id")
	if _, err := s.active(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	sess, err := s.manager.SetPly(id, req.Ply)
	if err != nil {
		fail(c, err)
		return
	}
	s.persist(sess)
	c.JSON(http.StatusOK, sess)
}

type resignRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) handleResign(c *gin.Context) {
	var req resignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, badRequest(err))
		return
	}
	id := c.Param("id")
	if _, err := s.active(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	sess, err := s.manager.Resign(id, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	s.broadcast(sess, nil)
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	limit := 10
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fail(c, badRequest(fmt.Errorf("limit %q", v)))
			return
		}
		limit = n
	}
	rows, err := s.store.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// persist saves sess unless a later state of it was already written.
// Callbacks arrive on separate goroutines and may be reordered.
func (s *Server) persist(sess session.Session) {
	version := 2 * len(sess.Moves)
	if sess.Status == session.StatusFinished {
		version++
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if v, ok := s.saved[sess.ID]; ok && v > version {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveSession(ctx, storage.FromSession(sess)); err != nil {
		log.Warn().Err(err).Str("session", sess.ID).Msg("persist-failed")
		return
	}
	s.saved[sess.ID] = version
}

func (s *Server) onMove(sess session.Session, res session.MoveResult) {
	s.persist(sess)
	s.analytics.Publish(context.Background(), sess.ID, analytics.EventMovePlayed, map[string]any{
		"sessionId": sess.ID,
		"column":    res.Column,
		"row":       res.Row,
		"color":     res.Color.String(),
		"score":     res.Score,
		"moves":     len(sess.Moves),
		"board":     res.Board.Encode(),
	})
}

func (s *Server) onFinish(sess session.Session) {
	s.persist(sess)
	winnerName := ""
	if sess.Winner != game.Empty {
		winnerName = sess.Seats[sess.Winner].Name
	}
	s.analytics.Publish(context.Background(), sess.ID, analytics.EventGameFinished, map[string]any{
		"sessionId":  sess.ID,
		"winner":     sess.Winner.String(),
		"winnerName": winnerName,
		"reason":     sess.Reason,
		"moves":      len(sess.Moves),
		"players":    []string{sess.Seats[game.Red].Name, sess.Seats[game.Yellow].Name},
		"duration":   sess.EndedAt.Sub(sess.StartedAt).Seconds(),
		"startedAt":  sess.StartedAt,
		"endedAt":    sess.EndedAt,
	})
}
