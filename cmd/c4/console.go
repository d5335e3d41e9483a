package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"connectfour/internal/game"
	"connectfour/internal/session"
)

const help = `commands:
  0-6          drop a piece in that column
  hint         suggest a move
  score        show the evaluator's score
  show         redraw the board
  ply N        change the computer's search depth
  save FILE    write the position to FILE
  load FILE    continue from the position in FILE
  new          start over
  resign       give up
  quit`

// console drives one session at a time from text commands.
type console struct {
	manager   *session.Manager
	out       io.Writer
	red       session.Seat
	yellow    session.Seat
	ply       int
	id        string
	announced bool
}

func (c *console) run(in io.Reader) error {
	if err := c.start(game.NewBoard()); err != nil {
		return err
	}
	sc := bufio.NewScanner(in)
	for {
		s, err := c.autoplay()
		if err != nil {
			return err
		}
		if s.Status == session.StatusFinished {
			if !c.announced {
				c.announce(s)
				c.announced = true
			}
			fmt.Fprint(c.out, "new or quit> ")
		} else {
			fmt.Fprintf(c.out, "%s to move> ", s.Board.Turn())
		}
		if !sc.Scan() {
			fmt.Fprintln(c.out)
			return sc.Err()
		}
		quit, err := c.command(strings.Fields(sc.Text()))
		if err != nil {
			fmt.Fprintln(c.out, "error:", err)
		}
		if quit {
			return nil
		}
	}
}

func (c *console) start(b game.Board) error {
	s, err := c.manager.Restore("", b, nil, c.red, c.yellow, c.ply)
	if err != nil {
		return err
	}
	if c.id != "" {
		c.manager.Forget(c.id)
	}
	c.id, c.announced = s.ID, false
	fmt.Fprintln(c.out, s.Board)
	return nil
}

// autoplay lets computer seats move until a human is to move or the game
// ends.
func (c *console) autoplay() (session.Session, error) {
	for {
		s, ok := c.manager.Get(c.id)
		if !ok {
			return session.Session{}, session.ErrNotFound
		}
		if !s.ComputerToMove() {
			return s, nil
		}
		res, s, err := c.manager.PlayComputer(c.id)
		if err != nil {
			return s, err
		}
		if res.Search != nil {
			fmt.Fprintf(c.out, "%s plays %d (searched %d positions)\n", res.Color, res.Column, res.Search.Nodes)
		} else {
			fmt.Fprintf(c.out, "%s plays %d\n", res.Color, res.Column)
		}
		fmt.Fprintln(c.out, s.Board)
	}
}

func (c *console) announce(s session.Session) {
	switch {
	case s.Winner != game.Empty && s.Reason == session.ReasonResign:
		fmt.Fprintf(c.out, "%s resigns; %s wins\n", s.Winner.Opponent(), s.Winner)
	case s.Winner != game.Empty:
		fmt.Fprintf(c.out, "%s wins after %d moves\n", s.Winner, len(s.Moves))
	default:
		fmt.Fprintln(c.out, "draw")
	}
}

func (c *console) current() (session.Session, error) {
	s, ok := c.manager.Get(c.id)
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (c *console) command(args []string) (quit bool, err error) {
	if len(args) == 0 {
		return false, nil
	}
	s, err := c.current()
	if err != nil {
		return false, err
	}
	mover := s.Seats[s.Board.Turn()].Name

	if col, err := strconv.Atoi(args[0]); err == nil {
		_, next, err := c.manager.Move(c.id, mover, col)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, next.Board)
		return false, nil
	}

	switch strings.ToLower(args[0]) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(c.out, help)
	case "show":
		fmt.Fprintln(c.out, s.Board)
	case "score":
		fmt.Fprintf(c.out, "score %.2f", s.Board.Score())
		if s.Board.IsResolved() {
			fmt.Fprintf(c.out, " (%s has four in a row)", s.Board.Winner())
		}
		fmt.Fprintln(c.out)
	case "hint":
		res, err := c.manager.Hint(c.id)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "try column %d (value %.2f)\n", res.Column, res.Value)
	case "ply":
		if len(args) != 2 {
			return false, errors.New("usage: ply N")
		}
		ply, err := strconv.Atoi(args[1])
		if err != nil {
			return false, err
		}
		if _, err := c.manager.SetPly(c.id, ply); err != nil {
			return false, err
		}
		c.ply = ply
		fmt.Fprintf(c.out, "search depth %d\n", ply)
	case "save":
		if len(args) != 2 {
			return false, errors.New("usage: save FILE")
		}
		if err := os.WriteFile(args[1], []byte(s.Board.Encode()+"\n"), 0o644); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "saved to %s\n", args[1])
	case "load":
		if len(args) != 2 {
			return false, errors.New("usage: load FILE")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return false, err
		}
		b, err := game.Decode(string(data))
		if err != nil {
			return false, err
		}
		return false, c.start(b)
	case "new":
		return false, c.start(game.NewBoard())
	case "resign":
		if _, err := c.manager.Resign(c.id, mover); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unknown command %q, try help", args[0])
	}
	return false, nil
}
