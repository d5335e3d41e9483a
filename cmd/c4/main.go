// Command c4 plays Connect Four in the terminal against the engine, or
// watches the engine play itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"connectfour/internal/game"
	"connectfour/internal/player"
	"connectfour/internal/session"
)

func main() {
	red := flag.String("red", "human", "red seat: human, random, greedy, minimax or alphabeta")
	yellow := flag.String("yellow", "alphabeta", "yellow seat: human, random, greedy, minimax or alphabeta")
	ply := flag.Int("ply", player.DefaultPly, "search depth for computer seats (1-10)")
	level := flag.Int("level", 0, "difficulty 1-10 for computer seats; overrides -ply and the seat strategy")
	verbose := flag.Bool("v", false, "log engine searches")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	redSeat, err := parseSeat(game.Red, *red)
	if err != nil {
		fatal(err)
	}
	yellowSeat, err := parseSeat(game.Yellow, *yellow)
	if err != nil {
		fatal(err)
	}
	depth := *ply
	if *level != 0 {
		if depth, err = applyLevel(*level, &redSeat, &yellowSeat); err != nil {
			fatal(err)
		}
	}

	c := &console{
		manager: session.NewManager(24*time.Hour, nil, nil),
		out:     os.Stdout,
		red:     redSeat,
		yellow:  yellowSeat,
		ply:     depth,
	}
	fmt.Println("Connect Four. Type help for commands.")
	if err := c.run(os.Stdin); err != nil {
		fatal(err)
	}
}

func parseSeat(color game.Color, s string) (session.Seat, error) {
	seat := session.Seat{Name: color.String()}
	if strings.EqualFold(s, "human") {
		return seat, nil
	}
	kind, err := player.ParseKind(s)
	if err != nil {
		return session.Seat{}, fmt.Errorf("%s seat: %w", color, err)
	}
	seat.Computer, seat.Kind = true, kind
	return seat, nil
}

// applyLevel sets the strategy of every computer seat from a difficulty
// preset and returns the preset's depth.
func applyLevel(level int, seats ...*session.Seat) (int, error) {
	p, err := player.Preset(game.Red, level)
	if err != nil {
		return 0, err
	}
	for _, seat := range seats {
		if seat.Computer {
			seat.Kind = p.Kind
		}
	}
	return p.Ply, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "c4:", err)
	os.Exit(1)
}
