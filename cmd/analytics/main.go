package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"connectfour/internal/analytics"
)

func main() {
	if os.Getenv("LOG_PRETTY") == "1" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	broker := getenv("KAFKA_BROKER", "localhost:9092")
	topic := getenv("KAFKA_TOPIC", "c4-events")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: "c4-analytics",
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("broker", broker).Str("topic", topic).Msg("analytics-consumer-listening")

	summary := analytics.NewSummary()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				printReport(summary.Report())
			}
		}
	}()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				printReport(summary.Report())
				return
			}
			log.Fatal().Err(err).Msg("read-failed")
		}
		var e analytics.Event
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			log.Warn().Err(err).Msg("bad-event")
			continue
		}
		summary.Record(e)
		log.Debug().Str("event", e.Event).Any("session", e.Payload["sessionId"]).Msg("event")
	}
}

func printReport(r analytics.Report) {
	log.Info().
		Int("games", r.Games).
		Int("moves", r.MovesPlayed).
		Float64("avgDuration", r.AvgDuration).
		Float64("avgGameMoves", r.AvgGameMoves).
		Any("reasons", r.Reasons).
		Strs("topWinners", r.TopWinners).
		Any("gamesPerDay", r.GamesPerDay).
		Msg("games-summary")
	for name, st := range r.Strategies {
		log.Info().
			Str("strategy", name).
			Int("decisions", st.Decisions).
			Float64("avgNodes", st.AvgNodes()).
			Float64("avgMillis", st.AvgMillis()).
			Int("cutoffs", st.Cutoffs).
			Int("maxPly", st.MaxPly).
			Msg("engine-summary")
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
