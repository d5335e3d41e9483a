package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"connectfour/internal/analytics"
	"connectfour/internal/server"
	"connectfour/internal/storage"
)

func main() {
	setupLogging()

	// PORT wins when set (Render, Fly.io, Heroku).
	addr := getEnv("ADDR", ":8080")
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	var store storage.Store = storage.NewMemoryStore()
	if dsn := os.Getenv("POSTGRES_URL"); dsn != "" {
		pg, err := storage.NewPostgresStore(context.Background(), dsn)
		if err != nil {
			log.Warn().Err(err).Msg("postgres-disabled")
		} else {
			if err := pg.EnsureTables(context.Background()); err != nil {
				log.Warn().Err(err).Msg("postgres-ensure-tables-failed")
			}
			defer pg.Close()
			store = pg
		}
	}

	var producer *analytics.Producer
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		producer = analytics.NewProducer(strings.Split(brokers, ","), getEnv("KAFKA_TOPIC", "c4-events"))
		defer producer.Close()
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(server.Config{
		DefaultPly:    intEnv("DEFAULT_PLY", 9),
		MaxPly:        intEnv("MAX_PLY", 10),
		SearchWorkers: intEnv("SEARCH_WORKERS", 4),
		IdleWindow:    durationEnv("IDLE_WINDOW", 10*time.Minute),
		Store:         store,
		Analytics:     producer,
	})

	log.Info().Str("addr", addr).Msg("server-listening")
	if err := srv.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server-stopped")
	}
}

func setupLogging() {
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if os.Getenv("LOG_PRETTY") == "1" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Str("value", v).Msg("ignoring-bad-int")
	}
	return fallback
}

// durationEnv reads whole seconds.
func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return time.Duration(parsed) * time.Second
		}
		log.Warn().Str("key", key).Str("value", v).Msg("ignoring-bad-duration")
	}
	return fallback
}
