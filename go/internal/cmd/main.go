package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/store/natsstore"
	"github.com/quizwire/quizwire/go/internal/trivia/archive"
	"github.com/quizwire/quizwire/go/internal/trivia/gateway"
	"github.com/quizwire/quizwire/go/internal/trivia/questions"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	config, err := loadConfig(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
		log.Warn().Str("path", configPath).Msg("no config file, using defaults")
		config = &Config{}
	}
	settings := config.gameSettings()

	var source questions.Source
	if config.Questions.DeckPath != "" {
		pool, err := questions.LoadFile(config.Questions.DeckPath)
		if err != nil {
			log.Warn().Err(err).Str("path", config.Questions.DeckPath).Msg("question deck unavailable, using builtin fallback deck")
			source = questions.Fallback()
		} else {
			source = pool
		}
	} else {
		log.Warn().Msg("no question deck configured, using builtin fallback deck")
		source = questions.Fallback()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	natsURL := getEnv("NATS_URL", nats.DefaultURL)
	st, err := natsstore.Connect(ctx, natsstore.Config{
		URL:    natsURL,
		Bucket: getEnv("STORE_BUCKET", "quizwire-sessions"),
	})
	if err != nil {
		log.Fatal().Err(err).Str("nats_url", natsURL).Msg("failed to connect session store")
	}
	defer st.Close()

	db, err := setupDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	repo := archive.NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure archive schema")
	}

	services := setupServices(st, source, repo)

	manager := gateway.NewManager(st, gateway.DefaultConfig())
	go manager.Start(ctx)
	gw := gateway.NewHandler(manager, st)

	server := setupServer(services, gw, settings)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("quizwire server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	cancel()

	log.Info().Msg("quizwire server shutdown complete")
}
