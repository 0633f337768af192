// Command quizwire-player is a terminal client for joining a session,
// answering questions, and watching results.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/store/natsstore"
	"github.com/quizwire/quizwire/go/internal/trivia"
	"github.com/quizwire/quizwire/go/internal/trivia/player"
	"github.com/quizwire/quizwire/go/internal/trivia/presence"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	code := flag.String("code", "", "session code to join")
	name := flag.String("name", "", "display name")
	natsURL := flag.String("nats", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
	bucket := flag.String("bucket", envOr("STORE_BUCKET", "quizwire-sessions"), "session KV bucket")
	flag.Parse()

	if *code == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "usage: quizwire-player -code ABC123 -name ada")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := natsstore.Connect(ctx, natsstore.Config{URL: *natsURL, Bucket: *bucket})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect session store")
	}
	defer st.Close()

	views := make(chan player.View, 16)
	c, err := player.Join(ctx, st, strings.ToUpper(*code), *name,
		player.WithOnChange(func(v player.View) {
			select {
			case views <- v:
			default:
			}
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not join: %v\n", joinMessage(err))
		os.Exit(1)
	}
	fmt.Printf("joined session %s as %s\n", strings.ToUpper(*code), *name)

	heartbeat := presence.New(st, c.PlayerPath())
	go heartbeat.Run(ctx)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var current player.View
	for {
		select {
		case <-sigChan:
			c.Leave(context.Background())
			fmt.Println("\nleft session")
			return
		case v := <-views:
			render(current, v)
			current = v
			if current.Phase == trivia.PhaseGameOver {
				c.Leave(context.Background())
				return
			}
		case line, ok := <-lines:
			if !ok {
				c.Leave(context.Background())
				return
			}
			submit(ctx, c, current, line)
		}
	}
}

// render prints only what changed since the previous view.
func render(prev, v player.View) {
	if v.Round != nil && (prev.Round == nil || prev.Round.Ordinal != v.Round.Ordinal) {
		fmt.Printf("\nQ%d: %s\n", v.Round.Ordinal+1, v.Round.Prompt)
		for i, opt := range v.Round.Options {
			fmt.Printf("  %d) %s\n", i+1, opt)
		}
		fmt.Print("answer> ")
		return
	}
	if v.ShowResult && !prev.ShowResult && v.Round != nil {
		fmt.Printf("correct answer: %s\n", v.Round.CorrectOption)
		if v.Selected != nil {
			if *v.Selected == v.Round.CorrectOption {
				fmt.Println("you got it!")
			} else {
				fmt.Printf("you answered: %s\n", *v.Selected)
			}
		}
		return
	}
	if v.Phase != prev.Phase {
		switch v.Phase {
		case trivia.PhaseStarting:
			fmt.Println("game starting...")
		case trivia.PhaseGameOver:
			fmt.Println("\ngame over, thanks for playing")
		}
	}
}

func submit(ctx context.Context, c *player.Client, v player.View, line string) {
	if line == "" {
		return
	}
	if v.Round == nil {
		fmt.Println("no question is open")
		return
	}
	option := line
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(v.Round.Options) {
		option = v.Round.Options[n-1]
	}
	switch err := c.Submit(ctx, option); {
	case err == nil:
		fmt.Printf("submitted: %s\n", option)
	case errors.Is(err, trivia.ErrAlreadyAnswered):
		fmt.Println("you already answered this question")
	case errors.Is(err, trivia.ErrWrongPhase):
		fmt.Println("answers are closed")
	default:
		fmt.Printf("submit failed: %v\n", err)
	}
}

func joinMessage(err error) string {
	switch {
	case errors.Is(err, trivia.ErrSessionNotFound):
		return "no session with that code"
	case errors.Is(err, trivia.ErrAlreadyStarted):
		return "that game already started"
	case errors.Is(err, trivia.ErrNameTaken):
		return "that name is taken"
	case errors.Is(err, trivia.ErrSessionFull):
		return "that session is full"
	}
	return err.Error()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
