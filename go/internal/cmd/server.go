package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/trivia"
	"github.com/quizwire/quizwire/go/internal/trivia/gateway"
)

func setupServer(services *Services, gw *gateway.Handler, defaults trivia.Settings) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerRoutes(mux, services, gw, defaults)
	setupHealthCheck(mux)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", getEnv("PORT", "8080")),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, services *Services, gw *gateway.Handler, defaults trivia.Settings) {
	gw.RegisterRoutes(mux)

	mux.HandleFunc("POST /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TotalQuestions          int `json:"totalQuestions"`
			QuestionDurationSeconds int `json:"questionDurationSeconds"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}
		settings := defaults
		if req.TotalQuestions > 0 {
			settings.TotalQuestions = req.TotalQuestions
		}
		if req.QuestionDurationSeconds > 0 {
			settings.QuestionDurationSec = req.QuestionDurationSeconds
		}

		m, err := services.Sessions.Create(r.Context(), settings)
		if err != nil {
			log.Error().Err(err).Msg("create session failed")
			writeGameError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"code": m.Code()})
	})

	mux.HandleFunc("POST /api/sessions/{code}/start", func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("code")
		if err := services.Sessions.Start(r.Context(), code); err != nil {
			writeGameError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"code": code, "status": "starting"})
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"sessions": services.Sessions.Active()})
	})

	if services.Archive != nil {
		mux.HandleFunc("GET /api/results", func(w http.ResponseWriter, r *http.Request) {
			results, err := services.Archive.RecentResults(r.Context(), 20)
			if err != nil {
				log.Error().Err(err).Msg("list results failed")
				http.Error(w, "archive unavailable", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"results": results})
		})
	}
}

func writeGameError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, trivia.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, trivia.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, trivia.ErrWrongPhase),
		errors.Is(err, trivia.ErrNoPlayers):
		status = http.StatusConflict
	case errors.Is(err, trivia.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
