package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/store"
	"github.com/quizwire/quizwire/go/internal/trivia"
	"github.com/quizwire/quizwire/go/internal/trivia/archive"
	"github.com/quizwire/quizwire/go/internal/trivia/host"
	"github.com/quizwire/quizwire/go/internal/trivia/questions"
)

// Services bundles everything the HTTP surface needs.
type Services struct {
	Store    store.Store
	Source   questions.Source
	Archive  *archive.Repository
	Sessions *SessionManager
}

// SessionManager owns the host machines running in this process. Each
// machine runs its own loop; the manager only tracks them by code.
type SessionManager struct {
	store   store.Store
	source  questions.Source
	archive *archive.Repository

	mu       sync.Mutex
	machines map[string]*host.Machine
}

func setupServices(st store.Store, src questions.Source, repo *archive.Repository) *Services {
	return &Services{
		Store:   st,
		Source:  src,
		Archive: repo,
		Sessions: &SessionManager{
			store:    st,
			source:   src,
			archive:  repo,
			machines: make(map[string]*host.Machine),
		},
	}
}

// Create opens a new session in the lobby phase and starts its loop.
func (sm *SessionManager) Create(ctx context.Context, settings trivia.Settings) (*host.Machine, error) {
	opts := []host.Option{}
	if sm.archive != nil {
		opts = append(opts, host.WithResultSink(sm.archive))
	}
	m, err := host.New(sm.store, sm.source, settings, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Open(ctx); err != nil {
		return nil, err
	}

	sm.mu.Lock()
	sm.machines[m.Code()] = m
	sm.mu.Unlock()

	go func() {
		if err := m.Run(context.Background()); err != nil {
			log.Error().Err(err).Str("session", m.Code()).Msg("session loop exited with error")
		}
		sm.mu.Lock()
		delete(sm.machines, m.Code())
		sm.mu.Unlock()
	}()

	return m, nil
}

// Start kicks off the countdown for a lobby session hosted here.
func (sm *SessionManager) Start(ctx context.Context, code string) error {
	sm.mu.Lock()
	m, ok := sm.machines[code]
	sm.mu.Unlock()
	if !ok {
		return trivia.ErrSessionNotFound
	}
	return m.Start(ctx)
}

// Active returns the codes of sessions currently hosted here.
func (sm *SessionManager) Active() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	codes := make([]string, 0, len(sm.machines))
	for code := range sm.machines {
		codes = append(codes, code)
	}
	return codes
}
