// Package gateway exposes sessions to browsers over WebSocket. Each
// connected socket receives the JSON snapshot of its session's store node
// whenever the node changes; the gateway is a read-only fanout and never
// writes game state.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/store"
	"github.com/quizwire/quizwire/go/internal/trivia"
)

// Config holds WebSocket connection tuning.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// broadcast carries one session snapshot to the fanout loop.
type broadcast struct {
	code     string
	snapshot []byte
}

// Manager owns the per-session connection pools and the store subscriptions
// feeding them. One store subscription exists per session with at least one
// socket attached.
type Manager struct {
	store  store.Store
	config Config
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]map[*Connection]bool
	subs     map[string]store.Subscription

	upgrader    websocket.Upgrader
	broadcastCh chan broadcast
}

// Connection is one client socket attached to a session.
type Connection struct {
	ID      string
	Code    string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *Manager

	ConnectedAt time.Time
	LastPing    time.Time
}

// NewManager creates a gateway manager over the given store.
func NewManager(st store.Store, config Config) *Manager {
	return &Manager{
		store:    st,
		config:   config,
		logger:   log.Logger,
		sessions: make(map[string]map[*Connection]bool),
		subs:     make(map[string]store.Subscription),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		broadcastCh: make(chan broadcast, 1000),
	}
}

// Start processes broadcasts until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info().Msg("gateway manager started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("gateway manager shutting down")
			return
		case b := <-m.broadcastCh:
			m.fanOut(b)
		}
	}
}

// Upgrade promotes an HTTP request to a WebSocket attached to the session.
func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request, code string) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Connection{
		ID:          uuid.New().String(),
		Code:        code,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     m,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}
	if err := m.register(c); err != nil {
		conn.Close()
		return err
	}

	go c.writePump()
	go c.readPump()

	m.logger.Info().
		Str("connection_id", c.ID).
		Str("session", code).
		Msg("WebSocket connection established")
	return nil
}

// register attaches the connection and, for the first socket of a session,
// opens the store subscription that feeds the pool.
func (m *Manager) register(c *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions[c.Code] == nil {
		sub, err := m.store.Subscribe(trivia.SessionPath(c.Code), func(v store.Value) {
			data, err := json.Marshal(v)
			if err != nil {
				m.logger.Error().Err(err).Str("session", c.Code).Msg("marshal session snapshot")
				return
			}
			select {
			case m.broadcastCh <- broadcast{code: c.Code, snapshot: data}:
			default:
				m.logger.Warn().Str("session", c.Code).Msg("broadcast channel full, dropping snapshot")
			}
		})
		if err != nil {
			return err
		}
		m.sessions[c.Code] = make(map[*Connection]bool)
		m.subs[c.Code] = sub
	}
	m.sessions[c.Code][c] = true

	m.logger.Debug().
		Str("connection_id", c.ID).
		Str("session", c.Code).
		Int("total_connections", len(m.sessions[c.Code])).
		Msg("connection registered")
	return nil
}

// unregister detaches the connection and tears down the store subscription
// when the pool empties.
func (m *Manager) unregister(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, exists := m.sessions[c.Code]
	if !exists {
		return
	}
	if _, exists := pool[c]; !exists {
		return
	}
	delete(pool, c)
	close(c.Send)

	if len(pool) == 0 {
		delete(m.sessions, c.Code)
		if sub, ok := m.subs[c.Code]; ok {
			sub.Unsubscribe()
			delete(m.subs, c.Code)
		}
	}

	m.logger.Info().
		Str("connection_id", c.ID).
		Str("session", c.Code).
		Msg("connection unregistered")
}

// fanOut delivers one snapshot to every socket in the session's pool. A
// socket with a full send buffer is closed rather than allowed to stall the
// rest.
func (m *Manager) fanOut(b broadcast) {
	m.mu.RLock()
	pool, exists := m.sessions[b.code]
	if !exists {
		m.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(pool))
	for c := range pool {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.Send <- b.snapshot:
		default:
			m.logger.Warn().
				Str("connection_id", c.ID).
				Str("session", b.code).
				Msg("send buffer full, closing connection")
			m.unregister(c)
			c.Conn.Close()
		}
	}

	m.logger.Debug().
		Str("session", b.code).
		Int("connections", len(targets)).
		Msg("snapshot broadcasted")
}

// Stats reports active pools and sockets.
func (m *Manager) Stats() (sessions, connections int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, pool := range m.sessions {
		connections += len(pool)
	}
	return len(m.sessions), connections
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Manager.logger.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		// the gateway is read-only; inbound frames only keep the socket alive
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Manager.logger.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
