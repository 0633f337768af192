package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizwire/quizwire/go/internal/store"
	"github.com/quizwire/quizwire/go/internal/store/memstore"
	"github.com/quizwire/quizwire/go/internal/trivia"
)

func newTestGateway(t *testing.T) (*memstore.Store, *httptest.Server) {
	t.Helper()
	st := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := NewManager(st, DefaultConfig())
	go m.Start(ctx)

	mux := http.NewServeMux()
	NewHandler(m, st).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return st, srv
}

func writeLobby(t *testing.T, st store.Store, code string) {
	t.Helper()
	require.NoError(t, st.Write(context.Background(), trivia.SessionPath(code), map[string]any{
		"code":    code,
		"phase":   string(trivia.PhaseLobby),
		"players": map[string]any{},
	}))
}

func dial(t *testing.T, srv *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session?code=" + code
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var snapshot map[string]any
	require.NoError(t, json.Unmarshal(data, &snapshot))
	return snapshot
}

func TestSpectatorReceivesSnapshotThenChanges(t *testing.T) {
	st, srv := newTestGateway(t)
	writeLobby(t, st, "ABC123")

	conn := dial(t, srv, "ABC123")

	// first frame is the current snapshot
	snapshot := readSnapshot(t, conn)
	assert.Equal(t, "LOBBY", snapshot["phase"])

	// a phase change produces a fresh frame
	require.NoError(t, st.Merge(context.Background(), trivia.SessionPath("ABC123"), map[string]store.Value{
		"phase": string(trivia.PhaseStarting),
	}))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("never observed STARTING snapshot")
		default:
		}
		snapshot = readSnapshot(t, conn)
		if snapshot["phase"] == "STARTING" {
			return
		}
	}
}

func TestConnectionRejectedForUnknownSession(t *testing.T) {
	_, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/ws/session?code=ZZZZZZ")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws/session?code=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatsCountsPools(t *testing.T) {
	st, srv := newTestGateway(t)
	writeLobby(t, st, "ABC123")

	dial(t, srv, "ABC123")
	dial(t, srv, "ABC123")

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/ws/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var stats struct {
			ActiveSessions   int `json:"active_sessions"`
			TotalConnections int `json:"total_connections"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return false
		}
		return stats.ActiveSessions == 1 && stats.TotalConnections == 2
	}, 5*time.Second, 20*time.Millisecond)
}
