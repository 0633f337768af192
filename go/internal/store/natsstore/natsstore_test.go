package natsstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyForMapsSessionPaths(t *testing.T) {
	key, rel, err := keyFor("sessions/ABC123")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", key)
	assert.Empty(t, rel)

	key, rel, err = keyFor("sessions/ABC123/players/p1/currentAnswer")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", key)
	assert.Equal(t, []string{"players", "p1", "currentAnswer"}, rel)

	_, _, err = keyFor("lobbies/ABC123")
	require.Error(t, err)
}

func TestSetNodeCreatesIntermediatesAndDeletesOnNil(t *testing.T) {
	doc := make(map[string]any)
	setNode(doc, []string{"players", "p1", "currentAnswer"}, "Paris")

	v, ok := getNode(doc, []string{"players", "p1", "currentAnswer"})
	require.True(t, ok)
	assert.Equal(t, "Paris", v)

	setNode(doc, []string{"players", "p1", "currentAnswer"}, nil)
	_, ok = getNode(doc, []string{"players", "p1", "currentAnswer"})
	assert.False(t, ok)

	// the parent map survives the delete
	_, ok = getNode(doc, []string{"players", "p1"})
	assert.True(t, ok)
}

func TestNormalizeProducesPlainJSONValues(t *testing.T) {
	type round struct {
		Prompt  string   `json:"promptText"`
		Options []string `json:"options"`
		Ordinal int      `json:"ordinal"`
	}
	v := normalize(round{Prompt: "capital?", Options: []string{"a", "b"}, Ordinal: 2})

	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "capital?", m["promptText"])
	assert.Equal(t, json.Number("2"), m["ordinal"])
}

func TestDecodeDocRoundTrip(t *testing.T) {
	doc := map[string]any{"phase": "LOBBY", "createdAt": json.Number("1700000000000")}
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	got, err := decodeDoc(data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	empty, err := decodeDoc(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
