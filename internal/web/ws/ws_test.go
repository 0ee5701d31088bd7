package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/notify"
	"github.com/mcoot/tileclaim/internal/testutil"
)

func TestServeWSForwardsEvents(t *testing.T) {
	manager := notify.NewHubManager(testutil.NopLogger())
	defer manager.CloseAll()
	hub := manager.GetOrCreateHub(model.BoardTopic)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, "observer-1", Options{}, testutil.NopLogger())
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, manager.Publish(ctx, model.BoardTopic, model.Event{
		Type:       model.EventTileClaimed,
		Timestamp:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Generation: 2,
		Payload:    model.TileClaimedPayload{TileID: "tile-07", ClaimedBy: "alice", Rating: 88, Score: 88},
	}))

	var got struct {
		Type       string         `json:"type"`
		Generation int64          `json:"generation"`
		Payload    map[string]any `json:"payload"`
	}
	require.NoError(t, wsjson.Read(ctx, c, &got))
	assert.Equal(t, "tile_claimed", got.Type)
	assert.Equal(t, int64(2), got.Generation)
	assert.Equal(t, "tile-07", got.Payload["tileId"])
	assert.Equal(t, "alice", got.Payload["claimedBy"])
}

func TestServeWSUnregistersOnDisconnect(t *testing.T) {
	manager := notify.NewHubManager(testutil.NopLogger())
	defer manager.CloseAll()
	hub := manager.GetOrCreateHub(model.BoardTopic)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, "observer-1", Options{}, testutil.NopLogger())
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServeWSHubShutdownClosesConnection(t *testing.T) {
	manager := notify.NewHubManager(testutil.NopLogger())
	hub := manager.GetOrCreateHub(model.BoardTopic)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, "observer-1", Options{}, testutil.NopLogger())
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	manager.CloseAll()

	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
