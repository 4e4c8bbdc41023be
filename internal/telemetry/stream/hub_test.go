package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/stratrun/internal/backtest"
	"github.com/quantpulse/stratrun/internal/ensemble"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(ServeWS(hub))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Broadcast([]byte(`{"equity":100000}`))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"equity":100000}`, string(msg))
}

func TestHubRemovesDisconnectedClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestHubBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub()

	// No Run loop consuming; every call must still return immediately.
	for i := 0; i < 1000; i++ {
		hub.Broadcast([]byte("overflow"))
	}
	assert.Zero(t, hub.ClientCount())
}

func TestStepHookPublishesEventJSON(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hook := StepHook(hub)
	hook(backtest.StepEvent{
		RunID:     "run-123",
		Index:     191,
		Processed: 1,
		Total:     529,
		Action:    ensemble.ActionHold,
		Equity:    100000,
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev backtest.StepEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "run-123", ev.RunID)
	assert.Equal(t, 191, ev.Index)
	assert.Equal(t, ensemble.ActionHold, ev.Action)
	assert.InDelta(t, 100000.0, ev.Equity, 1e-9)
}
