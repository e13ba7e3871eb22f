package websocket

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
	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/notify"
)

func TestHub_BroadcastToClient(t *testing.T) {
	server := NewServer(zap.NewNop())
	defer server.Stop()

	ts := httptest.NewServer(server)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// wait for registration before broadcasting
	require.Eventually(t, func() bool {
		return server.Hub().ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	sent := notify.New(notify.SeveritySuccess, "Purchase successful! Downloading contract...", 3)
	require.NoError(t, server.Hub().Notify(context.Background(), sent))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var got notify.Notification
	require.NoError(t, json.Unmarshal(message, &got))
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, notify.SeveritySuccess, got.Severity)
	assert.Equal(t, uint64(3), got.TokenID)
}

func TestHub_ClientDisconnect(t *testing.T) {
	server := NewServer(zap.NewNop())
	defer server.Stop()

	ts := httptest.NewServer(server)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return server.Hub().ClientCount() == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return server.Hub().ClientCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHub_RemoveAfterStop(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	hub.Stop()

	// a read pump exiting after shutdown must not hang on handoff
	done := make(chan struct{})
	go func() {
		hub.remove(&Client{send: make(chan []byte, 1)})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("remove blocked after hub stop")
	}
}

func TestHub_NotifyWithoutClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	// no clients connected, delivery is a no-op
	err := hub.Notify(context.Background(), notify.New(notify.SeverityInfo, "m", 1))
	assert.NoError(t, err)
}
