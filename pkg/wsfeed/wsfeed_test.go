package wsfeed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mikesmitty/gesture-predictor/pkg/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	msg, err := Encode(inference.Result{Label: "swipe", Probability: 0.25, Window: 7, At: at})
	require.NoError(t, err)

	var got struct {
		Type string    `json:"type"`
		Ts   time.Time `json:"ts"`
		Data struct {
			Label      string  `json:"label"`
			Confidence float64 `json:"confidence"`
			Window     uint64  `json:"window"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "gesture", got.Type)
	assert.True(t, at.Equal(got.Ts))
	assert.Equal(t, "swipe", got.Data.Label)
	assert.Equal(t, 0.25, got.Data.Confidence)
	assert.Equal(t, uint64(7), got.Data.Window)
}

func TestHubBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(4)
	go hub.Run(ctx)
	srv := httptest.NewServer(hub.Handler(ctx))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	results := make(chan inference.Result, 1)
	results <- inference.Result{Label: "circle", Probability: 0.8, Window: 3}
	close(results)
	require.NoError(t, hub.Feed(results)())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"label":"circle"`)
	assert.Contains(t, string(msg), `"type":"gesture"`)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(1)
	for i := 0; i < 200; i++ {
		hub.Broadcast([]byte("x"))
	}
	assert.Len(t, hub.broadcast, cap(hub.broadcast))
}
