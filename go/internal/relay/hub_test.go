package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(NewHub(DefaultConfig()).Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestBroadcastReachesAllSubscribersIncludingPublisher(t *testing.T) {
	url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)

	require.NoError(t, a.WriteJSON(Frame{Op: OpSubscribe, Topic: "typing-game/x"}))
	require.NoError(t, b.WriteJSON(Frame{Op: OpSubscribe, Topic: "typing-game/x"}))

	// Subscribes are handled on each connection's own read pump; give them
	// a beat to register before publishing.
	time.Sleep(50 * time.Millisecond)

	payload := json.RawMessage(`{"action":"join","sender_id":"b1","payload":{"name":"Bob"}}`)

	got := make(chan Frame, 2)
	go func() {
		got <- readFrame(t, a)
	}()
	go func() {
		got <- readFrame(t, b)
	}()
	require.NoError(t, b.WriteJSON(Frame{Op: OpPublish, Topic: "typing-game/x", Data: payload}))

	for i := 0; i < 2; i++ {
		select {
		case frame := <-got:
			assert.Equal(t, OpMessage, frame.Op)
			assert.Equal(t, "typing-game/x", frame.Topic)
			assert.JSONEq(t, string(payload), string(frame.Data))
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber never received the broadcast")
		}
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)

	require.NoError(t, a.WriteJSON(Frame{Op: OpSubscribe, Topic: "typing-game/a"}))
	require.NoError(t, b.WriteJSON(Frame{Op: OpSubscribe, Topic: "typing-game/b"}))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, a.WriteJSON(Frame{Op: OpPublish, Topic: "typing-game/a", Data: json.RawMessage(`{"k":1}`)}))

	// a echoes back its own publish; b must stay silent.
	frame := readFrame(t, a)
	assert.Equal(t, "typing-game/a", frame.Topic)

	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var stray Frame
	assert.Error(t, b.ReadJSON(&stray), "message leaked across topics")
}

func TestUnknownOpsAndJunkTolerated(t *testing.T) {
	url := startHub(t)
	a := dial(t, url)

	require.NoError(t, a.WriteJSON(Frame{Op: "dance", Topic: "typing-game/x"}))
	require.NoError(t, a.WriteJSON(Frame{Op: OpPublish})) // no topic

	// The connection survives and still works.
	require.NoError(t, a.WriteJSON(Frame{Op: OpSubscribe, Topic: "typing-game/x"}))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, a.WriteJSON(Frame{Op: OpPublish, Topic: "typing-game/x", Data: json.RawMessage(`{"k":2}`)}))

	frame := readFrame(t, a)
	assert.Equal(t, OpMessage, frame.Op)
}
