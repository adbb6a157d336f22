package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/typerace/go/internal/relay"
)

func startRelay(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(relay.NewHub(relay.DefaultConfig()).Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectRelayBadEndpoint(t *testing.T) {
	_, err := ConnectRelay("ws://127.0.0.1:1/ws")
	assert.ErrorIs(t, err, ErrConnection)
}

func TestRelayPublishSubscribe(t *testing.T) {
	url := startRelay(t)

	a, err := ConnectRelay(url)
	require.NoError(t, err)
	defer a.Close()
	b, err := ConnectRelay(url)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Subscribe("typing-game/t1"))
	require.NoError(t, b.Subscribe("typing-game/t1"))
	time.Sleep(50 * time.Millisecond)

	payload := []byte(`{"action":"join","sender_id":"x1","payload":{"name":"Bob"}}`)
	require.NoError(t, b.Publish("typing-game/t1", payload))

	select {
	case in := <-a.Messages():
		assert.Equal(t, "typing-game/t1", in.Topic)
		assert.JSONEq(t, string(payload), string(in.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the publish")
	}

	// The hub echoes the publish back to the publisher; the protocol layer
	// is the one expected to filter its own traffic.
	select {
	case in := <-b.Messages():
		assert.JSONEq(t, string(payload), string(in.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("publisher never received its own echo")
	}
}

func TestRelayCloseEndsMessageStream(t *testing.T) {
	url := startRelay(t)

	a, err := ConnectRelay(url)
	require.NoError(t, err)
	require.NoError(t, a.Subscribe("typing-game/t2"))

	a.Close()

	select {
	case _, ok := <-a.Messages():
		assert.False(t, ok, "messages channel should close after Close")
	case <-time.After(2 * time.Second):
		t.Fatal("messages channel never closed")
	}
}
