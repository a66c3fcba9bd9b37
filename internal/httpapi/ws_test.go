package httpapi

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailfang/mailfang/internal/eventbus"
)

func TestWS_ForwardsPublishedMessage(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	id := "abc"
	ts.bus.PublishEmailDeleted(id)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg eventbus.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, eventbus.EmailDeleted, msg.Event)
	require.NotNil(t, msg.EmailID)
	assert.Equal(t, id, *msg.EmailID)
}

func TestWS_ClosesCleanlyOnClientDisconnect(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.NoError(t, conn.Close())

	// Give the server's goroutine a moment to observe the close and
	// unsubscribe; publishing afterwards must not panic or block.
	time.Sleep(50 * time.Millisecond)
	assert.NotPanics(t, func() {
		ts.bus.PublishEmailDeleted("after-close")
	})
}
