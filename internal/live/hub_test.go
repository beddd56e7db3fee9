package live_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearhome/streamd/internal/live"
)

func TestHub_BroadcastsToConnectedClient(t *testing.T) {
	hub := live.NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		hub.Broadcast("stream.provisioned", map[string]string{"tenantId": "t1"})
		conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		assert.Contains(t, string(data), "stream.provisioned")
		return true
	}, time.Second, 10*time.Millisecond)
}
