package surface

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/voicepay/internal/bus"
	"github.com/loqalabs/voicepay/internal/bus/bustest"
	"github.com/loqalabs/voicepay/internal/protocol"
)

func dial(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) Snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var snap Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	return snap
}

func TestHubBroadcastsSnapshots(t *testing.T) {
	hub := NewHub(nil, nil, bustest.Logger())
	t.Cleanup(hub.Close)
	hub.Broadcast(Snapshot{Sequence: 1, State: "home"})

	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	conn := dial(t, server, nil)

	first := readSnapshot(t, conn)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, "home", first.State)

	hub.Broadcast(Snapshot{Sequence: 2, State: "select_recipient", QuickAmounts: QuickAmounts})
	second := readSnapshot(t, conn)
	assert.Equal(t, "select_recipient", second.State)
	assert.Equal(t, []string{"100", "500", "1000", "2000", "5000"}, second.QuickAmounts)
}

func TestHubForwardsUIEvents(t *testing.T) {
	events := make(chan protocol.UIEvent, 4)
	hub := NewHub(nil, func(e protocol.UIEvent) { events <- e }, bustest.Logger())
	t.Cleanup(hub.Close)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	conn := dial(t, server, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(protocol.UIEvent{Type: protocol.UISelectContact, ContactID: 2}))

	select {
	case evt := <-events:
		assert.Equal(t, protocol.UISelectContact, evt.Type)
		assert.Equal(t, 2, evt.ContactID)
	case <-time.After(3 * time.Second):
		t.Fatal("ui event not forwarded")
	}
	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"http://kiosk.local"}, nil, bustest.Logger())
	t.Cleanup(hub.Close)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, server, http.Header{"Origin": []string{"http://kiosk.local"}})
	assert.NotNil(t, conn)
}

func TestHubDropsClientOnClose(t *testing.T) {
	hub := NewHub(nil, nil, bustest.Logger())
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	conn := dial(t, server, nil)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}

func TestBridgeFiltersBySession(t *testing.T) {
	client := bustest.Start(t)
	events := make(chan protocol.UIEvent, 4)
	bridge, err := NewBridge(client, "s1", func(e protocol.UIEvent) { events <- e }, bustest.Logger())
	require.NoError(t, err)
	t.Cleanup(bridge.Close)

	states := make(chan Snapshot, 1)
	sub, err := bus.SubscribeJSON(client, protocol.SubjectUIState, func(s Snapshot) { states <- s })
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, client.Conn().Flush())

	require.NoError(t, client.PublishJSON(protocol.SubjectUIEvent, protocol.UIEvent{SessionID: "other", Type: protocol.UIApprove}))
	require.NoError(t, client.PublishJSON(protocol.SubjectUIEvent, protocol.UIEvent{Type: protocol.UINewPayment}))

	select {
	case evt := <-events:
		assert.Equal(t, protocol.UINewPayment, evt.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("ui event not delivered")
	}

	bridge.Publish(Snapshot{SessionID: "s1", State: "home"})
	select {
	case snap := <-states:
		assert.Equal(t, "s1", snap.SessionID)
	case <-time.After(3 * time.Second):
		t.Fatal("snapshot not published")
	}
	assert.Empty(t, events)
}
