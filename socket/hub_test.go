package socket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to read events from a WebSocket connection with a timeout.
func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	var event Event
	// Set a deadline to avoid tests hanging forever.
	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	err = json.Unmarshal(p, &event)
	require.NoError(t, err, "Failed to unmarshal Event JSON")
	return event
}

func dialRoom(t *testing.T, wsURL string, docID, userID int64) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL+"/ws?docId="+strconv.FormatInt(docID, 10)+"&user_id="+strconv.FormatInt(userID, 10), nil)
	require.NoError(t, err, "Failed to connect")
	return conn
}

func TestHubIntegration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// For simplicity, the test server takes the user id from the query.
		userID, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
		ServeWs(hub, w, r, userID)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	// Client 1 joins and sees itself in the presence list.
	conn1 := dialRoom(t, wsURL, 1, 101)
	defer conn1.Close()

	joined := readEvent(t, conn1)
	assert.Equal(t, PresenceUpdateType, joined.Type)
	assert.Equal(t, int64(1), joined.DocID)

	var statuses []UserStatus
	require.NoError(t, json.Unmarshal(joined.Payload, &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, int64(101), statuses[0].UserID)

	// Client 2 joins the same room; both receive the new presence list.
	conn2 := dialRoom(t, wsURL, 1, 102)
	defer conn2.Close()

	both := readEvent(t, conn1)
	assert.Equal(t, PresenceUpdateType, both.Type)
	require.NoError(t, json.Unmarshal(both.Payload, &statuses))
	require.Len(t, statuses, 2)
	userIDs := []int64{statuses[0].UserID, statuses[1].UserID}
	assert.Contains(t, userIDs, int64(101))
	assert.Contains(t, userIDs, int64(102))

	_ = readEvent(t, conn2)

	// A published event reaches everyone in the room.
	hub.Publish(Event{
		Type:    SavedType,
		DocID:   1,
		UserID:  101,
		Payload: json.RawMessage(`{"ops":[{"insert":"Hello"}]}`),
	})

	saved1 := readEvent(t, conn1)
	assert.Equal(t, SavedType, saved1.Type)
	assert.Equal(t, int64(101), saved1.UserID)
	assert.JSONEq(t, `{"ops":[{"insert":"Hello"}]}`, string(saved1.Payload))

	saved2 := readEvent(t, conn2)
	assert.Equal(t, SavedType, saved2.Type)
}

func TestEventsDoNotLeakAcrossRooms(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
		ServeWs(hub, w, r, userID)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn1 := dialRoom(t, wsURL, 1, 101)
	defer conn1.Close()
	conn2 := dialRoom(t, wsURL, 2, 202)
	defer conn2.Close()

	_ = readEvent(t, conn1) // own presence update
	_ = readEvent(t, conn2)

	hub.Publish(Event{Type: SuggestionType, DocID: 2})

	got := readEvent(t, conn2)
	assert.Equal(t, SuggestionType, got.Type)

	conn1.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn1.ReadMessage()
	assert.Error(t, err, "Room 1 must not see room 2's events")
}

func TestServeWsRejectsMissingDocID(t *testing.T) {
	hub := NewHub()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, 101)
	}))
	defer server.Close()

	res, err := http.Get(server.URL + "/ws")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestLaggingClientIsEvictedWithoutStallingHub(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// A client whose send channel is never drained.
	laggard := &Client{Hub: hub, DocID: 1, UserID: 101, Send: make(chan []byte)}
	hub.Register <- laggard

	hub.Broadcast <- Event{Type: SavedType, DocID: 1}

	// The hub must keep serving its channels after evicting the laggard.
	healthy := &Client{Hub: hub, DocID: 1, UserID: 102, Send: make(chan []byte, 16)}
	select {
	case hub.Register <- healthy:
	case <-time.After(1 * time.Second):
		t.Fatal("Hub stopped accepting registrations after a lagging client broadcast")
	}

	select {
	case _, open := <-laggard.Send:
		assert.False(t, open, "Evicted client's send channel should be closed")
	case <-time.After(1 * time.Second):
		t.Fatal("Evicted client's send channel was not closed")
	}

	hub.mu.Lock()
	_, stillThere := hub.Rooms[1][laggard]
	hub.mu.Unlock()
	assert.False(t, stillThere, "Lagging client should be out of the room")
}

func TestRemoveDocumentDisconnectsRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, 101)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn := dialRoom(t, wsURL, 5, 101)
	defer conn.Close()

	_ = readEvent(t, conn)

	hub.RemoveDocument(5)

	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "Connection should be closed after document removal")
}
