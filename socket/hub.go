// Package socket pushes editor events to connected clients. Each document is
// a room; clients join the room for the document they have open and receive
// presence changes plus events published by the REST layer (saves, new
// suggestions, mirror sync outcomes). The hub holds no document content;
// persistence happens on the REST save path.
package socket

import (
	"encoding/json"
	"sync"
	"time"

	"inkdraft/pkg/logger"
)

const (
	SavedType          = "SAVED"           // Document content replaced via a save
	SuggestionType     = "SUGGESTION"      // New AI suggestion available
	MirrorSyncedType   = "MIRROR_SYNCED"   // External mirror caught up
	MirrorStaleType    = "MIRROR_STALE"    // External push failed, mirror stale
	PresenceUpdateType = "PRESENCE_UPDATE" // A user joined or left
)

type Event struct {
	Type    string          `json:"type"`
	DocID   int64           `json:"document_id"`
	UserID  int64           `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type UserStatus struct {
	UserID   int64     `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
}

type Hub struct {
	Rooms      map[int64]map[*Client]bool
	Broadcast  chan Event
	Register   chan *Client
	Unregister chan *Client
	mu         sync.Mutex
	Presence   map[int64]map[int64]UserStatus // docID -> userID -> status
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[int64]map[*Client]bool),
		Broadcast:  make(chan Event),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Presence:   make(map[int64]map[int64]UserStatus),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.DocID] == nil {
				h.Rooms[client.DocID] = make(map[*Client]bool)
				h.Presence[client.DocID] = make(map[int64]UserStatus)
			}
			h.Rooms[client.DocID][client] = true
			h.Presence[client.DocID][client.UserID] = UserStatus{UserID: client.UserID, LastSeen: time.Now()}
			h.mu.Unlock()

			h.broadcastPresenceUpdate(client.DocID)

		case client := <-h.Unregister:
			h.evict(client)

		case event := <-h.Broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast event: %v", err)
				continue
			}

			// Collect recipients under the lock, write outside it.
			h.mu.Lock()
			clientsToSend := make([]*Client, 0, len(h.Rooms[event.DocID]))
			for client := range h.Rooms[event.DocID] {
				clientsToSend = append(clientsToSend, client)
			}
			h.mu.Unlock()

			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					// A full send buffer means the client is lagging; evict
					// it directly. Run is the only receiver of Unregister,
					// so routing through the channel here would block the
					// hub on itself.
					logger.Sugar.Warnf("Client %d's send buffer is full. Evicting.", client.UserID)
					h.evict(client)
				}
			}
		}
	}
}

// evict removes a client from its room and closes its send channel. Safe to
// call twice for the same client; the readPump's unregister after an eviction
// is a no-op.
func (h *Hub) evict(client *Client) {
	h.mu.Lock()
	docID := client.DocID
	_, ok := h.Rooms[docID][client]
	if ok {
		delete(h.Rooms[docID], client)
		delete(h.Presence[docID], client.UserID)
		close(client.Send)

		if len(h.Rooms[docID]) == 0 {
			delete(h.Rooms, docID)
			delete(h.Presence, docID)
		}
	}
	h.mu.Unlock()

	if ok && h.roomExists(docID) {
		h.broadcastPresenceUpdate(docID)
	}
}

// Publish hands an event to the hub without blocking the caller when the hub
// is not running (tests exercise services without a hub goroutine).
func (h *Hub) Publish(event Event) {
	select {
	case h.Broadcast <- event:
	default:
		go func() { h.Broadcast <- event }()
	}
}

// RemoveDocument disconnects every client in a deleted document's room.
func (h *Hub) RemoveDocument(docID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.Presence, docID)
	if clients, ok := h.Rooms[docID]; ok {
		for client := range clients {
			client.Conn.Close() // readPump exits and unregisters safely
		}
		delete(h.Rooms, docID)
	}
}

func (h *Hub) roomExists(docID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Rooms[docID] != nil
}

func (h *Hub) broadcastPresenceUpdate(docID int64) {
	var userStatuses []UserStatus
	var clientsToSend []*Client

	h.mu.Lock()
	if _, ok := h.Presence[docID]; ok {
		userStatuses = make([]UserStatus, 0, len(h.Presence[docID]))
		for _, status := range h.Presence[docID] {
			userStatuses = append(userStatuses, status)
		}
		clientsToSend = make([]*Client, 0, len(h.Rooms[docID]))
		for client := range h.Rooms[docID] {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(userStatuses)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	broadcastPayload, _ := json.Marshal(Event{Type: PresenceUpdateType, DocID: docID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- broadcastPayload:
		default:
			logger.Sugar.Warnf("Client %d's send buffer was full during presence update.", client.UserID)
		}
	}
}
