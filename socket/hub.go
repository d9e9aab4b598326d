package socket

import (
	"context"
	"encoding/json"
	"sync"

	"docrelay/pkg/logger"
	"docrelay/pkg/metrics"

	"github.com/google/uuid"
)

const (
	JoinRoomType       = "join-room"              // client asks to enter a room
	UserListType       = "update-user-list"       // participant list changed
	LoadDocumentType   = "load-document"          // stored content, joiner only
	SendChangesType    = "send-changes"           // client delta; also the relay of a save
	ReceiveChangesType = "receive-changes"        // relayed delta
	CursorPositionType = "cursor-position"        // client moved its cursor
	CursorUpdateType   = "cursor-position-update" // relayed cursor with color
	SaveChangesType    = "save-changes"           // explicit save of title and content
	UpdateTitleType    = "update-title"           // client renamed the document
	TitleUpdatedType   = "title-updated"          // new title, everyone in the room
)

var knownTypes = map[string]bool{
	JoinRoomType:       true,
	SendChangesType:    true,
	CursorPositionType: true,
	SaveChangesType:    true,
	UpdateTitleType:    true,
}

type WSMessage struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler receives what connections send. HandleMessage runs on the
// connection's read loop, so one connection's events are handled in order.
type Handler interface {
	HandleMessage(c *Client, msg WSMessage)
	HandleDisconnect(c *Client)
}

type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int
	// MaxMessageBytes caps inbound frames.
	MaxMessageBytes int64

	handler    Handler
	bus        Bus
	instanceID string
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*Client]bool
	Rooms   map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		Register:        make(chan *Client),
		Unregister:      make(chan *Client),
		SendBuffer:      256,
		MaxMessageBytes: 1 << 20,
		instanceID:      uuid.NewString(),
		done:            make(chan struct{}),
		clients:         make(map[*Client]bool),
		Rooms:           make(map[string]map[*Client]bool),
	}
}

// SetHandler must be called before Run.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// AttachBus fans relayed frames out to other instances through bus and
// delivers theirs to local rooms.
func (h *Hub) AttachBus(ctx context.Context, bus Bus) error {
	if err := bus.Subscribe(ctx, h.deliverRemote); err != nil {
		return err
	}
	h.bus = bus
	return nil
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.Connections.Inc()
			logger.Sugar.Debugf("Client %s connected", client.ID)

		case client := <-h.Unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				if room := client.roomID; room != "" {
					delete(h.Rooms[room], client)
					if len(h.Rooms[room]) == 0 {
						delete(h.Rooms, room)
					}
				}
			}
			h.mu.Unlock()
			if !ok {
				continue
			}
			client.closeSend()
			metrics.Connections.Dec()
			logger.Sugar.Debugf("Client %s disconnected", client.ID)
			if h.handler != nil {
				h.handler.HandleDisconnect(client)
			}

		case <-ctx.Done():
			h.mu.RLock()
			for client := range h.clients {
				client.kick()
			}
			h.mu.RUnlock()
			return
		}
	}
}

// JoinRoom puts a registered client into roomID's delivery group, leaving any
// previous one. It reports false if the client is already gone.
func (h *Hub) JoinRoom(c *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return false
	}
	if prev := c.roomID; prev != "" && prev != roomID {
		delete(h.Rooms[prev], c)
		if len(h.Rooms[prev]) == 0 {
			delete(h.Rooms, prev)
		}
	}
	if h.Rooms[roomID] == nil {
		h.Rooms[roomID] = make(map[*Client]bool)
	}
	h.Rooms[roomID][c] = true
	c.roomID = roomID
	return true
}

// RoomSize is the number of local connections in roomID.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Rooms[roomID])
}

// Emit sends msg to one connection.
func (h *Hub) Emit(c *Client, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s message: %v", msg.Type, err)
		return
	}
	c.enqueue(payload)
}

// Broadcast sends msg to every local connection in roomID except except
// (which may be nil).
func (h *Hub) Broadcast(roomID string, msg WSMessage, except *Client) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s broadcast: %v", msg.Type, err)
		return
	}
	h.deliver(roomID, payload, except)
}

// Relay is Broadcast plus fan-out to the other instances sharing the bus.
func (h *Hub) Relay(roomID string, msg WSMessage, except *Client) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s relay: %v", msg.Type, err)
		return
	}
	h.deliver(roomID, payload, except)

	if h.bus != nil {
		err := h.bus.Publish(context.Background(), BusMessage{Origin: h.instanceID, RoomID: roomID, Frame: payload})
		if err != nil {
			logger.Sugar.Errorf("Failed to publish %s for room %s: %v", msg.Type, roomID, err)
		}
	}
}

func (h *Hub) deliverRemote(m BusMessage) {
	if m.Origin == h.instanceID {
		return
	}
	h.deliver(m.RoomID, m.Frame, nil)
}

func (h *Hub) deliver(roomID string, payload []byte, except *Client) {
	// Collect recipients under the lock, write outside it.
	h.mu.RLock()
	clientsToSend := make([]*Client, 0, len(h.Rooms[roomID]))
	for client := range h.Rooms[roomID] {
		if client != except {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clientsToSend {
		client.enqueue(payload)
	}
}
