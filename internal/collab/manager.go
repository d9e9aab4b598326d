// Package collab runs the per-room collaboration protocol on top of the
// socket hub: joining and leaving rooms, the load-or-create handshake, and
// relaying edits, cursors and titles between participants.
package collab

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"docrelay/internal/document/model"
	"docrelay/internal/presence"
	"docrelay/pkg/logger"
	"docrelay/socket"
	"docrelay/store"
)

// Transport delivers frames to connections and rooms.
type Transport interface {
	Emit(c *socket.Client, msg socket.WSMessage)
	// Broadcast reaches local room members only.
	Broadcast(roomID string, msg socket.WSMessage, except *socket.Client)
	// Relay also reaches members connected to other instances.
	Relay(roomID string, msg socket.WSMessage, except *socket.Client)
	JoinRoom(c *socket.Client, roomID string) bool
}

// Documents is the persistence the protocol needs.
type Documents interface {
	LoadOrCreate(ctx context.Context, roomID string) (*store.Document, bool, error)
	SaveContent(ctx context.Context, roomID, title, content string) (*store.Document, error)
	UpdateTitle(ctx context.Context, roomID, title string) (*store.Document, error)
}

type State int

const (
	Connected State = iota
	Joining
	Active
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Session is one connection's view of the room it joined.
type Session struct {
	RoomID string
	Name   string
	State  State
}

type Manager struct {
	ctx       context.Context
	transport Transport
	docs      Documents
	presence  *presence.Registry

	// presenceMu orders presence changes with the user lists they produce,
	// so every member sees lists in the order the changes happened.
	presenceMu sync.Mutex

	mu       sync.Mutex
	sessions map[*socket.Client]*Session
}

// NewManager wires the protocol. ctx is the parent of every store call.
func NewManager(ctx context.Context, transport Transport, docs Documents, registry *presence.Registry) *Manager {
	if registry == nil {
		registry = presence.NewRegistry(nil)
	}
	return &Manager{
		ctx:       ctx,
		transport: transport,
		docs:      docs,
		presence:  registry,
		sessions:  make(map[*socket.Client]*Session),
	}
}

// Session returns a copy of the connection's session state.
func (m *Manager) Session(c *socket.Client) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[c]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Presence exposes the registry for read-only inspection.
func (m *Manager) Presence() *presence.Registry {
	return m.presence
}

func (m *Manager) HandleMessage(c *socket.Client, msg socket.WSMessage) {
	switch msg.Type {
	case socket.JoinRoomType:
		m.join(c, msg)
	case socket.SendChangesType:
		m.relayChanges(c, msg)
	case socket.SaveChangesType:
		m.saveChanges(c, msg)
	case socket.CursorPositionType:
		m.relayCursor(c, msg)
	case socket.UpdateTitleType:
		m.updateTitle(msg)
	default:
		logger.Sugar.Debugf("Ignoring %q event from %s", msg.Type, c.ID)
	}
}

func (m *Manager) join(c *socket.Client, msg socket.WSMessage) {
	var req model.JoinRoomRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		logger.Sugar.Warnf("Invalid join-room payload from %s: %v", c.ID, err)
		return
	}
	if req.RoomID == "" {
		req.RoomID = msg.RoomID
	}
	if strings.TrimSpace(req.RoomID) == "" || strings.TrimSpace(req.UserName) == "" {
		logger.Sugar.Warnf("Rejected join-room from %s: userName and roomId are required", c.ID)
		return
	}

	m.mu.Lock()
	s, ok := m.sessions[c]
	if !ok {
		s = &Session{State: Connected}
		m.sessions[c] = s
	}
	if s.State != Connected {
		m.mu.Unlock()
		logger.Sugar.Warnf("Ignoring second join-room from %s (%s in room %s)", c.ID, s.State, s.RoomID)
		return
	}
	s.RoomID, s.Name, s.State = req.RoomID, req.UserName, Joining
	m.mu.Unlock()

	logger.Sugar.Infof("%s joined room %s", req.UserName, req.RoomID)

	m.presenceMu.Lock()
	_, participants := m.presence.Join(req.RoomID, req.UserName)
	list := userListMessage(req.RoomID, participants)
	m.transport.Broadcast(req.RoomID, list, c)
	m.transport.Emit(c, list)
	m.presenceMu.Unlock()

	doc, created, err := m.docs.LoadOrCreate(m.ctx, req.RoomID)
	switch {
	case err != nil:
		logger.Sugar.Errorf("Failed to load document for room %s: %v", req.RoomID, err)
	case created:
		logger.Sugar.Infof("Created document %s for room %s", doc.ID, req.RoomID)
	default:
		m.transport.Emit(c, socket.WSMessage{
			Type:    socket.LoadDocumentType,
			RoomID:  req.RoomID,
			Payload: model.DocumentPayload(doc.Content.String, doc.HasContent()),
		})
	}

	// Presence changes made while the store call ran were broadcast to the
	// room before this connection was in it.
	m.presenceMu.Lock()
	if !m.transport.JoinRoom(c, req.RoomID) {
		m.presenceMu.Unlock()
		logger.Sugar.Infof("%s left room %s before the join completed", req.UserName, req.RoomID)
		return
	}
	if current := m.presence.Participants(req.RoomID); !slices.Equal(current, participants) {
		m.transport.Emit(c, userListMessage(req.RoomID, current))
	}
	m.presenceMu.Unlock()

	m.mu.Lock()
	if s.State == Joining {
		s.State = Active
	}
	m.mu.Unlock()
}

func (m *Manager) HandleDisconnect(c *socket.Client) {
	m.mu.Lock()
	s, ok := m.sessions[c]
	delete(m.sessions, c)
	var prev State
	if ok {
		prev = s.State
		s.State = Disconnected
	}
	m.mu.Unlock()

	if !ok || prev == Connected {
		return
	}

	m.presenceMu.Lock()
	remaining, removed := m.presence.Leave(s.RoomID, s.Name)
	if removed {
		m.transport.Broadcast(s.RoomID, userListMessage(s.RoomID, remaining), c)
	}
	m.presenceMu.Unlock()

	logger.Sugar.Infof("%s left room %s", s.Name, s.RoomID)
}

// activeSession resolves the room a relay event targets. Events are only
// accepted from joined connections and only for their own room.
func (m *Manager) activeSession(c *socket.Client, msg socket.WSMessage) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[c]
	if !ok || s.State != Active {
		logger.Sugar.Debugf("Dropping %s from %s: not in a room", msg.Type, c.ID)
		return Session{}, false
	}
	if msg.RoomID != "" && msg.RoomID != s.RoomID {
		logger.Sugar.Warnf("Dropping %s from %s: room %s is not %s", msg.Type, c.ID, msg.RoomID, s.RoomID)
		return Session{}, false
	}
	return *s, true
}

func userListMessage(roomID string, participants []presence.Participant) socket.WSMessage {
	payload, _ := json.Marshal(model.UserList(participants))
	return socket.WSMessage{Type: socket.UserListType, RoomID: roomID, Payload: payload}
}
