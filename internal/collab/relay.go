package collab

import (
	"encoding/json"
	"strings"

	"docrelay/internal/document/model"
	"docrelay/pkg/logger"
	"docrelay/socket"
)

// relayChanges forwards a live delta to the rest of the room. Nothing is
// persisted; clients save explicitly.
func (m *Manager) relayChanges(c *socket.Client, msg socket.WSMessage) {
	s, ok := m.activeSession(c, msg)
	if !ok {
		return
	}
	m.transport.Relay(s.RoomID, socket.WSMessage{
		Type:    socket.ReceiveChangesType,
		RoomID:  s.RoomID,
		Payload: msg.Payload,
	}, c)
}

// saveChanges persists the payload, then relays it to the rest of the room as
// send-changes whatever the store said. A payload that does not decode is
// relayed without being saved.
func (m *Manager) saveChanges(c *socket.Client, msg socket.WSMessage) {
	s, ok := m.activeSession(c, msg)
	if !ok {
		return
	}

	var req model.SaveRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		logger.Sugar.Warnf("Relaying unsaved changes for room %s: invalid save-changes payload from %s: %v", s.RoomID, c.ID, err)
	} else {
		logger.Sugar.Infof("Saving changes for room %s", s.RoomID)
		if !m.persistContent(s.RoomID, req) {
			logger.Sugar.Warnf("Relaying unsaved changes for room %s", s.RoomID)
		}
	}

	m.transport.Relay(s.RoomID, socket.WSMessage{
		Type:    socket.SendChangesType,
		RoomID:  s.RoomID,
		Payload: msg.Payload,
	}, c)
}

// persistContent reports whether the save reached the store. Failures are
// already logged by the document service.
func (m *Manager) persistContent(roomID string, req model.SaveRequest) bool {
	_, err := m.docs.SaveContent(m.ctx, roomID, req.Title, req.ContentString())
	return err == nil
}

// relayCursor forwards a cursor with the sender's registered color. Unknown
// names are dropped.
func (m *Manager) relayCursor(c *socket.Client, msg socket.WSMessage) {
	s, ok := m.activeSession(c, msg)
	if !ok {
		return
	}

	var req model.CursorPosition
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		logger.Sugar.Debugf("Invalid cursor-position payload from %s: %v", c.ID, err)
		return
	}
	name := req.UserName
	if name == "" {
		name = s.Name
	}

	color, ok := m.presence.Color(s.RoomID, name)
	if !ok {
		logger.Sugar.Debugf("Dropping cursor for unknown participant %q in room %s", name, s.RoomID)
		return
	}

	payload, _ := json.Marshal(model.CursorUpdate{Cursor: req.Cursor, UserName: name, Color: color})
	m.transport.Relay(s.RoomID, socket.WSMessage{
		Type:    socket.CursorUpdateType,
		RoomID:  s.RoomID,
		Payload: payload,
	}, c)
}

// updateTitle persists the new title and sends it to everyone in the room,
// the sender included.
func (m *Manager) updateTitle(msg socket.WSMessage) {
	var req model.TitleUpdateRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		logger.Sugar.Warnf("Invalid update-title payload: %v", err)
		return
	}
	if req.RoomID == "" {
		req.RoomID = msg.RoomID
	}
	if strings.TrimSpace(req.RoomID) == "" {
		logger.Sugar.Warnf("Rejected update-title: roomId is required")
		return
	}

	logger.Sugar.Infof("Updating title for room %s: %s", req.RoomID, req.NewTitle)
	if !m.persistTitle(req.RoomID, req.NewTitle) {
		logger.Sugar.Warnf("Broadcasting unsaved title for room %s", req.RoomID)
	}

	payload, _ := json.Marshal(req.NewTitle)
	m.transport.Relay(req.RoomID, socket.WSMessage{
		Type:    socket.TitleUpdatedType,
		RoomID:  req.RoomID,
		Payload: payload,
	}, nil)
}

func (m *Manager) persistTitle(roomID, title string) bool {
	_, err := m.docs.UpdateTitle(m.ctx, roomID, title)
	return err == nil
}
