package model

import (
	"encoding/json"

	"docrelay/internal/presence"
)

type JoinRoomRequest struct {
	UserName string `json:"userName"`
	RoomID   string `json:"roomId"`
}

// SaveRequest is the client's explicit save. Content is the serialized delta,
// kept as sent.
type SaveRequest struct {
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
}

// ContentString is the form stored in the documents table. Clients usually
// send the delta already serialized as a JSON string; that string is stored
// as is. Any other JSON value is stored as its JSON text.
func (r SaveRequest) ContentString() string {
	if len(r.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Content, &s); err == nil {
		return s
	}
	return string(r.Content)
}

type CursorPosition struct {
	Cursor   json.RawMessage `json:"cursor"`
	UserName string          `json:"userName"`
}

type CursorUpdate struct {
	Cursor   json.RawMessage `json:"cursor"`
	UserName string          `json:"userName"`
	Color    string          `json:"color"`
}

type TitleUpdateRequest struct {
	RoomID   string `json:"roomId"`
	NewTitle string `json:"newTitle"`
}

type UserList []presence.Participant

// DocumentPayload renders stored content for load-document: valid JSON is
// sent as is, other text (rows written outside the relay) as a JSON string,
// missing content as null.
func DocumentPayload(content string, valid bool) json.RawMessage {
	if !valid {
		return json.RawMessage("null")
	}
	if json.Valid([]byte(content)) {
		return json.RawMessage(content)
	}
	b, _ := json.Marshal(content)
	return b
}
