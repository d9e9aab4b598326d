package store

import (
	"database/sql"
	"time"
)

// DefaultTitle is the title given to documents created on first join.
const DefaultTitle = "Untitled Document"

// Document is the persisted state of one room. Content stays invalid (NULL)
// until the first save.
type Document struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Content   sql.NullString `json:"-"`
	RoomID    string         `json:"room_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HasContent reports whether the document has been saved at least once.
func (d *Document) HasContent() bool {
	return d != nil && d.Content.Valid
}
